// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/logging"
	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/throttle"
	"github.com/jeranaias/sessionguard/internal/ui/components"
)

const totpSecret = "JBSWY3DPEHPK3PXP"

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	model *Model
	mgr   *auth.Manager
	mon   *session.Monitor
	fake  *clock.Fake

	pending []tea.Msg // messages the relay would deliver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hashFor := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}
	users := []config.UserConfig{
		{Username: "alice", PasswordHash: hashFor("correct horse")},
		{Username: "bob", PasswordHash: hashFor("battery staple"), TOTPSecret: totpSecret},
	}

	h := &harness{t: t, fake: clock.NewFake(epoch)}
	h.mgr = auth.NewManager(storage.NewMemoryStore(), users, auth.WithScheduler(h.fake))
	t.Cleanup(h.mgr.Close)

	mon, err := session.NewMonitor(
		session.Config{
			Timeout:          time.Hour,
			WarningTime:      5 * time.Minute,
			ActivityCoalesce: time.Second,
			LogoutTimeout:    time.Second,
		},
		session.SendWarning(h.enqueue),
		session.WithScheduler(h.fake),
		session.WithLogout(h.mgr.Logout),
		session.WithRedirect(session.SendExpired(h.enqueue)),
	)
	require.NoError(t, err)
	t.Cleanup(mon.Stop)
	h.mon = mon

	h.model = New(h.mgr, h.fake, logging.Discard())
	h.model.SetMonitor(mon)
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

func (h *harness) enqueue(msg tea.Msg) {
	h.pending = append(h.pending, msg)
}

// flush delivers queued callback messages.
func (h *harness) flush() {
	for len(h.pending) > 0 {
		msg := h.pending[0]
		h.pending = h.pending[1:]
		h.send(msg)
	}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.model.Update(msg)
	return cmd
}

func (h *harness) typeText(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// submit presses enter and delivers the login result.
func (h *harness) submit() {
	h.t.Helper()
	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(h.t, cmd)
	h.send(cmd())
}

func (h *harness) login(user, password string) {
	h.t.Helper()
	h.typeText(user)
	h.send(tea.KeyMsg{Type: tea.KeyTab})
	h.typeText(password)
	h.submit()
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func TestLogin_SuccessShowsConsole(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "correct horse")

	assert.Equal(t, ScreenConsole, h.model.Screen())
	require.NotNil(t, h.model.Session())
	assert.Equal(t, session.StateActive, h.mon.State())
	assert.Contains(t, h.model.View(), "Signed in as alice")
	assert.Contains(t, h.model.View(), "idle logout in 1h")
}

func TestLogin_FailuresShowLockout(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "wrong")
	assert.Equal(t, ScreenLogin, h.model.Screen())
	assert.Contains(t, h.model.View(), "Invalid credentials.")
	assert.Contains(t, h.model.View(), "2 of 3 attempts remaining")
	assert.Empty(t, h.model.inputs[fieldPassword].Value())
	assert.Equal(t, fieldPassword, h.model.focus)

	h.typeText("wrong")
	h.submit()
	assert.Contains(t, h.model.View(), "1 attempt remaining")

	h.typeText("wrong")
	h.submit()
	view := h.model.View()
	assert.Contains(t, view, "Too many failed attempts.")
	assert.Contains(t, view, "Try again in 1m")

	h.fake.Advance(20 * time.Second)
	h.send(session.TickMsg{})
	assert.Contains(t, h.model.View(), "Try again in 40s")

	// the correct password is still refused
	h.typeText("correct horse")
	h.submit()
	assert.Equal(t, ScreenLogin, h.model.Screen())
}

func TestLogin_EmptyUsername(t *testing.T) {
	h := newHarness(t)
	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, h.model.View(), "Enter a username.")
}

func TestLogin_SubmitIgnoredWhileChecking(t *testing.T) {
	h := newHarness(t)
	h.typeText("alice")
	first := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, first)
	assert.Nil(t, h.send(tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Contains(t, h.model.View(), "Checking...")
}

func TestLogin_OneTimeCode(t *testing.T) {
	h := newHarness(t)
	h.login("bob", "battery staple")

	assert.Equal(t, ScreenLogin, h.model.Screen())
	assert.True(t, h.model.showCode)
	assert.Equal(t, fieldCode, h.model.focus)
	assert.Equal(t, "battery staple", h.model.inputs[fieldPassword].Value())
	assert.Contains(t, h.model.View(), "Code")

	code, err := totp.GenerateCode(totpSecret, h.fake.Now())
	require.NoError(t, err)
	h.typeText(code)
	h.submit()
	assert.Equal(t, ScreenConsole, h.model.Screen())
}

func TestLogin_FocusCycles(t *testing.T) {
	h := newHarness(t)
	h.send(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldPassword, h.model.focus)
	h.send(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldUsername, h.model.focus)
	h.send(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, fieldPassword, h.model.focus)
}

func TestThrottleMsgRefreshesBanner(t *testing.T) {
	h := newHarness(t)
	h.mgr.ThrottleFor("").IncrementAttempts()

	assert.NotContains(t, h.model.View(), "attempts remaining")
	h.send(ThrottleMsg{})
	assert.Contains(t, h.model.View(), "2 of 3 attempts remaining")
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestWarningThenKeyExtends(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "correct horse")

	h.fake.Advance(55 * time.Minute)
	h.flush()
	assert.Equal(t, session.StateWarningIssued, h.mon.State())
	assert.Contains(t, h.model.View(), "Session Timeout Warning")
	assert.Contains(t, h.model.View(), "5:00")

	cmd := h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.NotNil(t, cmd)
	assert.Equal(t, components.ExtendMsg{}, cmd())
	h.send(cmd())

	assert.Equal(t, session.StateActive, h.mon.State())
	assert.Equal(t, time.Hour, h.mon.Status().Remaining)
	assert.Contains(t, h.model.View(), "Signed in as alice")
}

func TestExtendKey(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "correct horse")
	h.fake.Advance(10 * time.Minute)

	cmd := h.send(tea.KeyMsg{Type: tea.KeyCtrlE})
	require.NotNil(t, cmd)
	h.send(cmd())
	assert.Equal(t, time.Hour, h.mon.Status().Remaining)
}

func TestExpiryRedirectsToFreshLogin(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "correct horse")

	h.fake.Advance(time.Hour)
	h.flush()

	assert.Equal(t, ScreenLogin, h.model.Screen())
	assert.Nil(t, h.model.Session())
	assert.Empty(t, h.model.inputs[fieldUsername].Value())
	assert.Empty(t, h.model.inputs[fieldPassword].Value())
	assert.Contains(t, h.model.View(), "Your session expired")
	assert.Equal(t, session.StateTerminated, h.mon.State())

	_, err := h.mgr.Current()
	assert.ErrorIs(t, err, auth.ErrNoSession)

	// signing in again starts a new cycle
	h.login("alice", "correct horse")
	assert.Equal(t, ScreenConsole, h.model.Screen())
	assert.Equal(t, session.StateActive, h.mon.State())
}

func TestActivityOnLoginScreenIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.typeText("a")
	assert.Equal(t, session.StateInactive, h.mon.State())
}

func TestLogoutKey(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "correct horse")

	cmd := h.send(tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	h.send(cmd())

	assert.Equal(t, ScreenLogin, h.model.Screen())
	assert.Contains(t, h.model.View(), "Signed out.")
	assert.Equal(t, session.StateInactive, h.mon.State())
	_, err := h.mgr.Current()
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	cmd := h.send(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

// =============================================================================
// RELAY
// =============================================================================

func TestRelay(t *testing.T) {
	var r Relay
	r.Send(ThrottleMsg{}) // dropped, nothing attached

	got := make(chan tea.Msg, 2)
	r.Attach(func(msg tea.Msg) { got <- msg })

	r.ThrottleChanged(throttle.Transition{Event: throttle.EventLocked})
	r.StateChanged(session.StateActive, session.StateWarningIssued)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-got:
			switch msg.(type) {
			case ThrottleMsg:
				seen["throttle"] = true
			case SessionStateMsg:
				seen["state"] = true
			}
		case <-time.After(time.Second):
			t.Fatal("relay did not deliver")
		}
	}
	assert.True(t, seen["throttle"])
	assert.True(t, seen["state"])
}

func TestRelay_PreservesOrder(t *testing.T) {
	var r Relay
	var mu sync.Mutex
	var got []int
	r.Attach(func(msg tea.Msg) {
		// A slow consumer gives later sends time to overtake.
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, int(msg.(SessionStateMsg).To))
		mu.Unlock()
	})

	states := []session.State{
		session.StateActive, session.StateWarningIssued, session.StateActive,
		session.StateWarningIssued, session.StateTerminated, session.StateInactive,
	}
	for _, st := range states {
		r.StateChanged(session.StateInactive, st)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(states)
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, st := range states {
		assert.Equal(t, int(st), got[i], "message %d", i)
	}
}

func TestRelay_DetachDropsQueue(t *testing.T) {
	var r Relay
	release := make(chan struct{})
	delivered := make(chan tea.Msg, 4)
	r.Attach(func(msg tea.Msg) {
		<-release
		delivered <- msg
	})

	r.Send(ThrottleMsg{})
	r.Send(ThrottleMsg{})
	r.Send(ThrottleMsg{})
	r.Attach(nil)
	close(release)

	// At most the message already in flight gets through.
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(delivered), 1)
}

func TestKeyMapHelp(t *testing.T) {
	k := DefaultKeyMap()
	assert.Len(t, k.LoginHelp(), 3)
	assert.Len(t, k.ConsoleHelp(), 3)
}
