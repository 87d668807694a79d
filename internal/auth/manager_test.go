// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/throttle"
)

const totpSecret = "JBSWY3DPEHPK3PXP"

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func testUsers(t *testing.T) []config.UserConfig {
	return []config.UserConfig{
		{Username: "alice", PasswordHash: hash(t, "correct horse")},
		{Username: "bob", PasswordHash: hash(t, "battery staple"), TOTPSecret: totpSecret},
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *storage.MemoryStore, *clock.Fake) {
	t.Helper()
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)
	opts = append([]Option{WithScheduler(fake)}, opts...)
	m := NewManager(store, testUsers(t), opts...)
	t.Cleanup(m.Close)
	return m, store, fake
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLogin_Success(t *testing.T) {
	m, store, _ := newTestManager(t)

	sess, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)
	assert.True(t, sess.Valid())
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, epoch, sess.AuthenticatedAt)
	assert.False(t, sess.MFAVerified)

	_, err = store.Get(SessionKey)
	require.NoError(t, err)

	got, err := m.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestLogin_UsernameIsNormalised(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Login("  ALICE ", "correct horse", "")
	assert.NoError(t, err)
}

func TestLogin_FailuresCountDownToLockout(t *testing.T) {
	m, _, fake := newTestManager(t)

	var failed *FailedAttemptError
	_, err := m.Login("alice", "wrong", "")
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 2, failed.RemainingAttempts)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login("alice", "wrong", "")
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.RemainingAttempts)
	assert.Contains(t, err.Error(), "1 attempt remaining")

	_, err = m.Login("alice", "wrong", "")
	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.ErrorIs(t, err, ErrLockedOut)
	assert.Equal(t, fake.Now().Add(throttle.DefaultLockoutDuration).UnixMilli(), locked.Until.UnixMilli())
	assert.Equal(t, time.Minute, locked.Remaining)
}

func TestLogin_LockedRefusesCorrectPassword(t *testing.T) {
	m, _, fake := newTestManager(t)
	for i := 0; i < 3; i++ {
		_, _ = m.Login("alice", "wrong", "")
	}

	fake.Advance(30 * time.Second)
	_, err := m.Login("alice", "correct horse", "")
	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 30*time.Second, locked.Remaining)

	fake.Advance(30 * time.Second)
	_, err = m.Login("alice", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, 0, m.ThrottleFor("alice").GetAttempts().Count)
}

func TestLogin_UnknownUserCounts(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Login("mallory", "anything", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, m.ThrottleFor("mallory").GetAttempts().Count)
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, _ = m.Login("alice", "wrong", "")
	_, _ = m.Login("alice", "wrong", "")

	_, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, 3, m.ThrottleFor("alice").RemainingAttempts())
}

func TestLogin_TOTP(t *testing.T) {
	m, _, fake := newTestManager(t)

	_, err := m.Login("bob", "battery staple", "")
	assert.ErrorIs(t, err, ErrMFARequired)
	assert.Equal(t, 0, m.ThrottleFor("bob").GetAttempts().Count)

	code, err := totp.GenerateCode(totpSecret, fake.Now())
	require.NoError(t, err)

	wrong := []byte(code)
	wrong[0] = '0' + (wrong[0]-'0'+1)%10
	_, err = m.Login("bob", "battery staple", string(wrong))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := m.Login("bob", "battery staple", code)
	require.NoError(t, err)
	assert.True(t, sess.MFAVerified)
}

func TestLogin_WrongPasswordWithCodeStillFails(t *testing.T) {
	m, _, fake := newTestManager(t)
	code, err := totp.GenerateCode(totpSecret, fake.Now())
	require.NoError(t, err)

	_, err = m.Login("bob", "nope", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_PerAccount(t *testing.T) {
	m, _, _ := newTestManager(t, WithPerAccount(true))

	for i := 0; i < 3; i++ {
		_, _ = m.Login("alice", "wrong", "")
	}
	_, err := m.Login("ALICE", "correct horse", "")
	assert.ErrorIs(t, err, ErrLockedOut)

	code, err := totp.GenerateCode(totpSecret, epoch)
	require.NoError(t, err)
	_, err = m.Login("bob", "battery staple", code)
	assert.NoError(t, err)

	assert.Same(t, m.ThrottleFor("alice"), m.ThrottleFor("Alice"))
	assert.NotSame(t, m.ThrottleFor("alice"), m.ThrottleFor("bob"))
}

func TestLogin_PerAccountUnknownNamesAreNotCached(t *testing.T) {
	m, store, _ := newTestManager(t, WithPerAccount(true))

	for i := 0; i < 50; i++ {
		_, _ = m.Login(fmt.Sprintf("guess%d", i), "wrong", "")
	}
	m.mu.Lock()
	assert.Empty(t, m.scoped)
	m.mu.Unlock()

	// Unknown names are still counted and locked through the store.
	for i := 0; i < 2; i++ {
		_, _ = m.Login("mallory", "wrong", "")
	}
	_, err := m.Login("mallory", "wrong", "")
	assert.ErrorIs(t, err, ErrLockedOut)
	_, locked := m.ThrottleFor("Mallory").IsLockedOut()
	assert.True(t, locked)

	attempts, _ := throttle.KeysFor("guess7")
	_, err = store.Get(attempts)
	assert.NoError(t, err)
}

func TestLogin_GlobalScopeIsShared(t *testing.T) {
	m, _, _ := newTestManager(t)
	for i := 0; i < 3; i++ {
		_, _ = m.Login("alice", "wrong", "")
	}
	_, err := m.Login("bob", "battery staple", "")
	assert.ErrorIs(t, err, ErrLockedOut)
}

func TestLogin_SharedThrottle(t *testing.T) {
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)
	th := throttle.New(store, throttle.WithScheduler(fake), throttle.WithMaxAttempts(1))
	defer th.Close()

	m := NewManager(store, testUsers(t), WithScheduler(fake), WithThrottle(th))
	defer m.Close()

	_, err := m.Login("alice", "wrong", "")
	assert.ErrorIs(t, err, ErrLockedOut)
	_, locked := th.IsLockedOut()
	assert.True(t, locked)
}

func TestLogin_Audit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := audit.New(path)
	require.NoError(t, err)
	defer logger.Close()

	m, _, _ := newTestManager(t, WithAuditLogger(logger), WithThrottleOptions(throttle.WithMaxAttempts(1)))
	_, _ = m.Login("alice", "wrong", "")
	_, _ = m.Login("alice", "correct horse", "")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LOGIN_FAILED")
	assert.Contains(t, string(data), "LOGIN_LOCKOUT")
	assert.Contains(t, string(data), "reason=locked")
	assert.Contains(t, string(data), "ERROR: locked out")
	assert.NotContains(t, string(data), "correct horse")
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestLogout(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Logout(context.Background(), "not-the-token"), ErrNoSession)
	require.NoError(t, m.Logout(context.Background(), sess.Token))
	assert.ErrorIs(t, m.Logout(context.Background(), sess.Token), ErrNoSession)

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogout_CancelledContext(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Logout(ctx, sess.Token), context.Canceled)

	_, err = m.Validate(sess.Token)
	assert.NoError(t, err)
}

func TestNewLoginReplacesSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	first, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)
	second, err := m.Login("alice", "correct horse", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	_, err = m.Validate(first.Token)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, m.Logout(context.Background(), first.Token), ErrNoSession)
}

func TestValidate_Rejects(t *testing.T) {
	m, store, _ := newTestManager(t)

	_, err := m.Validate("")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Set(SessionKey, "{garbage"))
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Set(SessionKey, `{"token":"abc","id":"sess_1"}`))
	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrNoSession)
	sess, err := m.Validate("abc")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", sess.ID)
}

func TestSession_AuthState(t *testing.T) {
	var nilSess *Session
	assert.False(t, nilSess.AuthState().Valid())

	st := (&Session{Token: "t", ID: "sess_1"}).AuthState()
	assert.True(t, st.Valid())
	assert.Equal(t, "t", st.Token)
	assert.Equal(t, "sess_1", st.SessionID)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorMessages(t *testing.T) {
	err := &LockedError{Remaining: 59600 * time.Millisecond}
	assert.Equal(t, "too many failed attempts: try again in 1m0s", err.Error())

	err2 := &FailedAttemptError{RemainingAttempts: 2}
	assert.Equal(t, "invalid credentials: 2 attempts remaining", err2.Error())
}

func TestRefresh_PicksUpExternalChanges(t *testing.T) {
	var got []throttle.Transition
	m, store, _ := newTestManager(t, WithThrottleOptions(throttle.WithOnChange(func(tr throttle.Transition) {
		got = append(got, tr)
	})))

	attemptsKey, _ := throttle.KeysFor("")
	require.NoError(t, store.Set(attemptsKey, `{"count":2,"timestamp":1735732800000}`))
	m.Refresh()

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, throttle.EventSynced, last.Event)
	assert.Equal(t, 2, last.Status.Count)
}
