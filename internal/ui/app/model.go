// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/ui/components"
)

// =============================================================================
// APPLICATION MODEL
// =============================================================================

// Screen is the top-level view.
type Screen int

const (
	ScreenLogin   Screen = iota // Credentials form
	ScreenConsole               // Authenticated area
)

// Login form fields, in focus order.
const (
	fieldUsername = iota
	fieldPassword
	fieldCode
)

// Model is the root Bubble Tea model.
type Model struct {
	auth    *auth.Manager
	monitor *session.Monitor
	sched   clock.Scheduler
	logger  *slog.Logger
	keys    KeyMap
	help    help.Model

	screen Screen
	width  int
	height int

	// login
	inputs     []textinput.Model
	focus      int
	showCode   bool
	submitting bool
	loginErr   string
	notice     string
	bannerUser string
	banner     components.LockoutBanner

	// console
	session   *auth.Session
	statusBar components.StatusBar
	overlay   components.TimeoutOverlay
}

// New creates the model. The monitor is attached later with SetMonitor
// because its callbacks need the running program.
func New(mgr *auth.Manager, sched clock.Scheduler, logger *slog.Logger) *Model {
	if sched == nil {
		sched = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{
		auth:      mgr,
		sched:     sched,
		logger:    logger,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		banner:    components.NewLockoutBanner(),
		statusBar: components.NewStatusBar(),
		overlay:   components.NewTimeoutOverlay(),
	}
	m.resetLogin()
	m.refreshBanner()
	return m
}

// SetMonitor attaches the idle timeout monitor.
func (m *Model) SetMonitor(mon *session.Monitor) {
	m.monitor = mon
}

// Screen returns the current screen.
func (m *Model) Screen() Screen { return m.screen }

// Session returns the signed-in session, or nil.
func (m *Model) Session() *auth.Session { return m.session }

// resetLogin builds a fresh form, discarding anything typed.
func (m *Model) resetLogin() {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Prompt = ""

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.CharLimit = 128
	password.Prompt = ""

	code := textinput.New()
	code.Placeholder = "6-digit code"
	code.CharLimit = 8
	code.Prompt = ""

	m.inputs = []textinput.Model{username, password, code}
	m.focus = fieldUsername
	m.inputs[fieldUsername].Focus()
	m.showCode = false
	m.submitting = false
	m.loginErr = ""
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink and the repaint tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, session.TickCmd())
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.screen == ScreenConsole && m.monitor != nil {
		if src, ok := session.ActivityFromMsg(msg); ok {
			m.monitor.HandleActivity(src)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.banner.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.overlay.SetSize(msg.Width, msg.Height)
		m.help.Width = msg.Width
		return m, nil

	case session.TickMsg:
		now := m.sched.Now()
		m.banner.Tick(now)
		m.overlay.Tick(now)
		m.refreshStatusBar()
		return m, session.TickCmd()

	case ThrottleMsg:
		m.refreshBanner()
		return m, nil

	case SessionStateMsg:
		m.refreshStatusBar()
		if msg.To == session.StateActive && m.overlay.IsVisible() && !m.overlay.IsExpired() {
			m.overlay.Hide()
		}
		return m, nil

	case session.WarningMsg:
		if m.screen == ScreenConsole {
			m.overlay.Show(m.sched.Now(), msg.Remaining)
		}
		return m, nil

	case session.ExpiredMsg:
		m.expire()
		return m, textinput.Blink

	case components.ExtendMsg:
		if m.monitor != nil {
			m.monitor.TriggerActivityReset()
		}
		m.refreshStatusBar()
		return m, nil

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case logoutDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, auth.ErrNoSession) {
			m.logger.Warn("ui: sign out failed", "error", msg.err)
		}
		m.notice = "Signed out."
		m.toLogin()
		return m, textinput.Blink

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.screen == ScreenConsole {
		if m.overlay.IsVisible() {
			var cmd tea.Cmd
			m.overlay, cmd = m.overlay.Update(msg)
			return m, cmd
		}
		switch {
		case key.Matches(msg, m.keys.Logout):
			return m, m.logoutCmd()
		case key.Matches(msg, m.keys.Extend):
			return m, func() tea.Msg { return components.ExtendMsg{} }
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m, m.submit()
	case key.Matches(msg, m.keys.NextField):
		m.moveFocus(1)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.PrevField):
		m.moveFocus(-1)
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// =============================================================================
// LOGIN
// =============================================================================

func (m *Model) visibleFields() int {
	if m.showCode {
		return 3
	}
	return 2
}

func (m *Model) moveFocus(delta int) {
	n := m.visibleFields()
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + n) % n
	m.inputs[m.focus].Focus()
}

func (m *Model) setFocus(field int) {
	m.inputs[m.focus].Blur()
	m.focus = field
	m.inputs[m.focus].Focus()
}

// submit starts a login. bcrypt is slow, so the check runs as a command.
func (m *Model) submit() tea.Cmd {
	if m.submitting {
		return nil
	}
	username := m.inputs[fieldUsername].Value()
	if username == "" {
		m.loginErr = "Enter a username."
		return nil
	}
	password := m.inputs[fieldPassword].Value()
	code := ""
	if m.showCode {
		code = m.inputs[fieldCode].Value()
	}

	m.submitting = true
	m.loginErr = ""
	mgr := m.auth
	return func() tea.Msg {
		sess, err := mgr.Login(username, password, code)
		return loginResultMsg{username: username, session: sess, err: err}
	}
}

func (m *Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	m.bannerUser = msg.username
	m.refreshBanner()

	if msg.err == nil {
		m.session = msg.session
		m.screen = ScreenConsole
		m.notice = ""
		m.resetLogin()
		m.statusBar.SetUser(msg.session.Username)
		if m.monitor != nil {
			m.monitor.SetAuth(msg.session.AuthState())
		}
		m.refreshStatusBar()
		return m, nil
	}

	if errors.Is(msg.err, auth.ErrMFARequired) {
		m.showCode = true
		m.loginErr = "Enter the code from your authenticator app."
		m.setFocus(fieldCode)
		return m, textinput.Blink
	}

	m.inputs[fieldPassword].Reset()
	m.inputs[fieldCode].Reset()

	var (
		locked *auth.LockedError
		failed *auth.FailedAttemptError
	)
	switch {
	case errors.As(msg.err, &locked):
		m.loginErr = "Too many failed attempts."
		m.setFocus(fieldPassword)
	case errors.As(msg.err, &failed):
		m.loginErr = "Invalid credentials."
		m.setFocus(fieldPassword)
	default:
		m.logger.Error("ui: login failed", "error", msg.err)
		m.loginErr = "Sign in failed. See the log for details."
	}
	return m, textinput.Blink
}

// refreshBanner reloads throttle state for the last submitted username.
func (m *Model) refreshBanner() {
	if m.auth == nil {
		return
	}
	if m.auth.PerAccount() && m.bannerUser == "" {
		return
	}
	th := m.auth.ThrottleFor(m.bannerUser)
	m.banner.SetStatus(th.Status(), m.sched.Now())
}

// =============================================================================
// SESSION
// =============================================================================

func (m *Model) refreshStatusBar() {
	if m.monitor != nil {
		m.statusBar.SetSession(m.monitor.Status())
	}
}

// expire is the hard redirect after an idle logout: every piece of
// authenticated state is dropped and a fresh form is shown.
func (m *Model) expire() {
	m.notice = "Your session expired due to inactivity. Sign in again."
	m.toLogin()
}

func (m *Model) toLogin() {
	m.session = nil
	m.screen = ScreenLogin
	m.overlay.Hide()
	m.statusBar = components.NewStatusBar()
	m.statusBar.SetWidth(m.width)
	m.resetLogin()
	m.refreshBanner()
}

func (m *Model) logoutCmd() tea.Cmd {
	sess := m.session
	mon := m.monitor
	mgr := m.auth
	timeout := session.DefaultLogoutTimeout
	if mon != nil {
		timeout = mon.Config().LogoutTimeout
	}
	return func() tea.Msg {
		if mon != nil {
			mon.SetAuth(session.AuthState{})
		}
		if sess == nil {
			return logoutDoneMsg{}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return logoutDoneMsg{err: mgr.Logout(ctx, sess.Token)}
	}
}
