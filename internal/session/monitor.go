// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/clock"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the idle time after which the session is terminated.
	DefaultTimeout = time.Hour

	// DefaultWarningTime is how long before termination the warning fires.
	DefaultWarningTime = 5 * time.Minute

	// DefaultActivityCoalesce is the window within which activity events
	// collapse into a single reset.
	DefaultActivityCoalesce = time.Second

	// DefaultLogoutTimeout bounds the logout operation on forced termination.
	DefaultLogoutTimeout = 10 * time.Second
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of the monitored session.
type State int

const (
	// StateInactive means not authenticated. No timers are pending.
	StateInactive State = iota
	// StateActive means both timers are pending and no warning was issued.
	StateActive
	// StateWarningIssued means the warning fired and logout is pending.
	StateWarningIssued
	// StateTerminated means the logout timer fired.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateWarningIssued:
		return "warning"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// running reports whether timers are live in this state.
func (s State) running() bool {
	return s == StateActive || s == StateWarningIssued
}

// ActivitySource identifies the user interaction that reset the timers.
type ActivitySource int

const (
	ActivityPointerDown ActivitySource = iota
	ActivityPointerMove
	ActivityKeyPress
	ActivityScroll
	ActivityTouchStart
	ActivityClick
	ActivityVisible
)

func (a ActivitySource) String() string {
	switch a {
	case ActivityPointerDown:
		return "pointerdown"
	case ActivityPointerMove:
		return "pointermove"
	case ActivityKeyPress:
		return "keypress"
	case ActivityScroll:
		return "scroll"
	case ActivityTouchStart:
		return "touchstart"
	case ActivityClick:
		return "click"
	case ActivityVisible:
		return "visible"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// AuthState is the authentication signal supplied by the application.
type AuthState struct {
	Authenticated bool
	Token         string
	SessionID     string // Optional, used in audit records
}

// Valid reports whether timers should run for this state.
func (a AuthState) Valid() bool {
	return a.Authenticated && a.Token != ""
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the monitor timing.
type Config struct {
	// Timeout is the idle time before forced logout (default: 1 hour).
	Timeout time.Duration

	// WarningTime is how long before Timeout the warning fires (default: 5 minutes).
	WarningTime time.Duration

	// ActivityCoalesce collapses activity bursts. Zero resets on every event.
	ActivityCoalesce time.Duration

	// LogoutTimeout bounds the logout call on forced termination.
	LogoutTimeout time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		WarningTime:      DefaultWarningTime,
		ActivityCoalesce: DefaultActivityCoalesce,
		LogoutTimeout:    DefaultLogoutTimeout,
	}
}

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid session config")

// Validate checks that the warning fires strictly before the logout.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.WarningTime <= 0:
		return fmt.Errorf("%w: warning time must be positive", ErrInvalidConfig)
	case c.WarningTime >= c.Timeout:
		return fmt.Errorf("%w: warning time %s must be less than timeout %s", ErrInvalidConfig, c.WarningTime, c.Timeout)
	case c.ActivityCoalesce < 0:
		return fmt.Errorf("%w: activity coalesce must not be negative", ErrInvalidConfig)
	case c.LogoutTimeout < 0:
		return fmt.Errorf("%w: logout timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// MONITOR
// =============================================================================

// LogoutFunc ends the session with the authentication provider.
type LogoutFunc func(ctx context.Context, token string) error

// Monitor runs the idle-session warning and logout timers.
//
// Every timer captures the generation current when it was scheduled. A
// callback whose generation no longer matches, or whose expected state has
// gone, does nothing. Callbacks and notifications run without the monitor's
// lock held, so they may call back into the Monitor.
type Monitor struct {
	mu sync.Mutex

	cfg       Config
	sched     clock.Scheduler
	onWarning func(remaining time.Duration)
	logout    LogoutFunc
	redirect  func()
	onState   func(from, to State)
	audit     *audit.Logger
	logger    *slog.Logger
	limiter   *rate.Limiter

	state        State
	auth         AuthState
	gen          uint64
	startedAt    time.Time
	lastActivity time.Time
	warningAt    time.Time
	logoutAt     time.Time
	warningTimer clock.Timer
	logoutTimer  clock.Timer
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithScheduler sets the time source and timer factory.
func WithScheduler(s clock.Scheduler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithLogout sets the logout operation invoked on forced termination. Its
// error is logged and otherwise ignored.
func WithLogout(fn LogoutFunc) Option {
	return func(m *Monitor) {
		m.logout = fn
	}
}

// WithRedirect sets the function that returns the user to the login entry
// point after forced termination.
func WithRedirect(fn func()) Option {
	return func(m *Monitor) {
		m.redirect = fn
	}
}

// WithStateChange registers a callback for every state transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(m *Monitor) {
		m.onState = fn
	}
}

// WithAuditLogger records session lifecycle events in the audit trail.
func WithAuditLogger(l *audit.Logger) Option {
	return func(m *Monitor) {
		m.audit = l
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor in StateInactive. onWarning may be nil.
func NewMonitor(cfg Config, onWarning func(remaining time.Duration), opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:       cfg,
		sched:     clock.Real(),
		onWarning: onWarning,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	limit := rate.Inf
	if cfg.ActivityCoalesce > 0 {
		limit = rate.Every(cfg.ActivityCoalesce)
	}
	m.limiter = rate.NewLimiter(limit, 1)

	return m, nil
}

// Config returns the monitor timing.
func (m *Monitor) Config() Config {
	return m.cfg
}

// =============================================================================
// AUTHENTICATION SIGNAL
// =============================================================================

// SetAuth feeds the authentication signal. A valid state starts the timers
// unless they already run for the same token; a new token restarts them. An
// invalid state tears everything down without firing any callback.
func (m *Monitor) SetAuth(a AuthState) {
	m.mu.Lock()
	from := m.state
	prev := m.auth

	if !a.Valid() {
		m.teardownLocked()
		m.auth = AuthState{}
		m.state = StateInactive
		m.mu.Unlock()

		if from.running() {
			m.logAudit(audit.EventSessionEnd, prev.SessionID, map[string]string{"reason": "signed_out"})
		}
		m.notifyState(from, StateInactive)
		return
	}

	if from.running() && a.Token == prev.Token {
		m.auth = a
		m.mu.Unlock()
		return
	}

	m.auth = a
	now := m.sched.Now()
	m.startedAt = now
	m.resetLocked(now)
	m.state = StateActive
	m.mu.Unlock()

	m.logAudit(audit.EventSessionStart, a.SessionID, map[string]string{
		"timeout": m.cfg.Timeout.String(),
	})
	m.notifyState(from, StateActive)
}

// Stop tears the monitor down, cancelling both timers. Pending callbacks
// that race with Stop are discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	from := m.state
	m.teardownLocked()
	m.auth = AuthState{}
	m.state = StateInactive
	m.mu.Unlock()

	m.notifyState(from, StateInactive)
}

// =============================================================================
// ACTIVITY
// =============================================================================

// HandleActivity resets both timers in response to user interaction. Events
// arriving within the coalescing window of a previous reset are dropped,
// except while the warning is showing. It reports whether a reset happened.
func (m *Monitor) HandleActivity(src ActivitySource) bool {
	m.mu.Lock()
	if !m.state.running() {
		m.mu.Unlock()
		return false
	}

	now := m.sched.Now()
	allowed := m.limiter.AllowN(now, 1)
	if !allowed && m.state != StateWarningIssued {
		m.mu.Unlock()
		return false
	}

	from := m.state
	m.resetLocked(now)
	m.state = StateActive
	m.mu.Unlock()

	m.logger.Debug("session: activity reset", "source", src.String())
	m.notifyState(from, StateActive)
	return true
}

// TriggerActivityReset resets both timers as if activity occurred. It is a
// no-op unless the session is authenticated and running.
func (m *Monitor) TriggerActivityReset() bool {
	m.mu.Lock()
	if !m.state.running() || !m.auth.Valid() {
		m.mu.Unlock()
		return false
	}

	from := m.state
	now := m.sched.Now()
	m.limiter.AllowN(now, 1)
	m.resetLocked(now)
	m.state = StateActive
	m.mu.Unlock()

	m.notifyState(from, StateActive)
	return true
}

// ResetSession is the explicit extend command offered by the warning UI.
func (m *Monitor) ResetSession() bool {
	return m.TriggerActivityReset()
}

// =============================================================================
// TIMERS
// =============================================================================

// resetLocked cancels pending timers and schedules a new pair from now.
func (m *Monitor) resetLocked(now time.Time) {
	m.stopTimersLocked()
	m.gen++
	gen := m.gen

	warnAfter := m.cfg.Timeout - m.cfg.WarningTime
	m.lastActivity = now
	m.warningAt = now.Add(warnAfter)
	m.logoutAt = now.Add(m.cfg.Timeout)
	m.warningTimer = m.sched.AfterFunc(warnAfter, func() { m.fireWarning(gen) })
	m.logoutTimer = m.sched.AfterFunc(m.cfg.Timeout, func() { m.fireLogout(gen) })
}

func (m *Monitor) teardownLocked() {
	m.stopTimersLocked()
	m.gen++
	m.warningAt = time.Time{}
	m.logoutAt = time.Time{}
}

func (m *Monitor) stopTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
}

func (m *Monitor) fireWarning(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.warningTimer = nil
	m.state = StateWarningIssued
	sid := m.auth.SessionID
	cb := m.onWarning
	remaining := m.cfg.WarningTime
	m.mu.Unlock()

	m.logAudit(audit.EventSessionWarning, sid, map[string]string{"remaining": remaining.String()})
	m.notifyState(StateActive, StateWarningIssued)
	if cb != nil {
		cb(remaining)
	}
}

func (m *Monitor) fireLogout(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.state.running() {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.stopTimersLocked()
	m.gen++
	m.state = StateTerminated
	token := m.auth.Token
	sid := m.auth.SessionID
	logout := m.logout
	redirect := m.redirect
	timeout := m.cfg.LogoutTimeout
	m.mu.Unlock()

	m.logAudit(audit.EventSessionTimeout, sid, nil)
	m.notifyState(from, StateTerminated)

	if logout != nil {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := logout(ctx, token); err != nil {
			m.logger.Warn("session: logout failed, redirecting anyway", "error", err)
		}
	}
	if redirect != nil {
		redirect()
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a snapshot of the monitor.
type Status struct {
	State        State         `json:"state"`
	SessionID    string        `json:"session_id,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
	WarningAt    time.Time     `json:"warning_at,omitempty"`
	LogoutAt     time.Time     `json:"logout_at,omitempty"`
	Idle         time.Duration `json:"idle"`
	Remaining    time.Duration `json:"remaining"`
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot with durations computed against the scheduler's
// clock.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:        m.state,
		SessionID:    m.auth.SessionID,
		StartedAt:    m.startedAt,
		LastActivity: m.lastActivity,
		WarningAt:    m.warningAt,
		LogoutAt:     m.logoutAt,
	}
	if m.state.running() {
		now := m.sched.Now()
		st.Idle = now.Sub(m.lastActivity)
		if r := m.logoutAt.Sub(now); r > 0 {
			st.Remaining = r
		}
	}
	return st
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Monitor) notifyState(from, to State) {
	if from == to || m.onState == nil {
		return
	}
	m.onState(from, to)
}

func (m *Monitor) logAudit(eventType, sessionID string, metadata map[string]string) {
	if m.audit == nil {
		return
	}
	if sessionID == "" {
		sessionID = "-"
	}
	var err error
	switch eventType {
	case audit.EventSessionStart:
		err = m.audit.LogSessionStart(sessionID, metadata)
	case audit.EventSessionEnd:
		err = m.audit.LogSessionEnd(sessionID, metadata)
	case audit.EventSessionTimeout:
		err = m.audit.LogTimeout(sessionID)
	default:
		err = m.audit.LogEvent(sessionID, eventType, "", metadata)
	}
	if err != nil {
		m.logger.Warn("session: audit write failed", "event", eventType, "error", err)
	}
}

// FormatDuration returns a short human-readable duration such as "4m 59s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d >= time.Hour {
		h := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
