// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/throttle"
	"github.com/jeranaias/sessionguard/internal/util"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager authenticates users against the configured accounts.
type Manager struct {
	mu sync.Mutex

	store      storage.Store
	users      map[string]config.UserConfig
	perAccount bool
	sched      clock.Scheduler
	audit      *audit.Logger
	logger     *slog.Logger

	throttleOpts []throttle.Option
	global       *throttle.Throttle
	ownsGlobal   bool
	scoped       map[string]*throttle.Throttle
}

// Option configures a Manager.
type Option func(*Manager)

// WithPerAccount keys throttling by normalised username.
func WithPerAccount(on bool) Option {
	return func(m *Manager) {
		m.perAccount = on
	}
}

// WithThrottleOptions sets options for every throttle the manager creates.
func WithThrottleOptions(opts ...throttle.Option) Option {
	return func(m *Manager) {
		m.throttleOpts = append(m.throttleOpts, opts...)
	}
}

// WithThrottle supplies the global throttle instead of creating one. The
// caller keeps ownership.
func WithThrottle(t *throttle.Throttle) Option {
	return func(m *Manager) {
		m.global = t
	}
}

// WithScheduler sets the time source used for TOTP and session stamps.
func WithScheduler(s clock.Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithAuditLogger records refused logins in the audit trail.
func WithAuditLogger(l *audit.Logger) Option {
	return func(m *Manager) {
		m.audit = l
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager for users, persisting sessions in store.
func NewManager(store storage.Store, users []config.UserConfig, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		users:  make(map[string]config.UserConfig, len(users)),
		sched:  clock.Real(),
		logger: slog.Default(),
		scoped: make(map[string]*throttle.Throttle),
	}
	for _, u := range users {
		m.users[config.NormalizeUsername(u.Username)] = u
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.global == nil && !m.perAccount {
		m.global = throttle.New(store, m.withDefaults()...)
		m.ownsGlobal = true
	}
	return m
}

func (m *Manager) withDefaults(extra ...throttle.Option) []throttle.Option {
	opts := []throttle.Option{
		throttle.WithScheduler(m.sched),
		throttle.WithAuditLogger(m.audit),
		throttle.WithLogger(m.logger),
	}
	opts = append(opts, m.throttleOpts...)
	return append(opts, extra...)
}

// ThrottleFor returns the throttle guarding username. Without per-account
// scoping every username shares the global throttle.
//
// Only configured accounts are cached. A name with no account gets a fresh
// throttle over the same persisted records, with no change callback and so
// no expiry timer.
func (m *Manager) ThrottleFor(username string) *throttle.Throttle {
	if !m.perAccount {
		return m.global
	}
	scope := config.NormalizeUsername(username)
	if _, known := m.users[scope]; !known {
		return throttle.New(m.store, m.withDefaults(throttle.WithScope(scope), throttle.WithOnChange(nil))...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.scoped[scope]; ok {
		return t
	}
	t := throttle.New(m.store, m.withDefaults(throttle.WithScope(scope))...)
	m.scoped[scope] = t
	return t
}

// PerAccount reports whether throttling is keyed by username.
func (m *Manager) PerAccount() bool { return m.perAccount }

// Refresh re-reads every throttle after another process changed the store.
func (m *Manager) Refresh() {
	m.mu.Lock()
	throttles := make([]*throttle.Throttle, 0, len(m.scoped)+1)
	if m.global != nil {
		throttles = append(throttles, m.global)
	}
	for _, t := range m.scoped {
		throttles = append(throttles, t)
	}
	m.mu.Unlock()

	for _, t := range throttles {
		t.Refresh()
	}
}

// Login checks username, password and, when the account has a TOTP secret,
// the one-time code. A locked throttle refuses before any check runs.
//
// Errors unwrap to ErrLockedOut (as *LockedError), ErrInvalidCredentials
// (as *FailedAttemptError) or ErrMFARequired.
func (m *Manager) Login(username, password, code string) (*Session, error) {
	th := m.ThrottleFor(username)
	now := m.sched.Now()

	if lk, locked := th.IsLockedOut(); locked {
		m.logAudit(audit.EventLoginFailed, username, "locked out", map[string]string{"reason": "locked"})
		return nil, &LockedError{Until: lk.Until, Remaining: lk.Until.Sub(now)}
	}

	user, known := m.users[config.NormalizeUsername(username)]
	ok := checkPassword(user.PasswordHash, password, known)

	if ok && user.TOTPSecret != "" {
		if code == "" {
			return nil, ErrMFARequired
		}
		ok = m.checkCode(code, user.TOTPSecret)
	}

	if !ok {
		res := th.RecordFailedAttempt()
		if res.Locked {
			return nil, &LockedError{Until: res.Until, Remaining: res.Until.Sub(now)}
		}
		return nil, &FailedAttemptError{RemainingAttempts: res.RemainingAttempts}
	}

	th.RecordSuccess()

	sess := &Session{
		Token:           uuid.NewString(),
		ID:              "sess_" + uuid.NewString()[:8],
		Username:        user.Username,
		AuthenticatedAt: now,
		MFAVerified:     user.TOTPSecret != "",
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(SessionKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	m.logger.Info("auth: login", "session", sess.ID, "user", util.MaskIdentifier(user.Username))
	return sess, nil
}

// Logout ends the session holding token. Ending a session that is already
// gone returns ErrNoSession.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, raw, err := m.load()
	if err != nil {
		return err
	}
	if !tokenMatches(sess.Token, token) {
		return ErrNoSession
	}
	swapped, err := m.store.CompareAndSwap(SessionKey, &raw, nil)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if !swapped {
		return ErrNoSession
	}
	m.logger.Info("auth: logout", "session", sess.ID)
	return nil
}

// Validate returns the session holding token.
func (m *Manager) Validate(token string) (*Session, error) {
	sess, _, err := m.load()
	if err != nil {
		return nil, err
	}
	if !tokenMatches(sess.Token, token) {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Current returns the persisted session, whoever owns it.
func (m *Manager) Current() (*Session, error) {
	sess, _, err := m.load()
	return sess, err
}

// Close stops the throttles the manager created.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.scoped {
		t.Close()
	}
	m.scoped = make(map[string]*throttle.Throttle)
	if m.ownsGlobal {
		m.global.Close()
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (m *Manager) load() (*Session, string, error) {
	raw, err := m.store.Get(SessionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrNoSession
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.Token == "" {
		m.logger.Warn("auth: discarding unreadable session record")
		return nil, "", ErrNoSession
	}
	return &sess, raw, nil
}

func (m *Manager) checkCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, m.sched.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		m.logger.Debug("auth: totp validation failed", "error", err)
		return false
	}
	return ok
}

func (m *Manager) logAudit(eventType, username, errMsg string, metadata map[string]string) {
	if m.audit == nil {
		return
	}
	scope := ""
	if m.perAccount {
		scope = config.NormalizeUsername(username)
	}
	if err := m.audit.LogFailure("-", eventType, util.MaskIdentifier(scope), errMsg, metadata); err != nil {
		m.logger.Warn("auth: audit write failed", "event", eventType, "error", err)
	}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// checkPassword compares against a throwaway hash for unknown users so the
// response time does not reveal which usernames exist.
func checkPassword(hash, password string, known bool) bool {
	if !known || hash == "" {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sessionguard"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func tokenMatches(stored, given string) bool {
	if stored == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
