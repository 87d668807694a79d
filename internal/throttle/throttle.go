// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package throttle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the number of consecutive failures that triggers a lockout.
	DefaultMaxAttempts = 3

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 60 * time.Second

	// AttemptsKey is the store key of the attempt record for the global scope.
	AttemptsKey = "loginAttempts"

	// LockoutKey is the store key of the lockout record for the global scope.
	LockoutKey = "loginLockout"

	// maxSwapRetries bounds the compare-and-swap loop under contention.
	maxSwapRetries = 32
)

// KeysFor returns the attempt and lockout keys for scope. The empty scope is
// the global scope and uses the bare keys.
func KeysFor(scope string) (attemptsKey, lockoutKey string) {
	if scope == "" {
		return AttemptsKey, LockoutKey
	}
	return AttemptsKey + ":" + scope, LockoutKey + ":" + scope
}

// =============================================================================
// RECORDS
// =============================================================================

// Attempts is the consecutive failure count and the time of the last failure.
// LastAttempt is zero when no failure is recorded.
type Attempts struct {
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
}

// Lockout describes an active lockout.
type Lockout struct {
	Locked bool      `json:"locked"`
	Until  time.Time `json:"until"`
}

// Result is returned by RecordFailedAttempt.
type Result struct {
	Locked            bool      `json:"locked"`
	RemainingAttempts int       `json:"remaining_attempts"`
	Count             int       `json:"count"`
	Until             time.Time `json:"until,omitempty"`
}

// attemptRecord and lockoutRecord are the persisted JSON shapes. Times are
// Unix milliseconds.
type attemptRecord struct {
	Count     int    `json:"count"`
	Timestamp *int64 `json:"timestamp"`
}

type lockoutRecord struct {
	Locked bool  `json:"locked"`
	Until  int64 `json:"until"`
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Event identifies a throttle state transition.
type Event int

const (
	EventAttemptFailed Event = iota
	EventLocked
	EventUnlocked
	EventReset
	EventSynced
)

func (e Event) String() string {
	switch e {
	case EventAttemptFailed:
		return "attempt_failed"
	case EventLocked:
		return "locked"
	case EventUnlocked:
		return "unlocked"
	case EventReset:
		return "reset"
	case EventSynced:
		return "synced"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition is delivered to the OnChange callback.
type Transition struct {
	Event  Event
	Status Status
}

// Status is a point-in-time snapshot of the throttle.
type Status struct {
	Scope             string        `json:"scope"`
	Count             int           `json:"count"`
	LastAttempt       time.Time     `json:"last_attempt,omitempty"`
	Locked            bool          `json:"locked"`
	Until             time.Time     `json:"until,omitempty"`
	Remaining         time.Duration `json:"remaining"`
	RemainingAttempts int           `json:"remaining_attempts"`
	MaxAttempts       int           `json:"max_attempts"`
	LockoutDuration   time.Duration `json:"lockout_duration"`
}

// =============================================================================
// THROTTLE
// =============================================================================

// Throttle tracks consecutive failed logins in a Store and enforces a timed
// lockout once MaxAttempts is reached. Every Throttle sharing a Store and a
// scope, in this process or another, sees the same state.
//
// No method returns an error. Storage failures are logged and the throttle
// fails open to the empty state.
type Throttle struct {
	mu sync.Mutex

	store           storage.Store
	sched           clock.Scheduler
	maxAttempts     int
	lockoutDuration time.Duration
	scope           string
	attemptsKey     string
	lockoutKey      string

	audit    *audit.Logger
	logger   *slog.Logger
	onChange func(Transition)

	expiry   clock.Timer
	expiryAt time.Time
	closed   bool

	// last state delivered to onChange, for Refresh
	seenCount  int
	seenLocked bool
	seenUntil  time.Time
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithMaxAttempts sets the failure threshold. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(t *Throttle) {
		if n >= 1 {
			t.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets the lockout length. Non-positive values are ignored.
func WithLockoutDuration(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.lockoutDuration = d
		}
	}
}

// WithScope keys the records per identity instead of globally.
func WithScope(scope string) Option {
	return func(t *Throttle) {
		t.scope = scope
	}
}

// WithScheduler sets the time source and timer factory.
func WithScheduler(s clock.Scheduler) Option {
	return func(t *Throttle) {
		if s != nil {
			t.sched = s
		}
	}
}

// WithAuditLogger records lockout events in the audit trail.
func WithAuditLogger(l *audit.Logger) Option {
	return func(t *Throttle) {
		t.audit = l
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithOnChange registers a push notification callback. It is invoked outside
// the throttle's lock, so it may call back into the Throttle. Registering a
// callback also arms a timer that reports lockout expiry as EventUnlocked
// without waiting for a query.
func WithOnChange(fn func(Transition)) Option {
	return func(t *Throttle) {
		t.onChange = fn
	}
}

// New creates a Throttle over store.
func New(store storage.Store, opts ...Option) *Throttle {
	t := &Throttle{
		store:           store,
		sched:           clock.Real(),
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.attemptsKey, t.lockoutKey = KeysFor(t.scope)

	// Arm the expiry timer for a lockout left by a previous run.
	t.mu.Lock()
	st := t.statusLocked(t.sched.Now())
	t.markSeenLocked(st)
	t.mu.Unlock()

	return t
}

// Scope returns the identity scope, empty for global.
func (t *Throttle) Scope() string { return t.scope }

// MaxAttempts returns the configured threshold.
func (t *Throttle) MaxAttempts() int { return t.maxAttempts }

// LockoutDuration returns the configured lockout length.
func (t *Throttle) LockoutDuration() time.Duration { return t.lockoutDuration }

// =============================================================================
// QUERIES
// =============================================================================

// GetAttempts returns the persisted attempt record. Missing or malformed data
// reads as zero attempts.
func (t *Throttle) GetAttempts() Attempts {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, _ := t.readAttemptsLocked()
	return rec.toAttempts()
}

// IsLockedOut reports whether the scope is locked. An expired lockout is
// purged, together with the attempt record, and reported as not locked.
func (t *Throttle) IsLockedOut() (Lockout, bool) {
	t.mu.Lock()
	lk, locked, expired := t.checkLockLocked(t.sched.Now())
	var notes []Transition
	if expired {
		notes = t.noteLocked(EventUnlocked)
	}
	t.mu.Unlock()

	t.emit(notes)
	return lk, locked
}

// RemainingLockoutTime returns the time until the lockout ends, or zero.
func (t *Throttle) RemainingLockoutTime() time.Duration {
	lk, locked := t.IsLockedOut()
	if !locked {
		return 0
	}
	if d := lk.Until.Sub(t.sched.Now()); d > 0 {
		return d
	}
	return 0
}

// RemainingAttempts returns how many failures remain before a lockout, in
// [0, MaxAttempts].
func (t *Throttle) RemainingAttempts() int {
	return t.remaining(t.GetAttempts().Count)
}

// Status returns a snapshot for display. Like IsLockedOut it purges an
// expired lockout.
func (t *Throttle) Status() Status {
	t.mu.Lock()
	_, _, expired := t.checkLockLocked(t.sched.Now())
	st := t.statusLocked(t.sched.Now())
	var notes []Transition
	if expired {
		notes = t.noteLocked(EventUnlocked)
	}
	t.mu.Unlock()

	t.emit(notes)
	return st
}

// =============================================================================
// COMMANDS
// =============================================================================

// IncrementAttempts records one failure and returns the new count. Reaching
// MaxAttempts persists a lockout. It does not check for an existing lockout;
// use RecordFailedAttempt for an atomic check-and-increment.
func (t *Throttle) IncrementAttempts() int {
	t.mu.Lock()
	count, notes := t.incrementLocked(t.sched.Now())
	t.mu.Unlock()

	t.emit(notes)
	return count
}

// RecordFailedAttempt checks the lockout and, when not locked, records a
// failure, as one operation. While locked the count is left unchanged.
func (t *Throttle) RecordFailedAttempt() Result {
	t.mu.Lock()
	now := t.sched.Now()

	lk, locked, expired := t.checkLockLocked(now)
	var notes []Transition
	if expired {
		notes = t.noteLocked(EventUnlocked)
	}

	if locked {
		rec, _ := t.readAttemptsLocked()
		t.mu.Unlock()

		t.logAudit(audit.EventLoginFailed, false, "locked out", map[string]string{
			"reason": "locked",
			"until":  lk.Until.UTC().Format(time.RFC3339),
		})
		t.emit(notes)
		return Result{Locked: true, RemainingAttempts: 0, Count: rec.Count, Until: lk.Until}
	}

	count, more := t.incrementLocked(now)
	notes = append(notes, more...)
	res := Result{Count: count, RemainingAttempts: t.remaining(count)}
	if lk, ok, _ := t.checkLockLocked(now); ok {
		res.Locked = true
		res.Until = lk.Until
		res.RemainingAttempts = 0
	}
	t.mu.Unlock()

	t.emit(notes)
	return res
}

// ResetAttempts deletes the attempt and lockout records. Calling it again
// has no further effect.
func (t *Throttle) ResetAttempts() {
	t.mu.Lock()
	changed := t.resetLocked()
	var notes []Transition
	if changed {
		notes = t.noteLocked(EventReset)
	}
	t.mu.Unlock()

	t.emit(notes)
}

// RecordSuccess clears the throttle after a successful login.
func (t *Throttle) RecordSuccess() {
	t.ResetAttempts()
	t.logAudit(audit.EventLoginSuccess, true, "", nil)
}

// Unlock is an operator reset. It reports whether a lockout was active.
func (t *Throttle) Unlock() bool {
	t.mu.Lock()
	_, wasLocked, _ := t.checkLockLocked(t.sched.Now())
	changed := t.resetLocked()
	var notes []Transition
	if changed {
		notes = t.noteLocked(EventReset)
	}
	t.mu.Unlock()

	if wasLocked {
		t.logAudit(audit.EventLoginUnlock, true, "", map[string]string{"method": "manual"})
	}
	t.emit(notes)
	return wasLocked
}

// Refresh re-reads persisted state after an external change and reports
// EventSynced when it differs from what was last delivered.
func (t *Throttle) Refresh() {
	t.mu.Lock()
	now := t.sched.Now()
	_, _, expired := t.checkLockLocked(now)
	st := t.statusLocked(now)

	var notes []Transition
	switch {
	case expired:
		notes = t.noteLocked(EventUnlocked)
	case st.Count != t.seenCount || st.Locked != t.seenLocked || !st.Until.Equal(t.seenUntil):
		notes = t.noteLocked(EventSynced)
	}
	t.mu.Unlock()

	t.emit(notes)
}

// Close stops the expiry timer. The store is owned by the caller.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.stopExpiryLocked()
}

// =============================================================================
// INTERNALS
// =============================================================================

func (t *Throttle) remaining(count int) int {
	r := t.maxAttempts - count
	if r < 0 {
		return 0
	}
	if r > t.maxAttempts {
		return t.maxAttempts
	}
	return r
}

// readAttemptsLocked returns the parsed record and the raw stored value for
// compare-and-swap. Malformed or negative records parse as empty.
func (t *Throttle) readAttemptsLocked() (attemptRecord, *string) {
	raw, err := t.store.Get(t.attemptsKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Warn("throttle: failed to read attempts", "key", t.attemptsKey, "error", err)
		}
		return attemptRecord{}, nil
	}

	var rec attemptRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Count < 0 {
		t.logger.Warn("throttle: ignoring malformed attempts record", "key", t.attemptsKey)
		return attemptRecord{}, &raw
	}
	return rec, &raw
}

// readLockoutLocked returns the active lockout, if the record is well formed
// and flagged locked, plus the raw stored value.
func (t *Throttle) readLockoutLocked() (lockoutRecord, bool, *string) {
	raw, err := t.store.Get(t.lockoutKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Warn("throttle: failed to read lockout", "key", t.lockoutKey, "error", err)
		}
		return lockoutRecord{}, false, nil
	}

	var rec lockoutRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.logger.Warn("throttle: ignoring malformed lockout record", "key", t.lockoutKey)
		return lockoutRecord{}, false, &raw
	}
	return rec, rec.Locked, &raw
}

// checkLockLocked reads the lockout, purging it when expired. expired is true
// only for the caller whose purge removed the record.
func (t *Throttle) checkLockLocked(now time.Time) (lk Lockout, locked, expired bool) {
	rec, ok, raw := t.readLockoutLocked()
	if !ok {
		t.stopExpiryLocked()
		return Lockout{}, false, false
	}

	until := time.UnixMilli(rec.Until)
	if !now.Before(until) {
		swapped, err := t.store.CompareAndSwap(t.lockoutKey, raw, nil)
		if err != nil {
			t.logger.Warn("throttle: failed to clear expired lockout", "key", t.lockoutKey, "error", err)
		}
		if swapped {
			if err := t.store.Delete(t.attemptsKey); err != nil {
				t.logger.Warn("throttle: failed to clear attempts", "key", t.attemptsKey, "error", err)
			}
			t.logAudit(audit.EventLoginUnlock, true, "", map[string]string{"method": "expiry"})
		}
		t.stopExpiryLocked()
		return Lockout{}, false, swapped
	}

	t.armExpiryLocked(until)
	return Lockout{Locked: true, Until: until}, true, false
}

// incrementLocked adds one failure with compare-and-swap so that concurrent
// writers sharing the store never lose an increment.
func (t *Throttle) incrementLocked(now time.Time) (int, []Transition) {
	ts := now.UnixMilli()
	count := 0

	persisted := false
	for i := 0; i < maxSwapRetries; i++ {
		rec, raw := t.readAttemptsLocked()
		// Capped at the threshold so a tampered count cannot overflow.
		count = min(rec.Count, t.maxAttempts) + 1
		next, _ := json.Marshal(attemptRecord{Count: count, Timestamp: &ts})
		value := string(next)

		ok, err := t.store.CompareAndSwap(t.attemptsKey, raw, &value)
		if err != nil {
			t.logger.Warn("throttle: failed to persist attempts", "key", t.attemptsKey, "error", err)
			break
		}
		if ok {
			persisted = true
			break
		}
	}
	if !persisted {
		t.logger.Warn("throttle: attempt not persisted", "key", t.attemptsKey, "count", count)
	}

	notes := t.noteLocked(EventAttemptFailed)
	t.logAudit(audit.EventLoginFailed, false, "invalid credentials", map[string]string{
		"attempt": fmt.Sprintf("%d/%d", count, t.maxAttempts),
	})

	if count >= t.maxAttempts {
		until := now.Add(t.lockoutDuration)
		data, _ := json.Marshal(lockoutRecord{Locked: true, Until: until.UnixMilli()})
		if err := t.store.Set(t.lockoutKey, string(data)); err != nil {
			t.logger.Warn("throttle: failed to persist lockout", "key", t.lockoutKey, "error", err)
		}
		t.armExpiryLocked(time.UnixMilli(until.UnixMilli()))
		notes = append(notes, t.noteLocked(EventLocked)...)
		t.logAudit(audit.EventLoginLockout, true, "", map[string]string{
			"duration": t.lockoutDuration.String(),
			"until":    until.UTC().Format(time.RFC3339),
		})
	}
	return count, notes
}

// resetLocked deletes both records and reports whether either existed.
func (t *Throttle) resetLocked() bool {
	_, rawAttempts := t.readAttemptsLocked()
	_, _, rawLockout := t.readLockoutLocked()

	if err := t.store.Delete(t.attemptsKey, t.lockoutKey); err != nil {
		t.logger.Warn("throttle: failed to reset", "scope", util.MaskIdentifier(t.scope), "error", err)
	}
	t.stopExpiryLocked()
	return rawAttempts != nil || rawLockout != nil
}

// statusLocked reads current state without purging.
func (t *Throttle) statusLocked(now time.Time) Status {
	rec, _ := t.readAttemptsLocked()
	a := rec.toAttempts()
	st := Status{
		Scope:             t.scope,
		Count:             a.Count,
		LastAttempt:       a.LastAttempt,
		RemainingAttempts: t.remaining(a.Count),
		MaxAttempts:       t.maxAttempts,
		LockoutDuration:   t.lockoutDuration,
	}
	if lk, ok, _ := t.readLockoutLocked(); ok {
		until := time.UnixMilli(lk.Until)
		if now.Before(until) {
			st.Locked = true
			st.Until = until
			st.Remaining = until.Sub(now)
			st.RemainingAttempts = 0
			t.armExpiryLocked(until)
		}
	}
	return st
}

// noteLocked builds a notification carrying the current status, if anyone
// is listening.
func (t *Throttle) noteLocked(ev Event) []Transition {
	if t.onChange == nil {
		return nil
	}
	st := t.statusLocked(t.sched.Now())
	t.markSeenLocked(st)
	return []Transition{{Event: ev, Status: st}}
}

func (t *Throttle) markSeenLocked(st Status) {
	t.seenCount = st.Count
	t.seenLocked = st.Locked
	t.seenUntil = st.Until
}

func (t *Throttle) emit(notes []Transition) {
	for _, n := range notes {
		t.onChange(n)
	}
}

// armExpiryLocked schedules an expiry check at until. Only armed when a
// callback is registered.
func (t *Throttle) armExpiryLocked(until time.Time) {
	if t.onChange == nil || t.closed {
		return
	}
	if t.expiry != nil && t.expiryAt.Equal(until) {
		return
	}
	t.stopExpiryLocked()
	t.expiryAt = until
	t.expiry = t.sched.AfterFunc(until.Sub(t.sched.Now()), func() {
		t.IsLockedOut()
	})
}

func (t *Throttle) stopExpiryLocked() {
	if t.expiry != nil {
		t.expiry.Stop()
		t.expiry = nil
		t.expiryAt = time.Time{}
	}
}

func (t *Throttle) logAudit(eventType string, success bool, errMsg string, metadata map[string]string) {
	if t.audit == nil {
		return
	}
	scope := util.MaskIdentifier(t.scope)
	var err error
	if success {
		err = t.audit.LogEvent("-", eventType, scope, metadata)
	} else {
		err = t.audit.LogFailure("-", eventType, scope, errMsg, metadata)
	}
	if err != nil {
		t.logger.Warn("throttle: audit write failed", "event", eventType, "error", err)
	}
}

func (r attemptRecord) toAttempts() Attempts {
	a := Attempts{Count: r.Count}
	if r.Timestamp != nil && r.Count > 0 {
		a.LastAttempt = time.UnixMilli(*r.Timestamp)
	}
	return a
}

// =============================================================================
// LISTING
// =============================================================================

// Entry describes the persisted throttle state of one scope.
type Entry struct {
	Scope       string    `json:"scope"`
	Identifier  string    `json:"identifier"` // Masked scope
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	Locked      bool      `json:"locked"`
	Until       time.Time `json:"until,omitempty"`
}

// List returns every scope with an attempt or lockout record in store,
// sorted by scope. Expired lockouts are reported as unlocked but not purged.
func List(store storage.Store, now time.Time) ([]Entry, error) {
	byScope := make(map[string]*Entry)
	get := func(scope string) *Entry {
		e, ok := byScope[scope]
		if !ok {
			e = &Entry{Scope: scope, Identifier: util.MaskIdentifier(scope)}
			byScope[scope] = e
		}
		return e
	}

	for _, base := range []string{AttemptsKey, LockoutKey} {
		keys, err := store.Keys(base)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", base, err)
		}
		for _, key := range keys {
			scope, ok := scopeOf(key, base)
			if !ok {
				continue
			}
			raw, err := store.Get(key)
			if err != nil {
				continue
			}
			e := get(scope)
			if base == AttemptsKey {
				var rec attemptRecord
				if json.Unmarshal([]byte(raw), &rec) == nil && rec.Count > 0 {
					a := rec.toAttempts()
					e.Count, e.LastAttempt = a.Count, a.LastAttempt
				}
				continue
			}
			var rec lockoutRecord
			if json.Unmarshal([]byte(raw), &rec) == nil && rec.Locked {
				until := time.UnixMilli(rec.Until)
				if now.Before(until) {
					e.Locked, e.Until = true, until
				}
			}
		}
	}

	entries := make([]Entry, 0, len(byScope))
	for _, e := range byScope {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Scope < entries[j].Scope })
	return entries, nil
}

func scopeOf(key, base string) (string, bool) {
	if key == base {
		return "", true
	}
	rest, ok := strings.CutPrefix(key, base+":")
	return rest, ok && rest != ""
}
