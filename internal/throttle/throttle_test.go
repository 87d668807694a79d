// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package throttle

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/storage"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestThrottle(t *testing.T, opts ...Option) (*Throttle, *storage.MemoryStore, *clock.Fake) {
	t.Helper()
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)
	th := New(store, append([]Option{WithScheduler(fake)}, opts...)...)
	t.Cleanup(th.Close)
	return th, store, fake
}

// =============================================================================
// LOCKOUT ESCALATION
// =============================================================================

func TestThrottle_LocksOnThirdFailure(t *testing.T) {
	th, _, fake := newTestThrottle(t)

	assert.Equal(t, 1, th.IncrementAttempts())
	_, locked := th.IsLockedOut()
	assert.False(t, locked)

	assert.Equal(t, 2, th.IncrementAttempts())
	_, locked = th.IsLockedOut()
	assert.False(t, locked)

	assert.Equal(t, 3, th.IncrementAttempts())
	lk, locked := th.IsLockedOut()
	require.True(t, locked)
	assert.True(t, lk.Locked)
	assert.InDelta(t, DefaultLockoutDuration.Seconds(), lk.Until.Sub(fake.Now()).Seconds(), 1)
	assert.Equal(t, DefaultLockoutDuration, th.RemainingLockoutTime())
	assert.Equal(t, 0, th.RemainingAttempts())
}

func TestThrottle_PersistedShape(t *testing.T) {
	th, store, fake := newTestThrottle(t)
	th.IncrementAttempts()

	raw, err := store.Get(AttemptsKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1,"timestamp":`+itoa(fake.Now().UnixMilli())+`}`, raw)

	th.IncrementAttempts()
	th.IncrementAttempts()
	raw, err = store.Get(LockoutKey)
	require.NoError(t, err)
	until := fake.Now().Add(DefaultLockoutDuration).UnixMilli()
	assert.JSONEq(t, `{"locked":true,"until":`+itoa(until)+`}`, raw)
}

func TestThrottle_RemainingLockoutTimeCountsDown(t *testing.T) {
	th, _, fake := newTestThrottle(t)
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}

	fake.Advance(45 * time.Second)
	assert.Equal(t, 15*time.Second, th.RemainingLockoutTime())
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestThrottle_ExpiryClearsState(t *testing.T) {
	th, store, _ := newTestThrottle(t)

	past := epoch.Add(-time.Second).UnixMilli()
	require.NoError(t, store.Set(AttemptsKey, `{"count":3,"timestamp":`+itoa(past)+`}`))
	require.NoError(t, store.Set(LockoutKey, `{"locked":true,"until":`+itoa(past)+`}`))

	_, locked := th.IsLockedOut()
	assert.False(t, locked)
	assert.Equal(t, Attempts{}, th.GetAttempts())

	_, err := store.Get(LockoutKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Repeated calls stay unlocked
	_, locked = th.IsLockedOut()
	assert.False(t, locked)
}

func TestThrottle_ExpiresExactlyAtUntil(t *testing.T) {
	th, _, fake := newTestThrottle(t)
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}

	fake.Set(epoch.Add(DefaultLockoutDuration - time.Millisecond))
	_, locked := th.IsLockedOut()
	assert.True(t, locked)

	fake.Set(epoch.Add(DefaultLockoutDuration))
	_, locked = th.IsLockedOut()
	assert.False(t, locked)
	assert.Equal(t, 0, th.GetAttempts().Count)
}

func TestThrottle_ConcurrentExpiryChecks(t *testing.T) {
	th, _, fake := newTestThrottle(t)
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}
	fake.Set(epoch.Add(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, locked := th.IsLockedOut()
			assert.False(t, locked)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, th.RemainingAttempts())
}

// =============================================================================
// CORRUPTION AND BOUNDS
// =============================================================================

func TestThrottle_RemainingAttemptsBounded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"over threshold", `{"count":10,"timestamp":1}`, 0},
		{"at threshold", `{"count":3,"timestamp":1}`, 0},
		{"one failure", `{"count":1,"timestamp":1}`, 2},
		{"negative", `{"count":-5,"timestamp":1}`, 3},
		{"malformed", `{count:`, 3},
		{"wrong type", `{"count":"two"}`, 3},
		{"null", `null`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, store, _ := newTestThrottle(t)
			require.NoError(t, store.Set(AttemptsKey, tt.raw))
			got := th.RemainingAttempts()
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, DefaultMaxAttempts)
		})
	}
}

func TestThrottle_CorruptAttemptsReadAsEmpty(t *testing.T) {
	th, store, _ := newTestThrottle(t)
	require.NoError(t, store.Set(AttemptsKey, "not json"))

	assert.Equal(t, Attempts{}, th.GetAttempts())

	// The next failure overwrites the corrupt record
	assert.Equal(t, 1, th.IncrementAttempts())
	assert.Equal(t, 1, th.GetAttempts().Count)
}

func TestThrottle_HugeCountStillLocks(t *testing.T) {
	th, store, _ := newTestThrottle(t)
	require.NoError(t, store.Set(AttemptsKey, `{"count":9223372036854775807,"timestamp":null}`))

	assert.Equal(t, DefaultMaxAttempts+1, th.IncrementAttempts())
	_, locked := th.IsLockedOut()
	assert.True(t, locked)
	assert.Equal(t, 0, th.RemainingAttempts())
}

func TestThrottle_CorruptOrUnflaggedLockoutIsUnlocked(t *testing.T) {
	for _, raw := range []string{"garbage", `{"locked":false,"until":99999999999999}`} {
		th, store, _ := newTestThrottle(t)
		require.NoError(t, store.Set(LockoutKey, raw))

		_, locked := th.IsLockedOut()
		assert.False(t, locked, raw)
		assert.Equal(t, time.Duration(0), th.RemainingLockoutTime())
	}
}

// =============================================================================
// RESET
// =============================================================================

func TestThrottle_ResetIsIdempotent(t *testing.T) {
	th, _, _ := newTestThrottle(t)
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}

	th.ResetAttempts()
	th.ResetAttempts()

	assert.Equal(t, Attempts{}, th.GetAttempts())
	_, locked := th.IsLockedOut()
	assert.False(t, locked)
	assert.Equal(t, DefaultMaxAttempts, th.RemainingAttempts())
}

// =============================================================================
// ATOMIC CHECK-AND-INCREMENT
// =============================================================================

func TestThrottle_RecordFailedAttempt(t *testing.T) {
	th, _, fake := newTestThrottle(t)

	r := th.RecordFailedAttempt()
	assert.Equal(t, Result{Count: 1, RemainingAttempts: 2}, r)

	r = th.RecordFailedAttempt()
	assert.False(t, r.Locked)
	assert.Equal(t, 1, r.RemainingAttempts)

	r = th.RecordFailedAttempt()
	assert.True(t, r.Locked)
	assert.Equal(t, 0, r.RemainingAttempts)
	assert.True(t, r.Until.Equal(fake.Now().Add(DefaultLockoutDuration)))

	// While locked the count does not move and the lockout is not extended
	fake.Advance(10 * time.Second)
	r = th.RecordFailedAttempt()
	assert.True(t, r.Locked)
	assert.Equal(t, 3, r.Count)
	assert.True(t, r.Until.Equal(epoch.Add(DefaultLockoutDuration)))
	assert.Equal(t, 3, th.GetAttempts().Count)

	// After expiry counting restarts from zero
	fake.Advance(time.Minute)
	r = th.RecordFailedAttempt()
	assert.False(t, r.Locked)
	assert.Equal(t, 1, r.Count)
}

func TestThrottle_IncrementWhileLockedExtends(t *testing.T) {
	th, _, fake := newTestThrottle(t)
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}
	fake.Advance(30 * time.Second)

	assert.Equal(t, 4, th.IncrementAttempts())
	lk, locked := th.IsLockedOut()
	require.True(t, locked)
	assert.True(t, lk.Until.Equal(fake.Now().Add(DefaultLockoutDuration)))
}

// Two throttles sharing one file store stand in for two processes.
func TestThrottle_SharedStoreDoesNotLoseIncrements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	const workers = 4
	const perWorker = 10

	throttles := make([]*Throttle, workers)
	for i := range throttles {
		store, err := storage.NewFileStore(path)
		require.NoError(t, err)
		throttles[i] = New(store, WithMaxAttempts(1000))
	}

	var wg sync.WaitGroup
	for _, th := range throttles {
		wg.Add(1)
		go func(th *Throttle) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				th.RecordFailedAttempt()
			}
		}(th)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, throttles[0].GetAttempts().Count)
}

// =============================================================================
// OPTIONS AND SCOPE
// =============================================================================

func TestThrottle_Options(t *testing.T) {
	th, _, fake := newTestThrottle(t, WithMaxAttempts(5), WithLockoutDuration(2*time.Minute))

	for i := 0; i < 4; i++ {
		assert.False(t, th.RecordFailedAttempt().Locked)
	}
	r := th.RecordFailedAttempt()
	require.True(t, r.Locked)
	assert.True(t, r.Until.Equal(fake.Now().Add(2*time.Minute)))

	// Invalid values keep defaults
	d, _, _ := newTestThrottle(t, WithMaxAttempts(0), WithLockoutDuration(-1))
	assert.Equal(t, DefaultMaxAttempts, d.MaxAttempts())
	assert.Equal(t, DefaultLockoutDuration, d.LockoutDuration())
}

func TestThrottle_ScopesAreIndependent(t *testing.T) {
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)
	alice := New(store, WithScheduler(fake), WithScope("alice"))
	bob := New(store, WithScheduler(fake), WithScope("bob"))
	global := New(store, WithScheduler(fake))

	for i := 0; i < 3; i++ {
		alice.IncrementAttempts()
	}

	_, locked := alice.IsLockedOut()
	assert.True(t, locked)
	_, locked = bob.IsLockedOut()
	assert.False(t, locked)
	_, locked = global.IsLockedOut()
	assert.False(t, locked)

	_, err := store.Get("loginLockout:alice")
	assert.NoError(t, err)
}

// =============================================================================
// PUSH NOTIFICATIONS
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) on(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, tr.Event)
}

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestThrottle_OnChangeSequence(t *testing.T) {
	rec := &recorder{}
	th, _, fake := newTestThrottle(t, WithOnChange(rec.on))

	for i := 0; i < 3; i++ {
		th.RecordFailedAttempt()
	}
	assert.Equal(t, []Event{EventAttemptFailed, EventAttemptFailed, EventAttemptFailed, EventLocked}, rec.got())

	// Expiry is pushed by the scheduled check, without any query
	fake.Advance(DefaultLockoutDuration)
	assert.Equal(t, EventUnlocked, rec.got()[4])
	assert.Equal(t, 0, fake.Pending())

	th.ResetAttempts()
	assert.Len(t, rec.got(), 5, "reset of empty state is silent")
}

func TestThrottle_OnChangeMayReenter(t *testing.T) {
	var th *Throttle
	var seen int
	th, _, _ = newTestThrottle(t, WithOnChange(func(tr Transition) {
		seen = th.GetAttempts().Count
	}))

	th.IncrementAttempts()
	assert.Equal(t, 1, seen)
}

func TestThrottle_RefreshReportsExternalChange(t *testing.T) {
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)
	rec := &recorder{}

	watcher := New(store, WithScheduler(fake), WithOnChange(rec.on))
	defer watcher.Close()
	other := New(store, WithScheduler(fake))

	watcher.Refresh()
	assert.Empty(t, rec.got())

	other.IncrementAttempts()
	watcher.Refresh()
	assert.Equal(t, []Event{EventSynced}, rec.got())

	watcher.Refresh()
	assert.Len(t, rec.got(), 1)

	// A lockout set elsewhere arms the expiry timer here
	other.IncrementAttempts()
	other.IncrementAttempts()
	watcher.Refresh()
	require.Len(t, rec.got(), 2)

	fake.Advance(DefaultLockoutDuration)
	assert.Equal(t, EventUnlocked, rec.got()[2])
}

func TestThrottle_CloseStopsExpiryTimer(t *testing.T) {
	rec := &recorder{}
	th, _, fake := newTestThrottle(t, WithOnChange(rec.on))
	for i := 0; i < 3; i++ {
		th.IncrementAttempts()
	}
	require.Equal(t, 1, fake.Pending())

	th.Close()
	assert.Equal(t, 0, fake.Pending())
}

// =============================================================================
// AUDIT AND OPERATOR COMMANDS
// =============================================================================

func TestThrottle_AuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	al, err := audit.New(path)
	require.NoError(t, err)
	defer al.Close()

	th, _, _ := newTestThrottle(t, WithAuditLogger(al), WithScope("alice"))
	for i := 0; i < 3; i++ {
		th.RecordFailedAttempt()
	}
	assert.True(t, th.Unlock())
	assert.False(t, th.Unlock())
	th.RecordSuccess()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Equal(t, 3, strings.Count(content, audit.EventLoginFailed))
	assert.Equal(t, 1, strings.Count(content, audit.EventLoginLockout))
	assert.Equal(t, 1, strings.Count(content, audit.EventLoginUnlock))
	assert.Contains(t, content, "method=manual")
	assert.Contains(t, content, audit.EventLoginSuccess)
	assert.NotContains(t, content, "alice")
}

func TestThrottle_Status(t *testing.T) {
	th, _, fake := newTestThrottle(t)
	th.IncrementAttempts()

	st := th.Status()
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 2, st.RemainingAttempts)
	assert.False(t, st.Locked)
	assert.True(t, st.LastAttempt.Equal(fake.Now()))

	th.IncrementAttempts()
	th.IncrementAttempts()
	fake.Advance(20 * time.Second)
	st = th.Status()
	assert.True(t, st.Locked)
	assert.Equal(t, 40*time.Second, st.Remaining)
	assert.Equal(t, 0, st.RemainingAttempts)
}

func TestList(t *testing.T) {
	store := storage.NewMemoryStore()
	fake := clock.NewFake(epoch)

	New(store, WithScheduler(fake)).IncrementAttempts()
	bob := New(store, WithScheduler(fake), WithScope("bob"))
	for i := 0; i < 3; i++ {
		bob.IncrementAttempts()
	}

	entries, err := List(store, fake.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "", entries[0].Scope)
	assert.Equal(t, 1, entries[0].Count)
	assert.False(t, entries[0].Locked)

	assert.Equal(t, "bob", entries[1].Scope)
	assert.True(t, entries[1].Locked)
	assert.NotContains(t, entries[1].Identifier, "bob")

	// Expired lockouts are listed as unlocked
	entries, err = List(store, fake.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, entries[1].Locked)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
