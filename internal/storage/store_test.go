// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BACKEND CONFORMANCE
// =============================================================================

// backends returns a constructor for every Store implementation.
func backends(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store {
			return NewMemoryStore()
		},
		"file": func() Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			_, err := s.Get("loginAttempts")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set("loginAttempts", `{"count":1,"timestamp":1}`))
			v, err := s.Get("loginAttempts")
			require.NoError(t, err)
			assert.Equal(t, `{"count":1,"timestamp":1}`, v)

			require.NoError(t, s.Set("loginAttempts", `{"count":2,"timestamp":2}`))
			v, _ = s.Get("loginAttempts")
			assert.Equal(t, `{"count":2,"timestamp":2}`, v)

			require.NoError(t, s.Set("loginLockout", "x"))
			require.NoError(t, s.Delete("loginAttempts", "loginLockout", "missing"))

			_, err = s.Get("loginAttempts")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get("loginLockout")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			// Insert only when absent
			ok, err := s.CompareAndSwap("k", nil, Ptr("a"))
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.CompareAndSwap("k", nil, Ptr("b"))
			require.NoError(t, err)
			assert.False(t, ok, "insert must fail when key exists")

			// Update only on match
			ok, err = s.CompareAndSwap("k", Ptr("wrong"), Ptr("b"))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.CompareAndSwap("k", Ptr("a"), Ptr("b"))
			require.NoError(t, err)
			assert.True(t, ok)
			v, _ := s.Get("k")
			assert.Equal(t, "b", v)

			// Delete on match
			ok, err = s.CompareAndSwap("k", Ptr("b"), nil)
			require.NoError(t, err)
			assert.True(t, ok)
			_, err = s.Get("k")
			assert.ErrorIs(t, err, ErrNotFound)

			// Absent-to-absent succeeds, present-to-absent with nil old fails
			ok, err = s.CompareAndSwap("k", nil, nil)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_Keys(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			require.NoError(t, s.Set("loginLockout:bob", "1"))
			require.NoError(t, s.Set("loginLockout:alice", "1"))
			require.NoError(t, s.Set("loginAttempts", "1"))

			keys, err := s.Keys("loginLockout")
			require.NoError(t, err)
			assert.Equal(t, []string{"loginLockout:alice", "loginLockout:bob"}, keys)

			all, err := s.Keys("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_ClosedReturnsErrClosed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			require.NoError(t, s.Close())

			_, err := s.Get("k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.Set("k", "v"), ErrClosed)
		})
	}
}

// Concurrent increments through CompareAndSwap must not lose updates.
func TestStore_ConcurrentCASIncrement(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			const workers = 8
			const perWorker = 10

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						for {
							cur, err := s.Get("n")
							var old *string
							n := 0
							if err == nil {
								old = Ptr(cur)
								n = len(cur)
							} else if !errors.Is(err, ErrNotFound) {
								t.Errorf("Get: %v", err)
								return
							}
							next := Ptr(strings.Repeat("x", n+1))
							ok, err := s.CompareAndSwap("n", old, next)
							if err != nil {
								t.Errorf("CompareAndSwap: %v", err)
								return
							}
							if ok {
								break
							}
						}
					}
				}()
			}
			wg.Wait()

			v, err := s.Get("n")
			require.NoError(t, err)
			assert.Equal(t, workers*perWorker, len(v))
		})
	}
}

// =============================================================================
// FILE STORE SPECIFICS
// =============================================================================

func TestFileStore_CorruptFileReadsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Get("loginAttempts")
	assert.ErrorIs(t, err, ErrNotFound)

	// The next write replaces the corrupt file
	require.NoError(t, s.Set("loginAttempts", "v"))
	v, err := s.Get("loginAttempts")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	a, err := NewFileStore(path)
	require.NoError(t, err)
	b, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, a.Set("loginLockout", "locked"))
	v, err := b.Get("loginLockout")
	require.NoError(t, err)
	assert.Equal(t, "locked", v)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(BackendFile, filepath.Join(dir, "s.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(BackendSQLite, filepath.Join(dir, "s.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open("redis", "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(BackendFile, "")
	assert.Error(t, err)
}
