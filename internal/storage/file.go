// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/sessionguard/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps every key in one JSON object on disk.
//
// Each operation re-reads the file under an exclusive OS lock on a sibling
// ".lock" file, so several processes (a TUI and a CLI, say) can share one
// store and CompareAndSwap is atomic across them. Writes are atomic renames.
// An unreadable or malformed file reads as empty and is replaced on the next
// write.
type FileStore struct {
	path     string
	lockPath string

	mu     sync.Mutex
	closed bool
}

// NewFileStore returns a FileStore backed by path. The parent directory is
// created if needed; the file itself is created on first write.
func NewFileStore(path string) (*FileStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: abs, lockPath: abs + ".lock"}, nil
}

// Path returns the absolute path of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	var (
		v  string
		ok bool
	)
	err := s.withLock(func() error {
		data := s.readLocked()
		v, ok = data[key]
		return nil
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(key, value string) error {
	return s.mutate(func(data map[string]string) bool {
		if cur, ok := data[key]; ok && cur == value {
			return false
		}
		data[key] = value
		return true
	})
}

func (s *FileStore) Delete(keys ...string) error {
	return s.mutate(func(data map[string]string) bool {
		changed := false
		for _, k := range keys {
			if _, ok := data[k]; ok {
				delete(data, k)
				changed = true
			}
		}
		return changed
	})
}

func (s *FileStore) CompareAndSwap(key string, old, next *string) (bool, error) {
	swapped := false
	err := s.mutate(func(data map[string]string) bool {
		swapped = swapInMap(data, key, old, next)
		return swapped
	})
	return swapped, err
}

func (s *FileStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.withLock(func() error {
		keys = keysWithPrefix(s.readLocked(), prefix)
		return nil
	})
	return keys, err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// mutate runs fn on the current contents and writes them back if fn
// reports a change.
func (s *FileStore) mutate(fn func(map[string]string) bool) error {
	return s.withLock(func() error {
		data := s.readLocked()
		if !fn(data) {
			return nil
		}
		return s.writeLocked(data)
	})
}

// withLock holds both the in-process mutex and the cross-process file lock.
func (s *FileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lf.Close()

	if err := lockFile(lf); err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	defer unlockFile(lf)

	return fn()
}

func (s *FileStore) readLocked() map[string]string {
	data := make(map[string]string)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("store unreadable, treating as empty", "path", s.path, "error", err)
		}
		return data
	}
	if len(raw) == 0 {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("store corrupt, treating as empty", "path", s.path, "error", err)
		return make(map[string]string)
	}
	return data
}

func (s *FileStore) writeLocked(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}
