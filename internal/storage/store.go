// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("storage: store is closed")

	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a string-keyed, string-valued persistent map.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes the keys. Missing keys are ignored.
	Delete(keys ...string) error

	// CompareAndSwap replaces the value of key with next only if its current
	// value equals old. A nil old means "key must be absent"; a nil next
	// deletes the key. It reports whether the swap happened.
	CompareAndSwap(key string, old, next *string) (bool, error)

	// Keys returns all keys with the given prefix, sorted.
	Keys(prefix string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// =============================================================================
// BACKENDS
// =============================================================================

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Backends lists the valid backend names.
func Backends() []string {
	return []string{BackendFile, BackendSQLite, BackendMemory}
}

// Open creates a store for the named backend. path is ignored for memory.
// A leading "~/" in path is expanded to the user's home directory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		p, err := expandHome(path)
		if err != nil {
			return nil, err
		}
		return NewFileStore(p)
	case BackendSQLite:
		p, err := expandHome(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Ptr returns a pointer to s, for CompareAndSwap arguments.
func Ptr(s string) *string {
	return &s
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", errors.New("storage: path required")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
