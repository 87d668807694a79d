// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key-value surface that login
// throttle and session state are persisted to.
//
// Values are strings keyed by strings, mirroring a browser profile's local
// storage. Every backend supports CompareAndSwap so read-modify-write
// sequences stay correct when several processes share one store.
//
// # Key Types
//
//   - Store: the persistence interface
//   - MemoryStore: process-local map, used in tests and --ephemeral runs
//   - FileStore: single JSON file, atomic writes, OS file lock around mutations
//   - SQLiteStore: pure Go SQLite table (modernc.org/sqlite)
//   - Watcher: fsnotify-based change notification for file-backed stores
//
// # Usage
//
//	store, err := storage.Open(storage.BackendFile, "~/.sessionguard/state.json")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	ok, err := store.CompareAndSwap("loginAttempts", old, next)
package storage
