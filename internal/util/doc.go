// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across sessionguard.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe write (temp file, fsync, rename)
//
// Display:
//   - TruncateWidth, PadRight, StringWidth: terminal-cell aware string sizing
//
// Privacy:
//   - MaskIdentifier: stable hash for account names and tokens in logs
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	label := util.TruncateWidth(username, 20)
//	logger.Info("locked", "scope", util.MaskIdentifier(scope))
package util
