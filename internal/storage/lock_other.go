// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix && !windows

package storage

import "os"

// No OS file locking here; the in-process mutex still serialises callers.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
