// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the reusable widgets of the sessionguard TUI.
//
// # Components
//
//   - TimeoutOverlay: idle warning countdown and expired notice
//   - LockoutBanner: attempts remaining and lockout countdown bar
//   - StatusBar: signed-in user and time to idle logout
//
// Components hold no timers. The app feeds them snapshots and a tick.
package components
