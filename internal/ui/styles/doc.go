// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the colour palette and shared Lip Gloss styles for
// the sessionguard TUI.
//
// All colours are lipgloss.AdaptiveColor values so the UI follows the
// terminal's light or dark background. Status text always carries an ASCII
// indicator alongside its colour.
package styles
