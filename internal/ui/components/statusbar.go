// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/ui/styles"
	"github.com/jeranaias/sessionguard/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar is the bottom line of the console: who is signed in and how long
// until the idle logout.
type StatusBar struct {
	width  int
	user   string
	status session.Status
}

// NewStatusBar creates a status bar.
func NewStatusBar() StatusBar {
	return StatusBar{}
}

// SetWidth sets the bar width.
func (s *StatusBar) SetWidth(width int) { s.width = width }

// SetUser sets the signed-in username.
func (s *StatusBar) SetUser(user string) { s.user = user }

// SetSession loads a monitor snapshot.
func (s *StatusBar) SetSession(st session.Status) { s.status = st }

// View renders the bar to exactly the configured width.
func (s StatusBar) View() string {
	width := s.width
	if width <= 0 {
		width = 80
	}

	left := " sessionguard"
	if s.user != "" {
		left += " | " + s.user
	}

	var right string
	switch s.status.State {
	case session.StateActive:
		right = "idle logout in " + session.FormatDuration(s.status.Remaining) + " "
	case session.StateWarningIssued:
		right = styles.Indicators.Warning + " logout in " + session.FormatDuration(s.status.Remaining) + " "
	default:
		right = s.status.State.String() + " "
	}

	gap := width - util.StringWidth(left) - util.StringWidth(right)
	var line string
	if gap < 1 {
		line = util.TruncateWidth(left+" "+right, width)
	} else {
		line = left + strings.Repeat(" ", gap) + right
	}
	line = util.PadRight(line, width)

	fg := styles.TextSecondary
	if s.status.State == session.StateWarningIssued {
		fg = styles.Warning
	}
	return lipgloss.NewStyle().Background(styles.Surface).Foreground(fg).Render(line)
}
