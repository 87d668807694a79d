// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionguard/internal/ui/styles"
)

// =============================================================================
// SESSION TIMEOUT OVERLAY
// =============================================================================

// TimeoutOverlay displays the idle warning with a live countdown, and the
// expired notice after a forced logout.
type TimeoutOverlay struct {
	visible  bool
	expired  bool
	deadline time.Time
	now      time.Time

	width  int
	height int
}

// ExtendMsg is emitted when the user dismisses the warning with a key.
type ExtendMsg struct{}

// NewTimeoutOverlay creates a hidden overlay.
func NewTimeoutOverlay() TimeoutOverlay {
	return TimeoutOverlay{}
}

// SetSize sets the overlay dimensions.
func (o *TimeoutOverlay) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// Show displays the warning counting down from remaining.
func (o *TimeoutOverlay) Show(now time.Time, remaining time.Duration) {
	o.visible = true
	o.expired = false
	o.now = now
	o.deadline = now.Add(remaining)
}

// ShowExpired switches to the expired notice.
func (o *TimeoutOverlay) ShowExpired() {
	o.visible = true
	o.expired = true
}

// Hide hides the overlay.
func (o *TimeoutOverlay) Hide() {
	o.visible = false
	o.expired = false
}

// Tick advances the countdown.
func (o *TimeoutOverlay) Tick(now time.Time) {
	o.now = now
}

// IsVisible returns whether the overlay is showing.
func (o TimeoutOverlay) IsVisible() bool { return o.visible }

// IsExpired returns whether the expired notice is showing.
func (o TimeoutOverlay) IsExpired() bool { return o.expired }

// Remaining returns the time left on the countdown, never negative.
func (o TimeoutOverlay) Remaining() time.Duration {
	r := o.deadline.Sub(o.now)
	if r < 0 {
		return 0
	}
	return r
}

// Update dismisses the warning on any key press.
func (o TimeoutOverlay) Update(msg tea.Msg) (TimeoutOverlay, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height
	case tea.KeyMsg:
		if o.visible && !o.expired {
			o.Hide()
			return o, func() tea.Msg { return ExtendMsg{} }
		}
	}
	return o, nil
}

// View renders the overlay, or "" when hidden.
func (o TimeoutOverlay) View() string {
	if !o.visible {
		return ""
	}
	if o.expired {
		return o.render(styles.Danger,
			styles.RenderError("Session Expired"),
			"You were signed out after a period of inactivity.",
			"Sign in again to continue.")
	}

	countdown := lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
		Render(formatCountdown(o.Remaining()))
	return o.render(styles.Warning,
		styles.RenderWarning("Session Timeout Warning"),
		"You will be signed out in "+countdown,
		"Press any key to stay signed in")
}

func (o TimeoutOverlay) render(border lipgloss.TerminalColor, title, body, hint string) string {
	maxWidth := o.width - 8
	if maxWidth < 40 {
		maxWidth = 40
	}
	if maxWidth > 60 {
		maxWidth = 60
	}

	body = lipgloss.NewStyle().Foreground(styles.TextPrimary).
		Width(maxWidth - 8).Align(lipgloss.Center).Render(body)
	content := lipgloss.JoinVertical(lipgloss.Center,
		title, "", body, "", styles.Hint.Render(hint))

	box := styles.Box(border, maxWidth).
		BorderStyle(lipgloss.DoubleBorder()).
		Align(lipgloss.Center).
		Render(content)
	return styles.Center(o.width, o.height, box)
}

// formatCountdown formats a duration as M:SS.
func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
