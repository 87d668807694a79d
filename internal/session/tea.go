// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg repaints countdowns once a second. It carries no state; the
// monitor's own timers drive the transitions.
type TickMsg struct {
	Time time.Time
}

// WarningMsg is sent when the warning timer fires.
type WarningMsg struct {
	Remaining time.Duration
}

// ExpiredMsg is sent after forced logout, when the UI must return to login.
type ExpiredMsg struct{}

// TickCmd returns a command that ticks once a second.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// SendWarning adapts a program's Send into a warning callback for NewMonitor.
func SendWarning(send func(tea.Msg)) func(time.Duration) {
	return func(remaining time.Duration) {
		send(WarningMsg{Remaining: remaining})
	}
}

// SendExpired adapts a program's Send into a redirect function for WithRedirect.
func SendExpired(send func(tea.Msg)) func() {
	return func() {
		send(ExpiredMsg{})
	}
}

// ActivityFromMsg maps terminal input to an activity source. A resize is
// treated as the terminal regaining visibility.
func ActivityFromMsg(msg tea.Msg) (ActivitySource, bool) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return ActivityKeyPress, true
	case tea.MouseMsg:
		switch msg.Type {
		case tea.MouseLeft, tea.MouseRight, tea.MouseMiddle:
			return ActivityPointerDown, true
		case tea.MouseRelease:
			return ActivityClick, true
		case tea.MouseMotion:
			return ActivityPointerMove, true
		case tea.MouseWheelUp, tea.MouseWheelDown:
			return ActivityScroll, true
		}
	case tea.WindowSizeMsg:
		return ActivityVisible, true
	}
	return 0, false
}
