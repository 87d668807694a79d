// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PALETTE
// =============================================================================

// Accent - Titles, focused fields, the session indicator
var Accent = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Success - Signed in, attempts available
var Success = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#22C55E"}

// Warning - Idle warning, last attempt
var Warning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}

// Danger - Lockout, expired session, errors
var Danger = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}

// Surface - Status bar background
var Surface = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

// Backdrop - Fill behind centred overlays
var Backdrop = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#11111B"}

// Border - Box borders
var Border = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}

// Text colors
var (
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// IndicatorSet holds ASCII markers shown next to coloured status text, so
// state is readable without colour.
type IndicatorSet struct {
	OK      string
	Error   string
	Warning string
	Info    string
	Locked  string
}

// Indicators are the markers in use.
var Indicators = IndicatorSet{
	OK:      "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Locked:  "[#]",
}

// =============================================================================
// RENDER HELPERS
// =============================================================================

// RenderSuccess renders message in bold green with the OK marker.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(Success).Bold(true).
		Render(Indicators.OK + " " + message)
}

// RenderError renders message in bold red with the error marker.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(Danger).Bold(true).
		Render(Indicators.Error + " " + message)
}

// RenderWarning renders message in bold amber with the warning marker.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(Warning).Bold(true).
		Render(Indicators.Warning + " " + message)
}

// RenderLocked renders a lockout notice.
func RenderLocked(message string) string {
	return lipgloss.NewStyle().Foreground(Danger).Bold(true).
		Render(Indicators.Locked + " " + message)
}

// RenderInfo renders message with the info marker.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(Accent).
		Render(Indicators.Info + " " + message)
}

// =============================================================================
// SHARED STYLES
// =============================================================================

// Title is the heading style for screens and overlays.
var Title = lipgloss.NewStyle().Foreground(Accent).Bold(true)

// Label precedes input fields.
var Label = lipgloss.NewStyle().Foreground(TextSecondary).Width(10)

// Hint is used for key help and footnotes.
var Hint = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

// Box frames a dialog.
func Box(border lipgloss.TerminalColor, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 3).
		Width(width)
}

// Center places content in the middle of a width x height area. Zero sizes
// fall back to 80x24.
func Center(width, height int, content string) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
