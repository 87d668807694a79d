// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/ui/styles"
)

// View renders the current screen.
func (m *Model) View() string {
	if m.screen == ScreenConsole {
		if m.overlay.IsVisible() {
			return m.overlay.View()
		}
		return m.viewConsole()
	}
	return m.viewLogin()
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func (m *Model) viewLogin() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("sessionguard"))
	b.WriteString("\n\n")

	if m.notice != "" {
		b.WriteString(styles.RenderInfo(m.notice))
		b.WriteString("\n\n")
	}

	labels := []string{"Username", "Password", "Code"}
	for i := 0; i < m.visibleFields(); i++ {
		b.WriteString(styles.Label.Render(labels[i]))
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	if m.submitting {
		b.WriteString("\n")
		b.WriteString(styles.Hint.Render("Checking..."))
		b.WriteString("\n")
	}
	if m.loginErr != "" {
		b.WriteString("\n")
		b.WriteString(styles.RenderError(m.loginErr))
		b.WriteString("\n")
	}
	if banner := m.banner.View(); banner != "" {
		b.WriteString("\n")
		b.WriteString(banner)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.LoginHelp()))

	box := styles.Box(styles.Border, boxWidth(m.width)).Render(b.String())
	return styles.Center(m.width, m.height, box)
}

// =============================================================================
// CONSOLE SCREEN
// =============================================================================

func (m *Model) viewConsole() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Console"))
	b.WriteString("\n\n")

	if m.session != nil {
		b.WriteString(styles.RenderSuccess("Signed in as " + m.session.Username))
		b.WriteString("\n")
		b.WriteString(styles.Hint.Render(fmt.Sprintf("session %s, since %s",
			m.session.ID, m.session.AuthenticatedAt.Local().Format("15:04:05"))))
		b.WriteString("\n\n")
	}

	if m.monitor != nil {
		cfg := m.monitor.Config()
		b.WriteString(fmt.Sprintf("Idle timeout %s, with a warning %s before.\n",
			session.FormatDuration(cfg.Timeout), session.FormatDuration(cfg.WarningTime)))
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ConsoleHelp()))

	body := styles.Box(styles.Accent, boxWidth(m.width)).Render(b.String())

	height := m.height - lipgloss.Height(m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Center(m.width, height, body),
		m.statusBar.View(),
	)
}

func boxWidth(termWidth int) int {
	w := termWidth - 8
	if w < 40 {
		return 40
	}
	if w > 64 {
		return 64
	}
	return w
}
