// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/session"
)

// Options configures Run.
type Options struct {
	Session   session.Config
	Mouse     bool
	AltScreen bool
	Audit     *audit.Logger
	Logger    *slog.Logger
}

// Run starts the TUI and blocks until it exits. relay must be the one whose
// ThrottleChanged was registered on mgr's throttles.
func Run(ctx context.Context, mgr *auth.Manager, relay *Relay, opts Options) error {
	if relay == nil {
		relay = &Relay{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := New(mgr, nil, logger)

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	if opts.Mouse {
		progOpts = append(progOpts, tea.WithMouseAllMotion())
	}
	p := tea.NewProgram(m, progOpts...)

	mon, err := session.NewMonitor(opts.Session,
		session.SendWarning(relay.Send),
		session.WithLogout(mgr.Logout),
		session.WithRedirect(session.SendExpired(relay.Send)),
		session.WithStateChange(relay.StateChanged),
		session.WithAuditLogger(opts.Audit),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer mon.Stop()

	m.SetMonitor(mon)
	relay.Attach(p.Send)
	defer relay.Attach(nil)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
