// sessionguard - Login throttling and idle session timeout for a terminal console.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionguard/internal/bootstrap"
	"github.com/jeranaias/sessionguard/internal/cli"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/throttle"
	"github.com/jeranaias/sessionguard/internal/ui/app"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runTUI(args)
	case cli.CmdLogin:
		err = cli.HandleLogin(args)
	case cli.CmdLockout:
		err = cli.HandleLockout(args)
	case cli.CmdSession:
		err = cli.HandleSession(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdHashPassword:
		err = cli.HandleHashPassword(args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	case cli.CmdHelp:
		err = cli.HandleHelp(args)
	default:
		err = runTUI(args)
	}

	if err != nil {
		cli.DisplayError(cmd.String(), err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}

// runTUI starts the login console. Logs go to the log file so they do not
// tear the alternate screen.
func runTUI(args cli.Args) error {
	if err := cli.RequiresTTY("start the console"); err != nil {
		return err
	}

	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	config.SetGlobal(cfg)

	relay := &app.Relay{}
	env, err := bootstrap.Open(cfg, bootstrap.Options{
		LogToFile:       true,
		ThrottleOptions: []throttle.Option{throttle.WithOnChange(relay.ThrottleChanged)},
	})
	if err != nil {
		return err
	}
	defer env.Close()

	if len(cfg.Auth.Users) == 0 {
		env.Logger.Warn("no accounts configured; every login will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := env.StartWatcher(ctx); err != nil {
		// The console still works without cross-process push.
		env.Logger.Warn("store watcher unavailable", "error", err)
	}

	err = app.Run(ctx, env.Auth, relay, app.Options{
		Session:   env.SessionConfig(),
		Mouse:     cfg.UI.Mouse,
		AltScreen: true,
		Audit:     env.Audit,
		Logger:    env.Logger,
	})
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
