// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the one-shot commands of
// sessionguard.
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdLockout:
//	    err = cli.HandleLockout(args)
//	// ... other commands
//	}
//	if err != nil {
//	    cli.DisplayError(cmd.String(), err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands
//
//   - tui: the interactive console (default, run by main)
//   - login: line-mode sign in
//   - lockout: throttle status, list, reset, unlock and history
//   - session: stored session status and logout
//   - config: show, path, init, validate, get and set
//   - hash-password: bcrypt hashes and one-time code secrets
//
// All commands support --json.
package cli
