// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - Stored session inspection.
//
// Command: session [subcommand]
// Aliases: sessions
//
// Subcommands:
//   status (default)    Show the stored session and idle timeout policy
//   logout              End the stored session
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/session"
)

const sessionUsage = `  sessionguard session status    Show the stored session
  sessionguard session logout    End the stored session`

// SessionStatusData is the JSON form of session status. The token is
// never included.
type SessionStatusData struct {
	Active          bool      `json:"active"`
	ID              string    `json:"id,omitempty"`
	Username        string    `json:"username,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at,omitempty"`
	MFAVerified     bool      `json:"mfa_verified"`
	TimeoutSeconds  int       `json:"timeout_seconds"`
	WarningSeconds  int       `json:"warning_seconds"`
}

// HandleSession handles the "session" command.
func HandleSession(args Args) error {
	switch args.Subcommand {
	case "", "status", "logout":
	default:
		return usageErr("unknown session subcommand: %s", sessionUsage, args.Subcommand)
	}

	env, err := openEnv(args)
	if err != nil {
		return err
	}
	defer env.Close()

	sess, err := env.Auth.Current()
	if err != nil && !errors.Is(err, auth.ErrNoSession) {
		return err
	}

	if args.Subcommand == "logout" {
		if sess == nil {
			return auth.ErrNoSession
		}
		ctx, cancel := context.WithTimeout(context.Background(), env.Config.Session.LogoutTimeout())
		defer cancel()
		if err := env.Auth.Logout(ctx, sess.Token); err != nil {
			return err
		}
		env.Audit.LogSessionEnd(sess.ID, map[string]string{"reason": "cli_logout"})
		if args.JSON {
			return NewJSONResponse("session logout", map[string]interface{}{"id": sess.ID, "ended": true}).Print()
		}
		fmt.Fprintf(stdout, "%s Session %s ended\n", RenderStatus("ok"), sess.ID)
		return nil
	}

	data := SessionStatusData{
		TimeoutSeconds: env.Config.Session.TimeoutSeconds,
		WarningSeconds: env.Config.Session.WarningSeconds,
	}
	if sess != nil {
		data.Active = true
		data.ID = sess.ID
		data.Username = sess.Username
		data.AuthenticatedAt = sess.AuthenticatedAt
		data.MFAVerified = sess.MFAVerified
	}

	if args.JSON {
		return NewJSONResponse("session status", data).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Session"))
	fmt.Fprintln(stdout, RenderSeparator())
	if sess == nil {
		fmt.Fprintln(stdout, DimStyle.Render("  No active session."))
	} else {
		fmt.Fprintln(stdout, field("ID:", sess.ID))
		fmt.Fprintln(stdout, field("User:", sess.Username))
		fmt.Fprintln(stdout, field("Signed in:", sess.AuthenticatedAt.Local().Format("2006-01-02 15:04:05")))
		mfa := "no"
		if sess.MFAVerified {
			mfa = "yes"
		}
		fmt.Fprintln(stdout, field("One-time code:", mfa))
	}
	fmt.Fprintln(stdout, field("Idle timeout:", session.FormatDuration(env.Config.Session.Timeout())))
	fmt.Fprintln(stdout, field("Warning before:", session.FormatDuration(env.Config.Session.WarningTime())))
	fmt.Fprintln(stdout)
	return nil
}
