// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// login_cmd.go - Line-mode sign in.
//
// Command: login [user] [--code NNNNNN]
//
// Runs the same throttled credential check as the TUI and stores the
// resulting session. Prompts use line editing; the password is not echoed.
package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/sessionguard/internal/auth"
)

// prompter is the subset of *liner.State the login command uses.
type prompter interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
	Close() error
}

// newPrompter is swapped by tests.
var newPrompter = func() (prompter, error) {
	if err := RequiresTTY("sign in"); err != nil {
		return nil, err
	}
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return line, nil
}

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted")

// LoginData is the JSON form of a successful login. The token is omitted.
type LoginData struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	MFAVerified     bool      `json:"mfa_verified"`
}

// HandleLogin handles the "login" command.
func HandleLogin(args Args) error {
	env, err := openEnv(args)
	if err != nil {
		return err
	}
	defer env.Close()

	p, err := newPrompter()
	if err != nil {
		return err
	}
	defer p.Close()

	user := args.Option("user", args.Positional())
	if user == "" {
		if user, err = prompt(p.Prompt, "Username: "); err != nil {
			return err
		}
	}
	password, err := prompt(p.PasswordPrompt, "Password: ")
	if err != nil {
		return err
	}

	code := args.Option("code", "")
	sess, err := env.Auth.Login(user, password, code)
	if errors.Is(err, auth.ErrMFARequired) {
		if code, err = prompt(p.Prompt, "One-time code: "); err != nil {
			return err
		}
		sess, err = env.Auth.Login(user, password, code)
	}
	if err != nil {
		return err
	}

	data := LoginData{
		ID:              sess.ID,
		Username:        sess.Username,
		AuthenticatedAt: sess.AuthenticatedAt,
		MFAVerified:     sess.MFAVerified,
	}
	if args.JSON {
		return NewJSONResponse("login", data).Print()
	}
	fmt.Fprintf(stdout, "%s Signed in as %s (session %s)\n", RenderStatus("ok"), data.Username, data.ID)
	return nil
}

func prompt(fn func(string) (string, error), label string) (string, error) {
	s, err := fn(label)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}
