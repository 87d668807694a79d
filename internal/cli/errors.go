// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for CLI commands.
//
// Handlers always return errors; the caller decides how to display them
// and which exit code to use.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/storage"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitLockedError  = 5
	ExitNotFound     = 7
)

// UsageError reports a malformed command line.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Message
	}
	return e.Message + "\n\nUsage:\n" + e.Usage
}

// ConfigError wraps a configuration load or validation failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func usageErr(format string, usage string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...), Usage: usage}
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usage *UsageError
		cfg   *ConfigError
		valid config.ValidateErrors
		tty   *TTYRequiredError
	)
	switch {
	case errors.As(err, &usage), errors.As(err, &tty):
		return ExitUsageError
	case errors.As(err, &cfg), errors.As(err, &valid):
		return ExitConfigError
	case errors.Is(err, auth.ErrLockedOut):
		return ExitLockedError
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrMFARequired):
		return ExitAuthError
	case errors.Is(err, auth.ErrNoSession), errors.Is(err, storage.ErrNotFound), errors.Is(err, config.ErrUnknownKey):
		return ExitNotFound
	default:
		return ExitGeneralError
	}
}

// DisplayError prints err in the selected output mode.
func DisplayError(command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Print()
		return
	}
	fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}
