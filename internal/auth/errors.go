// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong username, password or code.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockedOut is returned while the throttle refuses logins.
	ErrLockedOut = errors.New("too many failed attempts")

	// ErrMFARequired is returned when the password is right but the account
	// needs a one-time code and none was given.
	ErrMFARequired = errors.New("one-time code required")

	// ErrNoSession is returned when no session matches.
	ErrNoSession = errors.New("no active session")
)

// LockedError reports when a lockout ends. It unwraps to ErrLockedOut.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: try again in %s", ErrLockedOut, e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrLockedOut }

// FailedAttemptError reports how many attempts are left before a lockout.
// It unwraps to ErrInvalidCredentials.
type FailedAttemptError struct {
	RemainingAttempts int
}

func (e *FailedAttemptError) Error() string {
	if e.RemainingAttempts == 1 {
		return fmt.Sprintf("%v: 1 attempt remaining", ErrInvalidCredentials)
	}
	return fmt.Sprintf("%v: %d attempts remaining", ErrInvalidCredentials, e.RemainingAttempts)
}

func (e *FailedAttemptError) Unwrap() error { return ErrInvalidCredentials }
