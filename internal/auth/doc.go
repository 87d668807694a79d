// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth verifies local credentials and issues session tokens.
//
// Every login passes through a throttle.Throttle: a locked scope is refused
// before the password is checked, each failure is counted, and a success
// clears the count.
//
// # Login
//
//	mgr := auth.NewManager(store, cfg.Auth.Users,
//	    auth.WithThrottleOptions(throttle.WithMaxAttempts(3)),
//	)
//	sess, err := mgr.Login("alice", password, "")
//	var locked *auth.LockedError
//	switch {
//	case errors.As(err, &locked):
//	    // show the countdown to locked.Until
//	case errors.Is(err, auth.ErrInvalidCredentials):
//	    // wrong username, password or code
//	}
//
// The issued session is persisted under SessionKey so other processes
// sharing the store can inspect or end it.
package auth
