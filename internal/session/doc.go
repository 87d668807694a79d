// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session terminates idle authenticated sessions.
//
// A Monitor runs two timers per session: a warning at Timeout-WarningTime
// and a forced logout at Timeout, both measured from the last reset. Any
// user activity, or an explicit extend, cancels the pair and schedules a new
// one.
//
// # Key Types
//
//   - Monitor: the timer state machine
//   - AuthState: the authentication signal that starts and stops it
//   - WarningMsg, ExpiredMsg: Bubble Tea messages for the UI
//
// # Usage
//
//	mon, err := session.NewMonitor(session.DefaultConfig(),
//	    session.SendWarning(p.Send),
//	    session.WithLogout(authMgr.Logout),
//	    session.WithRedirect(session.SendExpired(p.Send)),
//	)
//	mon.SetAuth(session.AuthState{Authenticated: true, Token: tok})
//
// Feed input to the monitor from Update:
//
//	if src, ok := session.ActivityFromMsg(msg); ok {
//	    mon.HandleActivity(src)
//	}
//
// Defaults are a one hour timeout with a five minute warning.
package session
