// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"time"

	"github.com/jeranaias/sessionguard/internal/session"
)

// SessionKey is the store key holding the current session.
const SessionKey = "authSession"

// Session is an authenticated login.
type Session struct {
	// Token is the bearer secret. It never appears in logs.
	Token string `json:"token"`

	// ID identifies the session in logs and the audit trail.
	ID string `json:"id"`

	Username        string    `json:"username"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	MFAVerified     bool      `json:"mfa_verified"`
}

// Valid reports whether s carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// AuthState converts s into the signal that drives a session.Monitor.
// A nil session yields the signed-out state.
func (s *Session) AuthState() session.AuthState {
	if !s.Valid() {
		return session.AuthState{}
	}
	return session.AuthState{Authenticated: true, Token: s.Token, SessionID: s.ID}
}
