// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/throttle"
)

// =============================================================================
// MESSAGES
// =============================================================================

// ThrottleMsg carries a throttle push notification.
type ThrottleMsg struct {
	Transition throttle.Transition
}

// SessionStateMsg reports a monitor state change.
type SessionStateMsg struct {
	From, To session.State
}

// loginResultMsg is the outcome of an asynchronous login.
type loginResultMsg struct {
	username string
	session  *auth.Session
	err      error
}

// logoutDoneMsg follows a user-initiated sign out.
type logoutDoneMsg struct {
	err error
}

// =============================================================================
// RELAY
// =============================================================================

// Relay forwards callbacks from timers, throttles and the store watcher into
// a running program. Messages sent before Attach are dropped.
//
// Delivery is asynchronous, since a callback fired from inside Update must
// not block on the program's message channel, and in the order Send was
// called: one goroutine at a time drains the queue.
type Relay struct {
	mu       sync.Mutex
	send     func(tea.Msg)
	queue    []tea.Msg
	draining bool
}

// Attach connects the relay to a program's Send. Attach(nil) drops anything
// still queued.
func (r *Relay) Attach(send func(tea.Msg)) {
	r.mu.Lock()
	r.send = send
	r.mu.Unlock()
}

// Send queues msg without blocking the caller.
func (r *Relay) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.send == nil {
		return
	}
	r.queue = append(r.queue, msg)
	if !r.draining {
		r.draining = true
		go r.drain()
	}
}

func (r *Relay) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 || r.send == nil {
			r.queue = nil
			r.draining = false
			r.mu.Unlock()
			return
		}
		msg := r.queue[0]
		r.queue = r.queue[1:]
		send := r.send
		r.mu.Unlock()

		send(msg)
	}
}

// ThrottleChanged is a throttle.WithOnChange callback.
func (r *Relay) ThrottleChanged(tr throttle.Transition) {
	r.Send(ThrottleMsg{Transition: tr})
}

// StateChanged is a session.WithStateChange callback.
func (r *Relay) StateChanged(from, to session.State) {
	r.Send(SessionStateMsg{From: from, To: to})
}
