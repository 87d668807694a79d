// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the sessionguard terminal UI.
//
// It has two screens. The login screen shows the credentials form and the
// throttle banner; it never holds authenticated state. The console is the
// protected area, with a status bar counting down to the idle logout.
//
// Every input event on the console is reported to the session monitor. When
// the monitor's warning fires the timeout overlay covers the console, and any
// key extends the session. When the logout fires the model drops the session
// and rebuilds a blank login form.
//
// Callbacks from timers and throttles reach the program through a Relay.
package app
