// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package throttle limits consecutive failed logins.
//
// Failures are counted in a storage.Store under the loginAttempts key. When
// the count reaches the threshold (3 by default) a loginLockout record is
// written and further attempts are refused for the lockout duration (60
// seconds by default). The first query after the lockout ends purges both
// records.
//
// # Usage
//
//	th := throttle.New(store, throttle.WithAuditLogger(al))
//	if res := th.RecordFailedAttempt(); res.Locked {
//	    fmt.Printf("locked for %s\n", th.RemainingLockoutTime())
//	}
//
// RecordFailedAttempt checks and increments as one operation. Increments go
// through Store.CompareAndSwap, so processes sharing a file or SQLite store
// do not lose counts.
//
// By default the throttle is global to the store. WithScope keys it per
// identity.
package throttle
