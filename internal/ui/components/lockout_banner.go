// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/throttle"
	"github.com/jeranaias/sessionguard/internal/ui/styles"
)

// =============================================================================
// LOCKOUT BANNER
// =============================================================================

// LockoutBanner shows the throttle state on the login screen: attempts left,
// or a lockout countdown with a draining progress bar.
type LockoutBanner struct {
	locked      bool
	until       time.Time
	total       time.Duration
	count       int
	maxAttempts int
	remaining   int

	now time.Time
	bar progress.Model
}

// NewLockoutBanner creates an empty banner.
func NewLockoutBanner() LockoutBanner {
	return LockoutBanner{
		bar: progress.New(
			progress.WithGradient("#EF4444", "#F59E0B"),
			progress.WithoutPercentage(),
			progress.WithWidth(40),
		),
	}
}

// SetWidth sizes the progress bar.
func (b *LockoutBanner) SetWidth(width int) {
	w := width - 8
	if w < 10 {
		w = 10
	}
	if w > 60 {
		w = 60
	}
	b.bar.Width = w
}

// SetStatus loads a throttle snapshot taken at now.
func (b *LockoutBanner) SetStatus(st throttle.Status, now time.Time) {
	b.locked = st.Locked
	b.until = st.Until
	b.total = st.LockoutDuration
	b.count = st.Count
	b.maxAttempts = st.MaxAttempts
	b.remaining = st.RemainingAttempts
	b.now = now
}

// Tick advances the countdown. The lockout is reported over once the
// deadline passes even before the throttle's own notification arrives.
func (b *LockoutBanner) Tick(now time.Time) {
	b.now = now
}

// Locked reports whether a lockout is in force at the last tick.
func (b LockoutBanner) Locked() bool {
	return b.locked && b.now.Before(b.until)
}

// Remaining returns the lockout time left.
func (b LockoutBanner) Remaining() time.Duration {
	if !b.Locked() {
		return 0
	}
	return b.until.Sub(b.now)
}

// Fraction returns the share of the lockout still to run, in [0, 1].
func (b LockoutBanner) Fraction() float64 {
	if !b.Locked() || b.total <= 0 {
		return 0
	}
	f := float64(b.Remaining()) / float64(b.total)
	if f > 1 {
		return 1
	}
	return f
}

// View renders the banner. It is empty when no failure is recorded, and
// after a lockout runs out but before the throttle reports the reset.
func (b LockoutBanner) View() string {
	if b.Locked() {
		// round up so the display never shows 0s while still locked
		left := b.Remaining().Truncate(time.Second)
		if left < b.Remaining() {
			left += time.Second
		}
		msg := styles.RenderLocked(fmt.Sprintf(
			"Too many failed attempts. Try again in %s", session.FormatDuration(left)))
		return msg + "\n" + b.bar.ViewAs(b.Fraction())
	}
	if b.count == 0 || b.remaining == 0 {
		return ""
	}
	if b.remaining == 1 {
		return styles.RenderWarning("1 attempt remaining before lockout")
	}
	return styles.RenderWarning(fmt.Sprintf("%d of %d attempts remaining", b.remaining, b.maxAttempts))
}
