// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lockout_cmd.go - Login throttle management.
//
// Command: lockout [subcommand]
// Aliases: lock
//
// Subcommands:
//   status (default) [user]   Show attempts and lockout state
//   list                      List every tracked scope
//   reset [user]              Clear the attempt counter and any lockout
//   unlock [user]             Lift an active lockout (audited)
//   history [--lines N]       Recent login events from the audit trail
//
// In per-account mode the user argument selects the scope; otherwise it is
// ignored and the single global counter is used.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/bootstrap"
	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/throttle"
)

const lockoutUsage = `  sessionguard lockout status [user]     Show attempts and lockout state
  sessionguard lockout list              List every tracked scope
  sessionguard lockout reset [user]      Clear attempts and any lockout
  sessionguard lockout unlock [user]     Lift an active lockout
  sessionguard lockout history [--lines N]`

// HandleLockout handles the "lockout" command.
func HandleLockout(args Args) error {
	switch args.Subcommand {
	case "", "status", "list", "ls", "reset", "unlock", "history":
	default:
		return usageErr("unknown lockout subcommand: %s", lockoutUsage, args.Subcommand)
	}

	env, err := openEnv(args)
	if err != nil {
		return err
	}
	defer env.Close()

	switch args.Subcommand {
	case "", "status":
		return lockoutStatus(env, args)
	case "list", "ls":
		return lockoutList(env, args)
	case "reset":
		return lockoutReset(env, args)
	case "unlock":
		return lockoutUnlock(env, args)
	default:
		return lockoutHistory(env, args)
	}
}

// lockoutThrottle picks the throttle the command line refers to.
func lockoutThrottle(env *bootstrap.Env, args Args) (*throttle.Throttle, error) {
	user := args.Option("user", args.Positional())
	if env.Auth.PerAccount() && user == "" {
		return nil, usageErr("a user is required in per-account mode", lockoutUsage)
	}
	if !env.Auth.PerAccount() {
		user = ""
	}
	return env.Auth.ThrottleFor(user), nil
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "global"
	}
	return scope
}

// =============================================================================
// STATUS
// =============================================================================

// LockoutStatusData is the JSON form of lockout status.
type LockoutStatusData struct {
	Scope             string    `json:"scope"`
	Count             int       `json:"count"`
	MaxAttempts       int       `json:"max_attempts"`
	RemainingAttempts int       `json:"remaining_attempts"`
	Locked            bool      `json:"locked"`
	Until             time.Time `json:"until,omitempty"`
	RemainingSeconds  int       `json:"remaining_seconds"`
	LockoutSeconds    int       `json:"lockout_seconds"`
	PerAccount        bool      `json:"per_account"`
}

func lockoutStatus(env *bootstrap.Env, args Args) error {
	th, err := lockoutThrottle(env, args)
	if err != nil {
		return err
	}
	st := th.Status()
	data := LockoutStatusData{
		Scope:             scopeLabel(st.Scope),
		Count:             st.Count,
		MaxAttempts:       st.MaxAttempts,
		RemainingAttempts: st.RemainingAttempts,
		Locked:            st.Locked,
		Until:             st.Until,
		RemainingSeconds:  int((st.Remaining + time.Second - 1) / time.Second),
		LockoutSeconds:    int(st.LockoutDuration / time.Second),
		PerAccount:        env.Auth.PerAccount(),
	}

	if args.JSON {
		return NewJSONResponse("lockout status", data).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Login Throttle"))
	fmt.Fprintln(stdout, RenderSeparator())
	fmt.Fprintln(stdout, field("Scope:", data.Scope))
	fmt.Fprintln(stdout, field("Failed attempts:", fmt.Sprintf("%d of %d", data.Count, data.MaxAttempts)))
	fmt.Fprintln(stdout, field("Remaining:", strconv.Itoa(data.RemainingAttempts)))
	fmt.Fprintln(stdout, field("Lockout length:", session.FormatDuration(st.LockoutDuration)))
	if st.Locked {
		fmt.Fprintf(stdout, "  %s%s %s\n", LabelStyle.Render("State:"), RenderStatus("locked"),
			WarningStyle.Render("try again in "+session.FormatDuration(st.Remaining)))
		fmt.Fprintln(stdout, field("Locked until:", st.Until.Local().Format("15:04:05")))
	} else {
		fmt.Fprintf(stdout, "  %s%s\n", LabelStyle.Render("State:"), RenderStatus("unlocked"))
	}
	fmt.Fprintln(stdout)
	return nil
}

// =============================================================================
// LIST
// =============================================================================

func lockoutList(env *bootstrap.Env, args Args) error {
	entries, err := throttle.List(env.Store, time.Now())
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("lockout list", map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		}).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Tracked Scopes"))
	fmt.Fprintln(stdout, RenderSeparator())
	if len(entries) == 0 {
		fmt.Fprintln(stdout, SuccessStyle.Render("  No failed attempts recorded."))
		fmt.Fprintln(stdout)
		return nil
	}

	fmt.Fprintf(stdout, "  %-20s %-10s %-10s %s\n", "Scope", "Attempts", "State", "Until")
	fmt.Fprintln(stdout, DimStyle.Render("  "+strings.Repeat("-", 55)))
	for _, e := range entries {
		state, until := "open", "-"
		if e.Locked {
			state, until = "locked", e.Until.Local().Format("15:04:05")
		}
		fmt.Fprintf(stdout, "  %-20s %-10d %-10s %s\n", scopeLabel(e.Scope), e.Count, state, until)
	}
	fmt.Fprintln(stdout)
	return nil
}

// =============================================================================
// RESET / UNLOCK
// =============================================================================

func lockoutReset(env *bootstrap.Env, args Args) error {
	th, err := lockoutThrottle(env, args)
	if err != nil {
		return err
	}
	th.ResetAttempts()

	if args.JSON {
		return NewJSONResponse("lockout reset", map[string]interface{}{
			"scope": scopeLabel(th.Scope()),
			"reset": true,
		}).Print()
	}
	fmt.Fprintf(stdout, "%s Attempt counter cleared for %s\n", RenderStatus("ok"), scopeLabel(th.Scope()))
	return nil
}

func lockoutUnlock(env *bootstrap.Env, args Args) error {
	th, err := lockoutThrottle(env, args)
	if err != nil {
		return err
	}
	wasLocked := th.Unlock()

	if args.JSON {
		return NewJSONResponse("lockout unlock", map[string]interface{}{
			"scope":      scopeLabel(th.Scope()),
			"was_locked": wasLocked,
		}).Print()
	}
	if wasLocked {
		fmt.Fprintf(stdout, "%s Unlocked %s\n", RenderStatus("ok"), scopeLabel(th.Scope()))
	} else {
		fmt.Fprintf(stdout, "%s %s was not locked\n", DimStyle.Render("[--]"), scopeLabel(th.Scope()))
	}
	return nil
}

// =============================================================================
// HISTORY
// =============================================================================

func lockoutHistory(env *bootstrap.Env, args Args) error {
	n := 20
	if v := args.Option("lines", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return usageErr("invalid --lines value %q", lockoutUsage, v)
		}
		n = parsed
	}

	events, err := audit.ReadRecent(env.Config.AuditPath(), n,
		audit.EventLoginFailed, audit.EventLoginLockout, audit.EventLoginUnlock, audit.EventLoginSuccess)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("lockout history", map[string]interface{}{
			"events": events,
			"count":  len(events),
		}).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Login History"))
	fmt.Fprintln(stdout, RenderSeparator())
	if len(events) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("  No login events recorded."))
		fmt.Fprintln(stdout)
		return nil
	}
	for _, ev := range events {
		status := RenderStatus("ok")
		if !ev.Success {
			status = RenderStatus("fail")
		}
		line := fmt.Sprintf("  %s %s %-14s %s", ev.Timestamp.Local().Format("2006-01-02 15:04:05"), status, ev.EventType, ev.Scope)
		if ev.Error != "" {
			line += " " + DimStyle.Render(ev.Error)
		}
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)
	return nil
}
