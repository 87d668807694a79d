// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for sessionguard.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output destinations. Tests swap these.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdLockout
	CmdSession
	CmdConfig
	CmdHashPassword
	CmdVersion
	CmdHelp
)

// String returns the command name used on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdLogin:
		return "login"
	case CmdLockout:
		return "lockout"
	case CmdSession:
		return "session"
	case CmdConfig:
		return "config"
	case CmdHashPassword:
		return "hash-password"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON       bool   // Output in JSON format
	Quiet      bool   // Suppress non-essential output
	ConfigPath string // Explicit config file, overrides the default locations

	// Command-specific
	Subcommand string

	// Raw args remaining after the subcommand
	Raw []string

	// Options holds command-specific named options (e.g., --lines, --user)
	Options map[string]string
}

// Option returns a named option or def when absent.
func (a Args) Option(name, def string) string {
	if v, ok := a.Options[name]; ok {
		return v
	}
	return def
}

// Positional returns the first argument after the subcommand that is not
// a flag.
func (a Args) Positional() string {
	for _, arg := range a.Raw {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return ""
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments (without the program name).
func ParseArgs(args []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(args)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs
	case "login":
		parseCommandArgs(&parsedArgs, remaining, false)
		return CmdLogin, parsedArgs
	case "lockout", "lock":
		parseCommandArgs(&parsedArgs, remaining, true)
		return CmdLockout, parsedArgs
	case "session", "sessions":
		parseCommandArgs(&parsedArgs, remaining, true)
		return CmdSession, parsedArgs
	case "config":
		parseCommandArgs(&parsedArgs, remaining, true)
		return CmdConfig, parsedArgs
	case "hash-password", "hashpw":
		parseCommandArgs(&parsedArgs, remaining, false)
		return CmdHashPassword, parsedArgs
	case "version", "-v", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		parseCommandArgs(&parsedArgs, remaining, true)
		return CmdHelp, parsedArgs
	default:
		parsedArgs.Subcommand = cmd
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--json":
			parsedArgs.JSON = true
		case arg == "-q" || arg == "--quiet":
			parsedArgs.Quiet = true
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		case strings.HasPrefix(arg, "--config="):
			parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsedArgs
}

// valueOptions are the named options that take a value.
var valueOptions = map[string]bool{
	"lines": true,
	"type":  true,
	"user":  true,
	"code":  true,
	"cost":  true,
}

// parseCommandArgs splits a command's arguments into an optional
// subcommand, named options and the raw remainder.
func parseCommandArgs(args *Args, remaining []string, hasSubcommand bool) {
	if hasSubcommand && len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		args.Subcommand = strings.ToLower(remaining[0])
		remaining = remaining[1:]
	}

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		if !strings.HasPrefix(arg, "--") {
			args.Raw = append(args.Raw, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			args.Options[k] = v
			continue
		}
		if valueOptions[name] && i+1 < len(remaining) {
			i++
			args.Options[name] = remaining[i]
			continue
		}
		args.Options[name] = "true"
	}
}

// =============================================================================
// VERSION
// =============================================================================

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if args.JSON {
		return NewJSONResponse("version", data).Print()
	}
	fmt.Fprintf(stdout, "sessionguard %s (%s, built %s, %s)\n", data.Version, data.GitCommit, data.BuildDate, data.GoVersion)
	return nil
}
