// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// help.go - Usage text, rendered as markdown on a terminal.
package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

const usageMarkdown = "# sessionguard\n\n" +
	"Login throttling and idle session timeout for a terminal console.\n\n" +
	"## Usage\n\n" +
	"```\n" +
	"sessionguard                         Start the TUI (default)\n" +
	"sessionguard login [user]            Sign in from the command line\n" +
	"sessionguard lockout [subcommand]    Inspect or clear the login throttle\n" +
	"sessionguard session [subcommand]    Inspect or end the stored session\n" +
	"sessionguard config [subcommand]     View and change configuration\n" +
	"sessionguard hash-password           Hash a password for [[auth.users]]\n" +
	"sessionguard version                 Show version information\n" +
	"sessionguard help [command]          Show help\n" +
	"```\n\n" +
	"## Global flags\n\n" +
	"- `--json` print one JSON document on stdout\n" +
	"- `--config PATH` use this config file instead of `~/.sessionguard/config.toml`\n" +
	"- `-q, --quiet` suppress hints\n\n" +
	"## In the TUI\n\n" +
	"- `tab` / `shift+tab` move between fields, `enter` signs in\n" +
	"- `ctrl+e` extends the session, `ctrl+l` signs out, `ctrl+c` quits\n" +
	"- any key dismisses the timeout warning and extends the session\n\n" +
	"## Environment\n\n" +
	"`SESSIONGUARD_HOME` moves the config directory. `SESSIONGUARD_MAX_ATTEMPTS`, " +
	"`SESSIONGUARD_LOCKOUT_SECONDS`, `SESSIONGUARD_SESSION_TIMEOUT` and the other " +
	"`SESSIONGUARD_*` variables override the file; a `.env` file is read first.\n"

// topicUsage holds per-command usage for "help <command>".
var topicUsage = map[string]string{
	"lockout":       lockoutUsage,
	"session":       sessionUsage,
	"config":        configUsage,
	"hash-password": hashUsage,
	"login":         "  sessionguard login [user] [--code NNNNNN]",
}

// renderMarkdown renders md for the terminal, or returns it unchanged when
// stdout is not a colour terminal.
func renderMarkdown(md string) string {
	if !ColorsEnabled() {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// HandleHelp handles the "help" command and unknown commands.
func HandleHelp(args Args) error {
	topic := args.Subcommand
	if topic == "" || topic == "help" {
		fmt.Fprint(stdout, renderMarkdown(usageMarkdown))
		return nil
	}
	usage, ok := topicUsage[topic]
	if !ok {
		return usageErr("unknown command: %s (run 'sessionguard help')", "", topic)
	}
	fmt.Fprintf(stdout, "Usage:\n%s\n", usage)
	return nil
}
