// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)      Display the effective configuration, secrets redacted
//   path                Show the configuration file path
//   init [--force]      Write a default config file
//   validate            Check the configuration and list every problem
//   get <key>           Print one setting, e.g. throttle.max_attempts
//   set <key> <value>   Change one setting in the file
//
// get/set use dot notation; "sessionguard config get" with no key lists
// every key.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/sessionguard/internal/config"
)

const configUsage = `  sessionguard config show
  sessionguard config path
  sessionguard config init [--force]
  sessionguard config validate
  sessionguard config get [key]
  sessionguard config set <key> <value>`

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "path":
		return configPath(args)
	case "init":
		return configInit(args)
	case "validate":
		return configValidate(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	default:
		return usageErr("unknown config subcommand: %s", configUsage, args.Subcommand)
	}
}

// configFilePath is the file init and set write to.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return config.ExpandPath(args.ConfigPath), nil
	}
	return config.ConfigPathTOML()
}

// loadFileOnly reads the config file without environment overrides, so a
// later save does not persist them. A missing file yields defaults.
func loadFileOnly(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return config.LoadJSON(path)
	}
	return config.LoadTOML(path)
}

func saveFile(cfg *config.Config, path string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

// =============================================================================
// SHOW / PATH
// =============================================================================

func configShow(args Args) error {
	cfg, err := LoadConfig(args)
	if cfg == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", WarningStyle.Render("[WARN]"), err)
	}
	red := cfg.Redacted()

	if args.JSON {
		return NewJSONResponse("config show", red).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Configuration"))
	fmt.Fprintln(stdout, RenderSeparator())
	for _, key := range red.GetAllKeys() {
		v, _ := red.Get(key)
		fmt.Fprintf(stdout, "  %-32s %s\n", key, ValueStyle.Render(fmt.Sprint(v)))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, SectionStyle.Render("Accounts"))
	if len(red.Auth.Users) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("  none configured"))
	}
	for _, u := range red.Auth.Users {
		extra := ""
		if u.TOTPSecret != "" {
			extra = DimStyle.Render(" (one-time code)")
		}
		fmt.Fprintf(stdout, "  %s%s\n", u.Username, extra)
	}
	fmt.Fprintln(stdout)
	return nil
}

func configPath(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if args.JSON {
		return NewJSONResponse("config path", map[string]interface{}{
			"path":   path,
			"exists": exists,
		}).Print()
	}
	fmt.Fprintln(stdout, path)
	if !exists && !args.Quiet {
		fmt.Fprintln(stderr, DimStyle.Render("(not created yet; run: sessionguard config init)"))
	}
	return nil
}

// =============================================================================
// INIT / VALIDATE
// =============================================================================

func configInit(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && args.Option("force", "") != "true" {
		return usageErr("%s already exists; use --force to overwrite", configUsage, path)
	}
	if err := saveFile(config.Default(), path); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config init", map[string]interface{}{"path": path}).Print()
	}
	fmt.Fprintf(stdout, "%s Wrote %s\n", RenderStatus("ok"), path)
	fmt.Fprintln(stdout, DimStyle.Render("  Add accounts under [[auth.users]]; hash passwords with: sessionguard hash-password"))
	return nil
}

func configValidate(args Args) error {
	cfg, err := LoadConfig(args)
	if cfg == nil {
		return err
	}

	var problems []string
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		for _, v := range verrs {
			problems = append(problems, v.Error())
		}
	} else if err != nil {
		return err
	}
	if len(cfg.Auth.Users) == 0 {
		problems = append(problems, "auth.users: no accounts configured, nobody can sign in")
	}

	if args.JSON {
		resp := NewJSONResponse("config validate", map[string]interface{}{
			"valid":    err == nil,
			"problems": problems,
		})
		if perr := resp.Print(); perr != nil {
			return perr
		}
		return err
	}

	if len(problems) == 0 {
		fmt.Fprintf(stdout, "%s Configuration is valid\n", RenderStatus("ok"))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(stdout, "%s %s\n", RenderStatus("warn"), p)
	}
	return err
}

// =============================================================================
// GET / SET
// =============================================================================

func configGet(args Args) error {
	cfg, err := LoadConfig(args)
	if cfg == nil {
		return err
	}
	red := cfg.Redacted()

	key := args.Positional()
	if key == "" {
		keys := red.GetAllKeys()
		if args.JSON {
			return NewJSONResponse("config get", map[string]interface{}{"keys": keys}).Print()
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, k)
		}
		return nil
	}

	v, err := red.Get(key)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config get", map[string]interface{}{"key": key, "value": v}).Print()
	}
	fmt.Fprintln(stdout, v)
	return nil
}

func configSet(args Args) error {
	if len(args.Raw) < 2 {
		return usageErr("config set needs a key and a value", configUsage)
	}
	key, value := args.Raw[0], args.Raw[1]

	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg, err := loadFileOnly(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := saveFile(cfg, path); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config set", map[string]interface{}{"key": key, "value": value, "path": path}).Print()
	}
	fmt.Fprintf(stdout, "%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}
