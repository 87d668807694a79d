// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/jeranaias/sessionguard/internal/bootstrap"
	"github.com/jeranaias/sessionguard/internal/config"
)

// LoadConfig loads the configuration named by --config, or the default
// locations. The returned config is usable even when err reports a
// validation problem.
func LoadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		if err := config.LoadDotEnv(); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
		cfg, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return cfg, &ConfigError{Path: args.ConfigPath, Err: err}
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, &ConfigError{Err: err}
	}
	return cfg, nil
}

// openEnv loads a valid configuration and wires the runtime for a
// one-shot command. Logs go to stderr.
func openEnv(args Args) (*bootstrap.Env, error) {
	cfg, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(cfg, bootstrap.Options{})
}
