// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for sessionguard.
//
// Supports both TOML and JSON configuration formats, with defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ThrottleConfig: Failed-login lockout policy
//   - SessionConfig: Idle timeout and warning lead time
//   - StorageConfig: Persistence backend (file, sqlite, memory)
//   - AuthConfig: Local accounts with bcrypt hashes and optional TOTP
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SESSIONGUARD_*)
//   - .env in the working directory, then ~/.sessionguard/.env
//   - ~/.sessionguard/config.toml
//   - ~/.sessionguard/config.json
//   - Built-in defaults
//
// SESSIONGUARD_HOME relocates the ~/.sessionguard directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Session.Timeout()
package config
