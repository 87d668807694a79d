// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap builds the runtime pieces shared by every command from
// a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jeranaias/sessionguard/internal/audit"
	"github.com/jeranaias/sessionguard/internal/auth"
	"github.com/jeranaias/sessionguard/internal/clock"
	"github.com/jeranaias/sessionguard/internal/config"
	"github.com/jeranaias/sessionguard/internal/logging"
	"github.com/jeranaias/sessionguard/internal/session"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/throttle"
)

// Options adjusts how Open wires the environment.
type Options struct {
	// LogToFile sends operational logs to the configured log file instead
	// of stderr. The TUI needs this so logs never land on the screen.
	LogToFile bool

	// LogWriter overrides the log destination entirely.
	LogWriter io.Writer

	// ThrottleOptions are appended after the config-derived throttle
	// options, e.g. an OnChange hook.
	ThrottleOptions []throttle.Option

	// Clock replaces the real scheduler.
	Clock clock.Scheduler
}

// Env holds everything a command needs. Close releases it.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	Audit  *audit.Logger
	Store  storage.Store
	Auth   *auth.Manager

	watcher *storage.Watcher
	logFile *os.File
}

// Open builds the logger, audit trail, store and auth manager described by
// cfg. On error everything opened so far is closed.
func Open(cfg *config.Config, opts Options) (env *Env, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	env = &Env{Config: cfg}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
		if opts.LogToFile {
			env.logFile, err = logging.OpenFile(cfg.LogPath())
			if err != nil {
				return env, err
			}
			w = env.logFile
		}
	}
	env.Logger, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, w)
	if err != nil {
		return env, fmt.Errorf("logging: %w", err)
	}

	if cfg.Audit.Enabled {
		env.Audit, err = audit.New(cfg.AuditPath())
		if err != nil {
			return env, err
		}
		if cfg.Audit.MaxSizeMB > 0 {
			env.Audit.SetMaxSize(int64(cfg.Audit.MaxSizeMB) * 1024 * 1024)
		}
		logger, trail := env.Logger, env.Audit
		env.Audit.SetOnFailure(func(err error) {
			logger.Error("audit write failed", "error", err, "consecutive", trail.FailureCount())
		})
	}

	env.Store, err = storage.Open(cfg.Storage.Backend, cfg.StorePath())
	if err != nil {
		return env, fmt.Errorf("storage: %w", err)
	}

	throttleOpts := []throttle.Option{
		throttle.WithMaxAttempts(cfg.Throttle.MaxAttempts),
		throttle.WithLockoutDuration(cfg.Throttle.LockoutDuration()),
	}
	throttleOpts = append(throttleOpts, opts.ThrottleOptions...)

	authOpts := []auth.Option{
		auth.WithPerAccount(cfg.Throttle.PerAccount),
		auth.WithThrottleOptions(throttleOpts...),
		auth.WithAuditLogger(env.Audit),
		auth.WithLogger(env.Logger),
	}
	if opts.Clock != nil {
		authOpts = append(authOpts, auth.WithScheduler(opts.Clock))
	}
	env.Auth = auth.NewManager(env.Store, cfg.Auth.Users, authOpts...)

	env.Logger.Debug("environment ready",
		"backend", cfg.Storage.Backend,
		"per_account", cfg.Throttle.PerAccount,
		"users", len(cfg.Auth.Users))
	return env, nil
}

// SessionConfig converts the session section into monitor settings.
func (e *Env) SessionConfig() session.Config {
	s := e.Config.Session
	return session.Config{
		Timeout:          s.Timeout(),
		WarningTime:      s.WarningTime(),
		ActivityCoalesce: s.ActivityCoalesce(),
		LogoutTimeout:    s.LogoutTimeout(),
	}
}

// StartWatcher pushes store changes made by other processes into the auth
// manager's throttles. It does nothing when watching is disabled or the
// backend has no file.
func (e *Env) StartWatcher(ctx context.Context) error {
	if !e.Config.Storage.Watch || e.watcher != nil {
		return nil
	}
	path, ok := storage.WatchPath(e.Store)
	if !ok {
		return nil
	}
	w, err := storage.NewWatcher(path, storage.DefaultWatchDebounce, e.Auth.Refresh)
	if err != nil {
		return err
	}
	w.Start(ctx)
	e.watcher = w
	e.Logger.Debug("watching store", "path", path)
	return nil
}

// Close releases everything Open created, in reverse order.
func (e *Env) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.Auth != nil {
		e.Auth.Close()
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if e.Audit != nil {
		errs = append(errs, e.Audit.Close())
	}
	if e.logFile != nil {
		errs = append(errs, e.logFile.Close())
		e.logFile = nil
	}
	return errors.Join(errs...)
}
