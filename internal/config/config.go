// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/sessionguard/internal/logging"
	"github.com/jeranaias/sessionguard/internal/storage"
	"github.com/jeranaias/sessionguard/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the main configuration structure for sessionguard.
type Config struct {
	// Version is the config file format version.
	Version string `toml:"version" json:"version"`

	Throttle ThrottleConfig `toml:"throttle" json:"throttle"`
	Session  SessionConfig  `toml:"session" json:"session"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Audit    AuditConfig    `toml:"audit" json:"audit"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
	Auth     AuthConfig     `toml:"auth" json:"auth"`
	UI       UIConfig       `toml:"ui" json:"ui"`
}

// ThrottleConfig contains login throttle settings.
type ThrottleConfig struct {
	// MaxAttempts is the failure count that triggers a lockout.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	// LockoutSeconds is how long a lockout lasts.
	LockoutSeconds int `toml:"lockout_seconds" json:"lockout_seconds"`

	// PerAccount keys attempts by username instead of one global counter.
	PerAccount bool `toml:"per_account" json:"per_account"`
}

// SessionConfig contains idle timeout settings.
type SessionConfig struct {
	TimeoutSeconds       int `toml:"timeout_seconds" json:"timeout_seconds"`
	WarningSeconds       int `toml:"warning_seconds" json:"warning_seconds"`
	ActivityCoalesceMs   int `toml:"activity_coalesce_ms" json:"activity_coalesce_ms"`
	LogoutTimeoutSeconds int `toml:"logout_timeout_seconds" json:"logout_timeout_seconds"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is file, sqlite or memory.
	Backend string `toml:"backend" json:"backend"`

	// Path is the store location. Empty means the default for the backend.
	Path string `toml:"path" json:"path"`

	// Watch pushes changes made by other processes into the running UI.
	Watch bool `toml:"watch" json:"watch"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled"`
	Path      string `toml:"path" json:"path"`
	MaxSizeMB int    `toml:"max_size_mb" json:"max_size_mb"`
}

// LoggingConfig contains operational log settings.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	Path   string `toml:"path" json:"path"`
}

// AuthConfig holds the local accounts.
type AuthConfig struct {
	Users []UserConfig `toml:"users" json:"users"`
}

// UserConfig is one local account.
type UserConfig struct {
	Username     string `toml:"username" json:"username"`
	PasswordHash string `toml:"password_hash" json:"password_hash"`
	TOTPSecret   string `toml:"totp_secret,omitempty" json:"totp_secret,omitempty"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Mouse enables mouse reporting so pointer activity counts as activity.
	Mouse bool `toml:"mouse" json:"mouse"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default values.
const (
	DefaultVersion              = "1"
	DefaultMaxAttempts          = 3
	DefaultLockoutSeconds       = 60
	DefaultTimeoutSeconds       = 3600
	DefaultWarningSeconds       = 300
	DefaultActivityCoalesceMs   = 1000
	DefaultLogoutTimeoutSeconds = 10
	DefaultAuditMaxSizeMB       = 10
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: DefaultVersion,
		Throttle: ThrottleConfig{
			MaxAttempts:    DefaultMaxAttempts,
			LockoutSeconds: DefaultLockoutSeconds,
			PerAccount:     false,
		},
		Session: SessionConfig{
			TimeoutSeconds:       DefaultTimeoutSeconds,
			WarningSeconds:       DefaultWarningSeconds,
			ActivityCoalesceMs:   DefaultActivityCoalesceMs,
			LogoutTimeoutSeconds: DefaultLogoutTimeoutSeconds,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Path:    "",
			Watch:   true,
		},
		Audit: AuditConfig{
			Enabled:   true,
			Path:      "",
			MaxSizeMB: DefaultAuditMaxSizeMB,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatJSON,
			Path:   "",
		},
		UI: UIConfig{
			Mouse: true,
		},
	}
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// LockoutDuration returns the lockout length.
func (t ThrottleConfig) LockoutDuration() time.Duration {
	return time.Duration(t.LockoutSeconds) * time.Second
}

// Timeout returns the idle timeout.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// WarningTime returns how long before the timeout the warning fires.
func (s SessionConfig) WarningTime() time.Duration {
	return time.Duration(s.WarningSeconds) * time.Second
}

// ActivityCoalesce returns the activity coalescing window.
func (s SessionConfig) ActivityCoalesce() time.Duration {
	return time.Duration(s.ActivityCoalesceMs) * time.Millisecond
}

// LogoutTimeout returns the bound on the logout call.
func (s SessionConfig) LogoutTimeout() time.Duration {
	return time.Duration(s.LogoutTimeoutSeconds) * time.Second
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory.
const HomeEnv = "SESSIONGUARD_HOME"

// ConfigDir returns the sessionguard config directory (~/.sessionguard).
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sessionguard"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// inConfigDir joins name to the config directory, falling back to the
// working directory when the home directory is unknown.
func inConfigDir(name string) string {
	dir, err := ConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// StorePath returns the resolved store location for the configured backend.
// It is empty for the memory backend.
func (c *Config) StorePath() string {
	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendMemory:
		return ""
	case storage.BackendSQLite:
		if c.Storage.Path == "" {
			return inConfigDir("state.db")
		}
	default:
		if c.Storage.Path == "" {
			return inConfigDir("state.json")
		}
	}
	return ExpandPath(c.Storage.Path)
}

// AuditPath returns the resolved audit log path.
func (c *Config) AuditPath() string {
	if c.Audit.Path == "" {
		return inConfigDir("audit.log")
	}
	return ExpandPath(c.Audit.Path)
}

// LogPath returns the resolved operational log path.
func (c *Config) LogPath() string {
	if c.Logging.Path == "" {
		return inConfigDir("sessionguard.log")
	}
	return ExpandPath(c.Logging.Path)
}

// ensureSecurePermissions tightens a config file that holds password hashes.
func ensureSecurePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: config file %s is readable by other users: %v\n", path, err)
		}
	}
}

// =============================================================================
// LOADING
// =============================================================================

// LoadDotEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win.
func LoadDotEnv() error {
	var files []string
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}
	if dir, err := ConfigDir(); err == nil {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from the default locations.
// It tries TOML first, then JSON, then returns defaults.
// Environment variables (after .env) are applied on top of every source.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			ensureSecurePermissions(tomlPath)
			cfg, err := LoadTOML(tomlPath)
			if err == nil {
				cfg.ApplyEnvOverrides()
				return cfg, cfg.Validate()
			}
			loadErr = fmt.Errorf("failed to load TOML config from %s: %w", tomlPath, err)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			ensureSecurePermissions(jsonPath)
			cfg, err := LoadJSON(jsonPath)
			if err == nil {
				cfg.ApplyEnvOverrides()
				return cfg, cfg.Validate()
			}
			if loadErr == nil {
				loadErr = fmt.Errorf("failed to load JSON config from %s: %w", jsonPath, err)
			}
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if loadErr != nil {
		return cfg, loadErr
	}
	return cfg, cfg.Validate()
}

// LoadTOML loads configuration from a TOML file. Keys absent from the file
// keep their defaults.
func LoadTOML(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	return cfg, nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	return cfg, nil
}

// LoadFromPath loads configuration from an explicit path. Files ending in
// .json are read as JSON; everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	path = ExpandPath(path)
	var (
		cfg *Config
		err error
	)
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		cfg, err = LoadJSON(path)
	} else {
		cfg, err = LoadTOML(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	ensureSecurePermissions(path)
	cfg.ApplyEnvOverrides()
	return cfg, cfg.Validate()
}

// fillDefaults restores defaults for fields a file explicitly zeroed where
// zero is never meaningful.
func fillDefaults(cfg *Config) {
	d := Default()
	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	if cfg.Throttle.MaxAttempts == 0 {
		cfg.Throttle.MaxAttempts = d.Throttle.MaxAttempts
	}
	if cfg.Throttle.LockoutSeconds == 0 {
		cfg.Throttle.LockoutSeconds = d.Throttle.LockoutSeconds
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = d.Session.TimeoutSeconds
	}
	if cfg.Session.WarningSeconds == 0 {
		cfg.Session.WarningSeconds = d.Session.WarningSeconds
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default TOML location.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# sessionguard configuration\n")
	buf.WriteString("# Generate password hashes with: sessionguard hash-password\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// SaveJSON writes the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, data, 0600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Throttle.MaxAttempts < 1 {
		add("throttle.max_attempts", "must be at least 1, got %d", c.Throttle.MaxAttempts)
	}
	if c.Throttle.LockoutSeconds < 1 {
		add("throttle.lockout_seconds", "must be at least 1, got %d", c.Throttle.LockoutSeconds)
	}

	if c.Session.TimeoutSeconds < 1 {
		add("session.timeout_seconds", "must be at least 1, got %d", c.Session.TimeoutSeconds)
	}
	if c.Session.WarningSeconds < 1 {
		add("session.warning_seconds", "must be at least 1, got %d", c.Session.WarningSeconds)
	} else if c.Session.WarningSeconds >= c.Session.TimeoutSeconds {
		add("session.warning_seconds", "must be less than timeout_seconds (%d)", c.Session.TimeoutSeconds)
	}
	if c.Session.ActivityCoalesceMs < 0 {
		add("session.activity_coalesce_ms", "must not be negative")
	}
	if c.Session.LogoutTimeoutSeconds < 0 {
		add("session.logout_timeout_seconds", "must not be negative")
	}

	backendOK := false
	for _, b := range storage.Backends() {
		if strings.EqualFold(c.Storage.Backend, b) {
			backendOK = true
		}
	}
	if !backendOK {
		add("storage.backend", "must be one of %s, got %q", strings.Join(storage.Backends(), ", "), c.Storage.Backend)
	}

	if c.Audit.MaxSizeMB < 0 {
		add("audit.max_size_mb", "must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatJSON, logging.FormatText:
	default:
		add("logging.format", "must be json or text, got %q", c.Logging.Format)
	}

	seen := make(map[string]bool)
	for i, u := range c.Auth.Users {
		field := fmt.Sprintf("auth.users[%d]", i)
		name := NormalizeUsername(u.Username)
		if name == "" {
			add(field+".username", "must not be empty")
		} else if seen[name] {
			add(field+".username", "duplicate user %q", u.Username)
		}
		seen[name] = true
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			add(field+".password_hash", "not a bcrypt hash")
		}
		if u.TOTPSecret != "" && !validBase32(u.TOTPSecret) {
			add(field+".totp_secret", "not a base32 secret")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validBase32(s string) bool {
	s = strings.ToUpper(strings.TrimRight(s, "="))
	_, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	return err == nil
}

// NormalizeUsername folds compatibility forms and case so lookalike
// spellings of one account share a throttle scope.
func NormalizeUsername(name string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(name)))
}

// FindUser returns the account matching username after normalisation.
func (c *Config) FindUser(username string) (UserConfig, bool) {
	want := NormalizeUsername(username)
	for _, u := range c.Auth.Users {
		if NormalizeUsername(u.Username) == want {
			return u, true
		}
	}
	return UserConfig{}, false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
// Supported environment variables:
//   - SESSIONGUARD_MAX_ATTEMPTS: throttle.max_attempts
//   - SESSIONGUARD_LOCKOUT_SECONDS: throttle.lockout_seconds
//   - SESSIONGUARD_PER_ACCOUNT: throttle.per_account
//   - SESSIONGUARD_SESSION_TIMEOUT: session.timeout_seconds
//   - SESSIONGUARD_WARNING_SECONDS: session.warning_seconds
//   - SESSIONGUARD_STORAGE_BACKEND: storage.backend
//   - SESSIONGUARD_STORAGE_PATH: storage.path
//   - SESSIONGUARD_AUDIT_ENABLED: audit.enabled
//   - SESSIONGUARD_AUDIT_PATH: audit.path
//   - SESSIONGUARD_LOG_LEVEL: logging.level
//   - SESSIONGUARD_LOG_FORMAT: logging.format
//   - SESSIONGUARD_LOG_PATH: logging.path
//
// Unparseable numbers and booleans are ignored.
func (c *Config) ApplyEnvOverrides() {
	envInt("SESSIONGUARD_MAX_ATTEMPTS", &c.Throttle.MaxAttempts)
	envInt("SESSIONGUARD_LOCKOUT_SECONDS", &c.Throttle.LockoutSeconds)
	envBool("SESSIONGUARD_PER_ACCOUNT", &c.Throttle.PerAccount)
	envInt("SESSIONGUARD_SESSION_TIMEOUT", &c.Session.TimeoutSeconds)
	envInt("SESSIONGUARD_WARNING_SECONDS", &c.Session.WarningSeconds)
	envString("SESSIONGUARD_STORAGE_BACKEND", &c.Storage.Backend)
	envString("SESSIONGUARD_STORAGE_PATH", &c.Storage.Path)
	envBool("SESSIONGUARD_AUDIT_ENABLED", &c.Audit.Enabled)
	envString("SESSIONGUARD_AUDIT_PATH", &c.Audit.Path)
	envString("SESSIONGUARD_LOG_LEVEL", &c.Logging.Level)
	envString("SESSIONGUARD_LOG_FORMAT", &c.Logging.Format)
	envString("SESSIONGUARD_LOG_PATH", &c.Logging.Path)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// =============================================================================
// DOT-NOTATION ACCESS
// =============================================================================

// ErrUnknownKey is returned by Get and Set for a key that names no setting.
var ErrUnknownKey = errors.New("unknown config key")

// Get returns the value at a dot-notation key such as "throttle.max_attempts".
func (c *Config) Get(key string) (any, error) {
	v, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Set assigns a value given as a string to a dot-notation key.
func (c *Config) Set(key, value string) error {
	v, err := c.lookup(key)
	if err != nil {
		return err
	}
	if err := setFieldValue(v, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// GetAllKeys lists every scalar setting in dot notation, sorted.
func (c *Config) GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(*c), "", &keys)
	sort.Strings(keys)
	return keys
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	v := reflect.ValueOf(c).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		f, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		v = f
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s is a section", ErrUnknownKey, key)
	}
	return v, nil
}

// fieldByTag finds a struct field by its toml tag name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == strings.ToLower(name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := prefix + tagName(f)
		switch f.Type.Kind() {
		case reflect.Struct:
			collectKeys(f.Type, name+".", keys)
		case reflect.Slice:
			// account lists are edited in the file, not by key
		default:
			*keys = append(*keys, name)
		}
	}
}

func setFieldValue(v reflect.Value, value string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", value)
		}
		v.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", value)
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("cannot set %s values", v.Kind())
	}
	return nil
}

// =============================================================================
// CLONE AND DISPLAY
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Auth.Users != nil {
		out.Auth.Users = make([]UserConfig, len(c.Auth.Users))
		copy(out.Auth.Users, c.Auth.Users)
	}
	return &out
}

// String returns the configuration as indented JSON with secrets redacted.
func (c *Config) String() string {
	clone := c.Redacted()
	data, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Redacted returns a copy safe to display.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	for i := range clone.Auth.Users {
		if clone.Auth.Users[i].PasswordHash != "" {
			clone.Auth.Users[i].PasswordHash = "[REDACTED]"
		}
		if clone.Auth.Users[i].TOTPSecret != "" {
			clone.Auth.Users[i].TOTPSecret = "[REDACTED]"
		}
	}
	return clone
}

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalConfig *Config
	globalOnce   sync.Once
	globalMu     sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// Load failures fall back to defaults with a warning on stderr.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			if cfg == nil {
				cfg = Default()
			}
		}
		globalMu.Lock()
		globalConfig = cfg
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalOnce.Do(func() {})
	globalMu.Lock()
	globalConfig = cfg
	globalMu.Unlock()
	return nil
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalOnce.Do(func() {})
	globalMu.Lock()
	globalConfig = cfg
	globalMu.Unlock()
}

// ResetGlobalForTesting clears the global configuration.
func ResetGlobalForTesting() {
	globalMu.Lock()
	globalConfig = nil
	globalOnce = sync.Once{}
	globalMu.Unlock()
}
