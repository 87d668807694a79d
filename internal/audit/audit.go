// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides an append-only audit trail of login throttling and
// session lifecycle events, with secret redaction and size-based rotation.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultMaxFileSize is the default max file size before rotation (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Event types written by the throttle, the session monitor and the auth manager.
const (
	EventLoginFailed    = "LOGIN_FAILED"
	EventLoginLockout   = "LOGIN_LOCKOUT"
	EventLoginUnlock    = "LOGIN_UNLOCK"
	EventLoginSuccess   = "LOGIN_SUCCESS"
	EventSessionStart   = "SESSION_START"
	EventSessionWarning = "SESSION_WARNING"
	EventSessionTimeout = "SESSION_TIMEOUT"
	EventSessionEnd     = "SESSION_END"
)

// =============================================================================
// AUDIT EVENT
// =============================================================================

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id"`
	Scope     string            `json:"scope,omitempty"` // Masked identity
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ToLogLine formats the event as a single pipe-delimited log line.
// Metadata is rendered as sorted key=value pairs.
func (e *Event) ToLogLine() string {
	timestamp := e.Timestamp.Format("2006-01-02 15:04:05")

	status := "SUCCESS"
	if !e.Success {
		if e.Error != "" {
			status = fmt.Sprintf("ERROR: %s", e.Error)
		} else {
			status = "FAILURE"
		}
	}

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+e.Metadata[k])
	}

	return fmt.Sprintf("%s | %s | %s | %s | %s | %s",
		timestamp,
		e.EventType,
		e.SessionID,
		e.Scope,
		status,
		strings.Join(pairs, ","),
	)
}

// =============================================================================
// REDACTION
// =============================================================================

// secretPatterns covers credentials that may leak into error strings or metadata.
var secretPatterns = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
	{regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`), "[BCRYPT_HASH_REDACTED]"},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[JWT_REDACTED]"},
	{regexp.MustCompile(`otpauth://\S+`), "[OTP_URI_REDACTED]"},
}

// RedactSecrets applies the default redaction patterns to input.
func RedactSecrets(input string) string {
	result := input
	for _, sp := range secretPatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replace)
	}
	return result
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// FailureCallback is called synchronously, outside the logger's lock, when a
// write fails.
type FailureCallback func(err error)

// Logger provides thread-safe audit logging. All methods are safe on a nil
// *Logger, which discards events.
type Logger struct {
	path    string
	file    *os.File
	mu      sync.Mutex
	maxSize int64
	now     func() time.Time

	failureCount int
	onFailure    FailureCallback
}

// New creates an audit logger appending to path, or DefaultPath when empty.
func New(path string) (*Logger, error) {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{
		path:    path,
		file:    file,
		maxSize: DefaultMaxFileSize,
		now:     time.Now,
	}, nil
}

// Log writes an event. A zero Timestamp is stamped with the current time.
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	if l.file == nil {
		l.mu.Unlock()
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	event.Error = RedactSecrets(event.Error)
	if event.Metadata != nil {
		redacted := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			redacted[k] = RedactSecrets(v)
		}
		event.Metadata = redacted
	}

	err := l.checkRotationLocked()
	if err == nil {
		if _, werr := fmt.Fprintln(l.file, event.ToLogLine()); werr != nil {
			err = fmt.Errorf("failed to write audit log: %w", werr)
		} else if serr := l.file.Sync(); serr != nil {
			err = fmt.Errorf("failed to sync audit log: %w", serr)
		}
	}

	var cb FailureCallback
	if err != nil {
		l.failureCount++
		cb = l.onFailure
	} else {
		l.failureCount = 0
	}
	l.mu.Unlock()

	if cb != nil {
		cb(err)
	}
	return err
}

// LogEvent logs a successful event with optional metadata.
func (l *Logger) LogEvent(sessionID, eventType, scope string, metadata map[string]string) error {
	return l.Log(Event{
		EventType: eventType,
		SessionID: sessionID,
		Scope:     scope,
		Success:   true,
		Metadata:  metadata,
	})
}

// LogFailure logs an unsuccessful event.
func (l *Logger) LogFailure(sessionID, eventType, scope, errMsg string, metadata map[string]string) error {
	return l.Log(Event{
		EventType: eventType,
		SessionID: sessionID,
		Scope:     scope,
		Success:   false,
		Error:     errMsg,
		Metadata:  metadata,
	})
}

// LogSessionStart logs the start of an authenticated session.
func (l *Logger) LogSessionStart(sessionID string, metadata map[string]string) error {
	return l.LogEvent(sessionID, EventSessionStart, "", metadata)
}

// LogSessionEnd logs an explicit end of session.
func (l *Logger) LogSessionEnd(sessionID string, metadata map[string]string) error {
	return l.LogEvent(sessionID, EventSessionEnd, "", metadata)
}

// LogTimeout logs a forced logout after idle timeout.
func (l *Logger) LogTimeout(sessionID string) error {
	return l.LogEvent(sessionID, EventSessionTimeout, "", nil)
}

// =============================================================================
// FILE ROTATION
// =============================================================================

// rotateLocked renames the current file with a timestamp suffix and reopens.
func (l *Logger) rotateLocked() error {
	if l.file == nil {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	timestamp := l.now().Format("20060102_150405.000000000")
	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotatedPath := fmt.Sprintf("%s_%s%s", base, timestamp, ext)

	if err := os.Rename(l.path, rotatedPath); err != nil {
		l.file, _ = os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		l.file = nil
		return fmt.Errorf("failed to create new audit log after rotation: %w", err)
	}
	l.file = file
	return nil
}

func (l *Logger) checkRotationLocked() error {
	if l.maxSize <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() >= l.maxSize {
		return l.rotateLocked()
	}
	return nil
}

// SetMaxSize sets the maximum file size before rotation. Zero disables rotation.
func (l *Logger) SetMaxSize(size int64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSize = size
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetOnFailure sets the callback for write failures.
func (l *Logger) SetOnFailure(cb FailureCallback) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFailure = cb
}

// FailureCount returns the number of consecutive write failures.
func (l *Logger) FailureCount() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failureCount
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// =============================================================================
// CLEANUP
// =============================================================================

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DefaultPath returns the default audit log path (~/.sessionguard/audit.log).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sessionguard", "audit.log")
}
