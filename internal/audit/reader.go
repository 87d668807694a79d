// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ParseLine parses a line produced by Event.ToLogLine. Timestamps are read in
// the local time zone.
func ParseLine(line string) (Event, error) {
	parts := strings.SplitN(line, " | ", 6)
	if len(parts) != 6 {
		return Event{}, fmt.Errorf("malformed audit line: %d fields", len(parts))
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", parts[0], time.Local)
	if err != nil {
		return Event{}, fmt.Errorf("malformed audit timestamp: %w", err)
	}

	ev := Event{
		Timestamp: ts,
		EventType: parts[1],
		SessionID: parts[2],
		Scope:     parts[3],
	}

	switch status := parts[4]; {
	case status == "SUCCESS":
		ev.Success = true
	case strings.HasPrefix(status, "ERROR: "):
		ev.Error = strings.TrimPrefix(status, "ERROR: ")
	}

	if meta := strings.TrimSpace(parts[5]); meta != "" {
		ev.Metadata = make(map[string]string)
		for _, pair := range strings.Split(meta, ",") {
			k, v, _ := strings.Cut(pair, "=")
			ev.Metadata[k] = v
		}
	}
	return ev, nil
}

// ReadRecent returns up to n of the most recent events in the file at path,
// oldest first, optionally filtered to the given event types. Malformed lines
// are skipped. A missing file yields no events.
func ReadRecent(path string, n int, types ...string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ev, err := ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[ev.EventType] {
			continue
		}
		events = append(events, ev)
		if n > 0 && len(events) > n {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, nil
}
