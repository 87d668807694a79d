// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	data := []byte(`{"count":1}`)

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", content, data)
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.json")

	if err := AtomicWriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("got %q, want %q", content, "second")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"admin", 10, "admin"},
		{"administrator", 8, "admin..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := TruncateWidth(tt.in, tt.width); got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestTruncateWidth_WideRunes(t *testing.T) {
	got := TruncateWidth("日本語のユーザー", 7)
	if StringWidth(got) > 7 {
		t.Errorf("TruncateWidth exceeded width: %q is %d cells", got, StringWidth(got))
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ok", 5); got != "ok   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("toolong", 4); StringWidth(got) != 4 {
		t.Errorf("PadRight width = %d, want 4", StringWidth(got))
	}
}

// =============================================================================
// MASKING
// =============================================================================

func TestMaskIdentifier(t *testing.T) {
	if MaskIdentifier("") != "global" {
		t.Errorf("empty scope should mask to global")
	}

	a := MaskIdentifier("alice")
	if !strings.HasPrefix(a, "hash:") || len(a) != len("hash:")+12 {
		t.Errorf("unexpected mask format: %q", a)
	}
	if strings.Contains(a, "alice") {
		t.Errorf("mask leaks identifier: %q", a)
	}
	if a != MaskIdentifier("alice") {
		t.Errorf("mask is not stable")
	}
	if a == MaskIdentifier("bob") {
		t.Errorf("different identifiers produced the same mask")
	}
}
