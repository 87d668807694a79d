// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaskIdentifier hides an account name or token in logs and audit records.
// The result is stable for a given input so records can still be correlated.
func MaskIdentifier(id string) string {
	if id == "" {
		return "global"
	}
	sum := sha256.Sum256([]byte(id))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}
