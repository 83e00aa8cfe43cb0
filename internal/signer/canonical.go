// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// canonical.go - Deterministic serialization. Everything a signature covers
// goes through here; any change to the encoding invalidates existing
// signatures and needs a schema version bump.

package signer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// CanonicalJSON encodes v deterministically: struct fields in declaration
// order, map keys sorted (encoding/json guarantee), HTML escaping off, no
// trailing newline.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalBytes returns the byte sequence an event signature covers: the
// canonical JSON of the event with the signature field emptied. The input
// is not mutated.
func CanonicalBytes(e *audit.Event) ([]byte, error) {
	c := e.Clone()
	c.Signature = ""
	return CanonicalJSON(&c)
}
