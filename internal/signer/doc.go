// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package signer produces and verifies the cryptographic material that
// makes the audit trail tamper-evident: per-event HMAC-SHA256 signatures,
// batch checksums, and signed integrity reports.
//
// # Canonical serialization
//
// Signatures cover CanonicalBytes: deterministic JSON of the event with the
// signature field emptied. Struct fields encode in declaration order, map
// keys sort lexically, HTML escaping is off, and no insignificant
// whitespace is emitted. Two events with equal field values always produce
// identical canonical bytes, so signing is deterministic.
//
// # Keys
//
// Signatures carry the signing key id as a prefix ("<keyID>:<hex digest>"),
// so rotating the active key never invalidates history: the Keyring retains
// prior keys for verification and Verify selects the key by prefix. A
// signature naming an unknown key id fails closed. Keys are 32 bytes,
// loaded from the environment, the config file, a key directory, or derived
// from a passphrase with PBKDF2-SHA-256. Keys are never auto-generated.
//
//	ring, source, err := signer.LoadKeyring(signer.KeyringConfig{KeyDir: dir})
//	if err != nil {
//		return err
//	}
//	s := signer.New(ring)
//	signed, err := s.Sign(&event)
//
// # Verification outcomes
//
// Batch verification distinguishes storage corruption from tampering: a
// checksum mismatch means the blob was damaged (checksum_mismatch), while a
// member whose checksum holds but whose signature fails was altered after
// signing (signature_invalid). Integrity reports never stop at the first
// defect; every issue in the walked sequence is recorded.
package signer
