// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// batch.go - Batch sealing and verification. The batch checksum covers the
// member signatures in order; the batch signature covers the checksum.
// Checksum failure means corruption, member signature failure means
// tampering, and verification checks them in that order so callers can
// tell the two apart.

package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/auditcore/internal/audit"
)

// ErrEmptyBatch is returned when sealing zero events.
var ErrEmptyBatch = errors.New("batch must contain at least one event")

// BatchChecksum computes the SHA-256 hex digest over the concatenated
// member signatures in order. Member order is load-bearing.
func BatchChecksum(events []audit.Event) string {
	h := sha256.New()
	for i := range events {
		h.Write([]byte(events[i].Signature))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CreateBatch seals already-signed events into a SignedBatch. Every member
// must carry a signature; the first unsigned member fails the whole call
// with an UnsignedEventError naming it. Events are deep-copied into the
// batch.
func (s *Signer) CreateBatch(events []audit.Event) (*audit.SignedBatch, error) {
	if len(events) == 0 {
		return nil, ErrEmptyBatch
	}
	members := make([]audit.Event, len(events))
	for i := range events {
		if !events[i].Signed() {
			return nil, &audit.UnsignedEventError{EventID: events[i].ID}
		}
		members[i] = events[i].Clone()
	}

	checksum := BatchChecksum(members)
	sig, err := s.SignDocument([]byte(checksum))
	if err != nil {
		return nil, err
	}
	return &audit.SignedBatch{
		BatchID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Events:    members,
		Checksum:  checksum,
		Signature: sig,
	}, nil
}

// VerifyBatch checks a batch in corruption-before-tampering order:
//
//  1. Recompute the checksum over member signatures. A mismatch means the
//     stored bytes were damaged (ViolationChecksumMismatch).
//  2. Verify each member signature in order, short-circuiting on the first
//     altered event (ViolationSignatureInvalid naming it).
//  3. Verify the batch signature over the checksum.
func (s *Signer) VerifyBatch(b *audit.SignedBatch) error {
	if len(b.Events) == 0 {
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationChecksumMismatch,
			BatchID: b.BatchID,
			Detail:  "batch has no members",
		}
	}
	if BatchChecksum(b.Events) != b.Checksum {
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationChecksumMismatch,
			BatchID: b.BatchID,
			Detail:  "member signatures do not hash to the recorded checksum",
		}
	}
	for i := range b.Events {
		if err := s.Verify(&b.Events[i]); err != nil {
			var iv *audit.IntegrityViolation
			if errors.As(err, &iv) {
				iv.BatchID = b.BatchID
			}
			return err
		}
	}
	if err := s.VerifyDocument([]byte(b.Checksum), b.Signature); err != nil {
		var iv *audit.IntegrityViolation
		if errors.As(err, &iv) {
			iv.BatchID = b.BatchID
			iv.Detail = "batch signature does not match checksum"
		}
		return err
	}
	return nil
}
