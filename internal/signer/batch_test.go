// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package signer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/auditcore/internal/audit"
)

func signedSequence(t *testing.T, s *Signer, n int) []audit.Event {
	t.Helper()
	events := make([]audit.Event, 0, n)
	for i := 1; i <= n; i++ {
		e := testEvent(fmt.Sprintf("evt-%03d", i))
		e.Timestamp = e.Timestamp.Add(time.Duration(i) * time.Minute)
		signed, err := s.Sign(&e)
		require.NoError(t, err)
		events = append(events, signed)
	}
	return events
}

// =============================================================================
// BATCH CREATION TESTS
// =============================================================================

func TestCreateBatch_SealsSignedEvents(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 5)

	b, err := s.CreateBatch(events)
	require.NoError(t, err)
	require.NotEmpty(t, b.BatchID)
	require.Len(t, b.Events, 5)
	require.Equal(t, BatchChecksum(events), b.Checksum)
	require.NotEmpty(t, b.Signature)
	require.NoError(t, s.VerifyBatch(b))
}

func TestCreateBatch_RejectsUnsignedMember(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 3)
	events[1].Signature = ""

	_, err := s.CreateBatch(events)
	require.Error(t, err)
	var ue *audit.UnsignedEventError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "evt-002", ue.EventID)
}

func TestCreateBatch_RejectsEmpty(t *testing.T) {
	s := newTestSigner(t)
	_, err := s.CreateBatch(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestCreateBatch_CopiesMembers(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 2)

	b, err := s.CreateBatch(events)
	require.NoError(t, err)

	events[0].Action.Resource = "mutated/after"
	require.Equal(t, "documents/contracts", b.Events[0].Action.Resource,
		"batch must hold copies, not aliases")
}

func TestBatchChecksum_OrderSensitive(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 3)

	forward := BatchChecksum(events)
	reversed := BatchChecksum([]audit.Event{events[2], events[1], events[0]})
	require.NotEqual(t, forward, reversed, "checksum must depend on member order")
}

// =============================================================================
// BATCH VERIFICATION TESTS
// =============================================================================

// TestVerifyBatch_TamperedMemberIsTampering: payload altered, signature
// string intact. The checksum (over signature strings) still holds, so this
// must surface as signature_invalid naming the event, not corruption.
func TestVerifyBatch_TamperedMemberIsTampering(t *testing.T) {
	s := newTestSigner(t)
	b, err := s.CreateBatch(signedSequence(t, s, 5))
	require.NoError(t, err)

	b.Events[2].Action.Result = audit.ResultDenied

	err = s.VerifyBatch(b)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
	require.Equal(t, "evt-003", iv.EventID)
	require.Equal(t, b.BatchID, iv.BatchID)
}

// TestVerifyBatch_DamagedSignatureIsCorruption: a damaged member signature
// string breaks the checksum first, so this surfaces as corruption.
func TestVerifyBatch_DamagedSignatureIsCorruption(t *testing.T) {
	s := newTestSigner(t)
	b, err := s.CreateBatch(signedSequence(t, s, 5))
	require.NoError(t, err)

	b.Events[2].Signature = "k1:0000000000000000"

	err = s.VerifyBatch(b)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationChecksumMismatch, iv.Kind)
	require.Equal(t, b.BatchID, iv.BatchID)
}

func TestVerifyBatch_RecordedChecksumTampered(t *testing.T) {
	s := newTestSigner(t)
	b, err := s.CreateBatch(signedSequence(t, s, 3))
	require.NoError(t, err)

	b.Checksum = "deadbeef" + b.Checksum[8:]

	err = s.VerifyBatch(b)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationChecksumMismatch, iv.Kind)
}

func TestVerifyBatch_DroppedMemberIsCorruption(t *testing.T) {
	s := newTestSigner(t)
	b, err := s.CreateBatch(signedSequence(t, s, 5))
	require.NoError(t, err)

	b.Events = append(b.Events[:2], b.Events[3:]...)

	err = s.VerifyBatch(b)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationChecksumMismatch, iv.Kind)
}

func TestVerifyBatch_BatchSignatureTampered(t *testing.T) {
	s := newTestSigner(t)
	b, err := s.CreateBatch(signedSequence(t, s, 3))
	require.NoError(t, err)

	other := NewKeyring()
	require.NoError(t, other.Rotate("k1", testKey(0x99)))
	forged, err := New(other).SignDocument([]byte(b.Checksum))
	require.NoError(t, err)
	b.Signature = forged

	err = s.VerifyBatch(b)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
	require.Equal(t, b.BatchID, iv.BatchID)
}
