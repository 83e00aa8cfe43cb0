// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package signer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/auditcore/internal/audit"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	ring := NewKeyring()
	require.NoError(t, ring.Rotate("k1", testKey(0x11)))
	return New(ring)
}

func testEvent(id string) audit.Event {
	return audit.Event{
		ID:        id,
		Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		Actor: audit.Actor{
			ID:   "user-1842",
			Type: audit.ActorUser,
			IP:   "203.0.113.7",
		},
		Action: audit.Action{
			Type:     "document.read",
			Resource: "documents/contracts",
			Result:   audit.ResultSuccess,
		},
		Context: audit.Context{
			Environment: "production",
			Application: "billing-api",
		},
		SchemaVersion: audit.SchemaVersion,
	}
}

// =============================================================================
// CANONICAL SERIALIZATION TESTS
// =============================================================================

// TestCanonicalBytes_Pinned pins the exact canonical encoding. Changing it
// invalidates every existing signature, so this test failing means a
// schema version bump is required.
func TestCanonicalBytes_Pinned(t *testing.T) {
	e := testEvent("evt-001")
	got, err := CanonicalBytes(&e)
	require.NoError(t, err)

	want := `{"id":"evt-001","timestamp":"2025-03-14T09:26:53Z",` +
		`"actor":{"id":"user-1842","type":"user","ip":"203.0.113.7"},` +
		`"action":{"type":"document.read","resource":"documents/contracts","result":"success"},` +
		`"context":{"environment":"production","application":"billing-api","version":""},` +
		`"schemaVersion":1}`
	require.Equal(t, want, string(got))
}

func TestCanonicalBytes_ExcludesSignature(t *testing.T) {
	e := testEvent("evt-001")
	unsigned, err := CanonicalBytes(&e)
	require.NoError(t, err)

	e.Signature = "k1:deadbeef"
	signed, err := CanonicalBytes(&e)
	require.NoError(t, err)

	require.True(t, bytes.Equal(unsigned, signed),
		"canonical bytes must not change when the signature field is set")
}

func TestCanonicalBytes_NoHTMLEscaping(t *testing.T) {
	e := testEvent("evt-001")
	e.Action.Resource = "documents/<contracts>&reports"
	got, err := CanonicalBytes(&e)
	require.NoError(t, err)
	require.Contains(t, string(got), "documents/<contracts>&reports")
	require.NotContains(t, string(got), `\u003c`)
}

func TestCanonicalBytes_MetadataKeysSorted(t *testing.T) {
	e := testEvent("evt-001")
	e.Action.Metadata = map[string]string{"zone": "z", "alpha": "a", "mid": "m"}
	got, err := CanonicalBytes(&e)
	require.NoError(t, err)

	s := string(got)
	require.Less(t, strings.Index(s, `"alpha"`), strings.Index(s, `"mid"`))
	require.Less(t, strings.Index(s, `"mid"`), strings.Index(s, `"zone"`))
}

func TestCanonicalBytes_DoesNotMutateInput(t *testing.T) {
	e := testEvent("evt-001")
	e.Signature = "k1:cafe"
	_, err := CanonicalBytes(&e)
	require.NoError(t, err)
	require.Equal(t, "k1:cafe", e.Signature)
}

// =============================================================================
// SIGN / VERIFY TESTS
// =============================================================================

func TestSign_ProducesKeyPrefixedSignature(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")

	signed, err := s.Sign(&e)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed.Signature, "k1:"),
		"signature should carry the key id prefix, got %q", signed.Signature)
	require.Empty(t, e.Signature, "Sign must not mutate its input")
}

func TestSign_Deterministic(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")

	first, err := s.Sign(&e)
	require.NoError(t, err)
	second, err := s.Sign(&e)
	require.NoError(t, err)
	require.Equal(t, first.Signature, second.Signature,
		"same event under same key must sign identically")
}

func TestSign_RejectsInvalidEvent(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")
	e.Actor.ID = ""

	_, err := s.Sign(&e)
	require.Error(t, err)
	require.True(t, audit.IsValidationError(err), "want ValidationError, got %T", err)
}

func TestVerify_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")

	signed, err := s.Sign(&e)
	require.NoError(t, err)
	require.NoError(t, s.Verify(&signed))
}

func TestVerify_DetectsMutation(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")
	signed, err := s.Sign(&e)
	require.NoError(t, err)

	mutations := []func(*audit.Event){
		func(e *audit.Event) { e.Action.Resource = "vault/prod-keys" },
		func(e *audit.Event) { e.Action.Result = audit.ResultDenied },
		func(e *audit.Event) { e.Actor.ID = "user-0000" },
		func(e *audit.Event) { e.Timestamp = e.Timestamp.Add(time.Second) },
		func(e *audit.Event) { e.Action.Metadata = map[string]string{"injected": "true"} },
	}
	for i, mutate := range mutations {
		tampered := signed.Clone()
		mutate(&tampered)

		err := s.Verify(&tampered)
		require.Error(t, err, "mutation %d must fail verification", i)
		var iv *audit.IntegrityViolation
		require.True(t, errors.As(err, &iv), "mutation %d: want IntegrityViolation, got %T", i, err)
		require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
	}
}

func TestVerify_UnsignedEvent(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")

	err := s.Verify(&e)
	require.Error(t, err)
	require.True(t, audit.IsUnsignedEventError(err))
}

func TestVerify_MalformedSignature(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")

	for _, sig := range []string{"nodigest", ":missingkey", "k1:", "k1"} {
		e.Signature = sig
		err := s.Verify(&e)
		require.Error(t, err, "signature %q must be rejected", sig)
		var iv *audit.IntegrityViolation
		require.True(t, errors.As(err, &iv))
		require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
	}
}

func TestVerify_UnknownKeyFailsClosed(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")
	signed, err := s.Sign(&e)
	require.NoError(t, err)

	other := NewKeyring()
	require.NoError(t, other.Rotate("k2", testKey(0x22)))

	err = New(other).Verify(&signed)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
	require.Contains(t, iv.Detail, "k1")
}

// TestVerify_RotationKeepsHistoryVerifiable is the rotation contract:
// events signed under a rotated-away key must keep verifying.
func TestVerify_RotationKeepsHistoryVerifiable(t *testing.T) {
	s := newTestSigner(t)
	e := testEvent("evt-001")
	old, err := s.Sign(&e)
	require.NoError(t, err)

	require.NoError(t, s.Keyring().Rotate("k2", testKey(0x22)))

	e2 := testEvent("evt-002")
	fresh, err := s.Sign(&e2)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fresh.Signature, "k2:"))

	require.NoError(t, s.Verify(&old), "pre-rotation event must still verify")
	require.NoError(t, s.Verify(&fresh))
}

// =============================================================================
// DOCUMENT SIGNING TESTS
// =============================================================================

func TestSignDocument_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	doc := []byte(`{"report":"soc2","total":10}`)

	sig, err := s.SignDocument(doc)
	require.NoError(t, err)
	require.NoError(t, s.VerifyDocument(doc, sig))

	err = s.VerifyDocument([]byte(`{"report":"soc2","total":11}`), sig)
	require.Error(t, err)
	var iv *audit.IntegrityViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, audit.ViolationSignatureInvalid, iv.Kind)
}

func TestSignDocument_NoKey(t *testing.T) {
	s := New(NewKeyring())
	_, err := s.SignDocument([]byte("x"))
	require.ErrorIs(t, err, ErrNoKey)
}

func TestSplitSignature(t *testing.T) {
	id, digest, ok := SplitSignature("k1:abc123")
	require.True(t, ok)
	require.Equal(t, "k1", id)
	require.Equal(t, "abc123", digest)

	for _, bad := range []string{"", "k1", ":abc", "k1:"} {
		_, _, ok := SplitSignature(bad)
		require.False(t, ok, "SplitSignature(%q) should fail", bad)
	}
}
