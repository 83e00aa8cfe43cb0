// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// signer.go - Event and document signing. Signatures are
// "<keyID>:<hex HMAC-SHA256 digest>" over canonical bytes; the key id
// prefix keeps rotated-away keys verifiable.

package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jeranaias/auditcore/internal/audit"
)

// Signer signs events and documents with the keyring's active key and
// verifies against any retained key. Methods are pure over their inputs;
// the only shared state is the read-locked keyring, so a single Signer
// serves unlimited concurrent callers.
type Signer struct {
	ring *Keyring
}

// New returns a Signer over ring.
func New(ring *Keyring) *Signer {
	return &Signer{ring: ring}
}

// Keyring returns the underlying keyring.
func (s *Signer) Keyring() *Keyring {
	return s.ring
}

// =============================================================================
// EVENT SIGNING
// =============================================================================

// Sign validates the event and returns a signed copy. The input is not
// mutated. Signing is deterministic: the same event under the same key
// always yields the same signature.
func (s *Signer) Sign(e *audit.Event) (audit.Event, error) {
	if err := e.Validate(); err != nil {
		return audit.Event{}, err
	}
	id, key, err := s.ring.Current()
	if err != nil {
		return audit.Event{}, err
	}
	data, err := CanonicalBytes(e)
	if err != nil {
		return audit.Event{}, err
	}
	signed := e.Clone()
	signed.Signature = id + ":" + computeMAC(key, data)
	return signed, nil
}

// Verify recomputes the event signature and compares in constant time.
// The verification key is selected by the signature's key id prefix; an
// unknown id fails closed. A mismatch is an IntegrityViolation of kind
// signature_invalid: the payload was altered after signing.
func (s *Signer) Verify(e *audit.Event) error {
	if !e.Signed() {
		return &audit.UnsignedEventError{EventID: e.ID}
	}
	keyID, digest, ok := SplitSignature(e.Signature)
	if !ok {
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationSignatureInvalid,
			EventID: e.ID,
			Detail:  "malformed signature",
		}
	}
	key, ok := s.ring.Key(keyID)
	if !ok {
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationSignatureInvalid,
			EventID: e.ID,
			Detail:  fmt.Sprintf("%v: %q", ErrUnknownKeyID, keyID),
		}
	}
	data, err := CanonicalBytes(e)
	if err != nil {
		return err
	}
	// SECURITY: Constant-time comparison prevents timing attacks.
	if !hmac.Equal([]byte(digest), []byte(computeMAC(key, data))) {
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationSignatureInvalid,
			EventID: e.ID,
			Detail:  "signature does not match event content",
		}
	}
	return nil
}

// =============================================================================
// DOCUMENT SIGNING
// =============================================================================

// SignDocument signs arbitrary canonical bytes (compliance reports,
// integrity reports) with the active key, returning "<keyID>:<hex digest>".
func (s *Signer) SignDocument(data []byte) (string, error) {
	id, key, err := s.ring.Current()
	if err != nil {
		return "", err
	}
	return id + ":" + computeMAC(key, data), nil
}

// =============================================================================
// SEAL CHAINS
// =============================================================================

// CurrentKeyID returns the active key id, or "" when no key is loaded.
func (s *Signer) CurrentKeyID() string {
	return s.ring.CurrentID()
}

// ChainMAC computes one link of an HMAC seal chain under the named key:
// hex(HMAC-SHA256(key, prev || item)). Chains anchor shard seals; a chain
// recomputed from stored entries must land on the recorded tip.
func (s *Signer) ChainMAC(keyID, prev, item string) (string, error) {
	key, ok := s.ring.Key(keyID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKeyID, keyID)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prev))
	mac.Write([]byte(item))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyDocument checks sig against data using the key named in sig.
func (s *Signer) VerifyDocument(data []byte, sig string) error {
	keyID, digest, ok := SplitSignature(sig)
	if !ok {
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationSignatureInvalid,
			Detail: "malformed document signature",
		}
	}
	key, ok := s.ring.Key(keyID)
	if !ok {
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationSignatureInvalid,
			Detail: fmt.Sprintf("%v: %q", ErrUnknownKeyID, keyID),
		}
	}
	// SECURITY: Constant-time comparison prevents timing attacks.
	if !hmac.Equal([]byte(digest), []byte(computeMAC(key, data))) {
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationSignatureInvalid,
			Detail: "document signature does not match content",
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// SplitSignature splits "<keyID>:<hex digest>" into its parts.
func SplitSignature(sig string) (keyID, digest string, ok bool) {
	keyID, digest, ok = strings.Cut(sig, ":")
	if !ok || keyID == "" || digest == "" {
		return "", "", false
	}
	return keyID, digest, true
}

// computeMAC returns the hex HMAC-SHA256 digest of data under key.
func computeMAC(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
