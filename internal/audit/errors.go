// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - The shared error taxonomy. Integrity and storage errors are
// always surfaced to the caller; validation errors are returned to the
// submitter; policy conflicts stay internal to the retention engine.

package audit

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError rejects a malformed event before it is signed. Rejected
// events never enter the log.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// =============================================================================
// UNSIGNED EVENT
// =============================================================================

// UnsignedEventError marks a batch assembly attempt over an event that has
// no signature. This is a programmer error and fatal to the call.
type UnsignedEventError struct {
	EventID string
}

func (e *UnsignedEventError) Error() string {
	return fmt.Sprintf("event %s is not signed; batches require individually signed events", e.EventID)
}

// IsUnsignedEventError reports whether err is (or wraps) an UnsignedEventError.
func IsUnsignedEventError(err error) bool {
	var v *UnsignedEventError
	return errors.As(err, &v)
}

// =============================================================================
// INTEGRITY
// =============================================================================

// ViolationKind distinguishes what an integrity check caught.
type ViolationKind string

const (
	// ViolationChecksumMismatch: a batch checksum no longer matches its
	// members. Storage corruption, not tampering.
	ViolationChecksumMismatch ViolationKind = "checksum_mismatch"
	// ViolationSignatureInvalid: an event or batch signature fails
	// verification. Tampering.
	ViolationSignatureInvalid ViolationKind = "signature_invalid"
	// ViolationImmutableEvent: an attempt to rewrite an already-signed
	// event under the same id.
	ViolationImmutableEvent ViolationKind = "immutable_event"
	// ViolationOutOfBandChange: an archive object was modified or removed
	// outside the engine.
	ViolationOutOfBandChange ViolationKind = "out_of_band_change"
)

// IntegrityViolation reports a signature or checksum mismatch detected
// during verification or migration. Never silently ignored: callers
// surface it and record it as a security event in its own right.
type IntegrityViolation struct {
	Kind    ViolationKind
	EventID string
	BatchID string
	Detail  string
}

func (e *IntegrityViolation) Error() string {
	var b strings.Builder
	b.WriteString("integrity violation: ")
	b.WriteString(string(e.Kind))
	if e.EventID != "" {
		fmt.Fprintf(&b, " (event %s)", e.EventID)
	}
	if e.BatchID != "" {
		fmt.Fprintf(&b, " (batch %s)", e.BatchID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// IsIntegrityViolation reports whether err is (or wraps) an IntegrityViolation.
func IsIntegrityViolation(err error) bool {
	var v *IntegrityViolation
	return errors.As(err, &v)
}

// =============================================================================
// STORAGE
// =============================================================================

// StorageUnavailable marks an unreachable storage tier. Reads degrade to
// the reachable tiers with a partial-result flag; hot-tier writes never
// degrade, an outage there blocks ingestion outright.
type StorageUnavailable struct {
	Tier string
	Op   string
	Err  error
}

func (e *StorageUnavailable) Error() string {
	return fmt.Sprintf("storage unavailable: %s tier: %s: %v", e.Tier, e.Op, e.Err)
}

func (e *StorageUnavailable) Unwrap() error {
	return e.Err
}

// IsStorageUnavailable reports whether err is (or wraps) a StorageUnavailable.
func IsStorageUnavailable(err error) bool {
	var v *StorageUnavailable
	return errors.As(err, &v)
}

// =============================================================================
// POLICY CONFLICT
// =============================================================================

// PolicyConflictError records two enabled policies claiming the same event
// with different targets for the same age bracket. It is resolved
// internally in favor of the longer retention and never propagated to the
// caller; retention cycle reports carry it for observability.
type PolicyConflictError struct {
	EventID   string
	PolicyIDs []string
}

func (e *PolicyConflictError) Error() string {
	return fmt.Sprintf("retention policy conflict on event %s: policies %s",
		e.EventID, strings.Join(e.PolicyIDs, ", "))
}
