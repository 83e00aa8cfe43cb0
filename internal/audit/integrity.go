// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// integrity.go - Integrity reports: point-in-time assertions over an
// ordered event sequence. Never persisted as authoritative state.

package audit

import "time"

// IntegrityStatus is the overall verdict of an integrity report.
type IntegrityStatus string

const (
	IntegrityVerified    IntegrityStatus = "verified"
	IntegrityCompromised IntegrityStatus = "compromised"
)

// IssueKind names the defect an integrity walk found on an event.
type IssueKind string

const (
	// IssueSignatureInvalid: the event's signature does not verify.
	IssueSignatureInvalid IssueKind = "signature_invalid"
	// IssueChainBreak: the sequence itself is broken, a duplicated id or a
	// timestamp regression inside the walked order.
	IssueChainBreak IssueKind = "chain_break"
	// IssueMissingEvent: an id expected in the supplied contiguous range
	// is absent from the sequence.
	IssueMissingEvent IssueKind = "missing_event"
)

// Issue names one defect found during an integrity walk.
type Issue struct {
	EventID string    `json:"eventId"`
	Kind    IssueKind `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

// IntegrityReport is the result of verifying an ordered event sequence.
// The walk records every defect found, never stopping at the first. The
// tamper seal is a hash over the full reported sequence; the report
// signature covers the report itself so the assertion is portable.
type IntegrityReport struct {
	Status          IntegrityStatus `json:"status"`
	GeneratedAt     time.Time       `json:"generatedAt"`
	EventCount      int             `json:"eventCount"`
	Issues          []Issue         `json:"issues"`
	TamperSeal      string          `json:"tamperSeal"`
	ReportSignature string          `json:"reportSignature,omitempty"`
}

// Compromised reports whether the walk found any defect.
func (r *IntegrityReport) Compromised() bool {
	return r.Status == IntegrityCompromised
}

// IssuesFor returns the defects recorded against one event id.
func (r *IntegrityReport) IssuesFor(eventID string) []Issue {
	var out []Issue
	for _, iss := range r.Issues {
		if iss.EventID == eventID {
			out = append(out, iss)
		}
	}
	return out
}
