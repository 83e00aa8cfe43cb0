// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// report.go - Integrity report generation. Unlike batch verification,
// which short-circuits, the report walk records every defect in the
// sequence so one pass gives the full damage picture.

package signer

import (
	"fmt"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// IDRange describes an expected contiguous id sequence with a numeric
// suffix: "<prefix><n>" for n in [From, To]. Pad zero-pads n to that width
// when positive. Callers whose ids follow this convention can have the
// report flag absent events as missing_event.
type IDRange struct {
	Prefix string
	From   int
	To     int
	Pad    int
}

// IDs expands the range into the expected id list, in order.
func (r *IDRange) IDs() []string {
	if r.To < r.From {
		return nil
	}
	ids := make([]string, 0, r.To-r.From+1)
	for n := r.From; n <= r.To; n++ {
		if r.Pad > 0 {
			ids = append(ids, fmt.Sprintf("%s%0*d", r.Prefix, r.Pad, n))
		} else {
			ids = append(ids, fmt.Sprintf("%s%d", r.Prefix, n))
		}
	}
	return ids
}

// BuildIntegrityReport walks the ordered event sequence once and records
// every defect found:
//
//   - signature_invalid: the member's signature does not verify
//   - chain_break: a duplicated id, or a timestamp regression inside the
//     walked order
//   - missing_event: an id from the expected range (when supplied) absent
//     from the sequence
//
// Any issue makes the status compromised. The tamper seal hashes the full
// reported sequence; the report signature covers the report body so the
// assertion itself is tamper-evident.
func (s *Signer) BuildIntegrityReport(events []audit.Event, expected *IDRange) (*audit.IntegrityReport, error) {
	report := &audit.IntegrityReport{
		Status:      audit.IntegrityVerified,
		GeneratedAt: time.Now().UTC(),
		EventCount:  len(events),
		Issues:      []audit.Issue{},
	}

	seen := make(map[string]bool, len(events))
	var prev time.Time
	for i := range events {
		e := &events[i]

		if err := s.Verify(e); err != nil {
			report.Issues = append(report.Issues, audit.Issue{
				EventID: e.ID,
				Kind:    audit.IssueSignatureInvalid,
				Detail:  err.Error(),
			})
		}
		if seen[e.ID] {
			report.Issues = append(report.Issues, audit.Issue{
				EventID: e.ID,
				Kind:    audit.IssueChainBreak,
				Detail:  "duplicate event id in sequence",
			})
		}
		seen[e.ID] = true

		if i > 0 && e.Timestamp.Before(prev) {
			report.Issues = append(report.Issues, audit.Issue{
				EventID: e.ID,
				Kind:    audit.IssueChainBreak,
				Detail: fmt.Sprintf("timestamp regression: %s before %s",
					e.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339)),
			})
		}
		prev = e.Timestamp
	}

	if expected != nil {
		for _, id := range expected.IDs() {
			if !seen[id] {
				report.Issues = append(report.Issues, audit.Issue{
					EventID: id,
					Kind:    audit.IssueMissingEvent,
					Detail:  "expected event absent from sequence",
				})
			}
		}
	}

	if len(report.Issues) > 0 {
		report.Status = audit.IntegrityCompromised
	}
	report.TamperSeal = BatchChecksum(events)

	data, err := CanonicalJSON(report)
	if err != nil {
		return nil, err
	}
	sig, err := s.SignDocument(data)
	if err != nil {
		return nil, err
	}
	report.ReportSignature = sig
	return report, nil
}

// VerifyIntegrityReport re-derives the report signature. A mismatch means
// the report was altered after it was issued.
func (s *Signer) VerifyIntegrityReport(r *audit.IntegrityReport) error {
	body := *r
	body.ReportSignature = ""
	data, err := CanonicalJSON(&body)
	if err != nil {
		return err
	}
	return s.VerifyDocument(data, r.ReportSignature)
}
