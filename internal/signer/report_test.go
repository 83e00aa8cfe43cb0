// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package signer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/auditcore/internal/audit"
)

// =============================================================================
// INTEGRITY REPORT TESTS
// =============================================================================

func TestBuildIntegrityReport_CleanSequence(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 10)

	report, err := s.BuildIntegrityReport(events, &IDRange{Prefix: "evt-", From: 1, To: 10, Pad: 3})
	require.NoError(t, err)
	require.Equal(t, audit.IntegrityVerified, report.Status)
	require.False(t, report.Compromised())
	require.Empty(t, report.Issues)
	require.Equal(t, 10, report.EventCount)
	require.Equal(t, BatchChecksum(events), report.TamperSeal)
	require.NotEmpty(t, report.ReportSignature)
}

// TestBuildIntegrityReport_TamperAndGap: out of ten events, event 3's
// payload is altered and event 7 is removed entirely. The report must name
// both defects precisely and nothing else.
func TestBuildIntegrityReport_TamperAndGap(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 10)

	events[2].Action.Resource = "vault/prod-keys"
	events = append(events[:6], events[7:]...)

	report, err := s.BuildIntegrityReport(events, &IDRange{Prefix: "evt-", From: 1, To: 10, Pad: 3})
	require.NoError(t, err)
	require.Equal(t, audit.IntegrityCompromised, report.Status)
	require.Len(t, report.Issues, 2)

	tampered := report.IssuesFor("evt-003")
	require.Len(t, tampered, 1)
	require.Equal(t, audit.IssueSignatureInvalid, tampered[0].Kind)

	missing := report.IssuesFor("evt-007")
	require.Len(t, missing, 1)
	require.Equal(t, audit.IssueMissingEvent, missing[0].Kind)

	require.Empty(t, report.IssuesFor("evt-004"), "untouched events must not be flagged")
}

// TestBuildIntegrityReport_RecordsEveryDefect: the walk must not stop at
// the first problem.
func TestBuildIntegrityReport_RecordsEveryDefect(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 6)

	events[0].Actor.ID = "intruder"
	events[3].Action.Result = audit.ResultDenied
	events[5].Timestamp = events[5].Timestamp.Add(48 * time.Hour)

	report, err := s.BuildIntegrityReport(events, nil)
	require.NoError(t, err)
	require.Equal(t, audit.IntegrityCompromised, report.Status)
	require.Len(t, report.Issues, 3)
	require.NotEmpty(t, report.IssuesFor("evt-001"))
	require.NotEmpty(t, report.IssuesFor("evt-004"))
	require.NotEmpty(t, report.IssuesFor("evt-006"))
}

func TestBuildIntegrityReport_DuplicateIDIsChainBreak(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 3)
	seq := []audit.Event{events[0], events[1], events[1].Clone(), events[2]}

	report, err := s.BuildIntegrityReport(seq, nil)
	require.NoError(t, err)
	require.Equal(t, audit.IntegrityCompromised, report.Status)

	issues := report.IssuesFor("evt-002")
	require.Len(t, issues, 1)
	require.Equal(t, audit.IssueChainBreak, issues[0].Kind)
}

func TestBuildIntegrityReport_TimestampRegressionIsChainBreak(t *testing.T) {
	s := newTestSigner(t)

	// Sign events with a deliberate regression baked in, so signatures
	// verify but the walked order is broken.
	e1 := testEvent("evt-001")
	e2 := testEvent("evt-002")
	e2.Timestamp = e1.Timestamp.Add(-time.Hour)

	s1, err := s.Sign(&e1)
	require.NoError(t, err)
	s2, err := s.Sign(&e2)
	require.NoError(t, err)

	report, err := s.BuildIntegrityReport([]audit.Event{s1, s2}, nil)
	require.NoError(t, err)

	issues := report.IssuesFor("evt-002")
	require.Len(t, issues, 1)
	require.Equal(t, audit.IssueChainBreak, issues[0].Kind)
}

func TestVerifyIntegrityReport_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	report, err := s.BuildIntegrityReport(signedSequence(t, s, 4), nil)
	require.NoError(t, err)

	require.NoError(t, s.VerifyIntegrityReport(report))
}

// TestVerifyIntegrityReport_DetectsAlteredReport: a report doctored after
// issuance (hiding an issue, flipping the verdict) must fail its own
// signature check.
func TestVerifyIntegrityReport_DetectsAlteredReport(t *testing.T) {
	s := newTestSigner(t)
	events := signedSequence(t, s, 4)
	events[1].Action.Resource = "vault/prod-keys"

	report, err := s.BuildIntegrityReport(events, nil)
	require.NoError(t, err)
	require.True(t, report.Compromised())

	doctored := *report
	doctored.Status = audit.IntegrityVerified
	doctored.Issues = nil
	require.Error(t, s.VerifyIntegrityReport(&doctored))
}

func TestIDRange_IDs(t *testing.T) {
	r := IDRange{Prefix: "evt-", From: 1, To: 3, Pad: 3}
	require.Equal(t, []string{"evt-001", "evt-002", "evt-003"}, r.IDs())

	plain := IDRange{Prefix: "e", From: 9, To: 11}
	require.Equal(t, []string{"e9", "e10", "e11"}, plain.IDs())

	empty := IDRange{From: 5, To: 4}
	require.Empty(t, empty.IDs())
}
