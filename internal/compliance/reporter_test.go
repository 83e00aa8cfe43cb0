// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/signer"
	"github.com/jeranaias/auditcore/internal/store"
)

var testBase = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	ring := signer.NewKeyring()
	if err := ring.Rotate("k1", testKey(0x11)); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	return signer.New(ring)
}

func newTestReporter(t *testing.T, opts Options) (*Reporter, *store.Store, *signer.Signer) {
	t.Helper()
	s := newTestSigner(t)
	dir := t.TempDir()
	st, err := store.Open(store.Options{
		DBPath:  filepath.Join(dir, "audit.db"),
		WarmDir: filepath.Join(dir, "warm"),
		ColdDir: filepath.Join(dir, "cold"),
		Sealer:  s,
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	opts.Store = st
	opts.Signer = s
	if opts.SensitiveResources == nil {
		opts.SensitiveResources = []string{"vault/*"}
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, st, s
}

// action ingests one signed event n minutes into the report window.
func action(t *testing.T, st *store.Store, s *signer.Signer, n int, actionType, resource string, result audit.ActionResult) audit.Event {
	t.Helper()
	return actionMeta(t, st, s, n, actionType, resource, result, nil)
}

func actionMeta(t *testing.T, st *store.Store, s *signer.Signer, n int, actionType, resource string, result audit.ActionResult, meta map[string]string) audit.Event {
	t.Helper()
	e := audit.Event{
		ID:        audit.NewEventID(),
		Timestamp: testBase.Add(time.Duration(n) * time.Minute),
		Actor:     audit.Actor{ID: "user-1842", Type: audit.ActorUser, IP: "203.0.113.7"},
		Action: audit.Action{
			Type:     actionType,
			Resource: resource,
			Result:   result,
			Metadata: meta,
		},
		Context:       audit.Context{Environment: "production", Application: "billing-api"},
		SchemaVersion: audit.SchemaVersion,
	}
	signed, err := s.Sign(&e)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := st.Put(context.Background(), &signed); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return signed
}

func window() (time.Time, time.Time) {
	return testBase, testBase.Add(time.Hour)
}

func TestGenerateReportSOC2(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		action(t, st, s, i, "document.read", "documents/contracts", audit.ResultSuccess)
	}
	action(t, st, s, 10, "document.read", "documents/contracts", audit.ResultFailure)
	action(t, st, s, 11, "login", "sessions/web", audit.ResultSuccess)
	denied1 := action(t, st, s, 12, "secret.read", "vault/prod-keys", audit.ResultDenied)
	denied2 := action(t, st, s, 13, "secret.read", "vault/prod-keys", audit.ResultDenied)

	start, end := window()
	report, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	want := audit.ReportSummary{
		TotalEvents:       10,
		SuccessfulActions: 7,
		FailedActions:     3,
		SecurityIncidents: 2,
	}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if report.Classes["authentication"] != 1 || report.Classes["access_denied"] != 2 || report.Classes["other"] != 7 {
		t.Errorf("Classes = %v", report.Classes)
	}
	if report.ID == "" || report.Signature == "" || report.GeneratedBy != "auditor-7" {
		t.Errorf("report identity incomplete: %+v", report)
	}

	if err := r.VerifyReport(report); err != nil {
		t.Errorf("VerifyReport() error = %v", err)
	}

	// The persisted copy is the same signed document.
	stored, err := st.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if err := r.VerifyReport(stored); err != nil {
		t.Errorf("VerifyReport(stored) error = %v", err)
	}

	// The incident counter traces back to the denied vault reads.
	violations, err := r.Violations(ctx, audit.ReportSOC2, start, end)
	if err != nil {
		t.Fatalf("Violations() error = %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("Violations() = %d, want 2", len(violations))
	}
	gotIDs := map[string]bool{violations[0].Event.ID: true, violations[1].Event.ID: true}
	if !gotIDs[denied1.ID] || !gotIDs[denied2.ID] {
		t.Errorf("violation events = %v, want the denied vault reads", gotIDs)
	}
	for _, v := range violations {
		if v.Rule != "denied-sensitive-access" {
			t.Errorf("Rule = %q, want denied-sensitive-access", v.Rule)
		}
	}
}

func TestGenerateReportMintsFreshIDs(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	action(t, st, s, 0, "document.read", "documents/contracts", audit.ResultSuccess)
	start, end := window()

	first, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	second, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() again error = %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("regenerated report reused id %s", first.ID)
	}
	for _, id := range []string{first.ID, second.ID} {
		if _, err := st.GetReport(ctx, id); err != nil {
			t.Errorf("GetReport(%s) error = %v", id, err)
		}
	}
}

func TestVerifyReportDetectsAlteration(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	action(t, st, s, 0, "secret.read", "vault/prod-keys", audit.ResultDenied)
	start, end := window()
	report, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	doctored := *report
	doctored.Summary.SecurityIncidents = 0
	if err := r.VerifyReport(&doctored); !audit.IsIntegrityViolation(err) {
		t.Errorf("VerifyReport(doctored) error = %v, want integrity violation", err)
	}

	unsigned := *report
	unsigned.Signature = ""
	if err := r.VerifyReport(&unsigned); !audit.IsIntegrityViolation(err) {
		t.Errorf("VerifyReport(unsigned) error = %v, want integrity violation", err)
	}
}

func TestGenerateReportValidation(t *testing.T) {
	r, _, _ := newTestReporter(t, Options{})
	ctx := context.Background()
	start, end := window()

	if _, err := r.GenerateReport(ctx, audit.ReportType("ISO27001"), start, end, "auditor-7"); !errors.Is(err, ErrUnknownFramework) {
		t.Errorf("unknown framework error = %v", err)
	}
	if _, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, ""); !audit.IsValidationError(err) {
		t.Errorf("empty generatedBy error = %v", err)
	}
	if _, err := r.GenerateReport(ctx, audit.ReportSOC2, end, start, "auditor-7"); !audit.IsValidationError(err) {
		t.Errorf("inverted period error = %v", err)
	}
}

func TestReportWindowIsHalfOpen(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	action(t, st, s, 0, "document.read", "documents/contracts", audit.ResultSuccess)
	atEnd := audit.Event{
		ID:            audit.NewEventID(),
		Timestamp:     testBase.Add(time.Hour),
		Actor:         audit.Actor{ID: "user-1842", Type: audit.ActorUser},
		Action:        audit.Action{Type: "document.read", Resource: "documents/contracts", Result: audit.ResultSuccess},
		Context:       audit.Context{Environment: "production", Application: "billing-api"},
		SchemaVersion: audit.SchemaVersion,
	}
	signed, err := s.Sign(&atEnd)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := st.Put(ctx, &signed); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	start, end := window()
	report, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if report.Summary.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1 (end boundary excluded)", report.Summary.TotalEvents)
	}
}

func TestMetadataSensitivityTag(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	// documents/ matches no configured pattern; the metadata tag alone
	// marks it sensitive.
	actionMeta(t, st, s, 0, "document.read", "documents/hr-payroll", audit.ResultDenied,
		map[string]string{"sensitivity": "high"})

	start, end := window()
	report, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if report.Summary.SecurityIncidents != 1 {
		t.Errorf("SecurityIncidents = %d, want 1 via metadata tag", report.Summary.SecurityIncidents)
	}
}

func TestCustomFrameworkRules(t *testing.T) {
	r, st, s := newTestReporter(t, Options{
		CustomRules: []CustomRule{
			{Name: "denied-data-export", ActionPrefixes: []string{"data."}, Results: []string{"denied"}},
		},
	})
	ctx := context.Background()

	tripped := action(t, st, s, 0, "data.export", "documents/contracts", audit.ResultDenied)
	action(t, st, s, 1, "data.export", "documents/contracts", audit.ResultSuccess)
	action(t, st, s, 2, "document.read", "documents/contracts", audit.ResultDenied)

	start, end := window()
	report, err := r.GenerateReport(ctx, audit.ReportCustom, start, end, "auditor-7")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if report.Summary.SecurityIncidents != 1 {
		t.Errorf("SecurityIncidents = %d, want 1", report.Summary.SecurityIncidents)
	}
	// Custom classification buckets by the action type's leading segment.
	if report.Classes["data"] != 2 || report.Classes["document"] != 1 {
		t.Errorf("Classes = %v", report.Classes)
	}

	violations, err := r.Violations(ctx, audit.ReportCustom, start, end)
	if err != nil {
		t.Fatalf("Violations() error = %v", err)
	}
	if len(violations) != 1 || violations[0].Rule != "denied-data-export" || violations[0].Event.ID != tripped.ID {
		t.Errorf("Violations() = %+v, want the denied export", violations)
	}
}

func TestGDPRErasureRules(t *testing.T) {
	r, st, s := newTestReporter(t, Options{SensitiveResources: []string{"users/*"}})
	ctx := context.Background()

	failedErase := action(t, st, s, 0, "record.delete", "users/4021", audit.ResultFailure)
	deniedRead := action(t, st, s, 1, "record.read", "users/4021", audit.ResultDenied)
	action(t, st, s, 2, "record.delete", "users/4021", audit.ResultSuccess)

	start, end := window()
	violations, err := r.Violations(ctx, audit.ReportGDPR, start, end)
	if err != nil {
		t.Fatalf("Violations() error = %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("Violations() = %d, want 2", len(violations))
	}
	byID := map[string]string{}
	for _, v := range violations {
		byID[v.Event.ID] = v.Rule
	}
	if byID[failedErase.ID] != "failed-erasure" {
		t.Errorf("failed delete rule = %q, want failed-erasure", byID[failedErase.ID])
	}
	if byID[deniedRead.ID] != "denied-personal-data-access" {
		t.Errorf("denied read rule = %q, want denied-personal-data-access", byID[deniedRead.ID])
	}
}

func TestGenerateReportRefusesPartialCorpus(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	ctx := context.Background()

	e := action(t, st, s, 0, "document.read", "documents/contracts", audit.ResultSuccess)
	res, err := st.Migrate(ctx, []string{e.ID}, store.TierHot, store.TierWarm)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(res.NewBatches) != 1 {
		t.Fatalf("NewBatches = %v, want one", res.NewBatches)
	}
	if err := os.Remove(filepath.Join(st.WarmDir(), res.NewBatches[0]+".blob")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	start, end := window()
	if _, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7"); err == nil {
		t.Error("GenerateReport() over a degraded tier signed anyway, want refusal")
	}
}

func TestGenerateReportCancellation(t *testing.T) {
	r, st, s := newTestReporter(t, Options{})
	action(t, st, s, 0, "document.read", "documents/contracts", audit.ResultSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start, end := window()
	if _, err := r.GenerateReport(ctx, audit.ReportSOC2, start, end, "auditor-7"); !errors.Is(err, context.Canceled) {
		t.Errorf("GenerateReport(cancelled) error = %v, want context.Canceled", err)
	}
}
