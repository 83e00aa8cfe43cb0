// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package analytics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/signer"
	"github.com/jeranaias/auditcore/internal/store"
)

func putEvent(t *testing.T, st *store.Store, s *signer.Signer, e audit.Event) audit.Event {
	t.Helper()
	signed, err := s.Sign(&e)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := st.Put(context.Background(), &signed); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return signed
}

func TestGenerateAnalyticsRollup(t *testing.T) {
	a, st, s, _ := newTestAnalyzer(t, Options{})
	ctx := context.Background()

	// user-1842 has history, so routine reads score zero.
	seedHistory(t, st, s, "user-1842", "203.0.113.7", "document.read")
	for i := 0; i < 3; i++ {
		putEvent(t, st, s, event("user-1842", "203.0.113.7", "document.read", "documents/contracts",
			audit.ResultSuccess, testBase.Add(time.Duration(i)*time.Minute)))
	}
	// user-7 is brand new and gets denied a privileged action.
	denied := putEvent(t, st, s, event("user-7", "198.51.100.9", "admin.grant", "roles/ops",
		audit.ResultDenied, testBase.Add(5*time.Minute)))

	report, err := a.GenerateAnalytics(ctx, testBase, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateAnalytics() error = %v", err)
	}

	m := report.Metrics
	if m.TotalEvents != 4 || m.UniqueActors != 2 {
		t.Errorf("Metrics = %+v, want 4 events from 2 actors", m)
	}
	if m.ByResult["success"] != 3 || m.ByResult["denied"] != 1 {
		t.Errorf("ByResult = %v", m.ByResult)
	}
	if m.ByActorType["user"] != 4 {
		t.Errorf("ByActorType = %v", m.ByActorType)
	}

	if len(report.Hourly) != 1 || report.Hourly[0].Count != 4 {
		t.Errorf("Hourly = %+v, want one bucket of 4", report.Hourly)
	}
	if len(report.Daily) != 1 || report.Daily[0].Count != 4 {
		t.Errorf("Daily = %+v, want one bucket of 4", report.Daily)
	}

	// The denied privileged action by a new actor dominates; the routine
	// reads score zero and never appear.
	if len(report.Anomalies) != 1 {
		t.Fatalf("Anomalies = %+v, want exactly the denied grant", report.Anomalies)
	}
	top := report.Anomalies[0]
	if top.EventID != denied.ID {
		t.Errorf("top anomaly = %s, want %s", top.EventID, denied.ID)
	}
	if top.Score == 0 || top.Severity == audit.SeverityLow {
		t.Errorf("top anomaly score = %d/%s, want elevated", top.Score, top.Severity)
	}

	if len(report.Patterns) != 0 {
		t.Errorf("Patterns = %+v, want none at this volume", report.Patterns)
	}
	if report.Partial {
		t.Error("Partial = true on a healthy store")
	}
}

func TestGenerateAnalyticsDedupesAnomalies(t *testing.T) {
	a, st, s, _ := newTestAnalyzer(t, Options{})
	ctx := context.Background()

	seedHistory(t, st, s, "user-1842", "203.0.113.7", "document.read")
	// Three identical novelties: same actor, same new ip, same action.
	for i := 0; i < 3; i++ {
		putEvent(t, st, s, event("user-1842", "198.51.100.9", "document.read", "documents/contracts",
			audit.ResultSuccess, testBase.Add(time.Duration(i)*time.Minute)))
	}

	report, err := a.GenerateAnalytics(ctx, testBase, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateAnalytics() error = %v", err)
	}
	if len(report.Anomalies) != 1 {
		t.Errorf("Anomalies = %d, want 1 after dedup by actor and reason set", len(report.Anomalies))
	}
}

func TestGenerateAnalyticsPartialOnDegradedTier(t *testing.T) {
	a, st, s, _ := newTestAnalyzer(t, Options{})
	ctx := context.Background()

	putEvent(t, st, s, event("user-1842", "203.0.113.7", "document.read", "documents/contracts",
		audit.ResultSuccess, testBase))
	archived := putEvent(t, st, s, event("user-1842", "203.0.113.7", "document.read", "documents/contracts",
		audit.ResultSuccess, testBase.Add(time.Minute)))

	res, err := st.Migrate(ctx, []string{archived.ID}, store.TierHot, store.TierWarm)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := os.Remove(filepath.Join(st.WarmDir(), res.NewBatches[0]+".blob")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	report, err := a.GenerateAnalytics(ctx, testBase, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateAnalytics() error = %v", err)
	}
	if !report.Partial {
		t.Error("Partial = false over a degraded warm tier")
	}
	if report.Metrics.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want the readable hot event only", report.Metrics.TotalEvents)
	}
}
