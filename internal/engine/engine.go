// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// engine.go - The audit engine facade. Wires the signer, the tiered
// store, retention, compliance, and anomaly analytics into one surface
// the CLI and embedders call. The engine owns the ingestion path: every
// event is normalized, validated, signed, and durably stored before
// Submit returns.

package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/auditcore/internal/analytics"
	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/compliance"
	"github.com/jeranaias/auditcore/internal/config"
	"github.com/jeranaias/auditcore/internal/retention"
	"github.com/jeranaias/auditcore/internal/signer"
	"github.com/jeranaias/auditcore/internal/store"
)

// ErrEngineClosed is returned by every operation after Close.
var ErrEngineClosed = errors.New("engine is closed")

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Options configures an Engine. Config is required; the rest default.
type Options struct {
	Config *config.Config

	// Exporter overrides the outbound event stream. Nil means a JSONL
	// exporter at the configured path when export is enabled, otherwise
	// no export.
	Exporter Exporter

	// Notifier overrides alert and violation delivery. Nil means a JSONL
	// notifier at the configured alerts path.
	Notifier Notifier

	// Clock supplies "now". Tests inject a fixed clock.
	Clock func() time.Time
}

// Engine is the assembled audit pipeline.
type Engine struct {
	cfg       *config.Config
	ring      *signer.Keyring
	signer    *signer.Signer
	keySource signer.KeySource

	store     *store.Store
	retention *retention.Engine
	reporter  *compliance.Reporter
	analyzer  *analytics.Analyzer

	exporter Exporter
	notifier Notifier
	limiter  *rate.Limiter

	inlineScoring bool
	clock         func() time.Time
	closed        atomic.Bool
}

// Open assembles an engine from the configuration. The signing keyring
// must resolve to at least one key; no key is ever generated implicitly.
func Open(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("engine requires a config")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ring, source, err := signer.LoadKeyring(signer.KeyringConfig{
		ActiveKey:  cfg.Signing.ActiveKey,
		Keys:       cfg.Signing.Keys,
		Passphrase: cfg.Signing.Passphrase,
		SaltHex:    cfg.Signing.Salt,
		KeyDir:     cfg.Signing.KeyDir,
	})
	if err != nil {
		return nil, fmt.Errorf("signing keyring: %w", err)
	}
	sgn := signer.New(ring)

	coldKey, err := coldEncryptionKey(&cfg.Storage)
	if err != nil {
		ring.Close()
		return nil, err
	}

	st, err := store.Open(store.Options{
		DBPath:             cfg.Storage.DBPath,
		WarmDir:            cfg.Storage.WarmDir,
		ColdDir:            cfg.Storage.ColdDir,
		ColdEncryptionKey:  coldKey,
		MigrationBatchSize: cfg.Storage.MigrationBatchSize,
		Sealer:             sgn,
	})
	if err != nil {
		ring.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	e := &Engine{
		cfg:           cfg,
		ring:          ring,
		signer:        sgn,
		keySource:     source,
		store:         st,
		inlineScoring: cfg.Ingest.InlineScoring,
		clock:         clock,
	}

	e.notifier = opts.Notifier
	if e.notifier == nil {
		e.notifier = NewJSONLNotifier(cfg.Export.AlertsPath)
	}
	e.exporter = opts.Exporter
	if e.exporter == nil {
		if cfg.Export.Enabled {
			e.exporter = NewJSONLExporter(cfg.Export.EventsPath, JSONLExporterOptions{
				RetryMax:    cfg.Export.RetryMax,
				RetryBase:   time.Duration(cfg.Export.RetryBaseMs) * time.Millisecond,
				BufferLimit: cfg.Export.BufferLimit,
			})
		} else {
			e.exporter = NopExporter{}
		}
	}
	if cfg.Ingest.RatePerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSec), cfg.Ingest.Burst)
	}

	e.retention, err = retention.New(retention.Options{
		Store:    st,
		LeaseTTL: time.Duration(cfg.Retention.LeaseTTLMinutes) * time.Minute,
		PageSize: cfg.Retention.PageSize,
		Clock:    clock,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.reporter, err = compliance.New(compliance.Options{
		Store:              st,
		Signer:             sgn,
		SensitiveResources: cfg.Compliance.SensitiveResources,
		CustomRules:        cfg.Compliance.Custom,
		PageSize:           cfg.Compliance.PageSize,
		Clock:              clock,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.analyzer, err = analytics.New(analytics.Options{
		Store:              st,
		SensitiveResources: cfg.Compliance.SensitiveResources,
		Weights:            cfg.Analytics.Weights,
		PrivilegedActions:  cfg.Analytics.PrivilegedActions,
		DestructiveActions: cfg.Analytics.DestructiveActions,
		OffHoursStart:      cfg.Analytics.OffHoursStart,
		OffHoursEnd:        cfg.Analytics.OffHoursEnd,
		AlertThreshold:     cfg.Analytics.CriticalAlertThreshold,
		OnAlert:            e.alertFired,
		Patterns: analytics.PatternOptions{
			FailureThreshold: cfg.Analytics.Patterns.FailureThreshold,
			FailureWindow:    time.Duration(cfg.Analytics.Patterns.FailureWindowSeconds) * time.Second,
			ProbeThreshold:   cfg.Analytics.Patterns.ProbeThreshold,
			BurstFactor:      cfg.Analytics.Patterns.BurstFactor,
			BurstMinEvents:   cfg.Analytics.Patterns.BurstMinEvents,
		},
		BaselineLookback: time.Duration(cfg.Analytics.BaselineLookbackDays) * 24 * time.Hour,
		BaselineTTL:      time.Duration(cfg.Analytics.BaselineTTLMinutes) * time.Minute,
		PageSize:         cfg.Compliance.PageSize,
		Clock:            clock,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// coldEncryptionKey resolves the cold-tier key from the storage config:
// explicit hex material, or PBKDF2 derivation from a passphrase.
func coldEncryptionKey(sc *config.StorageConfig) ([]byte, error) {
	if !sc.ColdEncryption {
		return nil, nil
	}
	if sc.ColdKey != "" {
		key, err := signer.ParseKeyHex(sc.ColdKey)
		if err != nil {
			return nil, fmt.Errorf("cold encryption key: %w", err)
		}
		return key, nil
	}
	if sc.ColdPassphrase == "" {
		return nil, errors.New("cold encryption requires cold_key or cold_passphrase")
	}
	salt, err := hex.DecodeString(sc.ColdSalt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("cold encryption salt must be non-empty hex")
	}
	return signer.DeriveKey(sc.ColdPassphrase, salt), nil
}

// Close releases the store, the exporter, and the key material. Safe to
// call more than once.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if e.exporter != nil {
		if err := e.exporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.ring != nil {
		e.ring.Close()
	}
	return errors.Join(errs...)
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// Store exposes the underlying store for read-side tooling.
func (e *Engine) Store() *store.Store { return e.store }

// =============================================================================
// INGESTION
// =============================================================================

// Submit normalizes, validates, signs, and durably stores one event,
// returning the signed copy. The input is not mutated. When inline
// scoring is enabled the event is scored before return and a threshold
// crossing raises an alert; scoring failures never fail the submission.
func (e *Engine) Submit(ctx context.Context, ev audit.Event) (*audit.Event, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if ev.Signature != "" {
		return nil, &audit.ValidationError{Field: "signature", Reason: "must be empty on submission"}
	}
	ev.Normalize(e.clock().UTC())
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	signed, err := e.signer.Sign(&ev)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, &signed); err != nil {
		var iv *audit.IntegrityViolation
		if errors.As(err, &iv) {
			e.notifyViolation(iv)
		}
		return nil, err
	}

	if err := e.exporter.Export(&signed); err != nil {
		// The event is durable; export delivery is at-least-once and
		// catches up on the next submission.
		e.notifyExportFailure([]string{signed.ID}, err)
	}

	if e.inlineScoring {
		if _, err := e.analyzer.AnalyzeEvent(ctx, &signed); err != nil && ctx.Err() == nil {
			e.notifier.Notify(Notification{
				Kind:     KindAnomalyAlert,
				Severity: audit.SeverityLow,
				Message:  fmt.Sprintf("inline scoring failed for event %s: %v", signed.ID, err),
				EventIDs: []string{signed.ID},
				At:       e.clock().UTC(),
			})
		}
	}
	return &signed, nil
}

// SubmitBatch signs and stores a group of events as one signed batch.
// All-or-nothing: a validation failure on any member rejects the whole
// batch before anything is stored.
func (e *Engine) SubmitBatch(ctx context.Context, events []audit.Event) (*audit.SignedBatch, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.New("batch must hold at least one event")
	}
	now := e.clock().UTC()
	signed := make([]audit.Event, len(events))
	for i := range events {
		ev := events[i].Clone()
		if ev.Signature != "" {
			return nil, &audit.ValidationError{Field: "signature", Reason: "must be empty on submission"}
		}
		ev.Normalize(now)
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("batch member %d: %w", i, err)
		}
		s, err := e.signer.Sign(&ev)
		if err != nil {
			return nil, err
		}
		signed[i] = s
	}
	if e.limiter != nil {
		if err := e.limiter.WaitN(ctx, len(signed)); err != nil {
			return nil, err
		}
	}

	batch, err := e.signer.CreateBatch(signed)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutBatch(ctx, batch); err != nil {
		var iv *audit.IntegrityViolation
		if errors.As(err, &iv) {
			e.notifyViolation(iv)
		}
		return nil, err
	}
	var exportErr error
	var undelivered []string
	for i := range batch.Events {
		if err := e.exporter.Export(&batch.Events[i]); err != nil {
			// Keep offering the rest; the sink may refuse selectively.
			undelivered = append(undelivered, batch.Events[i].ID)
			exportErr = err
		}
	}
	if exportErr != nil {
		e.notifyExportFailure(undelivered, exportErr)
	}
	return batch, nil
}

// notifyExportFailure reports events the export sink refused. The events
// themselves are durable; the notification is operational, not an
// integrity finding.
func (e *Engine) notifyExportFailure(ids []string, err error) {
	msg := fmt.Sprintf("export failed for event %s: %v", ids[0], err)
	if len(ids) > 1 {
		msg = fmt.Sprintf("export failed for %d events: %v", len(ids), err)
	}
	e.notifier.Notify(Notification{
		Kind:     KindExportFailure,
		Severity: audit.SeverityLow,
		Message:  msg,
		EventIDs: ids,
		At:       e.clock().UTC(),
	})
}

// =============================================================================
// READ SIDE
// =============================================================================

// Query runs a filtered, tier-transparent query. Every returned event was
// signature-verified on load.
func (e *Engine) Query(ctx context.Context, f store.Filter) (*store.Result, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Query(ctx, f)
}

// Get fetches one event by id from whichever tier holds it.
func (e *Engine) Get(ctx context.Context, id string) (*audit.Event, store.Tier, error) {
	if err := e.checkOpen(); err != nil {
		return nil, "", err
	}
	return e.store.Get(ctx, id)
}

// Stats reports per-tier event counts and catalog bounds.
func (e *Engine) Stats(ctx context.Context) (*store.StoreStats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Stats(ctx)
}

// =============================================================================
// INTEGRITY
// =============================================================================

// IntegrityReport verifies every event matching the filter and returns a
// signed report of the findings. Supplying an expected id range lets the
// report flag absent events as missing. Any issue found is also delivered
// through the notifier and recorded as a system audit event.
func (e *Engine) IntegrityReport(ctx context.Context, f store.Filter, expected *signer.IDRange) (*audit.IntegrityReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	res, err := e.store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	report, err := e.signer.BuildIntegrityReport(res.Events, expected)
	if err != nil {
		return nil, err
	}
	for _, issue := range report.Issues {
		v := &audit.IntegrityViolation{
			Kind:    audit.ViolationKind(issue.Kind),
			EventID: issue.EventID,
			Detail:  issue.Detail,
		}
		e.notifyViolation(v)
		e.recordViolation(ctx, v)
	}
	return report, nil
}

// VerifyChain recomputes every shard's seal chain. Broken shards come
// back as findings; each one is notified and recorded.
func (e *Engine) VerifyChain(ctx context.Context) ([]error, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	findings, err := e.store.VerifySeals(ctx)
	if err != nil {
		return findings, err
	}
	e.reportFindings(ctx, findings)
	return findings, nil
}

// VerifyShard recomputes one shard's seal chain. An integrity violation
// is notified and recorded before being returned.
func (e *Engine) VerifyShard(ctx context.Context, shard string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.store.VerifyShard(ctx, shard); err != nil {
		e.reportFindings(ctx, []error{err})
		return err
	}
	return nil
}

// VerifyArchives reconciles the warm and cold tiers against the catalog
// and verifies every archived batch. Findings are notified and recorded.
func (e *Engine) VerifyArchives(ctx context.Context) ([]error, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	var findings []error
	for _, tier := range []store.Tier{store.TierWarm, store.TierCold} {
		fs, err := e.store.VerifyArchive(ctx, tier)
		findings = append(findings, fs...)
		if err != nil {
			e.reportFindings(ctx, findings)
			return findings, err
		}
	}
	e.reportFindings(ctx, findings)
	return findings, nil
}

// reportFindings notifies and records each integrity finding.
func (e *Engine) reportFindings(ctx context.Context, findings []error) {
	for _, f := range findings {
		var iv *audit.IntegrityViolation
		if errors.As(f, &iv) {
			e.notifyViolation(iv)
			e.recordViolation(ctx, iv)
		}
	}
}

// notifyViolation delivers an integrity violation notification.
func (e *Engine) notifyViolation(v *audit.IntegrityViolation) {
	var ids []string
	if v.EventID != "" {
		ids = []string{v.EventID}
	}
	e.notifier.Notify(Notification{
		Kind:     KindIntegrityViolation,
		Severity: audit.SeverityCritical,
		Message:  v.Error(),
		EventIDs: ids,
		At:       e.clock().UTC(),
	})
}

// recordViolation writes the violation into the audit trail itself as a
// system event, so detections are tamper-evident too.
func (e *Engine) recordViolation(ctx context.Context, v *audit.IntegrityViolation) {
	meta := map[string]string{"kind": string(v.Kind)}
	if v.EventID != "" {
		meta["eventId"] = v.EventID
	}
	if v.BatchID != "" {
		meta["batchId"] = v.BatchID
	}
	if v.Detail != "" {
		meta["detail"] = v.Detail
	}
	e.recordSystemEvent(ctx, "integrity.violation_detected", "auditcore/integrity", audit.ResultFailure, meta)
}

// recordSystemEvent signs and stores an event the engine emits about
// itself. Failures are notified rather than returned; the triggering
// operation already carries the primary outcome.
func (e *Engine) recordSystemEvent(ctx context.Context, actionType, resource string, result audit.ActionResult, meta map[string]string) {
	ev := audit.Event{
		Timestamp: e.clock().UTC(),
		Actor:     audit.Actor{ID: "auditcore", Type: audit.ActorSystem},
		Action: audit.Action{
			Type:     actionType,
			Resource: resource,
			Result:   result,
			Metadata: meta,
		},
		Context: audit.Context{Environment: "auditcore", Application: "auditcore"},
	}
	ev.Normalize(e.clock().UTC())
	signed, err := e.signer.Sign(&ev)
	if err == nil {
		err = e.store.Put(ctx, &signed)
	}
	if err != nil {
		e.notifier.Notify(Notification{
			Kind:     KindIntegrityViolation,
			Severity: audit.SeverityHigh,
			Message:  fmt.Sprintf("failed to record %s: %v", actionType, err),
			At:       e.clock().UTC(),
		})
	}
}

// =============================================================================
// KEYS
// =============================================================================

// KeyInfo describes the loaded keyring.
type KeyInfo struct {
	ActiveID string           `json:"activeId"`
	Source   signer.KeySource `json:"source"`
	KeyIDs   []string         `json:"keyIds"`
}

// KeyInfo reports the active signing key and every verification key.
func (e *Engine) KeyInfo() KeyInfo {
	return KeyInfo{
		ActiveID: e.ring.CurrentID(),
		Source:   e.keySource,
		KeyIDs:   e.ring.IDs(),
	}
}

// RotateKey generates a fresh signing key, persists it to the key
// directory when one is configured, and makes it active. Prior keys stay
// registered so existing signatures keep verifying.
func (e *Engine) RotateKey() (string, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	key, err := signer.GenerateKey()
	if err != nil {
		return "", err
	}
	id := signer.Fingerprint(key)
	if dir := e.cfg.Signing.KeyDir; dir != "" {
		if err := signer.SaveKey(dir, id, key); err != nil {
			return "", err
		}
	}
	if err := e.ring.Rotate(id, key); err != nil {
		return "", err
	}
	return id, nil
}

// =============================================================================
// RETENTION
// =============================================================================

// TriggerRetention runs one retention cycle. Concurrent triggers get
// retention.ErrCycleRunning. A cycle that finishes partial raises a
// notification.
func (e *Engine) TriggerRetention(ctx context.Context) (*retention.CycleReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	report, err := e.retention.RunCycle(ctx)
	if err != nil {
		return report, err
	}
	if len(report.Partial) > 0 || report.SkippedMoves > 0 {
		e.notifier.Notify(Notification{
			Kind:     KindRetentionPartial,
			Severity: audit.SeverityMedium,
			Message: fmt.Sprintf("retention cycle finished partial: %d moves skipped, unscanned tiers %v",
				report.SkippedMoves, report.Partial),
			At: e.clock().UTC(),
		})
	}
	return report, nil
}

// PreviewRetention evaluates every enabled policy without moving
// anything.
func (e *Engine) PreviewRetention(ctx context.Context) ([]retention.Evaluation, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.Evaluate(ctx)
}

// PurgeDisposed permanently removes disposal-eligible events. The confirm
// token gate lives in the store. A completed purge is itself recorded as
// a system audit event so the disposal leaves a signed trace.
func (e *Engine) PurgeDisposed(ctx context.Context, confirm string) (*store.PurgeResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	res, err := e.retention.PurgeDisposed(ctx, confirm)
	if err != nil {
		return nil, err
	}
	if res.Purged > 0 {
		e.recordSystemEvent(ctx, "retention.purge_completed", "auditcore/retention", audit.ResultSuccess,
			map[string]string{"purged": strconv.Itoa(res.Purged)})
	}
	return res, nil
}

// Migrate moves events between tiers by id, verifying signatures on both
// sides of the move.
func (e *Engine) Migrate(ctx context.Context, ids []string, from, to store.Tier) (*store.MigrationResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Migrate(ctx, ids, from, to)
}

// CreatePolicy stores a new retention policy.
func (e *Engine) CreatePolicy(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.CreatePolicy(ctx, p)
}

// UpdatePolicy replaces an existing retention policy.
func (e *Engine) UpdatePolicy(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.UpdatePolicy(ctx, p)
}

// GetPolicy fetches one retention policy by id.
func (e *Engine) GetPolicy(ctx context.Context, id string) (*audit.RetentionPolicy, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.GetPolicy(ctx, id)
}

// ListPolicies lists retention policies.
func (e *Engine) ListPolicies(ctx context.Context, enabledOnly bool) ([]audit.RetentionPolicy, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.ListPolicies(ctx, enabledOnly)
}

// DeletePolicy removes a retention policy.
func (e *Engine) DeletePolicy(ctx context.Context, id string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.retention.DeletePolicy(ctx, id)
}

// SetPolicyEnabled toggles a retention policy.
func (e *Engine) SetPolicyEnabled(ctx context.Context, id string, enabled bool) (*audit.RetentionPolicy, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.retention.SetPolicyEnabled(ctx, id, enabled)
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// GenerateReport builds, signs, and stores a compliance report for the
// window.
func (e *Engine) GenerateReport(ctx context.Context, rtype audit.ReportType, start, end time.Time, generatedBy string) (*audit.ComplianceReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.reporter.GenerateReport(ctx, rtype, start, end, generatedBy)
}

// Violations lists the events a framework's rules flag in the window,
// without generating a stored report.
func (e *Engine) Violations(ctx context.Context, rtype audit.ReportType, start, end time.Time) ([]compliance.Violation, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.reporter.Violations(ctx, rtype, start, end)
}

// VerifyReport checks a stored report's signature.
func (e *Engine) VerifyReport(report *audit.ComplianceReport) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.reporter.VerifyReport(report)
}

// GetReport fetches a stored compliance report by id.
func (e *Engine) GetReport(ctx context.Context, id string) (*audit.ComplianceReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.GetReport(ctx, id)
}

// ListReports lists stored compliance reports, optionally by framework.
func (e *Engine) ListReports(ctx context.Context, rtype audit.ReportType, limit int) ([]audit.ComplianceReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ListReports(ctx, rtype, limit)
}

// =============================================================================
// ANALYTICS
// =============================================================================

// Analytics aggregates the window into metrics, time buckets, anomalies,
// and sequence patterns.
func (e *Engine) Analytics(ctx context.Context, start, end time.Time) (*analytics.Report, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.analyzer.GenerateAnalytics(ctx, start, end)
}

// Score rates one event against its actor's baseline without storing
// anything beyond a threshold-crossing alert.
func (e *Engine) Score(ctx context.Context, ev *audit.Event) (*audit.AnomalyScore, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.analyzer.AnalyzeEvent(ctx, ev)
}

// Alerts lists persisted anomaly alerts.
func (e *Engine) Alerts(ctx context.Context, openOnly bool, limit int) ([]audit.Alert, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.analyzer.Alerts(ctx, openOnly, limit)
}

// AcknowledgeAlert marks an alert acknowledged.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.analyzer.Acknowledge(ctx, id)
}

// alertFired delivers a persisted alert through the notifier.
func (e *Engine) alertFired(a *audit.Alert) {
	e.notifier.Notify(Notification{
		Kind:     KindAnomalyAlert,
		Severity: a.Severity,
		Message:  fmt.Sprintf("anomaly score %d: %s", a.Score, strings.Join(a.Reasons, "; ")),
		EventIDs: a.RelatedEventIDs,
		AlertID:  a.ID,
		At:       e.clock().UTC(),
	})
}
