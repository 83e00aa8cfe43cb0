// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// reporter.go - Report generation and verification. A report is a signed
// claim about the corpus; anything less than a full read of the window
// refuses to sign.

package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/signer"
	"github.com/jeranaias/auditcore/internal/store"
)

// DefaultPageSize is the window scan page size.
const DefaultPageSize = 1000

// ErrUnknownFramework is returned for report types outside the registry.
var ErrUnknownFramework = errors.New("unknown report framework")

// Reporter generates and verifies compliance reports over one store.
type Reporter struct {
	store     *store.Store
	signer    *signer.Signer
	sensitive *audit.SensitiveMatcher
	custom    framework
	pageSize  int
	clock     func() time.Time
}

// Options configures New. Zero values get defaults.
type Options struct {
	Store  *store.Store
	Signer *signer.Signer

	// SensitiveResources are resource patterns treated as sensitive by
	// every framework's rules, alongside the per-event metadata tag.
	SensitiveResources []string

	// CustomRules define the violation rules of the custom framework.
	CustomRules []CustomRule

	PageSize int
	Clock    func() time.Time
}

// New returns a reporter over the store and signer.
func New(opts Options) (*Reporter, error) {
	if opts.Store == nil {
		return nil, errors.New("compliance reporter requires a store")
	}
	if opts.Signer == nil {
		return nil, errors.New("compliance reporter requires a signer")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reporter{
		store:     opts.Store,
		signer:    opts.Signer,
		sensitive: audit.NewSensitiveMatcher(opts.SensitiveResources),
		custom:    customFramework(opts.CustomRules),
		pageSize:  pageSize,
		clock:     clock,
	}, nil
}

func (r *Reporter) framework(t audit.ReportType) (framework, error) {
	if fw, ok := builtins[t]; ok {
		return fw, nil
	}
	if t == audit.ReportCustom {
		return r.custom, nil
	}
	return framework{}, fmt.Errorf("%w: %q", ErrUnknownFramework, t)
}

// GenerateReport classifies every event in [start, end) against the
// framework, signs the summary, persists it, and returns the immutable
// report. Regenerating the same window mints a new report id.
func (r *Reporter) GenerateReport(ctx context.Context, rtype audit.ReportType, start, end time.Time, generatedBy string) (*audit.ComplianceReport, error) {
	fw, err := r.framework(rtype)
	if err != nil {
		return nil, err
	}
	if generatedBy == "" {
		return nil, &audit.ValidationError{Field: "generatedBy", Reason: "must not be empty"}
	}
	if !end.After(start) {
		return nil, &audit.ValidationError{Field: "period", Reason: "end must be after start"}
	}

	report := &audit.ComplianceReport{
		ID:          uuid.NewString(),
		Type:        rtype,
		Period:      audit.ReportPeriod{Start: start.UTC(), End: end.UTC()},
		Classes:     make(map[string]int),
		GeneratedBy: generatedBy,
		GeneratedAt: r.clock().UTC(),
	}

	err = r.scanWindow(ctx, start, end, func(e *audit.Event) {
		sensitive := r.sensitive.Sensitive(e)
		report.Summary.TotalEvents++
		switch e.Action.Result {
		case audit.ResultSuccess:
			report.Summary.SuccessfulActions++
		case audit.ResultFailure, audit.ResultDenied:
			report.Summary.FailedActions++
		}
		classes := fw.classify(e, sensitive)
		if len(classes) == 0 {
			classes = []string{"other"}
		}
		for _, c := range classes {
			report.Classes[c]++
		}
		if _, ok := fw.violation(e, sensitive); ok {
			report.Summary.SecurityIncidents++
		}
	})
	if err != nil {
		return nil, err
	}

	sig, err := r.signReport(report)
	if err != nil {
		return nil, err
	}
	report.Signature = sig

	if err := r.store.SaveReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Violation is one rule hit, traceable to its source event.
type Violation struct {
	Rule  string      `json:"rule"`
	Event audit.Event `json:"event"`
}

// Violations returns the raw signed events in [start, end) that trip the
// framework's rules, each naming the first rule it matched.
func (r *Reporter) Violations(ctx context.Context, rtype audit.ReportType, start, end time.Time) ([]Violation, error) {
	fw, err := r.framework(rtype)
	if err != nil {
		return nil, err
	}
	var out []Violation
	err = r.scanWindow(ctx, start, end, func(e *audit.Event) {
		if name, ok := fw.violation(e, r.sensitive.Sensitive(e)); ok {
			out = append(out, Violation{Rule: name, Event: *e})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyReport re-derives the report signature. A nil return means the
// report is exactly as issued; any alteration after signing fails with an
// IntegrityViolation.
func (r *Reporter) VerifyReport(report *audit.ComplianceReport) error {
	if report.Signature == "" {
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationSignatureInvalid,
			Detail: "report carries no signature",
		}
	}
	body := *report
	body.Signature = ""
	data, err := signer.CanonicalJSON(&body)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	return r.signer.VerifyDocument(data, report.Signature)
}

func (r *Reporter) signReport(report *audit.ComplianceReport) (string, error) {
	body := *report
	body.Signature = ""
	data, err := signer.CanonicalJSON(&body)
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}
	return r.signer.SignDocument(data)
}

// scanWindow pages every event in [start, end) through visit in timestamp
// order. A degraded tier aborts the scan: reports and violation lists are
// claims about the whole corpus, so they refuse to issue over partial
// reads rather than sign an undercount.
func (r *Reporter) scanWindow(ctx context.Context, start, end time.Time, visit func(e *audit.Event)) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.store.Query(ctx, store.Filter{From: start, To: end, Limit: r.pageSize, Offset: offset})
		if err != nil {
			return err
		}
		if res.Partial {
			return fmt.Errorf("audit corpus only partially readable: %w", res.Err)
		}
		for i := range res.Events {
			visit(&res.Events[i])
		}
		if len(res.Events) < r.pageSize {
			return nil
		}
		offset += r.pageSize
	}
}
