// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// reports.go - Compliance report persistence. Reports are insert-only;
// regenerating a period produces a new report id rather than replacing
// the old document.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// ErrReportNotFound is returned for lookups of unknown report ids.
var ErrReportNotFound = errors.New("report not found")

// SaveReport persists a signed report. Re-saving an existing id fails;
// issued reports are immutable.
func (st *Store) SaveReport(ctx context.Context, r *audit.ComplianceReport) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var exists string
	err = st.db.QueryRowContext(ctx,
		`SELECT id FROM reports WHERE id = ?`, r.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("report %s already issued", r.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapHot("check report", err)
	}

	if _, err := st.db.ExecContext(ctx, `
		INSERT INTO reports (id, report_type, period_start, period_end, generated_at, generated_by, signature, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type),
		r.Period.Start.UTC().UnixNano(), r.Period.End.UTC().UnixNano(),
		r.GeneratedAt.UTC().UnixNano(), r.GeneratedBy, r.Signature, string(doc)); err != nil {
		return wrapHot("save report", err)
	}
	return nil
}

// GetReport returns one report by id.
func (st *Store) GetReport(ctx context.Context, id string) (*audit.ComplianceReport, error) {
	var doc string
	err := st.db.QueryRowContext(ctx,
		`SELECT doc FROM reports WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, wrapHot("load report", err)
	}
	var r audit.ComplianceReport
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// ListReports returns reports newest first, optionally narrowed to one
// framework. limit <= 0 means no limit.
func (st *Store) ListReports(ctx context.Context, rtype audit.ReportType, limit int) ([]audit.ComplianceReport, error) {
	query := `SELECT doc FROM reports`
	var args []any
	if rtype != "" {
		query += ` WHERE report_type = ?`
		args = append(args, string(rtype))
	}
	query += ` ORDER BY generated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapHot("list reports", err)
	}
	defer rows.Close()

	var reports []audit.ComplianceReport
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, wrapHot("scan reports", err)
		}
		var r audit.ComplianceReport
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan reports", err)
	}
	return reports, nil
}
