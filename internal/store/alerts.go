// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// alerts.go - Anomaly alert persistence. The acknowledged column is
// authoritative; the stored document is refreshed when the flag flips.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// ErrAlertNotFound is returned for lookups of unknown alert ids.
var ErrAlertNotFound = errors.New("alert not found")

// SaveAlert persists a threshold-crossing anomaly.
func (st *Store) SaveAlert(ctx context.Context, a *audit.Alert) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	ack := 0
	if a.Acknowledged {
		ack = 1
	}
	if _, err := st.db.ExecContext(ctx, `
		INSERT INTO alerts (id, score, severity, created_at, acknowledged, doc)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Score, string(a.Severity),
		a.CreatedAt.UTC().UnixNano(), ack, string(doc)); err != nil {
		return wrapHot("save alert", err)
	}
	return nil
}

// GetAlert returns one alert by id.
func (st *Store) GetAlert(ctx context.Context, id string) (*audit.Alert, error) {
	var doc string
	var ack int
	err := st.db.QueryRowContext(ctx,
		`SELECT doc, acknowledged FROM alerts WHERE id = ?`, id).Scan(&doc, &ack)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, wrapHot("load alert", err)
	}
	var a audit.Alert
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return nil, fmt.Errorf("failed to decode alert: %w", err)
	}
	a.Acknowledged = ack == 1
	return &a, nil
}

// ListAlerts returns alerts newest first. With openOnly set, acknowledged
// alerts are omitted. limit <= 0 means no limit.
func (st *Store) ListAlerts(ctx context.Context, openOnly bool, limit int) ([]audit.Alert, error) {
	query := `SELECT doc, acknowledged FROM alerts`
	var args []any
	if openOnly {
		query += ` WHERE acknowledged = 0`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapHot("list alerts", err)
	}
	defer rows.Close()

	var alerts []audit.Alert
	for rows.Next() {
		var doc string
		var ack int
		if err := rows.Scan(&doc, &ack); err != nil {
			return nil, wrapHot("scan alerts", err)
		}
		var a audit.Alert
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		a.Acknowledged = ack == 1
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan alerts", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as handled. Acknowledging twice is a
// no-op.
func (st *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	a, err := st.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if a.Acknowledged {
		return nil
	}
	a.Acknowledged = true
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	if _, err := st.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = 1, doc = ? WHERE id = ?`,
		string(doc), id); err != nil {
		return wrapHot("acknowledge alert", err)
	}
	return nil
}
