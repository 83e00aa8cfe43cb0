// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// policies.go - Retention policy persistence. The full document is stored
// as JSON; id, name, enabled, and version are mirrored into columns for
// lookups. Versioning semantics live in the retention engine.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// ErrPolicyNotFound is returned for lookups of unknown policy ids or names.
var ErrPolicyNotFound = errors.New("policy not found")

// SavePolicy inserts or replaces a policy document by id. Names are
// unique across policies.
func (st *Store) SavePolicy(ctx context.Context, p *audit.RetentionPolicy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	var otherID string
	err = st.db.QueryRowContext(ctx,
		`SELECT id FROM policies WHERE name = ? AND id != ?`, p.Name, p.ID).Scan(&otherID)
	if err == nil {
		return fmt.Errorf("policy name %q is already used by policy %s", p.Name, otherID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapHot("check policy name", err)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	if _, err := st.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, enabled, version, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			version = excluded.version,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, enabled, p.Version, string(doc),
		p.CreatedAt.UTC().UnixNano(), p.UpdatedAt.UTC().UnixNano()); err != nil {
		return wrapHot("save policy", err)
	}
	return nil
}

// GetPolicy returns one policy by id.
func (st *Store) GetPolicy(ctx context.Context, id string) (*audit.RetentionPolicy, error) {
	return st.policyWhere(ctx, `id = ?`, id)
}

// GetPolicyByName returns one policy by its unique name.
func (st *Store) GetPolicyByName(ctx context.Context, name string) (*audit.RetentionPolicy, error) {
	return st.policyWhere(ctx, `name = ?`, name)
}

func (st *Store) policyWhere(ctx context.Context, clause string, arg any) (*audit.RetentionPolicy, error) {
	var doc string
	err := st.db.QueryRowContext(ctx,
		`SELECT doc FROM policies WHERE `+clause, arg).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrPolicyNotFound, arg)
	}
	if err != nil {
		return nil, wrapHot("load policy", err)
	}
	var p audit.RetentionPolicy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return &p, nil
}

// ListPolicies returns policies ordered by name. With enabledOnly set,
// disabled policies are omitted.
func (st *Store) ListPolicies(ctx context.Context, enabledOnly bool) ([]audit.RetentionPolicy, error) {
	query := `SELECT doc FROM policies`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := st.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapHot("list policies", err)
	}
	defer rows.Close()

	var policies []audit.RetentionPolicy
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, wrapHot("scan policies", err)
		}
		var p audit.RetentionPolicy
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("failed to decode policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan policies", err)
	}
	return policies, nil
}

// DeletePolicy removes a policy. Already-migrated events keep their
// placement; deletion only stops future evaluation.
func (st *Store) DeletePolicy(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return wrapHot("delete policy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapHot("delete policy", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return nil
}
