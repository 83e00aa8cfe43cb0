// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lease.go - Retention cycle lease. At most one holder runs a cycle at a
// time, across processes sharing the store; a crashed holder's lease
// simply expires.

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AcquireLease takes or renews the retention lease. Returns false when a
// different holder's unexpired lease is in place.
func (st *Store) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if holder == "" {
		return false, errors.New("lease holder must not be empty")
	}
	now := time.Now().UTC()

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapHot("begin", err)
	}
	defer tx.Rollback()

	var curHolder string
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM retention_lease WHERE id = 1`).
		Scan(&curHolder, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No lease yet.
	case err != nil:
		return false, wrapHot("read lease", err)
	default:
		if curHolder != holder && now.UnixNano() < expiresAt {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retention_lease (id, holder, acquired_at, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at`,
		holder, now.UnixNano(), now.Add(ttl).UnixNano()); err != nil {
		return false, wrapHot("write lease", err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrapHot("commit", err)
	}
	return true, nil
}

// ReleaseLease drops the lease if holder still owns it. Releasing a lease
// held by someone else, or no lease at all, is a no-op.
func (st *Store) ReleaseLease(ctx context.Context, holder string) error {
	if _, err := st.db.ExecContext(ctx,
		`DELETE FROM retention_lease WHERE id = 1 AND holder = ?`, holder); err != nil {
		return wrapHot("release lease", err)
	}
	return nil
}
