// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// seal.go - Shard seal chains. Every UTC-hour shard carries an HMAC chain
// over its catalog signatures in sequence order; the chain tip is the
// shard's seal. Per-event signatures prove content; the seal proves the
// roster. A catalog row edited, inserted, or removed outside the write
// path breaks recomputation even when every remaining signature verifies.

package store

import (
	"context"
	"crypto/hmac"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// appendSealTx advances shard's seal chain by one signature. The event's
// catalog row must already be inserted in the same transaction.
func (st *Store) appendSealTx(ctx context.Context, tx *sql.Tx, shard, signature string) error {
	keyID := st.sealer.CurrentKeyID()
	if keyID == "" {
		return errors.New("no active signing key for shard seal")
	}

	var curKey, curSeal string
	var count int64
	err := tx.QueryRowContext(ctx,
		`SELECT key_id, seal, event_count FROM shard_seals WHERE shard = ?`, shard).
		Scan(&curKey, &curSeal, &count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		link, merr := st.sealer.ChainMAC(keyID, "", signature)
		if merr != nil {
			return merr
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shard_seals (shard, key_id, seal, event_count, updated_at)
			VALUES (?, ?, ?, 1, ?)`,
			shard, keyID, link, nowNano()); err != nil {
			return wrapHot("insert seal", err)
		}
		return nil
	case err != nil:
		return wrapHot("read seal", err)
	}

	if curKey != keyID {
		// Signing key rotated since this shard was last sealed. Rebase
		// the whole chain under the active key; the new catalog row is
		// already in place, so the recompute picks it up.
		return st.recomputeSealTx(ctx, tx, shard, keyID)
	}

	link, err := st.sealer.ChainMAC(keyID, curSeal, signature)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE shard_seals SET seal = ?, event_count = event_count + 1, updated_at = ?
		WHERE shard = ?`, link, nowNano(), shard); err != nil {
		return wrapHot("update seal", err)
	}
	return nil
}

// recomputeSealTx rebuilds shard's chain from the catalog under keyID and
// stores the new tip. A shard left with no entries loses its seal row.
func (st *Store) recomputeSealTx(ctx context.Context, tx *sql.Tx, shard, keyID string) error {
	sigs, err := shardSignaturesTx(ctx, tx, shard)
	if err != nil {
		return err
	}

	if len(sigs) == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM shard_seals WHERE shard = ?`, shard); err != nil {
			return wrapHot("delete seal", err)
		}
		return nil
	}

	seal := ""
	for _, sig := range sigs {
		seal, err = st.sealer.ChainMAC(keyID, seal, sig)
		if err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO shard_seals (shard, key_id, seal, event_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(shard) DO UPDATE SET
			key_id = excluded.key_id,
			seal = excluded.seal,
			event_count = excluded.event_count,
			updated_at = excluded.updated_at`,
		shard, keyID, seal, len(sigs), nowNano()); err != nil {
		return wrapHot("upsert seal", err)
	}
	return nil
}

// shardSignaturesTx returns shard's catalog signatures in sequence order.
func shardSignaturesTx(ctx context.Context, tx *sql.Tx, shard string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT signature FROM catalog WHERE shard = ? ORDER BY seq`, shard)
	if err != nil {
		return nil, wrapHot("read shard", err)
	}
	defer rows.Close()

	var sigs []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, wrapHot("scan shard", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan shard", err)
	}
	return sigs, nil
}

// VerifyShard recomputes shard's seal chain from the catalog and compares
// it to the stored tip. A mismatch means the catalog changed out of band.
func (st *Store) VerifyShard(ctx context.Context, shard string) error {
	var keyID, seal string
	var sealed int64
	err := st.db.QueryRowContext(ctx,
		`SELECT key_id, seal, event_count FROM shard_seals WHERE shard = ?`, shard).
		Scan(&keyID, &seal, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		var n int64
		if err := st.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM catalog WHERE shard = ?`, shard).Scan(&n); err != nil {
			return wrapHot("count shard", err)
		}
		if n == 0 {
			return nil
		}
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationOutOfBandChange,
			Detail: fmt.Sprintf("shard %s holds %d entries but carries no seal", shard, n),
		}
	}
	if err != nil {
		return wrapHot("read seal", err)
	}

	rows, err := st.db.QueryContext(ctx,
		`SELECT signature FROM catalog WHERE shard = ? ORDER BY seq`, shard)
	if err != nil {
		return wrapHot("read shard", err)
	}
	defer rows.Close()

	got := ""
	var count int64
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return wrapHot("scan shard", err)
		}
		got, err = st.sealer.ChainMAC(keyID, got, sig)
		if err != nil {
			return err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return wrapHot("scan shard", err)
	}

	if count != sealed {
		return &audit.IntegrityViolation{
			Kind: audit.ViolationOutOfBandChange,
			Detail: fmt.Sprintf("shard %s holds %d entries but seal covers %d",
				shard, count, sealed),
		}
	}
	if !hmac.Equal([]byte(got), []byte(seal)) {
		return &audit.IntegrityViolation{
			Kind:   audit.ViolationOutOfBandChange,
			Detail: fmt.Sprintf("shard %s seal does not match its catalog entries", shard),
		}
	}
	return nil
}

// Shards lists every sealed shard in order.
func (st *Store) Shards(ctx context.Context) ([]string, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT shard FROM shard_seals ORDER BY shard`)
	if err != nil {
		return nil, wrapHot("list shards", err)
	}
	defer rows.Close()

	var shards []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, wrapHot("scan shards", err)
		}
		shards = append(shards, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan shards", err)
	}
	return shards, nil
}

// VerifySeals verifies every shard seal, returning one error per broken
// shard. An empty slice means every chain recomputed cleanly.
func (st *Store) VerifySeals(ctx context.Context) ([]error, error) {
	shards, err := st.Shards(ctx)
	if err != nil {
		return nil, err
	}
	var broken []error
	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return broken, err
		}
		if err := st.VerifyShard(ctx, shard); err != nil {
			var iv *audit.IntegrityViolation
			if errors.As(err, &iv) {
				broken = append(broken, err)
				continue
			}
			return broken, err
		}
	}
	return broken, nil
}
