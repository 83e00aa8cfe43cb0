// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// catalog.go - Disposal eligibility and the purge path. Purge is the only
// operation that removes events, it only touches rows previously marked
// disposal-eligible, and it demands an explicit confirmation token.
// Surviving batch members are re-sealed into fresh batches and affected
// shard seals are rebuilt in the same transaction, so the store verifies
// cleanly after an authorized purge.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// PurgeConfirmToken must be passed verbatim to PurgeDisposal.
const PurgeConfirmToken = "purge-disposal-eligible"

// ErrPurgeNotConfirmed is returned when the confirmation token is wrong.
var ErrPurgeNotConfirmed = errors.New("purge requires the confirmation token")

// MarkDisposalEligible flags events for purge. Returns how many rows
// changed; already-flagged and missing ids contribute nothing.
func (st *Store) MarkDisposalEligible(ctx context.Context, ids []string) (int64, error) {
	var total int64
	for _, chunk := range chunkStrings(dedupe(ids), 500) {
		placeholders := make([]byte, 0, len(chunk)*2)
		args := make([]any, 0, len(chunk))
		for i, id := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id)
		}
		res, err := st.db.ExecContext(ctx,
			`UPDATE catalog SET disposal_eligible = 1 WHERE disposal_eligible = 0 AND event_id IN (`+string(placeholders)+`)`,
			args...)
		if err != nil {
			return total, wrapHot("mark disposal", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, wrapHot("mark disposal", err)
		}
		total += n
	}
	return total, nil
}

// ListDisposalEligible returns flagged event ids in timestamp order.
// limit <= 0 means no limit.
func (st *Store) ListDisposalEligible(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT event_id FROM catalog WHERE disposal_eligible = 1 ORDER BY ts, event_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapHot("list disposal", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapHot("list disposal", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("list disposal", err)
	}
	return ids, nil
}

// PurgeResult reports one purge run.
type PurgeResult struct {
	Purged         int      `json:"purged"`
	RebuiltBatches []string `json:"rebuiltBatches,omitempty"`

	// CleanupErr carries post-commit blob deletion failures; the purge
	// itself committed.
	CleanupErr error `json:"-"`
}

// purgeRow is one disposal-eligible catalog row.
type purgeRow struct {
	eventID string
	shard   string
	tier    Tier
	batchID string
}

// PurgeDisposal permanently removes every disposal-eligible event. The
// confirm argument must equal PurgeConfirmToken. Batches that lose some
// but not all members are rebuilt around the survivors; shard seals are
// recomputed over what remains. This is the single sanctioned deletion
// path.
func (st *Store) PurgeDisposal(ctx context.Context, confirm string) (*PurgeResult, error) {
	if confirm != PurgeConfirmToken {
		return nil, fmt.Errorf("%w: %q", ErrPurgeNotConfirmed, PurgeConfirmToken)
	}

	targets, err := st.listPurgeRows(ctx)
	if err != nil {
		return nil, err
	}
	res := &PurgeResult{}
	if len(targets) == 0 {
		return res, nil
	}

	purgedSet := make(map[string]bool, len(targets))
	shardSet := make(map[string]bool)
	batchTier := make(map[string]Tier) // touched batch -> tier
	batchOrder := make([]string, 0)    // deterministic processing order
	for _, row := range targets {
		purgedSet[row.eventID] = true
		shardSet[row.shard] = true
		if row.batchID == "" {
			continue
		}
		if _, seen := batchTier[row.batchID]; !seen {
			batchTier[row.batchID] = row.tier
			batchOrder = append(batchOrder, row.batchID)
		}
	}

	unlock := st.lockShards(sortedKeys(shardSet))
	defer unlock()

	// Stage 1: rebuild every touched batch around its survivors. Blob
	// writes and read-back verification happen before the catalog
	// changes; purged members never get re-sealed.
	type rebuiltBatch struct {
		batch *audit.SignedBatch
		tier  Tier
	}
	var rebuilt []rebuiltBatch
	var retiredBlobs []string // old warm/cold blob ids to delete post-commit

	for _, oldID := range batchOrder {
		tier := batchTier[oldID]
		members, err := st.batchMembers(ctx, tier, oldID)
		if err != nil {
			return nil, err
		}
		var keep []audit.Event
		for i := range members {
			if !purgedSet[members[i].ID] {
				keep = append(keep, members[i])
			}
		}
		if tier != TierHot {
			retiredBlobs = append(retiredBlobs, oldID)
		}
		if len(keep) == 0 {
			continue
		}
		if tier == TierHot {
			// Hot members live in payload rows; only the grouping is
			// re-sealed, no blob is written.
			b, err := st.sealer.CreateBatch(keep)
			if err != nil {
				return nil, err
			}
			rebuilt = append(rebuilt, rebuiltBatch{batch: b, tier: tier})
			res.RebuiltBatches = append(res.RebuiltBatches, b.BatchID)
			continue
		}
		target, err := st.blobStore(tier)
		if err != nil {
			return nil, err
		}
		batches, err := st.sealAndWrite(ctx, keep, target, tier)
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			rebuilt = append(rebuilt, rebuiltBatch{batch: b, tier: tier})
			res.RebuiltBatches = append(res.RebuiltBatches, b.BatchID)
		}
	}

	// Stage 2: one transaction removes the purged rows, swaps manifests,
	// re-homes survivors, and rebuilds the seals of every touched shard.
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapHot("begin", err)
	}
	defer tx.Rollback()

	for _, row := range targets {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM catalog WHERE event_id = ?`, row.eventID); err != nil {
			return nil, wrapHot("purge catalog", err)
		}
		if row.tier == TierHot {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM events WHERE id = ?`, row.eventID); err != nil {
				return nil, wrapHot("purge hot row", err)
			}
		}
	}
	for _, oldID := range batchOrder {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM batches WHERE batch_id = ?`, oldID); err != nil {
			return nil, wrapHot("drop manifest", err)
		}
	}
	for _, rb := range rebuilt {
		if err := st.insertManifestTx(ctx, tx, rb.batch, rb.tier); err != nil {
			return nil, err
		}
		for pos := range rb.batch.Events {
			if _, err := tx.ExecContext(ctx, `
				UPDATE catalog SET batch_id = ?, batch_pos = ?
				WHERE event_id = ?`,
				rb.batch.BatchID, pos, rb.batch.Events[pos].ID); err != nil {
				return nil, wrapHot("rehome catalog", err)
			}
		}
	}

	keyID := st.sealer.CurrentKeyID()
	if keyID == "" {
		return nil, errors.New("no active signing key for seal rebuild")
	}
	for _, shard := range sortedKeys(shardSet) {
		if err := st.recomputeSealTx(ctx, tx, shard, keyID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapHot("commit", err)
	}
	res.Purged = len(targets)

	// Stage 3: retired blobs last. Orphans are cleanup debt, not loss.
	var cleanup []error
	for _, oldID := range retiredBlobs {
		bs, err := st.blobStore(batchTier[oldID])
		if err != nil {
			cleanup = append(cleanup, err)
			continue
		}
		if err := bs.Delete(oldID); err != nil {
			cleanup = append(cleanup, err)
		}
	}
	res.CleanupErr = errors.Join(cleanup...)
	return res, nil
}

// listPurgeRows returns every disposal-eligible catalog row.
func (st *Store) listPurgeRows(ctx context.Context) ([]purgeRow, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT event_id, shard, tier, COALESCE(batch_id, '')
		FROM catalog WHERE disposal_eligible = 1 ORDER BY ts, event_id`)
	if err != nil {
		return nil, wrapHot("list purge rows", err)
	}
	defer rows.Close()

	var targets []purgeRow
	for rows.Next() {
		var row purgeRow
		var tier string
		if err := rows.Scan(&row.eventID, &row.shard, &tier, &row.batchID); err != nil {
			return nil, wrapHot("scan purge rows", err)
		}
		row.tier = Tier(tier)
		targets = append(targets, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan purge rows", err)
	}
	return targets, nil
}

// batchMembers loads a batch's members in stored order without verifying
// them. Purge decides member fate; verification happens when survivors
// are re-sealed and read back.
func (st *Store) batchMembers(ctx context.Context, tier Tier, batchID string) ([]audit.Event, error) {
	if tier == TierHot {
		rows, err := st.db.QueryContext(ctx, `
			SELECT e.payload FROM events e
			JOIN catalog c ON c.event_id = e.id
			WHERE c.batch_id = ?
			ORDER BY c.batch_pos`, batchID)
		if err != nil {
			return nil, wrapHot("load batch members", err)
		}
		defer rows.Close()

		var members []audit.Event
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return nil, wrapHot("scan batch members", err)
			}
			var e audit.Event
			if err := json.Unmarshal(payload, &e); err != nil {
				return nil, &audit.IntegrityViolation{
					Kind:    audit.ViolationOutOfBandChange,
					BatchID: batchID,
					Detail:  fmt.Sprintf("stored payload is not decodable: %v", err),
				}
			}
			members = append(members, e)
		}
		if err := rows.Err(); err != nil {
			return nil, wrapHot("scan batch members", err)
		}
		return members, nil
	}

	b, err := st.loadBlobBatch(tier, batchID)
	if err != nil {
		return nil, err
	}
	return b.Events, nil
}
