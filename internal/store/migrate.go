// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// migrate.go - Tier migration. Events move hot->warm and warm->cold in
// freshly sealed batches. New blobs are written and verified by read-back
// before any source data is touched; the catalog flip, manifest changes,
// and hot row deletes commit in one transaction; old source blobs are
// deleted last. A failed run deletes the blobs it wrote before returning;
// a crash at any point leaves at worst orphan blobs, never a catalog
// entry pointing at missing data.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jeranaias/auditcore/internal/audit"
)

// DefaultMigrationBatchSize caps events per archival batch.
const DefaultMigrationBatchSize = 256

// ErrBadTransition is returned for tier moves other than hot->warm and
// warm->cold.
var ErrBadTransition = errors.New("unsupported tier transition")

// MigrationResult reports one migration run. Skipped counts events that
// were missing or already at or past the target tier; re-running a
// migration over the same ids is a no-op.
type MigrationResult struct {
	From           Tier     `json:"from"`
	To             Tier     `json:"to"`
	Moved          int      `json:"moved"`
	Skipped        int      `json:"skipped"`
	NewBatches     []string `json:"newBatches,omitempty"`
	RebuiltBatches []string `json:"rebuiltBatches,omitempty"`

	// CleanupErr carries post-commit blob deletion failures. The
	// migration itself succeeded; leftover source blobs are orphans the
	// catalog no longer references.
	CleanupErr error `json:"-"`
}

// migrationLocation is where the catalog currently places one event.
type migrationLocation struct {
	eventID string
	ts      int64
	tier    Tier
	batchID string
}

// Migrate moves the given events from one tier to the next. Every event
// is verified as it is read; a verification failure aborts the whole run
// so tampered data is never re-sealed into a fresh batch. Events already
// past the source tier are skipped, which makes re-runs after a crash or
// overlap with a previous cycle harmless.
func (st *Store) Migrate(ctx context.Context, ids []string, from, to Tier) (*MigrationResult, error) {
	if !validTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	res := &MigrationResult{From: from, To: to}
	if len(ids) == 0 {
		return res, nil
	}

	unique := dedupe(ids)
	locs, err := st.locateEvents(ctx, unique)
	if err != nil {
		return nil, err
	}

	var moved []migrationLocation
	for _, loc := range locs {
		if loc.tier == from {
			moved = append(moved, loc)
		} else {
			res.Skipped++
		}
	}
	res.Skipped += len(unique) - len(locs)
	if len(moved) == 0 {
		return res, nil
	}
	sort.Slice(moved, func(i, j int) bool {
		if moved[i].ts != moved[j].ts {
			return moved[i].ts < moved[j].ts
		}
		return moved[i].eventID < moved[j].eventID
	})

	events, sourceBatches, err := st.loadForMigration(ctx, moved, from)
	if err != nil {
		return nil, err
	}

	// Stage 1: write and read-back-verify every new blob before anything
	// existing changes.
	targetStore, err := st.blobStore(to)
	if err != nil {
		return nil, err
	}
	newBatches, err := st.sealAndWrite(ctx, events, targetStore, to)
	if err != nil {
		return nil, err
	}
	for _, b := range newBatches {
		res.NewBatches = append(res.NewBatches, b.BatchID)
	}

	// Until the catalog commit below, every blob written this run is
	// unreferenced. A failed run must delete them again: the next archive
	// verification would otherwise report them as out-of-band data.
	var leftoverBatches []*audit.SignedBatch
	committed := false
	defer func() {
		if committed {
			return
		}
		for _, b := range newBatches {
			_ = targetStore.Delete(b.BatchID)
		}
		for _, b := range leftoverBatches {
			_ = st.warm.Delete(b.BatchID)
		}
	}()

	var drainedSource []string
	if from == TierWarm {
		movedSet := make(map[string]bool, len(moved))
		for _, loc := range moved {
			movedSet[loc.eventID] = true
		}
		for _, src := range sourceBatches {
			drainedSource = append(drainedSource, src.BatchID)
			var keep []audit.Event
			for i := range src.Events {
				if !movedSet[src.Events[i].ID] {
					keep = append(keep, src.Events[i])
				}
			}
			if len(keep) == 0 {
				continue
			}
			rebuilt, err := st.sealAndWrite(ctx, keep, st.warm, TierWarm)
			if err != nil {
				return nil, err
			}
			leftoverBatches = append(leftoverBatches, rebuilt...)
			for _, b := range rebuilt {
				res.RebuiltBatches = append(res.RebuiltBatches, b.BatchID)
			}
		}
	}

	// Stage 2: one transaction flips the catalog, swaps manifests, and
	// drops hot payload rows.
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapHot("begin", err)
	}
	defer tx.Rollback()

	for _, b := range newBatches {
		if err := st.insertManifestTx(ctx, tx, b, to); err != nil {
			return nil, err
		}
		for pos := range b.Events {
			if _, err := tx.ExecContext(ctx, `
				UPDATE catalog SET tier = ?, batch_id = ?, batch_pos = ?
				WHERE event_id = ?`,
				string(to), b.BatchID, pos, b.Events[pos].ID); err != nil {
				return nil, wrapHot("flip catalog", err)
			}
		}
	}
	for _, b := range leftoverBatches {
		if err := st.insertManifestTx(ctx, tx, b, TierWarm); err != nil {
			return nil, err
		}
		for pos := range b.Events {
			if _, err := tx.ExecContext(ctx, `
				UPDATE catalog SET batch_id = ?, batch_pos = ?
				WHERE event_id = ?`,
				b.BatchID, pos, b.Events[pos].ID); err != nil {
				return nil, wrapHot("rehome catalog", err)
			}
		}
	}
	for _, src := range drainedSource {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM batches WHERE batch_id = ?`, src); err != nil {
			return nil, wrapHot("drop manifest", err)
		}
	}
	if from == TierHot {
		for _, loc := range moved {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM events WHERE id = ?`, loc.eventID); err != nil {
				return nil, wrapHot("drop hot row", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapHot("commit", err)
	}
	committed = true
	res.Moved = len(moved)

	// Stage 3: old source blobs go last. A failure here is cleanup debt,
	// not data loss.
	if from == TierWarm {
		var cleanup []error
		for _, src := range drainedSource {
			if err := st.warm.Delete(src); err != nil {
				cleanup = append(cleanup, err)
			}
		}
		res.CleanupErr = errors.Join(cleanup...)
	}
	return res, nil
}

func validTransition(from, to Tier) bool {
	return (from == TierHot && to == TierWarm) || (from == TierWarm && to == TierCold)
}

// locateEvents resolves catalog placement for a set of ids. Missing ids
// are simply absent from the result.
func (st *Store) locateEvents(ctx context.Context, ids []string) ([]migrationLocation, error) {
	var locs []migrationLocation
	for _, chunk := range chunkStrings(ids, 500) {
		placeholders := make([]byte, 0, len(chunk)*2)
		args := make([]any, 0, len(chunk))
		for i, id := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id)
		}
		rows, err := st.db.QueryContext(ctx,
			`SELECT event_id, ts, tier, COALESCE(batch_id, '') FROM catalog WHERE event_id IN (`+string(placeholders)+`)`,
			args...)
		if err != nil {
			return nil, wrapHot("locate", err)
		}
		for rows.Next() {
			var loc migrationLocation
			var tier string
			if err := rows.Scan(&loc.eventID, &loc.ts, &tier, &loc.batchID); err != nil {
				rows.Close()
				return nil, wrapHot("locate", err)
			}
			loc.tier = Tier(tier)
			locs = append(locs, loc)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, wrapHot("locate", err)
		}
		rows.Close()
	}
	return locs, nil
}

// loadForMigration loads and verifies the moving events. For a warm
// source it loads each touched batch once, verifies it whole, and returns
// the batches so leftovers can be re-homed.
func (st *Store) loadForMigration(ctx context.Context, moved []migrationLocation, from Tier) ([]audit.Event, []*audit.SignedBatch, error) {
	events := make([]audit.Event, 0, len(moved))

	if from == TierHot {
		for _, loc := range moved {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			e, err := st.loadHotEvent(ctx, loc.eventID)
			if err != nil {
				return nil, nil, err
			}
			if err := st.sealer.Verify(e); err != nil {
				return nil, nil, err
			}
			events = append(events, e.Clone())
		}
		return events, nil, nil
	}

	batches := make(map[string]*audit.SignedBatch)
	var order []string
	for _, loc := range moved {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		b, ok := batches[loc.batchID]
		if !ok {
			var err error
			b, err = st.loadBlobBatch(from, loc.batchID)
			if err != nil {
				return nil, nil, err
			}
			// A tampered batch must surface here, not get split and
			// re-sealed into clean-looking pieces.
			if err := st.sealer.VerifyBatch(b); err != nil {
				return nil, nil, err
			}
			batches[loc.batchID] = b
			order = append(order, loc.batchID)
		}
		e := b.Find(loc.eventID)
		if e == nil {
			return nil, nil, &audit.IntegrityViolation{
				Kind:    audit.ViolationOutOfBandChange,
				EventID: loc.eventID,
				BatchID: loc.batchID,
				Detail:  "catalog places event in a batch that does not contain it",
			}
		}
		events = append(events, e.Clone())
	}

	sources := make([]*audit.SignedBatch, 0, len(order))
	for _, id := range order {
		sources = append(sources, batches[id])
	}
	return events, sources, nil
}

// sealAndWrite chunks events into sealed batches, writes each blob to the
// target store, and verifies every blob by reading it back before
// returning. The read-back proves the bytes on disk decode and verify,
// not just the bytes in memory. On failure the blobs already written are
// deleted again, best effort, so an aborted run leaves no unreferenced
// objects behind.
func (st *Store) sealAndWrite(ctx context.Context, events []audit.Event, target BlobStore, tier Tier) (_ []*audit.SignedBatch, err error) {
	var out []*audit.SignedBatch
	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, id := range written {
			_ = target.Delete(id)
		}
	}()
	for _, chunk := range chunkEvents(events, st.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := st.sealer.CreateBatch(chunk)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch: %w", err)
		}
		if err := target.Put(b.BatchID, data); err != nil {
			return nil, &audit.StorageUnavailable{Tier: string(tier), Op: "write batch", Err: err}
		}
		written = append(written, b.BatchID)
		readBack, err := target.Get(b.BatchID)
		if err != nil {
			return nil, &audit.StorageUnavailable{Tier: string(tier), Op: "read back batch", Err: err}
		}
		var check audit.SignedBatch
		if err := json.Unmarshal(readBack, &check); err != nil {
			return nil, &audit.IntegrityViolation{
				Kind:    audit.ViolationOutOfBandChange,
				BatchID: b.BatchID,
				Detail:  fmt.Sprintf("written batch does not decode: %v", err),
			}
		}
		if err := st.sealer.VerifyBatch(&check); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for len(items) > size {
		chunks = append(chunks, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

func chunkEvents(items []audit.Event, size int) [][]audit.Event {
	var chunks [][]audit.Event
	for len(items) > size {
		chunks = append(chunks, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}
