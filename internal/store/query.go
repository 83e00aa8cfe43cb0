// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// query.go - Tier-transparent reads. The catalog resolves which tier holds
// each matching event; callers never name a tier. Filtering, ordering, and
// paging run in SQL against the catalog before any payload is loaded.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// DefaultQueryLimit applies when a filter does not set one.
const DefaultQueryLimit = 1000

// Filter selects events across every tier. Zero-valued fields match
// everything. Tier narrows the scan to one tier and exists for internal
// maintenance paths; normal callers leave it empty.
type Filter struct {
	ActorID  string
	Resource string
	From     time.Time
	To       time.Time
	Tier     Tier
	Limit    int
	Offset   int
}

// Result is a query answer. Partial is set when an archival tier was
// unreachable; Degraded names those tiers and Err carries their failures.
// Events that could be loaded are still returned, each one verified.
type Result struct {
	Events   []audit.Event
	Partial  bool
	Degraded []string
	Err      error
}

// catalogHit is one catalog row matched by a filter.
type catalogHit struct {
	eventID  string
	tier     Tier
	batchID  sql.NullString
	batchPos sql.NullInt64
}

// Query returns events matching f in timestamp order, resolved across all
// three tiers. Every returned event's signature is verified; a failed
// verification fails the whole query. An unreachable warm or cold tier
// degrades the result instead of failing it; a hot tier failure is fatal.
func (st *Store) Query(ctx context.Context, f Filter) (*Result, error) {
	hits, err := st.matchCatalog(ctx, f)
	if err != nil {
		return nil, err
	}

	res := &Result{Events: make([]audit.Event, 0, len(hits))}
	batches := make(map[string]*audit.SignedBatch)
	degraded := make(map[Tier]error)

	for i := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hit := &hits[i]

		var e *audit.Event
		switch hit.tier {
		case TierHot:
			e, err = st.loadHotEvent(ctx, hit.eventID)
			if err != nil {
				return nil, err
			}
		case TierWarm, TierCold:
			if _, down := degraded[hit.tier]; down {
				continue
			}
			b, ok := batches[hit.batchID.String]
			if !ok {
				b, err = st.loadBlobBatch(hit.tier, hit.batchID.String)
				if err != nil {
					var su *audit.StorageUnavailable
					if errors.As(err, &su) {
						degraded[hit.tier] = err
						continue
					}
					return nil, err
				}
				batches[hit.batchID.String] = b
			}
			e = b.Find(hit.eventID)
			if e == nil {
				return nil, &audit.IntegrityViolation{
					Kind:    audit.ViolationOutOfBandChange,
					EventID: hit.eventID,
					BatchID: hit.batchID.String,
					Detail:  "catalog places event in a batch that does not contain it",
				}
			}
		default:
			return nil, fmt.Errorf("catalog names unknown tier %q for event %s", hit.tier, hit.eventID)
		}

		if err := st.sealer.Verify(e); err != nil {
			return nil, err
		}
		res.Events = append(res.Events, e.Clone())
	}

	if len(degraded) > 0 {
		res.Partial = true
		errs := make([]error, 0, len(degraded))
		for t, derr := range degraded {
			res.Degraded = append(res.Degraded, string(t))
			errs = append(errs, derr)
		}
		sort.Strings(res.Degraded)
		res.Err = errors.Join(errs...)
	}
	return res, nil
}

// matchCatalog runs the filter against the catalog and returns hits in
// timestamp order (event id breaks ties).
func (st *Store) matchCatalog(ctx context.Context, f Filter) ([]catalogHit, error) {
	query := `SELECT event_id, tier, batch_id, batch_pos FROM catalog`
	var clauses []string
	var args []any

	if f.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, f.Resource)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, f.From.UTC().UnixNano())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "ts < ?")
		args = append(args, f.To.UTC().UnixNano())
	}
	if f.Tier != "" {
		clauses = append(clauses, "tier = ?")
		args = append(args, string(f.Tier))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += " ORDER BY ts, event_id LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapHot("query catalog", err)
	}
	defer rows.Close()

	var hits []catalogHit
	for rows.Next() {
		var h catalogHit
		var tier string
		if err := rows.Scan(&h.eventID, &tier, &h.batchID, &h.batchPos); err != nil {
			return nil, wrapHot("scan catalog", err)
		}
		h.tier = Tier(tier)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan catalog", err)
	}
	return hits, nil
}

// Get returns one event by id with the tier that holds it. The signature
// is verified before the event is returned.
func (st *Store) Get(ctx context.Context, id string) (*audit.Event, Tier, error) {
	var tier string
	var batchID sql.NullString
	err := st.db.QueryRowContext(ctx,
		`SELECT tier, batch_id FROM catalog WHERE event_id = ?`, id).
		Scan(&tier, &batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, "", wrapHot("lookup", err)
	}

	t := Tier(tier)
	var e *audit.Event
	switch t {
	case TierHot:
		e, err = st.loadHotEvent(ctx, id)
		if err != nil {
			return nil, "", err
		}
	case TierWarm, TierCold:
		b, err := st.loadBlobBatch(t, batchID.String)
		if err != nil {
			return nil, "", err
		}
		e = b.Find(id)
		if e == nil {
			return nil, "", &audit.IntegrityViolation{
				Kind:    audit.ViolationOutOfBandChange,
				EventID: id,
				BatchID: batchID.String,
				Detail:  "catalog places event in a batch that does not contain it",
			}
		}
	default:
		return nil, "", fmt.Errorf("catalog names unknown tier %q for event %s", tier, id)
	}

	if err := st.sealer.Verify(e); err != nil {
		return nil, "", err
	}
	out := e.Clone()
	return &out, t, nil
}

// GetBatch returns a stored batch by id, fully verified, with the tier
// that holds it.
func (st *Store) GetBatch(ctx context.Context, batchID string) (*audit.SignedBatch, Tier, error) {
	var tier, checksum, signature string
	var createdAt, count int64
	err := st.db.QueryRowContext(ctx, `
		SELECT tier, created_at, event_count, checksum, signature
		FROM batches WHERE batch_id = ?`, batchID).
		Scan(&tier, &createdAt, &count, &checksum, &signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, "", wrapHot("lookup batch", err)
	}

	t := Tier(tier)
	var b *audit.SignedBatch
	switch t {
	case TierHot:
		b, err = st.assembleHotBatch(ctx, batchID, createdAt, checksum, signature)
		if err != nil {
			return nil, "", err
		}
	case TierWarm, TierCold:
		b, err = st.loadBlobBatch(t, batchID)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", fmt.Errorf("manifest names unknown tier %q for batch %s", tier, batchID)
	}

	if err := st.sealer.VerifyBatch(b); err != nil {
		return nil, "", err
	}
	return b, t, nil
}

// loadHotEvent loads and decodes one payload row.
func (st *Store) loadHotEvent(ctx context.Context, id string) (*audit.Event, error) {
	var payload []byte
	err := st.db.QueryRowContext(ctx,
		`SELECT payload FROM events WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &audit.IntegrityViolation{
			Kind:    audit.ViolationOutOfBandChange,
			EventID: id,
			Detail:  "catalog lists a hot event with no payload row",
		}
	}
	if err != nil {
		return nil, wrapHot("load event", err)
	}
	var e audit.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, &audit.IntegrityViolation{
			Kind:    audit.ViolationOutOfBandChange,
			EventID: id,
			Detail:  fmt.Sprintf("stored payload is not decodable: %v", err),
		}
	}
	return &e, nil
}

// loadBlobBatch loads and decodes a batch blob from an archival tier.
// Unreachable storage comes back as StorageUnavailable; an undecodable
// blob is an integrity violation, not a storage error.
func (st *Store) loadBlobBatch(t Tier, batchID string) (*audit.SignedBatch, error) {
	bs, err := st.blobStore(t)
	if err != nil {
		return nil, err
	}
	data, err := bs.Get(batchID)
	if err != nil {
		var iv *audit.IntegrityViolation
		if errors.As(err, &iv) {
			return nil, err
		}
		return nil, &audit.StorageUnavailable{Tier: string(t), Op: "load batch", Err: err}
	}
	var b audit.SignedBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &audit.IntegrityViolation{
			Kind:    audit.ViolationOutOfBandChange,
			BatchID: batchID,
			Detail:  fmt.Sprintf("batch blob is not decodable: %v", err),
		}
	}
	return &b, nil
}

// assembleHotBatch rebuilds a hot-tier batch from its member rows in
// stored member order.
func (st *Store) assembleHotBatch(ctx context.Context, batchID string, createdAt int64, checksum, signature string) (*audit.SignedBatch, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT e.payload FROM events e
		JOIN catalog c ON c.event_id = e.id
		WHERE c.batch_id = ?
		ORDER BY c.batch_pos`, batchID)
	if err != nil {
		return nil, wrapHot("load batch members", err)
	}
	defer rows.Close()

	b := &audit.SignedBatch{
		BatchID:   batchID,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Checksum:  checksum,
		Signature: signature,
	}
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
		b.Events = append(b.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan batch members", err)
	}
	return b, nil
}

// =============================================================================
// STATS
// =============================================================================

// TierStats counts one tier's holdings.
type TierStats struct {
	Events  int64 `json:"events"`
	Batches int64 `json:"batches"`
}

// StoreStats summarizes the store for status output.
type StoreStats struct {
	Tiers            map[string]TierStats `json:"tiers"`
	Shards           int64                `json:"shards"`
	DisposalEligible int64                `json:"disposalEligible"`
	Oldest           *time.Time           `json:"oldest,omitempty"`
	Newest           *time.Time           `json:"newest,omitempty"`
}

// Stats reports per-tier counts and catalog bounds.
func (st *Store) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{Tiers: map[string]TierStats{
		string(TierHot):  {},
		string(TierWarm): {},
		string(TierCold): {},
	}}

	rows, err := st.db.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM catalog GROUP BY tier`)
	if err != nil {
		return nil, wrapHot("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, wrapHot("stats", err)
		}
		ts := stats.Tiers[tier]
		ts.Events = n
		stats.Tiers[tier] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("stats", err)
	}

	brows, err := st.db.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM batches GROUP BY tier`)
	if err != nil {
		return nil, wrapHot("stats", err)
	}
	defer brows.Close()
	for brows.Next() {
		var tier string
		var n int64
		if err := brows.Scan(&tier, &n); err != nil {
			return nil, wrapHot("stats", err)
		}
		ts := stats.Tiers[tier]
		ts.Batches = n
		stats.Tiers[tier] = ts
	}
	if err := brows.Err(); err != nil {
		return nil, wrapHot("stats", err)
	}

	if err := st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shard_seals`).Scan(&stats.Shards); err != nil {
		return nil, wrapHot("stats", err)
	}
	if err := st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog WHERE disposal_eligible = 1`).Scan(&stats.DisposalEligible); err != nil {
		return nil, wrapHot("stats", err)
	}

	var oldest, newest sql.NullInt64
	if err := st.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts) FROM catalog`).Scan(&oldest, &newest); err != nil {
		return nil, wrapHot("stats", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64).UTC()
		stats.Oldest = &t
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64).UTC()
		stats.Newest = &t
	}
	return stats, nil
}
