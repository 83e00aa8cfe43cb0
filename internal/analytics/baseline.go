// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// baseline.go - Actor baselines: what an actor has historically done,
// summarized for the scoring heuristics. A baseline is a snapshot, not a
// ledger; TTL staleness is acceptable.

package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/auditcore/internal/store"
)

// baseline summarizes an actor's history over the lookback window.
type baseline struct {
	actorID     string
	knownIPs    map[string]bool
	actionTypes map[string]bool
	events      int
	builtAt     time.Time
}

type baselineCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*baseline
}

func newBaselineCache(ttl time.Duration) *baselineCache {
	return &baselineCache{ttl: ttl, entries: make(map[string]*baseline)}
}

// baseline returns the actor's cached baseline, rebuilding it from store
// history when missing or older than the TTL. The build is serialized
// under the cache lock; scoring volume is bounded by ingest volume, so
// contention stays low.
func (a *Analyzer) baseline(ctx context.Context, actorID string, at time.Time) (*baseline, error) {
	a.cache.mu.Lock()
	defer a.cache.mu.Unlock()

	if bl, ok := a.cache.entries[actorID]; ok && a.clock().Sub(bl.builtAt) < a.cache.ttl {
		return bl, nil
	}
	bl, err := a.buildBaseline(ctx, actorID, at)
	if err != nil {
		return nil, err
	}
	a.cache.entries[actorID] = bl
	return bl, nil
}

// buildBaseline pages the actor's events in [at-lookback, at). The event
// being scored is excluded by the exclusive upper bound, so an actor's
// first event never matches its own baseline.
func (a *Analyzer) buildBaseline(ctx context.Context, actorID string, at time.Time) (*baseline, error) {
	bl := &baseline{
		actorID:     actorID,
		knownIPs:    make(map[string]bool),
		actionTypes: make(map[string]bool),
		builtAt:     a.clock(),
	}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.store.Query(ctx, store.Filter{
			ActorID: actorID,
			From:    at.Add(-a.lookback),
			To:      at,
			Limit:   a.pageSize,
			Offset:  offset,
		})
		if err != nil {
			return nil, err
		}
		for i := range res.Events {
			e := &res.Events[i]
			bl.events++
			if e.Actor.IP != "" {
				bl.knownIPs[e.Actor.IP] = true
			}
			bl.actionTypes[e.Action.Type] = true
		}
		// A partial read yields a thinner baseline, which can only raise
		// scores; scoring stays available through a degraded tier.
		if res.Partial || len(res.Events) < a.pageSize {
			return bl, nil
		}
		offset += a.pageSize
	}
}

// InvalidateBaseline drops the actor's cached baseline so the next score
// rebuilds it.
func (a *Analyzer) InvalidateBaseline(actorID string) {
	a.cache.mu.Lock()
	defer a.cache.mu.Unlock()
	delete(a.cache.entries, actorID)
}
