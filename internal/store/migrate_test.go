// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

func eventIDs(events []audit.Event) []string {
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return ids
}

func TestMigrateHotToWarm(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()

	// Span a shard boundary so two seals are exercised.
	events := make([]audit.Event, 6)
	for i := range events {
		ts := time.Date(2025, 3, 14, 9, 50, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
		events[i] = signedEvent(t, s, audit.NewEventID(), ts)
		if err := st.Put(ctx, &events[i]); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	res, err := st.Migrate(ctx, eventIDs(events[:4]), TierHot, TierWarm)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if res.Moved != 4 || res.Skipped != 0 {
		t.Errorf("Moved = %d Skipped = %d, want 4/0", res.Moved, res.Skipped)
	}
	if len(res.NewBatches) == 0 {
		t.Fatal("no batches were written")
	}

	// Reads stay tier-transparent.
	for i, e := range events {
		got, tier, err := st.Get(ctx, e.ID)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", e.ID, err)
		}
		wantTier := TierWarm
		if i >= 4 {
			wantTier = TierHot
		}
		if tier != wantTier {
			t.Errorf("event %d tier = %q, want %q", i, tier, wantTier)
		}
		if got.Signature != e.Signature {
			t.Errorf("event %d signature changed across migration", i)
		}
	}

	// Hot payload rows for moved events are gone.
	var hotRows int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&hotRows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if hotRows != 2 {
		t.Errorf("hot payload rows = %d, want 2", hotRows)
	}

	// Queries union the tiers in timestamp order.
	qres, err := st.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(qres.Events) != 6 {
		t.Fatalf("Query() returned %d events, want 6", len(qres.Events))
	}
	for i := range qres.Events {
		if qres.Events[i].ID != events[i].ID {
			t.Errorf("query order: event %d = %s, want %s", i, qres.Events[i].ID, events[i].ID)
		}
	}

	// Shard seals survive migration untouched.
	broken, err := st.VerifySeals(ctx)
	if err != nil {
		t.Fatalf("VerifySeals() error = %v", err)
	}
	if len(broken) != 0 {
		t.Errorf("VerifySeals() reported %d broken shards after migration", len(broken))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 3)

	if _, err := st.Migrate(ctx, eventIDs(events), TierHot, TierWarm); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	res, err := st.Migrate(ctx, eventIDs(events), TierHot, TierWarm)
	if err != nil {
		t.Fatalf("repeat Migrate() error = %v", err)
	}
	if res.Moved != 0 || res.Skipped != 3 {
		t.Errorf("repeat run Moved = %d Skipped = %d, want 0/3", res.Moved, res.Skipped)
	}
}

func TestMigrateRejectsBadTransition(t *testing.T) {
	st, s := newTestStore(t)
	events := putN(t, st, s, 1)

	for _, tt := range []struct{ from, to Tier }{
		{TierHot, TierCold},
		{TierWarm, TierHot},
		{TierCold, TierWarm},
		{TierHot, TierHot},
	} {
		if _, err := st.Migrate(context.Background(), eventIDs(events), tt.from, tt.to); !errors.Is(err, ErrBadTransition) {
			t.Errorf("Migrate(%s -> %s) error = %v, want ErrBadTransition", tt.from, tt.to, err)
		}
	}
}

func TestMigrateWarmToCold(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 4)
	ids := eventIDs(events)

	if _, err := st.Migrate(ctx, ids, TierHot, TierWarm); err != nil {
		t.Fatalf("hot->warm error = %v", err)
	}
	res, err := st.Migrate(ctx, ids, TierWarm, TierCold)
	if err != nil {
		t.Fatalf("warm->cold error = %v", err)
	}
	if res.Moved != 4 {
		t.Errorf("Moved = %d, want 4", res.Moved)
	}

	for _, id := range ids {
		got, tier, err := st.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if tier != TierCold {
			t.Errorf("tier = %q, want %q", tier, TierCold)
		}
		if got.ID != id {
			t.Errorf("got %s, want %s", got.ID, id)
		}
	}

	// The drained warm blob is gone.
	keys, err := st.warm.Keys()
	if err != nil {
		t.Fatalf("warm Keys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("warm tier still holds %d blobs, want 0", len(keys))
	}
}

func TestMigratePartialBatchRehomesLeftovers(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 6)
	ids := eventIDs(events)

	warmRes, err := st.Migrate(ctx, ids, TierHot, TierWarm)
	if err != nil {
		t.Fatalf("hot->warm error = %v", err)
	}
	if len(warmRes.NewBatches) != 1 {
		t.Fatalf("expected one warm batch, got %d", len(warmRes.NewBatches))
	}
	oldWarm := warmRes.NewBatches[0]

	// Move half the batch to cold; the rest must be re-homed into a fresh
	// warm batch because the old blob disappears.
	coldRes, err := st.Migrate(ctx, ids[:3], TierWarm, TierCold)
	if err != nil {
		t.Fatalf("warm->cold error = %v", err)
	}
	if coldRes.Moved != 3 {
		t.Errorf("Moved = %d, want 3", coldRes.Moved)
	}
	if len(coldRes.RebuiltBatches) != 1 {
		t.Fatalf("RebuiltBatches = %d, want 1", len(coldRes.RebuiltBatches))
	}

	warmKeys, err := st.warm.Keys()
	if err != nil {
		t.Fatalf("warm Keys() error = %v", err)
	}
	if len(warmKeys) != 1 || warmKeys[0] == oldWarm {
		t.Errorf("warm blobs = %v, want one fresh batch (old %s gone)", warmKeys, oldWarm)
	}

	// Every event is still readable at its proper tier, and the rebuilt
	// batch verifies whole.
	for i, id := range ids {
		_, tier, err := st.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		wantTier := TierCold
		if i >= 3 {
			wantTier = TierWarm
		}
		if tier != wantTier {
			t.Errorf("event %d tier = %q, want %q", i, tier, wantTier)
		}
	}
	if _, _, err := st.GetBatch(ctx, coldRes.RebuiltBatches[0]); err != nil {
		t.Errorf("GetBatch(rebuilt) error = %v", err)
	}

	// The old warm manifest is gone from the ledger.
	if _, _, err := st.GetBatch(ctx, oldWarm); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("GetBatch(old warm) error = %v, want ErrBatchNotFound", err)
	}
}

func TestMigrateChunksByBatchSize(t *testing.T) {
	s := newTestSigner(t)
	st := newTestStoreWith(t, Options{Sealer: s, MigrationBatchSize: 2})
	ctx := context.Background()

	events := make([]audit.Event, 5)
	for i := range events {
		events[i] = signedEvent(t, s, audit.NewEventID(), testBase.Add(time.Duration(i)*time.Minute))
		if err := st.Put(ctx, &events[i]); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	res, err := st.Migrate(ctx, eventIDs(events), TierHot, TierWarm)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(res.NewBatches) != 3 {
		t.Errorf("NewBatches = %d, want 3 (2+2+1)", len(res.NewBatches))
	}
}

func TestMigrateRefusesToMoveTamperedEvent(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 3)

	tampered := events[1].Clone()
	tampered.Actor.ID = "user-evil"
	raw, err := json.Marshal(&tampered)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := st.db.Exec(`UPDATE events SET payload = ? WHERE id = ?`, raw, events[1].ID); err != nil {
		t.Fatalf("tamper update: %v", err)
	}

	_, err = st.Migrate(ctx, eventIDs(events), TierHot, TierWarm)
	var iv *audit.IntegrityViolation
	if !errors.As(err, &iv) {
		t.Fatalf("Migrate() error = %v, want IntegrityViolation", err)
	}

	// Nothing moved; tampered data was not re-sealed.
	var warmCount int
	if err := st.db.QueryRow(
		`SELECT COUNT(*) FROM catalog WHERE tier = ?`, string(TierWarm)).Scan(&warmCount); err != nil {
		t.Fatalf("count: %v", err)
	}
	if warmCount != 0 {
		t.Errorf("%d events reached warm despite the violation", warmCount)
	}
}

func TestQueryDegradedWarmTier(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 4)

	res, err := st.Migrate(ctx, eventIDs(events[:2]), TierHot, TierWarm)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Losing the blob makes the warm tier unable to answer.
	for _, id := range res.NewBatches {
		if err := os.Remove(filepath.Join(st.WarmDir(), id+blobExt)); err != nil {
			t.Fatalf("remove blob: %v", err)
		}
	}

	qres, err := st.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !qres.Partial {
		t.Error("Partial = false with an unreachable warm tier")
	}
	if len(qres.Degraded) != 1 || qres.Degraded[0] != string(TierWarm) {
		t.Errorf("Degraded = %v, want [warm]", qres.Degraded)
	}
	if !audit.IsStorageUnavailable(qres.Err) {
		t.Errorf("Result.Err = %v, want StorageUnavailable", qres.Err)
	}
	if len(qres.Events) != 2 {
		t.Fatalf("got %d events, want the 2 hot ones", len(qres.Events))
	}
	for _, e := range qres.Events {
		if e.ID != events[2].ID && e.ID != events[3].ID {
			t.Errorf("unexpected event %s in degraded result", e.ID)
		}
	}

	// A point read against the degraded tier fails rather than degrades.
	if _, _, err := st.Get(ctx, events[0].ID); !audit.IsStorageUnavailable(err) {
		t.Errorf("Get() error = %v, want StorageUnavailable", err)
	}
}

func TestColdTierEncryptionAtRest(t *testing.T) {
	s := newTestSigner(t)
	st := newTestStoreWith(t, Options{Sealer: s, ColdEncryptionKey: testKey(0x33)})
	ctx := context.Background()

	e := signedEvent(t, s, "evt-cold-001", testBase)
	if err := st.Put(ctx, &e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := st.Migrate(ctx, []string{e.ID}, TierHot, TierWarm); err != nil {
		t.Fatalf("hot->warm error = %v", err)
	}
	res, err := st.Migrate(ctx, []string{e.ID}, TierWarm, TierCold)
	if err != nil {
		t.Fatalf("warm->cold error = %v", err)
	}
	if len(res.NewBatches) != 1 {
		t.Fatalf("NewBatches = %d, want 1", len(res.NewBatches))
	}
	blobPath := filepath.Join(st.ColdDir(), res.NewBatches[0]+blobExt)

	raw, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if bytes.Contains(raw, []byte("evt-cold-001")) || bytes.Contains(raw, []byte("documents/contracts")) {
		t.Error("cold blob holds plaintext event content")
	}

	got, tier, err := st.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tier != TierCold || got.Signature != e.Signature {
		t.Errorf("Get() = tier %q, signature match %v", tier, got.Signature == e.Signature)
	}

	// Any bit flip in the stored object breaks the AEAD open.
	raw[len(raw)/2] ^= 0x01
	if err := os.WriteFile(blobPath, raw, 0600); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}
	_, _, err = st.Get(ctx, e.ID)
	var iv *audit.IntegrityViolation
	if !errors.As(err, &iv) {
		t.Fatalf("Get() on corrupted blob error = %v, want IntegrityViolation", err)
	}
	if iv.Kind != audit.ViolationOutOfBandChange {
		t.Errorf("kind = %q, want %q", iv.Kind, audit.ViolationOutOfBandChange)
	}
}

// flakyBlobStore accepts a fixed number of writes, then refuses the rest.
// Reads and deletes pass through so abort paths stay exercisable.
type flakyBlobStore struct {
	BlobStore
	writesLeft int
}

func (f *flakyBlobStore) Put(id string, data []byte) error {
	if f.writesLeft <= 0 {
		return errors.New("write refused")
	}
	f.writesLeft--
	return f.BlobStore.Put(id, data)
}

func TestMigrateFailureLeavesTargetTierClean(t *testing.T) {
	st, s := newTestStore(t)
	ctx := context.Background()
	events := putN(t, st, s, 6)
	ids := eventIDs(events)

	if _, err := st.Migrate(ctx, ids, TierHot, TierWarm); err != nil {
		t.Fatalf("hot->warm error = %v", err)
	}

	// Moving half the batch forces a leftover rebuild on the warm tier.
	// Refusing that write aborts the run after the cold blobs already
	// landed; the abort must take them back off disk.
	st.warm = &flakyBlobStore{BlobStore: st.warm}
	if _, err := st.Migrate(ctx, ids[:3], TierWarm, TierCold); err == nil {
		t.Fatal("Migrate() succeeded with an unwritable warm tier")
	}

	coldKeys, err := st.cold.Keys()
	if err != nil {
		t.Fatalf("cold Keys() error = %v", err)
	}
	if len(coldKeys) != 0 {
		t.Errorf("aborted migration left %d cold blobs behind: %v", len(coldKeys), coldKeys)
	}
	findings, err := st.VerifyArchive(ctx, TierCold)
	if err != nil {
		t.Fatalf("VerifyArchive() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("VerifyArchive(cold) after aborted migration = %v, want clean", findings)
	}

	// Nothing moved: every event still reads from warm.
	for _, id := range ids {
		_, tier, err := st.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if tier != TierWarm {
			t.Errorf("tier = %q, want %q", tier, TierWarm)
		}
	}
}

func TestMigrateAbortedWriteDeletesPartialBlobs(t *testing.T) {
	s := newTestSigner(t)
	st := newTestStoreWith(t, Options{Sealer: s, MigrationBatchSize: 2})
	ctx := context.Background()

	events := make([]audit.Event, 5)
	for i := range events {
		events[i] = signedEvent(t, s, audit.NewEventID(), testBase.Add(time.Duration(i)*time.Minute))
		if err := st.Put(ctx, &events[i]); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	// The warm tier accepts one chunk, then refuses. The chunk that made
	// it to disk must be deleted again when the run aborts.
	st.warm = &flakyBlobStore{BlobStore: st.warm, writesLeft: 1}
	if _, err := st.Migrate(ctx, eventIDs(events), TierHot, TierWarm); err == nil {
		t.Fatal("Migrate() succeeded with a failing warm tier")
	}

	warmKeys, err := st.warm.Keys()
	if err != nil {
		t.Fatalf("warm Keys() error = %v", err)
	}
	if len(warmKeys) != 0 {
		t.Errorf("aborted migration left %d warm blobs behind: %v", len(warmKeys), warmKeys)
	}
	findings, err := st.VerifyArchive(ctx, TierWarm)
	if err != nil {
		t.Fatalf("VerifyArchive() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("VerifyArchive(warm) after aborted migration = %v, want clean", findings)
	}

	// The run changed nothing: all events still read hot.
	for i := range events {
		_, tier, err := st.Get(ctx, events[i].ID)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", events[i].ID, err)
		}
		if tier != TierHot {
			t.Errorf("event %d tier = %q, want %q", i, tier, TierHot)
		}
	}
}
