// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// store.go - Store lifecycle and the ingest path. Hot writes are
// transactional and serialize per shard; every accepted event lands in the
// events table, the catalog, and its shard's seal chain in one commit.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/auditcore/internal/audit"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrEventNotFound = errors.New("event not found")
	ErrBatchNotFound = errors.New("batch not found")
)

// =============================================================================
// SEALER
// =============================================================================

// Sealer is the signing capability the store depends on: ingest
// verification, batch sealing for tier blobs, and shard seal chain links.
// *signer.Signer satisfies it.
type Sealer interface {
	Verify(e *audit.Event) error
	CreateBatch(events []audit.Event) (*audit.SignedBatch, error)
	VerifyBatch(b *audit.SignedBatch) error
	CurrentKeyID() string
	ChainMAC(keyID, prev, item string) (string, error)
}

// =============================================================================
// STORE
// =============================================================================

// Options configures Open.
type Options struct {
	// DBPath is the sqlite file backing the hot tier and the catalog.
	DBPath string

	// WarmDir and ColdDir hold batch blobs for the archival tiers.
	WarmDir string
	ColdDir string

	// ColdEncryptionKey enables AES-256-GCM at rest for cold blobs when
	// set. Must be 32 bytes.
	ColdEncryptionKey []byte

	// MigrationBatchSize caps how many events one archival batch holds.
	// Defaults to DefaultMigrationBatchSize.
	MigrationBatchSize int

	// Sealer verifies and seals everything written.
	Sealer Sealer
}

// Store is the tiered event store: sqlite hot tier plus blob-backed warm
// and cold tiers behind one catalog. Callers never address a tier on
// reads; the catalog resolves placement.
type Store struct {
	db     *sql.DB
	sealer Sealer
	warm   BlobStore
	cold   BlobStore

	warmDir   string
	coldDir   string
	batchSize int

	// Per-shard write serialization. Entries are hour buckets; the map
	// only grows by one per active hour.
	shardMu sync.Mutex
	shards  map[string]*sync.Mutex
}

// Open opens (creating if needed) the store at the configured paths.
func Open(opts Options) (*Store, error) {
	if opts.Sealer == nil {
		return nil, errors.New("store requires a sealer")
	}
	if opts.DBPath == "" || opts.WarmDir == "" || opts.ColdDir == "" {
		return nil, errors.New("store requires db path, warm dir, and cold dir")
	}

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection
	// avoids SQLITE_BUSY churn under concurrent commits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// synchronous=FULL: a durable commit is part of the ingest contract.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA wal_autocheckpoint=1000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	warm, err := NewFSBlobStore(opts.WarmDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	coldFS, err := NewFSBlobStore(opts.ColdDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	var cold BlobStore = coldFS
	if len(opts.ColdEncryptionKey) > 0 {
		enc, err := NewEncryptedBlobStore(coldFS, opts.ColdEncryptionKey)
		if err != nil {
			db.Close()
			return nil, err
		}
		cold = enc
	}

	batchSize := opts.MigrationBatchSize
	if batchSize <= 0 {
		batchSize = DefaultMigrationBatchSize
	}

	return &Store{
		db:        db,
		sealer:    opts.Sealer,
		warm:      warm,
		cold:      NewWriteOnce(cold),
		warmDir:   opts.WarmDir,
		coldDir:   opts.ColdDir,
		batchSize: batchSize,
		shards:    make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the database handle.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// WarmDir returns the warm tier blob directory (watched for out-of-band
// changes).
func (st *Store) WarmDir() string { return st.warmDir }

// ColdDir returns the cold tier blob directory.
func (st *Store) ColdDir() string { return st.coldDir }

// shardLock returns the mutex serializing writes to one shard.
func (st *Store) shardLock(shard string) *sync.Mutex {
	st.shardMu.Lock()
	defer st.shardMu.Unlock()
	mu, ok := st.shards[shard]
	if !ok {
		mu = &sync.Mutex{}
		st.shards[shard] = mu
	}
	return mu
}

// lockShards locks a set of shards in sorted order so concurrent
// multi-shard writers cannot deadlock. Returns the unlock function.
func (st *Store) lockShards(shards []string) func() {
	locks := make([]*sync.Mutex, len(shards))
	for i, s := range shards {
		locks[i] = st.shardLock(s)
	}
	for _, mu := range locks {
		mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// blobStore resolves the blob store for an archival tier.
func (st *Store) blobStore(t Tier) (BlobStore, error) {
	switch t {
	case TierWarm:
		return st.warm, nil
	case TierCold:
		return st.cold, nil
	}
	return nil, fmt.Errorf("tier %q has no blob store", t)
}

// wrapHot wraps a hot-tier database error as StorageUnavailable, letting
// context cancellation pass through untouched.
func wrapHot(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &audit.StorageUnavailable{Tier: string(TierHot), Op: op, Err: err}
}

// =============================================================================
// INGEST
// =============================================================================

// Put writes one signed event to the hot tier: payload row, catalog row,
// and shard seal move in a single transaction. The signature is verified
// before anything is written. A duplicate id with an identical signature
// is an idempotent no-op; a duplicate with a different signature is an
// immutability violation.
func (st *Store) Put(ctx context.Context, e *audit.Event) error {
	if !e.Signed() {
		return &audit.UnsignedEventError{EventID: e.ID}
	}
	if err := st.sealer.Verify(e); err != nil {
		return err
	}

	shard := e.Shard()
	mu := st.shardLock(shard)
	mu.Lock()
	defer mu.Unlock()

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapHot("begin", err)
	}
	defer tx.Rollback()

	dup, err := st.insertEventTx(ctx, tx, e, nil, 0)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	if err := st.appendSealTx(ctx, tx, shard, e.Signature); err != nil {
		return err
	}
	return wrapHot("commit", tx.Commit())
}

// PutBatch writes a sealed batch to the hot tier all-or-nothing. The batch
// is verified first (checksum, member signatures, batch signature); the
// manifest and every member land in one transaction. Re-putting the same
// batch id with the same checksum is an idempotent no-op.
func (st *Store) PutBatch(ctx context.Context, b *audit.SignedBatch) error {
	if err := st.sealer.VerifyBatch(b); err != nil {
		return err
	}

	shardSet := make(map[string]bool)
	for i := range b.Events {
		shardSet[b.Events[i].Shard()] = true
	}
	unlock := st.lockShards(sortedKeys(shardSet))
	defer unlock()

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapHot("begin", err)
	}
	defer tx.Rollback()

	switch existing, err := st.batchChecksumTx(ctx, tx, b.BatchID); {
	case err != nil:
		return err
	case existing == b.Checksum:
		return nil
	case existing != "":
		return &audit.IntegrityViolation{
			Kind:    audit.ViolationImmutableEvent,
			BatchID: b.BatchID,
			Detail:  "batch id already stored with a different checksum",
		}
	}

	if err := st.insertManifestTx(ctx, tx, b, TierHot); err != nil {
		return err
	}

	batchID := b.BatchID
	for i := range b.Events {
		e := &b.Events[i]
		dup, err := st.insertEventTx(ctx, tx, e, &batchID, i)
		if err != nil {
			return err
		}
		if dup {
			continue
		}
		if err := st.appendSealTx(ctx, tx, e.Shard(), e.Signature); err != nil {
			return err
		}
	}
	return wrapHot("commit", tx.Commit())
}

// insertEventTx writes the payload row and catalog row for one event.
// Returns dup=true when the id already exists with an identical signature.
// A duplicate encountered during batch ingest is adopted into the batch if
// it was stored loose; an event cannot belong to two batches.
func (st *Store) insertEventTx(ctx context.Context, tx *sql.Tx, e *audit.Event, batchID *string, batchPos int) (bool, error) {
	var existing string
	var existingBatch sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT signature, batch_id FROM catalog WHERE event_id = ?`, e.ID).
		Scan(&existing, &existingBatch)
	switch {
	case err == nil:
		if existing != e.Signature {
			return false, &audit.IntegrityViolation{
				Kind:    audit.ViolationImmutableEvent,
				EventID: e.ID,
				Detail:  "event id already stored with a different signature",
			}
		}
		if batchID == nil {
			return true, nil
		}
		if existingBatch.Valid && existingBatch.String != *batchID {
			return false, &audit.IntegrityViolation{
				Kind:    audit.ViolationImmutableEvent,
				EventID: e.ID,
				BatchID: *batchID,
				Detail:  "event already sealed into batch " + existingBatch.String,
			}
		}
		if !existingBatch.Valid {
			if _, err := tx.ExecContext(ctx,
				`UPDATE catalog SET batch_id = ?, batch_pos = ? WHERE event_id = ?`,
				*batchID, batchPos, e.ID); err != nil {
				return false, wrapHot("adopt member", err)
			}
		}
		return true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, wrapHot("lookup", err)
	}

	shard := e.Shard()
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM catalog WHERE shard = ?`, shard).Scan(&seq); err != nil {
		return false, wrapHot("sequence", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}
	ts := e.Timestamp.UTC().UnixNano()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, ts, shard, seq, actor_id, actor_type, resource, result, signature, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, ts, shard, seq, e.Actor.ID, string(e.Actor.Type),
		e.Action.Resource, string(e.Action.Result), e.Signature, payload); err != nil {
		return false, wrapHot("insert event", err)
	}

	var bid any
	var pos any
	if batchID != nil {
		bid = *batchID
		pos = batchPos
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog (event_id, shard, seq, ts, actor_id, resource, tier, batch_id, batch_pos, signature, disposal_eligible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ID, shard, seq, ts, e.Actor.ID, e.Action.Resource,
		string(TierHot), bid, pos, e.Signature); err != nil {
		return false, wrapHot("insert catalog", err)
	}
	return false, nil
}

// insertManifestTx records a batch manifest.
func (st *Store) insertManifestTx(ctx context.Context, tx *sql.Tx, b *audit.SignedBatch, tier Tier) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO batches (batch_id, tier, created_at, event_count, checksum, signature)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.BatchID, string(tier), b.CreatedAt.UTC().UnixNano(),
		len(b.Events), b.Checksum, b.Signature); err != nil {
		return wrapHot("insert manifest", err)
	}
	return nil
}

// batchChecksumTx returns the stored checksum for a batch id, or "".
func (st *Store) batchChecksumTx(ctx context.Context, tx *sql.Tx, batchID string) (string, error) {
	var checksum string
	err := tx.QueryRowContext(ctx,
		`SELECT checksum FROM batches WHERE batch_id = ?`, batchID).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapHot("lookup batch", err)
	}
	return checksum, nil
}

// sortedKeys returns map keys in sorted order.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nowNano is the timestamp written to bookkeeping rows.
func nowNano() int64 {
	return time.Now().UTC().UnixNano()
}
