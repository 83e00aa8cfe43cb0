// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// schema.go - SQLite schema and tier identifiers.

package store

// SchemaVersion tracks the database schema version for migrations.
const SchemaVersion = 1

// SQLite schema for the hot tier, the cross-tier catalog, and every record
// the engine persists. The events table holds full payloads for hot events
// only; the catalog row is permanent and follows the event across tiers.
const Schema = `
-- Metadata table for schema version and store state
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Events table: full payloads while the event is hot
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    ts INTEGER NOT NULL,            -- UnixNano UTC
    shard TEXT NOT NULL,            -- UTC hour bucket YYYYMMDDHH
    seq INTEGER NOT NULL,           -- per-shard insertion counter
    actor_id TEXT NOT NULL,
    actor_type TEXT NOT NULL,
    resource TEXT NOT NULL,
    result TEXT NOT NULL,
    signature TEXT NOT NULL,
    payload BLOB NOT NULL           -- signed event JSON
);

CREATE INDEX IF NOT EXISTS idx_events_actor_ts ON events(actor_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_resource_ts ON events(resource, ts);
CREATE INDEX IF NOT EXISTS idx_events_shard_seq ON events(shard, seq);

-- Catalog: permanent per-event location ledger across all tiers.
-- Carries enough columns to filter, order, and page queries in SQL before
-- any blob is touched, and retains signatures so shard seals stay
-- verifiable after migration.
CREATE TABLE IF NOT EXISTS catalog (
    event_id TEXT PRIMARY KEY,
    shard TEXT NOT NULL,
    seq INTEGER NOT NULL,
    ts INTEGER NOT NULL,
    actor_id TEXT NOT NULL,
    resource TEXT NOT NULL,
    tier TEXT NOT NULL,             -- hot | warm | cold
    batch_id TEXT,                  -- owning batch id, NULL for unbatched hot rows
    batch_pos INTEGER,              -- member position inside the owning batch
    signature TEXT NOT NULL,
    disposal_eligible INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_catalog_actor_ts ON catalog(actor_id, ts);
CREATE INDEX IF NOT EXISTS idx_catalog_resource_ts ON catalog(resource, ts);
CREATE INDEX IF NOT EXISTS idx_catalog_ts ON catalog(ts);
CREATE INDEX IF NOT EXISTS idx_catalog_tier ON catalog(tier);
CREATE INDEX IF NOT EXISTS idx_catalog_batch ON catalog(batch_id);
CREATE INDEX IF NOT EXISTS idx_catalog_shard_seq ON catalog(shard, seq);

-- Shard seals: HMAC chain head per hour bucket. key_id names the keyring
-- key the chain was computed under; appends under a different active key
-- rebase the whole shard chain.
CREATE TABLE IF NOT EXISTS shard_seals (
    shard TEXT PRIMARY KEY,
    key_id TEXT NOT NULL,
    seal TEXT NOT NULL,
    event_count INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
) WITHOUT ROWID;

-- Batches: manifest per sealed batch (ingest batches and tier blobs)
CREATE TABLE IF NOT EXISTS batches (
    batch_id TEXT PRIMARY KEY,
    tier TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    event_count INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    signature TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_tier ON batches(tier);

-- Retention policies: full document as JSON, version bumped on update
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    enabled INTEGER NOT NULL DEFAULT 1,
    version INTEGER NOT NULL DEFAULT 1,
    doc TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Compliance reports: immutable once issued
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    report_type TEXT NOT NULL,
    period_start INTEGER NOT NULL,
    period_end INTEGER NOT NULL,
    generated_at INTEGER NOT NULL,
    generated_by TEXT NOT NULL,
    signature TEXT NOT NULL,
    doc TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_type_period ON reports(report_type, period_start, period_end);

-- Anomaly alerts
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    score INTEGER NOT NULL,
    severity TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    doc TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);

-- Retention lease: at most one row, the current cycle holder
CREATE TABLE IF NOT EXISTS retention_lease (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    holder TEXT NOT NULL,
    acquired_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// InitMetadata initializes the metadata table with default values.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
`

// =============================================================================
// TIERS
// =============================================================================

// Tier identifies a storage tier.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid checks if the tier is one of the known values.
func (t Tier) IsValid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	}
	return false
}
