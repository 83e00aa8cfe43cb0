// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the tiered audit event store: a SQLite hot
// tier for recent events, filesystem blob tiers for warm and cold
// archives, and one permanent catalog that tracks every event's placement
// across all three.
//
// # Catalog
//
// The catalog is the source of truth. Each ingested event gets a catalog
// row carrying its timestamp, actor, resource, signature, tier, and batch
// membership; the row survives migrations and is only removed by an
// authorized disposal purge. Queries filter, order, and page against the
// catalog in SQL before any payload or blob is loaded, so reads cost the
// same regardless of which tier answers.
//
// # Tiers
//
// Hot events live as individual payload rows. Warm and cold events live
// inside sealed batch blobs, one file per batch, written atomically. The
// cold tier is write-once: an object can be created and (through purge)
// deleted, never replaced. Cold blobs are optionally encrypted with
// AES-256-GCM, which doubles as tamper evidence for bytes at rest.
//
// # Integrity
//
// Every read verifies event signatures and fails closed on mismatch. Each
// UTC-hour shard additionally carries an HMAC seal chain over its catalog
// signatures; VerifyShard detects rows added, edited, or removed outside
// the write path even when every surviving signature still verifies.
// Migration re-seals events into fresh batches and proves the new blob by
// read-back before the old location is released.
package store
