// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine assembles the audit pipeline: signer, tiered store,
// retention, compliance reporting, and anomaly analytics behind one
// facade the CLI and embedders call.
//
// # Ingestion
//
// Submit normalizes and validates the event, signs it with the active
// key, and stores it durably before returning; an event the caller gets
// back is already tamper-evident and queryable. Ingestion optionally
// rate-limits via a token bucket and scores each event inline so
// threshold crossings alert at ingest time.
//
// # Side channels
//
// Signed events stream to an at-least-once JSONL exporter for SIEM
// consumption; consumers deduplicate by event id. Integrity violations
// and critical anomaly alerts fan out through a Notifier and are also
// recorded into the audit trail itself as system events.
//
// # Background work
//
// A Scheduler runs retention cycles and analytics rollups at configured
// intervals. An ArchiveWatcher watches the warm and cold directories and
// reconciles them against the catalog when they change out-of-band.
package engine
