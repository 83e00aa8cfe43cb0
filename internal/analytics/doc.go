// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package analytics scores audit events for suspicious behavior and rolls
// windows of them up into metrics, trends, and alerts.
//
// # Scoring
//
// AnalyzeEvent compares one event against the actor's historical baseline
// (IPs and action types seen over a lookback window, cached with a TTL).
// Each matching heuristic adds its configured weight and a human-readable
// reason; the sum is capped at 100 and graded into severity bands. Scores
// are transient: only a score crossing the alert threshold persists, as
// an alert.
//
// # Patterns
//
// DetectPatterns looks across an event sequence for signals no single
// event carries: rapid repeated failures, privilege probing, and volume
// bursts. It is a pure function over its input.
//
// # Rollups
//
// GenerateAnalytics aggregates a time window into volume metrics, hourly
// and daily trends, a deduplicated anomaly list, and the window's
// patterns. Rollups are advisory reads: a degraded tier flags the report
// partial instead of failing it, unlike compliance reports which refuse
// to sign over partial data.
//
// All hours (off-hours windows, trend buckets) are UTC.
package analytics
