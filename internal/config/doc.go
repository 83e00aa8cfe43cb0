// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates, and persists auditcore configuration.
//
// A single TOML file under ~/.auditcore carries every tunable: storage
// paths and encryption, signing key sources, ingestion limits, retention
// scheduling, compliance rule sets, anomaly weights, and the export
// stream. Defaults are filled for anything omitted, AUDITCORE_*
// environment variables override the file, and validation reports every
// problem at once rather than the first.
package config
