// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compliance turns a time window of audit events into signed
// compliance reports and traceable violation lists, classified against a
// regulatory framework.
//
// # Frameworks
//
// Each framework (SOC2, GDPR, HIPAA, PCI-DSS) is a row in a lookup
// table: a classifier that buckets events into the framework's taxonomy
// and an ordered rule list that decides which events count as
// violations. The custom framework reads its rules from configuration.
// Sensitivity is shared across frameworks: resource patterns from
// configuration plus the per-event metadata tag.
//
// # Reports
//
// GenerateReport pages the store for the window, classifies every event,
// signs the resulting summary, and persists it. Reports are immutable
// once issued; regenerating a window mints a new report id. VerifyReport
// re-derives the signature, so a report altered after issuance is
// detectable without the original event data.
//
// Violations returns the raw signed events behind the incident counter,
// each naming the rule it tripped, so every number in a report traces
// back to source events.
package compliance
