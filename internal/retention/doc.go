// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retention applies lifecycle policies to stored audit events:
// age them hot to warm to cold, and finally flag them disposal-eligible.
//
// Policies pair match criteria with residency durations. When several
// enabled policies match one event, the longer total retention wins —
// fail safe toward retaining data, never toward premature disposal —
// and any disagreement on durations is recorded as a conflict in the
// cycle report. Specificity orders evaluation and breaks exact-duration
// ties. An event no policy matches is never moved.
//
// Cycles are single-flight twice over: an in-process guard rejects
// concurrent RunCycle calls, and a store-backed lease keeps separate
// processes sharing the same store from running cycles concurrently.
// Ages are measured from the event's timestamp, not its ingest time.
package retention
