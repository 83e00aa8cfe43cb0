// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for auditcore.
//
// AtomicWriteFile and AtomicWriteFileWithDir back every blob, key file,
// and sidecar the engine persists: a half-written archive batch or signing
// key is worse than a missing one, so all durable writes go through the
// temp-file + fsync + rename pattern. The rune-aware truncation helpers
// keep CLI output from splitting multi-byte characters.
package util
