// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the auditcore command-line interface.
//
// Each command gets a Handle* function that opens the engine, parses its
// options, and renders either styled terminal output or a JSON envelope
// when --json is set. Handlers exit the process themselves: exit code 1
// for operational failures, 2 for usage errors. Destructive commands
// (purge, policy delete, config init over an existing file) demand an
// explicit --confirm.
//
// Color output honors NO_COLOR and FORCE_COLOR and is disabled when
// stdout is not a terminal.
package cli
