// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit defines the domain model for the tamper-evident audit trail:
// events, signed batches, integrity reports, retention policies, compliance
// reports, anomaly scores, and the shared error taxonomy.
//
// # Events
//
// An Event records one security-relevant action: who (Actor), what (Action),
// and under which circumstances (Context). Events are immutable once signed;
// the store rejects any attempt to rewrite a signed event under the same id.
//
//	e := audit.Event{
//	    Timestamp: time.Now().UTC(),
//	    Actor:     audit.Actor{ID: "u-1042", Type: audit.ActorUser, IP: "10.0.4.7"},
//	    Action:    audit.Action{Type: "delete", Resource: "vault/prod-keys", Result: audit.ResultSuccess},
//	    Context:   audit.Context{Environment: "prod", Application: "vault", Version: "2.3.1"},
//	}
//	if err := e.Validate(); err != nil {
//	    return err
//	}
//
// # Error taxonomy
//
// The typed errors in this package cross component boundaries and are
// matched with errors.As:
//   - ValidationError: malformed event shape, rejected before signing
//   - UnsignedEventError: batch assembly attempted on an unsigned event
//   - IntegrityViolation: signature or checksum mismatch, never ignored
//   - StorageUnavailable: a storage tier is unreachable
//   - PolicyConflictError: two policies claim the same event (internal only)
package audit
