// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// validate.go - Event shape validation. Runs before signing; a rejected
// event never enters the log.

package audit

import (
	"net"
	"time"
)

// MaxMetadataEntries caps the per-event metadata map.
const MaxMetadataEntries = 64

// MaxFieldLen caps individual string fields to keep canonical payloads and
// index rows bounded.
const MaxFieldLen = 4096

// Validate checks the event shape. It returns a *ValidationError naming
// the offending field, or nil. The signature field is not checked here;
// signing happens after validation.
func (e *Event) Validate() error {
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "must be set"}
	}
	if e.Actor.ID == "" {
		return &ValidationError{Field: "actor.id", Reason: "must not be empty"}
	}
	if !e.Actor.Type.IsValid() {
		return &ValidationError{Field: "actor.type", Reason: "must be one of user, system, service"}
	}
	if e.Actor.IP != "" && net.ParseIP(e.Actor.IP) == nil {
		return &ValidationError{Field: "actor.ip", Reason: "not a valid IP address"}
	}
	if e.Action.Type == "" {
		return &ValidationError{Field: "action.type", Reason: "must not be empty"}
	}
	if e.Action.Resource == "" {
		return &ValidationError{Field: "action.resource", Reason: "must not be empty"}
	}
	if !e.Action.Result.IsValid() {
		return &ValidationError{Field: "action.result", Reason: "must be one of success, failure, denied"}
	}
	if e.Action.DurationMs < 0 {
		return &ValidationError{Field: "action.durationMs", Reason: "must not be negative"}
	}
	if len(e.Action.Metadata) > MaxMetadataEntries {
		return &ValidationError{Field: "action.metadata", Reason: "too many entries"}
	}
	for k, v := range e.Action.Metadata {
		if k == "" {
			return &ValidationError{Field: "action.metadata", Reason: "empty key"}
		}
		if len(k) > MaxFieldLen || len(v) > MaxFieldLen {
			return &ValidationError{Field: "action.metadata", Reason: "entry exceeds length limit"}
		}
	}
	if e.Context.Environment == "" {
		return &ValidationError{Field: "context.environment", Reason: "must not be empty"}
	}
	if e.Context.Application == "" {
		return &ValidationError{Field: "context.application", Reason: "must not be empty"}
	}
	if e.SchemaVersion != 0 && e.SchemaVersion != SchemaVersion {
		return &ValidationError{Field: "schemaVersion", Reason: "unsupported schema version"}
	}
	for _, f := range []struct{ name, val string }{
		{"id", e.ID},
		{"actor.id", e.Actor.ID},
		{"action.type", e.Action.Type},
		{"action.resource", e.Action.Resource},
		{"action.resourceId", e.Action.ResourceID},
		{"context.requestId", e.Context.RequestID},
	} {
		if len(f.val) > MaxFieldLen {
			return &ValidationError{Field: f.name, Reason: "exceeds length limit"}
		}
	}
	return nil
}

// Normalize fills caller-optional fields: a generated id when none is
// supplied, the current schema version, and a UTC timestamp. Called by the
// engine before validation so stored events are uniform.
func (e *Event) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = NewEventID()
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
}
