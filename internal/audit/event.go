// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// event.go - Audit event model: actor, action, context, and shard derivation.

package audit

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version, embedded in every
// event and covered by its signature.
const SchemaVersion = 1

// =============================================================================
// ENUMERATIONS
// =============================================================================

// ActorType classifies who performed an action.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorSystem  ActorType = "system"
	ActorService ActorType = "service"
)

// IsValid reports whether the actor type is one of the known values.
func (t ActorType) IsValid() bool {
	switch t {
	case ActorUser, ActorSystem, ActorService:
		return true
	}
	return false
}

// ActionResult is the outcome of the recorded action.
type ActionResult string

const (
	ResultSuccess ActionResult = "success"
	ResultFailure ActionResult = "failure"
	ResultDenied  ActionResult = "denied"
)

// IsValid reports whether the result is one of the known values.
func (r ActionResult) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultDenied:
		return true
	}
	return false
}

// =============================================================================
// EVENT MODEL
// =============================================================================

// Actor identifies the principal behind an event.
type Actor struct {
	ID      string    `json:"id"`
	Type    ActorType `json:"type"`
	IP      string    `json:"ip,omitempty"`
	Session string    `json:"session,omitempty"`
}

// Action describes what the actor did and how it turned out.
type Action struct {
	Type       string            `json:"type"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resourceId,omitempty"`
	Result     ActionResult      `json:"result"`
	DurationMs int64             `json:"durationMs,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Context carries the request environment the action happened in.
type Context struct {
	RequestID   string `json:"requestId,omitempty"`
	Environment string `json:"environment"`
	Application string `json:"application"`
	Version     string `json:"version"`
}

// Event is a single audit record. Once Signature is non-empty the event is
// immutable: any field mutation invalidates the signature and the store
// rejects the write.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         Actor     `json:"actor"`
	Action        Action    `json:"action"`
	Context       Context   `json:"context"`
	SchemaVersion int       `json:"schemaVersion"`
	Signature     string    `json:"signature,omitempty"`
}

// NewEventID returns a fresh event id for callers that do not supply one.
func NewEventID() string {
	return uuid.NewString()
}

// Signed reports whether the event carries a signature.
func (e *Event) Signed() bool {
	return e.Signature != ""
}

// Shard returns the event's logical shard key: the UTC hour bucket its
// timestamp falls into (format YYYYMMDDHH). Chain seals and write
// serialization operate per shard.
func (e *Event) Shard() string {
	return e.Timestamp.UTC().Format("2006010215")
}

// Clone returns a deep copy of the event. The metadata map is copied so
// mutating the clone never touches the original.
func (e *Event) Clone() Event {
	c := *e
	if e.Action.Metadata != nil {
		c.Action.Metadata = make(map[string]string, len(e.Action.Metadata))
		for k, v := range e.Action.Metadata {
			c.Action.Metadata[k] = v
		}
	}
	return c
}

// ResourceType returns the leading segment of the resource path, the
// coarse "type" that retention criteria match on. For "vault/prod-keys"
// it returns "vault"; for a bare "vault" it returns "vault".
func (e *Event) ResourceType() string {
	res := e.Action.Resource
	for i := 0; i < len(res); i++ {
		if res[i] == '/' {
			return res[:i]
		}
	}
	return res
}

// Critical reports whether the event counts as critical for retention
// criteria: denied outcomes and events explicitly flagged by the caller.
func (e *Event) Critical() bool {
	if e.Action.Result == ResultDenied {
		return true
	}
	return e.Action.Metadata["critical"] == "true"
}
