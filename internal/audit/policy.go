// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// policy.go - Retention policies: criteria mapped to tier-residency
// durations. Policies are versioned rows, not in-process state, so
// evaluation is a pure function of (policy, event).

package audit

import (
	"time"
)

// PolicyCriteria selects which events a retention policy governs. Empty
// fields match everything, so a zero criteria is a catch-all.
type PolicyCriteria struct {
	ResourceTypes []string `json:"resourceTypes,omitempty" toml:"resource_types"`
	ActorTypes    []string `json:"actorTypes,omitempty" toml:"actor_types"`
	CriticalOnly  bool     `json:"criticalOnly,omitempty" toml:"critical_only"`
}

// Matches reports whether the criteria select the given event.
func (c *PolicyCriteria) Matches(e *Event) bool {
	if len(c.ResourceTypes) > 0 {
		rt := e.ResourceType()
		found := false
		for _, want := range c.ResourceTypes {
			if want == rt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.ActorTypes) > 0 {
		found := false
		for _, want := range c.ActorTypes {
			if ActorType(want) == e.Actor.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.CriticalOnly && !e.Critical() {
		return false
	}
	return true
}

// Specificity counts the constrained criteria fields. More specific
// policies are evaluated before catch-alls.
func (c *PolicyCriteria) Specificity() int {
	n := 0
	if len(c.ResourceTypes) > 0 {
		n++
	}
	if len(c.ActorTypes) > 0 {
		n++
	}
	if c.CriticalOnly {
		n++
	}
	return n
}

// RetentionPolicy maps event criteria to residency durations per tier.
// Deleting a policy never retroactively un-tiers already-migrated events.
type RetentionPolicy struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Criteria         PolicyCriteria `json:"criteria"`
	HotStorageDays   int            `json:"hotStorageDays"`
	WarmStorageDays  int            `json:"warmStorageDays"`
	ColdStorageYears int            `json:"coldStorageYears"`
	Enabled          bool           `json:"enabled"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// HotAge is the age past which an event leaves the hot tier.
func (p *RetentionPolicy) HotAge() time.Duration {
	return time.Duration(p.HotStorageDays) * 24 * time.Hour
}

// WarmAge is the age past which an event leaves the warm tier.
func (p *RetentionPolicy) WarmAge() time.Duration {
	return p.HotAge() + time.Duration(p.WarmStorageDays)*24*time.Hour
}

// ColdAge is the age past which an event becomes disposal-eligible.
// Retention years use 365-day years.
func (p *RetentionPolicy) ColdAge() time.Duration {
	return p.WarmAge() + time.Duration(p.ColdStorageYears)*365*24*time.Hour
}

// TotalRetention is the full residency span the policy grants. Conflict
// resolution keeps the policy with the longer total.
func (p *RetentionPolicy) TotalRetention() time.Duration {
	return p.ColdAge()
}

// ValidatePolicy checks policy shape before it is persisted.
func (p *RetentionPolicy) ValidatePolicy() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.HotStorageDays < 0 || p.WarmStorageDays < 0 || p.ColdStorageYears < 0 {
		return &ValidationError{Field: "retention", Reason: "durations must not be negative"}
	}
	if p.HotStorageDays == 0 && p.WarmStorageDays == 0 && p.ColdStorageYears == 0 {
		return &ValidationError{Field: "retention", Reason: "at least one duration must be positive"}
	}
	for _, at := range p.Criteria.ActorTypes {
		if !ActorType(at).IsValid() {
			return &ValidationError{Field: "criteria.actorTypes", Reason: "unknown actor type " + at}
		}
	}
	return nil
}
