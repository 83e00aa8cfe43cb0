// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sensitive.go - Resource sensitivity. Compliance rules and anomaly
// heuristics both hinge on whether an action touched something sensitive,
// so the matcher lives with the event model.

package audit

import (
	"path"
	"strings"
)

// SensitiveMatcher decides whether an event touched a sensitive resource.
// Patterns match the action resource path: exact strings, shell globs
// ("vault/*-keys"), and subtree patterns ("vault/*" covers everything
// under vault/). Events explicitly tagged metadata sensitivity=high match
// regardless of patterns.
type SensitiveMatcher struct {
	patterns []string
}

// NewSensitiveMatcher compiles the pattern list. Nil patterns are fine;
// the metadata tag still applies.
func NewSensitiveMatcher(patterns []string) *SensitiveMatcher {
	m := &SensitiveMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// Sensitive reports whether the event's resource is tagged or matched as
// sensitive.
func (m *SensitiveMatcher) Sensitive(e *Event) bool {
	if e.Action.Metadata["sensitivity"] == "high" {
		return true
	}
	return m.MatchResource(e.Action.Resource)
}

// MatchResource reports whether a resource path matches any configured
// pattern.
func (m *SensitiveMatcher) MatchResource(resource string) bool {
	for _, p := range m.patterns {
		if p == resource {
			return true
		}
		// "vault/*" covers the whole subtree, not just one segment.
		if rest, ok := strings.CutSuffix(p, "/*"); ok && strings.HasPrefix(resource, rest+"/") {
			return true
		}
		if ok, err := path.Match(p, resource); err == nil && ok {
			return true
		}
	}
	return false
}
