// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// frameworks.go - The framework lookup table: per-framework event
// classification and violation rules. A framework is data, not behavior;
// adding one means adding a table row.

package compliance

import (
	"strings"

	"github.com/jeranaias/auditcore/internal/audit"
)

// rule is one violation predicate. Rules are checked in order and the
// first match names the violation, so more specific rules go first.
type rule struct {
	name  string
	match func(e *audit.Event, sensitive bool) bool
}

// framework classifies events into a report taxonomy and flags
// violations. The classifier may assign several classes to one event;
// an event matching no class lands in "other".
type framework struct {
	classify func(e *audit.Event, sensitive bool) []string
	rules    []rule
}

var soc2 = framework{
	classify: func(e *audit.Event, sensitive bool) []string {
		var cs []string
		if isAuthAction(e.Action.Type) {
			cs = append(cs, "authentication")
		}
		if e.Action.Result == audit.ResultDenied {
			cs = append(cs, "access_denied")
		}
		if isExportAction(e.Action.Type) {
			cs = append(cs, "data_export")
		}
		if isChangeAction(e.Action.Type) {
			cs = append(cs, "change_management")
		}
		return cs
	},
	rules: []rule{
		{"denied-sensitive-access", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && sensitive
		}},
		{"denied-change-attempt", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && isChangeAction(e.Action.Type)
		}},
	},
}

var gdpr = framework{
	classify: func(e *audit.Event, sensitive bool) []string {
		var cs []string
		if sensitive {
			cs = append(cs, "personal_data_access")
		}
		if isEraseAction(e.Action.Type) {
			cs = append(cs, "data_erasure")
		}
		if isExportAction(e.Action.Type) {
			cs = append(cs, "data_export")
		}
		if strings.HasPrefix(e.Action.Type, "consent.") {
			cs = append(cs, "consent")
		}
		return cs
	},
	rules: []rule{
		// A failed erasure means personal data survived its deletion
		// request; that is reportable on its own.
		{"failed-erasure", func(e *audit.Event, sensitive bool) bool {
			return isEraseAction(e.Action.Type) && sensitive && e.Action.Result == audit.ResultFailure
		}},
		{"denied-personal-data-access", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && sensitive
		}},
	},
}

var hipaa = framework{
	classify: func(e *audit.Event, sensitive bool) []string {
		var cs []string
		if sensitive {
			cs = append(cs, "phi_access")
		}
		if isExportAction(e.Action.Type) && sensitive {
			cs = append(cs, "disclosure")
		}
		if isAuthAction(e.Action.Type) {
			cs = append(cs, "authentication")
		}
		if isChangeAction(e.Action.Type) {
			cs = append(cs, "administrative")
		}
		return cs
	},
	rules: []rule{
		{"denied-disclosure", func(e *audit.Event, sensitive bool) bool {
			return isExportAction(e.Action.Type) && sensitive && e.Action.Result == audit.ResultDenied
		}},
		{"denied-phi-access", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && sensitive
		}},
	},
}

var pcidss = framework{
	classify: func(e *audit.Event, sensitive bool) []string {
		var cs []string
		if sensitive {
			cs = append(cs, "cardholder_data_access")
		}
		if isAuthAction(e.Action.Type) {
			cs = append(cs, "authentication")
		}
		if isChangeAction(e.Action.Type) {
			cs = append(cs, "privileged_change")
		}
		return cs
	},
	rules: []rule{
		{"denied-cardholder-access", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && sensitive
		}},
		{"denied-privileged-change", func(e *audit.Event, sensitive bool) bool {
			return e.Action.Result == audit.ResultDenied && isChangeAction(e.Action.Type)
		}},
	},
}

var builtins = map[audit.ReportType]framework{
	audit.ReportSOC2:   soc2,
	audit.ReportGDPR:   gdpr,
	audit.ReportHIPAA:  hipaa,
	audit.ReportPCIDSS: pcidss,
}

// CustomRule is one operator-defined violation rule for the custom
// framework, loaded from configuration.
type CustomRule struct {
	Name string `toml:"name" json:"name"`

	// ActionPrefixes restricts the rule to action types with any of
	// these prefixes. Empty means every action type.
	ActionPrefixes []string `toml:"action_prefixes" json:"actionPrefixes"`

	// Results restricts the rule to these outcomes. Empty means any.
	Results []string `toml:"results" json:"results"`

	// SensitiveOnly restricts the rule to sensitive resources.
	SensitiveOnly bool `toml:"sensitive_only" json:"sensitiveOnly"`
}

func (cr *CustomRule) matches(e *audit.Event, sensitive bool) bool {
	if cr.SensitiveOnly && !sensitive {
		return false
	}
	if len(cr.ActionPrefixes) > 0 && !hasAnyPrefix(e.Action.Type, cr.ActionPrefixes...) {
		return false
	}
	if len(cr.Results) > 0 {
		found := false
		for _, r := range cr.Results {
			if audit.ActionResult(r) == e.Action.Result {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// customFramework builds the custom framework from the reporter's
// configured rules. Classification buckets by the action type's leading
// segment.
func customFramework(rules []CustomRule) framework {
	fwRules := make([]rule, 0, len(rules))
	for i := range rules {
		cr := rules[i]
		name := cr.Name
		if name == "" {
			name = "custom-rule"
		}
		fwRules = append(fwRules, rule{name, cr.matches})
	}
	return framework{
		classify: func(e *audit.Event, sensitive bool) []string {
			t := e.Action.Type
			if i := strings.IndexByte(t, '.'); i > 0 {
				t = t[:i]
			}
			if t == "" {
				return nil
			}
			return []string{t}
		},
		rules: fwRules,
	}
}

// violation returns the first rule the event trips, if any.
func (fw *framework) violation(e *audit.Event, sensitive bool) (string, bool) {
	for _, r := range fw.rules {
		if r.match(e, sensitive) {
			return r.name, true
		}
	}
	return "", false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isAuthAction(t string) bool {
	return hasAnyPrefix(t, "auth.", "login", "logout", "session.")
}

func isExportAction(t string) bool {
	return strings.Contains(t, "export") || strings.Contains(t, "download")
}

func isChangeAction(t string) bool {
	return hasAnyPrefix(t, "config.", "policy.", "admin.", "settings.")
}

func isEraseAction(t string) bool {
	return strings.HasSuffix(t, ".delete") || strings.HasSuffix(t, ".erase") || strings.HasSuffix(t, ".purge")
}
