// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// report.go - Compliance reports: signed, time-windowed summaries of audit
// events classified against a regulatory framework's rules.

package audit

import "time"

// ReportType selects the regulatory framework a compliance report is
// classified against.
type ReportType string

const (
	ReportSOC2   ReportType = "SOC2"
	ReportGDPR   ReportType = "GDPR"
	ReportHIPAA  ReportType = "HIPAA"
	ReportPCIDSS ReportType = "PCI-DSS"
	ReportCustom ReportType = "custom"
)

// IsValid reports whether the report type is one of the known frameworks.
func (t ReportType) IsValid() bool {
	switch t {
	case ReportSOC2, ReportGDPR, ReportHIPAA, ReportPCIDSS, ReportCustom:
		return true
	}
	return false
}

// ReportPeriod is the half-open window [Start, End) a report covers,
// matching store query semantics.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReportSummary carries the aggregate counters of a compliance report.
// FailedActions counts both failure and denied outcomes.
type ReportSummary struct {
	TotalEvents       int `json:"totalEvents"`
	SuccessfulActions int `json:"successfulActions"`
	FailedActions     int `json:"failedActions"`
	SecurityIncidents int `json:"securityIncidents"`
}

// ComplianceReport is immutable once signed; regenerating the same period
// produces a new id. The signature covers the report's canonical
// serialization minus the signature field.
type ComplianceReport struct {
	ID          string         `json:"id"`
	Type        ReportType     `json:"type"`
	Period      ReportPeriod   `json:"period"`
	Summary     ReportSummary  `json:"summary"`
	Classes     map[string]int `json:"classes,omitempty"`
	GeneratedBy string         `json:"generatedBy"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Signature   string         `json:"signature,omitempty"`
}
