// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// anomaly.go - Anomaly scores and alerts. Scores are transient; only
// threshold-crossing scores persist, as alerts.

package audit

import "time"

// MaxAnomalyScore caps the summed heuristic score.
const MaxAnomalyScore = 100

// Severity grades anomalies and alert notifications.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore maps a 0-100 score onto the severity bands.
func SeverityForScore(score int) Severity {
	switch {
	case score < 25:
		return SeverityLow
	case score < 50:
		return SeverityMedium
	case score < 75:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// AnomalyScore is the heuristic risk rating of one event or sequence.
// Each contributing heuristic adds its weight and appends a reason; the
// sum is capped at MaxAnomalyScore.
type AnomalyScore struct {
	EventID  string   `json:"eventId,omitempty"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Severity Severity `json:"severity"`
}

// Add accumulates one heuristic contribution, capping the total.
func (s *AnomalyScore) Add(weight int, reason string) {
	if weight <= 0 {
		return
	}
	s.Score += weight
	if s.Score > MaxAnomalyScore {
		s.Score = MaxAnomalyScore
	}
	s.Reasons = append(s.Reasons, reason)
	s.Severity = SeverityForScore(s.Score)
}

// Alert is a persisted anomaly that crossed the alert threshold.
type Alert struct {
	ID              string    `json:"id"`
	Score           int       `json:"score"`
	Severity        Severity  `json:"severity"`
	Reasons         []string  `json:"reasons"`
	RelatedEventIDs []string  `json:"relatedEventIds"`
	CreatedAt       time.Time `json:"createdAt"`
	Acknowledged    bool      `json:"acknowledged"`
}
