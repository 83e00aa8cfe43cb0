// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// analyzer.go - Per-event anomaly scoring. Weights, thresholds, and
// action-type lists are configuration; the defaults here are starting
// points, not policy.

package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/store"
)

// Defaults for everything Options leaves zero.
const (
	DefaultAlertThreshold   = 90
	DefaultOffHoursStart    = 22
	DefaultOffHoursEnd      = 6
	DefaultBaselineLookback = 30 * 24 * time.Hour
	DefaultBaselineTTL      = 10 * time.Minute
	DefaultPageSize         = 1000
)

// DefaultPrivilegedActions are action-type prefixes treated as privileged.
var DefaultPrivilegedActions = []string{"admin.", "role.", "permission.", "user.elevate"}

// DefaultDestructiveActions are action-type suffixes treated as
// destructive.
var DefaultDestructiveActions = []string{".delete", ".erase", ".purge", ".destroy", ".drop"}

// Weights are the per-heuristic score contributions.
type Weights struct {
	NewIP                int `toml:"new_ip" json:"newIP"`
	OffHours             int `toml:"off_hours" json:"offHours"`
	DestructiveSensitive int `toml:"destructive_sensitive" json:"destructiveSensitive"`
	Denied               int `toml:"denied" json:"denied"`
	Privileged           int `toml:"privileged" json:"privileged"`
	UnseenAction         int `toml:"unseen_action" json:"unseenAction"`
}

// DefaultWeights returns the stock heuristic weights.
func DefaultWeights() Weights {
	return Weights{
		NewIP:                25,
		OffHours:             15,
		DestructiveSensitive: 30,
		Denied:               10,
		Privileged:           20,
		UnseenAction:         10,
	}
}

// Analyzer scores events and windows against one store.
type Analyzer struct {
	store     *store.Store
	sensitive *audit.SensitiveMatcher
	cache     *baselineCache

	weights     Weights
	privileged  []string
	destructive []string

	offHoursStart int
	offHoursEnd   int

	alertThreshold int
	onAlert        func(*audit.Alert)

	patterns patternConfig

	lookback time.Duration
	pageSize int
	clock    func() time.Time
}

// Options configures New. Zero values get defaults.
type Options struct {
	Store *store.Store

	// SensitiveResources are the same patterns the compliance rules use.
	SensitiveResources []string

	// Weights override the stock heuristic weights; the zero value means
	// DefaultWeights.
	Weights Weights

	// PrivilegedActions and DestructiveActions override the stock
	// action-type prefix/suffix lists.
	PrivilegedActions  []string
	DestructiveActions []string

	// OffHoursStart/End bound the off-hours window in UTC hours,
	// wraparound-aware (22..6 means 22:00 through 05:59). Equal values
	// disable the heuristic.
	OffHoursStart int
	OffHoursEnd   int

	// AlertThreshold is the score at or above which an alert persists.
	// Negative disables alerting.
	AlertThreshold int

	// OnAlert, when set, is invoked after an alert persists. Delivery
	// beyond this callback is the caller's concern.
	OnAlert func(*audit.Alert)

	// Patterns override the sequence-detection thresholds.
	Patterns PatternOptions

	BaselineLookback time.Duration
	BaselineTTL      time.Duration
	PageSize         int
	Clock            func() time.Time
}

// New returns an analyzer over the store.
func New(opts Options) (*Analyzer, error) {
	if opts.Store == nil {
		return nil, errors.New("analyzer requires a store")
	}
	weights := opts.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	privileged := opts.PrivilegedActions
	if privileged == nil {
		privileged = DefaultPrivilegedActions
	}
	destructive := opts.DestructiveActions
	if destructive == nil {
		destructive = DefaultDestructiveActions
	}
	offStart, offEnd := opts.OffHoursStart, opts.OffHoursEnd
	if offStart == 0 && offEnd == 0 {
		offStart, offEnd = DefaultOffHoursStart, DefaultOffHoursEnd
	}
	threshold := opts.AlertThreshold
	if threshold == 0 {
		threshold = DefaultAlertThreshold
	}
	lookback := opts.BaselineLookback
	if lookback <= 0 {
		lookback = DefaultBaselineLookback
	}
	ttl := opts.BaselineTTL
	if ttl <= 0 {
		ttl = DefaultBaselineTTL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Analyzer{
		store:          opts.Store,
		sensitive:      audit.NewSensitiveMatcher(opts.SensitiveResources),
		cache:          newBaselineCache(ttl),
		weights:        weights,
		privileged:     privileged,
		destructive:    destructive,
		offHoursStart:  offStart,
		offHoursEnd:    offEnd,
		alertThreshold: threshold,
		onAlert:        opts.OnAlert,
		patterns:       opts.Patterns.withDefaults(),
		lookback:       lookback,
		pageSize:       pageSize,
		clock:          clock,
	}, nil
}

// AnalyzeEvent scores one event against its actor's baseline. A score at
// or above the alert threshold persists an alert before returning; a
// failed alert write fails the call so the caller can retry.
func (a *Analyzer) AnalyzeEvent(ctx context.Context, e *audit.Event) (*audit.AnomalyScore, error) {
	bl, err := a.baseline(ctx, e.Actor.ID, e.Timestamp)
	if err != nil {
		return nil, err
	}
	score := a.scoreEvent(e, bl)

	if a.alertThreshold >= 0 && score.Score >= a.alertThreshold {
		alert := &audit.Alert{
			ID:              uuid.NewString(),
			Score:           score.Score,
			Severity:        score.Severity,
			Reasons:         score.Reasons,
			RelatedEventIDs: []string{e.ID},
			CreatedAt:       a.clock().UTC(),
		}
		if err := a.store.SaveAlert(ctx, alert); err != nil {
			return nil, fmt.Errorf("failed to persist alert: %w", err)
		}
		if a.onAlert != nil {
			a.onAlert(alert)
		}
	}
	return score, nil
}

// scoreEvent applies the heuristics. Pure over (event, baseline).
func (a *Analyzer) scoreEvent(e *audit.Event, bl *baseline) *audit.AnomalyScore {
	score := &audit.AnomalyScore{EventID: e.ID, Severity: audit.SeverityLow}

	if e.Actor.IP != "" && !bl.knownIPs[e.Actor.IP] {
		score.Add(a.weights.NewIP,
			fmt.Sprintf("ip %s not seen for actor %s in the last %s", e.Actor.IP, e.Actor.ID, a.lookback))
	}
	if a.offHours(e.Timestamp) {
		score.Add(a.weights.OffHours,
			fmt.Sprintf("activity at %02d:00 UTC is off-hours", e.Timestamp.UTC().Hour()))
	}
	if a.isDestructive(e.Action.Type) && a.sensitive.Sensitive(e) {
		score.Add(a.weights.DestructiveSensitive,
			fmt.Sprintf("destructive action %s on sensitive resource %s", e.Action.Type, e.Action.Resource))
	}
	if e.Action.Result == audit.ResultDenied {
		score.Add(a.weights.Denied, "action was denied")
	}
	if a.isPrivileged(e.Action.Type) {
		score.Add(a.weights.Privileged,
			fmt.Sprintf("privileged action %s", e.Action.Type))
	}
	if !bl.actionTypes[e.Action.Type] {
		score.Add(a.weights.UnseenAction,
			fmt.Sprintf("actor %s has not performed %s before", e.Actor.ID, e.Action.Type))
	}
	return score
}

// offHours reports whether the timestamp's UTC hour falls in the
// configured window, handling midnight wraparound.
func (a *Analyzer) offHours(ts time.Time) bool {
	if a.offHoursStart == a.offHoursEnd {
		return false
	}
	h := ts.UTC().Hour()
	if a.offHoursStart < a.offHoursEnd {
		return h >= a.offHoursStart && h < a.offHoursEnd
	}
	return h >= a.offHoursStart || h < a.offHoursEnd
}

func (a *Analyzer) isPrivileged(actionType string) bool {
	for _, p := range a.privileged {
		if strings.HasPrefix(actionType, p) {
			return true
		}
	}
	return false
}

func (a *Analyzer) isDestructive(actionType string) bool {
	for _, s := range a.destructive {
		if strings.HasSuffix(actionType, s) {
			return true
		}
	}
	return false
}

// Alerts lists persisted alerts, newest first.
func (a *Analyzer) Alerts(ctx context.Context, openOnly bool, limit int) ([]audit.Alert, error) {
	return a.store.ListAlerts(ctx, openOnly, limit)
}

// Acknowledge marks an alert handled. Idempotent.
func (a *Analyzer) Acknowledge(ctx context.Context, id string) error {
	return a.store.AcknowledgeAlert(ctx, id)
}
