// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// rollup.go - Window rollups: metrics, trends, and the deduplicated
// anomaly list. Rollups never alert; alerting happens at ingest.

package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/store"
)

// Metrics are the aggregate counters of one analytics window.
type Metrics struct {
	TotalEvents  int            `json:"totalEvents"`
	ByResult     map[string]int `json:"byResult"`
	ByActorType  map[string]int `json:"byActorType"`
	UniqueActors int            `json:"uniqueActors"`
}

// TrendPoint is one time bucket of event volume.
type TrendPoint struct {
	Bucket time.Time `json:"bucket"`
	Count  int       `json:"count"`
}

// Report is the rollup of one analytics window.
type Report struct {
	Period      audit.ReportPeriod   `json:"period"`
	Metrics     Metrics              `json:"metrics"`
	Hourly      []TrendPoint         `json:"hourly"`
	Daily       []TrendPoint         `json:"daily"`
	Anomalies   []audit.AnomalyScore `json:"anomalies"`
	Patterns    []Pattern            `json:"patterns"`
	GeneratedAt time.Time            `json:"generatedAt"`

	// Partial flags a rollup computed over a degraded store; the numbers
	// undercount. Rollups degrade where signed reports refuse.
	Partial bool `json:"partial,omitempty"`
}

// GenerateAnalytics aggregates [start, end): volume metrics, hourly and
// daily trends, per-event anomalies deduplicated by actor and reason set,
// and the window's sequence patterns.
func (a *Analyzer) GenerateAnalytics(ctx context.Context, start, end time.Time) (*Report, error) {
	report := &Report{
		Period: audit.ReportPeriod{Start: start.UTC(), End: end.UTC()},
		Metrics: Metrics{
			ByResult:    make(map[string]int),
			ByActorType: make(map[string]int),
		},
		GeneratedAt: a.clock().UTC(),
	}

	var events []audit.Event
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.store.Query(ctx, store.Filter{From: start, To: end, Limit: a.pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		events = append(events, res.Events...)
		if res.Partial {
			report.Partial = true
			break
		}
		if len(res.Events) < a.pageSize {
			break
		}
		offset += a.pageSize
	}

	actors := make(map[string]bool)
	hourly := make(map[time.Time]int)
	daily := make(map[time.Time]int)
	dedup := make(map[string]*audit.AnomalyScore)

	for i := range events {
		e := &events[i]
		report.Metrics.TotalEvents++
		report.Metrics.ByResult[string(e.Action.Result)]++
		report.Metrics.ByActorType[string(e.Actor.Type)]++
		actors[e.Actor.ID] = true
		hourly[e.Timestamp.UTC().Truncate(time.Hour)]++
		daily[e.Timestamp.UTC().Truncate(24*time.Hour)]++

		bl, err := a.baseline(ctx, e.Actor.ID, e.Timestamp)
		if err != nil {
			return nil, err
		}
		score := a.scoreEvent(e, bl)
		if score.Score == 0 {
			continue
		}
		// One anomaly per actor and reason set; keep the strongest.
		key := e.Actor.ID + "|" + strings.Join(score.Reasons, ",")
		if prev, ok := dedup[key]; !ok || score.Score > prev.Score {
			dedup[key] = score
		}
	}
	report.Metrics.UniqueActors = len(actors)
	report.Hourly = trendPoints(hourly)
	report.Daily = trendPoints(daily)

	for _, score := range dedup {
		report.Anomalies = append(report.Anomalies, *score)
	}
	sort.Slice(report.Anomalies, func(i, j int) bool {
		if report.Anomalies[i].Score != report.Anomalies[j].Score {
			return report.Anomalies[i].Score > report.Anomalies[j].Score
		}
		return report.Anomalies[i].EventID < report.Anomalies[j].EventID
	})

	report.Patterns = a.DetectPatterns(events)
	return report, nil
}

func trendPoints(buckets map[time.Time]int) []TrendPoint {
	points := make([]TrendPoint, 0, len(buckets))
	for bucket, count := range buckets {
		points = append(points, TrendPoint{Bucket: bucket, Count: count})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Bucket.Before(points[j].Bucket)
	})
	return points
}
