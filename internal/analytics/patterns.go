// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// patterns.go - Sequence-level detection. These signals live between
// events: no single event in a brute-force run looks alarming, the run
// does.

package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// PatternKind names a sequence-level signal.
type PatternKind string

const (
	// PatternRapidFailures is a burst of failed or denied actions by one
	// actor inside a short window.
	PatternRapidFailures PatternKind = "rapid_failures"

	// PatternPrivilegeProbing is a streak of denied privileged actions
	// by one actor.
	PatternPrivilegeProbing PatternKind = "privilege_probing"

	// PatternVolumeBurst is a per-minute event spike against the window
	// mean, actor-independent.
	PatternVolumeBurst PatternKind = "volume_burst"
)

// Pattern is one detected sequence-level signal, traceable to the events
// behind it.
type Pattern struct {
	Kind        PatternKind    `json:"kind"`
	ActorID     string         `json:"actorId,omitempty"`
	Severity    audit.Severity `json:"severity"`
	Description string         `json:"description"`
	EventIDs    []string       `json:"eventIds"`
	WindowStart time.Time      `json:"windowStart"`
	WindowEnd   time.Time      `json:"windowEnd"`
}

// PatternOptions tune sequence detection. Zero values get defaults.
type PatternOptions struct {
	// FailureThreshold failures within FailureWindow by one actor is a
	// rapid-failures pattern.
	FailureThreshold int           `toml:"failure_threshold"`
	FailureWindow    time.Duration `toml:"failure_window"`

	// ProbeThreshold consecutive denied privileged actions by one actor
	// is a privilege-probing pattern.
	ProbeThreshold int `toml:"probe_threshold"`

	// A minute holding at least BurstFactor times the window's per-minute
	// mean, and at least BurstMinEvents, is a volume burst.
	BurstFactor    float64 `toml:"burst_factor"`
	BurstMinEvents int     `toml:"burst_min_events"`
}

const (
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 2 * time.Minute
	DefaultProbeThreshold   = 3
	DefaultBurstFactor      = 3.0
	DefaultBurstMinEvents   = 20
)

type patternConfig struct {
	failureThreshold int
	failureWindow    time.Duration
	probeThreshold   int
	burstFactor      float64
	burstMinEvents   int
}

func (o PatternOptions) withDefaults() patternConfig {
	cfg := patternConfig{
		failureThreshold: o.FailureThreshold,
		failureWindow:    o.FailureWindow,
		probeThreshold:   o.ProbeThreshold,
		burstFactor:      o.BurstFactor,
		burstMinEvents:   o.BurstMinEvents,
	}
	if cfg.failureThreshold <= 0 {
		cfg.failureThreshold = DefaultFailureThreshold
	}
	if cfg.failureWindow <= 0 {
		cfg.failureWindow = DefaultFailureWindow
	}
	if cfg.probeThreshold <= 0 {
		cfg.probeThreshold = DefaultProbeThreshold
	}
	if cfg.burstFactor <= 0 {
		cfg.burstFactor = DefaultBurstFactor
	}
	if cfg.burstMinEvents <= 0 {
		cfg.burstMinEvents = DefaultBurstMinEvents
	}
	return cfg
}

// DetectPatterns scans an event sequence for the signals above. Pure over
// its input: the store is never consulted and the input is not mutated.
func (a *Analyzer) DetectPatterns(events []audit.Event) []Pattern {
	if len(events) == 0 {
		return nil
	}
	ordered := make([]*audit.Event, len(events))
	for i := range events {
		ordered[i] = &events[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var out []Pattern
	out = append(out, a.rapidFailures(ordered)...)
	out = append(out, a.privilegeProbing(ordered)...)
	out = append(out, a.volumeBursts(ordered)...)
	return out
}

// rapidFailures finds, per actor, runs of failures dense enough that some
// window of failureWindow holds failureThreshold of them. Consecutive
// qualifying windows merge into one pattern.
func (a *Analyzer) rapidFailures(ordered []*audit.Event) []Pattern {
	byActor := make(map[string][]*audit.Event)
	var actors []string
	for _, e := range ordered {
		if e.Action.Result == audit.ResultSuccess {
			continue
		}
		if _, ok := byActor[e.Actor.ID]; !ok {
			actors = append(actors, e.Actor.ID)
		}
		byActor[e.Actor.ID] = append(byActor[e.Actor.ID], e)
	}

	var out []Pattern
	for _, actor := range actors {
		failures := byActor[actor]
		n := len(failures)
		w := 0
		run := -1 // start index of the current qualifying run
		for i := 0; i < n; i++ {
			for failures[i].Timestamp.Sub(failures[w].Timestamp) > a.patterns.failureWindow {
				w++
			}
			if i-w+1 >= a.patterns.failureThreshold && run < 0 {
				run = w
			}
			// A gap wider than the window ends the run.
			if run >= 0 && i+1 < n &&
				failures[i+1].Timestamp.Sub(failures[i].Timestamp) > a.patterns.failureWindow {
				out = append(out, a.failurePattern(actor, failures[run:i+1]))
				run = -1
				w = i + 1
			}
		}
		if run >= 0 {
			out = append(out, a.failurePattern(actor, failures[run:]))
		}
	}
	return out
}

func (a *Analyzer) failurePattern(actor string, run []*audit.Event) Pattern {
	return Pattern{
		Kind:     PatternRapidFailures,
		ActorID:  actor,
		Severity: audit.SeverityHigh,
		Description: fmt.Sprintf("%d failed actions by %s within %s",
			len(run), actor, a.patterns.failureWindow),
		EventIDs:    eventIDs(run),
		WindowStart: run[0].Timestamp,
		WindowEnd:   run[len(run)-1].Timestamp,
	}
}

// privilegeProbing finds, per actor, streaks of denied privileged actions.
// A privileged action with any other outcome breaks the streak; unrelated
// events in between do not.
func (a *Analyzer) privilegeProbing(ordered []*audit.Event) []Pattern {
	streaks := make(map[string][]*audit.Event)
	var out []Pattern

	flush := func(actor string) {
		run := streaks[actor]
		if len(run) >= a.patterns.probeThreshold {
			out = append(out, Pattern{
				Kind:     PatternPrivilegeProbing,
				ActorID:  actor,
				Severity: audit.SeverityCritical,
				Description: fmt.Sprintf("%d consecutive denied privileged actions by %s",
					len(run), actor),
				EventIDs:    eventIDs(run),
				WindowStart: run[0].Timestamp,
				WindowEnd:   run[len(run)-1].Timestamp,
			})
		}
		delete(streaks, actor)
	}

	for _, e := range ordered {
		if !a.isPrivileged(e.Action.Type) {
			continue
		}
		if e.Action.Result == audit.ResultDenied {
			streaks[e.Actor.ID] = append(streaks[e.Actor.ID], e)
			continue
		}
		flush(e.Actor.ID)
	}
	// Flush in input order so output stays deterministic.
	seen := make(map[string]bool)
	for _, e := range ordered {
		if !seen[e.Actor.ID] {
			seen[e.Actor.ID] = true
			flush(e.Actor.ID)
		}
	}
	return out
}

// volumeBursts buckets the window per minute and flags minutes holding at
// least burstFactor times the mean, with adjacent spiking minutes merged.
func (a *Analyzer) volumeBursts(ordered []*audit.Event) []Pattern {
	first := ordered[0].Timestamp.Truncate(time.Minute)
	last := ordered[len(ordered)-1].Timestamp.Truncate(time.Minute)
	minutes := int(last.Sub(first)/time.Minute) + 1

	buckets := make(map[int][]*audit.Event)
	for _, e := range ordered {
		idx := int(e.Timestamp.Truncate(time.Minute).Sub(first) / time.Minute)
		buckets[idx] = append(buckets[idx], e)
	}
	mean := float64(len(ordered)) / float64(minutes)
	spiking := func(idx int) bool {
		n := len(buckets[idx])
		return n >= a.patterns.burstMinEvents && float64(n) >= a.patterns.burstFactor*mean
	}

	var out []Pattern
	for idx := 0; idx < minutes; idx++ {
		if !spiking(idx) {
			continue
		}
		runStart := idx
		var run []*audit.Event
		for idx < minutes && spiking(idx) {
			run = append(run, buckets[idx]...)
			idx++
		}
		out = append(out, Pattern{
			Kind:     PatternVolumeBurst,
			Severity: audit.SeverityMedium,
			Description: fmt.Sprintf("%d events in %d minute(s) against a %.1f/minute mean",
				len(run), idx-runStart, mean),
			EventIDs:    eventIDs(run),
			WindowStart: first.Add(time.Duration(runStart) * time.Minute),
			WindowEnd:   first.Add(time.Duration(idx) * time.Minute),
		})
	}
	return out
}

func eventIDs(events []*audit.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
