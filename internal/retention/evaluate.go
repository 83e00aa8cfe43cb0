// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// evaluate.go - Policy evaluation. Evaluation is a pure read: it scans
// tiers, picks the governing policy per event, and reports what a cycle
// would do. RunCycle consumes the same plan; EvaluatePolicy exposes a
// single-policy dry run.

package retention

import (
	"context"
	"fmt"
	"sort"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/store"
)

// ArchivalType names the lifecycle step an event is eligible for.
type ArchivalType string

const (
	ArchiveHotToWarm  ArchivalType = "hot_to_warm"
	ArchiveWarmToCold ArchivalType = "warm_to_cold"
	ArchiveDisposal   ArchivalType = "disposal_eligible"
)

// Evaluation lists the events one policy would move through one step.
type Evaluation struct {
	PolicyID   string       `json:"policyId"`
	PolicyName string       `json:"policyName"`
	Type       ArchivalType `json:"type"`
	EventIDs   []string     `json:"eventIds"`
}

// evalPlan is the full outcome of evaluating every enabled policy.
type evalPlan struct {
	evaluations []Evaluation
	hotToWarm   []string
	warmToCold  []string
	disposal    []string
	conflicts   []string
	scanned     int
	partial     []string // degraded-tier notes
}

// Evaluate dry-runs every enabled policy against the store at the
// engine's current clock and reports the moves a cycle would make,
// without changing anything.
func (en *Engine) Evaluate(ctx context.Context) ([]Evaluation, error) {
	policies, err := en.store.ListPolicies(ctx, true)
	if err != nil {
		return nil, err
	}
	plan, err := en.evaluate(ctx, policies)
	if err != nil {
		return nil, err
	}
	return plan.evaluations, nil
}

// EvaluatePolicy dry-runs one policy in isolation, ignoring the other
// policies' claims. The answer shows the policy's own reach; a real cycle
// may move fewer events once governance is applied.
func (en *Engine) EvaluatePolicy(ctx context.Context, id string) ([]Evaluation, error) {
	p, err := en.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := en.evaluate(ctx, []audit.RetentionPolicy{*p})
	if err != nil {
		return nil, err
	}
	return plan.evaluations, nil
}

// evaluate scans all three tiers and assigns each event to its governing
// policy's next lifecycle step.
func (en *Engine) evaluate(ctx context.Context, policies []audit.RetentionPolicy) (*evalPlan, error) {
	plan := &evalPlan{}
	if len(policies) == 0 {
		return plan, nil
	}
	now := en.clock().UTC()

	// keyed by policy id + type; flattened into plan.evaluations after.
	buckets := make(map[string]*Evaluation)
	bucket := func(p *audit.RetentionPolicy, t ArchivalType) *Evaluation {
		key := p.ID + "/" + string(t)
		ev, ok := buckets[key]
		if !ok {
			ev = &Evaluation{PolicyID: p.ID, PolicyName: p.Name, Type: t}
			buckets[key] = ev
		}
		return ev
	}

	for _, tier := range []store.Tier{store.TierHot, store.TierWarm, store.TierCold} {
		err := en.scanTier(ctx, tier, func(e *audit.Event) {
			plan.scanned++
			p, conflict := governingPolicy(policies, e)
			if conflict != nil {
				plan.conflicts = append(plan.conflicts, conflict.Error())
			}
			if p == nil {
				return
			}
			age := now.Sub(e.Timestamp)
			switch tier {
			case store.TierHot:
				if age > p.HotAge() {
					ev := bucket(p, ArchiveHotToWarm)
					ev.EventIDs = append(ev.EventIDs, e.ID)
					plan.hotToWarm = append(plan.hotToWarm, e.ID)
				}
			case store.TierWarm:
				if age > p.WarmAge() {
					ev := bucket(p, ArchiveWarmToCold)
					ev.EventIDs = append(ev.EventIDs, e.ID)
					plan.warmToCold = append(plan.warmToCold, e.ID)
				}
			case store.TierCold:
				if age > p.ColdAge() {
					ev := bucket(p, ArchiveDisposal)
					ev.EventIDs = append(ev.EventIDs, e.ID)
					plan.disposal = append(plan.disposal, e.ID)
				}
			}
		})
		if err != nil {
			// A degraded archival tier shrinks this cycle instead of
			// failing it; the next cycle picks up what was unreadable.
			if audit.IsStorageUnavailable(err) {
				plan.partial = append(plan.partial,
					fmt.Sprintf("tier %s partially scanned: %v", tier, err))
				continue
			}
			return nil, err
		}
	}

	for _, ev := range buckets {
		plan.evaluations = append(plan.evaluations, *ev)
	}
	sort.Slice(plan.evaluations, func(i, j int) bool {
		a, b := plan.evaluations[i], plan.evaluations[j]
		if a.PolicyName != b.PolicyName {
			return a.PolicyName < b.PolicyName
		}
		return a.Type < b.Type
	})
	return plan, nil
}

// scanTier pages through one tier in timestamp order, visiting every
// event that could be read. A partial read returns the tier's error
// after the readable events have been visited.
func (en *Engine) scanTier(ctx context.Context, tier store.Tier, visit func(e *audit.Event)) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := en.store.Query(ctx, store.Filter{Tier: tier, Limit: en.pageSize, Offset: offset})
		if err != nil {
			return err
		}
		for i := range res.Events {
			visit(&res.Events[i])
		}
		if res.Partial {
			// The tier cannot be fully read this cycle; evaluate what we
			// saw and let the next cycle catch up.
			return res.Err
		}
		if len(res.Events) < en.pageSize {
			return nil
		}
		offset += en.pageSize
	}
}

// governingPolicy picks the policy that owns an event. Longer total
// retention always wins, whatever the specificity: disposal must never
// arrive earlier than any enabled matching policy allows. Specificity
// and then name only break exact-duration ties. Any matched policy that
// disagrees with the winner's durations is a conflict; the winner is
// applied and the disagreement is reported.
func governingPolicy(policies []audit.RetentionPolicy, e *audit.Event) (*audit.RetentionPolicy, *audit.PolicyConflictError) {
	var matched []*audit.RetentionPolicy
	for i := range policies {
		if policies[i].Criteria.Matches(e) {
			matched = append(matched, &policies[i])
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := matched[i].TotalRetention(), matched[j].TotalRetention()
		if ri != rj {
			return ri > rj
		}
		si, sj := matched[i].Criteria.Specificity(), matched[j].Criteria.Specificity()
		if si != sj {
			return si > sj
		}
		return matched[i].Name < matched[j].Name
	})

	winner := matched[0]
	var conflict *audit.PolicyConflictError
	var rivals []string
	for _, p := range matched[1:] {
		if !sameDurations(p, winner) {
			rivals = append(rivals, p.ID)
		}
	}
	if len(rivals) > 0 {
		conflict = &audit.PolicyConflictError{
			EventID:   e.ID,
			PolicyIDs: append([]string{winner.ID}, rivals...),
		}
	}
	return winner, conflict
}

func sameDurations(a, b *audit.RetentionPolicy) bool {
	return a.HotStorageDays == b.HotStorageDays &&
		a.WarmStorageDays == b.WarmStorageDays &&
		a.ColdStorageYears == b.ColdStorageYears
}
