// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// engine.go - The retention engine and its cycle runner.

package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/auditcore/internal/store"
)

const (
	// DefaultLeaseTTL bounds how long a crashed holder blocks cycles.
	DefaultLeaseTTL = 15 * time.Minute

	// DefaultPageSize is the tier scan page size.
	DefaultPageSize = 1000
)

// ErrCycleRunning is returned when a cycle is already in flight, here or
// in another process holding the lease.
var ErrCycleRunning = errors.New("a retention cycle is already running")

// Engine evaluates retention policies and runs lifecycle cycles against
// one store.
type Engine struct {
	store    *store.Store
	clock    func() time.Time
	holder   string
	leaseTTL time.Duration
	pageSize int

	running atomic.Bool
}

// Options configures New. Zero values get defaults.
type Options struct {
	Store *store.Store

	// Holder identifies this process in the cycle lease. Defaults to
	// hostname plus a random suffix.
	Holder string

	LeaseTTL time.Duration
	PageSize int

	// Clock supplies "now" for age computation and bookkeeping. Tests
	// inject a fixed clock to age events without sleeping.
	Clock func() time.Time
}

// New returns a retention engine over the store.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("retention engine requires a store")
	}
	holder := opts.Holder
	if holder == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "auditcore"
		}
		holder = host + "-" + uuid.NewString()[:8]
	}
	ttl := opts.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:    opts.Store,
		clock:    clock,
		holder:   holder,
		leaseTTL: ttl,
		pageSize: pageSize,
	}, nil
}

// Holder returns the engine's lease identity.
func (en *Engine) Holder() string { return en.holder }

// CycleReport summarizes one retention cycle.
type CycleReport struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Scanned        int       `json:"scanned"`
	MovedToWarm    int       `json:"movedToWarm"`
	MovedToCold    int       `json:"movedToCold"`
	MarkedDisposal int64     `json:"markedDisposal"`
	SkippedMoves   int       `json:"skippedMoves"`

	// Conflicts are policy disagreements resolved in favor of longer
	// retention, carried for observability.
	Conflicts []string `json:"conflicts,omitempty"`

	// Partial notes tiers that could not be fully scanned this cycle.
	Partial []string `json:"partial,omitempty"`
}

// RunCycle evaluates every enabled policy and applies the moves: hot to
// warm, warm to cold, and disposal flagging. At most one cycle runs at a
// time per store; concurrent calls fail fast with ErrCycleRunning.
func (en *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !en.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer en.running.Store(false)

	ok, err := en.store.AcquireLease(ctx, en.holder, en.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire retention lease: %w", err)
	}
	if !ok {
		return nil, ErrCycleRunning
	}
	defer en.store.ReleaseLease(context.WithoutCancel(ctx), en.holder)

	report := &CycleReport{StartedAt: en.clock().UTC()}

	policies, err := en.store.ListPolicies(ctx, true)
	if err != nil {
		return nil, err
	}
	plan, err := en.evaluate(ctx, policies)
	if err != nil {
		return nil, err
	}
	report.Scanned = plan.scanned
	report.Conflicts = plan.conflicts
	report.Partial = plan.partial

	if len(plan.hotToWarm) > 0 {
		res, err := en.store.Migrate(ctx, plan.hotToWarm, store.TierHot, store.TierWarm)
		if err != nil {
			return nil, fmt.Errorf("hot to warm migration failed: %w", err)
		}
		report.MovedToWarm = res.Moved
		report.SkippedMoves += res.Skipped
	}
	if len(plan.warmToCold) > 0 {
		res, err := en.store.Migrate(ctx, plan.warmToCold, store.TierWarm, store.TierCold)
		if err != nil {
			return nil, fmt.Errorf("warm to cold migration failed: %w", err)
		}
		report.MovedToCold = res.Moved
		report.SkippedMoves += res.Skipped
	}
	if len(plan.disposal) > 0 {
		n, err := en.store.MarkDisposalEligible(ctx, plan.disposal)
		if err != nil {
			return nil, fmt.Errorf("disposal flagging failed: %w", err)
		}
		report.MarkedDisposal = n
	}

	report.FinishedAt = en.clock().UTC()
	return report, nil
}

// PurgeDisposed permanently removes every disposal-eligible event. The
// confirm string must equal store.PurgeConfirmToken; this is the only
// deletion path in the system.
func (en *Engine) PurgeDisposed(ctx context.Context, confirm string) (*store.PurgeResult, error) {
	return en.store.PurgeDisposal(ctx, confirm)
}
