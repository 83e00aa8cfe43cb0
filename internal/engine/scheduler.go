// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// scheduler.go - Periodic background work: retention cycles and analytics
// rollups at their configured intervals. An interval of zero disables
// that job; external triggers keep working either way.

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/retention"
)

// Scheduler drives the engine's periodic jobs.
type Scheduler struct {
	engine *Engine

	retentionEvery time.Duration
	rollupEvery    time.Duration

	wg      sync.WaitGroup
	stop    chan struct{}
	stopped atomic.Bool
}

// NewScheduler builds a scheduler from the engine's configuration.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{
		engine:         e,
		retentionEvery: time.Duration(e.cfg.Retention.CycleIntervalMinutes) * time.Minute,
		rollupEvery:    time.Duration(e.cfg.Analytics.RollupIntervalMinutes) * time.Minute,
		stop:           make(chan struct{}),
	}
}

// Start launches the enabled jobs. Safe to call with both intervals
// disabled; Stop still works.
func (s *Scheduler) Start() {
	if s.retentionEvery > 0 {
		s.wg.Add(1)
		go s.loop(s.retentionEvery, s.runRetention)
	}
	if s.rollupEvery > 0 {
		s.wg.Add(1)
		go s.loop(s.rollupEvery, s.runRollup)
	}
}

// Stop halts the jobs and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(every time.Duration, run func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.stopped.Load() {
				return
			}
			run(context.Background())
		}
	}
}

// runRetention triggers a retention cycle. Another holder already running
// a cycle is not an error worth reporting; anything else surfaces through
// the notifier inside TriggerRetention or is dropped here as transient.
func (s *Scheduler) runRetention(ctx context.Context) {
	_, err := s.engine.TriggerRetention(ctx)
	if err != nil && !errors.Is(err, retention.ErrCycleRunning) {
		s.engine.notifier.Notify(Notification{
			Kind:     KindRetentionPartial,
			Severity: audit.SeverityMedium,
			Message:  "scheduled retention cycle failed: " + err.Error(),
			At:       s.engine.clock().UTC(),
		})
	}
}

// runRollup aggregates the last rollup window.
func (s *Scheduler) runRollup(ctx context.Context) {
	end := s.engine.clock().UTC()
	start := end.Add(-s.rollupEvery)
	s.engine.Analytics(ctx, start, end)
}
