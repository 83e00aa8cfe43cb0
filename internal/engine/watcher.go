// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watcher.go - Archive tamper watch. Watches the warm and cold blob
// directories for out-of-band filesystem changes and triggers an archive
// verification pass when the directories settle. The watcher never trusts
// a raw fsnotify event on its own: the engine's own migrations touch
// these directories too, so every trigger runs a full catalog
// reconciliation and only manifest mismatches or failed verifications
// become findings.

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the archive directories must stay quiet
// before a rescan runs.
const DefaultDebounce = 2 * time.Second

// ArchiveWatcher drives archive verification off filesystem events.
type ArchiveWatcher struct {
	engine   *Engine
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending time.Time // Last time a watched directory changed

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewArchiveWatcher returns a watcher over the engine's warm and cold
// directories.
func NewArchiveWatcher(e *Engine, debounce time.Duration) (*ArchiveWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ArchiveWatcher{
		engine:   e,
		watcher:  watcher,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Watch starts watching. The directories must exist; the store creates
// them at open.
func (w *ArchiveWatcher) Watch() error {
	for _, dir := range []string{w.engine.store.WarmDir(), w.engine.store.ColdDir()} {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.started = true
	go w.processEvents()
	go w.processPending()
	return nil
}

// Close stops watching and releases the fsnotify handle.
func (w *ArchiveWatcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

// Rescan runs one archive verification pass immediately. Findings go
// through the engine's notifier and into the audit trail.
func (w *ArchiveWatcher) Rescan(ctx context.Context) ([]error, error) {
	return w.engine.VerifyArchives(ctx)
}

// processEvents marks the watch dirty on any event touching the archive
// directories. Write, create, remove, rename, and chmod all count: every
// one of them can be tampering.
func (w *ArchiveWatcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// processPending waits for the directories to settle, then rescans.
func (w *ArchiveWatcher) processPending() {
	defer close(w.done)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if due {
				w.Rescan(w.ctx)
			}
		}
	}
}
