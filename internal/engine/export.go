// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - Outbound SIEM event stream. Delivery is at-least-once:
// an event may be exported again after a retry or a crash, and consumers
// deduplicate by event id. The exporter never loses an accepted event
// silently; when the sink stays unreachable past the buffer limit the
// oldest buffered events are dropped and the drop is counted and surfaced.

package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// Exporter streams signed events to an external consumer.
type Exporter interface {
	// Export delivers one signed event. Implementations buffer and retry
	// internally; an error means the event could not even be buffered.
	Export(e *audit.Event) error
	Close() error
}

// =============================================================================
// JSONL EXPORTER
// =============================================================================

// ErrExporterClosed is returned by Export after Close.
var ErrExporterClosed = errors.New("exporter is closed")

// JSONLExporter appends events as JSON lines to a file, the common SIEM
// ingestion format. Failed appends are retried with exponential backoff;
// events that still cannot be delivered are held in a bounded buffer and
// flushed ahead of the next successful delivery.
type JSONLExporter struct {
	mu        sync.Mutex
	path      string
	retryMax  int
	retryBase time.Duration
	limit     int

	pending []json.RawMessage
	dropped int64
	closed  bool

	// sleep is swapped by tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// JSONLExporterOptions tunes the exporter. Zero values fall back to
// 5 attempts, 100ms base backoff, and a 10000-event buffer.
type JSONLExporterOptions struct {
	RetryMax    int
	RetryBase   time.Duration
	BufferLimit int
}

// NewJSONLExporter returns an exporter appending to path.
func NewJSONLExporter(path string, opts JSONLExporterOptions) *JSONLExporter {
	if opts.RetryMax <= 0 {
		opts.RetryMax = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	if opts.BufferLimit <= 0 {
		opts.BufferLimit = 10000
	}
	return &JSONLExporter{
		path:      path,
		retryMax:  opts.RetryMax,
		retryBase: opts.RetryBase,
		limit:     opts.BufferLimit,
		sleep:     time.Sleep,
	}
}

// Export delivers the event, flushing any backlog first so the stream
// stays in submission order.
func (x *JSONLExporter) Export(e *audit.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrExporterClosed
	}

	x.pending = append(x.pending, data)
	if over := len(x.pending) - x.limit; over > 0 {
		x.pending = x.pending[over:]
		x.dropped += int64(over)
	}
	x.flushLocked()
	return nil
}

// Flush retries delivery of the backlog immediately.
func (x *JSONLExporter) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrExporterClosed
	}
	x.flushLocked()
	if n := len(x.pending); n > 0 {
		return fmt.Errorf("%d events remain undelivered", n)
	}
	return nil
}

// Pending reports how many events await delivery.
func (x *JSONLExporter) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.pending)
}

// Dropped reports how many events were evicted from a full buffer.
func (x *JSONLExporter) Dropped() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.dropped
}

// Close attempts a final flush and marks the exporter closed.
func (x *JSONLExporter) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.flushLocked()
	x.closed = true
	if n := len(x.pending); n > 0 {
		return fmt.Errorf("exporter closed with %d undelivered events", n)
	}
	return nil
}

// flushLocked delivers as much of the backlog as the sink accepts, in
// order, stopping at the first line that exhausts its retries.
func (x *JSONLExporter) flushLocked() {
	for len(x.pending) > 0 {
		if err := x.appendWithRetry(x.pending[0]); err != nil {
			return
		}
		x.pending = x.pending[1:]
	}
	x.pending = nil
}

func (x *JSONLExporter) appendWithRetry(line json.RawMessage) error {
	var err error
	for attempt := 1; attempt <= x.retryMax; attempt++ {
		if err = appendRawLine(x.path, line); err == nil {
			return nil
		}
		if attempt < x.retryMax {
			x.sleep(x.retryBase * (1 << (attempt - 1)))
		}
	}
	return err
}

// appendRawLine appends one pre-encoded JSON line, fsynced.
func appendRawLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// TEST AND EMBEDDER SINKS
// =============================================================================

// NopExporter discards every event.
type NopExporter struct{}

func (NopExporter) Export(*audit.Event) error { return nil }
func (NopExporter) Close() error              { return nil }

// ChannelExporter delivers events to a channel; a full channel is an
// error so tests see backpressure instead of silent loss.
type ChannelExporter struct {
	C chan audit.Event
}

// NewChannelExporter returns an exporter over a buffered channel.
func NewChannelExporter(buffer int) *ChannelExporter {
	return &ChannelExporter{C: make(chan audit.Event, buffer)}
}

func (x *ChannelExporter) Export(e *audit.Event) error {
	select {
	case x.C <- e.Clone():
		return nil
	default:
		return errors.New("export channel is full")
	}
}

func (x *ChannelExporter) Close() error {
	return nil
}
