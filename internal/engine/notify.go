// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// notify.go - Outbound notifications. Integrity violations and critical
// anomaly alerts fan out through a Notifier; the engine never swallows
// either silently.

package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// =============================================================================
// NOTIFICATION
// =============================================================================

// NotificationKind classifies what triggered a notification.
type NotificationKind string

const (
	// KindIntegrityViolation: a verification pass caught tampering,
	// corruption, or an out-of-band archive change.
	KindIntegrityViolation NotificationKind = "integrity_violation"
	// KindAnomalyAlert: an anomaly score crossed the critical threshold.
	KindAnomalyAlert NotificationKind = "anomaly_alert"
	// KindRetentionPartial: a retention cycle finished with skipped moves
	// or verification failures.
	KindRetentionPartial NotificationKind = "retention_partial"
	// KindExportFailure: an export sink refused delivery of durably
	// stored events. Delivery is at-least-once and catches up later.
	KindExportFailure NotificationKind = "export_failure"
)

// Notification is one outbound security notification.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	Severity audit.Severity   `json:"severity"`
	Message  string           `json:"message"`
	EventIDs []string         `json:"eventIds,omitempty"`
	AlertID  string           `json:"alertId,omitempty"`
	At       time.Time        `json:"at"`
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use; delivery failures are the implementation's concern and
// never block the audit path.
type Notifier interface {
	Notify(n Notification)
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// StderrNotifier writes one line per notification to stderr.
type StderrNotifier struct {
	mu sync.Mutex
}

func (n *StderrNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[%s] %s %s: %s\n",
		note.At.UTC().Format(time.RFC3339), note.Severity, note.Kind, note.Message)
}

// JSONLNotifier appends notifications as JSON lines to a file. A write
// failure is reported to stderr and the notification dropped; the audit
// path never blocks on the notification sink.
type JSONLNotifier struct {
	mu   sync.Mutex
	path string
}

// NewJSONLNotifier returns a notifier appending to path. The parent
// directory is created on first delivery.
func NewJSONLNotifier(path string) *JSONLNotifier {
	return &JSONLNotifier{path: path}
}

func (n *JSONLNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := appendJSONLine(n.path, note); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] notification dropped: %v\n", err)
	}
}

// ChannelNotifier delivers notifications to a channel. Used by tests and
// embedders that route notifications themselves; a full channel drops the
// notification rather than blocking the audit path.
type ChannelNotifier struct {
	C chan Notification
}

// NewChannelNotifier returns a notifier over a buffered channel.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{C: make(chan Notification, buffer)}
}

func (n *ChannelNotifier) Notify(note Notification) {
	select {
	case n.C <- note:
	default:
	}
}

// MultiNotifier fans one notification out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(note Notification) {
	for _, n := range m {
		n.Notify(note)
	}
}

// =============================================================================
// APPEND HELPER
// =============================================================================

// appendJSONLine appends v as one JSON line to path, creating the parent
// directory (0700) and the file (0600) as needed. The write is fsynced so
// a crash immediately after cannot lose the line.
func appendJSONLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode line: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return nil
}
