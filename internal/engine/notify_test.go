// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/auditcore/internal/audit"
)

func testNotification(msg string) Notification {
	return Notification{
		Kind:     KindIntegrityViolation,
		Severity: audit.SeverityCritical,
		Message:  msg,
		At:       time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestJSONLNotifierAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "alerts.jsonl")
	n := NewJSONLNotifier(path)

	n.Notify(testNotification("first"))
	n.Notify(testNotification("second"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var notes []Notification
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var note Notification
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &note))
		notes = append(notes, note)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, notes, 2)
	require.Equal(t, "first", notes[0].Message)
	require.Equal(t, KindIntegrityViolation, notes[1].Kind)
}

func TestChannelNotifierDropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(1)
	n.Notify(testNotification("kept"))
	n.Notify(testNotification("dropped"))

	require.Len(t, n.C, 1)
	require.Equal(t, "kept", (<-n.C).Message)
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := NewChannelNotifier(1)
	b := NewChannelNotifier(1)
	MultiNotifier{a, b}.Notify(testNotification("both"))

	require.Len(t, a.C, 1)
	require.Len(t, b.C, 1)
}
