// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/auditcore/internal/store"
)

func TestWatcherRescanFindsStrayBlob(t *testing.T) {
	e, notifier := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	w, err := NewArchiveWatcher(e, 0)
	require.NoError(t, err)
	defer w.Close()

	stray := filepath.Join(e.store.WarmDir(), "planted.blob")
	require.NoError(t, os.WriteFile(stray, []byte(`{}`), 0600))

	findings, err := w.Rescan(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	note := <-notifier.C
	require.Equal(t, KindIntegrityViolation, note.Kind)
}

func TestWatcherTriggersOnOutOfBandChange(t *testing.T) {
	e, notifier := newTestEngine(t, testConfig(t))

	w, err := NewArchiveWatcher(e, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	stray := filepath.Join(e.store.ColdDir(), "planted.blob")
	require.NoError(t, os.WriteFile(stray, []byte(`{}`), 0600))

	select {
	case note := <-notifier.C:
		require.Equal(t, KindIntegrityViolation, note.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the out-of-band change")
	}
}

func TestWatcherQuietForEngineMigrations(t *testing.T) {
	e, notifier := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	w, err := NewArchiveWatcher(e, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		signed, err := e.Submit(ctx, testEvent("user-1"))
		require.NoError(t, err)
		ids = append(ids, signed.ID)
	}
	_, err = e.Migrate(ctx, ids, store.TierHot, store.TierWarm)
	require.NoError(t, err)

	// The migration writes blobs and triggers a rescan, but the rescan
	// reconciles against the catalog and finds nothing wrong.
	select {
	case note := <-notifier.C:
		t.Fatalf("unexpected notification: %+v", note)
	case <-time.After(500 * time.Millisecond):
	}
}
