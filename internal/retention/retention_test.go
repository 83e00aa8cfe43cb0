// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/signer"
	"github.com/jeranaias/auditcore/internal/store"
)

var testBase = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock; tests age events by moving it, never by
// sleeping.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	ring := signer.NewKeyring()
	if err := ring.Rotate("k1", testKey(0x11)); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	return signer.New(ring)
}

// newTestEngine wires an engine over a fresh store with the clock parked
// at testBase.
func newTestEngine(t *testing.T) (*Engine, *store.Store, *signer.Signer, *testClock) {
	t.Helper()
	s := newTestSigner(t)
	dir := t.TempDir()
	st, err := store.Open(store.Options{
		DBPath:  filepath.Join(dir, "audit.db"),
		WarmDir: filepath.Join(dir, "warm"),
		ColdDir: filepath.Join(dir, "cold"),
		Sealer:  s,
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := &testClock{now: testBase}
	en, err := New(Options{Store: st, Holder: "test-engine", Clock: clk.Now})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return en, st, s, clk
}

// signedEventAt builds a signed event on the given resource at the given
// timestamp.
func signedEventAt(t *testing.T, s *signer.Signer, resource string, ts time.Time) audit.Event {
	t.Helper()
	e := audit.Event{
		ID:        audit.NewEventID(),
		Timestamp: ts,
		Actor:     audit.Actor{ID: "user-1842", Type: audit.ActorUser, IP: "203.0.113.7"},
		Action: audit.Action{
			Type:     "document.read",
			Resource: resource,
			Result:   audit.ResultSuccess,
		},
		Context:       audit.Context{Environment: "production", Application: "billing-api"},
		SchemaVersion: audit.SchemaVersion,
	}
	signed, err := s.Sign(&e)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return signed
}

func mustPut(t *testing.T, st *store.Store, e *audit.Event) {
	t.Helper()
	if err := st.Put(context.Background(), e); err != nil {
		t.Fatalf("Put(%s) error = %v", e.ID, err)
	}
}

// savePolicy persists a policy through the engine and returns the stored
// copy.
func savePolicy(t *testing.T, en *Engine, p audit.RetentionPolicy) *audit.RetentionPolicy {
	t.Helper()
	created, err := en.CreatePolicy(context.Background(), &p)
	if err != nil {
		t.Fatalf("CreatePolicy(%s) error = %v", p.Name, err)
	}
	return created
}
