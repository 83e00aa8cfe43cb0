// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/store"
)

func TestCreatePolicyAssignsIdentity(t *testing.T) {
	en, _, _, clk := newTestEngine(t)
	ctx := context.Background()

	created := savePolicy(t, en, audit.RetentionPolicy{
		Name:           "standard-docs",
		Criteria:       audit.PolicyCriteria{ResourceTypes: []string{"documents"}},
		HotStorageDays: 30, WarmStorageDays: 335, ColdStorageYears: 6,
		Enabled: true,
		// Caller-supplied identity must be overwritten.
		ID: "caller-chosen", Version: 99,
	})
	if created.ID == "" || created.ID == "caller-chosen" {
		t.Errorf("CreatePolicy() ID = %q, want generated", created.ID)
	}
	if created.Version != 1 {
		t.Errorf("CreatePolicy() Version = %d, want 1", created.Version)
	}
	if !created.CreatedAt.Equal(clk.now) || !created.UpdatedAt.Equal(clk.now) {
		t.Errorf("CreatePolicy() timestamps = %v/%v, want %v", created.CreatedAt, created.UpdatedAt, clk.now)
	}

	got, err := en.GetPolicy(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if got.Name != "standard-docs" || !got.Enabled {
		t.Errorf("GetPolicy() = %+v, want persisted fields back", got)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	en, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		policy audit.RetentionPolicy
	}{
		{"empty name", audit.RetentionPolicy{HotStorageDays: 30}},
		{"negative duration", audit.RetentionPolicy{Name: "p", HotStorageDays: -1}},
		{"zero retention", audit.RetentionPolicy{Name: "p"}},
		{"bad actor type", audit.RetentionPolicy{
			Name: "p", HotStorageDays: 30,
			Criteria: audit.PolicyCriteria{ActorTypes: []string{"robot"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := en.CreatePolicy(ctx, &tt.policy); !audit.IsValidationError(err) {
				t.Errorf("CreatePolicy() error = %v, want validation error", err)
			}
		})
	}
}

func TestUpdatePolicyBumpsVersion(t *testing.T) {
	en, _, _, clk := newTestEngine(t)
	ctx := context.Background()

	created := savePolicy(t, en, audit.RetentionPolicy{
		Name: "standard-docs", HotStorageDays: 30, WarmStorageDays: 335, ColdStorageYears: 6,
		Enabled: true,
	})

	clk.now = clk.now.Add(time.Hour)
	created.HotStorageDays = 60
	updated, err := en.UpdatePolicy(ctx, created)
	if err != nil {
		t.Fatalf("UpdatePolicy() error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", updated.CreatedAt, created.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(clk.now) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, clk.now)
	}
	if updated.HotStorageDays != 60 {
		t.Errorf("HotStorageDays = %d, want 60", updated.HotStorageDays)
	}
}

func TestUpdatePolicyUnknownID(t *testing.T) {
	en, _, _, _ := newTestEngine(t)

	p := audit.RetentionPolicy{ID: "no-such-policy", Name: "ghost", HotStorageDays: 30}
	if _, err := en.UpdatePolicy(context.Background(), &p); !errors.Is(err, store.ErrPolicyNotFound) {
		t.Errorf("UpdatePolicy() error = %v, want ErrPolicyNotFound", err)
	}
}

func TestSetPolicyEnabled(t *testing.T) {
	en, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	created := savePolicy(t, en, audit.RetentionPolicy{
		Name: "standard-docs", HotStorageDays: 30, Enabled: true,
	})

	disabled, err := en.SetPolicyEnabled(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("SetPolicyEnabled(false) error = %v", err)
	}
	if disabled.Enabled || disabled.Version != 2 {
		t.Errorf("disable: Enabled = %v, Version = %d, want false, 2", disabled.Enabled, disabled.Version)
	}

	// Disabling twice is a no-op, not another version.
	again, err := en.SetPolicyEnabled(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("SetPolicyEnabled(false) again error = %v", err)
	}
	if again.Version != 2 {
		t.Errorf("repeat disable bumped version to %d", again.Version)
	}

	listed, err := en.ListPolicies(ctx, true)
	if err != nil {
		t.Fatalf("ListPolicies(enabled) error = %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("ListPolicies(enabled) = %d policies, want 0", len(listed))
	}
}

func TestDeletePolicy(t *testing.T) {
	en, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	created := savePolicy(t, en, audit.RetentionPolicy{
		Name: "standard-docs", HotStorageDays: 30, Enabled: true,
	})
	if err := en.DeletePolicy(ctx, created.ID); err != nil {
		t.Fatalf("DeletePolicy() error = %v", err)
	}
	if _, err := en.GetPolicy(ctx, created.ID); !errors.Is(err, store.ErrPolicyNotFound) {
		t.Errorf("GetPolicy() after delete error = %v, want ErrPolicyNotFound", err)
	}
	if err := en.DeletePolicy(ctx, created.ID); !errors.Is(err, store.ErrPolicyNotFound) {
		t.Errorf("DeletePolicy() twice error = %v, want ErrPolicyNotFound", err)
	}
}
