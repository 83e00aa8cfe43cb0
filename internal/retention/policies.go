// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// policies.go - Policy CRUD semantics: id assignment, version bumps, and
// validation. The store only persists documents; the rules live here.

package retention

import (
	"context"

	"github.com/google/uuid"

	"github.com/jeranaias/auditcore/internal/audit"
)

// CreatePolicy validates and persists a new policy. The id, version, and
// timestamps are assigned here; anything the caller set is overwritten.
func (en *Engine) CreatePolicy(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	if err := p.ValidatePolicy(); err != nil {
		return nil, err
	}
	now := en.clock().UTC()
	created := *p
	created.ID = uuid.NewString()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	if err := en.store.SavePolicy(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePolicy replaces an existing policy's document, bumping its
// version. Creation time survives; retention changes apply from the next
// cycle on and never retroactively un-tier migrated events.
func (en *Engine) UpdatePolicy(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	if err := p.ValidatePolicy(); err != nil {
		return nil, err
	}
	existing, err := en.store.GetPolicy(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	updated := *p
	updated.Version = existing.Version + 1
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = en.clock().UTC()
	if err := en.store.SavePolicy(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetPolicy returns one policy by id.
func (en *Engine) GetPolicy(ctx context.Context, id string) (*audit.RetentionPolicy, error) {
	return en.store.GetPolicy(ctx, id)
}

// ListPolicies returns all policies, or only the enabled ones.
func (en *Engine) ListPolicies(ctx context.Context, enabledOnly bool) ([]audit.RetentionPolicy, error) {
	return en.store.ListPolicies(ctx, enabledOnly)
}

// DeletePolicy removes a policy. Events it already migrated stay where
// they are.
func (en *Engine) DeletePolicy(ctx context.Context, id string) error {
	return en.store.DeletePolicy(ctx, id)
}

// SetPolicyEnabled flips a policy without editing its document, bumping
// the version like any other update.
func (en *Engine) SetPolicyEnabled(ctx context.Context, id string, enabled bool) (*audit.RetentionPolicy, error) {
	p, err := en.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Enabled == enabled {
		return p, nil
	}
	p.Enabled = enabled
	p.Version++
	p.UpdatedAt = en.clock().UTC()
	if err := en.store.SavePolicy(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
