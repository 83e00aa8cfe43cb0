// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// archive.go - Archival tier auditing. The catalog says what the warm and
// cold directories should hold; this pass reconciles the directories
// against it and verifies every batch it can load. The archive watcher
// and the CLI verify command both run through here.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/auditcore/internal/audit"
)

// ListBatchIDs returns every batch id the manifest places in the tier,
// sorted by creation time.
func (st *Store) ListBatchIDs(ctx context.Context, tier Tier) ([]string, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT batch_id FROM batches WHERE tier = ? ORDER BY created_at, batch_id`,
		string(tier))
	if err != nil {
		return nil, wrapHot("list batches", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapHot("scan batches", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapHot("scan batches", err)
	}
	return ids, nil
}

// VerifyArchive reconciles one archival tier against the manifest and
// verifies every expected batch: a blob the manifest does not know, a
// manifest batch with no blob, and a batch that fails checksum or
// signature verification are each one finding. An unreachable tier is an
// operational error, not a finding.
func (st *Store) VerifyArchive(ctx context.Context, tier Tier) ([]error, error) {
	if tier != TierWarm && tier != TierCold {
		return nil, fmt.Errorf("archive verification applies to warm and cold tiers, not %q", tier)
	}
	bs, err := st.blobStore(tier)
	if err != nil {
		return nil, err
	}

	expected, err := st.ListBatchIDs(ctx, tier)
	if err != nil {
		return nil, err
	}
	keys, err := bs.Keys()
	if err != nil {
		return nil, &audit.StorageUnavailable{Tier: string(tier), Op: "list blobs", Err: err}
	}

	known := make(map[string]bool, len(expected))
	var findings []error
	for _, id := range expected {
		known[id] = true
	}
	for _, key := range keys {
		if !known[key] {
			findings = append(findings, &audit.IntegrityViolation{
				Kind:    audit.ViolationOutOfBandChange,
				BatchID: key,
				Detail:  fmt.Sprintf("%s tier holds a blob the manifest does not know", tier),
			})
		}
	}

	for _, id := range expected {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		b, err := st.loadBlobBatch(tier, id)
		if err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				findings = append(findings, &audit.IntegrityViolation{
					Kind:    audit.ViolationOutOfBandChange,
					BatchID: id,
					Detail:  fmt.Sprintf("manifest places batch in %s tier but its blob is gone", tier),
				})
				continue
			}
			if audit.IsIntegrityViolation(err) {
				findings = append(findings, err)
				continue
			}
			return findings, err
		}
		if err := st.sealer.VerifyBatch(b); err != nil {
			if audit.IsIntegrityViolation(err) {
				findings = append(findings, err)
				continue
			}
			return findings, err
		}
	}
	return findings, nil
}
