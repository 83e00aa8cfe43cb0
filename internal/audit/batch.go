// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// batch.go - Signed batches: an ordered sequence of signed events plus a
// checksum over their concatenated signatures and a batch-level signature
// over that checksum.

package audit

import "time"

// SignedBatch is a finite ordered sequence of already-signed events. The
// checksum covers the concatenated member signatures in order, so member
// order is load-bearing. Checksum mismatch on read means corruption;
// a failing member signature means tampering.
type SignedBatch struct {
	BatchID   string    `json:"batchId"`
	CreatedAt time.Time `json:"createdAt"`
	Events    []Event   `json:"events"`
	Checksum  string    `json:"checksum"`
	Signature string    `json:"signature"`
}

// EventIDs returns the member ids in batch order.
func (b *SignedBatch) EventIDs() []string {
	ids := make([]string, len(b.Events))
	for i := range b.Events {
		ids[i] = b.Events[i].ID
	}
	return ids
}

// Find returns the member with the given id, or nil.
func (b *SignedBatch) Find(id string) *Event {
	for i := range b.Events {
		if b.Events[i].ID == id {
			return &b.Events[i]
		}
	}
	return nil
}
