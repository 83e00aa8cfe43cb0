// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// crypto.go - Cold tier encryption at rest: AES-256-GCM over whole blobs,
// nonce || ciphertext || tag layout. GCM authentication doubles as an
// integrity check, so a tampered cold object fails closed on read.

package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/jeranaias/auditcore/internal/audit"
)

// gcmNonceSize is the AES-GCM nonce size in bytes (96 bits).
const gcmNonceSize = 12

// blobKeySize is the required AES-256 key length.
const blobKeySize = 32

// EncryptedBlobStore wraps a BlobStore with AES-256-GCM. Objects are
// encrypted on Put and authenticated on Get; everything else passes
// through.
type EncryptedBlobStore struct {
	BlobStore
	aead cipher.AEAD
}

// NewEncryptedBlobStore wraps inner with a 32-byte AES-256 key.
func NewEncryptedBlobStore(inner BlobStore, key []byte) (*EncryptedBlobStore, error) {
	if len(key) != blobKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", blobKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &EncryptedBlobStore{BlobStore: inner, aead: gcm}, nil
}

func (e *EncryptedBlobStore) Put(id string, data []byte) error {
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.BlobStore.Put(id, e.aead.Seal(nonce, nonce, data, nil))
}

func (e *EncryptedBlobStore) Get(id string) ([]byte, error) {
	sealed, err := e.BlobStore.Get(id)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcmNonceSize {
		return nil, &audit.IntegrityViolation{
			Kind:   audit.ViolationOutOfBandChange,
			Detail: fmt.Sprintf("encrypted blob %s truncated below nonce size", id),
		}
	}
	nonce, ciphertext := sealed[:gcmNonceSize], sealed[gcmNonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Authentication tag mismatch: the object was altered at rest.
		return nil, &audit.IntegrityViolation{
			Kind:   audit.ViolationOutOfBandChange,
			Detail: fmt.Sprintf("blob %s failed authenticated decryption: %v", id, err),
		}
	}
	return plaintext, nil
}
