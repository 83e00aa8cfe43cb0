// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// blob.go - Warm and cold tier object storage. Blobs are batch documents
// keyed by batch id; the catalog, not the blob layout, is the source of
// truth for which events live where.

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/auditcore/internal/util"
)

// blobExt is the on-disk extension for batch blobs.
const blobExt = ".blob"

// ErrBlobNotFound is returned when a blob id has no stored object.
var ErrBlobNotFound = errors.New("blob not found")

// ErrBlobExists is returned by write-once stores when the id already holds
// an object.
var ErrBlobExists = errors.New("blob already exists")

// BlobStore is the object storage a warm or cold tier runs on.
type BlobStore interface {
	// Put stores data under id, replacing any existing object.
	Put(id string, data []byte) error
	// Get returns the object stored under id, or ErrBlobNotFound.
	Get(id string) ([]byte, error)
	// Delete removes the object under id. Deleting a missing id is a no-op.
	Delete(id string) error
	// Has reports whether an object exists under id.
	Has(id string) (bool, error)
	// Keys returns every stored id, sorted.
	Keys() ([]string, error)
}

// =============================================================================
// FILESYSTEM BLOB STORE
// =============================================================================

// FSBlobStore stores blobs as files under one directory, one file per id,
// written atomically with owner-only permissions.
type FSBlobStore struct {
	dir string
}

// NewFSBlobStore creates the directory (0700) if needed and returns a
// store over it.
func NewFSBlobStore(dir string) (*FSBlobStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FSBlobStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FSBlobStore) Dir() string {
	return f.dir
}

func (f *FSBlobStore) path(id string) string {
	return filepath.Join(f.dir, id+blobExt)
}

// Put writes the blob atomically (temp file + fsync + rename).
func (f *FSBlobStore) Put(id string, data []byte) error {
	if err := util.AtomicWriteFileWithDir(f.path(id), data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	return nil
}

func (f *FSBlobStore) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

func (f *FSBlobStore) Delete(id string) error {
	if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

func (f *FSBlobStore) Has(id string) (bool, error) {
	if _, err := os.Stat(f.path(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *FSBlobStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), blobExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// =============================================================================
// IN-MEMORY BLOB STORE
// =============================================================================

// MemBlobStore is an in-memory BlobStore for tests. A store can be marked
// unavailable to exercise degraded-tier paths.
type MemBlobStore struct {
	mu          sync.RWMutex
	blobs       map[string][]byte
	unavailable bool
}

// NewMemBlobStore returns an empty in-memory store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

// SetUnavailable makes every subsequent operation fail, simulating an
// unreachable tier.
func (m *MemBlobStore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *MemBlobStore) check() error {
	if m.unavailable {
		return errors.New("blob store unavailable")
	}
	return nil
}

func (m *MemBlobStore) Put(id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[id] = cp
	return nil
}

func (m *MemBlobStore) Get(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemBlobStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.blobs, id)
	return nil
}

func (m *MemBlobStore) Has(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return false, err
	}
	_, ok := m.blobs[id]
	return ok, nil
}

func (m *MemBlobStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.blobs))
	for id := range m.blobs {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys, nil
}

// =============================================================================
// WRITE-ONCE WRAPPER
// =============================================================================

// WriteOnceBlobStore refuses to replace existing objects. The cold tier
// runs behind it: a cold object is immutable from the moment it lands.
type WriteOnceBlobStore struct {
	BlobStore
}

// NewWriteOnce wraps inner with replace protection.
func NewWriteOnce(inner BlobStore) *WriteOnceBlobStore {
	return &WriteOnceBlobStore{BlobStore: inner}
}

func (w *WriteOnceBlobStore) Put(id string, data []byte) error {
	exists, err := w.Has(id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrBlobExists, id)
	}
	return w.BlobStore.Put(id, data)
}
