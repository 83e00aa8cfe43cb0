// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keyring.go - Signing key management: multi-source loading, rotation with
// retained verification keys, PBKDF2 derivation. Keys are never
// auto-generated; a missing key is a configuration error.

package signer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/auditcore/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// KeySize is the HMAC-SHA256 key size in bytes (256 bits).
	KeySize = 32

	// SaltSize is the salt size for passphrase derivation (32 bytes).
	SaltSize = 32

	// PBKDF2Iterations for passphrase-derived keys. OWASP 2023 recommends
	// 600,000+ for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000

	// EnvKey is the environment variable holding a hex-encoded signing key.
	EnvKey = "AUDITCORE_SIGNING_KEY"

	// EnvKeyFile is the environment variable pointing at a raw key file.
	EnvKeyFile = "AUDITCORE_SIGNING_KEY_FILE"

	// keyFileExt is the per-key file extension inside a key directory.
	keyFileExt = ".key"

	// currentMarker is the key-directory file naming the active key id.
	currentMarker = "current"
)

var (
	// ErrNoKey means no signing key is configured or loaded.
	ErrNoKey = errors.New("no signing key configured")

	// ErrUnknownKeyID means a signature references a key id the keyring
	// does not hold. Verification fails closed.
	ErrUnknownKeyID = errors.New("unknown signing key id")
)

// KeySource indicates where the active signing key was loaded from.
type KeySource string

const (
	KeySourceEnvVar     KeySource = "environment_variable"
	KeySourceEnvFile    KeySource = "env_file_path"
	KeySourceConfig     KeySource = "config"
	KeySourcePassphrase KeySource = "derived_passphrase"
	KeySourceKeyDir     KeySource = "key_directory"
	KeySourceNone       KeySource = "not_loaded"
)

// =============================================================================
// KEYRING
// =============================================================================

// Keyring holds the active signing key plus every retained verification
// key, indexed by key id. Rotation adds a key and moves the active pointer;
// prior keys stay in the ring so signatures made under them keep verifying.
// Safe for concurrent use.
type Keyring struct {
	mu      sync.RWMutex
	keys    map[string][]byte
	current string
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// Add registers a verification key under id. The id must be non-empty and
// must not contain ':' (the signature separator). Re-adding an id with the
// same bytes is a no-op; different bytes are rejected.
func (k *Keyring) Add(id string, key []byte) error {
	if id == "" {
		return errors.New("key id must not be empty")
	}
	if strings.Contains(id, ":") {
		return fmt.Errorf("key id %q must not contain ':'", id)
	}
	if len(key) != KeySize {
		return fmt.Errorf("key %q must be %d bytes, got %d", id, KeySize, len(key))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.keys[id]; ok {
		if !bytesEqual(existing, key) {
			return fmt.Errorf("key id %q already registered with different material", id)
		}
		return nil
	}
	cp := make([]byte, KeySize)
	copy(cp, key)
	k.keys[id] = cp
	return nil
}

// Rotate adds key under id and makes it the active signing key. Prior keys
// stay registered for verification.
func (k *Keyring) Rotate(id string, key []byte) error {
	if err := k.Add(id, key); err != nil {
		return err
	}
	k.mu.Lock()
	k.current = id
	k.mu.Unlock()
	return nil
}

// SetCurrent switches the active signing key to an already-registered id.
func (k *Keyring) SetCurrent(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKeyID, id)
	}
	k.current = id
	return nil
}

// Current returns the active key id and material, or ErrNoKey.
func (k *Keyring) Current() (string, []byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.current == "" {
		return "", nil, ErrNoKey
	}
	return k.current, k.keys[k.current], nil
}

// CurrentID returns the active key id, or "" when the ring is empty.
func (k *Keyring) CurrentID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// Key returns the material registered under id.
func (k *Keyring) Key(id string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[id]
	return key, ok
}

// IDs returns every registered key id, sorted.
func (k *Keyring) IDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered keys.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Close zeros all key material.
// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, key := range k.keys {
		zeroBytes(key)
		delete(k.keys, id)
	}
	k.current = ""
}

// zeroBytes securely zeros sensitive byte slices.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// bytesEqual is a plain comparison for key-identity checks. Not used on
// attacker-controlled input; signature comparison uses hmac.Equal.
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// KEY MATERIAL HELPERS
// =============================================================================

// GenerateKey returns a fresh random 32-byte signing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}

// DeriveKey derives a 32-byte signing key from a passphrase and salt using
// PBKDF2-SHA-256 (NIST SP 800-132).
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// ParseKeyHex decodes a hex-encoded key and enforces the key size.
func ParseKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Fingerprint returns the short identifier derived from key material (hex
// of the first 4 bytes). Used as the key id when a source supplies raw
// material without naming it.
func Fingerprint(key []byte) string {
	if len(key) < 4 {
		return ""
	}
	return hex.EncodeToString(key[:4])
}

// =============================================================================
// MULTI-SOURCE LOADING
// =============================================================================

// KeyringConfig carries every key source the configuration can express.
// LoadKeyring consults them in priority order; all verification keys found
// are registered, the highest-priority source supplies the active key.
type KeyringConfig struct {
	// ActiveKey names the signing key id when Keys is used.
	ActiveKey string

	// Keys maps key id to hex-encoded material (config file keys).
	Keys map[string]string

	// Passphrase derives a key via PBKDF2 when set; SaltHex is required
	// with it.
	Passphrase string
	SaltHex    string

	// KeyDir is a directory of <id>.key files plus a "current" marker.
	// Rotation persists here.
	KeyDir string
}

// LoadKeyring assembles a keyring from the configured sources.
//
// Active-key priority:
//  1. AUDITCORE_SIGNING_KEY (hex-encoded key)
//  2. AUDITCORE_SIGNING_KEY_FILE (path to a raw 32-byte key file)
//  3. config [signing] keys + active_key
//  4. config [signing] passphrase (PBKDF2 with the configured salt)
//  5. key directory "current" marker
//
// Every source found contributes verification keys even when a higher
// source wins the active slot. No key is ever generated here: an empty
// result is ErrNoKey.
func LoadKeyring(cfg KeyringConfig) (*Keyring, KeySource, error) {
	ring := NewKeyring()
	source := KeySourceNone

	// Lower-priority sources first; higher ones overwrite the active slot.
	if cfg.KeyDir != "" {
		keys, current, err := LoadKeyDir(cfg.KeyDir)
		if err != nil {
			return nil, KeySourceNone, err
		}
		for id, key := range keys {
			if err := ring.Add(id, key); err != nil {
				return nil, KeySourceNone, err
			}
		}
		if current != "" {
			if err := ring.SetCurrent(current); err != nil {
				return nil, KeySourceNone, fmt.Errorf("key directory current marker: %w", err)
			}
			source = KeySourceKeyDir
		}
	}

	if cfg.Passphrase != "" {
		if cfg.SaltHex == "" {
			return nil, KeySourceNone, errors.New("signing passphrase requires a configured salt")
		}
		salt, err := hex.DecodeString(cfg.SaltHex)
		if err != nil {
			return nil, KeySourceNone, fmt.Errorf("invalid signing salt: %w", err)
		}
		key := DeriveKey(cfg.Passphrase, salt)
		id := Fingerprint(key)
		if err := ring.Rotate(id, key); err != nil {
			return nil, KeySourceNone, err
		}
		source = KeySourcePassphrase
	}

	if len(cfg.Keys) > 0 {
		for id, hexKey := range cfg.Keys {
			key, err := ParseKeyHex(hexKey)
			if err != nil {
				return nil, KeySourceNone, fmt.Errorf("config key %q: %w", id, err)
			}
			if err := ring.Add(id, key); err != nil {
				return nil, KeySourceNone, err
			}
		}
		active := cfg.ActiveKey
		if active == "" && len(cfg.Keys) == 1 {
			for id := range cfg.Keys {
				active = id
			}
		}
		if active != "" {
			if err := ring.SetCurrent(active); err != nil {
				return nil, KeySourceNone, fmt.Errorf("config active_key: %w", err)
			}
			source = KeySourceConfig
		}
	}

	if keyPath := os.Getenv(EnvKeyFile); keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, KeySourceNone, fmt.Errorf("failed to read signing key file %s: %w", keyPath, err)
		}
		if len(key) != KeySize {
			return nil, KeySourceNone, fmt.Errorf("signing key file must be %d bytes, got %d", KeySize, len(key))
		}
		if err := ring.Rotate(Fingerprint(key), key); err != nil {
			return nil, KeySourceNone, err
		}
		source = KeySourceEnvFile
	}

	if keyHex := os.Getenv(EnvKey); keyHex != "" {
		key, err := ParseKeyHex(keyHex)
		if err != nil {
			return nil, KeySourceNone, fmt.Errorf("invalid signing key in %s: %w", EnvKey, err)
		}
		if err := ring.Rotate(Fingerprint(key), key); err != nil {
			return nil, KeySourceNone, err
		}
		source = KeySourceEnvVar
	}

	if ring.CurrentID() == "" {
		return nil, KeySourceNone, fmt.Errorf(
			"%w: set %s (hex key), %s (key file path), [signing] keys in the config, or create a key directory",
			ErrNoKey, EnvKey, EnvKeyFile)
	}
	return ring, source, nil
}

// =============================================================================
// KEY DIRECTORY PERSISTENCE
// =============================================================================

// SaveKey writes key material under dir as <id>.key (0600, directory 0700)
// and marks it as the current signing key. Used by rotation.
func SaveKey(dir, id string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("key %q must be %d bytes, got %d", id, KeySize, len(key))
	}
	keyPath := filepath.Join(dir, id+keyFileExt)
	if err := util.AtomicWriteFileWithDir(keyPath, key, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	markerPath := filepath.Join(dir, currentMarker)
	if err := util.AtomicWriteFile(markerPath, []byte(id+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write current marker: %w", err)
	}
	return nil
}

// LoadKeyDir reads every <id>.key file under dir plus the current marker.
// A missing directory is an empty result, not an error.
func LoadKeyDir(dir string) (map[string][]byte, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read key directory: %w", err)
	}

	keys := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), keyFileExt)
		key, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read key file %s: %w", entry.Name(), err)
		}
		if len(key) != KeySize {
			return nil, "", fmt.Errorf("key file %s must be %d bytes, got %d", entry.Name(), KeySize, len(key))
		}
		keys[id] = key
	}

	current := ""
	if data, err := os.ReadFile(filepath.Join(dir, currentMarker)); err == nil {
		current = strings.TrimSpace(string(data))
		if _, ok := keys[current]; !ok && current != "" {
			return nil, "", fmt.Errorf("current marker names missing key %q", current)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read current marker: %w", err)
	}

	return keys, current, nil
}
