// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for auditcore.
//
// TOML with sensible defaults, environment variable overrides, and
// validation. The engine takes a *Config explicitly; the CLI uses the
// process-global accessor.
//
// Configuration file location (in order of precedence):
//   - path passed explicitly (--config)
//   - ~/.auditcore/config.toml
//   - built-in defaults
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/auditcore/internal/analytics"
	"github.com/jeranaias/auditcore/internal/compliance"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete auditcore configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// DataDir anchors every relative storage path. Empty means
	// ~/.auditcore.
	DataDir string `toml:"data_dir" json:"data_dir"`

	Storage    StorageConfig    `toml:"storage" json:"storage"`
	Signing    SigningConfig    `toml:"signing" json:"signing"`
	Ingest     IngestConfig     `toml:"ingest" json:"ingest"`
	Retention  RetentionConfig  `toml:"retention" json:"retention"`
	Compliance ComplianceConfig `toml:"compliance" json:"compliance"`
	Analytics  AnalyticsConfig  `toml:"analytics" json:"analytics"`
	Export     ExportConfig     `toml:"export" json:"export"`
}

// StorageConfig locates the three tiers and tunes migration batching.
type StorageConfig struct {
	// DBPath is the sqlite file backing the hot tier and the catalog.
	// Relative paths resolve under DataDir.
	DBPath string `toml:"db_path" json:"db_path"`

	// WarmDir and ColdDir hold archival batch blobs.
	WarmDir string `toml:"warm_dir" json:"warm_dir"`
	ColdDir string `toml:"cold_dir" json:"cold_dir"`

	// ColdEncryption enables AES-256-GCM at rest for cold blobs. The key
	// comes from ColdKey (hex) or is derived from ColdPassphrase with
	// ColdSalt.
	ColdEncryption bool   `toml:"cold_encryption" json:"cold_encryption"`
	ColdKey        string `toml:"cold_key" json:"cold_key"`
	ColdPassphrase string `toml:"cold_passphrase" json:"cold_passphrase"`
	ColdSalt       string `toml:"cold_salt" json:"cold_salt"`

	// MigrationBatchSize caps how many events one archival batch holds.
	MigrationBatchSize int `toml:"migration_batch_size" json:"migration_batch_size"`
}

// SigningConfig carries the key sources the signer keyring loads from.
// AUDITCORE_SIGNING_KEY and AUDITCORE_SIGNING_KEY_FILE override all of
// these; see the signer package for the full precedence ladder.
type SigningConfig struct {
	// Keys maps key id to hex-encoded 32-byte material; ActiveKey names
	// the signing key among them.
	ActiveKey string            `toml:"active_key" json:"active_key"`
	Keys      map[string]string `toml:"keys" json:"keys"`

	// Passphrase derives a key via PBKDF2 (SHA-256, 600k iterations)
	// with Salt (hex).
	Passphrase string `toml:"passphrase" json:"passphrase"`
	Salt       string `toml:"salt" json:"salt"`

	// KeyDir is a directory of <id>.key files plus a current marker.
	// Key rotation persists here. Relative paths resolve under DataDir.
	KeyDir string `toml:"key_dir" json:"key_dir"`
}

// IngestConfig tunes the submission path.
type IngestConfig struct {
	// RatePerSec caps sustained ingestion; 0 disables limiting.
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	// Burst is the limiter burst size when RatePerSec is set.
	Burst int `toml:"burst" json:"burst"`

	// InlineScoring runs anomaly analysis on every submitted event so
	// threshold crossings alert at ingest time rather than at the next
	// rollup.
	InlineScoring bool `toml:"inline_scoring" json:"inline_scoring"`
}

// RetentionConfig tunes the retention engine and its scheduler.
type RetentionConfig struct {
	// LeaseTTLMinutes bounds how long a crashed cycle holder blocks the
	// next cycle.
	LeaseTTLMinutes int `toml:"lease_ttl_minutes" json:"lease_ttl_minutes"`

	// PageSize is the tier scan page size during evaluation.
	PageSize int `toml:"page_size" json:"page_size"`

	// CycleIntervalMinutes is the scheduler period for retention cycles;
	// 0 disables scheduled cycles (external triggers still work).
	CycleIntervalMinutes int `toml:"cycle_interval_minutes" json:"cycle_interval_minutes"`
}

// ComplianceConfig configures report classification.
type ComplianceConfig struct {
	// SensitiveResources are resource patterns every framework treats as
	// sensitive ("vault/*", "pii/records"). The per-event metadata tag
	// sensitivity=high applies regardless.
	SensitiveResources []string `toml:"sensitive_resources" json:"sensitive_resources"`

	// Custom defines the violation rules of the custom framework.
	Custom []compliance.CustomRule `toml:"custom" json:"custom"`

	// PageSize is the report window scan page size.
	PageSize int `toml:"page_size" json:"page_size"`
}

// PatternsConfig tunes sequence-level anomaly detection. Zero values keep
// the analyzer defaults.
type PatternsConfig struct {
	FailureThreshold     int     `toml:"failure_threshold" json:"failure_threshold"`
	FailureWindowSeconds int     `toml:"failure_window_seconds" json:"failure_window_seconds"`
	ProbeThreshold       int     `toml:"probe_threshold" json:"probe_threshold"`
	BurstFactor          float64 `toml:"burst_factor" json:"burst_factor"`
	BurstMinEvents       int     `toml:"burst_min_events" json:"burst_min_events"`
}

// AnalyticsConfig carries every anomaly-scoring knob. Weights and
// thresholds are configuration, never hardcoded.
type AnalyticsConfig struct {
	// Weights are the per-heuristic score contributions; zero means the
	// stock weights.
	Weights analytics.Weights `toml:"weights" json:"weights"`

	// PrivilegedActions and DestructiveActions override the stock
	// action-type prefix/suffix lists.
	PrivilegedActions  []string `toml:"privileged_actions" json:"privileged_actions"`
	DestructiveActions []string `toml:"destructive_actions" json:"destructive_actions"`

	// Off-hours window in UTC hours, wraparound-aware (22..6 covers
	// 22:00 through 05:59). Equal values disable the heuristic.
	OffHoursStart int `toml:"off_hours_start" json:"off_hours_start"`
	OffHoursEnd   int `toml:"off_hours_end" json:"off_hours_end"`

	// CriticalAlertThreshold is the score at or above which an alert
	// persists and fires notification. -1 disables alerting.
	CriticalAlertThreshold int `toml:"critical_alert_threshold" json:"critical_alert_threshold"`

	BaselineLookbackDays int `toml:"baseline_lookback_days" json:"baseline_lookback_days"`
	BaselineTTLMinutes   int `toml:"baseline_ttl_minutes" json:"baseline_ttl_minutes"`

	Patterns PatternsConfig `toml:"patterns" json:"patterns"`

	// RollupIntervalMinutes is the scheduler period for analytics
	// rollups; 0 disables scheduled rollups.
	RollupIntervalMinutes int `toml:"rollup_interval_minutes" json:"rollup_interval_minutes"`
}

// ExportConfig configures the outbound SIEM stream and the alert
// notification file.
type ExportConfig struct {
	// Enabled turns on the JSONL event stream. Delivery is
	// at-least-once; consumers dedup by event id.
	Enabled bool `toml:"enabled" json:"enabled"`

	// EventsPath is the JSONL file every newly signed event is appended
	// to. Relative paths resolve under DataDir.
	EventsPath string `toml:"events_path" json:"events_path"`

	// AlertsPath is the JSONL file alert notifications are appended to.
	AlertsPath string `toml:"alerts_path" json:"alerts_path"`

	// RetryMax and RetryBaseMs shape the append retry backoff
	// (base * 2^(attempt-1)).
	RetryMax    int `toml:"retry_max" json:"retry_max"`
	RetryBaseMs int `toml:"retry_base_ms" json:"retry_base_ms"`

	// BufferLimit caps how many undelivered events the exporter holds
	// while the sink is unreachable.
	BufferLimit int `toml:"buffer_limit" json:"buffer_limit"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values. Storage paths
// are left relative; SetDefaults resolves them under DataDir.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Storage: StorageConfig{
			DBPath:             "audit.db",
			WarmDir:            "warm",
			ColdDir:            "cold",
			MigrationBatchSize: 500,
		},

		Signing: SigningConfig{
			KeyDir: "keys",
		},

		Ingest: IngestConfig{
			RatePerSec:    0, // unlimited
			Burst:         64,
			InlineScoring: true,
		},

		Retention: RetentionConfig{
			LeaseTTLMinutes:      15,
			PageSize:             1000,
			CycleIntervalMinutes: 0, // externally triggered by default
		},

		Compliance: ComplianceConfig{
			PageSize: 1000,
		},

		Analytics: AnalyticsConfig{
			Weights:                analytics.DefaultWeights(),
			OffHoursStart:          22,
			OffHoursEnd:            6,
			CriticalAlertThreshold: 90,
			BaselineLookbackDays:   30,
			BaselineTTLMinutes:     10,
			RollupIntervalMinutes:  0,
		},

		Export: ExportConfig{
			Enabled:     false,
			EventsPath:  "export.jsonl",
			AlertsPath:  "alerts.jsonl",
			RetryMax:    5,
			RetryBaseMs: 100,
			BufferLimit: 10000,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// DefaultDataDir returns the auditcore data directory path.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".auditcore"), nil
}

// ConfigPath returns the default TOML config file path.
func ConfigPath() (string, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// resolve anchors a relative path under the data directory.
func resolve(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the configuration from the default location, falling back to
// defaults when no file exists. Environment overrides apply last, then
// defaults are filled and the result validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not ensure secure permissions on %s: %v\n", path, err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "[WARN] unknown config keys ignored: %s\n", strings.Join(keys, ", "))
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ensureSecurePermissions tightens config file permissions to 0600. The
// config can hold signing passphrases, so group/world read is never
// acceptable.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default TOML file with 0600
// permissions.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file (0600, parent 0700).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# auditcore configuration file")
	fmt.Fprintln(file, "# Generated by auditcore - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS & RESOLUTION
// =============================================================================

// SetDefaults fills missing values and resolves relative storage paths
// under the data directory.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DataDir == "" {
		if dir, err := DefaultDataDir(); err == nil {
			c.DataDir = dir
		}
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = defaults.Storage.DBPath
	}
	if c.Storage.WarmDir == "" {
		c.Storage.WarmDir = defaults.Storage.WarmDir
	}
	if c.Storage.ColdDir == "" {
		c.Storage.ColdDir = defaults.Storage.ColdDir
	}
	if c.Storage.MigrationBatchSize == 0 {
		c.Storage.MigrationBatchSize = defaults.Storage.MigrationBatchSize
	}
	if c.Signing.KeyDir == "" {
		c.Signing.KeyDir = defaults.Signing.KeyDir
	}

	c.Storage.DBPath = resolve(c.DataDir, c.Storage.DBPath)
	c.Storage.WarmDir = resolve(c.DataDir, c.Storage.WarmDir)
	c.Storage.ColdDir = resolve(c.DataDir, c.Storage.ColdDir)
	c.Signing.KeyDir = resolve(c.DataDir, c.Signing.KeyDir)

	if c.Ingest.Burst == 0 {
		c.Ingest.Burst = defaults.Ingest.Burst
	}

	if c.Retention.LeaseTTLMinutes == 0 {
		c.Retention.LeaseTTLMinutes = defaults.Retention.LeaseTTLMinutes
	}
	if c.Retention.PageSize == 0 {
		c.Retention.PageSize = defaults.Retention.PageSize
	}

	if c.Compliance.PageSize == 0 {
		c.Compliance.PageSize = defaults.Compliance.PageSize
	}

	if c.Analytics.Weights == (analytics.Weights{}) {
		c.Analytics.Weights = defaults.Analytics.Weights
	}
	if c.Analytics.OffHoursStart == 0 && c.Analytics.OffHoursEnd == 0 {
		c.Analytics.OffHoursStart = defaults.Analytics.OffHoursStart
		c.Analytics.OffHoursEnd = defaults.Analytics.OffHoursEnd
	}
	if c.Analytics.CriticalAlertThreshold == 0 {
		c.Analytics.CriticalAlertThreshold = defaults.Analytics.CriticalAlertThreshold
	}
	if c.Analytics.BaselineLookbackDays == 0 {
		c.Analytics.BaselineLookbackDays = defaults.Analytics.BaselineLookbackDays
	}
	if c.Analytics.BaselineTTLMinutes == 0 {
		c.Analytics.BaselineTTLMinutes = defaults.Analytics.BaselineTTLMinutes
	}

	if c.Export.EventsPath == "" {
		c.Export.EventsPath = defaults.Export.EventsPath
	}
	if c.Export.AlertsPath == "" {
		c.Export.AlertsPath = defaults.Export.AlertsPath
	}
	if c.Export.RetryMax == 0 {
		c.Export.RetryMax = defaults.Export.RetryMax
	}
	if c.Export.RetryBaseMs == 0 {
		c.Export.RetryBaseMs = defaults.Export.RetryBaseMs
	}
	if c.Export.BufferLimit == 0 {
		c.Export.BufferLimit = defaults.Export.BufferLimit
	}
	c.Export.EventsPath = resolve(c.DataDir, c.Export.EventsPath)
	c.Export.AlertsPath = resolve(c.DataDir, c.Export.AlertsPath)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Storage.MigrationBatchSize < 1 || c.Storage.MigrationBatchSize > 10000 {
		errs = append(errs, ValidationError{
			Field:   "storage.migration_batch_size",
			Message: fmt.Sprintf("must be 1-10000, got %d", c.Storage.MigrationBatchSize),
		})
	}
	if c.Storage.ColdEncryption {
		switch {
		case c.Storage.ColdKey != "":
			if key, err := hex.DecodeString(c.Storage.ColdKey); err != nil || len(key) != 32 {
				errs = append(errs, ValidationError{
					Field:   "storage.cold_key",
					Message: "must be 64 hex characters (32 bytes)",
				})
			}
		case c.Storage.ColdPassphrase != "":
			if c.Storage.ColdSalt == "" {
				errs = append(errs, ValidationError{
					Field:   "storage.cold_salt",
					Message: "required with cold_passphrase",
				})
			} else if _, err := hex.DecodeString(c.Storage.ColdSalt); err != nil {
				errs = append(errs, ValidationError{
					Field:   "storage.cold_salt",
					Message: "must be hex-encoded",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   "storage.cold_encryption",
				Message: "requires cold_key or cold_passphrase",
			})
		}
	}

	if c.Signing.Passphrase != "" && c.Signing.Salt == "" {
		errs = append(errs, ValidationError{
			Field:   "signing.salt",
			Message: "required with passphrase",
		})
	}

	if c.Ingest.RatePerSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "ingest.rate_per_sec",
			Message: "must not be negative",
		})
	}
	if c.Ingest.Burst < 1 {
		errs = append(errs, ValidationError{
			Field:   "ingest.burst",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Ingest.Burst),
		})
	}

	if c.Retention.LeaseTTLMinutes < 1 || c.Retention.LeaseTTLMinutes > 24*60 {
		errs = append(errs, ValidationError{
			Field:   "retention.lease_ttl_minutes",
			Message: fmt.Sprintf("must be 1-1440, got %d", c.Retention.LeaseTTLMinutes),
		})
	}
	if c.Retention.CycleIntervalMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "retention.cycle_interval_minutes",
			Message: "must not be negative",
		})
	}

	if c.Analytics.CriticalAlertThreshold < -1 || c.Analytics.CriticalAlertThreshold > 100 {
		errs = append(errs, ValidationError{
			Field:   "analytics.critical_alert_threshold",
			Message: fmt.Sprintf("must be -1 (disabled) or 0-100, got %d", c.Analytics.CriticalAlertThreshold),
		})
	}
	for field, hour := range map[string]int{
		"analytics.off_hours_start": c.Analytics.OffHoursStart,
		"analytics.off_hours_end":   c.Analytics.OffHoursEnd,
	} {
		if hour < 0 || hour > 23 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be 0-23, got %d", hour),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - AUDITCORE_DATA_DIR: overrides data_dir
//   - AUDITCORE_DB_PATH: overrides storage.db_path
//   - AUDITCORE_WARM_DIR / AUDITCORE_COLD_DIR: override the blob tiers
//   - AUDITCORE_SIGNING_PASSPHRASE / AUDITCORE_SIGNING_SALT
//   - AUDITCORE_KEY_DIR: overrides signing.key_dir
//   - AUDITCORE_ALERT_THRESHOLD: overrides analytics.critical_alert_threshold
//   - AUDITCORE_EXPORT: "1"/"true" enables the export stream
//
// The signing key itself is read by the signer from AUDITCORE_SIGNING_KEY
// or AUDITCORE_SIGNING_KEY_FILE, outside this config.
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("AUDITCORE_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if p := os.Getenv("AUDITCORE_DB_PATH"); p != "" {
		c.Storage.DBPath = p
	}
	if p := os.Getenv("AUDITCORE_WARM_DIR"); p != "" {
		c.Storage.WarmDir = p
	}
	if p := os.Getenv("AUDITCORE_COLD_DIR"); p != "" {
		c.Storage.ColdDir = p
	}
	if pass := os.Getenv("AUDITCORE_SIGNING_PASSPHRASE"); pass != "" {
		c.Signing.Passphrase = pass
	}
	if salt := os.Getenv("AUDITCORE_SIGNING_SALT"); salt != "" {
		c.Signing.Salt = salt
	}
	if dir := os.Getenv("AUDITCORE_KEY_DIR"); dir != "" {
		c.Signing.KeyDir = dir
	}
	if v := os.Getenv("AUDITCORE_ALERT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analytics.CriticalAlertThreshold = n
		}
	}
	if v := os.Getenv("AUDITCORE_EXPORT"); v != "" {
		c.Export.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone returns a deep copy. Map and slice fields are copied so mutating
// the clone never touches the original.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Signing.Keys != nil {
		clone.Signing.Keys = make(map[string]string, len(c.Signing.Keys))
		for k, v := range c.Signing.Keys {
			clone.Signing.Keys[k] = v
		}
	}
	clone.Compliance.SensitiveResources = append([]string(nil), c.Compliance.SensitiveResources...)
	clone.Compliance.Custom = append([]compliance.CustomRule(nil), c.Compliance.Custom...)
	clone.Analytics.PrivilegedActions = append([]string(nil), c.Analytics.PrivilegedActions...)
	clone.Analytics.DestructiveActions = append([]string(nil), c.Analytics.DestructiveActions...)
	return &clone
}

// String renders the config for diagnostics with key material redacted.
// Signing keys, passphrases, and the cold encryption key must never reach
// logs or terminal scrollback.
func (c *Config) String() string {
	safe := c.Clone()
	for id := range safe.Signing.Keys {
		safe.Signing.Keys[id] = "[REDACTED]"
	}
	if safe.Signing.Passphrase != "" {
		safe.Signing.Passphrase = "[REDACTED]"
	}
	if safe.Storage.ColdKey != "" {
		safe.Storage.ColdKey = "[REDACTED]"
	}
	if safe.Storage.ColdPassphrase != "" {
		safe.Storage.ColdPassphrase = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON (CLI USE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-global configuration, loading it on first
// access. The engine itself never uses this; it takes *Config explicitly.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfig = cfg
	})
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the global configuration. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
