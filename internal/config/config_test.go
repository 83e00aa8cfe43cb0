// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsResolveUnderDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.SetDefaults()

	assert.Equal(t, filepath.Join(cfg.DataDir, "audit.db"), cfg.Storage.DBPath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "warm"), cfg.Storage.WarmDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cold"), cfg.Storage.ColdDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "keys"), cfg.Signing.KeyDir)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 90, cfg.Analytics.CriticalAlertThreshold)
	assert.Equal(t, 22, cfg.Analytics.OffHoursStart)
	assert.Equal(t, 500, cfg.Storage.MigrationBatchSize)
}

func TestAbsolutePathsAreKept(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	abs := filepath.Join(t.TempDir(), "elsewhere.db")
	cfg.Storage.DBPath = abs
	cfg.SetDefaults()

	assert.Equal(t, abs, cfg.Storage.DBPath)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
data_dir = "` + dir + `"

[storage]
migration_batch_size = 42

[analytics]
critical_alert_threshold = 75
off_hours_start = 20
off_hours_end = 4

[analytics.weights]
new_ip = 40

[compliance]
sensitive_resources = ["vault/*"]

[[compliance.custom]]
name = "denied-anything"
results = ["denied"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Storage.MigrationBatchSize)
	assert.Equal(t, 75, cfg.Analytics.CriticalAlertThreshold)
	assert.Equal(t, 20, cfg.Analytics.OffHoursStart)
	assert.Equal(t, 40, cfg.Analytics.Weights.NewIP)
	assert.Equal(t, []string{"vault/*"}, cfg.Compliance.SensitiveResources)
	require.Len(t, cfg.Compliance.Custom, 1)
	assert.Equal(t, "denied-anything", cfg.Compliance.Custom[0].Name)
	// Omitted sections still get defaults.
	assert.Equal(t, 15, cfg.Retention.LeaseTTLMinutes)
}

func TestLoadFixesInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = \"1.0.0\"\n"), 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.SetDefaults()
	cfg.Storage.MigrationBatchSize = 0
	cfg.Analytics.CriticalAlertThreshold = 200
	cfg.Ingest.RatePerSec = -1

	err := cfg.Validate()
	require.Error(t, err)
	var errs ValidateErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3)
}

func TestValidateColdEncryption(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.SetDefaults()
	cfg.Storage.ColdEncryption = true

	// No key source at all.
	require.Error(t, cfg.Validate())

	// Bad hex.
	cfg.Storage.ColdKey = "nothex"
	require.Error(t, cfg.Validate())

	// Proper 32-byte key.
	cfg.Storage.ColdKey = strings.Repeat("ab", 32)
	require.NoError(t, cfg.Validate())

	// Passphrase requires a salt.
	cfg.Storage.ColdKey = ""
	cfg.Storage.ColdPassphrase = "secret"
	cfg.Storage.ColdSalt = ""
	require.Error(t, cfg.Validate())
	cfg.Storage.ColdSalt = "a1b2c3d4"
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUDITCORE_DATA_DIR", "/tmp/audit-env")
	t.Setenv("AUDITCORE_ALERT_THRESHOLD", "55")
	t.Setenv("AUDITCORE_EXPORT", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()

	assert.Equal(t, "/tmp/audit-env", cfg.DataDir)
	assert.Equal(t, 55, cfg.Analytics.CriticalAlertThreshold)
	assert.True(t, cfg.Export.Enabled)
	assert.Equal(t, filepath.Join("/tmp/audit-env", "audit.db"), cfg.Storage.DBPath)
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.Signing.Keys = map[string]string{"k1": strings.Repeat("ab", 32)}
	cfg.Signing.Passphrase = "hunter2"
	cfg.Storage.ColdKey = strings.Repeat("cd", 32)
	cfg.SetDefaults()

	s := cfg.String()
	assert.NotContains(t, s, strings.Repeat("ab", 32))
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, strings.Repeat("cd", 32))
	assert.Contains(t, s, "[REDACTED]")

	// Redaction happened on a clone, not the original.
	assert.Equal(t, strings.Repeat("ab", 32), cfg.Signing.Keys["k1"])
}

func TestGlobalConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	seed := Default()
	seed.DataDir = t.TempDir()
	seed.SetDefaults()
	SetGlobal(seed)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cfg := Default()
			cfg.DataDir = seed.DataDir
			cfg.SetDefaults()
			SetGlobal(cfg)
		}()
		go func() {
			defer wg.Done()
			_ = Global()
		}()
	}
	wg.Wait()
}
