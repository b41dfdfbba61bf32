package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "medium", cfg.Detection.Sensitivity)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "PHI", cfg.Redaction.TokenPrefix)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown sensitivity", func(c *Config) { c.Detection.Sensitivity = "extreme" }},
		{"zero concurrency", func(c *Config) { c.Batch.Concurrency = 0 }},
		{"concurrency above cap", func(c *Config) { c.Batch.Concurrency = 65; c.Batch.MaxConcurrency = 64 }},
		{"max concurrency above hard cap", func(c *Config) { c.Batch.MaxConcurrency = 128 }},
		{"negative rate", func(c *Config) { c.Batch.RatePerSecond = -1 }},
		{"overlap equals chunk", func(c *Config) { c.Stream.Overlap = c.Stream.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Stream.Overlap = -1 }},
		{"chunk below minimum", func(c *Config) { c.Stream.ChunkSize = 10 }},
		{"empty token prefix", func(c *Config) { c.Redaction.TokenPrefix = "" }},
		{"audit without dir", func(c *Config) { c.Audit.BaseDir = "" }},
		{"postgres without url", func(c *Config) { c.Audit.Postgres.Enabled = true }},
		{"entity without model", func(c *Config) { c.Entity.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
detection:
  sensitivity: high
  allowlist:
    - "555-0100"
batch:
  concurrency: 4
  item_timeout: 250ms
stream:
  chunk_size: 4096
  overlap: 64
redaction:
  token_prefix: PHI
  salt: unit-test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "high", cfg.Detection.Sensitivity)
	assert.Equal(t, []string{"555-0100"}, cfg.Detection.Allowlist)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.ItemTimeout)
	assert.Equal(t, 4096, cfg.Stream.ChunkSize)
	assert.Equal(t, 64, cfg.Stream.Overlap)
	assert.Equal(t, "unit-test", cfg.Redaction.Salt)
	// untouched sections keep their defaults
	assert.Equal(t, 64, cfg.Batch.MaxConcurrency)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  chunk_size: 2048\n  overlap: 2048\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  sensitivity: high\n"), 0o600))
	t.Setenv("PHI_SENTINEL_DETECTION_SENSITIVITY", "low")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "low", cfg.Detection.Sensitivity)
}

func TestWatchAppliesOnlyValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  sensitivity: medium\n"), 0o600))

	_, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 16)
	rejected := make(chan error, 16)
	require.NoError(t, Watch(
		func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		},
		func(err error) {
			select {
			case rejected <- err:
			default:
			}
		},
	))

	// a write may surface as several events, so only the outcomes are checked
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  sensitivity: extreme\n"), 0o600))
	select {
	case err := <-rejected:
		assert.Contains(t, err.Error(), "sensitivity")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid change was not rejected")
	}

	require.NoError(t, os.WriteFile(path, []byte("detection:\n  sensitivity: high\n"), 0o600))
	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-reloaded:
				assert.NotEqual(t, "extreme", c.Detection.Sensitivity)
				if c.Detection.Sensitivity == "high" {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 20*time.Millisecond)
}
