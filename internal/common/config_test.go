package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 60, cfg.Ingest.RequestsPerMinute)
	assert.Equal(t, 200, cfg.Ingest.BatchSaveInterval)
	assert.Equal(t, 3, cfg.Ingest.MaxRetryAttempts)
	assert.Equal(t, 3000, cfg.Ingest.LargeThreadThreshold)
	assert.Equal(t, 2000, cfg.Ingest.LargeThreadExpansion)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stocktalk.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[ingest]
requests_per_minute = 30
batch_save_interval = 50

[logging]
level = "debug"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 30, cfg.Ingest.RequestsPerMinute)
	assert.Equal(t, 50, cfg.Ingest.BatchSaveInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Ingest.MaxRetryAttempts)
	assert.Equal(t, "./sources.yaml", cfg.Sources.File)
}

func TestLoadFromFileRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stocktalk.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ingest]
requests_per_minute = -5
`), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverridesTakePriority(t *testing.T) {
	t.Setenv("STOCKTALK_REDDIT_CLIENT_ID", "env-id")
	t.Setenv("STOCKTALK_REDDIT_CLIENT_SECRET", "env-secret")
	t.Setenv("STOCKTALK_LOG_LEVEL", "warn")
	t.Setenv("STOCKTALK_REQUESTS_PER_MINUTE", "90")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Reddit.ClientID)
	assert.Equal(t, "env-secret", cfg.Reddit.ClientSecret)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 90, cfg.Ingest.RequestsPerMinute)
}

func TestIngestConfigGuards(t *testing.T) {
	var zero IngestConfig
	assert.Equal(t, 200, zero.BatchInterval())
	assert.Equal(t, 3, zero.RetryCeiling())

	set := IngestConfig{BatchSaveInterval: 50, MaxRetryAttempts: 5}
	assert.Equal(t, 50, set.BatchInterval())
	assert.Equal(t, 5, set.RetryCeiling())
}
