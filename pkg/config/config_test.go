package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile writes a YAML config to a temp dir and returns its path.
func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
adapters:
  sftp:
    enabled: true
    allow_anonymous: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Backend.Type)
	assert.Equal(t, 2022, cfg.Adapters.SFTP.Port)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
backend:
  type: badger
  badger:
    db_path: /tmp/dsftp-test
adapters:
  sftp:
    enabled: true
    port: 2222
    users:
      alice: secret
      bob: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "badger", cfg.Backend.Type)
	assert.Equal(t, "/tmp/dsftp-test", cfg.Backend.Badger["db_path"])
	assert.Equal(t, 2222, cfg.Adapters.SFTP.Port)
	assert.Equal(t, "secret", cfg.Adapters.SFTP.Users["alice"])
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Run("UnknownBackendType", func(t *testing.T) {
		path := writeConfigFile(t, `
backend:
  type: floppy
adapters:
  sftp:
    enabled: true
    allow_anonymous: true
`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("NoAdapterEnabled", func(t *testing.T) {
		path := writeConfigFile(t, `
backend:
  type: memory
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one adapter")
	})

	t.Run("NoUsersWithoutAnonymous", func(t *testing.T) {
		path := writeConfigFile(t, `
adapters:
  sftp:
    enabled: true
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "allow_anonymous")
	})
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		store, err := CreateBackend(ctx, &BackendConfig{Type: "memory"})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("Badger", func(t *testing.T) {
		store, err := CreateBackend(ctx, &BackendConfig{
			Type:   "badger",
			Badger: map[string]any{"db_path": t.TempDir()},
		})
		require.NoError(t, err)
		require.NotNil(t, store)
		if closer, ok := store.(interface{ Close() error }); ok {
			t.Cleanup(func() { _ = closer.Close() })
		}
	})

	t.Run("BadgerMissingPath", func(t *testing.T) {
		_, err := CreateBackend(ctx, &BackendConfig{Type: "badger"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_path is required")
	})

	t.Run("S3MissingBucket", func(t *testing.T) {
		_, err := CreateBackend(ctx, &BackendConfig{
			Type: "s3",
			S3:   map[string]any{"region": "us-east-1"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := CreateBackend(ctx, &BackendConfig{Type: "tape"})
		require.Error(t, err)
	})
}

func TestApplyDefaultsNormalizesLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/dsftp/data", cfg.Backend.Badger["db_path"])
}
