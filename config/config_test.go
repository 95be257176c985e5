package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8380", cfg.Worker.Listen)
	assert.Equal(t, "http://127.0.0.1:8380", cfg.Worker.URL)
	assert.Equal(t, 16, cfg.Worker.QueueSize)
	assert.Equal(t, "crednotify.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Credentials.Timeout)
	assert.Equal(t, uint64(11), cfg.Credentials.MaxRetries)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crednotify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
worker:
  listen: 0.0.0.0:9000
  url: http://worker.internal:9000
database:
  path: /var/lib/crednotify/platform.db
credentials:
  url: https://credentials.example.com
  token: secret
  max_retries: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Worker.Listen)
	assert.Equal(t, "http://worker.internal:9000", cfg.Worker.URL)
	assert.Equal(t, "/var/lib/crednotify/platform.db", cfg.Database.Path)
	assert.Equal(t, "https://credentials.example.com", cfg.Credentials.URL)
	assert.Equal(t, "secret", cfg.Credentials.Token)
	assert.Equal(t, uint64(3), cfg.Credentials.MaxRetries)
	// Unset keys keep their defaults.
	assert.Equal(t, 16, cfg.Worker.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Credentials.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CREDNOTIFY_WORKER_URL", "http://override.internal:9999")
	t.Setenv("CREDNOTIFY_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("CREDNOTIFY_CREDENTIALS_TOKEN", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://override.internal:9999", cfg.Worker.URL)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "env-secret", cfg.Credentials.Token)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1:8380", cfg.Worker.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
