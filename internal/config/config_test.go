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
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8888", cfg.Client.Endpoint)
	assert.Equal(t, "http", cfg.Client.Transport)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 3, cfg.Client.Retries)
	assert.Equal(t, ":8888", cfg.Server.Addr)
	assert.Equal(t, "dev", cfg.Auth.Mode)
	assert.Equal(t, 5, cfg.Notify.WebhookMaxAttempts)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wastelink.yaml")
	body := []byte("client:\n  endpoint: http://walkers.internal:9000\n  timeout: 3s\n  retries: 0\n  transport: ws\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("WASTELINK_CLIENT_TOKEN", "u1:admin")
	t.Setenv("WASTELINK_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://walkers.internal:9000", cfg.Client.Endpoint)
	assert.Equal(t, "ws", cfg.Client.Transport)
	assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 0, cfg.Client.Retries)
	assert.Equal(t, "u1:admin", cfg.Client.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WASTELINK_CLIENT_TRANSPORT", "carrier-pigeon")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("WASTELINK_CLIENT_TRANSPORT", "http")
	t.Setenv("WASTELINK_AUTH_MODE", "hmac")
	_, err = Load("")
	assert.ErrorContains(t, err, "auth.secret")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
