package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	content := `
app:
  environment: "test"
chains:
  "1":
    node_url: "https://node.example"
    request_timeout: 10s
storage:
  type: "memory"
auth:
  jwt_secret: "secret"
  session_ttl: 1h
server:
  port: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	require.Contains(t, cfg.Chains, "1")
	assert.Equal(t, "https://node.example", cfg.Chains["1"].NodeURL)
	assert.Equal(t, 10*time.Second, cfg.Chains["1"].RequestTimeout)

	// defaults fill the rest
	assert.Equal(t, "ticket-gate", cfg.App.Name)
	assert.Equal(t, "1", cfg.ENS.ChainID)
	assert.Equal(t, "memory", cfg.Oracle.CacheBackend)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: "sqlite"}}
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Type = ""
	assert.Error(t, cfg.Validate())

	cfg = &Config{
		Storage: StorageConfig{Type: "sqlite"},
		App:     AppConfig{Environment: "production"},
	}
	assert.Error(t, cfg.Validate(), "jwt secret required in production")

	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Chains = map[string]ChainConfig{"1": {}}
	assert.Error(t, cfg.Validate(), "node url required")
}
