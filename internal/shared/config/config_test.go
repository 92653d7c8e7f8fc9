package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
database:
  user: app
  password: secret
  database: storefront
rabbitmq:
  user: guest
  password: guest
auth:
  secret: a-long-enough-secret
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, ":3003", cfg.Gateway.Addr)
	assert.Equal(t, 3, cfg.Gateway.TypingTimeoutSeconds)
	assert.Equal(t, 256, cfg.Gateway.SendQueueSize)
	assert.Equal(t, ":3004", cfg.Status.Addr)
}

func TestLoadFromFile_MissingRequired(t *testing.T) {
	path := writeConfig(t, `
database:
  user: app
rabbitmq:
  user: guest
auth:
  secret: short
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")
	assert.Contains(t, err.Error(), "auth.secret")
}
