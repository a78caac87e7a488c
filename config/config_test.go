package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsMatchDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \":8080\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: ":9090"
  mode: release
upload:
  max_size: 1024
remover:
  model: test-model
  api_key_env: CUTOUT_TEST_KEY
  timeout: 5s
session:
  ttl: 2m
  keep_original_on_failure: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, int64(1024), cfg.Upload.MaxSize)
	assert.Equal(t, "test-model", cfg.Remover.Model)
	assert.Equal(t, 5*time.Second, cfg.Remover.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Session.TTL)
	assert.True(t, cfg.Session.KeepOriginalOnFailure)
	assert.Equal(t, "@every 1m", cfg.Session.SweepSpec)

	t.Setenv("CUTOUT_TEST_KEY", "  secret \n")
	assert.Equal(t, "secret", cfg.Remover.APIKey())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNew_FallsBackToDefault(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, Default(), New())
}

func TestRemoverConfig_APIKeyWithoutEnvName(t *testing.T) {
	assert.Empty(t, RemoverConfig{}.APIKey())
}
