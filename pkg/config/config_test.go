package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "posix", cfg.Storage.Backend)
	assert.Equal(t, uint32(1000), cfg.Storage.OwnerUID)
	assert.Equal(t, 60*time.Second, cfg.Storage.CommandTimeout)
	assert.False(t, cfg.Storage.BestEffortQuota)
}

func TestValidateDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "TRACE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max")
}

func TestValidateInvalidBackend(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Backend = "nfs"

	assert.Error(t, Validate(cfg))
}

func TestValidateBasePathTrailingSlash(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.BasePath = "/export/home/"

	assert.Error(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
server:
  port: 9000
storage:
  backend: zfs
  base_path: tank/home
  owner_uid: 1100
  command_timeout: 30s
  best_effort_quota: true
database:
  type: sqlite
  sqlite:
    path: ":memory:"
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "zfs", cfg.Storage.Backend)
	assert.Equal(t, "tank/home", cfg.Storage.BasePath)
	assert.Equal(t, uint32(1100), cfg.Storage.OwnerUID)
	assert.Equal(t, uint32(100), cfg.Storage.OwnerGID) // default
	assert.Equal(t, 30*time.Second, cfg.Storage.CommandTimeout)
	assert.True(t, cfg.Storage.BestEffortQuota)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "posix", cfg.Storage.Backend)
}

func TestCompatEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "zfs")
	t.Setenv("STORAGE_BASE_PATH", "tank/export")
	t.Setenv("STORAGE_UID", "1500")
	t.Setenv("STORAGE_GID", "1500")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "zfs", cfg.Storage.Backend)
	assert.Equal(t, "tank/export", cfg.Storage.BasePath)
	assert.Equal(t, uint32(1500), cfg.Storage.OwnerUID)
	assert.Equal(t, uint32(1500), cfg.Storage.OwnerGID)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 9100
	cfg.Storage.BasePath = "/srv/home"
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Server.Port)
	assert.Equal(t, "/srv/home", loaded.Storage.BasePath)
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.Error(t, cfg.Server.ValidateAPIKey())

	t.Setenv("STORAGEHUB_API_KEY", "short")
	assert.Error(t, cfg.Server.ValidateAPIKey())

	t.Setenv("STORAGEHUB_API_KEY", "a-sufficiently-long-key")
	assert.NoError(t, cfg.Server.ValidateAPIKey())
	assert.Equal(t, "a-sufficiently-long-key", cfg.Server.GetAPIKey())
}
