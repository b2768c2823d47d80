package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depot/internal/bytesize"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultMaxUpload, cfg.Server.MaxUpload)
	assert.Equal(t, DefaultSessionWorkers, cfg.Pools.SessionWorkers)
	assert.Equal(t, DefaultFileWorkers, cfg.Pools.FileWorkers)
	assert.Equal(t, DefaultConnectionQueue, cfg.Pools.ConnectionQueue)
	assert.Equal(t, DefaultTaskQueue, cfg.Pools.TaskQueue)
	assert.Equal(t, DefaultStorageRoot, cfg.Storage.Root)
	assert.Equal(t, DefaultUsersFile, cfg.Storage.UsersFile)
	assert.Equal(t, DefaultUserQuota, cfg.Storage.UserQuota)
	assert.Equal(t, DefaultMaxUsers, cfg.Storage.MaxUsers)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
  output: stderr
server:
  port: 2121
  max_upload: 1Gi
pools:
  session_workers: 16
  file_workers: 8
storage:
  root: /srv/depot/files
  users_file: /srv/depot/users.txt
  user_quota: 250Mi
  max_users: 50
shutdown_timeout: 10s
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2121, cfg.Server.Port)
	assert.Equal(t, 1*bytesize.GiB, cfg.Server.MaxUpload)
	assert.Equal(t, 16, cfg.Pools.SessionWorkers)
	assert.Equal(t, 8, cfg.Pools.FileWorkers)
	assert.Equal(t, "/srv/depot/files", cfg.Storage.Root)
	assert.Equal(t, 250*bytesize.MiB, cfg.Storage.UserQuota)
	assert.Equal(t, 50, cfg.Storage.MaxUsers)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Metrics.Enabled)

	// Unset sections still get defaults.
	assert.Equal(t, DefaultConnectionQueue, cfg.Pools.ConnectionQueue)
	assert.Equal(t, DefaultTaskQueue, cfg.Pools.TaskQueue)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: INFO
server:
  port: 2121
`)

	t.Setenv("DEPOT_SERVER_PORT", "3030")
	t.Setenv("DEPOT_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3030, cfg.Server.Port)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoadNumericSizes(t *testing.T) {
	path := writeConfigFile(t, `
server:
  max_upload: 1048576
storage:
  user_quota: 2048
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, bytesize.ByteSize(1048576), cfg.Server.MaxUpload)
	assert.Equal(t, bytesize.ByteSize(2048), cfg.Storage.UserQuota)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 4545
	cfg.Logging.Level = "DEBUG"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4545, loaded.Server.Port)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, cfg.Storage.UserQuota, loaded.Storage.UserQuota)
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depot init")
}
