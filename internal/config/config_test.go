package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./spool", cfg.Inbound.SpoolDir)
	assert.Equal(t, "android", cfg.Device.Platform)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "bridged.json", `{
		"logging": {"level": "debug", "file": "/tmp/b.log"},
		"storage": {"driver": "sqlite", "path": "/tmp/b.db", "busy_timeout": "2s"},
		"device": {"platform": "ios", "id": "ABCDEF"},
		"inbound": {"spool_dir": "/tmp/spool"},
		"devicelog": {"interval_ms": 2000, "max_lines": 120},
		"sim": {"auth_delay": "150ms"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/b.db", cfg.Storage.Path)
	assert.Equal(t, "ios", cfg.Device.Platform)
	assert.Equal(t, int64(2000), cfg.DeviceLog.IntervalMs)

	bt, err := cfg.StorageBusyTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, bt)

	ad, err := cfg.SimAuthDelay()
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, ad)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "bridged.yaml", `
logging:
  level: warn
  console: true
storage:
  driver: memory
inbound:
  spool_dir: /var/spool/bridged
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "/var/spool/bridged", cfg.Inbound.SpoolDir)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "bridged.json", `{"logginng": {"level": "info"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "bridged.json", `{"storage": {"busy_timeout": "soon"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "bridged.json", `{"storage": {"driver": "postgres"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGED_LOG_LEVEL", "trace")
	t.Setenv("BRIDGED_LOG_FORWARD", "true")
	t.Setenv("BRIDGED_LOG_FORWARD_LEVEL", "error")
	t.Setenv("BRIDGED_SPOOL_DIR", "/custom/spool")
	t.Setenv("BRIDGED_DEVICE_ID", "env-device-9")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Forward)
	assert.Equal(t, "error", cfg.Logging.ForwardLevel)
	assert.Equal(t, 5, cfg.Logging.ForwardRate)
	assert.Equal(t, "/custom/spool", cfg.Inbound.SpoolDir)
	assert.Equal(t, "env-device-9", cfg.Device.ID)
}

func TestLoadRejectsNegativeForwardRate(t *testing.T) {
	path := writeConfig(t, "bridged.json", `{"logging": {"forward": true, "forward_rate": -1}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward_rate")
}
