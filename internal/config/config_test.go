package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().HTTPPort, cfg.HTTPPort)
	assert.Equal(t, Default().LogLevel, cfg.LogLevel)
}

func TestLoadOverridesKnownKeys(t *testing.T) {
	path := writeConfig(t, `
host: 10.0.0.5
http_port: 9000
mqtt_port: 1884
enable_ssl: true
token_expiration: 120
max_failed_attempts: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 1884, cfg.MQTTPort)
	assert.True(t, cfg.EnableSSL)
	assert.Equal(t, 120*time.Second, cfg.TokenExpiration)
	assert.Equal(t, 3, cfg.MaxFailedAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, Default().GRPCPort, cfg.GRPCPort)
}

func TestLoadPreservesUnknownKeysInExtra(t *testing.T) {
	path := writeConfig(t, `
host: localhost
modbus_poll_interval_ms: 250
custom_flag: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "250", cfg.Extra["modbus_poll_interval_ms"])
	assert.Equal(t, "true", cfg.Extra["custom_flag"])
	_, stillKnown := cfg.Extra["host"]
	assert.False(t, stillKnown)
}

func TestApplyFlagsOnlyOverridesChangedFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--http-port=9999"}))
	ApplyFlags(fs, &cfg)

	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, Default().GRPCPort, cfg.GRPCPort)
	assert.Equal(t, Default().Host, cfg.Host)
}
