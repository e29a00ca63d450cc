package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/localbox/internal/client/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "localbox"}
	addRunFlags(cmd)
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := newTestRoot(t, "--config", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultDir, cfg.Dir)
	assert.Equal(t, config.DefaultListenAddr, cfg.ListenAddr)
	assert.Empty(t, cfg.PeerAddr)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, config.DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
}

func TestLoadConfig_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOCALBOX_DIR", dir)
	t.Setenv("LOCALBOX_PEER", "192.168.0.7:7100")
	t.Setenv("LOCALBOX_POLL_INTERVAL", "250ms")
	t.Setenv("LOCALBOX_BUFFER_SIZE", "8192")

	cmd := newTestRoot(t, "--config", filepath.Join(dir, "missing.json"))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, "192.168.0.7:7100", cfg.PeerAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8192, cfg.BufferSize)
}

func TestLoadConfig_FileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
	"dir": "`+filepath.ToSlash(dir)+`",
	"peer": "10.0.0.9:7100",
	"poll_interval": "2s",
	"transfer_retry": "30s",
	"log_level": "debug"
}`), 0o644))

	cmd := newTestRoot(t, "--config", configPath, "--peer", "10.0.0.10:7200")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, configPath, cfg.Path)
	assert.Equal(t, filepath.ToSlash(dir), cfg.Dir)
	assert.Equal(t, "10.0.0.10:7200", cfg.PeerAddr)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.TransferRetry)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_BadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0o644))

	_, err := loadConfig(newTestRoot(t, "--config", configPath))
	assert.ErrorContains(t, err, "config read")
}

func TestLogFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", ".localbox", "logs", "localbox.log"), logFilePath("/data"))
}
