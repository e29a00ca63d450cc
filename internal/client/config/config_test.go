package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		Dir:      tmp,
		PeerAddr: "192.168.1.20:7100",
		Path:     filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.Dir))
	assert.True(t, filepath.IsAbs(cfg.Path))
	assert.Equal(t, ":7100", cfg.ListenAddr)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 10*time.Second, cfg.TransferRetry)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfig_Validate_PeerFromHostsFile(t *testing.T) {
	tmp := t.TempDir()
	hosts := filepath.Join(tmp, "hosts.txt")
	require.NoError(t, os.WriteFile(hosts, []byte("127.0.0.1 101\n"), 0o644))

	cfg := &Config{Dir: tmp, HostsFile: hosts}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:101", cfg.PeerAddr)

	// an explicit peer wins over the hosts file
	cfg = &Config{Dir: tmp, HostsFile: hosts, PeerAddr: "10.0.0.2:7100"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "10.0.0.2:7100", cfg.PeerAddr)
}

func TestConfig_Validate_ServerOnly(t *testing.T) {
	cfg := &Config{Dir: t.TempDir()}
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.PeerAddr)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no dir", Config{}, "directory"},
		{"bad listen", Config{Dir: tmp, ListenAddr: "7100"}, "listen address"},
		{"peer without host", Config{Dir: tmp, PeerAddr: ":7100"}, "peer address"},
		{"peer bad port", Config{Dir: tmp, PeerAddr: "host:http"}, "peer address"},
		{"peer port zero", Config{Dir: tmp, PeerAddr: "host:0"}, "peer address"},
		{"negative poll", Config{Dir: tmp, PollInterval: -time.Second}, "poll interval"},
		{"negative retry", Config{Dir: tmp, TransferRetry: -time.Second}, "transfer retry"},
		{"huge buffer", Config{Dir: tmp, BufferSize: 1 << 30}, "buffer size"},
		{"bad log level", Config{Dir: tmp, LogLevel: "chatty"}, "log level"},
		{"missing hosts file", Config{Dir: tmp, HostsFile: filepath.Join(tmp, "nope.txt")}, "hosts file"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.cfg
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestLoadHostsFile(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"legacy", "127.0.0.1 101", "127.0.0.1:101", false},
		{"comments and blanks", "# peer\n\n  10.0.0.5   7100  \n", "10.0.0.5:7100", false},
		{"hostname", "laptop.local 7100\nignored 1", "laptop.local:7100", false},
		{"ipv6", "::1 7100", "[::1]:7100", false},
		{"empty", "", "", true},
		{"one field", "127.0.0.1", "", true},
		{"colon form", "127.0.0.1:101", "", true},
		{"bad port", "127.0.0.1 abc", "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "hosts.txt")
			require.NoError(t, os.WriteFile(path, []byte(c.content), 0o644))

			got, err := LoadHostsFile(path)
			if c.wantErr {
				assert.ErrorIs(t, err, ErrHostsFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		_, err := ParseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.json")

	cfg := &Config{
		Dir:           tmp,
		PeerAddr:      "10.0.0.2:7100",
		PollInterval:  500 * time.Millisecond,
		TransferRetry: 30 * time.Second,
		BufferSize:    4096,
	}
	require.NoError(t, cfg.Save(path))
	assert.Equal(t, path, cfg.Path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"poll_interval": "500ms"`)
	assert.NotContains(t, string(raw), "reconnect_interval")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Dir, loaded.Dir)
	assert.Equal(t, cfg.PeerAddr, loaded.PeerAddr)
	assert.Equal(t, cfg.PollInterval, loaded.PollInterval)
	assert.Equal(t, cfg.TransferRetry, loaded.TransferRetry)
	assert.Zero(t, loaded.ReconnectInterval)
	assert.Equal(t, 4096, loaded.BufferSize)
	assert.Equal(t, path, loaded.Path)
}

func TestLoadConfig_Errors(t *testing.T) {
	tmp := t.TempDir()

	_, err := LoadConfig(filepath.Join(tmp, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(tmp, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"dir": "/x", "poll_interval": "soon"}`), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}
