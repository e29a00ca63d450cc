package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/localbox/internal/utils"
)

var (
	home, _                  = os.UserHomeDir()
	DefaultConfigPath        = filepath.Join(home, ".localbox", "config.json")
	DefaultDir               = filepath.Join(home, "LocalBox")
	DefaultListenAddr        = ":7100"
	DefaultPollInterval      = time.Second
	DefaultReconnectInterval = 10 * time.Second
	DefaultTransferRetry     = 10 * time.Second
	DefaultBufferSize        = 1024
	DefaultLogLevel          = "info"
)

const maxBufferSize = 1 << 20

var (
	ErrNoDir       = errors.New("sync directory is required")
	ErrHostsFormat = errors.New("hosts file must contain \"HOST PORT\"")
)

type Config struct {
	Dir               string        `json:"dir"`
	ListenAddr        string        `json:"listen"`
	PeerAddr          string        `json:"peer"`
	HostsFile         string        `json:"hosts_file"`
	PollInterval      time.Duration `json:"poll_interval"`
	ReconnectInterval time.Duration `json:"reconnect_interval"`
	TransferRetry     time.Duration `json:"transfer_retry"`
	BufferSize        int           `json:"buffer_size"`
	LogLevel          string        `json:"log_level"`
	Path              string        `json:"-"`
}

// Validate fills in defaults, resolves paths and checks addresses. When no
// peer address is given it is read from the hosts file, if one is set.
func (c *Config) Validate() error {
	var err error

	if c.Dir == "" {
		return ErrNoDir
	}
	if c.Dir, err = utils.ResolvePath(c.Dir); err != nil {
		return fmt.Errorf("invalid dir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if err := validateAddr(c.ListenAddr, true); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if c.PeerAddr == "" && c.HostsFile != "" {
		if c.HostsFile, err = utils.ResolvePath(c.HostsFile); err != nil {
			return fmt.Errorf("invalid hosts file: %w", err)
		}
		if c.PeerAddr, err = LoadHostsFile(c.HostsFile); err != nil {
			return err
		}
	}
	if c.PeerAddr != "" {
		if err := validateAddr(c.PeerAddr, false); err != nil {
			return fmt.Errorf("invalid peer address: %w", err)
		}
	}

	if c.PollInterval, err = durationOr(c.PollInterval, DefaultPollInterval, "poll interval"); err != nil {
		return err
	}
	if c.ReconnectInterval, err = durationOr(c.ReconnectInterval, DefaultReconnectInterval, "reconnect interval"); err != nil {
		return err
	}
	if c.TransferRetry, err = durationOr(c.TransferRetry, DefaultTransferRetry, "transfer retry"); err != nil {
		return err
	}

	switch {
	case c.BufferSize == 0:
		c.BufferSize = DefaultBufferSize
	case c.BufferSize < 0 || c.BufferSize > maxBufferSize:
		return fmt.Errorf("invalid buffer size %d: must be between 1 and %d", c.BufferSize, maxBufferSize)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// fileConfig is the on-disk form, durations written as "10s".
type fileConfig struct {
	Dir               string `json:"dir"`
	ListenAddr        string `json:"listen,omitempty"`
	PeerAddr          string `json:"peer,omitempty"`
	HostsFile         string `json:"hosts_file,omitempty"`
	PollInterval      string `json:"poll_interval,omitempty"`
	ReconnectInterval string `json:"reconnect_interval,omitempty"`
	TransferRetry     string `json:"transfer_retry,omitempty"`
	BufferSize        int    `json:"buffer_size,omitempty"`
	LogLevel          string `json:"log_level,omitempty"`
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// Save writes the config as JSON to path and remembers it in c.Path.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&fileConfig{
		Dir:               c.Dir,
		ListenAddr:        c.ListenAddr,
		PeerAddr:          c.PeerAddr,
		HostsFile:         c.HostsFile,
		PollInterval:      durationString(c.PollInterval),
		ReconnectInterval: durationString(c.ReconnectInterval),
		TransferRetry:     durationString(c.TransferRetry),
		BufferSize:        c.BufferSize,
		LogLevel:          c.LogLevel,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	c.Path = path
	return nil
}

// LoadConfig reads a config written by Save. It does not validate.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{
		Dir:        fc.Dir,
		ListenAddr: fc.ListenAddr,
		PeerAddr:   fc.PeerAddr,
		HostsFile:  fc.HostsFile,
		BufferSize: fc.BufferSize,
		LogLevel:   fc.LogLevel,
		Path:       path,
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.PollInterval, &cfg.PollInterval},
		{fc.ReconnectInterval, &cfg.ReconnectInterval},
		{fc.TransferRetry, &cfg.TransferRetry},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	return cfg, nil
}

// ParseLogLevel accepts debug, info, warn and error in any case.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// LoadHostsFile reads the peer address from the first line of a legacy
// hosts.txt file, written as "HOST PORT".
func LoadHostsFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open hosts file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: got %q", ErrHostsFormat, line)
		}
		addr := net.JoinHostPort(fields[0], fields[1])
		if err := validateAddr(addr, false); err != nil {
			return "", fmt.Errorf("%w: %w", ErrHostsFormat, err)
		}
		return addr, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read hosts file: %w", err)
	}
	return "", fmt.Errorf("%w: file is empty", ErrHostsFormat)
}

func validateAddr(addr string, allowEmptyHost bool) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" && !allowEmptyHost {
		return fmt.Errorf("missing host in %q", addr)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 || (p == 0 && !allowEmptyHost) {
		return fmt.Errorf("invalid port in %q", addr)
	}
	return nil
}

func durationOr(d, def time.Duration, name string) (time.Duration, error) {
	switch {
	case d == 0:
		return def, nil
	case d < 0:
		return 0, fmt.Errorf("invalid %s %s: must be positive", name, d)
	}
	return d, nil
}
