package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/localbox/internal/client"
	"github.com/openmined/localbox/internal/client/config"
	"github.com/openmined/localbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "LOCALBOX"

var rootCmd = &cobra.Command{
	Use:     "localbox",
	Short:   "Mirror a directory with one peer on the local network",
	Version: version.Current().Short(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true

		closeLog, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		startQuitWatch(ctx, os.Stdin, cmd.OutOrStdout(), cancel)

		defer slog.Info("Bye!")
		return c.Start(ctx)
	},
}

func init() {
	addRunFlags(rootCmd)
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("dir", "d", config.DefaultDir, "directory to mirror")
	cmd.Flags().StringP("listen", "l", config.DefaultListenAddr, "address to accept the peer on")
	cmd.Flags().StringP("peer", "p", "", "peer address as host:port")
	cmd.Flags().String("hosts-file", "", "read the peer from a \"HOST PORT\" file when --peer is not set")
	cmd.Flags().Duration("poll-interval", config.DefaultPollInterval, "how often the directory is polled")
	cmd.Flags().Duration("reconnect-interval", config.DefaultReconnectInterval, "wait between reconnect attempts")
	cmd.Flags().Duration("transfer-retry", config.DefaultTransferRetry, "wait before retrying a busy file")
	cmd.Flags().Int("buffer-size", config.DefaultBufferSize, "transfer chunk size in bytes")
	cmd.Flags().String("log-level", config.DefaultLogLevel, "debug, info, warn or error")
}

// flag name -> config key
var flagKeys = map[string]string{
	"dir":                "dir",
	"listen":             "listen",
	"peer":               "peer",
	"hosts-file":         "hosts_file",
	"poll-interval":      "poll_interval",
	"reconnect-interval": "reconnect_interval",
	"transfer-retry":     "transfer_retry",
	"buffer-size":        "buffer_size",
	"log-level":          "log_level",
}

// loadConfig merges flags, LOCALBOX_* environment variables and the config
// file, in that order of precedence. A missing config file is not an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	configPath := config.DefaultConfigPath
	if f := cmd.Flag("config"); f != nil {
		configPath = f.Value.String()
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	return &config.Config{
		Path:              configPath,
		Dir:               v.GetString("dir"),
		ListenAddr:        v.GetString("listen"),
		PeerAddr:          v.GetString("peer"),
		HostsFile:         v.GetString("hosts_file"),
		PollInterval:      v.GetDuration("poll_interval"),
		ReconnectInterval: v.GetDuration("reconnect_interval"),
		TransferRetry:     v.GetDuration("transfer_retry"),
		BufferSize:        v.GetInt("buffer_size"),
		LogLevel:          v.GetString("log_level"),
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
