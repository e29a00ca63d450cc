package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/openmined/localbox/internal/client/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

// newInitCmd writes the current flags, environment and config file values to
// the config file so that a bare `localbox` picks them up next time.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a LocalBox config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if force, _ := cmd.Flags().GetBool("force"); !force {
				existing, err := config.LoadConfig(cmd.Flag("config").Value.String())
				if err == nil {
					fmt.Fprintln(out, "LocalBox already initialized, use --force to overwrite")
					printConfig(out, existing)
					return nil
				}
				if !errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(out, "%s: %s\n", red.Render("ERROR"), err)
					return err
				}
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := cfg.Save(cfg.Path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintln(out, "LocalBox initialized")
			printConfig(out, cfg)
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func printConfig(out io.Writer, cfg *config.Config) {
	peer := cfg.PeerAddr
	if peer == "" {
		peer = gray.Render("none, receive only")
	}
	listen := cfg.ListenAddr
	if listen == "" {
		listen = config.DefaultListenAddr
	}

	fmt.Fprintf(out, "Config Path: %s\n", green.Render(cfg.Path))
	fmt.Fprintf(out, "Dir:         %s\n", cyan.Render(cfg.Dir))
	fmt.Fprintf(out, "Listen:      %s\n", cyan.Render(listen))
	fmt.Fprintf(out, "Peer:        %s\n", cyan.Render(peer))
}
