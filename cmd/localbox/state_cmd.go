package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/openmined/localbox/internal/client/config"
	"github.com/openmined/localbox/internal/client/sync"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStateCmd())
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "List or reset the files LocalBox has recorded for a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ws, err := workspace.NewWorkspace(dir)
			if err != nil {
				return err
			}
			if !utils.FileExists(ws.StatePath) {
				fmt.Fprintf(cmd.OutOrStdout(), "no state recorded for %s\n", ws.Root)
				return nil
			}

			store := sync.NewStateStore(ws.StatePath)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			state, err := store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reset, _ := cmd.Flags().GetBool("reset"); reset {
				if err := store.Destroy(); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s forgotten in %s, every file is sent again on the next cycle\n",
					bold.Render(humanize.Comma(int64(len(state)))+" files"), cyan.Render(ws.Root))
				return err
			}

			rows := make([][]string, 0, len(state))
			for _, path := range state.Paths() {
				mtime := time.Unix(state[path], 0)
				rows = append(rows, []string{filepath.Base(path), humanize.Time(mtime), mtime.Format(time.DateTime)})
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(gray).
				Headers("NAME", "MODIFIED", "TIME").
				Rows(rows...)
			if _, err := fmt.Fprintln(out, t.Render()); err != nil {
				return err
			}

			_, err = fmt.Fprintf(out, "%s files tracked in %s\n", bold.Render(humanize.Comma(int64(len(state)))), cyan.Render(ws.Root))
			return err
		},
	}
	cmd.Flags().StringP("dir", "d", config.DefaultDir, "mirrored directory")
	cmd.Flags().Bool("reset", false, "move the recorded state aside")
	return cmd
}
