package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// startQuitWatch reads quit requests from in, piped or interactive. The
// prompt is only shown on a terminal.
func startQuitWatch(ctx context.Context, in *os.File, out io.Writer, cancel context.CancelFunc) {
	if isatty.IsTerminal(in.Fd()) {
		fmt.Fprintln(out, "press q and enter to quit")
	}
	go watchQuit(ctx, in, cancel)
}

// watchQuit cancels when a line reading "q" arrives on r.
func watchQuit(ctx context.Context, r io.Reader, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			slog.Info("quit requested")
			cancel()
			return
		}
	}
}
