package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/localbox/internal/client/config"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/utils"
)

const logFileName = "localbox.log"

// logFilePath is <dir>/.localbox/logs/localbox.log.
func logFilePath(dir string) string {
	return filepath.Join(dir, workspace.MetadataDirName, "logs", logFileName)
}

// setupLogger logs to the terminal with colors when it is one, and to the log
// file inside the mirrored directory. The returned func closes the file.
func setupLogger(cfg *config.Config) (func(), error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logFile := logFilePath(cfg.Dir)
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	return func() {
		file.Close()
	}, nil
}
