package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// files the program itself owns, never synced
var defaultIgnoreLines = []string{
	workspace.MetadataDirName,
	workspace.IgnoreFileName,
	"*.lbpart",
	// legacy state and peer files
	"files.lb",
	"hosts.txt",
}

type SyncIgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
	mu      sync.RWMutex
}

func NewSyncIgnoreList(baseDir string) *SyncIgnoreList {
	return &SyncIgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// Load compiles the default rules plus the lines of .localboxignore, if present.
func (s *SyncIgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, workspace.IgnoreFileName)
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	compiled := gitignore.CompileIgnoreLines(ignoreLines...)

	s.mu.Lock()
	s.ignore = compiled
	s.mu.Unlock()
}

// ShouldIgnore matches path against the rules. Absolute paths are matched
// relative to the watched directory; paths outside it are never ignored.
func (s *SyncIgnoreList) ShouldIgnore(path string) bool {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		path = rel
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignore.MatchesPath(path)
}
