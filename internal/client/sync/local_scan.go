package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalFile is a regular file found directly in the watched directory.
type LocalFile struct {
	Path    string
	Size    int64
	ModTime int64
}

// SkipFunc reports whether a path should be left out of a scan.
type SkipFunc func(path string) bool

// ScanDir lists the regular files directly inside dir in name order.
// Subdirectories, symlinks and anything skip returns true for are left out.
func ScanDir(dir string, skip SkipFunc) ([]*LocalFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	files := make([]*LocalFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if skip != nil && skip(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("scan stat", "path", path, "error", err)
			}
			continue
		}

		files = append(files, &LocalFile{
			Path:    path,
			Size:    info.Size(),
			ModTime: modTime(info),
		})
	}

	return files, nil
}

// stateOf builds the DirectoryState of a scan.
func stateOf(files []*LocalFile) DirectoryState {
	state := make(DirectoryState, len(files))
	for _, f := range files {
		state[f.Path] = f.ModTime
	}
	return state
}
