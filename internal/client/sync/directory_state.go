package sync

import (
	"os"
	"path/filepath"
	"sort"
)

// DirectoryState maps the canonical absolute path of every file believed to
// exist in the watched directory to its modification time in unix seconds.
type DirectoryState map[string]int64

func (s DirectoryState) Clone() DirectoryState {
	clone := make(DirectoryState, len(s))
	for path, mtime := range s {
		clone[path] = mtime
	}
	return clone
}

// Paths returns the tracked paths in lexical order.
func (s DirectoryState) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether both states track the same paths with the same times.
func (s DirectoryState) Equal(other DirectoryState) bool {
	if len(s) != len(other) {
		return false
	}
	for path, mtime := range s {
		if v, ok := other[path]; !ok || v != mtime {
			return false
		}
	}
	return true
}

// Snapshot keys the state by file name, the form sent to the peer.
func (s DirectoryState) Snapshot() map[string]int64 {
	entries := make(map[string]int64, len(s))
	for path, mtime := range s {
		entries[filepath.Base(path)] = mtime
	}
	return entries
}

// modTime is the second resolution timestamp tracked for a file.
func modTime(info os.FileInfo) int64 {
	return info.ModTime().Unix()
}
