package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openmined/localbox/internal/utils"
)

const (
	MetadataDirName = ".localbox"
	IgnoreFileName  = ".localboxignore"
	StateFileName   = "state.db"
	logsDir         = "logs"
	lockFile        = "localbox.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrInvalidName     = errors.New("invalid file name")
)

// Workspace is the watched directory plus the metadata LocalBox keeps inside it.
type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string
	StatePath   string
	IgnorePath  string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.CanonicalPath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metadata := filepath.Join(root, MetadataDirName)

	return &Workspace{
		Root:        root,
		MetadataDir: metadata,
		LogsDir:     filepath.Join(metadata, logsDir),
		StatePath:   filepath.Join(metadata, StateFileName),
		IgnorePath:  filepath.Join(root, IgnoreFileName),
		flock:       flock.New(filepath.Join(metadata, lockFile)),
	}, nil
}

func (w *Workspace) Lock() error {
	// a .localbox/localbox.lock file keeps a second instance off the same directory
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup creates the watched directory if needed, locks it and lays out the metadata dir.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	if err := utils.EnsureDir(w.LogsDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.LogsDir, err)
	}

	return nil
}

// AbsPath returns the canonical path of a file named name in the watched directory.
func (w *Workspace) AbsPath(name string) string {
	return filepath.Join(w.Root, name)
}

// Name returns the file name of path if it lives directly in the watched directory.
func (w *Workspace) Name(path string) (string, bool) {
	if filepath.Dir(filepath.Clean(path)) != w.Root {
		return "", false
	}
	return filepath.Base(path), true
}

// ValidateName checks that name is a plain file name with no directory parts.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
