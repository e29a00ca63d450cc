package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceSetup_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "box")

	w, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w.Setup())
	t.Cleanup(func() { _ = w.Unlock() })

	assert.DirExists(t, w.Root)
	assert.DirExists(t, w.MetadataDir)
	assert.DirExists(t, w.LogsDir)
	assert.Equal(t, filepath.Join(w.MetadataDir, "state.db"), w.StatePath)
	assert.Equal(t, filepath.Join(w.Root, ".localboxignore"), w.IgnorePath)
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	root := t.TempDir()

	w1, err := NewWorkspace(root)
	require.NoError(t, err)
	w2, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w1.Lock())

	err = w2.Lock()
	require.ErrorIs(t, err, ErrWorkspaceLocked)

	lockPath := filepath.Join(w1.MetadataDir, "localbox.lock")
	assert.FileExists(t, lockPath)

	require.NoError(t, w1.Unlock())
	_, statErr := os.Stat(lockPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	require.NoError(t, w2.Lock())
	t.Cleanup(func() { _ = w2.Unlock() })
}

func TestWorkspace_RootIsCanonical(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	link := filepath.Join(base, "link")
	require.NoError(t, os.Mkdir(real, 0o755))
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	viaLink, err := NewWorkspace(link)
	require.NoError(t, err)
	direct, err := NewWorkspace(real)
	require.NoError(t, err)

	assert.Equal(t, direct.Root, viaLink.Root)
	assert.Equal(t, direct.AbsPath("a.txt"), viaLink.AbsPath("a.txt"))
}

func TestWorkspace_Name(t *testing.T) {
	w, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	name, ok := w.Name(w.AbsPath("a.txt"))
	assert.True(t, ok)
	assert.Equal(t, "a.txt", name)

	_, ok = w.Name(filepath.Join(w.Root, "sub", "a.txt"))
	assert.False(t, ok)

	_, ok = w.Name("/elsewhere/a.txt")
	assert.False(t, ok)
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain", "a.txt", true},
		{"dotfile", ".hidden", true},
		{"spaces", "my notes.md", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"unix-separator", "sub/a.txt", false},
		{"traversal", "../etc/passwd", false},
		{"windows-separator", `sub\a.txt`, false},
		{"absolute", "/etc/passwd", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateName(c.input)
			if c.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}
