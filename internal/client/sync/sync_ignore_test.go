package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncIgnoreList_Defaults(t *testing.T) {
	baseDir := t.TempDir()
	ignore := NewSyncIgnoreList(baseDir)
	ignore.Load()

	ignored := []string{
		".localbox",
		".localbox/state.db",
		".localboxignore",
		".a.txt.lbpart",
		"files.lb",
		"hosts.txt",
	}
	for _, name := range ignored {
		assert.True(t, ignore.ShouldIgnore(name), name)
		assert.True(t, ignore.ShouldIgnore(filepath.Join(baseDir, name)), name)
	}

	kept := []string{"a.txt", "notes.localbox", "lbpart.txt", "report.pdf"}
	for _, name := range kept {
		assert.False(t, ignore.ShouldIgnore(name), name)
		assert.False(t, ignore.ShouldIgnore(filepath.Join(baseDir, name)), name)
	}
}

func TestSyncIgnoreList_CustomRules(t *testing.T) {
	baseDir := t.TempDir()
	custom := []byte(`
# editor files
*.swp
secret.txt
`)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, ".localboxignore"), custom, 0o644))

	ignore := NewSyncIgnoreList(baseDir)
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore(filepath.Join(baseDir, ".a.txt.swp")))
	assert.True(t, ignore.ShouldIgnore(filepath.Join(baseDir, "secret.txt")))
	assert.False(t, ignore.ShouldIgnore(filepath.Join(baseDir, "public.txt")))
	assert.True(t, ignore.ShouldIgnore(filepath.Join(baseDir, "hosts.txt")), "defaults still apply")
}

func TestSyncIgnoreList_UnloadedUsesDefaults(t *testing.T) {
	ignore := NewSyncIgnoreList(t.TempDir())
	assert.True(t, ignore.ShouldIgnore("x.lbpart"))
	assert.False(t, ignore.ShouldIgnore("x.txt"))
}

func TestSyncIgnoreList_AbsoluteOutsideBaseDir_NotIgnored(t *testing.T) {
	baseDir := t.TempDir()
	ignore := NewSyncIgnoreList(baseDir)
	ignore.Load()

	outside := filepath.Join(t.TempDir(), "hosts.txt")
	assert.False(t, ignore.ShouldIgnore(outside), "files outside baseDir should not be ignored")
}
