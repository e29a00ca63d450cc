package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	database, err := Open(Memory)
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestOpen_CreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := Open(dbPath)
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestOpen_Schema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	schema := "CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v INTEGER);"

	database, err := Open(dbPath, WithSchema(schema), WithMaxConns(1))
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO kv (k, v) VALUES ('a', 1)")
	require.NoError(t, err)
	require.NoError(t, database.Close())

	database, err = Open(dbPath, WithSchema(schema))
	require.NoError(t, err)
	defer database.Close()

	var v int
	require.NoError(t, database.Get(&v, "SELECT v FROM kv WHERE k = 'a'"))
	assert.Equal(t, 1, v)
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := Open(Memory, WithSchema("CREATE TABLE ("))
	assert.ErrorContains(t, err, "apply schema")
}

func TestOpen_CustomPragmas(t *testing.T) {
	database, err := Open(Memory, WithPragmas("PRAGMA temp_store=MEMORY;"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY);")
	assert.NoError(t, err)
}

func TestOpen_GarbageFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i*7 + 3)
	}
	require.NoError(t, os.WriteFile(dbPath, garbage, 0o644))

	database, err := Open(dbPath)
	if err == nil {
		database.Close()
	}
	assert.Error(t, err)
}
