package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/localbox/internal/client/config"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 10 * time.Second
	tick    = 50 * time.Millisecond
)

func newTestClient(t *testing.T, dir, listen, peer string) *Client {
	t.Helper()

	cfg := &config.Config{
		Dir:               dir,
		ListenAddr:        listen,
		PeerAddr:          peer,
		PollInterval:      50 * time.Millisecond,
		ReconnectInterval: 100 * time.Millisecond,
		TransferRetry:     100 * time.Millisecond,
		LogLevel:          "debug",
	}
	require.NoError(t, cfg.Validate())

	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// startClient runs c in the background and stops it when the test ends.
func startClient(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("client did not stop")
		}
	})

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", c.ListenAddr(), time.Second)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, waitFor, tick, "client never started listening")
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func TestClient_MirrorsToPeer(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	addrB, err := utils.FreeAddr()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dirA, "notes.txt"), []byte("from A"), 0o644))

	b := newTestClient(t, dirB, addrB, "")
	startClient(t, b)

	a := newTestClient(t, dirA, "127.0.0.1:0", addrB)
	startClient(t, a)

	mirrored := filepath.Join(dirB, "notes.txt")
	require.Eventually(t, func() bool {
		return readFile(mirrored) == "from A"
	}, waitFor, tick)

	// the receiving side never gets its metadata copied over
	assert.NoFileExists(t, filepath.Join(dirB, workspace.MetadataDirName, "notes.txt"))
	assert.NotEmpty(t, a.PeerID())

	require.NoError(t, os.Remove(filepath.Join(dirA, "notes.txt")))
	require.Eventually(t, func() bool {
		_, err := os.Stat(mirrored)
		return os.IsNotExist(err)
	}, waitFor, tick)
}

func TestClient_ReceiveOnlyKeepsLocalFiles(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	addrA, err := utils.FreeAddr()
	require.NoError(t, err)

	// A listens but has no peer; B dials A and would push its files there,
	// while nothing of A's ever reaches B
	a := newTestClient(t, dirA, addrA, "")
	startClient(t, a)

	require.NoError(t, os.WriteFile(filepath.Join(dirB, "b.txt"), []byte("from B"), 0o644))
	b := newTestClient(t, dirB, "127.0.0.1:0", addrA)
	startClient(t, b)

	require.Eventually(t, func() bool {
		return readFile(filepath.Join(dirA, "b.txt")) == "from B"
	}, waitFor, tick)

	require.NoError(t, os.WriteFile(filepath.Join(dirA, "a.txt"), []byte("from A"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dirB, "a.txt"))
}

func TestClient_SecondInstanceIsLocked(t *testing.T) {
	dir := t.TempDir()

	first := newTestClient(t, dir, "127.0.0.1:0", "")
	startClient(t, first)

	second := newTestClient(t, dir, "127.0.0.1:0", "")
	err := second.Start(context.Background())
	assert.ErrorIs(t, err, workspace.ErrWorkspaceLocked)
}
