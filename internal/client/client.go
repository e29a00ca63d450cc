package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/openmined/localbox/internal/client/config"
	"github.com/openmined/localbox/internal/client/peerlink"
	"github.com/openmined/localbox/internal/client/sync"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/version"
	"golang.org/x/sync/errgroup"
)

// Client is one LocalBox peer: it serves the inbound side of the link and,
// when a peer address is configured, dials out and pushes local changes.
type Client struct {
	config    *config.Config
	peerID    string
	workspace *workspace.Workspace
	store     *sync.StateStore
	ignore    *sync.SyncIgnoreList
	engine    *sync.SyncEngine
	server    *peerlink.Server
	dialer    *peerlink.Dialer
}

func New(cfg *config.Config) (*Client, error) {
	ws, err := workspace.NewWorkspace(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	store := sync.NewStateStore(ws.StatePath)
	ignore := sync.NewSyncIgnoreList(ws.Root)
	engine := sync.NewSyncEngine(ws, store, ignore, sync.NewEchoSuppressor())
	engine.SetBufferSize(cfg.BufferSize)
	engine.SetPollInterval(cfg.PollInterval)
	engine.SetTransferRetryInterval(cfg.TransferRetry)

	peerID := newPeerID()
	hello := syncmsg.NewHello(peerID, version.Current().Version, filepath.Base(ws.Root))
	server := peerlink.NewServer(cfg.ListenAddr, hello, engine.Receive)

	var dialer *peerlink.Dialer
	if cfg.PeerAddr != "" {
		dialer = peerlink.NewDialer(cfg.PeerAddr, engine.RunSession)
		dialer.SetReconnectInterval(cfg.ReconnectInterval)
	}

	return &Client{
		config:    cfg,
		peerID:    peerID,
		workspace: ws,
		store:     store,
		ignore:    ignore,
		engine:    engine,
		server:    server,
		dialer:    dialer,
	}, nil
}

// newPeerID is stable per machine when the OS exposes a machine id, random
// otherwise.
func newPeerID() string {
	id, err := machineid.ProtectedID(version.AppName)
	if err != nil || id == "" {
		slog.Debug("machine id unavailable", "error", err)
		return uuid.NewString()
	}
	return id
}

func (c *Client) PeerID() string {
	return c.peerID
}

func (c *Client) Workspace() *workspace.Workspace {
	return c.workspace
}

// ListenAddr is the address the peer server is bound to once Start is running.
func (c *Client) ListenAddr() string {
	return c.server.Addr()
}

// Start prepares the workspace and runs the peer server and dialer until ctx
// is done or one of them fails.
func (c *Client) Start(ctx context.Context) (err error) {
	slog.Info("localbox start", "version", version.Current().Short(), "peerID", c.peerID, "dir", c.workspace.Root, "listen", c.config.ListenAddr, "peer", c.config.PeerAddr)

	if err := c.workspace.Setup(); err != nil {
		return fmt.Errorf("failed to setup workspace: %w", err)
	}
	defer func() {
		if uerr := c.workspace.Unlock(); uerr != nil {
			slog.Warn("workspace unlock", "error", uerr)
		}
	}()

	if err := c.store.Open(); err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer func() {
		if cerr := c.store.Close(); cerr != nil && !errors.Is(cerr, sync.ErrStoreNotOpen) {
			err = errors.Join(err, fmt.Errorf("failed to close state: %w", cerr))
		}
	}()

	c.ignore.Load()

	if err := c.server.Listen(); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.server.Serve(egCtx)
	})

	if c.dialer != nil {
		eg.Go(func() error {
			return c.dialer.Run(egCtx)
		})
	} else {
		slog.Warn("no peer configured, receiving only")
	}

	err = eg.Wait()
	slog.Info("localbox stop")
	return err
}
