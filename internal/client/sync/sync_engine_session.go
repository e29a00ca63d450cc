package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/localbox/internal/wireproto"
	"golang.org/x/sync/errgroup"
)

// RunSession drives one outbound connection: a full cycle right away, then one
// cycle per batch of watcher events until the connection fails or ctx ends.
func (se *SyncEngine) RunSession(ctx context.Context, peer *wireproto.Conn) error {
	watcher := NewFileWatcher(se.workspace.Root)
	watcher.SetPollInterval(se.pollInterval)
	watcher.FilterPaths(se.skipPath)
	if err := watcher.Seed(); err != nil {
		slog.Warn("file watcher seed", "error", err)
	}

	slog.Info("running initial sync", "peer", peer.RemoteAddr())
	if _, err := se.RunCycle(ctx, peer); err != nil {
		if errors.Is(err, ErrPeerConnection) || ctx.Err() != nil {
			return err
		}
		slog.Error("initial sync", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return watcher.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()
		return se.HandleEvents(egCtx, watcher.Events(), peer)
	})
	return eg.Wait()
}

// HandleEvents runs one cycle per received event. Events already queued when
// a cycle starts are folded into it.
func (se *SyncEngine) HandleEvents(ctx context.Context, events <-chan Event, peer *wireproto.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			coalesced := 1 + drainEvents(events)
			slog.Debug("sync triggered", "event", ev.Kind, "path", ev.Path, "coalesced", coalesced)

			if _, err := se.RunCycle(ctx, peer); err != nil {
				if errors.Is(err, ErrPeerConnection) {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("sync cycle", "error", err)
			}
		}
	}
}

func drainEvents(events <-chan Event) int {
	n := 0
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
