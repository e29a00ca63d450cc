package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/queue"
	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/wireproto"
)

const (
	DefaultBufferSize            = 1024
	DefaultTransferRetryInterval = 10 * time.Second
)

type SyncEngine struct {
	workspace     *workspace.Workspace
	store         *StateStore
	ignoreList    *SyncIgnoreList
	suppressor    *EchoSuppressor
	bufferSize    int
	retryInterval time.Duration
	pollInterval  time.Duration
	muSync        sync.Mutex
}

func NewSyncEngine(
	workspace *workspace.Workspace,
	store *StateStore,
	ignore *SyncIgnoreList,
	suppressor *EchoSuppressor,
) *SyncEngine {
	return &SyncEngine{
		workspace:     workspace,
		store:         store,
		ignoreList:    ignore,
		suppressor:    suppressor,
		bufferSize:    DefaultBufferSize,
		retryInterval: DefaultTransferRetryInterval,
		pollInterval:  DefaultPollInterval,
	}
}

func (se *SyncEngine) SetBufferSize(size int) {
	if size > 0 {
		se.bufferSize = size
	}
}

func (se *SyncEngine) SetTransferRetryInterval(d time.Duration) {
	se.retryInterval = d
}

func (se *SyncEngine) SetPollInterval(d time.Duration) {
	se.pollInterval = d
}

// skipPath hides ignored and in-flight paths from the watcher.
func (se *SyncEngine) skipPath(path string) bool {
	return se.ignoreList.ShouldIgnore(path) || se.suppressor.IsSuppressed(path)
}

// RunCycle diffs the directory against the persisted state, pushes new and
// changed files to peer, asks the peer to reconcile against the resulting
// snapshot and persists the new state. Cycles never overlap.
func (se *SyncEngine) RunCycle(ctx context.Context, peer *wireproto.Conn) (*CycleResult, error) {
	se.muSync.Lock()
	defer se.muSync.Unlock()

	tStart := time.Now()

	se.suppressor.Mark()
	if err := se.suppressor.WaitIdle(ctx); err != nil {
		return nil, err
	}

	files, err := ScanDir(se.workspace.Root, se.ignoreList.ShouldIgnore)
	if err != nil {
		return nil, err
	}

	// paths received after Mark belong to the receive side: they stay in the
	// snapshot so the peer keeps them, but out of the diff and the state
	held := se.suppressor.Held()
	listed := make(DirectoryState, len(files))
	active := make([]*LocalFile, 0, len(files))
	for _, f := range files {
		listed[f.Path] = f.ModTime
		if !held.Contains(f.Path) {
			active = append(active, f)
		}
	}

	prior, err := se.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	diff := diffState(withoutPaths(prior, se.suppressor.Held()), active)
	current := stateOf(active)

	result := &CycleResult{
		New:          len(diff.New),
		Changed:      len(diff.Changed),
		Unchanged:    len(diff.Unchanged),
		LocalDeletes: len(diff.LocalDeletes),
	}

	pending := queue.New[*LocalFile]()
	pending.PushAll(diff.Queue, 0)
	failed := mapset.NewThreadUnsafeSet[string]()

	var cycleErr error
	for {
		f, ok := pending.Pop()
		if !ok {
			break
		}
		result.Queued = append(result.Queued, f.Path)

		if se.suppressor.Received(f.Path) {
			slog.Debug("skip received file", "path", f.Path)
			continue
		}

		mtime, err := se.sendFile(ctx, peer, f)
		if err == nil {
			current[f.Path] = mtime
			result.Sent = append(result.Sent, f.Path)
			continue
		}

		failed.Add(f.Path)
		if errors.Is(err, ErrPeerConnection) || ctx.Err() != nil {
			for _, rest := range pending.Drain() {
				result.Queued = append(result.Queued, rest.Path)
				failed.Add(rest.Path)
			}
			cycleErr = err
			break
		}
		slog.Error("file send failed", "path", f.Path, "error", err)
	}

	if cycleErr == nil {
		kind := syncmsg.SyncDirectory
		if result.HasTransfers() {
			kind = syncmsg.SyncAfterTransfer
		}
		deleted, err := se.sendSnapshot(peer, kind, withHeld(current, listed, se.suppressor.Held()))
		if err != nil {
			cycleErr = err
		}
		result.PeerDeleted = deleted
	}

	result.Failed = failed.ToSlice()

	state, err := se.persist(prior, withoutPaths(current, se.suppressor.Held()), failed)
	if err != nil {
		return result, errors.Join(cycleErr, fmt.Errorf("persist state: %w", err))
	}
	result.State = state

	slog.Info("sync cycle",
		"new", result.New,
		"changed", result.Changed,
		"unchanged", result.Unchanged,
		"deleted", result.LocalDeletes,
		"sent", len(result.Sent),
		"failed", failed.Cardinality(),
		"peerDeleted", result.PeerDeleted,
		"took", time.Since(tStart),
	)

	return result, cycleErr
}

// persist stores current as the new state. Failed sends keep their prior
// entry so the next cycle picks them up again. Entries written by the receive
// side during this cycle win over the listing, and paths received since the
// cycle started keep whatever the receive side recorded.
func (se *SyncEngine) persist(prior, current DirectoryState, failed mapset.Set[string]) (DirectoryState, error) {
	var saved DirectoryState
	err := se.store.Update(func(latest DirectoryState) (DirectoryState, error) {
		next := current.Clone()

		for path := range failed.Iter() {
			if mtime, ok := prior[path]; ok {
				next[path] = mtime
			} else {
				delete(next, path)
			}
		}

		for path, mtime := range latest {
			if was, ok := prior[path]; !ok || was != mtime {
				next[path] = mtime
			}
		}
		for path := range prior {
			if _, ok := latest[path]; !ok {
				delete(next, path)
			}
		}

		for path := range se.suppressor.Held().Iter() {
			if mtime, ok := latest[path]; ok {
				next[path] = mtime
			} else {
				delete(next, path)
			}
		}

		saved = next
		return next, nil
	})
	return saved, err
}

func withoutPaths(state DirectoryState, paths mapset.Set[string]) DirectoryState {
	out := state.Clone()
	for path := range paths.Iter() {
		delete(out, path)
	}
	return out
}

// withHeld adds the held paths to state, with their listed mtime when known.
func withHeld(state, listed DirectoryState, held mapset.Set[string]) DirectoryState {
	out := state.Clone()
	for path := range held.Iter() {
		out[path] = listed[path]
	}
	return out
}

func (se *SyncEngine) sendSnapshot(peer *wireproto.Conn, kind syncmsg.SyncKind, state DirectoryState) (int, error) {
	if err := peer.Send(syncmsg.NewSyncCommand(kind)); err != nil {
		return 0, peerError(err)
	}
	if _, err := peer.Expect(syncmsg.MsgReady); err != nil {
		return 0, peerError(err)
	}
	if err := peer.Send(syncmsg.NewSnapshot(state.Snapshot())); err != nil {
		return 0, peerError(err)
	}
	msg, err := peer.Expect(syncmsg.MsgSyncDone)
	if err != nil {
		return 0, peerError(err)
	}

	done := msg.Data.(*syncmsg.SyncDone)
	slog.Debug("snapshot sent", "kind", kind, "entries", len(state), "peerDeleted", done.Deleted)
	return done.Deleted, nil
}
