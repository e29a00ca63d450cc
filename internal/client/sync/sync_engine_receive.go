package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/localbox/internal/client/workspace"
	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/wireproto"
)

const partSuffix = ".lbpart"

// Receive serves one peer connection until it closes. Files land through a
// temp file and are recorded in the state before their suppression is
// lifted; snapshots trigger reconciliation. A clean close returns nil.
//
// Receive never takes the cycle lock, only the state store's.
func (se *SyncEngine) Receive(ctx context.Context, peer *wireproto.Conn) error {
	for {
		msg, err := peer.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("peer closed connection", "peer", peer.RemoteAddr())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return peerError(err)
		}

		switch data := msg.Data.(type) {
		case *syncmsg.FileHeader:
			err = se.receiveFile(peer, data)
		case *syncmsg.SyncCommand:
			err = se.receiveSnapshot(peer, data)
		default:
			err = peerError(fmt.Errorf("%w: unexpected %s", wireproto.ErrProtocol, msg.Type))
		}
		if err != nil {
			return err
		}
	}
}

func (se *SyncEngine) receiveFile(peer *wireproto.Conn, hdr *syncmsg.FileHeader) error {
	name := hdr.Name

	if err := workspace.ValidateName(name); err != nil {
		slog.Warn("refusing file", "name", name, "error", err)
		return peerError(peer.Send(syncmsg.NewError(syncmsg.ErrCodeInvalidName, name, err.Error())))
	}
	if hdr.Length <= 0 {
		return peerError(peer.Send(syncmsg.NewError(syncmsg.ErrCodeInvalidName, name, "invalid length")))
	}

	path := se.workspace.AbsPath(name)
	if se.ignoreList.ShouldIgnore(path) {
		slog.Warn("refusing ignored file", "name", name)
		return peerError(peer.Send(syncmsg.NewError(syncmsg.ErrCodeIgnored, name, "ignored")))
	}

	se.suppressor.BeginReceive(path)

	if err := peer.Send(syncmsg.NewReady()); err != nil {
		se.suppressor.Commit(path)
		return peerError(err)
	}

	tmpPath := filepath.Join(se.workspace.Root, "."+name+partSuffix)
	writeErr, connErr := receiveInto(tmpPath, peer.Reader(), hdr.Length, se.bufferSize)
	if connErr != nil {
		os.Remove(tmpPath)
		se.suppressor.Commit(path)
		return peerError(connErr)
	}

	if writeErr == nil {
		writeErr = se.storeReceived(tmpPath, path)
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		se.suppressor.Commit(path)
		slog.Error("file receive failed", "name", name, "error", writeErr)
		return peerError(peer.Send(syncmsg.NewError(syncmsg.ErrCodeWrite, name, writeErr.Error())))
	}

	se.suppressor.Commit(path)
	slog.Info("file received", "name", name, "size", humanize.Bytes(uint64(hdr.Length)))
	return peerError(peer.Send(syncmsg.NewFileReceived(name, hdr.Length)))
}

// receiveInto copies exactly length bytes from r into tmpPath. Once a write
// fails the remaining bytes are still consumed so the stream stays aligned.
func receiveInto(tmpPath string, r io.Reader, length int64, bufSize int) (writeErr error, connErr error) {
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		writeErr = err
	}

	buf := make([]byte, bufSize)
	var received int64
	for received < length {
		n := int(min(int64(bufSize), length-received))
		read, err := r.Read(buf[:n])
		if read > 0 && writeErr == nil {
			if _, err := file.Write(buf[:read]); err != nil {
				writeErr = err
			}
		}
		received += int64(read)

		if err != nil && received < length {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			connErr = fmt.Errorf("received %d of %d bytes: %w", received, length, err)
			break
		}
	}

	if file != nil {
		if err := file.Close(); err != nil && writeErr == nil {
			writeErr = err
		}
	}
	return writeErr, connErr
}

// storeReceived moves the temp file into place and records its mtime.
func (se *SyncEngine) storeReceived(tmpPath, path string) error {
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	return se.store.Update(func(state DirectoryState) (DirectoryState, error) {
		state[path] = modTime(info)
		return state, nil
	})
}

func (se *SyncEngine) receiveSnapshot(peer *wireproto.Conn, cmd *syncmsg.SyncCommand) error {
	if err := peer.Send(syncmsg.NewReady()); err != nil {
		return peerError(err)
	}

	msg, err := peer.Expect(syncmsg.MsgSnapshot)
	if err != nil {
		return peerError(err)
	}
	snapshot := msg.Data.(*syncmsg.Snapshot)

	deleted, err := se.Reconcile(snapshot.Entries)
	if err != nil {
		slog.Error("reconcile", "error", err)
	}
	slog.Debug("snapshot received", "kind", cmd.Kind, "entries", len(snapshot.Entries), "deleted", deleted)

	return peerError(peer.Send(syncmsg.NewSyncDone(deleted)))
}

// Reconcile deletes every local file the peer's snapshot does not list,
// except ignored and in-flight files, and drops them from the state.
func (se *SyncEngine) Reconcile(entries map[string]int64) (int, error) {
	keep := mapset.NewThreadUnsafeSetWithSize[string](len(entries))
	for name := range entries {
		if workspace.ValidateName(name) != nil {
			continue
		}
		keep.Add(se.workspace.AbsPath(name))
	}

	deleted := 0
	err := se.store.Update(func(state DirectoryState) (DirectoryState, error) {
		files, err := ScanDir(se.workspace.Root, se.ignoreList.ShouldIgnore)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if keep.Contains(f.Path) || se.suppressor.IsSuppressed(f.Path) {
				continue
			}
			if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("reconcile delete", "path", f.Path, "error", err)
				continue
			}
			delete(state, f.Path)
			deleted++
			slog.Info("file deleted", "name", filepath.Base(f.Path), "reason", "absent on peer")
		}

		return state, nil
	})
	return deleted, err
}
