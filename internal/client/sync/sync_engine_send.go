package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/wireproto"
)

// sendFile pushes one file, retrying every retry interval while the file is
// still being written. It returns the mtime of the contents that were sent.
func (se *SyncEngine) sendFile(ctx context.Context, peer *wireproto.Conn, f *LocalFile) (int64, error) {
	for {
		mtime, err := se.trySendFile(peer, f)
		if err == nil || !isTransient(err) {
			return mtime, err
		}

		slog.Warn("file busy, retrying", "path", f.Path, "in", se.retryInterval, "error", err)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(se.retryInterval):
		}
	}
}

func (se *SyncEngine) trySendFile(peer *wireproto.Conn, f *LocalFile) (int64, error) {
	name, ok := se.workspace.Name(f.Path)
	if !ok {
		return 0, fmt.Errorf("%s is outside %s", f.Path, se.workspace.Root)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}

	size := info.Size()
	if size == 0 {
		return 0, ErrEmptyFile
	}

	if err := peer.Send(syncmsg.NewFileHeader(name, size)); err != nil {
		return 0, peerError(err)
	}
	if _, err := peer.Expect(syncmsg.MsgReady); err != nil {
		var perr *syncmsg.Error
		if errors.As(err, &perr) {
			return 0, fmt.Errorf("peer refused %s: %w", name, perr)
		}
		return 0, peerError(err)
	}

	streamErr := streamFile(peer.Writer(), file, size, se.bufferSize)
	if errors.Is(streamErr, ErrPeerConnection) {
		return 0, streamErr
	}

	if _, err := peer.Expect(syncmsg.MsgFileReceived); err != nil {
		var perr *syncmsg.Error
		if errors.As(err, &perr) {
			return 0, fmt.Errorf("peer failed to store %s: %w", name, perr)
		}
		return 0, peerError(err)
	}
	if streamErr != nil {
		return 0, streamErr
	}

	slog.Info("file sent", "name", name, "size", humanize.Bytes(uint64(size)))
	return modTime(info), nil
}

// streamFile writes exactly size bytes of r to w in chunks of at most
// bufSize. The peer counts bytes, so a short or failed read is padded with
// zeros to keep the stream in step and reported afterwards. Growth past size
// is reported as ErrFileChanged.
func streamFile(w io.Writer, r io.Reader, size int64, bufSize int) error {
	buf := make([]byte, bufSize)
	var sent int64
	var readErr error

	for sent < size {
		n := int(min(int64(bufSize), size-sent))
		chunk := buf[:n]

		if readErr == nil {
			read, err := io.ReadFull(r, chunk)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					readErr = fmt.Errorf("%w: shrank to %d bytes", ErrFileChanged, sent+int64(read))
				} else {
					readErr = err
				}
				clear(chunk[read:])
			}
		} else {
			clear(chunk)
		}

		if _, err := w.Write(chunk); err != nil {
			return peerError(err)
		}
		sent += int64(n)
	}

	if readErr != nil {
		return readErr
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return fmt.Errorf("%w: grew past %d bytes", ErrFileChanged, size)
	}
	return nil
}
