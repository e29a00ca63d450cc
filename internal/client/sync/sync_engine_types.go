package sync

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrPeerConnection wraps every failure of the peer stream. It ends the
	// cycle and the session; PeerLink reconnects.
	ErrPeerConnection = errors.New("peer connection failed")

	// ErrFileChanged is returned when a file changed size while it was being sent.
	ErrFileChanged = errors.New("file changed during transfer")

	ErrEmptyFile = errors.New("empty files are not transferred")
)

func peerError(err error) error {
	if err == nil || errors.Is(err, ErrPeerConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPeerConnection, err)
}

// isTransient reports whether a send should be retried later: the file is
// still being written or the OS holds it busy.
func isTransient(err error) bool {
	return errors.Is(err, ErrFileChanged) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}

// stateDiff classifies a listing against the prior DirectoryState.
type stateDiff struct {
	New          []*LocalFile
	Changed      []*LocalFile
	Unchanged    []*LocalFile
	LocalDeletes []string
	// Queue is New and Changed in listing order, minus empty files
	Queue []*LocalFile
}

func diffState(prior DirectoryState, listing []*LocalFile) *stateDiff {
	diff := &stateDiff{}
	seen := make(map[string]struct{}, len(listing))

	for _, f := range listing {
		seen[f.Path] = struct{}{}

		mtime, exists := prior[f.Path]
		switch {
		case !exists:
			diff.New = append(diff.New, f)
		case mtime != f.ModTime:
			diff.Changed = append(diff.Changed, f)
		default:
			diff.Unchanged = append(diff.Unchanged, f)
			continue
		}

		if f.Size > 0 {
			diff.Queue = append(diff.Queue, f)
		}
	}

	for _, path := range prior.Paths() {
		if _, ok := seen[path]; !ok {
			diff.LocalDeletes = append(diff.LocalDeletes, path)
		}
	}

	return diff
}

// CycleResult describes one synchronization cycle.
type CycleResult struct {
	New          int
	Changed      int
	Unchanged    int
	LocalDeletes int
	// Queued holds the paths that were scheduled for transfer, in send order
	Queued []string
	Sent   []string
	Failed []string
	// PeerDeleted is the number of files the peer removed while reconciling
	PeerDeleted int
	State       DirectoryState
}

func (r *CycleResult) HasTransfers() bool {
	return len(r.Queued) > 0
}
