package sync

import (
	"context"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	minIdleBackoff        = 100 * time.Millisecond
	DefaultMaxIdleBackoff = 5 * time.Second
)

// EchoSuppressor tracks paths that are being received from the peer. A
// suppressed path is never sent back, and a sync cycle only starts once no
// receive is in flight. It also remembers every path a receive started on
// since the last Mark, so a cycle can tell which entries the receive side
// owns.
type EchoSuppressor struct {
	inflight   mapset.Set[string]
	received   mapset.Set[string]
	maxBackoff time.Duration
}

func NewEchoSuppressor() *EchoSuppressor {
	return &EchoSuppressor{
		inflight:   mapset.NewSet[string](),
		received:   mapset.NewSet[string](),
		maxBackoff: DefaultMaxIdleBackoff,
	}
}

func (e *EchoSuppressor) SetMaxIdleBackoff(d time.Duration) {
	e.maxBackoff = d
}

func (e *EchoSuppressor) BeginReceive(path string) {
	e.inflight.Add(path)
	e.received.Add(path)
}

func (e *EchoSuppressor) IsSuppressed(path string) bool {
	return e.inflight.Contains(path)
}

// Commit lifts the suppression. Call it only after the path's post-receive
// mtime has been persisted.
func (e *EchoSuppressor) Commit(path string) {
	e.inflight.Remove(path)
}

// Mark forgets the paths received so far.
func (e *EchoSuppressor) Mark() {
	e.received.Clear()
}

// Received reports whether path is in flight or was received since Mark.
func (e *EchoSuppressor) Received(path string) bool {
	return e.inflight.Contains(path) || e.received.Contains(path)
}

// Held returns the paths in flight plus those received since Mark.
func (e *EchoSuppressor) Held() mapset.Set[string] {
	return e.inflight.Union(e.received)
}

func (e *EchoSuppressor) Len() int {
	return e.inflight.Cardinality()
}

// WaitIdle blocks until nothing is in flight, polling with a doubling backoff.
func (e *EchoSuppressor) WaitIdle(ctx context.Context) error {
	backoff := minIdleBackoff
	for e.inflight.Cardinality() > 0 {
		slog.Debug("waiting for inbound transfers", "inflight", e.inflight.Cardinality(), "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
	return nil
}
