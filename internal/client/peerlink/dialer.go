package peerlink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/wireproto"
)

const (
	DefaultDialTimeout       = 5 * time.Second
	DefaultReconnectInterval = 10 * time.Second
)

// Dialer keeps one outbound connection to the peer, reconnecting forever.
type Dialer struct {
	addr              string
	session           Handler
	dialTimeout       time.Duration
	reconnectInterval time.Duration
}

func NewDialer(addr string, session Handler) *Dialer {
	return &Dialer{
		addr:              addr,
		session:           session,
		dialTimeout:       DefaultDialTimeout,
		reconnectInterval: DefaultReconnectInterval,
	}
}

func (d *Dialer) SetDialTimeout(timeout time.Duration) {
	d.dialTimeout = timeout
}

func (d *Dialer) SetReconnectInterval(interval time.Duration) {
	d.reconnectInterval = interval
}

// Run dials the peer, waits for its greeting and runs the session. Whenever
// the dial or the session fails it waits the reconnect interval and starts
// over, until ctx is done.
func (d *Dialer) Run(ctx context.Context) error {
	for {
		err := d.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("peer link down", "addr", d.addr, "error", err, "retry", d.reconnectInterval)
		} else {
			slog.Info("peer session ended", "addr", d.addr, "retry", d.reconnectInterval)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.reconnectInterval):
		}
	}
}

func (d *Dialer) connectOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: d.dialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.addr, err)
	}

	conn := wireproto.NewConn(nc)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(d.dialTimeout))
	msg, err := conn.Expect(syncmsg.MsgHello)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	hello := msg.Data.(*syncmsg.Hello)
	slog.Info("peer link up", "addr", d.addr, "peer", hello.PeerID, "version", hello.Version, "dir", hello.Dir)

	return d.session(ctx, conn)
}
