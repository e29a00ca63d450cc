// Package peerlink owns the TCP connections between two LocalBox peers: a
// server that accepts one peer at a time and a dialer that keeps an outbound
// connection alive.
package peerlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/openmined/localbox/internal/wireproto"
)

const acceptRetryDelay = 100 * time.Millisecond

// Handler runs for the lifetime of one connection.
type Handler func(ctx context.Context, conn *wireproto.Conn) error

type Server struct {
	addr     string
	hello    *syncmsg.Message
	handler  Handler
	listener net.Listener
	mu       sync.Mutex
}

// NewServer returns a server that greets every peer with hello and then hands
// the connection to handler.
func NewServer(addr string, hello *syncmsg.Message, handler Handler) *Server {
	return &Server{
		addr:    addr,
		hello:   hello,
		handler: handler,
	}
}

// Listen binds the listen address. Serve calls it if it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	slog.Info("peer server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve accepts peers one after another until ctx is done. Cancelling ctx
// closes the listener and the active connection.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()
	defer listener.Close()

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("peer server stopped")
				return nil
			}
			slog.Warn("peer server accept", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.serveConn(ctx, nc)
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	conn := wireproto.NewConn(nc)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	remote := conn.RemoteAddr()
	slog.Info("peer connected", "remote", remote)

	if err := conn.Send(s.hello); err != nil {
		slog.Warn("peer greeting", "remote", remote, "error", err)
		return
	}

	if err := s.handler(ctx, conn); err != nil && ctx.Err() == nil {
		slog.Warn("peer connection lost", "remote", remote, "error", err)
		return
	}
	slog.Info("peer disconnected", "remote", remote)
}
