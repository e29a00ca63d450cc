package wireproto

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/openmined/localbox/internal/syncmsg"
)

const readBufferSize = 32 * 1024

// Conn is one peer connection. Reads go through a single buffered reader so
// that raw file bytes following a frame are never lost to read-ahead.
type Conn struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		r:   bufio.NewReaderSize(rwc, readBufferSize),
	}
}

func (c *Conn) Send(msg *syncmsg.Message) error {
	return WriteMessage(c.rwc, msg)
}

func (c *Conn) Recv() (*syncmsg.Message, error) {
	return ReadMessage(c.r)
}

// Expect reads the next frame and checks its type. A MsgError frame from the
// peer is returned as its *syncmsg.Error.
func (c *Conn) Expect(t syncmsg.MessageType) (*syncmsg.Message, error) {
	msg, err := c.Recv()
	if err != nil {
		return nil, err
	}
	if msg.Type == t {
		return msg, nil
	}
	if perr, ok := msg.Data.(*syncmsg.Error); ok {
		return nil, perr
	}
	return nil, fmt.Errorf("%w: expected %s, got %s", ErrProtocol, t, msg.Type)
}

// Reader returns the stream for raw file contents.
func (c *Conn) Reader() io.Reader {
	return c.r
}

// Writer returns the stream for raw file contents.
func (c *Conn) Writer() io.Writer {
	return c.rwc
}

// SetDeadline forwards to the underlying net.Conn, if there is one.
func (c *Conn) SetDeadline(t time.Time) error {
	if nc, ok := c.rwc.(net.Conn); ok {
		return nc.SetDeadline(t)
	}
	return nil
}

func (c *Conn) RemoteAddr() string {
	if nc, ok := c.rwc.(net.Conn); ok {
		return nc.RemoteAddr().String()
	}
	return "pipe"
}

func (c *Conn) Close() error {
	return c.rwc.Close()
}
