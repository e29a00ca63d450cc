// Package wireproto frames LocalBox control messages on a byte stream.
//
// Every frame is [magic 'L' 'B'][version][type uint16][length uint32][msgpack payload],
// big endian. Raw file contents travel unframed between a READY and a
// FILE_RECEIVED message; see Conn.Reader and Conn.Writer.
package wireproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/openmined/localbox/internal/syncmsg"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	magic0  = byte('L')
	magic1  = byte('B')
	version = byte(1)

	headerSize = 9

	// MaxPayloadSize bounds a single control frame. Snapshots of very large
	// directories are the only frames that get anywhere near it.
	MaxPayloadSize = 64 << 20
)

var (
	// ErrProtocol is returned for frames that cannot be trusted: bad magic,
	// unknown version or type, oversized or undecodable payloads.
	ErrProtocol = errors.New("protocol error")
)

// Marshal encodes msg into a single frame.
func Marshal(msg *syncmsg.Message) ([]byte, error) {
	if msg == nil || msg.Data == nil {
		return nil, fmt.Errorf("%w: empty message", ErrProtocol)
	}

	payload, err := msgpack.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s payload too large (%d bytes)", ErrProtocol, msg.Type, len(payload))
	}

	buf := make([]byte, headerSize+len(payload))
	buf[0], buf[1], buf[2] = magic0, magic1, version
	binary.BigEndian.PutUint16(buf[3:5], uint16(msg.Type))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// WriteMessage writes msg as one frame.
func WriteMessage(w io.Writer, msg *syncmsg.Message) error {
	frame, err := Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame. A stream that ends cleanly before the first
// header byte returns io.EOF; a stream that ends inside a frame returns
// io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (*syncmsg.Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	if header[0] != magic0 || header[1] != magic1 {
		return nil, fmt.Errorf("%w: bad magic %#x %#x", ErrProtocol, header[0], header[1])
	}
	if header[2] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, header[2])
	}

	typ := syncmsg.MessageType(binary.BigEndian.Uint16(header[3:5]))
	size := binary.BigEndian.Uint32(header[5:9])
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s payload too large (%d bytes)", ErrProtocol, typ, size)
	}

	data, err := syncmsg.NewPayload(typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if err := msgpack.Unmarshal(payload, data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrProtocol, typ, err)
	}

	return &syncmsg.Message{Type: typ, Data: data}, nil
}
