// Package syncmsg defines the messages two LocalBox peers exchange.
package syncmsg

import "fmt"

// Message is one control frame on the wire. Data holds a pointer to the
// payload struct matching Type.
type Message struct {
	Type MessageType
	Data any
}

func (m *Message) String() string {
	return fmt.Sprintf("%s %+v", m.Type, m.Data)
}

// NewPayload returns a zero payload for t, ready to be decoded into.
func NewPayload(t MessageType) (any, error) {
	switch t {
	case MsgHello:
		return &Hello{}, nil
	case MsgError:
		return &Error{}, nil
	case MsgFileHeader:
		return &FileHeader{}, nil
	case MsgReady:
		return &Ready{}, nil
	case MsgFileReceived:
		return &FileReceived{}, nil
	case MsgSyncCommand:
		return &SyncCommand{}, nil
	case MsgSnapshot:
		return &Snapshot{}, nil
	case MsgSyncDone:
		return &SyncDone{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %d", t)
	}
}
