package syncmsg

import "fmt"

type MessageType uint16

const (
	MsgHello MessageType = iota
	MsgError
	MsgFileHeader
	MsgReady
	MsgFileReceived
	MsgSyncCommand
	MsgSnapshot
	MsgSyncDone
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgError:
		return "ERROR"
	case MsgFileHeader:
		return "FILE_HEADER"
	case MsgReady:
		return "READY"
	case MsgFileReceived:
		return "FILE_RECEIVED"
	case MsgSyncCommand:
		return "SYNC_COMMAND"
	case MsgSnapshot:
		return "SNAPSHOT"
	case MsgSyncDone:
		return "SYNC_DONE"
	default:
		return fmt.Sprintf("???(%d)", t)
	}
}
