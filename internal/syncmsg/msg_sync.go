package syncmsg

import "fmt"

type SyncKind uint8

const (
	// SyncAfterTransfer follows a cycle that pushed files.
	SyncAfterTransfer SyncKind = iota + 1
	// SyncDirectory is sent when a cycle had nothing to push, usually after a local delete.
	SyncDirectory
)

func (k SyncKind) String() string {
	switch k {
	case SyncAfterTransfer:
		return "after-transfer"
	case SyncDirectory:
		return "directory"
	default:
		return fmt.Sprintf("???(%d)", k)
	}
}

type SyncCommand struct {
	Kind SyncKind `msgpack:"knd"`
}

// Snapshot carries the sender's directory state keyed by file name, values
// are modification times in unix seconds.
type Snapshot struct {
	Entries map[string]int64 `msgpack:"ent"`
}

// SyncDone reports how many local files the receiver deleted while reconciling.
type SyncDone struct {
	Deleted int `msgpack:"del"`
}

func NewSyncCommand(kind SyncKind) *Message {
	return &Message{Type: MsgSyncCommand, Data: &SyncCommand{Kind: kind}}
}

func NewSnapshot(entries map[string]int64) *Message {
	if entries == nil {
		entries = map[string]int64{}
	}
	return &Message{Type: MsgSnapshot, Data: &Snapshot{Entries: entries}}
}

func NewSyncDone(deleted int) *Message {
	return &Message{Type: MsgSyncDone, Data: &SyncDone{Deleted: deleted}}
}
