package syncmsg

// Hello is the greeting a server sends right after accepting a connection.
type Hello struct {
	PeerID  string `msgpack:"pid"`
	Version string `msgpack:"ver"`
	Dir     string `msgpack:"dir"`
}

func NewHello(peerID string, version string, dir string) *Message {
	return &Message{
		Type: MsgHello,
		Data: &Hello{
			PeerID:  peerID,
			Version: version,
			Dir:     dir,
		},
	}
}

// Ready acknowledges a FileHeader or a SyncCommand.
type Ready struct{}

func NewReady() *Message {
	return &Message{Type: MsgReady, Data: &Ready{}}
}
