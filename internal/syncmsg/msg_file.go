package syncmsg

// FileHeader announces a file of Length bytes. Name is a plain base name.
type FileHeader struct {
	Name   string `msgpack:"nam"`
	Length int64  `msgpack:"len"`
}

// FileReceived is sent once the receiver has stored and recorded the file.
type FileReceived struct {
	Name   string `msgpack:"nam"`
	Length int64  `msgpack:"len"`
}

func NewFileHeader(name string, length int64) *Message {
	return &Message{
		Type: MsgFileHeader,
		Data: &FileHeader{
			Name:   name,
			Length: length,
		},
	}
}

func NewFileReceived(name string, length int64) *Message {
	return &Message{
		Type: MsgFileReceived,
		Data: &FileReceived{
			Name:   name,
			Length: length,
		},
	}
}
