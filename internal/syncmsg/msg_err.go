package syncmsg

import "fmt"

const (
	ErrCodeInvalidName = 400
	ErrCodeIgnored     = 403
	ErrCodeWrite       = 500
)

// Error is sent by a receiver that refuses a FileHeader.
type Error struct {
	Code    int    `msgpack:"cod"`
	Name    string `msgpack:"nam"`
	Message string `msgpack:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("peer error %d for %q: %s", e.Code, e.Name, e.Message)
}

func NewError(code int, name string, msg string) *Message {
	return &Message{
		Type: MsgError,
		Data: &Error{
			Code:    code,
			Name:    name,
			Message: msg,
		},
	}
}
