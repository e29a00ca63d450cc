package utils

import "net"

// FreeAddr returns a loopback "host:port" that was free at the time of the
// call.
func FreeAddr() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return listener.Addr().String(), nil
}
