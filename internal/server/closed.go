package server

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// isExpectedClose reports whether err is a normal end of a device
// connection: EOF, a closed socket, broken pipe, or reset by peer.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
