//go:build unix

package server

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr lets a restarted server rebind while old connections sit
// in TIME_WAIT.
func setReuseAddr(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = setReuseAddr(int(fd))
	})
	if err != nil {
		return err
	}
	return sockErr
}
