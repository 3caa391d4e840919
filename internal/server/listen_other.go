//go:build !linux

package server

import (
	"context"
	"net"
)

// listenTCP binds addr. Outside Linux the backlog is left to the OS.
func listenTCP(ctx context.Context, addr string, _ int) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	return lc.Listen(ctx, "tcp", addr)
}
