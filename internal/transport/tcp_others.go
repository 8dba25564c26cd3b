//go:build !linux

package transport

import (
	"syscall"
)

func setTCPOptions(network, address string, c syscall.RawConn) error {
	// Best effort outside Linux.
	return c.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
	})
}
