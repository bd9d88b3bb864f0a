//go:build !linux
// +build !linux

// File: driver/tcp/fd_stub.go
// Author: momentics <momentics@gmail.com>
//
// Portable fallback: fd extraction isn't needed by the stub reactor,
// which ignores registration content and ticks instead of polling fds.

package tcp

import "net"

func connFd(c *net.TCPConn) (uintptr, error) {
	return 0, nil
}
