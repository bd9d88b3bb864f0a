//go:build linux
// +build linux

// File: driver/tcp/fd_linux.go
// Author: momentics <momentics@gmail.com>
//
// Extracts the raw fd behind a *net.TCPConn for epoll registration,
// grounded on the same syscall.RawConn.Control pattern used by
// driver/udp/conn_linux.go for SO_BROADCAST.

package tcp

import "net"

func connFd(c *net.TCPConn) (uintptr, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	err = raw.Control(func(f uintptr) {
		fd = f
	})
	return fd, err
}
