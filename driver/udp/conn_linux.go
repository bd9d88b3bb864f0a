//go:build linux
// +build linux

// File: driver/udp/conn_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux SO_BROADCAST enablement for connect("udp://*:port"), using a
// syscall.RawConn Control callback to set the socket option directly.

package udp

import (
	"net"

	"golang.org/x/sys/unix"
)

func enableBroadcast(pc *net.UDPConn) error {
	raw, err := pc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
