//go:build !linux
// +build !linux

// File: driver/udp/conn_stub.go
// Author: momentics <momentics@gmail.com>
//
// Portable fallback for platforms without the unix SO_BROADCAST sockopt
// wiring: a wildcard connect still works for unicast peerings, but the
// broadcast datagram itself may be rejected by the OS without this flag.

package udp

import "net"

func enableBroadcast(pc *net.UDPConn) error {
	return nil
}
