// File: driver/udp/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn adapts a real *net.UDPConn to api.PacketConn, plus the read
// deadline the event loop needs for cooperative (non-blocking) polling.
// Wraps a standard library connection behind the package's own narrow
// interface so drivers stay testable against fakes.

package udp

import (
	"net"
	"time"
)

// Conn is the real, net-backed implementation of api.PacketConn; the
// driver holds it behind its packetConn interface.
type Conn struct {
	pc *net.UDPConn
}

// Listen opens a UDP socket on localAddr ("host:port", "*:port" meaning
// INADDR_ANY, or ":0" for an ephemeral local port).
func Listen(localAddr string) (*Conn, error) {
	host, port, err := splitWildcardHost(localAddr)
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Conn{pc: pc}, nil
}

// splitWildcardHost turns "*:port" into INADDR_ANY ("") form.
func splitWildcardHost(addr string) (host, port string, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	if h == "*" {
		h = ""
	}
	return h, p, nil
}

func (c *Conn) ReadFrom(p []byte) (int, string, error) {
	n, addr, err := c.pc.ReadFromUDP(p)
	if addr == nil {
		return n, "", err
	}
	return n, addr.String(), err
}

func (c *Conn) WriteTo(p []byte, addr string) (int, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return 0, err
	}
	return c.pc.WriteToUDP(p, udpAddr)
}

func (c *Conn) LocalAddr() string {
	return c.pc.LocalAddr().String()
}

func (c *Conn) Close() error {
	return c.pc.Close()
}

// SetReadDeadline lets the driver's cooperative loop poll this socket
// without blocking the other vockets it owns.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.pc.SetReadDeadline(t)
}

// EnableBroadcast turns on SO_BROADCAST, needed to send to a subnet
// broadcast address for connect("udp://*:port"). Implemented per
// platform in conn_linux.go / conn_stub.go.
func (c *Conn) EnableBroadcast() error {
	return enableBroadcast(c.pc)
}

// LocalBroadcastAddress returns the IPv4 broadcast address of the first
// suitable (non-loopback, IPv4, up) network interface, for the
// connect("udp://*:port") wildcard semantics.
func LocalBroadcastAddress() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			bcast := make(net.IP, len(ip4))
			for i := range ip4 {
				bcast[i] = ip4[i] | ^mask[i]
			}
			return bcast.String(), nil
		}
	}
	return "255.255.255.255", nil
}
