// File: driver/tcp/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn adapts a real *net.TCPConn to api.NetConn plus the raw fd the
// reactor needs to register for read readiness.

package tcp

import (
	"net"
	"time"
)

// Conn is the real, net-backed implementation of api.NetConn used by the
// TCP driver, which holds it as a concrete *Conn.
type Conn struct {
	c *net.TCPConn
}

// Dial opens an outgoing TCP connection to addr ("host:port").
func Dial(addr string) (*Conn, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

func wrapConn(c net.Conn) *Conn {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	return &Conn{c: tc}
}

func (c *Conn) Read(buf []byte) (int, error)  { return c.c.Read(buf) }
func (c *Conn) Write(buf []byte) (int, error) { return c.c.Write(buf) }
func (c *Conn) Close() error                  { return c.c.Close() }

func (c *Conn) RemoteAddr() string { return c.c.RemoteAddr().String() }
func (c *Conn) LocalAddr() string  { return c.c.LocalAddr().String() }

// SetReadDeadline and SetWriteDeadline let the event loop do
// best-effort nonblocking I/O: send and receive on network handles never
// block the loop goroutine.
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.c.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.c.SetWriteDeadline(t) }

// fd exposes the raw file descriptor for reactor registration, per
// platform (fd_linux.go / fd_stub.go).
func (c *Conn) fd() (uintptr, error) {
	return connFd(c.c)
}
