// File: core/peering/peering.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package peering implements the peering lifecycle state machine: the
// relationship between a vocket and one remote address, tracked through
// DEAD/ALIVE transitions, broadcast focus/unfocus, and the in-flight
// request/reply slots REQ/REP/DEALER/ROUTER routing needs. The
// create/touch/expire lifecycle mirrors a keyed session table, applied
// here to a per-address network peering instead.

package peering

import (
	"github.com/momentics/vtx/api"
)

// State is the peering's lifecycle state.
type State int

const (
	Dead State = iota
	Alive
)

func (s State) String() string {
	if s == Alive {
		return "ALIVE"
	}
	return "DEAD"
}

// Peering is one relationship with one remote address on one vocket.
// Every field is touched only by its owning driver's event loop; there
// is no internal locking.
type Peering struct {
	Address      string // textual address, e.g. "10.0.0.4:9000"
	SockAddr     string // resolved "host:port" form used on the wire
	State        State
	Outgoing     bool // true if created by connect, false if by inbound OHAI
	Broadcast    bool // true if created from a wildcard "*" connect

	// BroadcastKey is the table key this peering is stored under while
	// Broadcast && !focused: the wildcard broadcast address. Empty
	// otherwise.
	BroadcastKey string
	// BroadcastSockAddr is the broadcast "host:port" a broadcast peering
	// sends to while unfocused. Empty otherwise.
	BroadcastSockAddr string
	Focused           bool // true once a concrete OHAI-OK has rekeyed the table entry

	// InFlightRequest is the frame currently awaiting a REP/DEALER reply
	// (REQ pattern). Nil when no request is outstanding.
	InFlightRequest *api.Frame

	// LastReply is the most recently sent reply (REP/ROUTER/DEALER),
	// retained so a duplicate request (same sequence, RESEND flag) can
	// be answered again without redelivering to the application.
	LastReply *api.Frame

	SendSeq     uint8 // per-peering sequence, incremented on each new REQUEST NOM
	LastSeq     uint8 // the sequence most recently handed out, for resend
	RecvSeq     uint8 // expected receive sequence
	HaveRecvSeq bool  // false until the first NOM has set RecvSeq

	ExpiryNanos    int64 // now + TIMEOUT on any alive activity
	SilentByNanos  int64 // now + TIMEOUT/3; a HUGZ is due once passed
	ReconnectNanos int64 // not read by either driver; TCP schedules redials through NextOhaiNanos

	NextOhaiNanos   int64 // while DEAD and outgoing: next time to send OHAI (UDP) or redial (TCP)
	NextResendNanos int64 // while an in-flight request exists: next RESEND due
}

// New creates a peering in the DEAD state.
func New(address, sockAddr string, outgoing, broadcast bool) *Peering {
	p := &Peering{
		Address:   address,
		SockAddr:  sockAddr,
		State:     Dead,
		Outgoing:  outgoing,
		Broadcast: broadcast,
	}
	if broadcast {
		p.BroadcastKey = address
		p.BroadcastSockAddr = sockAddr
	}
	return p
}

// MarkAlive transitions the peering to ALIVE and refreshes its expiry.
// Called on OHAI-OK (outgoing) or first inbound datagram (incoming).
func (p *Peering) MarkAlive(nowNanos, timeoutNanos int64) {
	p.State = Alive
	p.Touch(nowNanos, timeoutNanos)
}

// Touch refreshes expiry and silent-by timestamps on any activity from
// an alive peer: on any inbound datagram from an alive peer,
// expiry = now + TIMEOUT.
func (p *Peering) Touch(nowNanos, timeoutNanos int64) {
	p.ExpiryNanos = nowNanos + timeoutNanos
	p.SilentByNanos = nowNanos + timeoutNanos/3
}

// NoteSend refreshes only the silent-by clock: sending counts as
// activity for keep-alive purposes but, for an outgoing peering, does
// not by itself prove the peer is still there (only a received datagram
// refreshes Expiry).
func (p *Peering) NoteSend(nowNanos, timeoutNanos int64) {
	p.SilentByNanos = nowNanos + timeoutNanos/3
}

// Expired reports whether the peering's expiry has passed.
func (p *Peering) Expired(nowNanos int64) bool {
	return p.State == Alive && nowNanos >= p.ExpiryNanos
}

// DueForKeepAlive reports whether a HUGZ probe is due (silent_by reached).
func (p *Peering) DueForKeepAlive(nowNanos int64) bool {
	return p.State == Alive && nowNanos >= p.SilentByNanos
}

// Focus rekeys a broadcast peering onto a concrete peer address after
// its first OHAI-OK.
func (p *Peering) Focus(concreteAddress, concreteSockAddr string) {
	if !p.Broadcast || p.Focused {
		return
	}
	p.Focused = true
	p.Address = concreteAddress
	p.SockAddr = concreteSockAddr
}

// Unfocus reverts a focused broadcast peering back to its broadcast key
// so it can discover a new responder, on expiry.
func (p *Peering) Unfocus() {
	if !p.Broadcast || !p.Focused {
		return
	}
	p.Focused = false
	p.Address = p.BroadcastKey
	p.SockAddr = p.BroadcastSockAddr
}

// TableKey returns the key this peering is currently indexed under in
// its vocket's peering table: the broadcast key while an unfocused
// broadcast peering, else its concrete address.
func (p *Peering) TableKey() string {
	if p.Broadcast && !p.Focused {
		return p.BroadcastKey
	}
	return p.Address
}

// NextSendSeq returns the sequence to stamp on a new (non-retransmitted)
// REQUEST NOM, advancing the per-peering counter. The 4-bit wire
// sequence wraps every 16 requests; see DESIGN.md for why this
// implementation keeps the 4-bit width instead of widening it.
func (p *Peering) NextSendSeq() uint8 {
	seq := p.SendSeq & 0x0F
	p.LastSeq = seq
	p.SendSeq = (p.SendSeq + 1) & 0x0F
	return seq
}
