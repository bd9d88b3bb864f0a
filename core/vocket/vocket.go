// File: core/vocket/vocket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package vocket implements the virtual-socket state machine and routing
// engine: per-pattern routing rules over a table of peerings, a
// round-robin live-peerings list, and the application mailbox pair a
// driver polls. The peering table itself follows a create-on-first-use,
// destroy-on-close lifecycle, keyed by remote address, with the
// pattern-specific routing rules layered on top.

package vocket

import (
	"io"
	"strings"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/core/binding"
	"github.com/momentics/vtx/core/peering"
	"github.com/momentics/vtx/core/ringqueue"
)

// Vocket is one virtual socket: pattern semantics, route table over
// peerings, and the application-facing mailbox pair. Touched only by
// its owning driver's event loop — no internal locking.
type Vocket struct {
	Name    string
	Pattern api.Pattern
	Spec    api.PatternSpec
	Scheme  string // owning driver's endpoint scheme, e.g. "udp", "tcp"

	Outbox api.FrameQueue // application enqueues here to send
	Inbox  api.FrameQueue // driver enqueues here on receive

	bindings    map[string]*binding.Binding
	peerings    map[string]*peering.Peering
	peeringList []*peering.Peering
	live        []*peering.Peering

	replyTo           *peering.Peering
	lastSenderAddress string
}

// New creates a vocket for the given pattern with mailboxCapacity-sized
// application mailboxes. scheme is the owning driver's endpoint scheme
// ("udp", "tcp"), used to validate and strip ROUTER explicit addresses.
func New(name string, pattern api.Pattern, mailboxCapacity int, scheme string) *Vocket {
	return &Vocket{
		Name:     name,
		Pattern:  pattern,
		Spec:     api.PatternTable[pattern],
		Scheme:   scheme,
		Outbox:   ringqueue.New(mailboxCapacity),
		Inbox:    ringqueue.New(mailboxCapacity),
		bindings: make(map[string]*binding.Binding),
		peerings: make(map[string]*peering.Peering),
	}
}

// Bind idempotently creates (or returns the existing) binding for address.
func (v *Vocket) Bind(address string, handle io.Closer) (*binding.Binding, error) {
	if b, ok := v.bindings[address]; ok {
		return b, nil
	}
	b := binding.New(address, handle)
	v.bindings[address] = b
	return b, nil
}

// Connect idempotently creates (or returns the existing) outgoing
// peering for address, enforcing the pattern's max-peerings limit.
func (v *Vocket) Connect(address, sockAddr string, broadcast bool) (*peering.Peering, error) {
	if existing, ok := v.peerings[address]; ok {
		return existing, nil
	}
	if v.Spec.MaxPeerings > 0 && len(v.peeringList) >= v.Spec.MaxPeerings {
		return nil, api.ErrTooManyPeerings
	}
	p := peering.New(address, sockAddr, true, broadcast)
	v.peerings[p.TableKey()] = p
	v.peeringList = append(v.peeringList, p)
	return p, nil
}

// AcceptInbound creates a peering for an inbound OHAI from address,
// enforcing the pattern's max-peerings limit against new inbound
// acceptance. Returns created=false if a peering for address already
// exists (idempotent accept).
func (v *Vocket) AcceptInbound(address, sockAddr string) (p *peering.Peering, created bool, err error) {
	if existing, ok := v.peerings[address]; ok {
		return existing, false, nil
	}
	if v.Spec.MaxPeerings > 0 && len(v.peeringList) >= v.Spec.MaxPeerings {
		return nil, false, api.ErrMaxPeeringsOnBinding
	}
	p = peering.New(address, sockAddr, false, false)
	v.peerings[address] = p
	v.peeringList = append(v.peeringList, p)
	return p, true, nil
}

// Peering looks up a peering by its current table key.
func (v *Vocket) Peering(key string) (*peering.Peering, bool) {
	p, ok := v.peerings[key]
	return p, ok
}

// Peerings returns the stable-order peering list.
func (v *Vocket) Peerings() []*peering.Peering {
	return v.peeringList
}

// Rekey moves p from oldKey to its current TableKey() in the peering
// table, after a Focus or Unfocus call has changed that key.
func (v *Vocket) Rekey(p *peering.Peering, oldKey string) {
	if oldKey != p.TableKey() {
		delete(v.peerings, oldKey)
	}
	v.peerings[p.TableKey()] = p
}

// DestroyPeering removes p from every table: peering map, peering list,
// and live-peerings list.
func (v *Vocket) DestroyPeering(p *peering.Peering) {
	v.LowerLive(p)
	delete(v.peerings, p.TableKey())
	for i, existing := range v.peeringList {
		if existing == p {
			v.peeringList = append(v.peeringList[:i], v.peeringList[i+1:]...)
			break
		}
	}
	if v.replyTo == p {
		v.replyTo = nil
	}
}

// RaiseLive adds p to the live-peerings list if not already present.
func (v *Vocket) RaiseLive(p *peering.Peering) {
	for _, existing := range v.live {
		if existing == p {
			return
		}
	}
	v.live = append(v.live, p)
}

// LowerLive removes p from the live-peerings list.
func (v *Vocket) LowerLive(p *peering.Peering) {
	for i, existing := range v.live {
		if existing == p {
			v.live = append(v.live[:i], v.live[i+1:]...)
			return
		}
	}
}

// LivePeerings returns the current round-robin list, in rotation order.
func (v *Vocket) LivePeerings() []*peering.Peering {
	return v.live
}

// LiveCount returns the number of live peerings.
func (v *Vocket) LiveCount() int {
	return len(v.live)
}

// PollEligible reports whether the application mailbox should be polled:
// |live_peerings| >= min_peerings.
func (v *Vocket) PollEligible() bool {
	return len(v.live) >= v.Spec.MinLive
}

func (v *Vocket) frontLive() (*peering.Peering, bool) {
	if len(v.live) == 0 {
		return nil, false
	}
	return v.live[0], true
}

func (v *Vocket) rotateLive() {
	if len(v.live) == 0 {
		return
	}
	p := v.live[0]
	v.live = append(v.live[1:], p)
}

// Route applies the pattern's routing rule to an outbound message (one
// or more frames, the last carrying More == false), returning the
// peerings it must be sent to and the (possibly address-stripped)
// message to send on each. Returns a nil peering slice with a nil error
// for patterns where there's simply nothing to send to right now (e.g.
// PUBLISH with no live subscriber).
func (v *Vocket) Route(msg []api.Frame) ([]*peering.Peering, []api.Frame, error) {
	if len(msg) == 0 {
		return nil, nil, api.ErrPatternMisuse
	}
	switch v.Spec.Routing {
	case api.RouteNone:
		return nil, nil, api.NewError(api.ErrCodeInvalidArgument, "pattern does not route outbound messages")

	case api.RouteRequest:
		p, ok := v.frontLive()
		if !ok {
			return nil, nil, api.NewError(api.ErrCodeResourceExhausted, "no live peering for request")
		}
		if p.InFlightRequest != nil {
			return nil, nil, api.ErrPatternMisuse
		}
		v.rotateLive()
		last := msg[len(msg)-1]
		p.InFlightRequest = &last
		return []*peering.Peering{p}, msg, nil

	case api.RouteReply:
		if v.replyTo == nil {
			return nil, nil, api.ErrPatternMisuse
		}
		p := v.replyTo
		last := msg[len(msg)-1]
		p.LastReply = &last
		v.replyTo = nil
		return []*peering.Peering{p}, msg, nil

	case api.RouteDealer:
		p, ok := v.frontLive()
		if !ok {
			return nil, nil, api.NewError(api.ErrCodeResourceExhausted, "no live peering")
		}
		v.rotateLive()
		last := msg[len(msg)-1]
		p.LastReply = &last
		return []*peering.Peering{p}, msg, nil

	case api.RouteRouter:
		if len(msg) < 2 {
			return nil, nil, api.ErrPatternMisuse
		}
		// First frame is the scheme-qualified address of the target
		// peering (e.g. "udp://10.0.0.1:9000"); the table itself is
		// keyed by the bare "host:port" every driver uses, so the
		// scheme prefix must match this vocket's own driver and be
		// stripped before lookup.
		prefix := v.Scheme + "://"
		raw := string(msg[0].Body)
		if !strings.HasPrefix(raw, prefix) {
			return nil, nil, api.ErrInvalidEndpoint
		}
		address := raw[len(prefix):]
		p, ok := v.peerings[address]
		if !ok || p.State != peering.Alive {
			return nil, nil, api.ErrNoSuchVocket
		}
		return []*peering.Peering{p}, msg[1:], nil

	case api.RoutePublish:
		if len(v.live) == 0 {
			return nil, nil, nil
		}
		targets := make([]*peering.Peering, len(v.live))
		copy(targets, v.live)
		return targets, msg, nil

	case api.RouteSingle:
		if len(v.live) == 0 {
			return nil, nil, api.ErrPatternMisuse
		}
		return []*peering.Peering{v.live[0]}, msg, nil

	default:
		return nil, nil, api.ErrPatternMisuse
	}
}

// Deliver accepts an inbound message from peering p, capturing reply-to
// context for REPLY/DEALER routing and updating the last-sender address
// getmeta("sender") reports.
func (v *Vocket) Deliver(msg []api.Frame, p *peering.Peering, senderAddress string) {
	if !v.Spec.AcceptsInput {
		return
	}
	v.lastSenderAddress = senderAddress
	if v.Spec.Routing == api.RouteReply || v.Spec.Routing == api.RouteDealer {
		v.replyTo = p
	}
	for _, f := range msg {
		v.Inbox.Store(f)
	}
}

// GetMeta implements the vocket side of the registry's getmeta control
// operation. Only "sender" is defined.
func (v *Vocket) GetMeta(name string) (string, error) {
	if name == "sender" {
		return v.lastSenderAddress, nil
	}
	return "", api.ErrInvalidEndpoint
}

// Close tears down every binding and peering owned by this vocket.
func (v *Vocket) Close() error {
	for _, b := range v.bindings {
		b.Close()
	}
	v.bindings = make(map[string]*binding.Binding)
	v.peerings = make(map[string]*peering.Peering)
	v.peeringList = nil
	v.live = nil
	v.replyTo = nil
	return nil
}
