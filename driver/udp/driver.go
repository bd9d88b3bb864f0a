// File: driver/udp/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package udp implements the UDP driver: the NOM-1 peering protocol
// (OHAI/OHAI-OK/HUGZ/HUGZ-OK/NOM/ROTFL) running a single-threaded
// cooperative event loop over one api.PacketConn per vocket. One
// goroutine owns all mutable state and is fed by channels rather than
// locks, suspending only on its control mailbox, socket polling, and
// timer sweep.

package udp

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/control"
	"github.com/momentics/vtx/core/peering"
	"github.com/momentics/vtx/core/vocket"
	"github.com/momentics/vtx/internal/taskqueue"
)

// pollInterval paces the cooperative event loop's pass over every
// vocket's socket, outbox, and timers. TIMEOUT, OHAI_IVL, and RESEND_IVL
// are runtime tunables now; see api.DriverTunables and
// api.DefaultTunables for their defaults.
const pollInterval = 5 * time.Millisecond

// packetConn is api.PacketConn plus the read deadline the cooperative
// event loop needs to poll many sockets without blocking on any one.
type packetConn interface {
	api.PacketConn
	SetReadDeadline(t time.Time) error
}

// vocketSocket bundles a vocket with the one packetConn it owns: one
// UDP handle per vocket, not one global socket.
type vocketSocket struct {
	v          *vocket.Vocket
	conn       packetConn
	localAddr  string
	pendingOut []api.Frame // accumulates Outbox frames until More == false
}

type controlRequest struct {
	cmd   api.ControlCommand
	reply chan api.ControlReply
}

// Driver is the UDP scheme's process-wide event loop.
type Driver struct {
	sockets map[string]*vocketSocket // keyed by vocket name
	metrics *control.MetricsRegistry
	tasks   *taskqueue.Queue

	control  chan controlRequest
	shutdown chan struct{}
	done     chan struct{}

	timeoutNanos int64
	ohaiIvl      int64
	resendIvl    int64

	ringCapacity  int
	codecBatchCap int
	codecDataCap  int
	smallCutoff   int
	msgMax        int

	// Events, when set, receives api.PeeringUpEvent/api.PeeringDownEvent
	// on every peering state transition, for an operator to observe
	// connectivity without polling. Sends are non-blocking; a full or
	// nil channel silently drops the event.
	Events chan<- any
}

func (d *Driver) emitUp(vocketName, address string) {
	if d.Events == nil {
		return
	}
	select {
	case d.Events <- api.PeeringUpEvent{Vocket: vocketName, Address: address}:
	default:
	}
}

func (d *Driver) emitDown(vocketName, address, reason string) {
	if d.Events == nil {
		return
	}
	select {
	case d.Events <- api.PeeringDownEvent{Vocket: vocketName, Address: address, Reason: reason}:
	default:
	}
}

var _ api.Driver = (*Driver)(nil)

// NewDriver starts the UDP driver's event loop goroutine and returns
// immediately; every call crossing into driver state goes through Submit.
// Any zero field in tun falls back to api.DefaultTunables's value.
func NewDriver(metrics *control.MetricsRegistry, tun api.DriverTunables) *Driver {
	tun = applyTunableDefaults(tun)
	d := &Driver{
		sockets:       make(map[string]*vocketSocket),
		metrics:       metrics,
		tasks:         taskqueue.New(),
		control:       make(chan controlRequest),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		timeoutNanos:  int64(tun.Timeout),
		ohaiIvl:       int64(tun.OhaiInterval),
		resendIvl:     int64(tun.ResendInterval),
		ringCapacity:  tun.RingCapacity,
		codecBatchCap: tun.CodecBatchCapacity,
		codecDataCap:  tun.CodecDataBytes,
		smallCutoff:   tun.SmallCutoff,
		msgMax:        tun.MsgMax,
	}
	go d.runLoop()
	return d
}

// applyTunableDefaults fills any zero-valued field of tun from
// api.DefaultTunables, so a caller building a partial DriverTunables
// (or passing the zero value) still gets working sizing and timing.
func applyTunableDefaults(tun api.DriverTunables) api.DriverTunables {
	def := api.DefaultTunables()
	if tun.RingCapacity == 0 {
		tun.RingCapacity = def.RingCapacity
	}
	if tun.CodecBatchCapacity == 0 {
		tun.CodecBatchCapacity = def.CodecBatchCapacity
	}
	if tun.CodecDataBytes == 0 {
		tun.CodecDataBytes = def.CodecDataBytes
	}
	if tun.SmallCutoff == 0 {
		tun.SmallCutoff = def.SmallCutoff
	}
	if tun.MsgMax == 0 {
		tun.MsgMax = def.MsgMax
	}
	if tun.Timeout == 0 {
		tun.Timeout = def.Timeout
	}
	if tun.OhaiInterval == 0 {
		tun.OhaiInterval = def.OhaiInterval
	}
	if tun.ResendInterval == 0 {
		tun.ResendInterval = def.ResendInterval
	}
	return tun
}

// Scheme identifies this driver to the registry.
func (d *Driver) Scheme() string { return "udp" }

// Submit sends cmd to the event loop and blocks for its reply, giving
// the registry the synchronous, totally-ordered semantics bind/connect/
// close/getmeta require.
func (d *Driver) Submit(cmd api.ControlCommand) api.ControlReply {
	req := controlRequest{cmd: cmd, reply: make(chan api.ControlReply, 1)}
	select {
	case d.control <- req:
	case <-d.done:
		return api.ControlReply{Code: api.ErrCodeInternal, Err: api.ErrClosed}
	}
	select {
	case rep := <-req.reply:
		return rep
	case <-d.done:
		return api.ControlReply{Code: api.ErrCodeInternal, Err: api.ErrClosed}
	}
}

func (d *Driver) runLoop() {
	defer close(d.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case req := <-d.control:
			req.reply <- d.handleControl(req.cmd)
		case <-ticker.C:
			d.pollSockets()
			d.drainOutboxes()
			d.runTimers()
			d.tasks.Drain()
		case <-d.shutdown:
			for _, vs := range d.sockets {
				vs.conn.Close()
			}
			return
		}
	}
}

func (d *Driver) handleControl(cmd api.ControlCommand) api.ControlReply {
	switch cmd.Op {
	case api.OpBind:
		return d.handleBind(cmd)
	case api.OpConnect:
		return d.handleConnect(cmd)
	case api.OpClose:
		return d.handleClose(cmd)
	case api.OpGetMeta:
		return d.handleGetMeta(cmd)
	case api.OpShutdown:
		close(d.shutdown)
		return api.ControlReply{Code: api.ErrCodeOK}
	default:
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: api.NewError(api.ErrCodeInvalidArgument, "unknown control op")}
	}
}

func (d *Driver) vocketSocketFor(name string, pattern api.Pattern) (*vocketSocket, error) {
	if vs, ok := d.sockets[name]; ok {
		return vs, nil
	}
	v := vocket.New(name, pattern, d.ringCapacity, d.Scheme())
	d.sockets[name] = &vocketSocket{v: v}
	return d.sockets[name], nil
}

func (d *Driver) ensureConn(vs *vocketSocket, localAddr string) error {
	if vs.conn != nil {
		return nil
	}
	conn, err := Listen(localAddr)
	if err != nil {
		return err
	}
	vs.conn = conn
	vs.localAddr = conn.LocalAddr()
	return nil
}

func (d *Driver) handleBind(cmd api.ControlCommand) api.ControlReply {
	vs, _ := d.vocketSocketFor(cmd.Vocket, cmd.Pattern)
	if err := d.ensureConn(vs, cmd.Address); err != nil {
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
	}
	if _, err := vs.v.Bind(cmd.Address, nil); err != nil {
		return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
	}
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) handleConnect(cmd api.ControlCommand) api.ControlReply {
	vs, _ := d.vocketSocketFor(cmd.Vocket, cmd.Pattern)
	broadcast := isWildcardConnect(cmd.Address)
	sockAddr := cmd.Address
	if broadcast {
		if err := d.ensureConn(vs, "*:0"); err != nil {
			return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
		}
		if c, ok := vs.conn.(*Conn); ok {
			if err := c.EnableBroadcast(); err != nil {
				return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
			}
		}
		bcast, err := LocalBroadcastAddress()
		if err != nil {
			return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
		}
		host, port, err := splitWildcardHost(cmd.Address)
		if err != nil {
			return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
		}
		_ = host
		sockAddr = fmt.Sprintf("%s:%s", bcast, port)
	} else if err := d.ensureConn(vs, "*:0"); err != nil {
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
	}
	p, err := vs.v.Connect(cmd.Address, sockAddr, broadcast)
	if err != nil {
		return controlReplyForError(err)
	}
	p.NextOhaiNanos = 0 // send first OHAI on the next timer pass
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) handleClose(cmd api.ControlCommand) api.ControlReply {
	vs, ok := d.sockets[cmd.Vocket]
	if !ok {
		return api.ControlReply{Code: api.ErrCodeNotFound, Err: api.ErrNoSuchVocket}
	}
	vs.v.Close()
	if vs.conn != nil {
		vs.conn.Close()
	}
	delete(d.sockets, cmd.Vocket)
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) handleGetMeta(cmd api.ControlCommand) api.ControlReply {
	vs, ok := d.sockets[cmd.Vocket]
	if !ok {
		return api.ControlReply{Code: api.ErrCodeNotFound, Err: api.ErrNoSuchVocket}
	}
	val, err := vs.v.GetMeta(cmd.Address)
	if err != nil {
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
	}
	return api.ControlReply{Code: api.ErrCodeOK, Value: val}
}

func isWildcardConnect(address string) bool {
	host, _, err := net.SplitHostPort(address)
	return err == nil && host == "*"
}

func controlReplyForError(err error) api.ControlReply {
	switch err {
	case api.ErrTooManyPeerings:
		return api.ControlReply{Code: api.ErrCodeTooManyPeerings, Err: err}
	default:
		return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
	}
}

// pollSockets reads every ready datagram off every vocket's socket
// without blocking, dispatching by NOM-1 command.
func (d *Driver) pollSockets() {
	buf := make([]byte, d.msgMax+2)
	for _, vs := range d.sockets {
		if vs.conn == nil {
			continue
		}
		for {
			vs.conn.SetReadDeadline(time.Now())
			n, from, err := vs.conn.ReadFrom(buf)
			if err != nil {
				break
			}
			raw := make([]byte, n)
			copy(raw, buf[:n])
			d.handleDatagram(vs, raw, from)
		}
	}
}

func (d *Driver) handleDatagram(vs *vocketSocket, raw []byte, from string) {
	dg, err := DecodeDatagram(raw)
	if err != nil {
		d.metrics.Incr("udp.decode_errors", 1)
		return
	}
	now := time.Now().UnixNano()
	switch dg.Command {
	case CmdOHAI:
		d.handleOhai(vs, dg, from, now)
	case CmdOHAIOK:
		d.handleOhaiOk(vs, dg, from, now)
	case CmdHUGZ:
		d.handleHugz(vs, dg, from, now)
	case CmdHUGZOK:
		if p, ok := vs.v.Peering(from); ok {
			p.Touch(now, d.timeoutNanos)
		}
	case CmdNOM:
		d.handleNom(vs, dg, from, now)
	case CmdROTFL:
		if p, ok := vs.v.Peering(from); ok {
			log.Printf("vtx/udp: %s received ROTFL from %s: %s", vs.v.Name, from, string(dg.Body))
			vs.v.DestroyPeering(p)
			d.emitDown(vs.v.Name, from, "rotfl")
		}
	}
}

func (d *Driver) handleOhai(vs *vocketSocket, dg Datagram, from string, now int64) {
	p, created, err := vs.v.AcceptInbound(from, from)
	if err != nil {
		d.sendControl(vs, from, CmdROTFL, 0, []byte(err.Error()))
		return
	}
	if created {
		p.MarkAlive(now, d.timeoutNanos)
		vs.v.RaiseLive(p)
		d.emitUp(vs.v.Name, from)
	} else {
		p.Touch(now, d.timeoutNanos)
	}
	d.sendControl(vs, from, CmdOHAIOK, 0, nil)
}

func (d *Driver) handleOhaiOk(vs *vocketSocket, dg Datagram, from string, now int64) {
	p, ok := vs.v.Peering(from)
	if !ok {
		for _, cand := range vs.v.Peerings() {
			if cand.Broadcast && !cand.Focused {
				p = cand
				ok = true
				break
			}
		}
		if !ok {
			return
		}
		oldKey := p.TableKey()
		p.Focus(from, from)
		vs.v.Rekey(p, oldKey)
	}
	wasAlive := p.State == peering.Alive
	p.MarkAlive(now, d.timeoutNanos)
	if !wasAlive {
		vs.v.RaiseLive(p)
		d.emitUp(vs.v.Name, p.Address)
	}
}

func (d *Driver) handleHugz(vs *vocketSocket, dg Datagram, from string, now int64) {
	if p, ok := vs.v.Peering(from); ok {
		p.Touch(now, d.timeoutNanos)
	}
	d.sendControl(vs, from, CmdHUGZOK, 0, nil)
}

func (d *Driver) handleNom(vs *vocketSocket, dg Datagram, from string, now int64) {
	p, ok := vs.v.Peering(from)
	if !ok {
		return
	}
	wasAlive := p.State == peering.Alive
	p.MarkAlive(now, d.timeoutNanos)
	if !wasAlive {
		vs.v.RaiseLive(p)
		d.emitUp(vs.v.Name, from)
	}

	seq := dg.Sequence & 0x0F
	if dg.Resend() && p.HaveRecvSeq && seq == p.RecvSeq && p.LastReply != nil {
		d.sendReplyNom(vs, p, []api.Frame{*p.LastReply})
		return
	}
	if p.HaveRecvSeq && seq == p.RecvSeq {
		return // duplicate, already delivered
	}
	p.RecvSeq = seq
	p.HaveRecvSeq = true

	if vs.v.Spec.Routing == api.RouteRequest && p.InFlightRequest != nil {
		p.InFlightRequest = nil // reply received, clears the in-flight slot
	}

	msg, err := d.decodeMessage(dg.Body)
	if err != nil {
		d.metrics.Incr("udp.decode_errors", 1)
		return
	}
	vs.v.Deliver(msg, p, from)
	d.metrics.Incr("udp.nom_received", 1)
}

// drainOutboxes moves every poll-eligible vocket's queued outbound
// frames into NOM datagrams.
func (d *Driver) drainOutboxes() {
	for _, vs := range d.sockets {
		if !vs.v.PollEligible() {
			continue
		}
		for {
			f, ok := vs.v.Outbox.DropOldest()
			if !ok {
				break
			}
			vs.pendingOut = append(vs.pendingOut, f)
			if !f.More {
				msg := vs.pendingOut
				vs.pendingOut = nil
				d.sendMessage(vs, msg)
			}
		}
	}
}

func (d *Driver) sendMessage(vs *vocketSocket, msg []api.Frame) {
	targets, outMsg, err := vs.v.Route(msg)
	if err != nil {
		d.metrics.Incr("udp.route_errors", 1)
		return
	}
	for _, p := range targets {
		if p.State != peering.Alive {
			continue
		}
		seq := p.NextSendSeq()
		d.sendNom(vs, p, outMsg, seq, false)
		if vs.v.Spec.Routing == api.RouteRequest {
			p.NextResendNanos = time.Now().UnixNano() + d.resendIvl
		}
	}
}

func (d *Driver) sendReplyNom(vs *vocketSocket, p *peering.Peering, msg []api.Frame) {
	d.sendNom(vs, p, msg, p.LastSeq, true)
}

func (d *Driver) sendNom(vs *vocketSocket, p *peering.Peering, msg []api.Frame, seq uint8, resend bool) {
	body, err := d.encodeMessage(msg)
	if err != nil {
		d.metrics.Incr("udp.encode_errors", 1)
		return
	}
	if len(body) > d.msgMax {
		log.Printf("vtx/udp: %s dropping oversize message to %s (%d > %d)", vs.v.Name, p.Address, len(body), d.msgMax)
		d.metrics.Incr("udp.oversize_dropped", 1)
		return
	}
	var flags uint8
	if resend {
		flags |= FlagResend
	}
	raw := EncodeDatagram(Datagram{Version: ProtocolVersion, Flags: flags, Command: CmdNOM, Sequence: seq, Body: body})
	if _, err := vs.conn.WriteTo(raw, p.SockAddr); err != nil {
		d.metrics.Incr("udp.write_errors", 1)
		return
	}
	p.NoteSend(time.Now().UnixNano(), d.timeoutNanos)
	d.metrics.Incr("udp.nom_sent", 1)
}

func (d *Driver) sendControl(vs *vocketSocket, addr string, cmd Command, seq uint8, body []byte) {
	raw := EncodeDatagram(Datagram{Version: ProtocolVersion, Command: cmd, Sequence: seq, Body: body})
	vs.conn.WriteTo(raw, addr)
}

// runTimers sweeps every vocket's peerings for OHAI retry, keep-alive,
// expiry, and request-resend due dates.
func (d *Driver) runTimers() {
	now := time.Now().UnixNano()
	for _, vs := range d.sockets {
		for _, p := range vs.v.Peerings() {
			d.tickPeering(vs, p, now)
		}
	}
}

func (d *Driver) tickPeering(vs *vocketSocket, p *peering.Peering, now int64) {
	if p.State == peering.Dead {
		if p.Outgoing && now >= p.NextOhaiNanos {
			d.sendControl(vs, p.SockAddr, CmdOHAI, 0, nil)
			p.NextOhaiNanos = now + d.ohaiIvl
		}
		return
	}
	if p.Expired(now) {
		address := p.Address
		switch {
		case p.Outgoing && p.Broadcast:
			vs.v.LowerLive(p)
			oldKey := p.TableKey()
			p.Unfocus()
			vs.v.Rekey(p, oldKey)
			p.State = peering.Dead
			p.NextOhaiNanos = now
		case p.Outgoing:
			vs.v.LowerLive(p)
			p.State = peering.Dead
			p.NextOhaiNanos = now
		default:
			// DestroyPeering mutates vs.v's peering list in place; this
			// call runs mid-range over that same list in runTimers, so
			// the removal is deferred to the Drain immediately following
			// runTimers instead of applied here.
			d.tasks.Submit(func() { vs.v.DestroyPeering(p) })
		}
		d.emitDown(vs.v.Name, address, "expired")
		return
	}
	if p.DueForKeepAlive(now) {
		d.sendControl(vs, p.SockAddr, CmdHUGZ, 0, nil)
		p.NoteSend(now, d.timeoutNanos)
	}
	if vs.v.Spec.Routing == api.RouteRequest && p.InFlightRequest != nil && now >= p.NextResendNanos {
		d.sendNom(vs, p, []api.Frame{*p.InFlightRequest}, p.LastSeq, true)
		p.NextResendNanos = now + d.resendIvl
	}
}
