// File: driver/tcp/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package tcp implements the TCP driver: a vocket's peerings are plain
// connections, framed with the codec's length-prefixed put-frame/get-frame
// contract and no additional preamble. Unlike driver/udp's per-socket
// deadline polling, connection readiness here is natural epoll territory
// (many fds, sparse activity), so this driver wires reactor's Linux epoll
// backend for read readiness and only falls back to cooperative ticking
// through the portable stub on other platforms.

package tcp

import (
	"log"
	"net"
	"time"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/control"
	"github.com/momentics/vtx/core/codec"
	"github.com/momentics/vtx/core/peering"
	"github.com/momentics/vtx/core/vocket"
	"github.com/momentics/vtx/reactor"
)

// pollInterval paces the reactor-forwarder/timer pass; readChunkSize
// bounds one non-blocking Read off a ready connection. TIMEOUT and the
// reconnect interval are runtime tunables now; see api.DriverTunables
// and api.DefaultTunables for their defaults.
const (
	pollInterval  = 5 * time.Millisecond
	readChunkSize = 64 * 1024
)

type tcpPeering struct {
	p          *peering.Peering
	vocketName string
	conn       *Conn
	readCodec  *codec.Codec
	writeCodec *codec.Codec
	pendingIn  []api.Frame
}

type vocketState struct {
	v          *vocket.Vocket
	listener   *net.TCPListener
	listenAddr string
}

type acceptedConn struct {
	vocketName string
	conn       *Conn
}

type dialResult struct {
	vocketName string
	address    string
	conn       *Conn
	err        error
}

// Driver is the TCP scheme's process-wide event loop.
type Driver struct {
	vockets map[string]*vocketState
	byFd    map[uintptr]*tcpPeering
	byPeer  map[*peering.Peering]*tcpPeering

	reactor  api.Reactor
	readyCh  chan uintptr
	acceptCh chan acceptedConn
	dialCh   chan dialResult

	metrics *control.MetricsRegistry

	control  chan controlRequest
	shutdown chan struct{}
	done     chan struct{}

	timeoutNanos int64
	reconnectIvl int64

	ringCapacity  int
	codecBatchCap int
	codecDataCap  int
	smallCutoff   int

	// Events, when set, receives api.PeeringUpEvent/api.PeeringDownEvent
	// on every peering state transition; sends are non-blocking.
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

type controlRequest struct {
	cmd   api.ControlCommand
	reply chan api.ControlReply
}

var _ api.Driver = (*Driver)(nil)

// NewDriver starts the TCP driver's event loop and reactor forwarder
// goroutines and returns immediately. Any zero field in tun falls back
// to api.DefaultTunables's value; ResendInterval is accepted but unused,
// since TCP relies on the transport's own delivery guarantee instead of
// REQUEST retransmission.
func NewDriver(metrics *control.MetricsRegistry, tun api.DriverTunables) (*Driver, error) {
	tun = applyTunableDefaults(tun)
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	d := &Driver{
		vockets:       make(map[string]*vocketState),
		byFd:          make(map[uintptr]*tcpPeering),
		byPeer:        make(map[*peering.Peering]*tcpPeering),
		reactor:       r,
		readyCh:       make(chan uintptr, 64),
		acceptCh:      make(chan acceptedConn),
		dialCh:        make(chan dialResult),
		metrics:       metrics,
		control:       make(chan controlRequest),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		timeoutNanos:  int64(tun.Timeout),
		reconnectIvl:  int64(tun.OhaiInterval),
		ringCapacity:  tun.RingCapacity,
		codecBatchCap: tun.CodecBatchCapacity,
		codecDataCap:  tun.CodecDataBytes,
		smallCutoff:   tun.SmallCutoff,
	}
	go d.reactorLoop()
	go d.runLoop()
	return d, nil
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
	if tun.Timeout == 0 {
		tun.Timeout = def.Timeout
	}
	if tun.OhaiInterval == 0 {
		tun.OhaiInterval = def.OhaiInterval
	}
	return tun
}

func (d *Driver) Scheme() string { return "tcp" }

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

// reactorLoop is a dedicated goroutine that owns the multiplexer call
// and forwards readiness into the loop's select, never touching driver
// state itself.
func (d *Driver) reactorLoop() {
	events := make([]api.Event, 64)
	for {
		select {
		case <-d.shutdown:
			return
		default:
		}
		n, err := d.reactor.Wait(events)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			select {
			case d.readyCh <- events[i].Fd:
			case <-d.shutdown:
				return
			}
		}
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
		case ac := <-d.acceptCh:
			d.onAccepted(ac)
		case dr := <-d.dialCh:
			d.onDialed(dr)
		case fd := <-d.readyCh:
			d.onReadable(fd)
		case <-ticker.C:
			d.drainOutboxes()
			d.runTimers()
		case <-d.shutdown:
			d.reactor.Close()
			for _, vs := range d.vockets {
				if vs.listener != nil {
					vs.listener.Close()
				}
			}
			for _, tp := range d.byPeer {
				tp.conn.Close()
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
		return api.ControlReply{Code: api.ErrCodeInvalidArgument}
	}
}

func (d *Driver) vocketFor(name string, pattern api.Pattern) *vocketState {
	if vs, ok := d.vockets[name]; ok {
		return vs
	}
	vs := &vocketState{v: vocket.New(name, pattern, d.ringCapacity, d.Scheme())}
	d.vockets[name] = vs
	return vs
}

func (d *Driver) handleBind(cmd api.ControlCommand) api.ControlReply {
	vs := d.vocketFor(cmd.Vocket, cmd.Pattern)
	addr, err := net.ResolveTCPAddr("tcp", cmd.Address)
	if err != nil {
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
	}
	vs.listener = ln
	vs.listenAddr = ln.Addr().String()
	if _, err := vs.v.Bind(cmd.Address, ln); err != nil {
		return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
	}
	go d.acceptLoop(cmd.Vocket, ln)
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) acceptLoop(vocketName string, ln *net.TCPListener) {
	for {
		c, err := ln.AcceptTCP()
		if err != nil {
			return
		}
		select {
		case d.acceptCh <- acceptedConn{vocketName: vocketName, conn: &Conn{c: c}}:
		case <-d.shutdown:
			c.Close()
			return
		}
	}
}

func (d *Driver) handleConnect(cmd api.ControlCommand) api.ControlReply {
	vs := d.vocketFor(cmd.Vocket, cmd.Pattern)
	p, err := vs.v.Connect(cmd.Address, cmd.Address, false)
	if err != nil {
		return controlReplyForError(err)
	}
	d.dialPeering(cmd.Vocket, p)
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) dialPeering(vocketName string, p *peering.Peering) {
	go func() {
		c, err := Dial(p.Address)
		select {
		case d.dialCh <- dialResult{vocketName: vocketName, address: p.Address, conn: c, err: err}:
		case <-d.shutdown:
			if c != nil {
				c.Close()
			}
		}
	}()
}

func (d *Driver) onDialed(dr dialResult) {
	vs, ok := d.vockets[dr.vocketName]
	if !ok {
		if dr.conn != nil {
			dr.conn.Close()
		}
		return
	}
	p, ok := vs.v.Peering(dr.address)
	if !ok {
		if dr.conn != nil {
			dr.conn.Close()
		}
		return
	}
	if dr.err != nil {
		p.NextOhaiNanos = time.Now().UnixNano() + d.reconnectIvl
		return
	}
	d.attach(vs, dr.vocketName, p, dr.conn)
}

func (d *Driver) onAccepted(ac acceptedConn) {
	vs, ok := d.vockets[ac.vocketName]
	if !ok {
		ac.conn.Close()
		return
	}
	p, _, err := vs.v.AcceptInbound(ac.conn.RemoteAddr(), ac.conn.RemoteAddr())
	if err != nil {
		ac.conn.Close()
		return
	}
	d.attach(vs, ac.vocketName, p, ac.conn)
}

func (d *Driver) attach(vs *vocketState, vocketName string, p *peering.Peering, conn *Conn) {
	now := time.Now().UnixNano()
	wasAlive := p.State == peering.Alive
	p.MarkAlive(now, d.timeoutNanos)
	if !wasAlive {
		vs.v.RaiseLive(p)
		d.emitUp(vocketName, p.Address)
	}
	tp := &tcpPeering{
		p:          p,
		vocketName: vocketName,
		conn:       conn,
		readCodec:  codec.New(d.codecDataCap, d.codecBatchCap, d.smallCutoff),
		writeCodec: codec.New(d.codecDataCap, d.codecBatchCap, d.smallCutoff),
	}
	d.byPeer[p] = tp
	fd, err := conn.fd()
	if err == nil && fd != 0 {
		d.byFd[fd] = tp
		d.reactor.Register(fd, fd)
	}
}

func (d *Driver) handleClose(cmd api.ControlCommand) api.ControlReply {
	vs, ok := d.vockets[cmd.Vocket]
	if !ok {
		return api.ControlReply{Code: api.ErrCodeNotFound, Err: api.ErrNoSuchVocket}
	}
	for _, p := range vs.v.Peerings() {
		if tp, ok := d.byPeer[p]; ok {
			d.detach(tp)
		}
	}
	if vs.listener != nil {
		vs.listener.Close()
	}
	vs.v.Close()
	delete(d.vockets, cmd.Vocket)
	return api.ControlReply{Code: api.ErrCodeOK}
}

func (d *Driver) handleGetMeta(cmd api.ControlCommand) api.ControlReply {
	vs, ok := d.vockets[cmd.Vocket]
	if !ok {
		return api.ControlReply{Code: api.ErrCodeNotFound, Err: api.ErrNoSuchVocket}
	}
	val, err := vs.v.GetMeta(cmd.Address)
	if err != nil {
		return api.ControlReply{Code: api.ErrCodeInvalidArgument, Err: err}
	}
	return api.ControlReply{Code: api.ErrCodeOK, Value: val}
}

func controlReplyForError(err error) api.ControlReply {
	switch err {
	case api.ErrTooManyPeerings:
		return api.ControlReply{Code: api.ErrCodeTooManyPeerings, Err: err}
	default:
		return api.ControlReply{Code: api.ErrCodeInternal, Err: err}
	}
}

func (d *Driver) detach(tp *tcpPeering) {
	if fd, err := tp.conn.fd(); err == nil {
		delete(d.byFd, fd)
	}
	delete(d.byPeer, tp.p)
	tp.conn.Close()
}

func (d *Driver) onReadable(fd uintptr) {
	tp, ok := d.byFd[fd]
	if !ok {
		return
	}
	buf := make([]byte, readChunkSize)
	tp.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
	n, err := tp.conn.Read(buf)
	if n > 0 {
		if putErr := tp.readCodec.PutBytes(buf[:n]); putErr != nil {
			d.metrics.Incr("tcp.codec_full", 1)
		} else {
			d.drainFrames(tp)
		}
		vs := d.vockets[tp.vocketName]
		if vs != nil {
			tp.p.Touch(time.Now().UnixNano(), d.timeoutNanos)
		}
	}
	if err != nil && !isTimeout(err) {
		d.closePeering(tp)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (d *Driver) drainFrames(tp *tcpPeering) {
	for {
		f, err := tp.readCodec.GetFrame()
		if err == api.ErrEmpty {
			return
		}
		if err != nil {
			d.metrics.Incr("tcp.decode_errors", 1)
			return
		}
		tp.pendingIn = append(tp.pendingIn, f)
		if !f.More {
			vs := d.vockets[tp.vocketName]
			if vs != nil {
				vs.v.Deliver(tp.pendingIn, tp.p, tp.conn.RemoteAddr())
			}
			tp.pendingIn = nil
		}
	}
}

func (d *Driver) closePeering(tp *tcpPeering) {
	vs, ok := d.vockets[tp.vocketName]
	d.detach(tp)
	if !ok {
		return
	}
	if tp.p.Outgoing {
		vs.v.LowerLive(tp.p)
		tp.p.State = peering.Dead
		tp.p.NextOhaiNanos = time.Now().UnixNano() + d.reconnectIvl
	} else {
		vs.v.DestroyPeering(tp.p)
	}
	d.emitDown(tp.vocketName, tp.p.Address, "connection closed")
}

// drainOutboxes moves queued outbound frames from every poll-eligible
// vocket into its peerings' write codecs and flushes whatever the
// socket accepts without blocking.
func (d *Driver) drainOutboxes() {
	for name, vs := range d.vockets {
		if !vs.v.PollEligible() {
			continue
		}
		var pending []api.Frame
		for {
			f, ok := vs.v.Outbox.DropOldest()
			if !ok {
				break
			}
			pending = append(pending, f)
			if !f.More {
				d.sendMessage(name, vs, pending)
				pending = nil
			}
		}
	}
	for _, tp := range d.byPeer {
		d.flush(tp)
	}
}

func (d *Driver) sendMessage(vocketName string, vs *vocketState, msg []api.Frame) {
	targets, outMsg, err := vs.v.Route(msg)
	if err != nil {
		d.metrics.Incr("tcp.route_errors", 1)
		return
	}
	for _, p := range targets {
		tp, ok := d.byPeer[p]
		if !ok || p.State != peering.Alive {
			continue
		}
		for _, f := range outMsg {
			if err := tp.writeCodec.PutFrame(f); err != nil {
				d.metrics.Incr("tcp.codec_full", 1)
				break
			}
		}
	}
}

func (d *Driver) flush(tp *tcpPeering) {
	tp.conn.SetWriteDeadline(time.Now().Add(1 * time.Millisecond))
	for {
		chunk, err := tp.writeCodec.GetBytes()
		if err == api.ErrEmpty {
			return
		}
		if err != nil {
			return
		}
		n, werr := tp.conn.Write(chunk)
		if n > 0 {
			tp.writeCodec.Tick(n)
			tp.p.NoteSend(time.Now().UnixNano(), d.timeoutNanos)
		}
		if werr != nil {
			if !isTimeout(werr) {
				d.closePeering(tp)
			}
			return
		}
		if n < len(chunk) {
			return
		}
	}
}

// runTimers retries dials for DEAD outgoing peerings and declares
// unresponsive ones dead, mirroring driver/udp's OHAI/expiry sweep but
// driven by TCP's own connection liveness instead of a keep-alive wire
// protocol.
func (d *Driver) runTimers() {
	now := time.Now().UnixNano()
	for name, vs := range d.vockets {
		for _, p := range vs.v.Peerings() {
			if p.State == peering.Dead && p.Outgoing && now >= p.NextOhaiNanos {
				p.NextOhaiNanos = now + d.reconnectIvl
				d.dialPeering(name, p)
			}
			if tp, ok := d.byPeer[p]; ok && p.Expired(now) {
				log.Printf("vtx/tcp: %s peering %s expired", name, p.Address)
				d.closePeering(tp)
			}
		}
	}
}
