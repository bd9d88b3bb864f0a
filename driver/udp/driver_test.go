// File: driver/udp/driver_test.go
// Author: momentics <momentics@gmail.com>
//
// End-to-end scenarios run against real loopback UDP sockets:
// request/reply, publish/subscribe fanout, PAIR's max-peerings
// enforcement, and peering expiry/resurrection.

package udp

import (
	"testing"
	"time"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/control"
)

func newTestDriver() *Driver {
	d := NewDriver(control.NewMetricsRegistry(), api.DriverTunables{})
	d.timeoutNanos = int64(150 * time.Millisecond)
	d.ohaiIvl = int64(10 * time.Millisecond)
	d.resendIvl = int64(20 * time.Millisecond)
	return d
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestReqRepLoopback(t *testing.T) {
	srv := newTestDriver()
	cli := newTestDriver()

	rep := srv.Submit(api.ControlCommand{Op: api.OpBind, Pattern: api.REP, Vocket: "rep1", Address: "127.0.0.1:0"})
	if rep.Code != api.ErrCodeOK {
		t.Fatalf("bind rep: %+v", rep)
	}
	repAddr := srv.sockets["rep1"].localAddr

	reqConn := cli.Submit(api.ControlCommand{Op: api.OpConnect, Pattern: api.REQ, Vocket: "req1", Address: repAddr})
	if reqConn.Code != api.ErrCodeOK {
		t.Fatalf("connect req: %+v", reqConn)
	}

	waitFor(t, 2*time.Second, func() bool {
		return cli.sockets["req1"].v.LiveCount() == 1 && srv.sockets["rep1"].v.LiveCount() == 1
	})

	cli.sockets["req1"].v.Outbox.Store(api.Frame{Body: []byte("ping"), More: false})

	waitFor(t, 2*time.Second, func() bool {
		_, ok := srv.sockets["rep1"].v.Inbox.PeekOldest()
		return ok
	})
	f, _ := srv.sockets["rep1"].v.Inbox.DropOldest()
	if string(f.Body) != "ping" {
		t.Fatalf("server got %q, want ping", f.Body)
	}

	srv.sockets["rep1"].v.Outbox.Store(api.Frame{Body: []byte("pong"), More: false})

	waitFor(t, 2*time.Second, func() bool {
		_, ok := cli.sockets["req1"].v.Inbox.PeekOldest()
		return ok
	})
	f, _ = cli.sockets["req1"].v.Inbox.DropOldest()
	if string(f.Body) != "pong" {
		t.Fatalf("client got %q, want pong", f.Body)
	}

	srv.Submit(api.ControlCommand{Op: api.OpShutdown})
	cli.Submit(api.ControlCommand{Op: api.OpShutdown})
}

func TestPubSubFanout(t *testing.T) {
	pub := newTestDriver()
	sub1 := newTestDriver()
	sub2 := newTestDriver()

	bindRep := pub.Submit(api.ControlCommand{Op: api.OpBind, Pattern: api.PUB, Vocket: "pub1", Address: "127.0.0.1:0"})
	if bindRep.Code != api.ErrCodeOK {
		t.Fatalf("bind pub: %+v", bindRep)
	}
	pubAddr := pub.sockets["pub1"].localAddr

	for i, d := range []*Driver{sub1, sub2} {
		name := "sub" + string(rune('1'+i))
		r := d.Submit(api.ControlCommand{Op: api.OpConnect, Pattern: api.SUB, Vocket: name, Address: pubAddr})
		if r.Code != api.ErrCodeOK {
			t.Fatalf("connect %s: %+v", name, r)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		return pub.sockets["pub1"].v.LiveCount() == 2
	})

	pub.sockets["pub1"].v.Outbox.Store(api.Frame{Body: []byte("news"), More: false})

	waitFor(t, 2*time.Second, func() bool {
		_, ok1 := sub1.sockets["sub1"].v.Inbox.PeekOldest()
		_, ok2 := sub2.sockets["sub2"].v.Inbox.PeekOldest()
		return ok1 && ok2
	})

	f1, _ := sub1.sockets["sub1"].v.Inbox.DropOldest()
	f2, _ := sub2.sockets["sub2"].v.Inbox.DropOldest()
	if string(f1.Body) != "news" || string(f2.Body) != "news" {
		t.Fatalf("subscribers got %q / %q, want news", f1.Body, f2.Body)
	}

	pub.Submit(api.ControlCommand{Op: api.OpShutdown})
	sub1.Submit(api.ControlCommand{Op: api.OpShutdown})
	sub2.Submit(api.ControlCommand{Op: api.OpShutdown})
}

func TestPairRejectsSecondPeering(t *testing.T) {
	a := newTestDriver()

	r := a.Submit(api.ControlCommand{Op: api.OpBind, Pattern: api.PAIR, Vocket: "pair1", Address: "127.0.0.1:0"})
	if r.Code != api.ErrCodeOK {
		t.Fatalf("bind pair: %+v", r)
	}

	r1 := a.Submit(api.ControlCommand{Op: api.OpConnect, Pattern: api.PAIR, Vocket: "pair1", Address: "127.0.0.1:19999"})
	if r1.Code != api.ErrCodeOK {
		t.Fatalf("first connect should succeed: %+v", r1)
	}

	r2 := a.Submit(api.ControlCommand{Op: api.OpConnect, Pattern: api.PAIR, Vocket: "pair1", Address: "127.0.0.1:29999"})
	if r2.Code != api.ErrCodeTooManyPeerings {
		t.Fatalf("second connect should be rejected, got %+v", r2)
	}

	a.Submit(api.ControlCommand{Op: api.OpShutdown})
}

func TestPeeringExpiryAndResurrection(t *testing.T) {
	srv := newTestDriver()
	cli := newTestDriver()

	srv.Submit(api.ControlCommand{Op: api.OpBind, Pattern: api.REP, Vocket: "rep1", Address: "127.0.0.1:0"})
	repAddr := srv.sockets["rep1"].localAddr
	cli.Submit(api.ControlCommand{Op: api.OpConnect, Pattern: api.REQ, Vocket: "req1", Address: repAddr})

	waitFor(t, 2*time.Second, func() bool {
		return cli.sockets["req1"].v.LiveCount() == 1
	})

	// Simulate the server going silent: stop polling its socket by
	// shutting the loop down without closing the peering state.
	srv.shutdown <- struct{}{}
	<-srv.done

	waitFor(t, 2*time.Second, func() bool {
		return cli.sockets["req1"].v.LiveCount() == 0
	})

	srv2 := newTestDriver()
	bindRep2 := srv2.Submit(api.ControlCommand{Op: api.OpBind, Pattern: api.REP, Vocket: "rep1", Address: repAddr})
	if bindRep2.Code != api.ErrCodeOK {
		t.Fatalf("rebind rep: %+v", bindRep2)
	}

	waitFor(t, 2*time.Second, func() bool {
		return cli.sockets["req1"].v.LiveCount() == 1 && srv2.sockets["rep1"].v.LiveCount() == 1
	})

	cli.Submit(api.ControlCommand{Op: api.OpShutdown})
	srv2.Submit(api.ControlCommand{Op: api.OpShutdown})
}
