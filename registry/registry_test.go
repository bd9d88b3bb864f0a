// File: registry/registry_test.go
// Author: momentics <momentics@gmail.com>

package registry

import (
	"testing"

	"github.com/momentics/vtx/api"
)

type fakeDriver struct {
	scheme string
	calls  []api.ControlCommand
}

func (f *fakeDriver) Scheme() string { return f.scheme }

func (f *fakeDriver) Submit(cmd api.ControlCommand) api.ControlReply {
	f.calls = append(f.calls, cmd)
	if cmd.Op == api.OpGetMeta {
		return api.ControlReply{Code: api.ErrCodeOK, Value: "127.0.0.1:9"}
	}
	return api.ControlReply{Code: api.ErrCodeOK}
}

func TestRegisterRejectsDuplicateScheme(t *testing.T) {
	r := New()
	if err := r.Register("udp", &fakeDriver{scheme: "udp"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("udp", &fakeDriver{scheme: "udp"}); err != api.ErrNotUnique {
		t.Fatalf("expected ErrNotUnique, got %v", err)
	}
}

func TestBindFixesSchemeThenRejectsMismatch(t *testing.T) {
	r := New()
	udpDrv := &fakeDriver{scheme: "udp"}
	tcpDrv := &fakeDriver{scheme: "tcp"}
	r.Register("udp", udpDrv)
	r.Register("tcp", tcpDrv)

	name := r.Socket(api.REQ)
	if err := r.Bind(name, "udp://*:9000"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(udpDrv.calls) != 1 || udpDrv.calls[0].Address != "*:9000" {
		t.Fatalf("udp driver got %+v", udpDrv.calls)
	}

	if err := r.Connect(name, "tcp://127.0.0.1:9001"); err != api.ErrSchemeMismatch {
		t.Fatalf("expected scheme mismatch, got %v", err)
	}
}

func TestUnknownProtocolRejected(t *testing.T) {
	r := New()
	name := r.Socket(api.PUB)
	if err := r.Bind(name, "quic://*:9000"); err != api.ErrNoSuchProtocol {
		t.Fatalf("expected ErrNoSuchProtocol, got %v", err)
	}
}

func TestInvalidEndpointRejected(t *testing.T) {
	r := New()
	name := r.Socket(api.PUB)
	for _, ep := range []string{"not-an-endpoint", "udp://", "udp://host"} {
		if err := r.Bind(name, ep); err != api.ErrInvalidEndpoint {
			t.Fatalf("endpoint %q: expected ErrInvalidEndpoint, got %v", ep, err)
		}
	}
}

func TestGetMetaRoundTrip(t *testing.T) {
	r := New()
	drv := &fakeDriver{scheme: "udp"}
	r.Register("udp", drv)
	name := r.Socket(api.REQ)
	r.Bind(name, "udp://*:9000")

	val, err := r.GetMeta(name, "sender")
	if err != nil {
		t.Fatalf("getmeta: %v", err)
	}
	if val != "127.0.0.1:9" {
		t.Fatalf("got %q", val)
	}
}

func TestCloseRemovesSocket(t *testing.T) {
	r := New()
	drv := &fakeDriver{scheme: "udp"}
	r.Register("udp", drv)
	name := r.Socket(api.REQ)
	r.Bind(name, "udp://*:9000")

	if err := r.Close(name); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(name); err != api.ErrNoSuchVocket {
		t.Fatalf("second close: expected ErrNoSuchVocket, got %v", err)
	}
}
