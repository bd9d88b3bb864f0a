package vocket

import (
	"testing"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/core/peering"
)

func mkAlive(v *Vocket, address string) *peering.Peering {
	p, err := v.Connect(address, address, false)
	if err != nil {
		panic(err)
	}
	p.MarkAlive(0, int64(1e9))
	v.RaiseLive(p)
	return p
}

func TestPeeringMembershipNoDuplicates(t *testing.T) {
	v := New("v1", api.DEALER, 16, "udp")
	p1 := mkAlive(v, "udp://10.0.0.1:9000")
	p2 := mkAlive(v, "udp://10.0.0.2:9000")
	v.RaiseLive(p1) // raising an already-live peering must not duplicate it

	if v.LiveCount() != 2 {
		t.Fatalf("LiveCount() = %d, want 2", v.LiveCount())
	}
	seen := make(map[*peering.Peering]bool)
	for _, p := range v.LivePeerings() {
		if seen[p] {
			t.Fatalf("peering %s appears twice in live list", p.Address)
		}
		seen[p] = true
	}
	if !seen[p1] || !seen[p2] {
		t.Fatalf("live list missing an expected peering")
	}

	v.LowerLive(p1)
	if v.LiveCount() != 1 {
		t.Fatalf("LiveCount() after lower = %d, want 1", v.LiveCount())
	}
}

func TestRoundRobinFairnessDealer(t *testing.T) {
	v := New("v1", api.DEALER, 64, "udp")
	const nPeers = 3
	peers := make([]*peering.Peering, nPeers)
	for i := 0; i < nPeers; i++ {
		peers[i] = mkAlive(v, string(rune('a'+i))+"://peer")
	}

	const messages = 10
	counts := make(map[*peering.Peering]int)
	for i := 0; i < messages; i++ {
		targets, _, err := v.Route([]api.Frame{{Body: []byte("m")}})
		if err != nil {
			t.Fatalf("Route() #%d = %v", i, err)
		}
		if len(targets) != 1 {
			t.Fatalf("Route() #%d returned %d targets, want 1", i, len(targets))
		}
		counts[targets[0]]++
	}

	low := messages / nPeers
	high := (messages + nPeers - 1) / nPeers
	for _, p := range peers {
		c := counts[p]
		if c != low && c != high {
			t.Fatalf("peer %s got %d messages, want %d or %d", p.Address, c, low, high)
		}
	}
}

func TestReplyRoutesToLastRequester(t *testing.T) {
	v := New("rep1", api.REP, 16, "udp")
	p1 := mkAlive(v, "udp://10.0.0.1:9000")
	p2 := mkAlive(v, "udp://10.0.0.2:9000")

	v.Deliver([]api.Frame{{Body: []byte("req1")}}, p1, "10.0.0.1")
	targets, _, err := v.Route([]api.Frame{{Body: []byte("rep1")}})
	if err != nil {
		t.Fatalf("Route() = %v", err)
	}
	if len(targets) != 1 || targets[0] != p1 {
		t.Fatalf("reply routed to %v, want p1", targets)
	}

	v.Deliver([]api.Frame{{Body: []byte("req2")}}, p2, "10.0.0.2")
	targets, _, err = v.Route([]api.Frame{{Body: []byte("rep2")}})
	if err != nil {
		t.Fatalf("Route() = %v", err)
	}
	if len(targets) != 1 || targets[0] != p2 {
		t.Fatalf("reply routed to %v, want p2", targets)
	}

	// reply-to is one-shot: a third reply with no new request is misuse.
	if _, _, err := v.Route([]api.Frame{{Body: []byte("rep3")}}); err != api.ErrPatternMisuse {
		t.Fatalf("Route() after reply-to consumed = %v, want ErrPatternMisuse", err)
	}
}

func TestIdempotentBindAndConnect(t *testing.T) {
	v := New("v1", api.REQ, 16, "udp")
	b1, err := v.Bind("udp://0.0.0.0:9000", nil)
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}
	b2, err := v.Bind("udp://0.0.0.0:9000", nil)
	if err != nil {
		t.Fatalf("Bind() (second) = %v", err)
	}
	if b1 != b2 {
		t.Fatalf("second Bind() returned a different binding")
	}

	p1, err := v.Connect("udp://10.0.0.1:9000", "10.0.0.1:9000", false)
	if err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	p2, err := v.Connect("udp://10.0.0.1:9000", "10.0.0.1:9000", false)
	if err != nil {
		t.Fatalf("Connect() (second) = %v", err)
	}
	if p1 != p2 {
		t.Fatalf("second Connect() returned a different peering")
	}
	if len(v.Peerings()) != 1 {
		t.Fatalf("peering list has %d entries, want 1", len(v.Peerings()))
	}
}

func TestPairEnforcesMaxPeerings(t *testing.T) {
	v := New("pair1", api.PAIR, 16, "udp")
	if _, err := v.Connect("udp://10.0.0.1:9000", "10.0.0.1:9000", false); err != nil {
		t.Fatalf("first Connect() = %v", err)
	}
	if _, err := v.Connect("udp://10.0.0.2:9000", "10.0.0.2:9000", false); err != api.ErrTooManyPeerings {
		t.Fatalf("second Connect() on PAIR = %v, want ErrTooManyPeerings", err)
	}
}

func TestRequestForbidsSecondSendBeforeReply(t *testing.T) {
	v := New("req1", api.REQ, 16, "udp")
	p := mkAlive(v, "udp://10.0.0.1:9000")

	if _, _, err := v.Route([]api.Frame{{Body: []byte("r1")}}); err != nil {
		t.Fatalf("first Route() = %v", err)
	}
	if _, _, err := v.Route([]api.Frame{{Body: []byte("r2")}}); err != api.ErrPatternMisuse {
		t.Fatalf("Route() with in-flight request = %v, want ErrPatternMisuse", err)
	}

	p.InFlightRequest = nil // reply arrived
	if _, _, err := v.Route([]api.Frame{{Body: []byte("r3")}}); err != nil {
		t.Fatalf("Route() after reply cleared in-flight = %v", err)
	}
}

func TestRouterRoutesByExplicitAddress(t *testing.T) {
	v := New("router1", api.ROUTER, 16, "tcp")
	p1 := mkAlive(v, "10.0.0.1:9000")
	mkAlive(v, "10.0.0.2:9000")

	targets, frames, err := v.Route([]api.Frame{
		{Body: []byte("tcp://10.0.0.1:9000")},
		{Body: []byte("payload"), More: false},
	})
	if err != nil {
		t.Fatalf("Route() = %v", err)
	}
	if len(targets) != 1 || targets[0] != p1 {
		t.Fatalf("Route() targeted %v, want p1", targets)
	}
	if len(frames) != 1 || string(frames[0].Body) != "payload" {
		t.Fatalf("Route() stripped frames = %v, want just the payload", frames)
	}
}

func TestRouterRejectsWrongScheme(t *testing.T) {
	v := New("router1", api.ROUTER, 16, "tcp")
	mkAlive(v, "10.0.0.1:9000")

	_, _, err := v.Route([]api.Frame{
		{Body: []byte("udp://10.0.0.1:9000")},
		{Body: []byte("payload")},
	})
	if err != api.ErrInvalidEndpoint {
		t.Fatalf("Route() with wrong scheme = %v, want ErrInvalidEndpoint", err)
	}
}

func TestRouterRejectsUnknownAddress(t *testing.T) {
	v := New("router1", api.ROUTER, 16, "tcp")
	mkAlive(v, "10.0.0.1:9000")

	_, _, err := v.Route([]api.Frame{
		{Body: []byte("tcp://10.0.0.9:9000")},
		{Body: []byte("payload")},
	})
	if err != api.ErrNoSuchVocket {
		t.Fatalf("Route() to unknown address = %v, want ErrNoSuchVocket", err)
	}
}
