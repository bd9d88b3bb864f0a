// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: socket patterns, routing rules, and
// the per-pattern parameter table.

package api

import "time"

// Pattern identifies a vocket's messaging pattern.
type Pattern int

const (
	PatternUnknown Pattern = iota
	REQ
	REP
	ROUTER
	DEALER
	PUB
	SUB
	PUSH
	PULL
	PAIR
)

func (p Pattern) String() string {
	switch p {
	case REQ:
		return "REQ"
	case REP:
		return "REP"
	case ROUTER:
		return "ROUTER"
	case DEALER:
		return "DEALER"
	case PUB:
		return "PUB"
	case SUB:
		return "SUB"
	case PUSH:
		return "PUSH"
	case PULL:
		return "PULL"
	case PAIR:
		return "PAIR"
	default:
		return "UNKNOWN"
	}
}

// RoutingRule selects how a vocket routes an outbound message across its
// peerings.
type RoutingRule int

const (
	RouteNone RoutingRule = iota
	RouteRequest
	RouteReply
	RouteDealer
	RouteRouter
	RoutePublish
	RouteSingle
)

// PatternSpec is the fixed per-pattern parameter row in the pattern
// table: routing rule, whether inbound payloads are accepted, the minimum
// number of live peerings before the vocket's mailbox is polled, and the
// maximum number of peerings the vocket may hold.
type PatternSpec struct {
	Routing       RoutingRule
	AcceptsInput  bool
	MinLive       int
	MaxPeerings   int // 0 means unbounded
}

// PatternTable maps each Pattern to its fixed PatternSpec.
var PatternTable = map[Pattern]PatternSpec{
	REQ:    {Routing: RouteRequest, AcceptsInput: true, MinLive: 1, MaxPeerings: 0},
	REP:    {Routing: RouteReply, AcceptsInput: true, MinLive: 1, MaxPeerings: 0},
	ROUTER: {Routing: RouteRouter, AcceptsInput: true, MinLive: 0, MaxPeerings: 0},
	DEALER: {Routing: RouteDealer, AcceptsInput: true, MinLive: 1, MaxPeerings: 0},
	PUB:    {Routing: RoutePublish, AcceptsInput: false, MinLive: 0, MaxPeerings: 0},
	SUB:    {Routing: RouteNone, AcceptsInput: true, MinLive: 1, MaxPeerings: 0},
	PUSH:   {Routing: RouteDealer, AcceptsInput: false, MinLive: 1, MaxPeerings: 0},
	PULL:   {Routing: RouteNone, AcceptsInput: true, MinLive: 1, MaxPeerings: 0},
	PAIR:   {Routing: RouteSingle, AcceptsInput: true, MinLive: 1, MaxPeerings: 1},
}

// Frame is one unit of a message: a byte payload plus a continuation flag.
// A message is one or more frames, the last carrying More == false.
type Frame struct {
	Body []byte
	More bool
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
