// File: api/events.go
// Package api defines core event types for vtx.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// PeeringUpEvent is emitted when a peering transitions DEAD -> ALIVE.
type PeeringUpEvent struct {
	Vocket  string
	Address string
}

// PeeringDownEvent is emitted when a peering transitions ALIVE -> DEAD,
// is unfocused back to its broadcast key, or is destroyed.
type PeeringDownEvent struct {
	Vocket  string
	Address string
	Reason  string
}
