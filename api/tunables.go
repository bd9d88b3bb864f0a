// File: api/tunables.go
// Author: momentics <momentics@gmail.com>
//
// DriverTunables carries the runtime-configurable sizing and timing
// knobs a scheme driver's constructor accepts. registry.Config is the
// application-facing source of these values; each driver applies the
// subset relevant to its own transport and ignores the rest.

package api

import "time"

// DriverTunables groups every tunable a driver constructor may need.
type DriverTunables struct {
	// RingCapacity sizes every vocket's application mailbox (Outbox/Inbox).
	RingCapacity int

	// CodecBatchCapacity and CodecDataBytes size a driver's persistent
	// per-connection codecs (TCP). CodecBatchCapacity is also the floor
	// for the batch ring of a driver's transient per-message codecs (UDP);
	// the UDP driver sizes their data ring from MsgMax, not CodecDataBytes.
	CodecBatchCapacity int
	CodecDataBytes     int

	// SmallCutoff is the byte threshold below which a frame batches by
	// copy instead of by reference.
	SmallCutoff int

	// MsgMax is the datagram payload ceiling the UDP driver enforces.
	// Unused by the TCP driver, which has no per-message size limit.
	MsgMax int

	// Timeout is how long a peering may go without activity before it's
	// declared dead. OhaiInterval paces OHAI retries (UDP) and reconnect
	// attempts (TCP) for a DEAD outgoing peering. ResendInterval paces
	// REQUEST retransmission for an in-flight reply; unused by TCP, which
	// relies on the transport's own delivery guarantee instead.
	Timeout        time.Duration
	OhaiInterval   time.Duration
	ResendInterval time.Duration
}

// DefaultTunables returns the values every driver used as hardcoded
// constants before these became configurable.
func DefaultTunables() DriverTunables {
	return DriverTunables{
		RingCapacity:       256,
		CodecBatchCapacity: 256,
		CodecDataBytes:     1 << 20,
		SmallCutoff:        64,
		MsgMax:             512,
		Timeout:            5 * time.Second,
		OhaiInterval:       1 * time.Second,
		ResendInterval:     1 * time.Second,
	}
}
