// File: registry/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Config and NewDefault give the application a one-call setup: a
// single call wires every scheme driver this module ships so the
// application only ever talks to the Registry.

package registry

import (
	"fmt"
	"time"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/driver/tcp"
	"github.com/momentics/vtx/driver/udp"
)

// Config selects which scheme drivers NewDefault wires in and the
// tunables those drivers construct themselves with.
type Config struct {
	EnableUDP bool
	EnableTCP bool

	// RingCapacity sizes every vocket's application mailbox.
	RingCapacity int
	// CodecBatchCapacity and CodecDataBytes size the TCP driver's
	// persistent per-connection codecs. CodecBatchCapacity is also the
	// batch-ring floor of the UDP driver's per-message codecs, whose data
	// ring is sized from MsgMax instead of CodecDataBytes.
	CodecBatchCapacity int
	CodecDataBytes     int
	// SmallCutoff is the byte threshold below which a frame batches by
	// copy instead of by reference.
	SmallCutoff int
	// MsgMax is the UDP driver's datagram payload ceiling.
	MsgMax int
	// Timeout, OhaiInterval, and ResendInterval are the peering liveness
	// and retry tunables both drivers apply (TCP ignores ResendInterval).
	Timeout        time.Duration
	OhaiInterval   time.Duration
	ResendInterval time.Duration
	// EnableMetrics toggles whether drivers record counters at all.
	EnableMetrics bool
}

// DefaultConfig enables every driver this module ships, with the
// tunables every driver used as hardcoded constants before they became
// configurable.
func DefaultConfig() *Config {
	def := api.DefaultTunables()
	return &Config{
		EnableUDP:          true,
		EnableTCP:          true,
		RingCapacity:       def.RingCapacity,
		CodecBatchCapacity: def.CodecBatchCapacity,
		CodecDataBytes:     def.CodecDataBytes,
		SmallCutoff:        def.SmallCutoff,
		MsgMax:             def.MsgMax,
		Timeout:            def.Timeout,
		OhaiInterval:       def.OhaiInterval,
		ResendInterval:     def.ResendInterval,
		EnableMetrics:      true,
	}
}

func (cfg *Config) tunables() api.DriverTunables {
	return api.DriverTunables{
		RingCapacity:       cfg.RingCapacity,
		CodecBatchCapacity: cfg.CodecBatchCapacity,
		CodecDataBytes:     cfg.CodecDataBytes,
		SmallCutoff:        cfg.SmallCutoff,
		MsgMax:             cfg.MsgMax,
		Timeout:            cfg.Timeout,
		OhaiInterval:       cfg.OhaiInterval,
		ResendInterval:     cfg.ResendInterval,
	}
}

// NewDefault builds a Registry and registers the requested drivers
// against it in one call.
func NewDefault(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := New()
	r.metrics.SetEnabled(cfg.EnableMetrics)
	tun := cfg.tunables()
	if cfg.EnableUDP {
		if err := r.Register("udp", udp.NewDriver(r.metrics, tun)); err != nil {
			return nil, fmt.Errorf("registry: registering udp driver: %w", err)
		}
	}
	if cfg.EnableTCP {
		tcpDriver, err := tcp.NewDriver(r.metrics, tun)
		if err != nil {
			return nil, fmt.Errorf("registry: starting tcp driver: %w", err)
		}
		if err := r.Register("tcp", tcpDriver); err != nil {
			return nil, fmt.Errorf("registry: registering tcp driver: %w", err)
		}
	}
	return r, nil
}
