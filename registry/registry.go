// File: registry/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package registry implements the driver registry: a process-wide
// scheme→driver map mediating the application-facing
// socket/bind/connect/close/getmeta API onto the per-scheme control
// mailbox protocol each driver answers. One call registers every
// backend the application needs and hands back a single front object.

package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/control"
	"github.com/momentics/vtx/core/codec"
)

// socketHandle is what application code calls a "vocket": an opaque
// name plus the pattern it was created with, with no driver affinity
// until its first bind or connect fixes one.
type socketHandle struct {
	name    string
	pattern api.Pattern
	scheme  string // empty until the first bind/connect
}

// Registry is the process-wide map from endpoint scheme to the driver
// answering it, plus the table of vocket handles created through it.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]api.Driver
	sockets map[string]*socketHandle
	metrics *control.MetricsRegistry
	config  *control.ConfigStore
	ctl     *control.Adapter
	nextID  int
}

// New creates an empty registry with its own metrics, config, and debug
// stores. The debug store starts with the platform probe set and a
// codec.selftest probe that round-trips a throwaway codec pair and
// reports any corruption Check finds, so an operator can invoke a live
// codec sanity check without reaching into any driver-owned codec.
func New() *Registry {
	metrics := control.NewMetricsRegistry()
	config := control.NewConfigStore()
	debug := control.NewDebugProbes()
	control.RegisterPlatformProbes(debug)
	debug.RegisterProbe("codec.selftest", func() any {
		if err := codec.SelfTest(); err != nil {
			return err.Error()
		}
		return "ok"
	})
	return &Registry{
		drivers: make(map[string]api.Driver),
		sockets: make(map[string]*socketHandle),
		metrics: metrics,
		config:  config,
		ctl:     control.NewAdapter(config, metrics, debug),
	}
}

// Metrics exposes the registry's shared metrics registry, e.g. for an
// operator dashboard to poll.
func (r *Registry) Metrics() *control.MetricsRegistry { return r.metrics }

// Config exposes the registry's shared config store.
func (r *Registry) Config() *control.ConfigStore { return r.config }

// Control exposes the registry's config/metrics/debug surface behind
// the single api.Control contract operators expect.
func (r *Registry) Control() api.Control { return r.ctl }

// Register adds driver under scheme. A second Register for the same
// scheme fails with ErrNotUnique.
func (r *Registry) Register(scheme string, driver api.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[scheme]; exists {
		return api.ErrNotUnique
	}
	r.drivers[scheme] = driver
	return nil
}

// Socket creates a vocket placeholder with no driver affinity yet; the
// first Bind or Connect with a scheme-qualified endpoint fixes it.
func (r *Registry) Socket(pattern api.Pattern) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	name := fmt.Sprintf("vtx-%d", r.nextID)
	r.sockets[name] = &socketHandle{name: name, pattern: pattern}
	return name
}

// ParsedEndpoint is a decomposed "scheme://host:port" endpoint.
type ParsedEndpoint struct {
	Scheme string
	Host   string
	Port   string
}

// parseEndpoint splits "scheme://host:port" at "://" and the first ":"
// after it, requiring a non-empty scheme, host and port. The form of the
// host ("*", an IPv4 dotted-quad, or a DNS name) is not checked here.
func parseEndpoint(endpoint string) (ParsedEndpoint, error) {
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok || scheme == "" || rest == "" {
		return ParsedEndpoint{}, api.ErrInvalidEndpoint
	}
	host, port, ok := strings.Cut(rest, ":")
	if !ok || host == "" || port == "" {
		return ParsedEndpoint{}, api.ErrInvalidEndpoint
	}
	return ParsedEndpoint{Scheme: scheme, Host: host, Port: port}, nil
}

func (r *Registry) resolve(vocketName, endpoint string) (*socketHandle, api.Driver, ParsedEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sockets[vocketName]
	if !ok {
		return nil, nil, ParsedEndpoint{}, api.ErrNoSuchVocket
	}
	pe, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, nil, ParsedEndpoint{}, err
	}
	if s.scheme != "" && s.scheme != pe.Scheme {
		return nil, nil, ParsedEndpoint{}, api.ErrSchemeMismatch
	}
	drv, ok := r.drivers[pe.Scheme]
	if !ok {
		return nil, nil, ParsedEndpoint{}, api.ErrNoSuchProtocol
	}
	s.scheme = pe.Scheme
	return s, drv, pe, nil
}

// Bind sends a BIND control command to the endpoint's scheme driver.
func (r *Registry) Bind(vocketName, endpoint string) error {
	s, drv, pe, err := r.resolve(vocketName, endpoint)
	if err != nil {
		return err
	}
	rep := drv.Submit(api.ControlCommand{
		Op:      api.OpBind,
		Pattern: s.pattern,
		Vocket:  vocketName,
		Address: pe.Host + ":" + pe.Port,
	})
	return replyToError(rep)
}

// Connect sends a CONNECT control command to the endpoint's scheme driver.
func (r *Registry) Connect(vocketName, endpoint string) error {
	s, drv, pe, err := r.resolve(vocketName, endpoint)
	if err != nil {
		return err
	}
	rep := drv.Submit(api.ControlCommand{
		Op:      api.OpConnect,
		Pattern: s.pattern,
		Vocket:  vocketName,
		Address: pe.Host + ":" + pe.Port,
	})
	return replyToError(rep)
}

// Close tears down vocketName on whichever driver owns it, if any.
func (r *Registry) Close(vocketName string) error {
	r.mu.Lock()
	s, ok := r.sockets[vocketName]
	if !ok {
		r.mu.Unlock()
		return api.ErrNoSuchVocket
	}
	scheme := s.scheme
	drv, hasDriver := r.drivers[scheme]
	delete(r.sockets, vocketName)
	r.mu.Unlock()

	if !hasDriver {
		return nil
	}
	rep := drv.Submit(api.ControlCommand{Op: api.OpClose, Vocket: vocketName})
	return replyToError(rep)
}

// GetMeta fetches a named metadata value from vocketName's driver (only
// "sender" is defined, per core/vocket.GetMeta).
func (r *Registry) GetMeta(vocketName, name string) (string, error) {
	r.mu.Lock()
	s, ok := r.sockets[vocketName]
	if !ok {
		r.mu.Unlock()
		return "", api.ErrNoSuchVocket
	}
	drv, ok := r.drivers[s.scheme]
	r.mu.Unlock()
	if !ok {
		return "", api.ErrNoSuchProtocol
	}
	rep := drv.Submit(api.ControlCommand{Op: api.OpGetMeta, Vocket: vocketName, Address: name})
	if err := replyToError(rep); err != nil {
		return "", err
	}
	return rep.Value, nil
}

// Shutdown signals every registered driver's event loop to stop.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	drivers := make([]api.Driver, 0, len(r.drivers))
	for _, drv := range r.drivers {
		drivers = append(drivers, drv)
	}
	r.mu.Unlock()
	for _, drv := range drivers {
		drv.Submit(api.ControlCommand{Op: api.OpShutdown})
	}
}

func replyToError(rep api.ControlReply) error {
	if rep.Code == api.ErrCodeOK {
		return nil
	}
	if rep.Err != nil {
		return rep.Err
	}
	return api.NewError(rep.Code, "control command failed")
}
