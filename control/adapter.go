// File: control/adapter.go
// Author: momentics <momentics@gmail.com>
//
// Adapter bridges the package's three standalone primitives (ConfigStore,
// MetricsRegistry, DebugProbes) to the single api.Control contract the
// registry exposes to operators.

package control

import "github.com/momentics/vtx/api"

// Adapter implements api.Control over this package's config, metrics,
// and debug-probe stores.
type Adapter struct {
	config  *ConfigStore
	metrics *MetricsRegistry
	debug   *DebugProbes
}

var _ api.Control = (*Adapter)(nil)

// NewAdapter wraps the given stores behind api.Control. Any of config,
// metrics, debug may be nil; a nil debug store is replaced with a fresh
// empty one, which RegisterDebugProbe and DumpState then use.
func NewAdapter(config *ConfigStore, metrics *MetricsRegistry, debug *DebugProbes) *Adapter {
	if debug == nil {
		debug = NewDebugProbes()
	}
	return &Adapter{config: config, metrics: metrics, debug: debug}
}

func (a *Adapter) GetConfig() map[string]any {
	if a.config == nil {
		return map[string]any{}
	}
	return a.config.GetSnapshot()
}

func (a *Adapter) SetConfig(cfg map[string]any) error {
	if a.config == nil {
		return api.NewError(api.ErrCodeNotSupported, "no config store attached")
	}
	a.config.SetConfig(cfg)
	return nil
}

func (a *Adapter) Stats() map[string]any {
	if a.metrics == nil {
		return map[string]any{}
	}
	return a.metrics.GetSnapshot()
}

func (a *Adapter) OnReload(fn func()) {
	if a.config == nil {
		return
	}
	a.config.OnReload(fn)
}

func (a *Adapter) RegisterDebugProbe(name string, fn func() any) {
	a.debug.RegisterProbe(name, fn)
}

// DumpState returns every registered debug probe's current output, for
// an operator endpoint to expose directly.
func (a *Adapter) DumpState() map[string]any {
	return a.debug.DumpState()
}
