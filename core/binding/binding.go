// File: core/binding/binding.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package binding implements the binding lifecycle: created idempotently
// on bind, owning a listen handle, torn down on vocket close. The listen
// handle is an opaque io.Closer rather than a concrete *net.TCPListener —
// the UDP driver has no listener at all (one socket per vocket), so
// binding.Binding's handle is nil for that case and the driver's own
// socket lifetime is what matters.

package binding

import "io"

// Binding is the idempotent result of a bind() call on one address.
type Binding struct {
	Address string
	Handle  io.Closer // nil for drivers (like UDP) with no per-address listen handle
}

// New creates a binding for address, taking ownership of handle (which
// may be nil).
func New(address string, handle io.Closer) *Binding {
	return &Binding{Address: address, Handle: handle}
}

// Close tears down the listen handle, if any. Safe to call once; the
// owning driver is responsible for not calling it twice.
func (b *Binding) Close() error {
	if b.Handle == nil {
		return nil
	}
	return b.Handle.Close()
}
