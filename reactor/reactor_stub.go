//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Portable fallback reactor for platforms without an epoll backend
// (see DESIGN.md for why an IOCP backend isn't included). Register
// records the fd; Wait reports only the first registered fd ready on
// each short tick, and returns nothing when no fd is registered. The
// udata passed to Register is not kept: UserData carries the fd.

package reactor

import (
	"time"

	"github.com/momentics/vtx/api"
)

type stubReactor struct {
	fds    []uintptr
	closed chan struct{}
}

// New constructs the portable fallback backend.
func New() (api.Reactor, error) {
	return &stubReactor{closed: make(chan struct{})}, nil
}

func (r *stubReactor) Register(fd uintptr, udata uintptr) error {
	r.fds = append(r.fds, fd)
	return nil
}

func (r *stubReactor) Wait(events []api.Event) (int, error) {
	if len(r.fds) == 0 || len(events) == 0 {
		select {
		case <-time.After(50 * time.Millisecond):
			return 0, nil
		case <-r.closed:
			return 0, nil
		}
	}
	select {
	case <-time.After(5 * time.Millisecond):
		events[0] = api.Event{Fd: r.fds[0], UserData: r.fds[0]}
		return 1, nil
	case <-r.closed:
		return 0, nil
	}
}

func (r *stubReactor) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}
