//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor backend for the driver's single-threaded
// event loop: the only place the loop suspends is in the multiplexer
// call. A driver registers its network handle's raw fd once
// and calls Wait in a dedicated goroutine that forwards readiness into the
// loop's select statement; the loop itself never touches the epoll fd.
// The udata passed to Register is not kept: each event's UserData is its fd.

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/vtx/api"
)

type linuxReactor struct {
	epfd int
}

// New constructs the Linux epoll backend.
func New() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &linuxReactor{epfd: epfd}, nil
}

func (r *linuxReactor) Register(fd uintptr, udata uintptr) error {
	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &event)
}

func (r *linuxReactor) Wait(events []api.Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		events[i] = api.Event{
			Fd:       uintptr(raw[i].Fd),
			UserData: uintptr(raw[i].Fd),
		}
	}
	return n, nil
}

func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}
