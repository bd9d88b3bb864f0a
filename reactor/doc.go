// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the poll-mode backend a driver's event loop
// uses to wake on network-handle readiness, with an epoll(7) backend on
// Linux and a portable ticking fallback elsewhere. See api.Reactor for
// the contract and driver/tcp for how a driver wires it alongside its
// control and application mailboxes; driver/udp does not use it.
package reactor
