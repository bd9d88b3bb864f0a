// File: driver/udp/wire.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NOM-1 wire framing: the canonical command set used by the peering
// protocol. The earlier ICANHAZ/ICANHAZ-OK commands from an intermediate,
// non-wire-compatible draft of the protocol are intentionally not
// implemented.

package udp

import "github.com/momentics/vtx/api"

// ProtocolVersion is the only version NOM-1 defines.
const ProtocolVersion = 0x01

// Command identifies a NOM-1 wire command (byte 1, high nibble).
type Command uint8

const (
	CmdROTFL  Command = 0x0
	CmdOHAI   Command = 0x1
	CmdOHAIOK Command = 0x2
	CmdHUGZ   Command = 0x3
	CmdHUGZOK Command = 0x4
	CmdNOM    Command = 0x5
)

func (c Command) String() string {
	switch c {
	case CmdROTFL:
		return "ROTFL"
	case CmdOHAI:
		return "OHAI"
	case CmdOHAIOK:
		return "OHAI-OK"
	case CmdHUGZ:
		return "HUGZ"
	case CmdHUGZOK:
		return "HUGZ-OK"
	case CmdNOM:
		return "NOM"
	default:
		return "UNKNOWN"
	}
}

// FlagResend is the one defined wire flag (byte 0, bit 0 of the flags
// nibble): the sender is retransmitting a previously sent NOM.
const FlagResend = 0x1

// Datagram is a parsed NOM-1 frame.
type Datagram struct {
	Version  uint8
	Flags    uint8
	Command  Command
	Sequence uint8 // 4-bit, 0..15
	Body     []byte
}

// Resend reports whether the RESEND flag is set.
func (d Datagram) Resend() bool {
	return d.Flags&FlagResend != 0
}

// EncodeDatagram serializes a NOM-1 datagram: byte0 = [version:4|flags:4],
// byte1 = [command:4|sequence:4], followed by body.
func EncodeDatagram(d Datagram) []byte {
	out := make([]byte, 2+len(d.Body))
	out[0] = (ProtocolVersion << 4) | (d.Flags & 0x0F)
	out[1] = (uint8(d.Command) << 4) | (d.Sequence & 0x0F)
	copy(out[2:], d.Body)
	return out
}

// DecodeDatagram parses a received datagram. Malformed datagrams (bad
// version, undefined command, short buffer) return api.ErrCorrupt so the
// caller can drop it and increment a counter instead of propagating a
// malformed frame.
func DecodeDatagram(raw []byte) (Datagram, error) {
	if len(raw) < 2 {
		return Datagram{}, api.ErrCorrupt
	}
	version := raw[0] >> 4
	if version != ProtocolVersion {
		return Datagram{}, api.ErrCorrupt
	}
	flags := raw[0] & 0x0F
	cmd := Command(raw[1] >> 4)
	if cmd > CmdNOM {
		return Datagram{}, api.ErrCorrupt
	}
	seq := raw[1] & 0x0F
	body := append([]byte(nil), raw[2:]...)
	return Datagram{Version: version, Flags: flags, Command: cmd, Sequence: seq, Body: body}, nil
}
