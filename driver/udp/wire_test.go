package udp

import (
	"bytes"
	"testing"

	"github.com/momentics/vtx/api"
)

func TestEncodeDecodeDatagramRoundTrip(t *testing.T) {
	cases := []Datagram{
		{Flags: 0, Command: CmdOHAI, Sequence: 3, Body: []byte("udp://10.0.0.1:9000")},
		{Flags: FlagResend, Command: CmdNOM, Sequence: 15, Body: []byte("payload")},
		{Flags: 0, Command: CmdHUGZ, Sequence: 0, Body: nil},
	}
	for _, d := range cases {
		raw := EncodeDatagram(d)
		got, err := DecodeDatagram(raw)
		if err != nil {
			t.Fatalf("DecodeDatagram(%v) = %v", d, err)
		}
		if got.Command != d.Command || got.Sequence != d.Sequence || got.Flags != d.Flags {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
		}
		if !bytes.Equal(got.Body, d.Body) {
			t.Fatalf("body mismatch: got %v, want %v", got.Body, d.Body)
		}
	}
}

func TestDecodeDatagramRejectsBadVersion(t *testing.T) {
	raw := []byte{0x20, 0x10} // version nibble 2, unsupported
	if _, err := DecodeDatagram(raw); err != api.ErrCorrupt {
		t.Fatalf("DecodeDatagram(bad version) = %v, want ErrCorrupt", err)
	}
}

func TestDecodeDatagramRejectsUndefinedCommand(t *testing.T) {
	raw := []byte{0x10, 0x90} // command nibble 9, undefined
	if _, err := DecodeDatagram(raw); err != api.ErrCorrupt {
		t.Fatalf("DecodeDatagram(bad command) = %v, want ErrCorrupt", err)
	}
}

func TestDecodeDatagramRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeDatagram([]byte{0x10}); err != api.ErrCorrupt {
		t.Fatalf("DecodeDatagram(short) = %v, want ErrCorrupt", err)
	}
}

func TestResendFlag(t *testing.T) {
	d := Datagram{Flags: FlagResend}
	if !d.Resend() {
		t.Fatalf("Resend() = false, want true")
	}
	d.Flags = 0
	if d.Resend() {
		t.Fatalf("Resend() = true, want false")
	}
}
