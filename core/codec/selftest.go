// File: core/codec/selftest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SelfTest exercises a fresh, throwaway pair of codecs the same way
// TestCodecRandomizedRoundTrip does, so it can be invoked live (e.g. from
// a debug probe) without touching any driver-owned codec, which must
// only ever be touched by its owning event loop.

package codec

import (
	"fmt"

	"github.com/momentics/vtx/api"
)

// selfTestFrameCount is small enough to run inline from a probe call
// without noticeable latency, while still exercising both the run-batch
// and reference-batch paths.
const selfTestFrameCount = 256

// SelfTest round-trips a mix of small and large frames through one
// encoder codec and one decoder codec connected via PutBytes/GetBytes,
// then asserts both codecs' internal invariants with Check. It returns
// an error describing the first mismatch or corruption found, or nil if
// every frame relayed byte-for-byte and both codecs passed Check.
func SelfTest() error {
	enc := New(1<<16, 512, DefaultSmallCutoff)
	dec := New(1<<16, 512, DefaultSmallCutoff)

	seed := uint32(0x2545F491)
	next := func() uint32 {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		return seed
	}

	var sent []api.Frame
	for i := 0; i < selfTestFrameCount; i++ {
		size := int(next() % 32)
		if i%5 == 0 {
			size = 128 + int(next()%256)
		}
		body := make([]byte, size)
		for j := range body {
			body[j] = byte(next())
		}
		f := api.Frame{Body: body, More: i != selfTestFrameCount-1}
		sent = append(sent, f)
		if err := enc.PutFrame(f); err != nil {
			return fmt.Errorf("codec selftest: PutFrame %d: %w", i, err)
		}
	}

	for {
		chunk, err := enc.GetBytes()
		if err == api.ErrEmpty {
			break
		}
		if err != nil {
			return fmt.Errorf("codec selftest: GetBytes: %w", err)
		}
		if err := dec.PutBytes(chunk); err != nil {
			return fmt.Errorf("codec selftest: PutBytes: %w", err)
		}
		if err := enc.Tick(len(chunk)); err != nil {
			return fmt.Errorf("codec selftest: Tick: %w", err)
		}
	}

	for i, want := range sent {
		got, err := dec.GetFrame()
		if err != nil {
			return fmt.Errorf("codec selftest: GetFrame %d: %w", i, err)
		}
		if got.More != want.More || string(got.Body) != string(want.Body) {
			return fmt.Errorf("codec selftest: frame %d mismatch", i)
		}
	}

	if err := enc.Check(); err != nil {
		return fmt.Errorf("codec selftest: encoder Check: %w", err)
	}
	if err := dec.Check(); err != nil {
		return fmt.Errorf("codec selftest: decoder Check: %w", err)
	}
	return nil
}
