// File: api/codec.go
// Author: momentics <momentics@gmail.com>
//
// Codec is the contract for the dual ring-buffer batching store: the
// hardest single module, serializing a FIFO stream of frames by
// small-frame copy and large-frame reference.

package api

// Codec serializes and deserializes a FIFO stream of frames into a fixed
// capacity store, batching small frames by copy and large frames by
// reference, and exposing a raw byte-streaming view for piping encoded
// bytes across a network handle or to another Codec.
type Codec interface {
	// PutFrame serializes one frame. Returns ErrFull if capacity is
	// insufficient; otherwise the codec owns frame.Body.
	PutFrame(f Frame) error

	// GetFrame extracts the next frame in FIFO order. Returns ErrEmpty
	// when nothing is buffered, ErrCorrupt on malformed framing.
	GetFrame() (Frame, error)

	// PutBytes appends a raw chunk of already-encoded bytes, with no
	// framing interpretation, for piping between two codecs.
	PutBytes(b []byte) error

	// GetBytes returns a view of the next contiguous run of buffered
	// bytes without consuming or copying it. Returns ErrEmpty when
	// nothing is buffered.
	GetBytes() ([]byte, error)

	// Tick acknowledges n bytes returned by a prior GetBytes as consumed.
	Tick(n int) error

	// Space reports the largest contiguous span of data-ring bytes,
	// header included, that the next small-frame PutFrame or PutBytes
	// call can write, or zero when the batch ring is full. Frames stored
	// by reference do not use the data ring and are not bounded by it.
	Space() int

	// Active reports the total bytes currently held, including framing
	// overhead.
	Active() int

	// Check asserts the codec's internal invariants, returning
	// ErrCorrupt if violated.
	Check() error
}
