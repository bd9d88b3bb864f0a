// File: core/codec/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package codec implements a dual ring-buffer batching store: a batch
// ring of fixed-capacity descriptors and a data ring of raw bytes,
// rather than a single buffer carrying inline length-prefixed batches.
//
// A run batch is a contiguous, non-wrapping span of small-frame bytes in
// the data ring, grown by coalescing consecutive small PutFrame calls. A
// reference batch is an owned byte slice holding one large frame's
// encoded header and payload, stored outside the data ring; PutFrame
// copies the payload into that slice, so a large frame is not stored
// zero-copy. Runs never wrap: when the tail segment cannot hold the next
// write, the codec either wraps to the head segment (if empty space sits
// there) or fails full, per the wrap policy.

package codec

import "github.com/momentics/vtx/api"

// DefaultSmallCutoff matches the batching threshold of the reference
// implementation (VTX_CODEC_CUTOFF in vtx_codec.c).
const DefaultSmallCutoff = 64

// DefaultBatchCapacity is a reasonable descriptor-ring size for a codec
// sized for interactive message traffic rather than bulk transfer.
const DefaultBatchCapacity = 256

type batchKind uint8

const (
	batchKindRun batchKind = iota
	batchKindReference
)

type batchSlot struct {
	kind   batchKind
	offset int    // start offset in the data ring, for run batches
	length int    // byte count, for run batches
	ref    []byte // owned encoded header+payload, for reference batches
}

// Codec is the dual ring-buffer implementation of api.Codec. It is not
// safe for concurrent use: like every other piece of driver-owned
// state, a Codec is touched only by its owning event loop.
type Codec struct {
	data     []byte
	dataCap  int
	dataHead int // offset of the oldest retained byte
	dataTail int // offset of the next free byte
	dataUsed int // bytes of run payload currently anchored in the ring

	batches    []batchSlot
	batchCap   int
	batchHead  int
	batchCount int

	hasOpen  bool
	openSlot int
	readOff  int // bytes already consumed from the batch at batchHead

	smallCutoff int
	activeBytes int
}

var _ api.Codec = (*Codec)(nil)

// New allocates a codec with the given data-ring capacity (bytes),
// batch-descriptor ring capacity, and small-frame cutoff.
func New(dataCapacity, batchCapacity, smallCutoff int) *Codec {
	if dataCapacity < 1 {
		dataCapacity = 1
	}
	if batchCapacity < 1 {
		batchCapacity = 1
	}
	return &Codec{
		data:        make([]byte, dataCapacity),
		dataCap:     dataCapacity,
		batches:     make([]batchSlot, batchCapacity),
		batchCap:    batchCapacity,
		smallCutoff: smallCutoff,
		openSlot:    -1,
	}
}

// NewWithDefaults allocates a codec sized for dataCapacity bytes using
// DefaultBatchCapacity and DefaultSmallCutoff.
func NewWithDefaults(dataCapacity int) *Codec {
	return New(dataCapacity, DefaultBatchCapacity, DefaultSmallCutoff)
}

// PutFrame implements api.Codec.
func (c *Codec) PutFrame(f api.Frame) error {
	header := encodeHeader(len(f.Body), f.More)
	if len(f.Body) < c.smallCutoff {
		return c.putRun(header, f.Body)
	}
	encoded := make([]byte, 0, len(header)+len(f.Body))
	encoded = append(encoded, header...)
	encoded = append(encoded, f.Body...)
	return c.putReference(encoded)
}

// GetFrame implements api.Codec.
func (c *Codec) GetFrame() (api.Frame, error) {
	if c.batchCount == 0 {
		return api.Frame{}, api.ErrEmpty
	}
	if c.hasOpen && c.batchHead == c.openSlot {
		c.hasOpen = false
	}
	// Peek the first byte to learn which header form is in play, then
	// consume exactly that many bytes — consume() copies across a batch
	// boundary when needed, so a header relayed via PutBytes/GetBytes
	// through an independently-batched codec still decodes correctly
	// even when its re-batching split lands mid-header.
	headerLen := 2
	if c.remainingInHead()[0] == 0xFF {
		headerLen = 10
	}
	hdrBytes, err := c.consume(headerLen)
	if err != nil {
		return api.Frame{}, err
	}
	_, payloadLen, more, err := decodeHeader(hdrBytes)
	if err != nil {
		return api.Frame{}, err
	}
	c.activeBytes -= headerLen

	body, err := c.consume(payloadLen)
	if err != nil {
		return api.Frame{}, err
	}
	c.activeBytes -= payloadLen
	return api.Frame{Body: body, More: more}, nil
}

// PutBytes implements api.Codec: raw bytes land in the data ring as an
// ordinary run, exactly as a small PutFrame would, but without imposing
// any header of our own — the bytes are assumed already wire-encoded.
func (c *Codec) PutBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return c.putRun(nil, b)
}

// GetBytes implements api.Codec.
func (c *Codec) GetBytes() ([]byte, error) {
	if c.batchCount == 0 {
		return nil, api.ErrEmpty
	}
	if c.hasOpen && c.batchHead == c.openSlot {
		c.hasOpen = false
	}
	avail := c.remainingInHead()
	if len(avail) == 0 {
		return nil, api.ErrEmpty
	}
	return avail, nil
}

// Tick implements api.Codec.
func (c *Codec) Tick(n int) error {
	remaining := n
	for remaining > 0 {
		if c.batchCount == 0 {
			return api.ErrCorrupt
		}
		avail := len(c.remainingInHead())
		if avail == 0 {
			return api.ErrCorrupt
		}
		take := remaining
		if take > avail {
			take = avail
		}
		c.advanceHead(take)
		c.activeBytes -= take
		remaining -= take
	}
	return nil
}

// Space implements api.Codec.
func (c *Codec) Space() int {
	if c.batchCount == c.batchCap {
		return 0
	}
	_, free := c.freeRegion()
	_, wrap := c.wrapRegion()
	if wrap > free {
		return wrap
	}
	return free
}

// Active implements api.Codec.
func (c *Codec) Active() int {
	return c.activeBytes
}

// Check implements api.Codec: walks the batch ring from head, summing
// the unread bytes of every descriptor, and asserts the total matches
// the running activeBytes counter.
func (c *Codec) Check() error {
	if c.batchCount == 0 {
		if c.activeBytes != 0 {
			return api.ErrCorrupt
		}
		return nil
	}
	sum := 0
	idx := c.batchHead
	for i := 0; i < c.batchCount; i++ {
		b := &c.batches[idx]
		length := b.length
		if b.kind == batchKindReference {
			length = len(b.ref)
		}
		if i == 0 {
			length -= c.readOff
		}
		if length < 0 {
			return api.ErrCorrupt
		}
		sum += length
		idx = (idx + 1) % c.batchCap
	}
	if sum != c.activeBytes {
		return api.ErrCorrupt
	}
	return nil
}
