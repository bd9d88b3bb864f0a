// File: core/codec/ring.go
// Author: momentics <momentics@gmail.com>
//
// Internal data-ring and batch-ring bookkeeping for Codec: placing runs,
// coalescing into the open batch, wrapping, and the cross-batch read
// cursor get-frame and get-bytes/tick share.

package codec

import "github.com/momentics/vtx/api"

// freeRegion returns the offset and length of the contiguous free span
// starting at dataTail that does not require wrapping. An empty ring
// reports its whole capacity at offset 0, since startNewRun rebases an
// empty ring to offset 0 before writing.
func (c *Codec) freeRegion() (offset, length int) {
	if c.dataUsed == 0 {
		return 0, c.dataCap
	}
	if c.dataTail > c.dataHead {
		return c.dataTail, c.dataCap - c.dataTail
	}
	if c.dataTail < c.dataHead {
		return c.dataTail, c.dataHead - c.dataTail
	}
	return c.dataTail, 0 // tail == head and used > 0: ring is full
}

// wrapRegion returns the span available at the start of the buffer if
// the tail were reset to zero. Only meaningful when the tail currently
// sits ahead of the head (the one layout a wrap is legal from).
func (c *Codec) wrapRegion() (offset, length int) {
	if c.dataUsed > 0 && c.dataTail > c.dataHead {
		return 0, c.dataHead
	}
	return 0, 0
}

// putRun writes header followed by payload as run bytes, extending the
// currently open batch when it fits, or starting a new one.
func (c *Codec) putRun(header, payload []byte) error {
	total := len(header) + len(payload)
	if c.hasOpen {
		_, avail := c.freeRegion()
		if total <= avail {
			c.appendToOpen(header, payload, total)
			return nil
		}
		c.hasOpen = false // batch can't grow further in place; close it
	}
	return c.startNewRun(header, payload, total)
}

func (c *Codec) startNewRun(header, payload []byte, total int) error {
	if c.dataUsed == 0 {
		c.dataHead, c.dataTail = 0, 0
	}
	_, free := c.freeRegion()
	if total <= free {
		return c.writeBatchAt(c.dataTail, header, payload, total)
	}
	_, wrap := c.wrapRegion()
	if total <= wrap {
		c.dataTail = 0
		return c.writeBatchAt(0, header, payload, total)
	}
	return api.ErrFull
}

func (c *Codec) writeBatchAt(offset int, header, payload []byte, total int) error {
	if c.batchCount == c.batchCap {
		return api.ErrFull
	}
	copy(c.data[offset:], header)
	copy(c.data[offset+len(header):], payload)
	c.dataTail = offset + total
	if c.dataTail == c.dataCap {
		c.dataTail = 0
	}
	c.dataUsed += total
	c.activeBytes += total
	idx := c.pushBatchSlot(batchSlot{kind: batchKindRun, offset: offset, length: total})
	c.hasOpen = true
	c.openSlot = idx
	return nil
}

func (c *Codec) appendToOpen(header, payload []byte, total int) {
	copy(c.data[c.dataTail:], header)
	copy(c.data[c.dataTail+len(header):], payload)
	c.dataTail += total
	if c.dataTail == c.dataCap {
		c.dataTail = 0
	}
	c.dataUsed += total
	c.activeBytes += total
	c.batches[c.openSlot].length += total
}

// putReference appends encoded (an already header-prefixed frame) as an
// owned reference batch, closing any open run batch first.
func (c *Codec) putReference(encoded []byte) error {
	c.hasOpen = false
	if c.batchCount == c.batchCap {
		return api.ErrFull
	}
	owned := append([]byte(nil), encoded...)
	c.pushBatchSlot(batchSlot{kind: batchKindReference, ref: owned})
	c.activeBytes += len(owned)
	return nil
}

func (c *Codec) pushBatchSlot(slot batchSlot) int {
	idx := (c.batchHead + c.batchCount) % c.batchCap
	c.batches[idx] = slot
	c.batchCount++
	return idx
}

// remainingInHead returns the unread bytes of the oldest batch.
func (c *Codec) remainingInHead() []byte {
	b := &c.batches[c.batchHead]
	if b.kind == batchKindReference {
		return b.ref[c.readOff:]
	}
	return c.data[b.offset+c.readOff : b.offset+b.length]
}

// advanceHead marks n bytes of the oldest batch as consumed, popping it
// once fully drained.
func (c *Codec) advanceHead(n int) {
	c.readOff += n
	b := &c.batches[c.batchHead]
	blen := b.length
	if b.kind == batchKindReference {
		blen = len(b.ref)
	}
	if c.readOff >= blen {
		c.popBatch()
	}
}

func (c *Codec) popBatch() {
	b := &c.batches[c.batchHead]
	if b.kind == batchKindRun {
		c.dataUsed -= b.length
		c.dataHead = b.offset + b.length
		if c.dataHead == c.dataCap {
			c.dataHead = 0
		}
	}
	if c.batchHead == c.openSlot {
		c.hasOpen = false
	}
	*b = batchSlot{}
	c.batchHead = (c.batchHead + 1) % c.batchCap
	c.batchCount--
	c.readOff = 0
}

// consume returns exactly n bytes from the FIFO and advances past them,
// copying only when the run straddles more than one batch.
func (c *Codec) consume(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if avail := c.remainingInHead(); len(avail) >= n {
		out := avail[:n:n]
		c.advanceHead(n)
		return out, nil
	}
	out := make([]byte, n)
	written := 0
	for written < n {
		if c.batchCount == 0 {
			return nil, api.ErrCorrupt
		}
		avail := c.remainingInHead()
		if len(avail) == 0 {
			return nil, api.ErrCorrupt
		}
		take := n - written
		if take > len(avail) {
			take = len(avail)
		}
		copy(out[written:], avail[:take])
		written += take
		c.advanceHead(take)
	}
	return out, nil
}
