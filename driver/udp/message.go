// File: driver/udp/message.go
// Author: momentics <momentics@gmail.com>
//
// Bridges a vocket-level message (one or more api.Frame, the last with
// More == false) to and from a NOM datagram's body: a NOM's body is one
// or more wire frames, back to back, in the same encoding the codec
// uses internally.

package udp

import (
	"github.com/momentics/vtx/api"
	"github.com/momentics/vtx/core/codec"
)

// encodeMessage sizes its throwaway codec off the driver's own msgMax
// rather than the generic codecDataCap tunable: a per-message codec is
// allocated fresh on every send, so it should track the datagram
// ceiling actually in force, not a capacity meant for a long-lived
// per-connection codec (see the TCP driver's readCodec/writeCodec).
func (d *Driver) encodeMessage(msg []api.Frame) ([]byte, error) {
	batchCap := d.codecBatchCap
	if need := len(msg) + 1; need > batchCap {
		batchCap = need
	}
	c := codec.New(d.msgMax*2, batchCap, d.smallCutoff)
	for _, f := range msg {
		if err := c.PutFrame(f); err != nil {
			return nil, err
		}
	}
	var out []byte
	for {
		chunk, err := c.GetBytes()
		if err == api.ErrEmpty {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if err := c.Tick(len(chunk)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Driver) decodeMessage(body []byte) ([]api.Frame, error) {
	if len(body) == 0 {
		return nil, nil
	}
	batchCap := d.codecBatchCap
	if batchCap < 16 {
		batchCap = 16
	}
	c := codec.New(len(body)+8, batchCap, d.smallCutoff)
	if err := c.PutBytes(body); err != nil {
		return nil, err
	}
	var msg []api.Frame
	for {
		f, err := c.GetFrame()
		if err == api.ErrEmpty {
			break
		}
		if err != nil {
			return nil, err
		}
		msg = append(msg, f)
		if !f.More {
			break
		}
	}
	return msg, nil
}
