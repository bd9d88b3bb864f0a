// File: core/codec/header.go
// Author: momentics <momentics@gmail.com>
//
// Wire frame header encoding: a short 2-byte form for payloads up to
// 253 bytes, and a long 10-byte form above that,
// folding the continuation ("more") octet into the stored length so a
// zero stored length is never valid.

package codec

import (
	"encoding/binary"

	"github.com/momentics/vtx/api"
)

const shortFormMax = 253

func encodeHeader(payloadLen int, more bool) []byte {
	moreByte := byte(0)
	if more {
		moreByte = 1
	}
	stored := payloadLen + 1
	if payloadLen <= shortFormMax {
		return []byte{byte(stored), moreByte}
	}
	hdr := make([]byte, 10)
	hdr[0] = 0xFF
	binary.BigEndian.PutUint64(hdr[1:9], uint64(stored))
	hdr[9] = moreByte
	return hdr
}

// decodeHeader reads a header from the front of hdr, which must contain
// at least as many bytes as the header occupies. A header can straddle a
// batch boundary when its bytes arrived through PutBytes; GetFrame
// gathers it into one slice with consume before calling this.
func decodeHeader(hdr []byte) (headerLen, payloadLen int, more bool, err error) {
	if len(hdr) < 2 {
		return 0, 0, false, api.ErrCorrupt
	}
	if hdr[0] != 0xFF {
		stored := int(hdr[0])
		if stored == 0 {
			return 0, 0, false, api.ErrCorrupt
		}
		return 2, stored - 1, hdr[1] == 1, nil
	}
	if len(hdr) < 10 {
		return 0, 0, false, api.ErrCorrupt
	}
	stored := int(binary.BigEndian.Uint64(hdr[1:9]))
	if stored == 0 {
		return 0, 0, false, api.ErrCorrupt
	}
	return 10, stored - 1, hdr[9] == 1, nil
}
