package reassembly

import (
	"encoding/binary"
	"errors"

	"github.com/rs/xid"
)

// ErrParityFEC is returned for malformed FEC group input.
var ErrParityFEC = errors.New("reassembly: malformed parity FEC group")

// GroupID tags one FEC group (§4.4: "for every 3 frames, a parity FEC
// packet is emitted"), letting the sender and receiver correlate which
// STREAM_EC packet covers which three STREAM_DATA packets without relying
// on sequence-number adjacency alone.
type GroupID = xid.ID

// NewGroupID allocates a new FEC group identifier.
func NewGroupID() GroupID {
	return xid.New()
}

// EncodeParityFEC XORs a list of equal-or-unequal-length byte buffers
// (zero-padded to the longest) and appends each input's original length as
// a trailing big-endian uint16, per §8 invariant 3 and scenario S5.
func EncodeParityFEC(parts [][]byte) []byte {
	maxLen := 0
	for _, p := range parts {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}

	xored := make([]byte, maxLen)
	for _, p := range parts {
		for i, b := range p {
			xored[i] ^= b
		}
	}

	out := make([]byte, maxLen+2*len(parts))
	copy(out, xored)
	off := maxLen
	for _, p := range parts {
		binary.BigEndian.PutUint16(out[off:], uint16(len(p)))
		off += 2
	}
	return out
}

// DecodeParityFEC reconstructs exactly one erased element (represented as
// nil in parts) from the remaining elements and the FEC group produced by
// EncodeParityFEC. It returns nil when zero or two-or-more elements are
// erased, since parity FEC can only recover a single loss per group.
func DecodeParityFEC(parts [][]byte, fec []byte) []byte {
	erasedIdx := -1
	erasedCount := 0
	for i, p := range parts {
		if p == nil {
			erasedCount++
			erasedIdx = i
		}
	}
	if erasedCount != 1 {
		return nil
	}

	n := len(parts)
	if len(fec) < 2*n {
		return nil
	}
	maxLen := len(fec) - 2*n

	lengths := make([]int, n)
	off := maxLen
	for i := 0; i < n; i++ {
		lengths[i] = int(binary.BigEndian.Uint16(fec[off:]))
		off += 2
	}

	recovered := make([]byte, maxLen)
	copy(recovered, fec[:maxLen])
	for i, p := range parts {
		if i == erasedIdx {
			continue
		}
		for j, b := range p {
			recovered[j] ^= b
		}
	}

	erasedLen := lengths[erasedIdx]
	if erasedLen > maxLen {
		return nil
	}
	return recovered[:erasedLen]
}
