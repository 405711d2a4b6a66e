package reassembly

import "errors"

// ErrVideoReassembly is returned for fragment indices that fall outside a
// packet's declared part count.
var ErrVideoReassembly = errors.New("reassembly: fragment index out of range")

// VideoPacket tracks the fragments of one encoded video frame as they
// arrive, per §3's "Video reassembly packet". It is retained by the caller
// until Complete() or it is superseded by a newer frame sequence.
type VideoPacket struct {
	Seq               uint32
	Timestamp         uint32
	PartCount         byte
	ReceivedPartCount byte
	Keyframe          bool
	Rotation          byte
	fragments         [][]byte
}

// NewVideoPacket allocates tracking state for a frame split into partCount
// fragments.
func NewVideoPacket(seq, timestamp uint32, partCount byte, keyframe bool, rotation byte) *VideoPacket {
	return &VideoPacket{
		Seq:       seq,
		Timestamp: timestamp,
		PartCount: partCount,
		Keyframe:  keyframe,
		Rotation:  rotation,
		fragments: make([][]byte, partCount),
	}
}

// AddFragment records one fragment at fragmentIndex. Re-delivering the same
// index (a duplicate on the wire) is a no-op rather than double-counting
// ReceivedPartCount.
func (v *VideoPacket) AddFragment(fragmentIndex byte, payload []byte) error {
	if int(fragmentIndex) >= len(v.fragments) {
		return ErrVideoReassembly
	}
	if v.fragments[fragmentIndex] != nil {
		return nil
	}
	v.fragments[fragmentIndex] = payload
	v.ReceivedPartCount++
	return nil
}

// Complete reports whether every fragment has arrived.
func (v *VideoPacket) Complete() bool {
	return v.ReceivedPartCount == v.PartCount
}

// Assemble concatenates all fragments in order. It is only meaningful once
// Complete reports true.
func (v *VideoPacket) Assemble() []byte {
	total := 0
	for _, f := range v.fragments {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range v.fragments {
		out = append(out, f...)
	}
	return out
}

// MissingFragmentIndex returns the index of the single missing fragment and
// true, or (0, false) if zero or more than one fragment is missing — the
// condition under which FEC recovery (via a STREAM_EC parity group) can
// still complete the frame.
func (v *VideoPacket) MissingFragmentIndex() (byte, bool) {
	missingIdx := byte(0)
	missingCount := 0
	for i, f := range v.fragments {
		if f == nil {
			missingIdx = byte(i)
			missingCount++
		}
	}
	if missingCount != 1 {
		return 0, false
	}
	return missingIdx, true
}
