package wire

import (
	"encoding/binary"
	"errors"
)

// Stream-data payload flag bits, packed into the two high bits of the
// leading stream-id byte and, for the 16-bit length form, the three high
// bits of the length field (§4.1).
const (
	sdFlagLen16     byte = 1 << 7
	sdFlagStreamExt byte = 1 << 6

	sdLen16Keyframe   uint16 = 1 << 15
	sdLen16Fragmented uint16 = 1 << 14
	sdLen16ExtraFEC   uint16 = 1 << 13
	sdLen16Mask       uint16 = 0x1fff
)

// ErrStreamData is returned on malformed stream-data payloads.
var ErrStreamData = errors.New("wire: malformed stream-data payload")

// StreamDataFrame is one audio or video media unit as carried inside a
// STREAM_DATA (or _X2/_X3, or STREAM_EC trailer) payload.
type StreamDataFrame struct {
	StreamID        byte
	Timestamp       uint32
	Keyframe        bool
	Fragmented      bool
	ExtraFEC        bool
	FragmentIndex   byte
	FragmentCount   byte
	Payload         []byte
	TrailingECCopies [][]byte
}

// EncodeStreamData serializes a single media frame. A two-byte length is
// used whenever the payload exceeds 255 bytes, or any of Keyframe/
// Fragmented/ExtraFEC is set, since those flags only exist in the 16-bit
// length form.
func EncodeStreamData(f *StreamDataFrame) ([]byte, error) {
	if f.StreamID > 0x3f {
		return nil, errors.New("wire: stream id exceeds 6 bits")
	}
	needLen16 := len(f.Payload) > 255 || f.Keyframe || f.Fragmented || f.ExtraFEC
	if len(f.Payload) > int(sdLen16Mask) {
		return nil, errors.New("wire: stream-data payload too large")
	}

	idByte := f.StreamID
	if needLen16 {
		idByte |= sdFlagLen16
	}

	buf := []byte{idByte}
	if needLen16 {
		lf := uint16(len(f.Payload)) & sdLen16Mask
		if f.Keyframe {
			lf |= sdLen16Keyframe
		}
		if f.Fragmented {
			lf |= sdLen16Fragmented
		}
		if f.ExtraFEC {
			lf |= sdLen16ExtraFEC
		}
		buf = binary.LittleEndian.AppendUint16(buf, lf)
	} else {
		buf = append(buf, byte(len(f.Payload)))
	}

	buf = binary.LittleEndian.AppendUint32(buf, f.Timestamp)
	if f.Fragmented {
		buf = append(buf, f.FragmentIndex, f.FragmentCount)
	}
	buf = append(buf, f.Payload...)

	if f.ExtraFEC {
		buf = append(buf, byte(len(f.TrailingECCopies)))
		for _, copyBuf := range f.TrailingECCopies {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(copyBuf)))
			buf = append(buf, copyBuf...)
		}
	}
	return buf, nil
}

// DecodeStreamData parses one media frame and returns the number of bytes
// consumed, so callers can walk a STREAM_DATA_X2/X3 concatenation.
func DecodeStreamData(data []byte) (*StreamDataFrame, int, error) {
	if len(data) < 1 {
		return nil, 0, ErrStreamData
	}
	idByte := data[0]
	len16 := idByte&sdFlagLen16 != 0
	f := &StreamDataFrame{StreamID: idByte & 0x3f}
	pos := 1

	var length int
	if len16 {
		if pos+2 > len(data) {
			return nil, 0, ErrStreamData
		}
		lf := binary.LittleEndian.Uint16(data[pos : pos+2])
		pos += 2
		f.Keyframe = lf&sdLen16Keyframe != 0
		f.Fragmented = lf&sdLen16Fragmented != 0
		f.ExtraFEC = lf&sdLen16ExtraFEC != 0
		length = int(lf & sdLen16Mask)
	} else {
		if pos+1 > len(data) {
			return nil, 0, ErrStreamData
		}
		length = int(data[pos])
		pos++
	}

	if pos+4 > len(data) {
		return nil, 0, ErrStreamData
	}
	f.Timestamp = binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	if f.Fragmented {
		if pos+2 > len(data) {
			return nil, 0, ErrStreamData
		}
		f.FragmentIndex = data[pos]
		f.FragmentCount = data[pos+1]
		pos += 2
	}

	if pos+length > len(data) {
		return nil, 0, ErrStreamData
	}
	f.Payload = make([]byte, length)
	copy(f.Payload, data[pos:pos+length])
	pos += length

	if f.ExtraFEC {
		if pos+1 > len(data) {
			return nil, 0, ErrStreamData
		}
		count := int(data[pos])
		pos++
		for i := 0; i < count; i++ {
			if pos+2 > len(data) {
				return nil, 0, ErrStreamData
			}
			clen := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
			pos += 2
			if pos+clen > len(data) {
				return nil, 0, ErrStreamData
			}
			cp := make([]byte, clen)
			copy(cp, data[pos:pos+clen])
			f.TrailingECCopies = append(f.TrailingECCopies, cp)
			pos += clen
		}
	}

	return f, pos, nil
}

// EncodeConcatenated builds a STREAM_DATA_X2/X3 payload: a simple
// concatenation of 2 or 3 frame encodings, used at high packet rates to
// amortize header and crypto cost (§4.1).
func EncodeConcatenated(frames []*StreamDataFrame) ([]byte, error) {
	if len(frames) < 2 || len(frames) > 3 {
		return nil, errors.New("wire: concatenated stream-data must hold 2 or 3 frames")
	}
	var buf []byte
	for _, f := range frames {
		enc, err := EncodeStreamData(f)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// DecodeConcatenated parses a STREAM_DATA_X2/X3 payload back into its
// constituent frames.
func DecodeConcatenated(data []byte, count int) ([]*StreamDataFrame, error) {
	frames := make([]*StreamDataFrame, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		f, consumed, err := DecodeStreamData(data[pos:])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		pos += consumed
	}
	return frames, nil
}
