package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

// Long-header TL constructor ids, used before both peers negotiate the
// compact short encoding (protocol version >= 8). The handshake-only
// constructor additionally carries a call-id for verification; the
// steady-state constructor does not.
const (
	tlDecryptedAudioBlock uint32 = 0x978f1b38
	tlSimpleAudioBlock    uint32 = 0xcda5b4bc
)

// ErrLongHeader is returned when a buffer cannot be parsed as a long-form
// header, or when a call-id mismatch is detected during the handshake
// (§4.1's "fatal during handshake" failure policy).
var ErrLongHeader = errors.New("wire: malformed or mismatched long header")

// EncodeLong serializes the header using the TL-tagged long encoding. When
// callID is non-nil the handshake constructor is used and callID is embedded
// for the peer to verify; pass nil once the call is established.
func (h *PacketHeader) EncodeLong(callID []byte) ([]byte, error) {
	short, err := h.EncodeShort()
	if err != nil {
		return nil, err
	}

	pad := make([]byte, 4+randPadLen())
	if _, err := rand.Read(pad); err != nil {
		return nil, err
	}
	randID := make([]byte, 8)
	if _, err := rand.Read(randID); err != nil {
		return nil, err
	}

	constructor := tlSimpleAudioBlock
	if callID != nil {
		constructor = tlDecryptedAudioBlock
	}

	buf := make([]byte, 0, 16+len(pad)+len(short)+len(callID))
	buf = binary.LittleEndian.AppendUint32(buf, constructor)
	buf = append(buf, randID...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pad)))
	buf = append(buf, pad...)
	if callID != nil {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(callID)))
		buf = append(buf, callID...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(short)))
	buf = append(buf, short...)
	return buf, nil
}

// DecodeLong parses a long-form header. expectCallID, when non-nil, is
// compared against the embedded call-id and a mismatch is reported via
// ErrLongHeader — the caller is responsible for treating that as fatal
// during the handshake and as a silent drop afterward, per §4.1.
func DecodeLong(data []byte, expectCallID []byte) (*PacketHeader, error) {
	if len(data) < 16 {
		return nil, ErrLongHeader
	}
	constructor := binary.LittleEndian.Uint32(data[0:4])
	pos := 12 // skip constructor(4) + randID(8)

	if pos+4 > len(data) {
		return nil, ErrLongHeader
	}
	padLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if padLen < 0 || pos+padLen > len(data) {
		return nil, ErrLongHeader
	}
	pos += padLen

	if constructor == tlDecryptedAudioBlock {
		if pos+4 > len(data) {
			return nil, ErrLongHeader
		}
		idLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if idLen < 0 || pos+idLen > len(data) {
			return nil, ErrLongHeader
		}
		callID := data[pos : pos+idLen]
		pos += idLen
		if expectCallID != nil && !bytesEqual(callID, expectCallID) {
			return nil, ErrLongHeader
		}
	}

	if pos+4 > len(data) {
		return nil, ErrLongHeader
	}
	shortLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if shortLen < 0 || pos+shortLen > len(data) {
		return nil, ErrLongHeader
	}
	return DecodeShort(data[pos : pos+shortLen])
}

// randPadLen picks a random amount of extra long-header padding in [0, 63]
// bytes, enough to defeat simple length fingerprinting without materially
// inflating handshake packets.
func randPadLen() int {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return int(b[0] & 0x3f)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
