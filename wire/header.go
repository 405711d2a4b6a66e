package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketType identifies the type of a decrypted call-engine packet. Values
// match §4.1 of the wire protocol specification.
type PacketType byte

const (
	PacketInit PacketType = iota + 1
	PacketInitAck
	PacketStreamState
	PacketStreamData
	PacketStreamDataX2
	PacketStreamDataX3
	PacketUpdateStreams
	PacketPing
	PacketPong
	PacketLANEndpoint
	PacketNetworkChanged
	PacketSwitchPrefRelay
	PacketSwitchToP2P
	PacketNop
	PacketStreamEC
)

// String returns a human-readable packet type name, used in log fields.
func (t PacketType) String() string {
	switch t {
	case PacketInit:
		return "INIT"
	case PacketInitAck:
		return "INIT_ACK"
	case PacketStreamState:
		return "STREAM_STATE"
	case PacketStreamData:
		return "STREAM_DATA"
	case PacketStreamDataX2:
		return "STREAM_DATA_X2"
	case PacketStreamDataX3:
		return "STREAM_DATA_X3"
	case PacketUpdateStreams:
		return "UPDATE_STREAMS"
	case PacketPing:
		return "PING"
	case PacketPong:
		return "PONG"
	case PacketLANEndpoint:
		return "LAN_ENDPOINT"
	case PacketNetworkChanged:
		return "NETWORK_CHANGED"
	case PacketSwitchPrefRelay:
		return "SWITCH_PREF_RELAY"
	case PacketSwitchToP2P:
		return "SWITCH_TO_P2P"
	case PacketNop:
		return "NOP"
	case PacketStreamEC:
		return "STREAM_EC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// Header flag bits for the short encoding.
const (
	FlagHasExtra byte = 1 << iota
	FlagHasRecvTime
)

// ErrShortHeader is returned when a buffer is too small to hold a valid
// short header.
var ErrShortHeader = errors.New("wire: buffer too short for packet header")

// ErrExtraTooLarge is returned when an extra payload exceeds the 254-byte
// per-extra cap enforced when piggybacking extras on outbound packets.
var ErrExtraTooLarge = errors.New("wire: extra payload exceeds 254 bytes")

// Extra is a small typed payload piggybacked on outbound packets until
// acknowledged. See §4.4.
type Extra struct {
	Type    byte
	Payload []byte
}

// PacketHeader is the decrypted payload carried inside every envelope.
type PacketHeader struct {
	Type           PacketType
	LastRemoteSeq  uint32
	Seq            uint32
	AckBitmap      uint32
	Extras         []Extra
	RecvTimestamp  uint32
	HasRecvTime    bool
}

// EncodeShort serializes the header using the compact encoding selected
// when both peers report protocol version >= 8.
func (h *PacketHeader) EncodeShort() ([]byte, error) {
	flags := byte(0)
	if len(h.Extras) > 0 {
		flags |= FlagHasExtra
	}
	if h.HasRecvTime {
		flags |= FlagHasRecvTime
	}

	buf := make([]byte, 0, 14)
	buf = append(buf, byte(h.Type))
	buf = binary.LittleEndian.AppendUint32(buf, h.LastRemoteSeq)
	buf = binary.LittleEndian.AppendUint32(buf, h.Seq)
	buf = binary.LittleEndian.AppendUint32(buf, h.AckBitmap)
	buf = append(buf, flags)

	if flags&FlagHasExtra != 0 {
		encoded, err := encodeExtras(h.Extras)
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	if flags&FlagHasRecvTime != 0 {
		buf = binary.LittleEndian.AppendUint32(buf, h.RecvTimestamp)
	}
	return buf, nil
}

// DecodeShort parses a header encoded with EncodeShort.
func DecodeShort(data []byte) (*PacketHeader, error) {
	if len(data) < 14 {
		return nil, ErrShortHeader
	}
	h := &PacketHeader{
		Type:          PacketType(data[0]),
		LastRemoteSeq: binary.LittleEndian.Uint32(data[1:5]),
		Seq:           binary.LittleEndian.Uint32(data[5:9]),
		AckBitmap:     binary.LittleEndian.Uint32(data[9:13]),
	}
	flags := data[13]
	rest := data[14:]

	if flags&FlagHasExtra != 0 {
		extras, consumed, err := decodeExtras(rest)
		if err != nil {
			return nil, err
		}
		h.Extras = extras
		rest = rest[consumed:]
	}
	if flags&FlagHasRecvTime != 0 {
		if len(rest) < 4 {
			return nil, ErrShortHeader
		}
		h.HasRecvTime = true
		h.RecvTimestamp = binary.LittleEndian.Uint32(rest[:4])
	}
	return h, nil
}

// encodeExtras serializes a length-prefixed list of {len, type, bytes}
// extras, each capped at 254 payload bytes (§4.4).
func encodeExtras(extras []Extra) ([]byte, error) {
	buf := []byte{byte(len(extras))}
	for _, e := range extras {
		if len(e.Payload) > 254 {
			return nil, ErrExtraTooLarge
		}
		buf = append(buf, byte(len(e.Payload)), e.Type)
		buf = append(buf, e.Payload...)
	}
	return buf, nil
}

// decodeExtras parses the extras list and returns the number of bytes
// consumed from data.
func decodeExtras(data []byte) ([]Extra, int, error) {
	if len(data) < 1 {
		return nil, 0, ErrShortHeader
	}
	count := int(data[0])
	pos := 1
	extras := make([]Extra, 0, count)
	for i := 0; i < count; i++ {
		if pos+2 > len(data) {
			return nil, 0, ErrShortHeader
		}
		length := int(data[pos])
		typ := data[pos+1]
		pos += 2
		if pos+length > len(data) {
			return nil, 0, ErrShortHeader
		}
		payload := make([]byte, length)
		copy(payload, data[pos:pos+length])
		pos += length
		extras = append(extras, Extra{Type: typ, Payload: payload})
	}
	return extras, pos, nil
}
