package transport

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
)

// Reflector self-info constructor ids and the four 0xFFFFFFFx sentinel
// words that distinguish a reflector control datagram from an ordinary
// encrypted envelope on the wire (§6).
const (
	udpReflectorSelfInfo = 0xc01572c7
	udpReflectorPeerInfo = 0x27d9371c

	reflectorSentinel1 = 0xFFFFFFFF
	reflectorSentinel2 = 0xFFFFFFFF
	reflectorSentinel3 = 0xFFFFFFFF
	reflectorSentinel4 = 0xFFFFFFFE
)

// ErrReflector is returned for malformed reflector datagrams.
var ErrReflector = errors.New("transport: malformed reflector datagram")

// SelfInfoRequest is the ping the engine sends to a reflector to learn its
// own public endpoint, keyed to a random query id it echoes in the pong.
type SelfInfoRequest struct {
	PeerTag [16]byte
	QueryID uint64
}

// EncodeSelfInfoRequest builds the fixed-format ping described in §6:
// peer_tag(16) || 0xFFFFFFFF || 0xFFFFFFFF || 0xFFFFFFFF || 0xFFFFFFFE ||
// random_query_id(8).
func EncodeSelfInfoRequest(peerTag [16]byte) (*SelfInfoRequest, []byte, error) {
	var queryIDBuf [8]byte
	if _, err := rand.Read(queryIDBuf[:]); err != nil {
		return nil, nil, err
	}
	queryID := binary.BigEndian.Uint64(queryIDBuf[:])

	buf := make([]byte, 16+4+4+4+4+8)
	off := 0
	copy(buf[off:], peerTag[:])
	off += 16
	binary.BigEndian.PutUint32(buf[off:], reflectorSentinel1)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], reflectorSentinel2)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], reflectorSentinel3)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], reflectorSentinel4)
	off += 4
	copy(buf[off:], queryIDBuf[:])

	return &SelfInfoRequest{PeerTag: peerTag, QueryID: queryID}, buf, nil
}

// IsReflectorDatagram reports whether data matches the fixed sentinel
// layout of a reflector ping, distinguishing it from an ordinary encrypted
// envelope that happens to land on the same socket.
func IsReflectorDatagram(data []byte) bool {
	if len(data) < 16+16 {
		return false
	}
	return binary.BigEndian.Uint32(data[16:20]) == reflectorSentinel1 &&
		binary.BigEndian.Uint32(data[20:24]) == reflectorSentinel2 &&
		binary.BigEndian.Uint32(data[24:28]) == reflectorSentinel3 &&
		binary.BigEndian.Uint32(data[28:32]) == reflectorSentinel4
}

// DecodeSelfInfoRequest parses a ping built by EncodeSelfInfoRequest.
func DecodeSelfInfoRequest(data []byte) (*SelfInfoRequest, error) {
	if !IsReflectorDatagram(data) || len(data) < 16+16+8 {
		return nil, ErrReflector
	}
	var req SelfInfoRequest
	copy(req.PeerTag[:], data[:16])
	req.QueryID = binary.BigEndian.Uint64(data[32:40])
	return &req, nil
}

// PeerInfoResponse is the reflector's pong: the query id it is answering and
// the public endpoint it observed the ping arrive from.
type PeerInfoResponse struct {
	QueryID    uint64
	PublicAddr *net.UDPAddr
}

// EncodePeerInfoResponse builds the udpReflectorPeerInfo-tagged reply a
// reflector sends back: constructor id, echoed query id, then the observed
// public IP (4 or 16 bytes, length-prefixed by a type byte) and port.
func EncodePeerInfoResponse(queryID uint64, publicAddr *net.UDPAddr) []byte {
	ip4 := publicAddr.IP.To4()
	buf := make([]byte, 0, 4+8+1+16+2)
	var constructorBuf [4]byte
	binary.BigEndian.PutUint32(constructorBuf[:], udpReflectorPeerInfo)
	buf = append(buf, constructorBuf[:]...)

	var queryBuf [8]byte
	binary.BigEndian.PutUint64(queryBuf[:], queryID)
	buf = append(buf, queryBuf[:]...)

	if ip4 != nil {
		buf = append(buf, 0x01)
		buf = append(buf, ip4...)
	} else {
		buf = append(buf, 0x04)
		buf = append(buf, publicAddr.IP.To16()...)
	}

	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], uint16(publicAddr.Port))
	buf = append(buf, portBuf[:]...)
	return buf
}

// DecodePeerInfoResponse reverses EncodePeerInfoResponse.
func DecodePeerInfoResponse(data []byte) (*PeerInfoResponse, error) {
	if len(data) < 4+8+1 {
		return nil, ErrReflector
	}
	if binary.BigEndian.Uint32(data[0:4]) != udpReflectorPeerInfo {
		return nil, ErrReflector
	}
	queryID := binary.BigEndian.Uint64(data[4:12])

	addrType := data[12]
	var ip net.IP
	var rest []byte
	switch addrType {
	case 0x01:
		if len(data) < 13+4+2 {
			return nil, ErrReflector
		}
		ip = net.IP(data[13:17])
		rest = data[17:]
	case 0x04:
		if len(data) < 13+16+2 {
			return nil, ErrReflector
		}
		ip = net.IP(data[13:29])
		rest = data[29:]
	default:
		return nil, ErrReflector
	}
	if len(rest) < 2 {
		return nil, ErrReflector
	}
	port := binary.BigEndian.Uint16(rest[:2])

	return &PeerInfoResponse{
		QueryID:    queryID,
		PublicAddr: &net.UDPAddr{IP: ip, Port: int(port)},
	}, nil
}
