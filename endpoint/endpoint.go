package endpoint

import (
	"errors"
	"net"
	"time"

	"github.com/opd-ai/voipcore/transport"
)

// Type is the transport-flavor tag of §3's Endpoint data model.
type Type int

const (
	P2PInet Type = iota
	P2PLAN
	UDPRelay
	TCPRelay
)

func (t Type) String() string {
	switch t {
	case P2PInet:
		return "P2P_INET"
	case P2PLAN:
		return "P2P_LAN"
	case UDPRelay:
		return "UDP_RELAY"
	case TCPRelay:
		return "TCP_RELAY"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidEndpoint is returned by New when the IsIPv6Only invariant of §3
// would be violated: an endpoint must carry at least one of v4/v6, and
// being IPv6-only requires an empty v4.
var ErrInvalidEndpoint = errors.New("endpoint: must carry a v4 or v6 address")

const rttHistoryCapacity = 16

// Endpoint is a candidate transport address, per §3.
type Endpoint struct {
	ID      uint64
	V4      net.IP
	V6      net.IP
	Port    int
	PeerTag [16]byte
	Type    Type

	rttHistory []time.Duration
	AverageRTT time.Duration

	pingsSent     int
	pongsReceived int
	pendingPings  map[uint32]time.Time
	LastPingTime  time.Time
	LastPingSeq   uint32

	TCPConn *transport.ObfuscatedConn
}

// New constructs an Endpoint, validating the IsIPv6Only invariant.
func New(id uint64, v4, v6 net.IP, port int, peerTag [16]byte, typ Type) (*Endpoint, error) {
	if len(v4) == 0 && len(v6) == 0 {
		return nil, ErrInvalidEndpoint
	}
	return &Endpoint{
		ID:           id,
		V4:           v4,
		V6:           v6,
		Port:         port,
		PeerTag:      peerTag,
		Type:         typ,
		pendingPings: make(map[uint32]time.Time),
	}, nil
}

// IsIPv6Only holds exactly when v4 is empty and v6 is present, per §3's
// invariant.
func (e *Endpoint) IsIPv6Only() bool {
	return len(e.V4) == 0 && len(e.V6) != 0
}

// UDPAddr returns the net.UDPAddr to send to, preferring v4 unless the
// endpoint is IPv6-only.
func (e *Endpoint) UDPAddr() *net.UDPAddr {
	ip := e.V4
	if e.IsIPv6Only() {
		ip = e.V6
	}
	return &net.UDPAddr{IP: ip, Port: e.Port}
}

// RecordPingSent registers an outbound ping with sequence number seq so a
// later RecordPong can compute its RTT.
func (e *Endpoint) RecordPingSent(seq uint32) {
	e.pingsSent++
	now := time.Now()
	e.pendingPings[seq] = now
	e.LastPingTime = now
	e.LastPingSeq = seq
}

// RecordPong matches a PONG's echoed seq against a pending ping and folds
// the resulting RTT into the moving-window history.
func (e *Endpoint) RecordPong(seq uint32) (time.Duration, bool) {
	sendTime, ok := e.pendingPings[seq]
	if !ok {
		return 0, false
	}
	delete(e.pendingPings, seq)
	e.pongsReceived++

	rtt := time.Since(sendTime)
	e.rttHistory = append(e.rttHistory, rtt)
	if len(e.rttHistory) > rttHistoryCapacity {
		e.rttHistory = e.rttHistory[1:]
	}
	e.recomputeAverageRTT()
	return rtt, true
}

func (e *Endpoint) recomputeAverageRTT() {
	if len(e.rttHistory) == 0 {
		return
	}
	var sum time.Duration
	for _, d := range e.rttHistory {
		sum += d
	}
	e.AverageRTT = sum / time.Duration(len(e.rttHistory))
}

// PongRate returns pongsReceived/pingsSent. The UDP availability probe's
// avgPongs evaluation averages the raw pong counts, not this rate.
func (e *Endpoint) PongRate() float64 {
	if e.pingsSent == 0 {
		return 0
	}
	return float64(e.pongsReceived) / float64(e.pingsSent)
}

// EffectiveRTT returns AverageRTT, doubled for TCP relays per §4.3's
// preferred-relay comparison rule ("TCP counted ×2").
func (e *Endpoint) EffectiveRTT() time.Duration {
	if e.Type == TCPRelay {
		return e.AverageRTT * 2
	}
	return e.AverageRTT
}
