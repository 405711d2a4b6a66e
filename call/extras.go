package call

import (
	"github.com/opd-ai/voipcore/wire"
)

// Extra type codes for the piggybacked extras of §4.4.
const (
	ExtraStreamFlags  byte = 1
	ExtraStreamCSD    byte = 2
	ExtraLANEndpoint  byte = 3
	ExtraNetworkChanged byte = 4
	ExtraGroupCallKey byte = 5
	ExtraRequestGroup byte = 6
	ExtraIPv6Endpoint byte = 7
)

type trackedExtra struct {
	extraType          byte
	payload            []byte
	firstContainingSeq uint32
	everSent           bool
}

// extraSet tracks the currentExtras list of §4.4: every outbound packet
// carries the whole set until each extra's carrying packet is acked.
type extraSet struct {
	byType map[byte]*trackedExtra
}

func newExtraSet() *extraSet {
	return &extraSet{byType: make(map[byte]*trackedExtra)}
}

// Set adds or replaces an extra of the given type, resetting its
// first_containing_seq so it starts being piggybacked again.
func (s *extraSet) Set(extraType byte, payload []byte) {
	s.byType[extraType] = &trackedExtra{extraType: extraType, payload: payload}
}

// BuildForSend returns the wire-ready extras list for a packet about to be
// assigned seq, stamping first_containing_seq on any not-yet-sent extra.
func (s *extraSet) BuildForSend(seq uint32) []wire.Extra {
	out := make([]wire.Extra, 0, len(s.byType))
	for _, te := range s.byType {
		if !te.everSent {
			te.firstContainingSeq = seq
			te.everSent = true
		}
		out = append(out, wire.Extra{Type: te.extraType, Payload: te.payload})
	}
	return out
}

// AckThrough removes every extra whose first_containing_seq has been
// acknowledged (seen in last_remote_ack_seq or earlier), per §4.4/§8
// invariant 6.
func (s *extraSet) AckThrough(lastRemoteAckSeq uint32) {
	for t, te := range s.byType {
		if te.everSent && wire.SeqGTE(lastRemoteAckSeq, te.firstContainingSeq) {
			delete(s.byType, t)
		}
	}
}

// Len reports how many distinct extra types are currently tracked.
func (s *extraSet) Len() int { return len(s.byType) }
