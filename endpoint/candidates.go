package endpoint

// tag4 packs a 4-character ASCII tag into the high 32 bits of a 64-bit id,
// matching the `'IPv6' << 32`-style literal ids in §4.3.
func tag4(s string) uint64 {
	var v uint64
	for i := 0; i < 4 && i < len(s); i++ {
		v = v<<8 | uint64(s[i])
	}
	return v << 32
}

var (
	tagIPv6 = tag4("IPv6")
	tagTCP  = tag4("TCP ")
	tagP2P4 = tag4("P2P4")
	tagP2P6 = tag4("P2P6")
	tagLAN4 = tag4("LAN4")
)

// IPv6MirrorID derives the id for the IPv6 mirror of a dual-stack relay.
func IPv6MirrorID(origID uint64) uint64 { return origID ^ tagIPv6 }

// TCPMirrorID derives the id for the lazily generated TCP mirror of a
// relay once UDP is judged unusable.
func TCPMirrorID(origID uint64) uint64 { return origID ^ tagTCP }

// P2PCandidateID is the synthetic id for a peer's observed public address,
// learned from a reflector's peer-info reply.
func P2PCandidateID(ipv6Only bool) uint64 {
	if ipv6Only {
		return tagP2P6
	}
	return tagP2P4
}

// LANCandidateID is the synthetic id for a peer LAN_ENDPOINT candidate.
func LANCandidateID() uint64 { return tagLAN4 }
