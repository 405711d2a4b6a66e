package endpoint

import (
	"github.com/opd-ai/voipcore/config"
)

// UDPAvailability is the classification produced by the UDP availability
// probe of §4.3.
type UDPAvailability int

const (
	UDPUnknown UDPAvailability = iota
	UDPAvailable
	UDPBad
	UDPNotAvailable
)

// Table owns the full set of candidate endpoints for a call, plus the
// running UDP-probe round count. Per §5 it is mutated only from the
// scheduler.
type Table struct {
	cfg *config.ServerConfig

	byID map[uint64]*Endpoint

	probeRound     int
	udpState       UDPAvailability
	usingSocksProxy bool

	currentID   uint64
	preferredID uint64
}

// NewTable creates an empty endpoint table.
func NewTable(cfg *config.ServerConfig) *Table {
	return &Table{cfg: cfg, byID: make(map[uint64]*Endpoint)}
}

// Add registers an endpoint, keyed by its id. Re-adding the same id
// replaces the prior entry.
func (t *Table) Add(e *Endpoint) { t.byID[e.ID] = e }

// Get looks up an endpoint by id.
func (t *Table) Get(id uint64) (*Endpoint, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// All returns every tracked endpoint, in no particular order.
func (t *Table) All() []*Endpoint {
	out := make([]*Endpoint, 0, len(t.byID))
	for _, e := range t.byID {
		out = append(out, e)
	}
	return out
}

// Remove deletes an endpoint (e.g. on transport socket error, §7).
func (t *Table) Remove(id uint64) { delete(t.byID, id) }

// RecordProbeRound advances the UDP-probe round counter by one and, at
// rounds 4 and 10, evaluates avgPongs across UDP relay endpoints per the
// single indexed table the design notes call for (no separate overlapping
// thresholds at the two rounds — same classification rule both times).
func (t *Table) RecordProbeRound() UDPAvailability {
	t.probeRound++
	if t.probeRound != 4 && t.probeRound != 10 {
		return t.udpState
	}

	var sum float64
	var count int
	for _, e := range t.byID {
		if e.Type == UDPRelay {
			sum += float64(e.pongsReceived)
			count++
		}
	}
	if count == 0 {
		return t.udpState
	}
	avgPongs := sum / float64(count)

	switch {
	case avgPongs == 0:
		if t.usingSocksProxy && t.udpState != UDPNotAvailable {
			// First zero-pong evaluation while proxied: collapse the
			// tunnel and retry direct before labelling UDP bad, per §4.3.
			t.usingSocksProxy = false
		} else {
			t.udpState = UDPNotAvailable
		}
	case avgPongs < 3:
		t.udpState = UDPBad
	default:
		t.udpState = UDPAvailable
	}
	return t.udpState
}

// UDPState returns the last computed UDP availability classification.
func (t *Table) UDPState() UDPAvailability { return t.udpState }

// SetUsingSocksProxy records whether the active UDP transport is tunneled
// through a SOCKS5 proxy, which changes the first-NOT_AVAILABLE handling.
func (t *Table) SetUsingSocksProxy(v bool) { t.usingSocksProxy = v }

// SelectPreferredRelay picks, among relay-type endpoints with at least one
// RTT sample, the one with the smallest EffectiveRTT (TCP counted x2), per
// §4.3.
func (t *Table) SelectPreferredRelay() (*Endpoint, bool) {
	var best *Endpoint
	for _, e := range t.byID {
		if e.Type != UDPRelay && e.Type != TCPRelay {
			continue
		}
		if e.AverageRTT == 0 {
			continue
		}
		if best == nil || e.EffectiveRTT() < best.EffectiveRTT() {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	t.preferredID = best.ID
	return best, true
}

// Current returns the endpoint currently used for outbound traffic.
func (t *Table) Current() (*Endpoint, bool) {
	return t.Get(t.currentID)
}

// SetCurrent switches the current outbound endpoint.
func (t *Table) SetCurrent(id uint64) { t.currentID = id }

// MaybeSwitchToPreferred applies the hysteresis rules of §4.3: a non-relay
// current endpoint degrading beyond p2p_to_relay_switch_threshold switches
// to the preferred relay; a relay current endpoint whose preferred P2P
// candidate's RTT beats relay_to_p2p_switch_threshold switches to P2P.
func (t *Table) MaybeSwitchToPreferred(p2p *Endpoint) {
	current, ok := t.Current()
	if !ok {
		return
	}
	preferred, hasPreferred := t.byID[t.preferredID]

	if current.Type != TCPRelay && current.Type != UDPRelay {
		if p2p != nil && current.AverageRTT > 0 &&
			float64(p2p.AverageRTT) > float64(current.AverageRTT)*t.cfg.P2PToRelaySwitchThreshold {
			if hasPreferred {
				t.currentID = preferred.ID
			}
		}
		return
	}

	if p2p != nil && p2p.AverageRTT > 0 && current.AverageRTT > 0 &&
		float64(p2p.AverageRTT) < float64(current.AverageRTT)*t.cfg.RelayToP2PSwitchThreshold {
		t.currentID = p2p.ID
	}
}
