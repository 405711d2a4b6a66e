package jitter

import (
	"math"
	"time"

	"github.com/opd-ai/voipcore/config"
)

// Outcome is the result of one HandleOutput call.
type Outcome int

const (
	// OK means the exact slot for the requested timestamp was found.
	OK Outcome = iota
	// REPLACED means the exact slot was missing but a non-EC neighbor
	// within the replace radius stood in for it.
	REPLACED
	// MISSING means no slot and no usable neighbor were found.
	MISSING
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case REPLACED:
		return "REPLACED"
	default:
		return "MISSING"
	}
}

// Slot is one jitter buffer entry: an owned payload at a given timestamp,
// tagged as to whether it is an error-correction copy rather than primary
// data (§3's "Jitter slot").
type Slot struct {
	Timestamp    uint32
	Payload      []byte
	IsEC         bool
	ArrivedDelta time.Duration
}

// replaceRadiusSlots bounds how far HandleOutput will look, in step
// multiples, for a substitute neighbor on a miss.
const replaceRadiusSlots = 3

// Buffer is a single stream's jitter buffer. It is owned exclusively by the
// scheduler, per §5; none of its methods are safe for concurrent use.
type Buffer struct {
	params config.JitterParams
	stepMS uint32

	active  map[uint32]*Slot
	history map[uint32]*Slot

	fresh         bool
	nextTimestamp uint32
	delay         int // current delay, in step units

	lateCount int
	// lostCount is consecutive misses since the last exact-slot hit; it
	// drives the loss-count-threshold half of the reset condition and
	// resets to 0 on any hit, unlike lostSinceReset.
	lostCount      int
	lostSinceReset int
	gotSinceReset  int
	wasReset       bool

	arrivalDeltaHistory []time.Duration
	lastArrival         time.Time

	delayHistory    []int
	dontIncDelay    int
	dontDecDelay    int
	pendingPlaybackScaleUp   bool
	pendingPlaybackScaleDown bool
}

// New creates a jitter buffer for a stream with the given frame duration in
// milliseconds, looking up §8's per-duration defaults from cfg.
func New(cfg *config.ServerConfig, frameDurationMS int) *Buffer {
	p := cfg.JitterParamsFor(frameDurationMS)
	return &Buffer{
		params:  p,
		stepMS:  uint32(frameDurationMS),
		active:  make(map[uint32]*Slot),
		history: make(map[uint32]*Slot),
		fresh:   true,
		delay:   p.MinDelay,
	}
}

// HandleInput inserts one received packet into the buffer, applying the
// insertion rules of §4.5.
func (b *Buffer) HandleInput(timestamp uint32, payload []byte, isEC bool) {
	if existing, ok := b.active[timestamp]; ok {
		if isEC {
			return // EC slots never overwrite existing data, EC or not.
		}
		existing.IsEC = false
		existing.Payload = payload
		return
	}

	if b.fresh {
		b.resync(timestamp)
	}

	addition := uint32(b.params.MaxDelay) * b.stepMS
	b.recordArrival()

	if timestamp+addition < b.nextTimestamp {
		b.lateCount++
		return
	}

	if len(b.active) >= b.params.MaxAllowedSlots {
		oldest := b.oldestActiveTimestamp()
		if timestamp < oldest {
			return // incoming is older than everything buffered; drop it.
		}
		delete(b.active, oldest)
	}

	b.active[timestamp] = &Slot{Timestamp: timestamp, Payload: payload, IsEC: isEC}
}

func (b *Buffer) resync(timestamp uint32) {
	offset := uint32(b.delay) * b.stepMS
	if timestamp >= offset {
		b.nextTimestamp = timestamp - offset
	} else {
		b.nextTimestamp = 0
	}
	b.fresh = false
}

func (b *Buffer) oldestActiveTimestamp() uint32 {
	var oldest uint32
	first := true
	for ts := range b.active {
		if first || ts < oldest {
			oldest = ts
			first = false
		}
	}
	return oldest
}

func (b *Buffer) recordArrival() {
	now := time.Now()
	if !b.lastArrival.IsZero() {
		delta := now.Sub(b.lastArrival)
		b.arrivalDeltaHistory = append(b.arrivalDeltaHistory, delta)
		if len(b.arrivalDeltaHistory) > 64 {
			b.arrivalDeltaHistory = b.arrivalDeltaHistory[1:]
		}
	}
	b.lastArrival = now
}

// HandleOutput requests the slot for next_timestamp + offset*step, per
// §4.5. A zero offset is the normal one-frame output tick from the decoder;
// nonzero offsets are used by lookahead callers (e.g. FEC concealment).
func (b *Buffer) HandleOutput(offset int) ([]byte, Outcome, bool) {
	target := b.nextTimestamp + uint32(offset)*b.stepMS

	if slot, ok := b.active[target]; ok {
		b.lostCount = 0
		payload := slot.Payload
		isEC := slot.IsEC
		if offset == 0 {
			delete(b.active, target)
			b.history[target] = slot
			b.pruneHistory(target)
			b.gotSinceReset++
			b.advance()
		}
		return payload, OK, isEC
	}

	if neighbor, ok := b.findNeighbor(target); ok {
		if offset == 0 {
			b.lostCount++
			b.lostSinceReset++
			b.advance()
			b.maybeReset()
		}
		return neighbor.Payload, REPLACED, neighbor.IsEC
	}

	if offset == 0 {
		b.lostCount++
		b.lostSinceReset++
		b.advance()
		b.maybeReset()
	}
	return nil, MISSING, false
}

func (b *Buffer) findNeighbor(target uint32) (*Slot, bool) {
	for d := uint32(1); d <= replaceRadiusSlots; d++ {
		delta := d * b.stepMS
		if s, ok := b.history[target-delta]; ok && !s.IsEC {
			return s, true
		}
		if s, ok := b.active[target+delta]; ok && !s.IsEC {
			return s, true
		}
		if s, ok := b.history[target+delta]; ok && !s.IsEC {
			return s, true
		}
		if s, ok := b.active[target-delta]; ok && !s.IsEC {
			return s, true
		}
	}
	return nil, false
}

func (b *Buffer) advance() {
	b.nextTimestamp += b.stepMS
}

func (b *Buffer) pruneHistory(deliveredTimestamp uint32) {
	radius := uint32(replaceRadiusSlots) * b.stepMS
	for ts := range b.history {
		if ts+radius < deliveredTimestamp {
			delete(b.history, ts)
		}
	}
}

// maybeReset mirrors the original jitter buffer's reset condition: either
// lostCount consecutive misses in a row, or a majority-lost ratio once
// enough packets have arrived since the last reset.
func (b *Buffer) maybeReset() {
	shouldReset := b.lostCount >= b.params.LossesToReset ||
		(b.gotSinceReset > b.delay*25 && b.lostSinceReset > b.gotSinceReset/2)
	if !shouldReset {
		return
	}
	b.lostCount = 0
	b.dontIncDelay = 16
	b.dontDecDelay += 128
	b.reset()
}

// reset clears every slot and counter so the buffer starts fresh from the
// next HandleInput, matching a lost-sync recovery: all buffered data is
// presumed too stale to deliver correctly against a resynced timeline.
func (b *Buffer) reset() {
	b.wasReset = true
	b.active = make(map[uint32]*Slot)
	b.history = make(map[uint32]*Slot)
	b.fresh = true
	b.nextTimestamp = 0
	b.lostSinceReset = 0
	b.gotSinceReset = 0
	b.arrivalDeltaHistory = nil
	b.lastArrival = time.Time{}
	b.delayHistory = nil
}

// WasReset reports and clears whether the last output caused a reset
// condition (loss threshold or loss ratio exceeded).
func (b *Buffer) WasReset() bool {
	v := b.wasReset
	b.wasReset = false
	return v
}

// LostSinceReset returns the running miss count since the last reset.
func (b *Buffer) LostSinceReset() int { return b.lostSinceReset }

// LateCount returns the total count of packets discarded as arriving too
// late to be admitted.
func (b *Buffer) LateCount() int { return b.lateCount }

// ActiveSlotCount returns the number of slots currently pending delivery.
func (b *Buffer) ActiveSlotCount() int { return len(b.active) }

// Delay returns the current adaptive delay, in step units.
func (b *Buffer) Delay() int { return b.delay }

// AdjustDelay runs the 500 ms adaptive delay tick from §4.5: it estimates
// the arrival-deviation standard deviation, derives a target delay clamped
// to [min_delay, max_delay], and moves the current delay toward it by at
// most 1 per tick. It returns a playback-scale hint for the decoder: +1 to
// speed up (tighten the buffer), -1 to slow down, 0 for no change.
func (b *Buffer) AdjustDelay() int {
	b.delayHistory = append(b.delayHistory, b.delay)
	if len(b.delayHistory) > 64 {
		b.delayHistory = b.delayHistory[1:]
	}

	sigma := b.arrivalStdDevMS()
	target := int(math.Ceil(2 * sigma))
	if target < b.params.MinDelay {
		target = b.params.MinDelay
	}
	if target > b.params.MaxDelay {
		target = b.params.MaxDelay
	}

	if target > b.delay {
		if b.dontIncDelay > 0 {
			b.dontIncDelay--
			return 0
		}
		b.delay++
		b.dontDecDelay = 3
		return -1 // buffering more: slow down playback
	}
	if target < b.delay {
		if b.dontDecDelay > 0 {
			b.dontDecDelay--
			return 0
		}
		b.delay--
		b.dontIncDelay = 3
		return 1 // buffering less: speed up playback
	}
	return 0
}

func (b *Buffer) arrivalStdDevMS() float64 {
	if len(b.arrivalDeltaHistory) < 2 {
		return float64(b.params.MinDelay)
	}
	var sum float64
	for _, d := range b.arrivalDeltaHistory {
		sum += float64(d.Milliseconds())
	}
	mean := sum / float64(len(b.arrivalDeltaHistory))

	var variance float64
	for _, d := range b.arrivalDeltaHistory {
		diff := float64(d.Milliseconds()) - mean
		variance += diff * diff
	}
	variance /= float64(len(b.arrivalDeltaHistory))
	return math.Sqrt(variance) / float64(b.stepMS)
}
