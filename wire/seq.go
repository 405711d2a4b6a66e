package wire

import "sync/atomic"

// SeqGT reports whether a is "later" than b in the 32-bit wrap-around
// sequence space used for every outbound packet counter. It implements the
// serial-number-arithmetic comparison from RFC 1982: the space is split into
// two halves around whichever value is smaller, and a sequence is considered
// later only if the forward distance from b to a is nonzero and at most half
// the space (a forward distance of exactly 2^31 counts as later).
func SeqGT(a, b uint32) bool {
	return (a > b && a-b <= 1<<31) || (a < b && b-a > 1<<31)
}

// SeqGTE reports whether a is later than or equal to b.
func SeqGTE(a, b uint32) bool {
	return a == b || SeqGT(a, b)
}

// Counter is a monotonically increasing, concurrency-safe sequence
// generator. Exactly one Counter exists per outbound direction of a call;
// only the call controller's send paths (SendOrEnqueuePacket and sendRaw)
// advance it, so in practice access is single-threaded, but the atomic keeps
// the type safe to share.
type Counter struct {
	next uint32
}

// NewCounter returns a Counter starting at 1 (0 is reserved to mean
// "sequence not yet assigned" on a PendingOutgoingPacket).
func NewCounter() *Counter {
	return &Counter{next: 1}
}

// Next returns the next sequence number and advances the counter.
func (c *Counter) Next() uint32 {
	return atomic.AddUint32(&c.next, 1) - 1
}

// Peek returns the sequence number Next would return, without advancing.
func (c *Counter) Peek() uint32 {
	return atomic.LoadUint32(&c.next)
}
