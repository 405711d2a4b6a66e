// Package jitter implements the per-stream jitter buffer described in §4.5:
// an active map of not-yet-delivered slots keyed by timestamp, a history map
// of recently delivered slots kept for neighbor-based loss concealment, and
// an adaptive delay that grows or shrinks with observed arrival jitter.
package jitter
