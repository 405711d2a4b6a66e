// Package signalbars computes the 1-4 signal-bar indicator of §4.9: a
// per-second score derived from call state, transport, and loss/jitter
// statistics, smoothed over a 4-sample moving average.
package signalbars
