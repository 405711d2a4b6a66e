// Package call implements the top-level call engine: the INIT/INIT_ACK
// handshake state machine (§4.2), outgoing packet scheduling and piggybacked
// extras (§4.4), the library entry points of §6, and the error surface of
// §7. It wires together every other package in this module under a single
// Controller owned by one scheduler goroutine per §5.
package call
