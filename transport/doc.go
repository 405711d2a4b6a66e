// Package transport provides the UDP and TCP socket layer the call engine
// sends and receives encrypted envelopes over: plain UDP, the "obfuscated 2"
// TCP relay framing, and the reflector control-request datagrams used for
// UDP reachability probing and public-endpoint discovery (§4.3, §6).
//
// None of the types here touch call state — per the concurrency model in
// §5, the receive and send goroutines only move bytes; the scheduler owns
// every piece of mutable call state.
package transport
