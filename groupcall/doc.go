// Package groupcall implements the relay-only group-call helper described
// in SPEC_FULL.md: it forwards each participant's encrypted STREAM_DATA
// datagram to every other participant over the same UDP transport the call
// package uses, without ever decrypting, mixing, or re-encoding media. A
// real selective forwarding unit is out of scope; this is the "someone has
// to fan the packets out" piece that such a unit would sit behind.
package groupcall
