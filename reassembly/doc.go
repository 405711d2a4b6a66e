// Package reassembly implements the two loss-recovery mechanisms of §4.4
// and §4.5: parity forward error correction over groups of frames (the call
// controller applies it to video frame groups), and fragment
// reassembly for video frames split across multiple stream-data packets.
package reassembly
