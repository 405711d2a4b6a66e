// Package wire implements the call engine's wire protocol and framing.
//
// It provides the packet header format (short and long encodings), the
// 32-bit wrap-aware sequence space, piggybacked extras, and the stream-data
// sub-framing used for audio and video payloads. It does not perform
// encryption itself — see package crypto for the envelope layer that wraps
// a serialized header before it reaches the socket.
//
// Example:
//
//	hdr := &wire.PacketHeader{
//	    Type:         wire.PacketPing,
//	    LastRemoteSeq: 41,
//	    Seq:           42,
//	    AckBitmap:     0x1,
//	}
//	data, err := hdr.EncodeShort()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	got, err := wire.DecodeShort(data)
package wire
