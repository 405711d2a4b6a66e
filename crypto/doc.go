// Package crypto implements the call engine's envelope encryption: the
// legacy MTProto-style AES-IGE envelope (versions 1 and 2, §4.1), plus
// Noise_XK handshake and session types. The call controller does not
// negotiate or use the Noise types; every call runs on the AES-IGE envelope.
//
// AES-IGE itself has no mainstream third-party Go implementation — it is a
// protocol-specific chaining mode, not a general AEAD — so ige.go is built
// directly on crypto/aes from the standard library, and the SHA-1/SHA-256
// KDF uses the standard library's crypto/sha1 and crypto/sha256. The Noise
// handshake uses github.com/flynn/noise and at-rest state encryption uses
// golang.org/x/crypto/nacl/secretbox.
package crypto
