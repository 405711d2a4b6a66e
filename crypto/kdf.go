package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
)

// DirectionOffset returns the MTProto-style "x" offset used to select which
// half of the shared encryption key seeds a packet's derivation. The byte is
// 0 for packets sent by the call initiator and 8 for packets sent by the
// callee (§4.1); sending is true when deriving keys to encrypt a packet we
// are about to send, false when decrypting one we received.
func DirectionOffset(isInitiator, sending bool) int {
	sentByInitiator := isInitiator == sending
	if sentByInitiator {
		return 0
	}
	return 8
}

// KeyIV is a derived (key, iv) pair ready for IGEEncrypt/IGEDecrypt.
type KeyIV struct {
	Key [32]byte
	IV  [32]byte
}

// DeriveV1 implements the legacy four-SHA1 KDF: four SHA1 calls over
// overlapping slices of msgKey and the 256-byte encryptionKey, combined into
// a 32-byte AES key and a 32-byte IGE iv.
func DeriveV1(encryptionKey []byte, msgKey [16]byte, x int) KeyIV {
	k := encryptionKey
	a := sha1.Sum(concat(msgKey[:], k[x:x+32]))
	b := sha1.Sum(concat(k[32+x:32+x+16], msgKey[:], k[48+x:48+x+16]))
	c := sha1.Sum(concat(k[64+x:64+x+32], msgKey[:]))
	d := sha1.Sum(concat(msgKey[:], k[96+x:96+x+32]))

	var out KeyIV
	copy(out.Key[0:8], a[0:8])
	copy(out.Key[8:20], b[8:20])
	copy(out.Key[20:32], c[4:16])

	copy(out.IV[0:12], a[8:20])
	copy(out.IV[12:20], b[0:8])
	copy(out.IV[20:24], c[16:20])
	copy(out.IV[24:32], d[0:8])
	return out
}

// DeriveV2 implements the MTProto2-style two-SHA256 KDF.
func DeriveV2(encryptionKey []byte, msgKey [16]byte, x int) KeyIV {
	k := encryptionKey
	a := sha256.Sum256(concat(msgKey[:], k[x:x+36]))
	b := sha256.Sum256(concat(k[40+x:40+x+36], msgKey[:]))

	var out KeyIV
	copy(out.Key[0:8], a[0:8])
	copy(out.Key[8:24], b[8:24])
	copy(out.Key[24:32], a[24:32])

	copy(out.IV[0:8], b[0:8])
	copy(out.IV[8:24], a[8:24])
	copy(out.IV[24:32], b[24:32])
	return out
}

// MsgKeyV1 computes msg_key for the legacy envelope: the middle 16 bytes of
// SHA1(inner).
func MsgKeyV1(inner []byte) [16]byte {
	sum := sha1.Sum(inner)
	var mk [16]byte
	copy(mk[:], sum[4:20])
	return mk
}

// MsgKeyV2 computes msg_key for the MTProto2 envelope: SHA256 over a
// direction-selected 32-byte slice of the shared key followed by inner,
// truncated to its middle 16 bytes.
func MsgKeyV2(encryptionKey []byte, x int, inner []byte) [16]byte {
	sum := sha256.Sum256(concat(encryptionKey[88+x:88+x+32], inner))
	var mk [16]byte
	copy(mk[:], sum[8:24])
	return mk
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
