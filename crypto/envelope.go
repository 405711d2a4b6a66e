package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"
)

// EnvelopeVersion selects between the legacy MTProto-style envelope (v1)
// and its hardened successor (v2), §4.1.
type EnvelopeVersion int

const (
	EnvelopeV1 EnvelopeVersion = 1
	EnvelopeV2 EnvelopeVersion = 2
)

// ErrEnvelope covers every legacy-envelope failure: bad fingerprint, short
// buffer, bad padding, or a decrypted length claiming more bytes than the
// envelope actually carried. Per §4.1's failure policy this is always a
// silent drop outside the handshake — callers must not treat it as fatal.
var ErrEnvelope = errors.New("crypto: envelope decode failed")

// Fingerprint derives an 8-byte tag identifying a shared encryption key, so
// a receiver can cheaply reject packets encrypted under a different key
// before attempting a full decrypt.
func Fingerprint(encryptionKey []byte) [8]byte {
	sum := sha256.Sum256(encryptionKey)
	var fp [8]byte
	copy(fp[:], sum[:8])
	return fp
}

// WriteEnvelope builds a complete legacy envelope:
// fingerprint[8] || msg_key[16] || AES-IGE(key, iv, pad(inner)).
//
// longLengthField selects a 32-bit inner length prefix (tied to the outer
// long PacketHeader encoding) instead of the default 16-bit prefix used
// with the short encoding — this package's reading of the
// otherwise-ambiguous "16-bit (short header) or 32-bit" clause in §4.1.
func WriteEnvelope(version EnvelopeVersion, encryptionKey []byte, isInitiator bool, longLengthField bool, payload []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "WriteEnvelope", "package": "crypto", "version": version})

	if len(encryptionKey) != 256 {
		return nil, errors.New("crypto: encryption key must be 256 bytes")
	}
	x := DirectionOffset(isInitiator, true)

	inner, err := buildInner(version, longLengthField, payload)
	if err != nil {
		logger.WithError(err).Error("failed to build padded inner buffer")
		return nil, err
	}

	var msgKey [16]byte
	if version == EnvelopeV1 {
		msgKey = MsgKeyV1(inner)
	} else {
		msgKey = MsgKeyV2(encryptionKey, x, inner)
	}

	var kiv KeyIV
	if version == EnvelopeV1 {
		kiv = DeriveV1(encryptionKey, msgKey, x)
	} else {
		kiv = DeriveV2(encryptionKey, msgKey, x)
	}

	cipherText, err := IGEEncrypt(kiv.Key[:], kiv.IV[:], inner)
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(encryptionKey)
	out := make([]byte, 0, 8+16+len(cipherText))
	out = append(out, fp[:]...)
	out = append(out, msgKey[:]...)
	out = append(out, cipherText...)
	return out, nil
}

// ReadEnvelope decrypts and validates a legacy envelope, returning the
// original payload. It reports ErrEnvelope (wrapped) on any failure so
// callers can apply the §4.1 silent-drop policy uniformly.
func ReadEnvelope(version EnvelopeVersion, encryptionKey []byte, isInitiator bool, longLengthField bool, envelope []byte) ([]byte, error) {
	if len(encryptionKey) != 256 {
		return nil, errors.New("crypto: encryption key must be 256 bytes")
	}
	if len(envelope) < 8+16+aes.BlockSize {
		return nil, ErrEnvelope
	}

	fp := Fingerprint(encryptionKey)
	if !bytesEqual(envelope[:8], fp[:]) {
		return nil, ErrEnvelope
	}

	var msgKey [16]byte
	copy(msgKey[:], envelope[8:24])
	cipherText := envelope[24:]
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, ErrEnvelope
	}

	x := DirectionOffset(isInitiator, false)

	var kiv KeyIV
	if version == EnvelopeV1 {
		kiv = DeriveV1(encryptionKey, msgKey, x)
	} else {
		kiv = DeriveV2(encryptionKey, msgKey, x)
	}

	inner, err := IGEDecrypt(kiv.Key[:], kiv.IV[:], cipherText)
	if err != nil {
		return nil, ErrEnvelope
	}

	if version == EnvelopeV1 {
		expect := MsgKeyV1(inner)
		if expect != msgKey {
			return nil, ErrEnvelope
		}
	} else {
		expect := MsgKeyV2(encryptionKey, x, inner)
		if expect != msgKey {
			return nil, ErrEnvelope
		}
	}

	return parseInner(longLengthField, inner)
}

// buildInner assembles len ‖ payload ‖ pad with the padded total a multiple
// of 16 bytes. v1 uses the minimum pad needed for alignment; v2 additionally
// enforces the spec's 12-1024 byte pad range.
func buildInner(version EnvelopeVersion, longLengthField bool, payload []byte) ([]byte, error) {
	lenFieldSize := 2
	if longLengthField {
		lenFieldSize = 4
	}

	header := make([]byte, lenFieldSize)
	if lenFieldSize == 2 {
		if len(payload) > 0xffff {
			return nil, errors.New("crypto: payload too large for 16-bit inner length")
		}
		binary.LittleEndian.PutUint16(header, uint16(len(payload)))
	} else {
		binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	}

	minPad := 0
	if version == EnvelopeV2 {
		minPad = 12
	}
	unpadded := lenFieldSize + len(payload)
	padLen := minPad
	for (unpadded+padLen)%aes.BlockSize != 0 {
		padLen++
	}
	if version == EnvelopeV2 {
		for padLen > 1024 {
			padLen -= aes.BlockSize
		}
	}

	pad := make([]byte, padLen)
	if _, err := rand.Read(pad); err != nil {
		return nil, err
	}

	inner := make([]byte, 0, unpadded+padLen)
	inner = append(inner, header...)
	inner = append(inner, payload...)
	inner = append(inner, pad...)
	return inner, nil
}

// parseInner extracts the payload from a decrypted inner buffer, rejecting
// a claimed length that would run past the end of the decrypted inner
// buffer itself — the on-wire envelope can never decrypt to more bytes than
// it physically contained, so this also enforces the §8 boundary behavior
// that a length implying more data than the envelope carried is rejected.
func parseInner(longLengthField bool, inner []byte) ([]byte, error) {
	lenFieldSize := 2
	if longLengthField {
		lenFieldSize = 4
	}
	if len(inner) < lenFieldSize {
		return nil, ErrEnvelope
	}

	var length int
	if lenFieldSize == 2 {
		length = int(binary.LittleEndian.Uint16(inner[:2]))
	} else {
		length = int(binary.LittleEndian.Uint32(inner[:4]))
	}

	if length < 0 || lenFieldSize+length > len(inner) {
		return nil, ErrEnvelope
	}
	payload := make([]byte, length)
	copy(payload, inner[lenFieldSize:lenFieldSize+length])
	return payload, nil
}
