package crypto

import (
	"crypto/aes"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrIGEInput is returned when IGE input is not a non-empty multiple of the
// AES block size, or the iv is not exactly two blocks (32 bytes).
var ErrIGEInput = errors.New("crypto: ige input must be a non-zero multiple of 16 bytes with a 32-byte iv")

// IGEEncrypt implements AES in Infinite Garble Extension mode, as used by
// the legacy MTProto-style envelope. iv is 32 bytes: the first 16 bytes seed
// the previous-ciphertext accumulator, the last 16 seed the
// previous-plaintext accumulator.
func IGEEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "IGEEncrypt", "package": "crypto"})

	if len(plaintext) == 0 || len(plaintext)%aes.BlockSize != 0 || len(iv) != 2*aes.BlockSize {
		logger.WithField("error_type", "invalid_input").Error("IGEEncrypt: invalid block-aligned input")
		return nil, ErrIGEInput
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	prevCipher := append([]byte(nil), iv[:aes.BlockSize]...)
	prevPlain := append([]byte(nil), iv[aes.BlockSize:]...)

	out := make([]byte, len(plaintext))
	buf := make([]byte, aes.BlockSize)
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		p := plaintext[i : i+aes.BlockSize]
		xorBytes(buf, p, prevCipher)
		block.Encrypt(buf, buf)
		xorBytes(buf, buf, prevPlain)

		copy(out[i:i+aes.BlockSize], buf)
		prevCipher = append([]byte(nil), buf...)
		prevPlain = append([]byte(nil), p...)
	}
	return out, nil
}

// IGEDecrypt is the inverse of IGEEncrypt.
func IGEDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 || len(iv) != 2*aes.BlockSize {
		return nil, ErrIGEInput
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	prevCipher := append([]byte(nil), iv[:aes.BlockSize]...)
	prevPlain := append([]byte(nil), iv[aes.BlockSize:]...)

	out := make([]byte, len(ciphertext))
	buf := make([]byte, aes.BlockSize)
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		c := ciphertext[i : i+aes.BlockSize]
		xorBytes(buf, c, prevPlain)
		block.Decrypt(buf, buf)
		xorBytes(buf, buf, prevCipher)

		copy(out[i:i+aes.BlockSize], buf)
		prevCipher = append([]byte(nil), c...)
		prevPlain = append([]byte(nil), buf...)
	}
	return out, nil
}

func xorBytes(dst, a, b []byte) {
	for i := range a {
		dst[i] = a[i] ^ b[i]
	}
}
