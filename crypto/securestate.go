package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSecureStateDecrypt is returned when SealPersistentState's output
// cannot be opened, e.g. it was tampered with or sealed under a different
// local key.
var ErrSecureStateDecrypt = errors.New("crypto: persistent state decrypt failed")

// SealPersistentState encrypts the JSON persistent-state blob described in
// §6 (`GetPersistentState`/`SetPersistentState`) at rest, using
// nacl/secretbox the same way the teacher's crypto.Encrypt wraps messages,
// so a stolen savedata file does not leak the cached proxy-capability
// record in the clear.
func SealPersistentState(key [32]byte, plaintext []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "SealPersistentState", "package": "crypto"})

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		logger.WithError(err).Error("failed to generate nonce")
		return nil, err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	return sealed, nil
}

// OpenPersistentState reverses SealPersistentState.
func OpenPersistentState(key [32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, ErrSecureStateDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	opened, ok := secretbox.Open(nil, sealed[24:], &nonce, &key)
	if !ok {
		return nil, ErrSecureStateDecrypt
	}
	return opened, nil
}
