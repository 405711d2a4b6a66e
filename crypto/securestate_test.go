package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenPersistentState_RoundTrip(t *testing.T) {
	var key [32]byte
	_, _ = rand.Read(key[:])
	plaintext := []byte(`{"ver":1,"proxy":{"server":"relay.example","udp":true,"tcp":false}}`)

	sealed, err := SealPersistentState(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := OpenPersistentState(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenPersistentState_WrongKeyFails(t *testing.T) {
	var key, other [32]byte
	_, _ = rand.Read(key[:])
	_, _ = rand.Read(other[:])

	sealed, err := SealPersistentState(key, []byte("secret"))
	require.NoError(t, err)

	_, err = OpenPersistentState(other, sealed)
	assert.ErrorIs(t, err, ErrSecureStateDecrypt)
}

func TestOpenPersistentState_TooShort(t *testing.T) {
	var key [32]byte
	_, err := OpenPersistentState(key, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSecureStateDecrypt)
}
