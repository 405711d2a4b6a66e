package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveV1_Deterministic(t *testing.T) {
	key := rampKey()
	mk := MsgKeyV1([]byte("some inner bytes, padded to whatever"))

	a := DeriveV1(key, mk, 0)
	b := DeriveV1(key, mk, 0)
	assert.Equal(t, a, b)

	c := DeriveV1(key, mk, 8)
	assert.NotEqual(t, a.Key, c.Key, "different direction offsets must derive different keys")
}

func TestDeriveV2_Deterministic(t *testing.T) {
	key := rampKey()
	mk := MsgKeyV2(key, 0, []byte("inner"))

	a := DeriveV2(key, mk, 0)
	b := DeriveV2(key, mk, 0)
	assert.Equal(t, a, b)

	c := DeriveV2(key, mk, 8)
	assert.NotEqual(t, a.IV, c.IV)
}

func TestMsgKeyV1_SensitiveToInput(t *testing.T) {
	a := MsgKeyV1([]byte("payload-a"))
	b := MsgKeyV1([]byte("payload-b"))
	assert.NotEqual(t, a, b)
}
