package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketHeader_ShortRoundTrip(t *testing.T) {
	h := &PacketHeader{
		Type:          PacketPing,
		LastRemoteSeq: 41,
		Seq:           42,
		AckBitmap:     0xdeadbeef,
		Extras: []Extra{
			{Type: 1, Payload: []byte("net-changed")},
			{Type: 2, Payload: []byte{}},
		},
		HasRecvTime:   true,
		RecvTimestamp: 123456,
	}

	data, err := h.EncodeShort()
	require.NoError(t, err)

	got, err := DecodeShort(data)
	require.NoError(t, err)

	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.LastRemoteSeq, got.LastRemoteSeq)
	assert.Equal(t, h.Seq, got.Seq)
	assert.Equal(t, h.AckBitmap, got.AckBitmap)
	assert.Equal(t, h.HasRecvTime, got.HasRecvTime)
	assert.Equal(t, h.RecvTimestamp, got.RecvTimestamp)
	require.Len(t, got.Extras, 2)
	assert.Equal(t, h.Extras[0].Type, got.Extras[0].Type)
	assert.Equal(t, h.Extras[0].Payload, got.Extras[0].Payload)
}

func TestPacketHeader_ShortNoExtras(t *testing.T) {
	h := &PacketHeader{Type: PacketStreamData, Seq: 7, LastRemoteSeq: 6}
	data, err := h.EncodeShort()
	require.NoError(t, err)

	got, err := DecodeShort(data)
	require.NoError(t, err)
	assert.Empty(t, got.Extras)
	assert.False(t, got.HasRecvTime)
}

func TestPacketHeader_ExtraTooLarge(t *testing.T) {
	h := &PacketHeader{
		Type:   PacketPing,
		Extras: []Extra{{Type: 1, Payload: make([]byte, 255)}},
	}
	_, err := h.EncodeShort()
	assert.ErrorIs(t, err, ErrExtraTooLarge)
}

func TestDecodeShort_TooShort(t *testing.T) {
	_, err := DecodeShort([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestPacketHeader_LongRoundTrip_Handshake(t *testing.T) {
	callID := []byte("0123456789abcdef")
	h := &PacketHeader{Type: PacketInit, Seq: 1, LastRemoteSeq: 0}

	data, err := h.EncodeLong(callID)
	require.NoError(t, err)

	got, err := DecodeLong(data, callID)
	require.NoError(t, err)
	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.Seq, got.Seq)
}

func TestPacketHeader_LongRoundTrip_Steady(t *testing.T) {
	h := &PacketHeader{Type: PacketStreamData, Seq: 99, LastRemoteSeq: 98}
	data, err := h.EncodeLong(nil)
	require.NoError(t, err)

	got, err := DecodeLong(data, nil)
	require.NoError(t, err)
	assert.Equal(t, h.Seq, got.Seq)
}

func TestDecodeLong_CallIDMismatchIsFatal(t *testing.T) {
	h := &PacketHeader{Type: PacketInit, Seq: 1}
	data, err := h.EncodeLong([]byte("aaaaaaaaaaaaaaaa"))
	require.NoError(t, err)

	_, err = DecodeLong(data, []byte("bbbbbbbbbbbbbbbb"))
	assert.ErrorIs(t, err, ErrLongHeader)
}

func TestPacketType_String(t *testing.T) {
	assert.Equal(t, "PING", PacketPing.String())
	assert.Contains(t, PacketType(250).String(), "UNKNOWN")
}
