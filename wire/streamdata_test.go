package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamData_RoundTrip_Simple(t *testing.T) {
	f := &StreamDataFrame{StreamID: 1, Timestamp: 600, Payload: []byte("opus-frame")}
	data, err := EncodeStreamData(f)
	require.NoError(t, err)

	got, consumed, err := DecodeStreamData(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), consumed)
	assert.Equal(t, f.StreamID, got.StreamID)
	assert.Equal(t, f.Timestamp, got.Timestamp)
	assert.Equal(t, f.Payload, got.Payload)
	assert.False(t, got.Fragmented)
}

func TestStreamData_RoundTrip_FragmentedKeyframe(t *testing.T) {
	f := &StreamDataFrame{
		StreamID:      2,
		Timestamp:     1200,
		Keyframe:      true,
		Fragmented:    true,
		FragmentIndex: 0,
		FragmentCount: 3,
		Payload:       make([]byte, 1024),
	}
	data, err := EncodeStreamData(f)
	require.NoError(t, err)

	got, _, err := DecodeStreamData(data)
	require.NoError(t, err)
	assert.True(t, got.Keyframe)
	assert.True(t, got.Fragmented)
	assert.Equal(t, byte(0), got.FragmentIndex)
	assert.Equal(t, byte(3), got.FragmentCount)
	assert.Len(t, got.Payload, 1024)
}

func TestStreamData_RoundTrip_ExtraFEC(t *testing.T) {
	f := &StreamDataFrame{
		StreamID:  1,
		Timestamp: 60,
		ExtraFEC:  true,
		Payload:   []byte("primary"),
		TrailingECCopies: [][]byte{
			[]byte("prior-1"),
			[]byte("prior-2"),
		},
	}
	data, err := EncodeStreamData(f)
	require.NoError(t, err)

	got, _, err := DecodeStreamData(data)
	require.NoError(t, err)
	require.Len(t, got.TrailingECCopies, 2)
	assert.Equal(t, f.TrailingECCopies[0], got.TrailingECCopies[0])
	assert.Equal(t, f.TrailingECCopies[1], got.TrailingECCopies[1])
}

func TestStreamData_ConcatenatedX2X3(t *testing.T) {
	frames := []*StreamDataFrame{
		{StreamID: 1, Timestamp: 60, Payload: []byte("a")},
		{StreamID: 1, Timestamp: 120, Payload: []byte("bb")},
		{StreamID: 1, Timestamp: 180, Payload: []byte("ccc")},
	}

	data, err := EncodeConcatenated(frames)
	require.NoError(t, err)

	got, err := DecodeConcatenated(data, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, f := range frames {
		assert.Equal(t, f.Timestamp, got[i].Timestamp)
		assert.Equal(t, f.Payload, got[i].Payload)
	}
}

func TestStreamData_StreamIDTooLarge(t *testing.T) {
	_, err := EncodeStreamData(&StreamDataFrame{StreamID: 0x40})
	assert.Error(t, err)
}

func TestDecodeStreamData_Truncated(t *testing.T) {
	_, _, err := DecodeStreamData([]byte{})
	assert.ErrorIs(t, err, ErrStreamData)
}
