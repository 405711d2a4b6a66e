package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidAudioFrameDurations(t *testing.T) {
	for _, d := range []int{20, 40, 60} {
		s, err := New(1, Audio, CodecOpus, d, nil)
		require.NoError(t, err)
		assert.Equal(t, d, s.FrameDurationMS)
	}
}

func TestNew_InvalidAudioFrameDurationRejected(t *testing.T) {
	_, err := New(1, Audio, CodecOpus, 30, nil)
	assert.ErrorIs(t, err, ErrInvalidFrameDuration)
}

func TestNew_VideoStreamIgnoresFrameDurationValidation(t *testing.T) {
	s, err := New(2, Video, CodecVP8, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Video, s.Kind)
}

func TestNew_DefaultsEnabledTrue(t *testing.T) {
	s, err := New(1, Audio, CodecOpus, 20, nil)
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.False(t, s.Paused)
}
