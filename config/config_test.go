package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults_JitterParams_FrameDurationBoundaries(t *testing.T) {
	cfg := Defaults()

	p60 := cfg.JitterParamsFor(60)
	assert.Equal(t, 2, p60.MinDelay)
	assert.Equal(t, 10, p60.MaxDelay)
	assert.Equal(t, 20, p60.MaxAllowedSlots)

	p20 := cfg.JitterParamsFor(20)
	assert.Equal(t, 6, p20.MinDelay)
	assert.Equal(t, 25, p20.MaxDelay)
	assert.Equal(t, 50, p20.MaxAllowedSlots)
}

func TestDefaults_UnknownFrameDurationFallsBack(t *testing.T) {
	cfg := Defaults()
	p := cfg.JitterParamsFor(999)
	assert.Equal(t, 2, p.MinDelay)
	assert.Equal(t, 10, p.MaxDelay)
}

func TestDefaults_MinAudioBitrate(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8000, cfg.MinAudioBitrate)
}
