// Package bitrate implements the bitrate and mode adaptation policy of
// §4.8: per-network bitrate limits, step adjustment driven by the audio
// congestion controller's action, and "shitty internet mode" escalation
// when the observed send-loss rate crosses configured thresholds.
package bitrate
