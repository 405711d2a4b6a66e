// Package congestion implements the audio congestion controller of §4.6: a
// fixed-size inflight ring, RTT and inflight-size histories, and a
// bandwidth-control action surfaced to the bitrate policy once per second.
package congestion
