// Package screamcc implements a SCReAM-style delay-based video congestion
// controller (§4.7): a queueing-delay target, a byte-denominated congestion
// window, and a target sender bitrate that grows in a fast-increase mode or
// by a gain-scaled steady increment, and is multiplied by 0.9 on each loss.
package screamcc
