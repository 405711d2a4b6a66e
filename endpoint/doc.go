// Package endpoint models the candidate transport addresses of §3 and the
// probing, classification, and selection logic of §4.3: UDP reachability
// probing via reflector pings, IPv6/TCP mirror and P2P/LAN candidate
// synthesis, relay ping RTT tracking, and preferred-relay/current-endpoint
// selection with hysteresis.
package endpoint
