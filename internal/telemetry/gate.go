// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry delivers encoded frames to the network and debug lines
// to a local sink.
package telemetry

import (
	"net"
	"sync"
)

// Gate is the outbound transport for encoded frames. Send is only called
// after IsReady returned true, and is fire-and-forget.
type Gate interface {
	IsReady() bool
	Send(payload []byte)
}

// Broadcast returns the directed broadcast address ip | ^mask.
// It returns nil unless ip is IPv4 and mask is an IPv4 mask.
func Broadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

// RecordingGate is an in-memory Gate for tests and dry runs.
type RecordingGate struct {
	mu      sync.Mutex
	ready   bool
	packets [][]byte
}

// NewRecordingGate returns a gate with the given readiness.
func NewRecordingGate(ready bool) *RecordingGate {
	return &RecordingGate{ready: ready}
}

// SetReady toggles readiness.
func (g *RecordingGate) SetReady(ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = ready
}

// IsReady implements Gate.
func (g *RecordingGate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Send implements Gate. The payload is copied.
func (g *RecordingGate) Send(payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.packets = append(g.packets, append([]byte(nil), payload...))
}

// Packets returns everything sent so far.
func (g *RecordingGate) Packets() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]byte(nil), g.packets...)
}
