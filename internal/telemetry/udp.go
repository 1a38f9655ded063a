// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// ErrNoIPv4 is returned when no usable IPv4 interface is found.
var ErrNoIPv4 = errors.New("no IPv4 interface up")

const (
	// How often the interface address is re-read.
	resolveInterval = time.Second
	// Minimum spacing of send error log lines.
	errorLogInterval = 5 * time.Second
)

// PacketConn is the subset of *net.UDPConn the gate writes through.
type PacketConn interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
}

// InterfaceResolver reports the local IPv4 address and mask of the network
// link, or an error while the link is down.
type InterfaceResolver interface {
	IPv4() (net.IP, net.IPMask, error)
}

// SystemInterface resolves a named interface, or the first interface that is
// up, not loopback, and has an IPv4 address when Name is empty.
type SystemInterface struct {
	Name string
}

// IPv4 implements InterfaceResolver.
func (s SystemInterface) IPv4() (net.IP, net.IPMask, error) {
	var ifaces []net.Interface
	if s.Name != "" {
		iface, err := net.InterfaceByName(s.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %q: %w", s.Name, err)
		}
		ifaces = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, nil, fmt.Errorf("list interfaces: %w", err)
		}
		ifaces = all
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || (iface.Flags&net.FlagLoopback != 0 && s.Name == "") {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			return ipNet.IP.To4(), ipNet.Mask, nil
		}
	}
	return nil, nil, ErrNoIPv4
}

// UDPGate sends frames as UDP datagrams to a fixed target, or to the
// directed broadcast address of the local interface when no target is set.
type UDPGate struct {
	conn     PacketConn
	target   net.IP
	port     int
	resolver InterfaceResolver
	clock    timeutil.Clock

	mu           sync.Mutex
	closed       bool
	dest         *net.UDPAddr
	lastResolve  time.Time
	sent         uint64
	failed       uint64
	suppressed   int
	lastErrorLog time.Time
}

// NewUDPGate wraps conn. targetIP may be empty for broadcast mode.
func NewUDPGate(conn PacketConn, targetIP string, port int, resolver InterfaceResolver, clock timeutil.Clock) (*UDPGate, error) {
	var target net.IP
	if targetIP != "" {
		target = net.ParseIP(targetIP).To4()
		if target == nil {
			return nil, fmt.Errorf("osc target %q is not an IPv4 address", targetIP)
		}
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("osc port %d out of range", port)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDPGate{
		conn:     conn,
		target:   target,
		port:     port,
		resolver: resolver,
		clock:    clock,
	}, nil
}

// ListenUDPGate opens an unbound IPv4 UDP socket and wraps it.
func ListenUDPGate(targetIP string, port int, ifaceName string) (*UDPGate, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	g, err := NewUDPGate(conn, targetIP, port, SystemInterface{Name: ifaceName}, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return g, nil
}

// IsReady reports whether the socket is open and the link has an IPv4
// address. The destination is refreshed at most once per second.
func (g *UDPGate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.conn == nil {
		return false
	}
	now := g.clock.Now()
	if g.dest != nil && now.Sub(g.lastResolve) < resolveInterval {
		return true
	}
	g.lastResolve = now

	ip, mask, err := g.resolver.IPv4()
	if err != nil {
		if g.dest != nil {
			log.Warnf("osc: link down: %v", err)
		}
		g.dest = nil
		return false
	}

	destIP := g.target
	if destIP == nil {
		destIP = Broadcast(ip, mask)
		if destIP == nil {
			g.dest = nil
			return false
		}
	}
	if g.dest == nil || !g.dest.IP.Equal(destIP) {
		log.Infof("osc: sending to %s:%d", destIP, g.port)
	}
	g.dest = &net.UDPAddr{IP: destIP, Port: g.port}
	return true
}

// Destination returns the address frames currently go to, or nil.
func (g *UDPGate) Destination() *net.UDPAddr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dest
}

// Send writes payload as one datagram. Errors are counted and logged at most
// every few seconds, never returned.
func (g *UDPGate) Send(payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.dest == nil {
		g.failed++
		return
	}
	if _, err := g.conn.WriteToUDP(payload, g.dest); err != nil {
		g.failed++
		now := g.clock.Now()
		if now.Sub(g.lastErrorLog) >= errorLogInterval {
			log.Warnf("osc: send to %s failed: %v (%d more suppressed)", g.dest, err, g.suppressed)
			g.lastErrorLog = now
			g.suppressed = 0
		} else {
			g.suppressed++
		}
		return
	}
	g.sent++
}

// Stats returns the number of datagrams sent and failed.
func (g *UDPGate) Stats() (sent, failed uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent, g.failed
}

// Close releases the socket.
func (g *UDPGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.dest = nil
	return g.conn.Close()
}
