// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package osc builds and parses the OSC 1.0 messages streamed to the receiver.
// Only float32 arguments are supported.
package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxPacketSize is the capacity of the encoder buffer.
const MaxPacketSize = 256

var (
	// ErrPacketTooLarge is returned when a message would not fit in MaxPacketSize bytes.
	ErrPacketTooLarge = errors.New("osc: packet exceeds buffer size")
	// ErrInvalidAddress is returned for an empty address or one not starting with '/'.
	ErrInvalidAddress = errors.New("osc: invalid address pattern")
)

// Encoder serializes messages into a fixed buffer. The zero value is ready to use.
// It is not safe for concurrent use.
type Encoder struct {
	buf [MaxPacketSize]byte
}

// padded returns n rounded up to the next multiple of 4, counting one NUL terminator.
func padded(n int) int {
	return (n + 4) &^ 3
}

// Size returns the encoded length of a message with the given address and argument count.
func Size(address string, nargs int) int {
	return padded(len(address)) + padded(1+nargs) + 4*nargs
}

// Encode writes address and args as one OSC message and returns the bytes.
// The returned slice aliases the encoder buffer and is only valid until the next call.
// Nothing is written when the message does not fit.
func (e *Encoder) Encode(address string, args ...float32) ([]byte, error) {
	if address == "" || address[0] != '/' || strings.IndexByte(address, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	size := Size(address, len(args))
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPacketTooLarge, size, MaxPacketSize)
	}

	b := e.buf[:size]
	n := writeString(b, address)

	b[n] = ','
	tags := b[n+1 : n+1+len(args)]
	for i := range tags {
		tags[i] = 'f'
	}
	end := n + padded(1+len(args))
	for i := n + 1 + len(args); i < end; i++ {
		b[i] = 0
	}
	n = end

	for _, v := range args {
		binary.BigEndian.PutUint32(b[n:], math.Float32bits(v))
		n += 4
	}
	return b, nil
}

// EncodeEuler is the per-cycle telemetry frame: three floats roll, pitch, yaw.
func (e *Encoder) EncodeEuler(address string, roll, pitch, yaw float32) ([]byte, error) {
	return e.Encode(address, roll, pitch, yaw)
}

func writeString(b []byte, s string) int {
	n := copy(b, s)
	end := padded(len(s))
	for ; n < end; n++ {
		b[n] = 0
	}
	return end
}
