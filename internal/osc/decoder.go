// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned by Decode for packets that are not well-formed float messages.
var ErrMalformed = errors.New("osc: malformed packet")

// Message is a decoded OSC message.
type Message struct {
	Address string
	Args    []float32
}

// Decode parses a single OSC message whose arguments are all float32.
func Decode(packet []byte) (Message, error) {
	address, rest, err := readString(packet)
	if err != nil {
		return Message{}, fmt.Errorf("%w: address: %v", ErrMalformed, err)
	}
	if address == "" || address[0] != '/' {
		return Message{}, fmt.Errorf("%w: address %q", ErrMalformed, address)
	}

	tags, rest, err := readString(rest)
	if err != nil {
		return Message{}, fmt.Errorf("%w: type tag: %v", ErrMalformed, err)
	}
	if tags == "" || tags[0] != ',' {
		return Message{}, fmt.Errorf("%w: type tag %q", ErrMalformed, tags)
	}
	tags = tags[1:]

	if len(rest) != 4*len(tags) {
		return Message{}, fmt.Errorf("%w: %d argument bytes for %d tags", ErrMalformed, len(rest), len(tags))
	}

	msg := Message{Address: address, Args: make([]float32, 0, len(tags))}
	for i, t := range []byte(tags) {
		if t != 'f' {
			return Message{}, fmt.Errorf("%w: unsupported type tag %q", ErrMalformed, t)
		}
		bits := binary.BigEndian.Uint32(rest[4*i:])
		msg.Args = append(msg.Args, math.Float32frombits(bits))
	}
	return msg, nil
}

func readString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, errors.New("missing terminator")
	}
	end := padded(i)
	if end > len(b) {
		return "", nil, errors.New("truncated padding")
	}
	return string(b[:i]), b[end:], nil
}
