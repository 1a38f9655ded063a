// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/orientation"
)

// DebugWriter prints one "roll,pitch,yaw" line per cycle with two decimals.
type DebugWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	failed bool
}

// NewDebugWriter writes to w. A nil w means stdout.
func NewDebugWriter(w io.Writer) *DebugWriter {
	if w == nil {
		w = os.Stdout
	}
	return &DebugWriter{w: w}
}

// OpenDebugWriter writes to the serial port at baud, or to stdout when port is empty.
func OpenDebugWriter(port string, baud uint) (*DebugWriter, error) {
	if port == "" {
		return NewDebugWriter(os.Stdout), nil
	}

	serialOpts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rwc, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open debug serial port %s: %w", port, err)
	}
	log.Infof("debug: CSV output on %s at %d baud", port, baud)
	return &DebugWriter{w: rwc, closer: rwc}, nil
}

// WritePose emits one line. Write errors are logged once and otherwise ignored.
func (d *DebugWriter) WritePose(p orientation.Pose) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := io.WriteString(d.w, p.CSV()+"\n"); err != nil {
		if !d.failed {
			log.Warnf("debug: CSV write failed: %v", err)
			d.failed = true
		}
		return
	}
	d.failed = false
}

// Close closes the serial port if one was opened.
func (d *DebugWriter) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
