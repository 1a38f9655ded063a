// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"periph.io/x/conn/v3/i2c"
)

// ScanBus probes every 7-bit address with a one-byte read and returns the
// ones that answered. Useful when the IMU does not show up.
func ScanBus(bus i2c.Bus) []uint16 {
	var found []uint16
	buf := make([]byte, 1)
	for addr := uint16(0x01); addr < 0x7F; addr++ {
		if err := bus.Tx(addr, nil, buf); err == nil {
			found = append(found, addr)
		}
	}
	return found
}
