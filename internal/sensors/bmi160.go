// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// BMI160 registers and commands.
const (
	BMI160DefaultAddr = 0x68
	BMI160ChipID      = 0xD1

	bmi160RegChipID   = 0x00
	bmi160RegGyrData  = 0x0C
	bmi160RegAccData  = 0x12
	bmi160RegAccConf  = 0x40
	bmi160RegAccRange = 0x41
	bmi160RegGyrConf  = 0x42
	bmi160RegGyrRange = 0x43
	bmi160RegCmd      = 0x7E

	bmi160CmdSoftReset    = 0xB6
	bmi160CmdAccNormal    = 0x11
	bmi160CmdGyrNormal    = 0x15
	bmi160CmdAccAutoCalib = 0x37

	// ODR 100 Hz, normal bandwidth
	bmi160ODR100Hz = 0x28
)

// Range register values and their sensitivities, indexed by config range code (0..3).
var (
	bmi160AccRange = [4]byte{0x03, 0x05, 0x08, 0x0C} // ±2, ±4, ±8, ±16 g
	bmi160GyrRange = [4]byte{0x03, 0x02, 0x01, 0x00} // ±250, ±500, ±1000, ±2000 °/s

	bmi160AccelLSBPerG  = [4]float64{16384, 8192, 4096, 2048}
	bmi160GyroLSBPerDPS = [4]float64{131.2, 65.6, 32.8, 16.4}
)

// rangeCode returns the config range code whose register value is v.
func rangeCode(table [4]byte, v byte) (byte, bool) {
	for code, rv := range table {
		if rv == v {
			return byte(code), true
		}
	}
	return 0, false
}

// BMI160Opts selects the measurement ranges using the config range codes.
type BMI160Opts struct {
	AccelRange byte // 0=±2g .. 3=±16g
	GyroRange  byte // 0=±250°/s .. 3=±2000°/s
}

// DefaultBMI160Opts is ±2g and ±2000°/s.
var DefaultBMI160Opts = BMI160Opts{AccelRange: 0, GyroRange: 3}

// BMI160 is a Bosch BMI160 accelerometer + gyroscope on a register bus.
// In production dev is an *i2c.Dev; anything that speaks register-address-first
// transactions works.
type BMI160 struct {
	dev   conn.Conn
	opts  BMI160Opts
	clock timeutil.Clock
}

// NewBMI160 wraps dev. It does not touch the bus until Init.
func NewBMI160(dev conn.Conn, opts BMI160Opts, clock timeutil.Clock) (*BMI160, error) {
	if opts.AccelRange > 3 || opts.GyroRange > 3 {
		return nil, fmt.Errorf("bmi160: range code out of bounds (accel %d, gyro %d)", opts.AccelRange, opts.GyroRange)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BMI160{dev: dev, opts: opts, clock: clock}, nil
}

// Name implements Device.
func (b *BMI160) Name() string {
	return "bmi160"
}

// Scale implements Device.
func (b *BMI160) Scale() imu.Scale {
	return imu.Scale{
		AccelLSBPerG:  bmi160AccelLSBPerG[b.opts.AccelRange],
		GyroLSBPerDPS: bmi160GyroLSBPerDPS[b.opts.GyroRange],
	}
}

// Init soft-resets the chip and puts both sensors in normal mode at 100 Hz.
// A chip ID other than 0xD1 is logged and tolerated; only bus errors fail.
func (b *BMI160) Init() error {
	if err := b.WriteRegister(bmi160RegCmd, bmi160CmdSoftReset); err != nil {
		return fmt.Errorf("bmi160: soft reset: %w", err)
	}
	b.clock.Sleep(100 * time.Millisecond)

	id, err := b.ReadRegister(bmi160RegChipID)
	if err != nil {
		return fmt.Errorf("bmi160: read chip id: %w", err)
	}
	if id != BMI160ChipID {
		log.Warnf("bmi160: chip id mismatch: 0x%02X (expected 0x%02X)", id, BMI160ChipID)
	} else {
		log.Debugf("bmi160: chip id 0x%02X", id)
	}

	steps := []struct {
		name  string
		reg   byte
		val   byte
		delay time.Duration
	}{
		{"accel normal mode", bmi160RegCmd, bmi160CmdAccNormal, 50 * time.Millisecond},
		{"gyro normal mode", bmi160RegCmd, bmi160CmdGyrNormal, 50 * time.Millisecond},
		{"accel config", bmi160RegAccConf, bmi160ODR100Hz, 0},
		{"accel range", bmi160RegAccRange, bmi160AccRange[b.opts.AccelRange], 0},
		{"gyro config", bmi160RegGyrConf, bmi160ODR100Hz, 0},
		{"gyro range", bmi160RegGyrRange, bmi160GyrRange[b.opts.GyroRange], 50 * time.Millisecond},
	}
	for _, s := range steps {
		if err := b.WriteRegister(s.reg, s.val); err != nil {
			return fmt.Errorf("bmi160: %s: %w", s.name, err)
		}
		if s.delay > 0 {
			b.clock.Sleep(s.delay)
		}
	}

	log.Infof("bmi160: initialized (accel ±%dg, gyro ±%d°/s)",
		[]int{2, 4, 8, 16}[b.opts.AccelRange], []int{250, 500, 1000, 2000}[b.opts.GyroRange])
	return nil
}

// ReadAccelRaw implements Device.
func (b *BMI160) ReadAccelRaw() (imu.Raw, error) {
	return b.readTriple(bmi160RegAccData)
}

// ReadGyroRaw implements Device.
func (b *BMI160) ReadGyroRaw() (imu.Raw, error) {
	return b.readTriple(bmi160RegGyrData)
}

// readTriple burst-reads three little-endian int16 starting at reg.
func (b *BMI160) readTriple(reg byte) (imu.Raw, error) {
	var buf [6]byte
	if err := b.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return imu.Raw{}, fmt.Errorf("bmi160: %w at 0x%02X: %w", ErrShortRead, reg, err)
	}
	return imu.Raw{
		int16(binary.LittleEndian.Uint16(buf[0:2])),
		int16(binary.LittleEndian.Uint16(buf[2:4])),
		int16(binary.LittleEndian.Uint16(buf[4:6])),
	}, nil
}

// ReadRegister reads one register.
func (b *BMI160) ReadRegister(addr byte) (byte, error) {
	var v [1]byte
	if err := b.dev.Tx([]byte{addr}, v[:]); err != nil {
		return 0, fmt.Errorf("%w at 0x%02X: %w", ErrShortRead, addr, err)
	}
	return v[0], nil
}

// WriteRegister writes one register. Writes to ACC_RANGE and GYR_RANGE must
// carry a supported range and update Scale; other values are rejected
// before touching the bus.
func (b *BMI160) WriteRegister(addr, value byte) error {
	var code byte
	switch addr {
	case bmi160RegAccRange, bmi160RegGyrRange:
		table := bmi160AccRange
		if addr == bmi160RegGyrRange {
			table = bmi160GyrRange
		}
		var ok bool
		if code, ok = rangeCode(table, value); !ok {
			return fmt.Errorf("bmi160: 0x%02X is not a supported range for 0x%02X", value, addr)
		}
	}

	if err := b.dev.Tx([]byte{addr, value}, nil); err != nil {
		return fmt.Errorf("write 0x%02X to 0x%02X: %w", value, addr, err)
	}

	switch addr {
	case bmi160RegAccRange:
		b.opts.AccelRange = code
	case bmi160RegGyrRange:
		b.opts.GyroRange = code
	}
	return nil
}

// AutoCalibrateAccel triggers the accelerometer fast offset compensation and
// waits for it to finish. The sensor must lie flat and still.
func (b *BMI160) AutoCalibrateAccel() error {
	log.Info("bmi160: starting accelerometer auto-calibration")
	if err := b.WriteRegister(bmi160RegCmd, bmi160CmdAccAutoCalib); err != nil {
		return fmt.Errorf("bmi160: accel auto-calibration: %w", err)
	}
	b.clock.Sleep(1100 * time.Millisecond)
	log.Info("bmi160: accelerometer auto-calibration done")
	return nil
}

// RegisterMap implements RegisterAccessor.
func (b *BMI160) RegisterMap() []RegisterInfo {
	return bmi160RegisterMap()
}
