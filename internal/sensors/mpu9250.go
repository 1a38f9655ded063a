// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
)

// MPU9250 adapts the periph MPU9250 driver (SPI) to Device.
// The magnetometer is not used.
type MPU9250 struct {
	spiDev     string
	csPin      string
	accelRange byte
	gyroRange  byte
	dev        *mpu9250.MPU9250
}

// NewMPU9250 opens the SPI transport. Call Init before reading.
func NewMPU9250(spiDev, csPin string, accelRange, gyroRange byte) (*MPU9250, error) {
	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("mpu9250: range code out of bounds (accel %d, gyro %d)", accelRange, gyroRange)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}

	return &MPU9250{
		spiDev:     spiDev,
		csPin:      csPin,
		accelRange: accelRange,
		gyroRange:  gyroRange,
		dev:        dev,
	}, nil
}

// Name implements Device.
func (m *MPU9250) Name() string {
	return "mpu9250"
}

// Sensitivities indexed by config range code (0..3).
var (
	mpu9250AccelLSBPerG  = [4]float64{16384, 8192, 4096, 2048}
	mpu9250GyroLSBPerDPS = [4]float64{131, 65.5, 32.8, 16.4}
)

// Scale implements Device.
func (m *MPU9250) Scale() imu.Scale {
	return imu.Scale{
		AccelLSBPerG:  mpu9250AccelLSBPerG[m.accelRange&0x03],
		GyroLSBPerDPS: mpu9250GyroLSBPerDPS[m.gyroRange&0x03],
	}
}

// Init wakes the chip, applies the configured ranges and runs the self-test.
// A failed self-test is logged, not returned.
func (m *MPU9250) Init() error {
	if err := m.dev.Init(); err != nil {
		return fmt.Errorf("mpu9250: initialization: %w", err)
	}

	if err := m.dev.SetAccelRange(m.accelRange); err != nil {
		return fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	log.Infof("mpu9250: accelerometer range set to %d (±%dg)", m.accelRange, []int{2, 4, 8, 16}[m.accelRange])

	if err := m.dev.SetGyroRange(m.gyroRange); err != nil {
		return fmt.Errorf("mpu9250: set gyro range: %w", err)
	}
	log.Infof("mpu9250: gyroscope range set to %d (±%d°/s)", m.gyroRange, []int{250, 500, 1000, 2000}[m.gyroRange])

	testResult, err := m.dev.SelfTest()
	if err != nil {
		log.Warnf("mpu9250: self-test failed: %v", err)
	} else {
		log.Infof("mpu9250: self-test passed (accel deviation X=%.2f%% Y=%.2f%% Z=%.2f%%, gyro deviation X=%.2f%% Y=%.2f%% Z=%.2f%%)",
			testResult.AccelDeviation.X, testResult.AccelDeviation.Y, testResult.AccelDeviation.Z,
			testResult.GyroDeviation.X, testResult.GyroDeviation.Y, testResult.GyroDeviation.Z)
	}
	log.Infof("mpu9250: initialized on %s (CS %s)", m.spiDev, m.csPin)
	return nil
}

// ReadAccelRaw implements Device.
func (m *MPU9250) ReadAccelRaw() (imu.Raw, error) {
	ax, err := m.dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: accel X: %w", ErrShortRead, err)
	}
	ay, err := m.dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: accel Y: %w", ErrShortRead, err)
	}
	az, err := m.dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: accel Z: %w", ErrShortRead, err)
	}
	return imu.Raw{ax, ay, az}, nil
}

// ReadGyroRaw implements Device.
func (m *MPU9250) ReadGyroRaw() (imu.Raw, error) {
	gx, err := m.dev.GetRotationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: gyro X: %w", ErrShortRead, err)
	}
	gy, err := m.dev.GetRotationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: gyro Y: %w", ErrShortRead, err)
	}
	gz, err := m.dev.GetRotationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("mpu9250: %w: gyro Z: %w", ErrShortRead, err)
	}
	return imu.Raw{gx, gy, gz}, nil
}
