// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// MockIMU synthesizes raw samples for a sensor swinging smoothly in roll and
// pitch while turning in yaw, at ±2g / ±2000°/s scale.
type MockIMU struct {
	clock timeutil.Clock
	start time.Time

	// Still holds the sensor level and motionless.
	Still bool
	// GyroBias is added to every gyro reading, in raw counts.
	GyroBias imu.Raw
}

// NewMockIMU creates a mock sensor whose motion is driven by clock.
func NewMockIMU(clock timeutil.Clock) *MockIMU {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MockIMU{clock: clock, start: clock.Now()}
}

// Name implements Device.
func (m *MockIMU) Name() string {
	return "mock"
}

// Init implements Device.
func (m *MockIMU) Init() error {
	m.start = m.clock.Now()
	return nil
}

// Scale implements Device.
func (m *MockIMU) Scale() imu.Scale {
	return imu.Scale{AccelLSBPerG: bmi160AccelLSBPerG[0], GyroLSBPerDPS: bmi160GyroLSBPerDPS[3]}
}

// angles returns roll, pitch, yaw in degrees.
func (m *MockIMU) angles(elapsed float64) (float64, float64, float64) {
	if m.Still {
		return 0, 0, 0
	}
	return 20 * math.Sin(elapsed), 15 * math.Cos(elapsed*0.7), math.Mod(elapsed*30, 360)
}

// ReadAccelRaw implements Device: gravity seen from the current tilt.
func (m *MockIMU) ReadAccelRaw() (imu.Raw, error) {
	roll, pitch, _ := m.angles(m.clock.Since(m.start).Seconds())
	r := roll * math.Pi / 180
	p := pitch * math.Pi / 180

	g := [3]float64{
		-math.Sin(p),
		math.Sin(r) * math.Cos(p),
		math.Cos(r) * math.Cos(p),
	}
	return toRaw(g, m.Scale().AccelLSBPerG, imu.Raw{}), nil
}

// ReadGyroRaw implements Device: time derivative of the motion plus bias.
func (m *MockIMU) ReadGyroRaw() (imu.Raw, error) {
	var rate [3]float64
	if !m.Still {
		t := m.clock.Since(m.start).Seconds()
		rate = [3]float64{20 * math.Cos(t), -10.5 * math.Sin(t*0.7), 30}
	}
	return toRaw(rate, m.Scale().GyroLSBPerDPS, m.GyroBias), nil
}

func toRaw(v [3]float64, scale float64, offset imu.Raw) imu.Raw {
	var r imu.Raw
	for i := range v {
		x := math.Round(v[i]*scale) + float64(offset[i])
		r[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, x)))
	}
	return r
}
