// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates the gyroscope zero-rate bias.
package calibration

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// ErrInvalidSampleCount is returned when a calibration asks for no samples.
var ErrInvalidSampleCount = errors.New("calibration sample count must be positive")

// Bias is the gyro zero-rate offset in deg/s, sensor-native axis order.
type Bias [3]float64

// GyroReader is the part of a sensor the calibrator needs.
type GyroReader interface {
	ReadGyroRaw() (imu.Raw, error)
}

// Calibrator owns the current gyro bias. It is not safe for concurrent use;
// callers that share it must serialize access.
type Calibrator struct {
	reader        GyroReader
	clock         timeutil.Clock
	gyroLSBPerDPS float64
	bias          Bias
	samples       int
	at            time.Time
}

// New returns a Calibrator with a zero bias. A nil clock means RealClock.
func New(reader GyroReader, gyroLSBPerDPS float64, clock timeutil.Clock) *Calibrator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Calibrator{
		reader:        reader,
		clock:         clock,
		gyroLSBPerDPS: gyroLSBPerDPS,
	}
}

// Calibrate averages samples consecutive gyro reads, sleeping delay between
// them, and stores the result as the new bias.
//
// It blocks for roughly samples*delay and the sensor must be held still.
// On any error the previously stored bias is left as it was.
func (c *Calibrator) Calibrate(samples int, delay time.Duration) error {
	if samples <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleCount, samples)
	}
	if c.gyroLSBPerDPS <= 0 {
		return fmt.Errorf("gyro scale must be positive, got %v", c.gyroLSBPerDPS)
	}

	log.Infof("calibration: collecting %d gyro samples (%v apart), keep the sensor still", samples, delay)
	start := c.clock.Now()

	var sum [3]int64
	for i := 0; i < samples; i++ {
		raw, err := c.reader.ReadGyroRaw()
		if err != nil {
			log.Warnf("calibration: aborted at sample %d/%d: %v", i+1, samples, err)
			return fmt.Errorf("calibration sample %d: %w", i+1, err)
		}
		for axis := 0; axis < 3; axis++ {
			sum[axis] += int64(raw[axis])
		}
		c.clock.Sleep(delay)
	}

	var bias Bias
	for axis := 0; axis < 3; axis++ {
		avg := float64(sum[axis]) / float64(samples)
		bias[axis] = avg / c.gyroLSBPerDPS
	}

	c.bias = bias
	c.samples = samples
	c.at = c.clock.Now()

	log.Infof("calibration: gyro bias X=%.3f Y=%.3f Z=%.3f deg/s (%d samples, %v)",
		bias[0], bias[1], bias[2], samples, c.clock.Since(start))
	return nil
}

// Bias returns the stored bias.
func (c *Calibrator) Bias() Bias {
	return c.bias
}

// SetBias replaces the stored bias, e.g. with a value measured elsewhere.
func (c *Calibrator) SetBias(b Bias) {
	c.bias = b
	c.samples = 0
	c.at = c.clock.Now()
}

// Reset clears the bias back to zero.
func (c *Calibrator) Reset() {
	c.bias = Bias{}
	c.samples = 0
	c.at = time.Time{}
}

// Calibrated reports whether a bias has been measured or set, and when.
func (c *Calibrator) Calibrated() (bool, time.Time) {
	return !c.at.IsZero(), c.at
}

// Samples returns the sample count behind the last successful calibration.
func (c *Calibrator) Samples() int {
	return c.samples
}
