// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"math"
)

// Params tunes the Madgwick filter.
type Params struct {
	// Beta trades gyro drift correction against accelerometer noise.
	// 0 disables the accelerometer entirely. Typical range 0.01–0.5.
	Beta float64 `json:"beta"`
	// SampleFreq is the nominal update rate in Hz; each Update integrates 1/SampleFreq seconds.
	SampleFreq float64 `json:"sample_freq"`
}

// DefaultParams is beta 0.1 at 100 Hz.
var DefaultParams = Params{Beta: 0.1, SampleFreq: 100}

// Validate checks Beta >= 0 and SampleFreq > 0, both finite.
func (p Params) Validate() error {
	if p.Beta < 0 || math.IsNaN(p.Beta) || math.IsInf(p.Beta, 0) {
		return fmt.Errorf("filter beta must be a finite value >= 0, got %v", p.Beta)
	}
	if p.SampleFreq <= 0 || math.IsNaN(p.SampleFreq) || math.IsInf(p.SampleFreq, 0) {
		return fmt.Errorf("filter sample frequency must be a finite value > 0, got %v", p.SampleFreq)
	}
	return nil
}

// Madgwick is a gradient-descent IMU orientation filter (gyro + accel, no magnetometer).
// It owns its quaternion; a single goroutine should drive Update.
type Madgwick struct {
	q      Quaternion
	params Params
}

// NewMadgwick returns a filter at the identity orientation.
func NewMadgwick(p Params) (*Madgwick, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Madgwick{q: Identity, params: p}, nil
}

// Update advances the estimate by one sample period.
// gyro is angular rate in deg/s, accel is specific force in any unit (usually g).
// Inputs must be finite; an all-zero accel vector skips the correction step
// and the update is pure gyro propagation.
func (f *Madgwick) Update(gyro, accel [3]float64) {
	q := f.q

	gx := gyro[0] * degToRad
	gy := gyro[1] * degToRad
	gz := gyro[2] * degToRad

	// q̇ = ½ q ⊗ (0, ω)
	qDot := Quaternion{
		W: 0.5 * (-q.X*gx - q.Y*gy - q.Z*gz),
		X: 0.5 * (q.W*gx + q.Y*gz - q.Z*gy),
		Y: 0.5 * (q.W*gy - q.X*gz + q.Z*gx),
		Z: 0.5 * (q.W*gz + q.X*gy - q.Y*gx),
	}

	if s, ok := correction(q, accel); ok {
		qDot.W -= f.params.Beta * s.W
		qDot.X -= f.params.Beta * s.X
		qDot.Y -= f.params.Beta * s.Y
		qDot.Z -= f.params.Beta * s.Z
	}

	dt := 1.0 / f.params.SampleFreq
	q.W += qDot.W * dt
	q.X += qDot.X * dt
	q.Y += qDot.Y * dt
	q.Z += qDot.Z * dt

	f.q = q.Normalized()
}

// correction returns the normalized gradient of the gravity objective function,
// or false when accel or the gradient itself has zero length.
func correction(q Quaternion, accel [3]float64) (Quaternion, bool) {
	ax, ay, az := accel[0], accel[1], accel[2]
	an := math.Sqrt(ax*ax + ay*ay + az*az)
	if an == 0 {
		return Quaternion{}, false
	}
	ax /= an
	ay /= an
	az /= an

	s := gradient(q, ax, ay, az)

	sn := s.Norm()
	if sn == 0 {
		return Quaternion{}, false
	}
	return Quaternion{W: s.W / sn, X: s.X / sn, Y: s.Y / sn, Z: s.Z / sn}, true
}

// gradient is the closed form of Jᵀ·f for the objective
// f(q) = q* ⊗ (0,0,0,1) ⊗ q − a, a normalized.
func gradient(q Quaternion, ax, ay, az float64) Quaternion {
	_2q0 := 2 * q.W
	_2q1 := 2 * q.X
	_2q2 := 2 * q.Y
	_2q3 := 2 * q.Z
	_4q0 := 4 * q.W
	_4q1 := 4 * q.X
	_4q2 := 4 * q.Y
	_8q1 := 8 * q.X
	_8q2 := 8 * q.Y
	q0q0 := q.W * q.W
	q1q1 := q.X * q.X
	q2q2 := q.Y * q.Y
	q3q3 := q.Z * q.Z

	return Quaternion{
		W: _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay,
		X: _4q1*q3q3 - _2q3*ax + 4*q0q0*q.X - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az,
		Y: 4*q0q0*q.Y + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az,
		Z: 4*q1q1*q.Z - _2q1*ax + 4*q2q2*q.Z - _2q2*ay,
	}
}

// Quaternion returns the current estimate.
func (f *Madgwick) Quaternion() Quaternion {
	return f.q
}

// SetQuaternion seeds the estimate; q is normalized first.
func (f *Madgwick) SetQuaternion(q Quaternion) {
	f.q = q.Normalized()
}

// Reset returns the estimate to the identity orientation.
func (f *Madgwick) Reset() {
	f.q = Identity
}

// Params returns the current tuning.
func (f *Madgwick) Params() Params {
	return f.params
}

// SetParams replaces the tuning without touching the estimate.
func (f *Madgwick) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.params = p
	return nil
}

// Euler returns the current estimate as roll, pitch, yaw in degrees.
func (f *Madgwick) Euler() Pose {
	return EulerFromQuaternion(f.q)
}
