// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAxisMap is returned for maps that are not a signed permutation of the axes.
var ErrInvalidAxisMap = errors.New("invalid axis map")

// AxisMap remaps sensor axes onto output axes.
// Output axis i reads source axis Index[i] multiplied by Sign[i].
type AxisMap struct {
	Index [3]int `json:"index"`
	Sign  [3]int `json:"sign"`
}

// IdentityAxisMap leaves the sensor frame untouched.
var IdentityAxisMap = AxisMap{Index: [3]int{0, 1, 2}, Sign: [3]int{1, 1, 1}}

// Validate checks that Index is a bijection of {0,1,2} and every Sign is ±1.
func (m AxisMap) Validate() error {
	var seen [3]bool
	for i := 0; i < 3; i++ {
		idx := m.Index[i]
		if idx < 0 || idx > 2 {
			return fmt.Errorf("%w: index[%d]=%d out of range", ErrInvalidAxisMap, i, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: source axis %d used twice", ErrInvalidAxisMap, idx)
		}
		seen[idx] = true
		if m.Sign[i] != 1 && m.Sign[i] != -1 {
			return fmt.Errorf("%w: sign[%d]=%d must be 1 or -1", ErrInvalidAxisMap, i, m.Sign[i])
		}
	}
	return nil
}

// apply remaps a three-axis vector. Values are still in source units.
func (m AxisMap) apply(v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = v[m.Index[i]] * float64(m.Sign[i])
	}
	return out
}

// String renders the map the way the config file spells it, e.g. "0,1,2 / 1,-1,1".
func (m AxisMap) String() string {
	return fmt.Sprintf("%d,%d,%d / %d,%d,%d",
		m.Index[0], m.Index[1], m.Index[2], m.Sign[0], m.Sign[1], m.Sign[2])
}

// ParseTriple parses "a,b,c" into three integers.
func ParseTriple(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("value %d of %q: %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// Mapper converts raw readings into the output frame in physical units.
//
// The order is fixed: remap and sign-flip the raw ticks, divide by the scale,
// then subtract the gyro bias remapped with the same table. Bias is kept in
// sensor-native order by the calibrator, so remapping it here keeps both
// terms in one frame.
type Mapper struct {
	Accel AxisMap
	Gyro  AxisMap
	Scale Scale
}

// NewMapper validates both maps and the scale factors.
func NewMapper(accel, gyro AxisMap, scale Scale) (*Mapper, error) {
	if err := accel.Validate(); err != nil {
		return nil, fmt.Errorf("accel: %w", err)
	}
	if err := gyro.Validate(); err != nil {
		return nil, fmt.Errorf("gyro: %w", err)
	}
	if scale.AccelLSBPerG <= 0 || scale.GyroLSBPerDPS <= 0 {
		return nil, fmt.Errorf("scale factors must be positive, got accel=%v gyro=%v",
			scale.AccelLSBPerG, scale.GyroLSBPerDPS)
	}
	return &Mapper{Accel: accel, Gyro: gyro, Scale: scale}, nil
}

// MapAccel returns acceleration in g along the output axes.
func (m *Mapper) MapAccel(raw Raw) [3]float64 {
	out := m.Accel.apply(toFloat(raw))
	for i := range out {
		out[i] /= m.Scale.AccelLSBPerG
	}
	return out
}

// MapGyro returns bias-corrected angular rate in deg/s along the output axes.
// bias is in deg/s, sensor-native order.
func (m *Mapper) MapGyro(raw Raw, bias [3]float64) [3]float64 {
	out := m.Gyro.apply(toFloat(raw))
	biasMapped := m.Gyro.apply(bias)
	for i := range out {
		out[i] = out[i]/m.Scale.GyroLSBPerDPS - biasMapped[i]
	}
	return out
}

func toFloat(r Raw) [3]float64 {
	return [3]float64{float64(r[0]), float64(r[1]), float64(r[2])}
}
