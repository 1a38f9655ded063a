package orientation

import (
	"fmt"
	"math"
)

// Pose is the canonical representation of orientation for the app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// SwapRollYaw returns the pose with roll and yaw exchanged, for receivers that
// expect the sensor mounted on its side.
func (p Pose) SwapRollYaw() Pose {
	return Pose{Roll: p.Yaw, Pitch: p.Pitch, Yaw: p.Roll}
}

// IsFinite reports whether all three angles are real numbers.
func (p Pose) IsFinite() bool {
	for _, v := range []float64{p.Roll, p.Pitch, p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CSV renders the pose as "roll,pitch,yaw" with two decimals.
func (p Pose) CSV() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", p.Roll, p.Pitch, p.Yaw)
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is unobservable from gravity and is set to 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * radToDeg,
		Pitch: pitchRad * radToDeg,
		Yaw:   0,
	}
}
