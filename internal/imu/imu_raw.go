package imu

// Raw is one three-axis reading in sensor ticks, sensor-native axis order and sign.
type Raw [3]int16

// IsZero reports whether every axis reads exactly zero.
func (r Raw) IsZero() bool {
	return r[0] == 0 && r[1] == 0 && r[2] == 0
}

// Sample is a single raw accel+gyro reading taken in one polling cycle.
type Sample struct {
	Source string `json:"source"` // driver name

	Accel Raw `json:"accel"`
	Gyro  Raw `json:"gyro"`
}

// IsZero reports whether both channels read all zeros, which usually means
// the sensor is unpowered or not answering on its address.
func (s Sample) IsZero() bool {
	return s.Accel.IsZero() && s.Gyro.IsZero()
}

// Scale holds the tick-to-physical-unit factors for the configured ranges.
type Scale struct {
	AccelLSBPerG  float64 `json:"accel_lsb_per_g"`
	GyroLSBPerDPS float64 `json:"gyro_lsb_per_dps"`
}
