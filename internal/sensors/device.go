// Package sensors talks to the inertial measurement unit.
package sensors

import (
	"errors"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
)

// ErrShortRead is wrapped by every failed or incomplete sensor read.
var ErrShortRead = errors.New("short read")

// Device is a 6-axis IMU delivering raw accelerometer and gyroscope triples
// in sensor-native axis order.
type Device interface {
	Name() string
	Init() error
	ReadAccelRaw() (imu.Raw, error)
	ReadGyroRaw() (imu.Raw, error)
	// Scale reports LSB per g and LSB per deg/s for the configured ranges.
	Scale() imu.Scale
}

// RegisterAccessor is implemented by devices that expose raw register access
// for the debug endpoints.
type RegisterAccessor interface {
	ReadRegister(addr byte) (byte, error)
	WriteRegister(addr, value byte) error
	RegisterMap() []RegisterInfo
}

// RegisterInfo describes one register for the register debug UI.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// BitField describes a field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// ReadSample reads accelerometer then gyroscope into one sample.
func ReadSample(d Device) (imu.Sample, error) {
	accel, err := d.ReadAccelRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	gyro, err := d.ReadGyroRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	return imu.Sample{Source: d.Name(), Accel: accel, Gyro: gyro}, nil
}
