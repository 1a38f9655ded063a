package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wiicon_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverBMI160, cfg.IMUDriver)
	assert.Equal(t, uint16(0x68), cfg.IMUI2CAddr)
	assert.Equal(t, 200, cfg.CalibSamples)
	assert.Equal(t, 5, cfg.CalibDelayMS)
	assert.Equal(t, 9000, cfg.OSCTargetPort)
	assert.Equal(t, "/wiicon/euler", cfg.OSCAddressEuler)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
# wiicon remote
IMU_DRIVER = MOCK
IMU_I2C_ADDR=0x69
FILTER_BETA=0.05
SAMPLE_FREQ_HZ=200
CALIB_ON_START=false
SWAP_ROLL_YAW=true
OSC_TARGET_IP=10.0.0.7
OSC_TARGET_PORT=8000
AXIS_MAP=1,0,2
AXIS_SIGN=1,-1,1
GYRO_AXIS_SIGN=-1,-1,1
LOG_LEVEL=DEBUG
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.IMUDriver = DriverMock
	want.IMUI2CAddr = 0x69
	want.FilterBeta = 0.05
	want.SampleFreqHz = 200
	want.CalibOnStart = false
	want.SwapRollYaw = true
	want.OSCTargetIP = "10.0.0.7"
	want.OSCTargetPort = 8000
	want.AccelAxisMap = imu.AxisMap{Index: [3]int{1, 0, 2}, Sign: [3]int{1, -1, 1}}
	want.GyroAxisMap = imu.AxisMap{Index: [3]int{1, 0, 2}, Sign: [3]int{-1, -1, 1}}
	want.LogLevel = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing equals", "IMU_DRIVER bmi160\n"},
		{"unknown driver", "IMU_DRIVER=lsm6\n"},
		{"accel range", "IMU_ACCEL_RANGE=4\n"},
		{"negative beta", "FILTER_BETA=-0.1\n"},
		{"zero frequency", "SAMPLE_FREQ_HZ=0\n"},
		{"frequency above bound", "SAMPLE_FREQ_HZ=10001\n"},
		{"frequency rounding to zero period", "SAMPLE_FREQ_HZ=2e9\n"},
		{"zero samples", "CALIB_SAMPLES=0\n"},
		{"port", "OSC_TARGET_PORT=70000\n"},
		{"ipv6 target", "OSC_TARGET_IP=::1\n"},
		{"relative address", "OSC_ADDRESS_EULER=wiicon\n"},
		{"duplicate axis", "AXIS_MAP=0,0,2\n"},
		{"bad sign", "AXIS_SIGN=1,2,1\n"},
		{"i2c address", "IMU_I2C_ADDR=0x100\n"},
		{"log level", "LOG_LEVEL=loud\n"},
		{"mpu9250 without spi", "IMU_DRIVER=mpu9250\nIMU_SPI_DEVICE=\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "GPS_BAUD_RATE=9600\nOSC_INTERFACE=wlan0\n"))
	require.NoError(t, err)
	assert.Equal(t, "wlan0", cfg.OSCInterface)
}
