package sensors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

func TestMockIMUStill(t *testing.T) {
	m := NewMockIMU(timeutil.NewMockClock(time.Unix(0, 0)))
	m.Still = true
	m.GyroBias = imu.Raw{12, -7, 3}
	require.NoError(t, m.Init())

	s, err := ReadSample(m)
	require.NoError(t, err)
	assert.Equal(t, "mock", s.Source)
	assert.Equal(t, imu.Raw{0, 0, 16384}, s.Accel)
	assert.Equal(t, imu.Raw{12, -7, 3}, s.Gyro)
}

func TestMockIMUGravityMagnitude(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(0, 0))
	m := NewMockIMU(clk)

	for i := 0; i < 50; i++ {
		clk.Advance(137 * time.Millisecond)
		a, err := m.ReadAccelRaw()
		require.NoError(t, err)
		n := math.Sqrt(float64(a[0])*float64(a[0]) + float64(a[1])*float64(a[1]) + float64(a[2])*float64(a[2]))
		assert.InDelta(t, 16384, n, 3)
	}

	g, err := m.ReadGyroRaw()
	require.NoError(t, err)
	assert.Equal(t, int16(math.Round(30*16.4)), g[2])
}
