package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

const gyroScale = 16.4

type fakeGyro struct {
	readings []imu.Raw
	failAt   int // 1-based read that fails, 0 = never
	reads    int
}

func (f *fakeGyro) ReadGyroRaw() (imu.Raw, error) {
	f.reads++
	if f.failAt > 0 && f.reads == f.failAt {
		return imu.Raw{}, errors.New("bus timeout")
	}
	if len(f.readings) == 0 {
		return imu.Raw{}, nil
	}
	return f.readings[(f.reads-1)%len(f.readings)], nil
}

func newClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestCalibrateConstantReading(t *testing.T) {
	r := imu.Raw{41, -82, 164}
	clk := newClock()
	c := New(&fakeGyro{readings: []imu.Raw{r}}, gyroScale, clk)

	require.NoError(t, c.Calibrate(200, 5*time.Millisecond))

	b := c.Bias()
	assert.InDelta(t, 41/gyroScale, b[0], 1e-9)
	assert.InDelta(t, -82/gyroScale, b[1], 1e-9)
	assert.InDelta(t, 164/gyroScale, b[2], 1e-9)
	assert.Equal(t, 200, c.Samples())

	ok, _ := c.Calibrated()
	assert.True(t, ok)
}

func TestCalibrateBlocksForSamplesTimesDelay(t *testing.T) {
	clk := newClock()
	c := New(&fakeGyro{readings: []imu.Raw{{1, 2, 3}}}, gyroScale, clk)

	require.NoError(t, c.Calibrate(10, 7*time.Millisecond))

	assert.Len(t, clk.Sleeps(), 10)
	assert.Equal(t, 70*time.Millisecond, clk.Slept())
}

func TestCalibrateAveragesAlternatingReadings(t *testing.T) {
	g := &fakeGyro{readings: []imu.Raw{{10, -10, 32767}, {20, -30, 32767}}}
	c := New(g, gyroScale, newClock())

	require.NoError(t, c.Calibrate(4, 0))

	b := c.Bias()
	assert.InDelta(t, 15/gyroScale, b[0], 1e-9)
	assert.InDelta(t, -20/gyroScale, b[1], 1e-9)
	// Sum must not overflow int16.
	assert.InDelta(t, 32767/gyroScale, b[2], 1e-9)
}

func TestCalibrateRejectsNonPositiveCount(t *testing.T) {
	for _, n := range []int{0, -5} {
		g := &fakeGyro{readings: []imu.Raw{{100, 100, 100}}}
		c := New(g, gyroScale, newClock())
		prev := Bias{1.5, -2.5, 0.25}
		c.SetBias(prev)

		err := c.Calibrate(n, 3*time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidSampleCount)
		assert.Equal(t, prev, c.Bias())
		assert.Zero(t, g.reads, "no sensor reads for n=%d", n)
	}
}

func TestCalibrateReadFailureKeepsPreviousBias(t *testing.T) {
	g := &fakeGyro{readings: []imu.Raw{{500, 500, 500}}, failAt: 3}
	c := New(g, gyroScale, newClock())
	prev := Bias{0.1, 0.2, 0.3}
	c.SetBias(prev)

	err := c.Calibrate(10, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample 3")
	assert.Equal(t, prev, c.Bias())
	assert.Equal(t, 3, g.reads)
}

func TestResetClearsBias(t *testing.T) {
	c := New(&fakeGyro{readings: []imu.Raw{{16, 16, 16}}}, gyroScale, newClock())
	require.NoError(t, c.Calibrate(3, 0))
	c.Reset()

	assert.Equal(t, Bias{}, c.Bias())
	ok, _ := c.Calibrated()
	assert.False(t, ok)
}
