package sensors

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

const addr = BMI160DefaultAddr

func initOps(chipID byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{0x7E, 0xB6}},
		{Addr: addr, W: []byte{0x00}, R: []byte{chipID}},
		{Addr: addr, W: []byte{0x7E, 0x11}},
		{Addr: addr, W: []byte{0x7E, 0x15}},
		{Addr: addr, W: []byte{0x40, 0x28}},
		{Addr: addr, W: []byte{0x41, 0x03}},
		{Addr: addr, W: []byte{0x42, 0x28}},
		{Addr: addr, W: []byte{0x43, 0x00}},
	}
}

func newTestBMI160(t *testing.T, ops []i2ctest.IO) (*BMI160, *i2ctest.Playback, *timeutil.MockClock) {
	t.Helper()
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	clk := timeutil.NewMockClock(time.Unix(0, 0))
	d, err := NewBMI160(&i2c.Dev{Bus: bus, Addr: addr}, DefaultBMI160Opts, clk)
	require.NoError(t, err)
	return d, bus, clk
}

func TestBMI160Init(t *testing.T) {
	d, bus, clk := newTestBMI160(t, initOps(BMI160ChipID))

	require.NoError(t, d.Init())
	require.NoError(t, bus.Close())
	assert.Equal(t, 250*time.Millisecond, clk.Slept())
	assert.Equal(t, imu.Scale{AccelLSBPerG: 16384, GyroLSBPerDPS: 16.4}, d.Scale())
}

func TestBMI160InitChipIDMismatchIsWarning(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	d, bus, _ := newTestBMI160(t, initOps(0x00))

	require.NoError(t, d.Init())
	require.NoError(t, bus.Close())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && e.Message == "bmi160: chip id mismatch: 0x00 (expected 0xD1)" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a chip id warning")
}

func TestBMI160InitBusError(t *testing.T) {
	d, _, _ := newTestBMI160(t, nil)
	err := d.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soft reset")
}

func TestBMI160ReadsLittleEndian(t *testing.T) {
	d, bus, _ := newTestBMI160(t, []i2ctest.IO{
		{Addr: addr, W: []byte{0x12}, R: []byte{0x01, 0x02, 0xFF, 0xFF, 0x00, 0x80}},
		{Addr: addr, W: []byte{0x0C}, R: []byte{0xD0, 0x07, 0x30, 0xF8, 0x00, 0x00}},
	})

	acc, err := d.ReadAccelRaw()
	require.NoError(t, err)
	assert.Equal(t, imu.Raw{0x0201, -1, -32768}, acc)

	gyr, err := d.ReadGyroRaw()
	require.NoError(t, err)
	assert.Equal(t, imu.Raw{2000, -2000, 0}, gyr)

	require.NoError(t, bus.Close())
}

func TestBMI160ReadFailureIsShortRead(t *testing.T) {
	d, _, _ := newTestBMI160(t, nil)

	_, err := d.ReadGyroRaw()
	assert.ErrorIs(t, err, ErrShortRead)

	_, err = ReadSample(d)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestBMI160AutoCalibrateAccel(t *testing.T) {
	d, bus, clk := newTestBMI160(t, []i2ctest.IO{
		{Addr: addr, W: []byte{0x7E, 0x37}},
	})
	require.NoError(t, d.AutoCalibrateAccel())
	require.NoError(t, bus.Close())
	assert.Equal(t, 1100*time.Millisecond, clk.Slept())
}

func TestBMI160RegisterAccess(t *testing.T) {
	d, bus, _ := newTestBMI160(t, []i2ctest.IO{
		{Addr: addr, W: []byte{0x41}, R: []byte{0x05}},
		{Addr: addr, W: []byte{0x41, 0x08}},
	})

	v, err := d.ReadRegister(0x41)
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), v)
	require.NoError(t, d.WriteRegister(0x41, 0x08))
	require.NoError(t, bus.Close())

	var _ RegisterAccessor = d
	assert.NotEmpty(t, d.RegisterMap())
}

func TestBMI160Ranges(t *testing.T) {
	ops := initOps(BMI160ChipID)
	ops[5].W = []byte{0x41, 0x0C}
	ops[7].W = []byte{0x43, 0x03}
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}

	d, err := NewBMI160(&i2c.Dev{Bus: bus, Addr: addr}, BMI160Opts{AccelRange: 3, GyroRange: 0},
		timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)
	require.NoError(t, d.Init())
	require.NoError(t, bus.Close())
	assert.Equal(t, imu.Scale{AccelLSBPerG: 2048, GyroLSBPerDPS: 131.2}, d.Scale())

	_, err = NewBMI160(&i2c.Dev{Bus: bus, Addr: addr}, BMI160Opts{AccelRange: 4}, nil)
	assert.Error(t, err)
}

func TestBMI160RangeWriteUpdatesScale(t *testing.T) {
	d, bus, _ := newTestBMI160(t, []i2ctest.IO{
		{Addr: addr, W: []byte{0x43, 0x03}},
		{Addr: addr, W: []byte{0x41, 0x05}},
	})
	assert.Equal(t, imu.Scale{AccelLSBPerG: 16384, GyroLSBPerDPS: 16.4}, d.Scale())

	require.NoError(t, d.WriteRegister(0x43, 0x03))
	assert.Equal(t, 131.2, d.Scale().GyroLSBPerDPS)
	require.NoError(t, d.WriteRegister(0x41, 0x05))
	assert.Equal(t, 8192.0, d.Scale().AccelLSBPerG)

	// unsupported range values never reach the bus
	assert.Error(t, d.WriteRegister(0x43, 0x07))
	assert.Error(t, d.WriteRegister(0x41, 0x04))
	require.NoError(t, bus.Close())
	assert.Equal(t, imu.Scale{AccelLSBPerG: 8192, GyroLSBPerDPS: 131.2}, d.Scale())
}
