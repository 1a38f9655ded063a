package sensors

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wiicon_remote/internal/config"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// Open creates and initializes the IMU selected by cfg.IMUDriver.
// The returned closer releases the bus and is never nil.
func Open(cfg *config.Config, clock timeutil.Clock) (Device, func() error, error) {
	noop := func() error { return nil }

	if cfg.IMUDriver == config.DriverMock {
		d := NewMockIMU(clock)
		log.Info("sensors: using mock IMU")
		return d, noop, d.Init()
	}

	if _, err := host.Init(); err != nil {
		return nil, noop, fmt.Errorf("periph host init: %w", err)
	}

	switch cfg.IMUDriver {
	case config.DriverBMI160:
		bus, err := i2creg.Open(cfg.IMUI2CBus)
		if err != nil {
			return nil, noop, fmt.Errorf("open I2C bus %q: %w", cfg.IMUI2CBus, err)
		}
		d, err := NewBMI160(&i2c.Dev{Bus: bus, Addr: cfg.IMUI2CAddr},
			BMI160Opts{AccelRange: cfg.IMUAccelRange, GyroRange: cfg.IMUGyroRange}, clock)
		if err != nil {
			bus.Close()
			return nil, noop, err
		}
		if err := d.Init(); err != nil {
			bus.Close()
			return nil, noop, err
		}
		log.Infof("sensors: BMI160 on %s at 0x%02X", bus, cfg.IMUI2CAddr)
		return d, bus.Close, nil

	case config.DriverMPU9250:
		d, err := NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
		if err != nil {
			return nil, noop, err
		}
		if err := d.Init(); err != nil {
			return nil, noop, err
		}
		return d, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown IMU driver %q", cfg.IMUDriver)
	}
}
