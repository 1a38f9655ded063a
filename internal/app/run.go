package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wiicon_remote/internal/config"
	"github.com/relabs-tech/wiicon_remote/internal/sensors"
	"github.com/relabs-tech/wiicon_remote/internal/telemetry"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// Run starts the sensor, calibrates if configured, and streams Euler frames
// until ctx is done. MQTT, web and display run alongside when enabled in cfg.
func Run(ctx context.Context, cfg *config.Config) error {
	clock := timeutil.RealClock{}

	device, closeDevice, err := sensors.Open(cfg, clock)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer closeDevice()

	gate, err := telemetry.ListenUDPGate(cfg.OSCTargetIP, cfg.OSCTargetPort, cfg.OSCInterface)
	if err != nil {
		return fmt.Errorf("udp: %w", err)
	}
	defer gate.Close()

	var debug *telemetry.DebugWriter
	if cfg.DebugCSV {
		if debug, err = telemetry.OpenDebugWriter(cfg.DebugSerialPort, cfg.DebugSerialBaud); err != nil {
			return err
		}
		defer debug.Close()
	}

	pipeline, err := NewPipelineFromConfig(cfg, device, gate, debug, clock)
	if err != nil {
		return err
	}

	calibDelay := time.Duration(cfg.CalibDelayMS) * time.Millisecond
	if cfg.CalibOnStart {
		// A failed calibration leaves a zero bias; streaming still starts.
		if _, err := pipeline.Calibrate(cfg.CalibSamples, calibDelay); err != nil {
			log.Errorf("calibration failed, continuing with zero bias: %v", err)
		}
	}

	var observers []Observer
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, ClientID(cfg.MQTTClientID))
		if err != nil {
			// MQTT is a side channel; OSC keeps running without it.
			log.Warnf("mqtt disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			observers = append(observers, NewMQTTPublisher(client, cfg.TopicPose, clock))
		}
	}

	if cfg.WebServerPort > 0 {
		writable, err := ParseAddrRanges(cfg.RegisterWriteRanges)
		if err != nil {
			return fmt.Errorf("REGISTER_WRITE_RANGES: %w", err)
		}
		web := NewWebServer(pipeline, WebOptions{
			StaticDir:    cfg.WebStaticDir,
			CalibSamples: cfg.CalibSamples,
			CalibDelay:   calibDelay,
			WritableRegs: writable,
		})
		observers = append(observers, web)
		g.Go(func() error { return web.Run(ctx, cfg.WebServerPort) })
	}

	if cfg.DisplayI2CAddr != 0 {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph host init: %w", err)
		}
		bus, err := i2creg.Open(cfg.IMUI2CBus)
		if err != nil {
			log.Warnf("display disabled: open I2C bus: %v", err)
		} else {
			defer bus.Close()
			if dev, err := OpenDisplay(bus, cfg.DisplayI2CAddr); err != nil {
				log.Warnf("display disabled: %v", err)
			} else {
				interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
				g.Go(func() error { return RunDisplay(ctx, clock, dev, pipeline, interval) })
			}
		}
	}

	g.Go(func() error {
		return RunProducer(ctx, clock, pipeline, SampleInterval(cfg.SampleFreqHz), observers...)
	})

	err = g.Wait()
	st := pipeline.Stats()
	sent, failed := gate.Stats()
	log.Infof("stopped after %d cycles: %d read errors, %d dropped while offline, %d datagrams sent, %d failed (last destination %v)",
		st.Cycles, st.ReadErrors, st.Dropped, sent, failed, gate.Destination())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
