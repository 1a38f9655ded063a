// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wiicon_remote/internal/app"
	"github.com/relabs-tech/wiicon_remote/internal/config"
	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/sensors"
	"github.com/relabs-tech/wiicon_remote/internal/telemetry"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

var rootCmd = &cobra.Command{
	Use:   "wiicon",
	Short: "IMU orientation over OSC",
	Long: `wiicon reads a 6-axis IMU, fuses it with a Madgwick filter and
streams roll, pitch and yaw as OSC messages over UDP.
Configuration is read from a KEY=VALUE file given with --config;
without one the built-in defaults are used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if err := config.InitGlobal(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level, err := log.ParseLevel(config.Get().LogLevel)
		if err != nil {
			return err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = log.DebugLevel
		}
		log.SetLevel(level)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "stream orientation until interrupted",
	Example: `  wiicon run --config=./wiicon_config.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info("starting wiicon remote (IMU → OSC)")
		return app.Run(cmd.Context(), config.Get())
	},
}

// openPipeline opens the configured sensor behind a gate that never sends.
func openPipeline(cfg *config.Config) (*app.Pipeline, sensors.Device, func() error, error) {
	device, closeDevice, err := sensors.Open(cfg, timeutil.RealClock{})
	if err != nil {
		return nil, nil, closeDevice, err
	}
	p, err := app.NewPipelineFromConfig(cfg, device, telemetry.NewRecordingGate(false), nil, timeutil.RealClock{})
	if err != nil {
		return nil, nil, closeDevice, err
	}
	return p, device, closeDevice, nil
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "measure the gyro bias and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		p, device, closeDevice, err := openPipeline(cfg)
		defer closeDevice()
		if err != nil {
			return err
		}

		if accel, _ := cmd.Flags().GetBool("accel"); accel {
			bmi, ok := device.(*sensors.BMI160)
			if !ok {
				return fmt.Errorf("accelerometer auto-calibration needs a bmi160, have %s", device.Name())
			}
			if err := bmi.AutoCalibrateAccel(); err != nil {
				return err
			}
		}

		bias, err := p.Calibrate(cfg.CalibSamples, time.Duration(cfg.CalibDelayMS)*time.Millisecond)
		if err != nil {
			return err
		}
		fmt.Printf("gyro bias (deg/s): X=%.4f Y=%.4f Z=%.4f\n", bias[0], bias[1], bias[2])
		return nil
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "print Euler frames received over OSC (or MQTT with --mqtt)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		ctx := cmd.Context()

		if useMQTT, _ := cmd.Flags().GetBool("mqtt"); useMQTT {
			if cfg.MQTTBroker == "" {
				return fmt.Errorf("MQTT_BROKER is not set")
			}
			client, err := app.ConnectMQTT(cfg.MQTTBroker, app.ClientID(""))
			if err != nil {
				return err
			}
			defer client.Disconnect(250)
			err = app.SubscribePose(client, cfg.TopicPose, func(p orientation.Pose) {
				app.PrintPose(os.Stdout, "MQTT", p)
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		}

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.OSCTargetPort
		}
		conn, err := app.ListenOSC(port)
		if err != nil {
			return err
		}
		defer conn.Close()
		log.Infof("console: listening for %s on udp :%d", cfg.OSCAddressEuler, port)

		if err := app.RunConsole(ctx, conn, cfg.OSCAddressEuler, os.Stdout); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

var registersCmd = &cobra.Command{
	Use:   "registers",
	Short: "dump IMU registers as JSON, or scan the I2C bus with --scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		if scan, _ := cmd.Flags().GetBool("scan"); scan {
			if _, err := host.Init(); err != nil {
				return fmt.Errorf("periph host init: %w", err)
			}
			bus, err := i2creg.Open(cfg.IMUI2CBus)
			if err != nil {
				return fmt.Errorf("open I2C bus: %w", err)
			}
			defer bus.Close()
			for _, addr := range sensors.ScanBus(bus) {
				fmt.Printf("0x%02X\n", addr)
			}
			return nil
		}

		p, device, closeDevice, err := openPipeline(cfg)
		defer closeDevice()
		if err != nil {
			return err
		}
		regs, err := app.DumpRegisters(p)
		if err != nil {
			return err
		}
		out, err := app.MarshalRegisters(device.Name(), regs)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "toggle debug logging")

	calibrateCmd.Flags().Bool("accel", false, "also run the BMI160 accelerometer auto-calibration")
	consoleCmd.Flags().Int("port", 0, "UDP port to listen on (default OSC_TARGET_PORT)")
	consoleCmd.Flags().Bool("mqtt", false, "subscribe to the MQTT pose topic instead of OSC")
	registersCmd.Flags().Bool("scan", false, "list responding I2C addresses")

	rootCmd.AddCommand(runCmd, calibrateCmd, consoleCmd, registersCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}
