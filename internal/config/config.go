package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/imu"
)

// Supported IMU_DRIVER values.
const (
	DriverBMI160  = "bmi160"
	DriverMPU9250 = "mpu9250"
	DriverMock    = "mock"
)

// MaxSampleFreqHz bounds SAMPLE_FREQ_HZ. Neither sensor outputs faster
// than a few kHz and the polling period must stay a positive duration.
const MaxSampleFreqHz = 10000

// Config holds all application configuration values.
type Config struct {
	// IMU Hardware
	IMUDriver    string
	IMUI2CBus    string // "" selects the first bus
	IMUI2CAddr   uint16
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Axis mapping. AXIS_MAP/AXIS_SIGN set both channels;
	// ACCEL_* and GYRO_* keys override one channel. Later lines win.
	AccelAxisMap imu.AxisMap
	GyroAxisMap  imu.AxisMap

	// Unit conversion, 0 = use the driver's scale for the configured range
	AccelLSBPerG  float64
	GyroLSBPerDPS float64

	// Filter
	FilterBeta   float64
	SampleFreqHz float64

	// Calibration
	CalibSamples int
	CalibDelayMS int
	CalibOnStart bool

	// Output
	SwapRollYaw     bool
	OSCTargetIP     string // "" = broadcast on OSCInterface
	OSCTargetPort   int
	OSCAddressEuler string
	OSCInterface    string // "" = first up, non-loopback IPv4 interface

	// Debug CSV
	DebugCSV        bool
	DebugSerialPort string // "" = stdout
	DebugSerialBaud uint

	// MQTT (disabled when MQTT_BROKER is empty)
	MQTTBroker   string
	MQTTClientID string
	TopicPose    string

	// Web Server (disabled when 0)
	WebServerPort int
	WebStaticDir  string
	// Registers the debug page may write, e.g. "0x40-0x4F,0x69"
	RegisterWriteRanges string

	// Display (disabled when 0)
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: set once by InitGlobal, read through Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the built-in configuration: a BMI160 at 0x68 on the first
// I2C bus, ±2g / ±2000°/s, beta 0.1 at 100 Hz, 200×5 ms calibration at start,
// and Euler frames broadcast to port 9000.
func Default() *Config {
	return &Config{
		IMUDriver:     DriverBMI160,
		IMUI2CAddr:    0x68,
		IMUSPIDevice:  "/dev/spidev0.0",
		IMUCSPin:      "GPIO8",
		IMUAccelRange: 0,
		IMUGyroRange:  3,

		AccelAxisMap: imu.IdentityAxisMap,
		GyroAxisMap:  imu.IdentityAxisMap,

		FilterBeta:   0.1,
		SampleFreqHz: 100,

		CalibSamples: 200,
		CalibDelayMS: 5,
		CalibOnStart: true,

		OSCTargetPort:   9000,
		OSCAddressEuler: "/wiicon/euler",

		DebugCSV:        true,
		DebugSerialBaud: 115200,

		TopicPose: "wiicon/pose",

		WebStaticDir:        "web",
		RegisterWriteRanges: "0x40,0x42,0x44-0x7A",

		DisplayUpdateInterval: 200,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Default() and returns the result.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// IMU Hardware
	case "IMU_DRIVER":
		switch v := strings.ToLower(value); v {
		case DriverBMI160, DriverMPU9250, DriverMock:
			c.IMUDriver = v
		default:
			return fmt.Errorf("IMU_DRIVER must be one of bmi160, mpu9250, mock, got %q", value)
		}
	case "IMU_I2C_BUS":
		c.IMUI2CBus = value
	case "IMU_I2C_ADDR":
		addr, err := parseI2CAddr(key, value)
		if err != nil {
			return err
		}
		c.IMUI2CAddr = addr
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Axis mapping
	case "AXIS_MAP", "ACCEL_AXIS_MAP", "GYRO_AXIS_MAP":
		idx, err := imu.ParseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if key != "GYRO_AXIS_MAP" {
			c.AccelAxisMap.Index = idx
		}
		if key != "ACCEL_AXIS_MAP" {
			c.GyroAxisMap.Index = idx
		}
	case "AXIS_SIGN", "ACCEL_AXIS_SIGN", "GYRO_AXIS_SIGN":
		sign, err := imu.ParseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if key != "GYRO_AXIS_SIGN" {
			c.AccelAxisMap.Sign = sign
		}
		if key != "ACCEL_AXIS_SIGN" {
			c.GyroAxisMap.Sign = sign
		}

	// Unit conversion
	case "ACCEL_LSB_PER_G":
		v, err := parseNonNegativeFloat(key, value)
		if err != nil {
			return err
		}
		c.AccelLSBPerG = v
	case "GYRO_LSB_PER_DPS":
		v, err := parseNonNegativeFloat(key, value)
		if err != nil {
			return err
		}
		c.GyroLSBPerDPS = v

	// Filter
	case "FILTER_BETA":
		v, err := parseNonNegativeFloat(key, value)
		if err != nil {
			return err
		}
		c.FilterBeta = v
	case "SAMPLE_FREQ_HZ":
		v, err := parseNonNegativeFloat(key, value)
		if err != nil {
			return err
		}
		if v == 0 || v > MaxSampleFreqHz {
			return fmt.Errorf("SAMPLE_FREQ_HZ must be in (0, %d], got %g", MaxSampleFreqHz, v)
		}
		c.SampleFreqHz = v

	// Calibration
	case "CALIB_SAMPLES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_SAMPLES %q: %w", value, err)
		}
		if n <= 0 {
			return fmt.Errorf("CALIB_SAMPLES must be > 0, got %d", n)
		}
		c.CalibSamples = n
	case "CALIB_DELAY_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_DELAY_MS %q: %w", value, err)
		}
		if n < 0 {
			return fmt.Errorf("CALIB_DELAY_MS must be >= 0, got %d", n)
		}
		c.CalibDelayMS = n
	case "CALIB_ON_START":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_ON_START %q: %w", value, err)
		}
		c.CalibOnStart = b

	// Output
	case "SWAP_ROLL_YAW":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SWAP_ROLL_YAW %q: %w", value, err)
		}
		c.SwapRollYaw = b
	case "OSC_TARGET_IP":
		if value != "" && net.ParseIP(value).To4() == nil {
			return fmt.Errorf("OSC_TARGET_IP must be an IPv4 address, got %q", value)
		}
		c.OSCTargetIP = value
	case "OSC_TARGET_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid OSC_TARGET_PORT %q: %w", value, err)
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("OSC_TARGET_PORT must be 1-65535, got %d", port)
		}
		c.OSCTargetPort = port
	case "OSC_ADDRESS_EULER":
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("OSC_ADDRESS_EULER must start with '/', got %q", value)
		}
		c.OSCAddressEuler = value
	case "OSC_INTERFACE":
		c.OSCInterface = value

	// Debug CSV
	case "DEBUG_CSV":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DEBUG_CSV %q: %w", value, err)
		}
		c.DebugCSV = b
	case "DEBUG_SERIAL_PORT":
		c.DebugSerialPort = value
	case "DEBUG_SERIAL_BAUD":
		baud, err := strconv.ParseUint(value, 10, 32)
		if err != nil || baud == 0 {
			return fmt.Errorf("invalid DEBUG_SERIAL_BAUD %q", value)
		}
		c.DebugSerialBaud = uint(baud)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_POSE":
		c.TopicPose = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value
	case "REGISTER_WRITE_RANGES":
		c.RegisterWriteRanges = value

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := parseI2CAddr(key, value)
		if err != nil {
			return err
		}
		c.DisplayI2CAddr = addr
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be > 0, got %d", interval)
		}
		c.DisplayUpdateInterval = interval

	case "LOG_LEVEL":
		if _, err := log.ParseLevel(value); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
		}
		c.LogLevel = strings.ToLower(value)

	default:
		// Unknown keys are ignored so one file can serve several builds
		log.Warnf("config: ignoring unknown key %q", key)
	}
	return nil
}

func parseI2CAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s must be a 7-bit address, got 0x%X", key, addr)
	}
	return uint16(addr), nil
}

func parseNonNegativeFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %v", key, v)
	}
	return v, nil
}

// Validate checks cross-field constraints that single keys cannot.
func (c *Config) Validate() error {
	if err := c.AccelAxisMap.Validate(); err != nil {
		return fmt.Errorf("accelerometer axis map: %w", err)
	}
	if err := c.GyroAxisMap.Validate(); err != nil {
		return fmt.Errorf("gyroscope axis map: %w", err)
	}
	if c.IMUDriver == DriverMPU9250 && (c.IMUSPIDevice == "" || c.IMUCSPin == "") {
		return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for the mpu9250 driver")
	}
	if c.OSCAddressEuler == "" {
		return fmt.Errorf("OSC_ADDRESS_EULER is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// An empty path installs Default().
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
