package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/calibration"
	"github.com/relabs-tech/wiicon_remote/internal/config"
	"github.com/relabs-tech/wiicon_remote/internal/imu"
	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/osc"
	"github.com/relabs-tech/wiicon_remote/internal/sensors"
	"github.com/relabs-tech/wiicon_remote/internal/telemetry"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// ErrNoRegisterAccess is returned for register commands on drivers without raw access.
var ErrNoRegisterAccess = errors.New("device has no register access")

// State is the result of one cycle.
type State struct {
	Time       time.Time              `json:"time"`
	Pose       orientation.Pose       `json:"pose"`
	Quaternion orientation.Quaternion `json:"quaternion"`
	Raw        imu.Sample             `json:"raw"`
	Accel      [3]float64             `json:"accel_g"`
	Gyro       [3]float64             `json:"gyro_dps"`
	// Tilt is roll and pitch from gravity alone, for comparing against the filter.
	Tilt orientation.Pose `json:"accel_tilt"`
}

// CalibrationInfo describes the gyro bias in use.
type CalibrationInfo struct {
	Bias       calibration.Bias `json:"gyro_bias_dps"`
	Calibrated bool             `json:"calibrated"`
	At         time.Time        `json:"calibrated_at,omitempty"`
	Samples    int              `json:"samples"`
}

// Stats counts cycle outcomes since start.
type Stats struct {
	Cycles       uint64 `json:"cycles"`
	Sent         uint64 `json:"sent"`
	Dropped      uint64 `json:"dropped"`
	ReadErrors   uint64 `json:"read_errors"`
	EncodeErrors uint64 `json:"encode_errors"`
	ZeroSamples  uint64 `json:"zero_samples"`
}

// PipelineOptions holds the per-cycle output settings.
type PipelineOptions struct {
	Address     string
	SwapRollYaw bool
	Debug       *telemetry.DebugWriter // nil disables the CSV line
	Clock       timeutil.Clock

	// ScaleOverride pins the unit scales; zero fields follow the device.
	ScaleOverride imu.Scale
}

// Pipeline runs read → map → filter → encode → send, one cycle per Step.
// All methods are safe for concurrent use; Calibrate blocks Step for its duration.
type Pipeline struct {
	mu     sync.Mutex
	device sensors.Device
	mapper *imu.Mapper
	calib  *calibration.Calibrator
	filter *orientation.Madgwick
	gate   telemetry.Gate
	enc    osc.Encoder
	opts   PipelineOptions

	// deviceScale is what the device reported when the mapper was last built.
	deviceScale imu.Scale

	last    State
	hasLast bool
	stats   Stats
}

// NewPipeline wires the components together.
func NewPipeline(device sensors.Device, mapper *imu.Mapper, calib *calibration.Calibrator,
	filter *orientation.Madgwick, gate telemetry.Gate, opts PipelineOptions) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Pipeline{
		device:      device,
		mapper:      mapper,
		calib:       calib,
		filter:      filter,
		gate:        gate,
		opts:        opts,
		deviceScale: device.Scale(),
	}
}

// effectiveScale applies the non-zero fields of override to the device scale.
func effectiveScale(device, override imu.Scale) imu.Scale {
	if override.AccelLSBPerG > 0 {
		device.AccelLSBPerG = override.AccelLSBPerG
	}
	if override.GyroLSBPerDPS > 0 {
		device.GyroLSBPerDPS = override.GyroLSBPerDPS
	}
	return device
}

// NewPipelineFromConfig builds mapper, calibrator and filter from cfg.
// Unit scales not set in cfg come from the device.
func NewPipelineFromConfig(cfg *config.Config, device sensors.Device, gate telemetry.Gate,
	debug *telemetry.DebugWriter, clock timeutil.Clock) (*Pipeline, error) {
	override := imu.Scale{AccelLSBPerG: cfg.AccelLSBPerG, GyroLSBPerDPS: cfg.GyroLSBPerDPS}
	scale := effectiveScale(device.Scale(), override)

	mapper, err := imu.NewMapper(cfg.AccelAxisMap, cfg.GyroAxisMap, scale)
	if err != nil {
		return nil, fmt.Errorf("axis mapper: %w", err)
	}

	filter, err := orientation.NewMadgwick(orientation.Params{Beta: cfg.FilterBeta, SampleFreq: cfg.SampleFreqHz})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	calib := calibration.New(device, scale.GyroLSBPerDPS, clock)

	log.Infof("pipeline: %s, accel map %s, gyro map %s, %.1f LSB/g, %.1f LSB/(°/s), beta %.3f at %.0f Hz",
		device.Name(), cfg.AccelAxisMap, cfg.GyroAxisMap, scale.AccelLSBPerG, scale.GyroLSBPerDPS,
		cfg.FilterBeta, cfg.SampleFreqHz)

	return NewPipeline(device, mapper, calib, filter, gate, PipelineOptions{
		Address:       cfg.OSCAddressEuler,
		SwapRollYaw:   cfg.SwapRollYaw,
		Debug:         debug,
		Clock:         clock,
		ScaleOverride: override,
	}), nil
}

// Step runs one cycle. A sensor read error skips the cycle and is returned;
// the caller keeps looping. A frame is handed to the gate only when it is ready.
func (p *Pipeline) Step() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Cycles++

	sample, err := sensors.ReadSample(p.device)
	if err != nil {
		p.stats.ReadErrors++
		log.Warnf("pipeline: sensor read failed, skipping cycle: %v", err)
		return State{}, err
	}
	if sample.IsZero() {
		p.stats.ZeroSamples++
		log.Warn("pipeline: raw sensor values are all zero, check wiring, address, or that the sensor is powered")
	}

	accel := p.mapper.MapAccel(sample.Accel)
	gyro := p.mapper.MapGyro(sample.Gyro, [3]float64(p.calib.Bias()))

	p.filter.Update(gyro, accel)
	pose := p.filter.Euler()
	if p.opts.SwapRollYaw {
		pose = pose.SwapRollYaw()
	}

	if p.opts.Debug != nil {
		p.opts.Debug.WritePose(pose)
	}

	if p.gate.IsReady() {
		frame, err := p.enc.EncodeEuler(p.opts.Address, float32(pose.Roll), float32(pose.Pitch), float32(pose.Yaw))
		if err != nil {
			p.stats.EncodeErrors++
			log.Errorf("pipeline: encode: %v", err)
		} else {
			p.gate.Send(frame)
			p.stats.Sent++
		}
	} else {
		p.stats.Dropped++
	}

	st := State{
		Time:       p.opts.Clock.Now(),
		Pose:       pose,
		Quaternion: p.filter.Quaternion(),
		Raw:        sample,
		Accel:      accel,
		Gyro:       gyro,
		Tilt:       orientation.ComputePoseFromAccel(accel[0], accel[1], accel[2]),
	}
	p.last = st
	p.hasLast = true
	return st, nil
}

// Calibrate measures a new gyro bias. It blocks Step for samples*delay.
func (p *Pipeline) Calibrate(samples int, delay time.Duration) (calibration.Bias, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.calib.Calibrate(samples, delay)
	return p.calib.Bias(), err
}

// Bias returns the gyro bias in use.
func (p *Pipeline) Bias() calibration.Bias {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calib.Bias()
}

// Calibration returns the bias along with when and how it was measured.
func (p *Pipeline) Calibration() CalibrationInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok, at := p.calib.Calibrated()
	return CalibrationInfo{Bias: p.calib.Bias(), Calibrated: ok, At: at, Samples: p.calib.Samples()}
}

// ResetFilter returns the orientation estimate to identity.
func (p *Pipeline) ResetFilter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter.Reset()
	log.Info("pipeline: orientation reset to identity")
}

// FilterParams returns the current filter tuning.
func (p *Pipeline) FilterParams() orientation.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.Params()
}

// SetBeta changes the filter gain.
func (p *Pipeline) SetBeta(beta float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	params := p.filter.Params()
	params.Beta = beta
	return p.filter.SetParams(params)
}

// Last returns the latest cycle result, false before the first successful cycle.
func (p *Pipeline) Last() (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Stats returns the cycle counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// DeviceName returns the sensor driver name.
func (p *Pipeline) DeviceName() string {
	return p.device.Name()
}

func (p *Pipeline) registers() (sensors.RegisterAccessor, error) {
	ra, ok := p.device.(sensors.RegisterAccessor)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.device.Name(), ErrNoRegisterAccess)
	}
	return ra, nil
}

// RegisterMap returns the register metadata of the device.
func (p *Pipeline) RegisterMap() ([]sensors.RegisterInfo, error) {
	ra, err := p.registers()
	if err != nil {
		return nil, err
	}
	return ra.RegisterMap(), nil
}

// ReadRegister reads one device register between cycles.
func (p *Pipeline) ReadRegister(addr byte) (byte, error) {
	ra, err := p.registers()
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return ra.ReadRegister(addr)
}

// WriteRegister writes one device register between cycles. When the write
// changes the measurement range the unit scales follow it, and a changed gyro
// scale clears the bias.
func (p *Pipeline) WriteRegister(addr, value byte) error {
	ra, err := p.registers()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ra.WriteRegister(addr, value); err != nil {
		return err
	}
	return p.rescale()
}

// rescale rebuilds the mapper and calibrator when the device scale moved.
// Callers hold p.mu.
func (p *Pipeline) rescale() error {
	device := p.device.Scale()
	if device == p.deviceScale {
		return nil
	}
	p.deviceScale = device

	scale := effectiveScale(device, p.opts.ScaleOverride)
	if scale == p.mapper.Scale {
		log.Warnf("pipeline: device range changed to %.1f LSB/g, %.1f LSB/(°/s) but the configured scale override is kept",
			device.AccelLSBPerG, device.GyroLSBPerDPS)
		return nil
	}

	mapper, err := imu.NewMapper(p.mapper.Accel, p.mapper.Gyro, scale)
	if err != nil {
		return fmt.Errorf("axis mapper: %w", err)
	}
	if scale.GyroLSBPerDPS != p.mapper.Scale.GyroLSBPerDPS {
		p.calib = calibration.New(p.device, scale.GyroLSBPerDPS, p.opts.Clock)
		log.Warn("pipeline: gyro range changed, bias cleared; recalibrate")
	}
	p.mapper = mapper
	log.Infof("pipeline: rescaled to %.1f LSB/g, %.1f LSB/(°/s)", scale.AccelLSBPerG, scale.GyroLSBPerDPS)
	return nil
}
