package lidar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/snsctx"
)

// OperatingMode is the sampling mode of the device.
type OperatingMode int

const (
	ModeUnset OperatingMode = iota
	ModeContinuous
	ModeTrigger
)

func (m OperatingMode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeTrigger:
		return "trigger"
	default:
		return "unset"
	}
}

// register values of the mode register
const (
	modeValueContinuous = 0
	modeValueTrigger    = 1
)

func (m OperatingMode) registerValue() (int, bool) {
	switch m {
	case ModeContinuous:
		return modeValueContinuous, true
	case ModeTrigger:
		return modeValueTrigger, true
	default:
		return 0, false
	}
}

type sessionState int

const (
	stateUninitialized sessionState = iota
	// stateIdle: initialized, no sample pending.
	stateIdle
	// stateTriggered: a trigger was acknowledged and its sample has not been read yet.
	stateTriggered
)

type TFLunaOpts struct {
	Address    byte
	Timing     Timing
	Thresholds Thresholds
	Clock      clock.Clock
}

type TFLunaOpt func(*TFLunaOpts)

func WithAddress(address byte) TFLunaOpt {
	return func(o *TFLunaOpts) {
		o.Address = address
	}
}

func WithTiming(timing Timing) TFLunaOpt {
	return func(o *TFLunaOpts) {
		o.Timing = timing
	}
}

func WithThresholds(thresholds Thresholds) TFLunaOpt {
	return func(o *TFLunaOpts) {
		o.Thresholds = thresholds
	}
}

// WithClock replaces the clock used for settle delays.
func WithClock(clk clock.Clock) TFLunaOpt {
	return func(o *TFLunaOpts) {
		o.Clock = clk
	}
}

// TFLuna represents a Benewake TF-Luna LiDAR connected over I2C.
// Typical usage:
//
//	s := NewTFLuna(bus, WithAddress(0x10))
//	if err := s.Begin(ctx); err != nil { ... }
//	m, err := s.GetData(ctx)
//
// A TFLuna is not safe for concurrent use. Sessions sharing a physical bus must be
// serialized by the caller.
type TFLuna struct {
	config    TFLunaOpts
	transport rangefinder.I2CBus

	addr        byte
	pendingAddr byte
	hasPending  bool
	mode        OperatingMode
	pendingMode OperatingMode
	state       sessionState

	last       Measurement
	lastStatus StatusCode
	lastErr    error
}

func NewTFLuna(transport rangefinder.I2CBus, opts ...TFLunaOpt) *TFLuna {
	config := TFLunaOpts{
		Address:    DefaultAddress,
		Timing:     DefaultTiming(),
		Thresholds: DefaultThresholds(),
		Clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &TFLuna{
		config:     config,
		transport:  transport,
		addr:       config.Address,
		lastStatus: StatusNotReady,
	}
}

// Begin verifies communication with an identity read and switches the device to
// trigger mode. On failure the mode stays unset.
func (s *TFLuna) Begin(ctx context.Context) error {
	s.state = stateUninitialized
	s.mode = ModeUnset
	if s.addr < MinAddress || s.addr > MaxAddress {
		return s.fail(StatusInvalidParameter, fmt.Errorf("%w: address %#x outside [%#x, %#x]", ErrInvalidParameter, s.addr, MinAddress, MaxAddress))
	}
	if _, err := s.readRegister(ctx, RegVersion); err != nil {
		return s.fail(StatusNoResponse, fmt.Errorf("%w: identity read at %#x: %w", ErrNoResponse, s.addr, err))
	}
	if err := s.writeCommand(ctx, CmdSetMode, modeValueTrigger); err != nil {
		return s.commandFailed("set trigger mode", err)
	}
	s.mode = ModeTrigger
	s.state = stateIdle
	slog.DebugContext(ctx, "tfluna initialized", "addr", slog.IntValue(int(s.addr)))
	return s.succeed()
}

// GetData triggers a fresh sample, waits for it and returns the classified
// measurement. Signal verdicts (weak, strong, flood) are reported through
// Measurement.Status with a nil error.
func (s *TFLuna) GetData(ctx context.Context) (Measurement, error) {
	if err := s.requireTriggerMode(); err != nil {
		return s.last, err
	}
	if err := s.trigger(ctx); err != nil {
		s.last = s.config.Thresholds.Classify(RawFrame{}, err, s.last)
		return s.last, s.fail(StatusCommFail, fmt.Errorf("%w: trigger: %w", ErrCommFail, err))
	}
	return s.Read(ctx)
}

// SetTrigger fires a single sample without reading it. The sample can be
// consumed with Read.
func (s *TFLuna) SetTrigger(ctx context.Context) error {
	if err := s.requireTriggerMode(); err != nil {
		return err
	}
	if err := s.trigger(ctx); err != nil {
		return s.fail(StatusNoResponse, fmt.Errorf("%w: trigger: %w", ErrNoResponse, err))
	}
	return s.succeed()
}

// Read consumes the sample of the pending trigger. Each trigger can be read once;
// reading without a pending trigger fails with ErrNotTriggered.
func (s *TFLuna) Read(ctx context.Context) (Measurement, error) {
	if err := s.requireInitialized(); err != nil {
		return s.last, err
	}
	if s.state != stateTriggered {
		return s.last, s.fail(StatusNotReady, ErrNotTriggered)
	}
	s.state = stateIdle
	raw, err := s.readBlock(ctx, frameAddr, frameWidth)
	var frame RawFrame
	if err == nil {
		frame, err = DecodeFrame(raw)
	}
	s.last = s.config.Thresholds.Classify(frame, err, s.last)
	if err != nil {
		return s.last, s.fail(StatusCommFail, fmt.Errorf("%w: read frame: %w", ErrCommFail, err))
	}
	s.lastStatus = s.last.Status
	s.lastErr = nil
	if s.last.Status != StatusReady {
		slog.DebugContext(ctx, "tfluna sample rejected", "status", s.last.Status.String(), "flux", frame.Flux, "dist", frame.Dist)
	}
	return s.last, nil
}

// SetI2CAddr stores a new device address. It takes effect after an acknowledged
// SoftReset; the settings must be saved first for it to survive a power cycle.
func (s *TFLuna) SetI2CAddr(ctx context.Context, address byte) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeCommand(ctx, CmdSetAddress, int(address)); err != nil {
		return s.commandFailed("set address", err)
	}
	s.pendingAddr = address
	s.hasPending = true
	return s.succeed()
}

// SoftReset reboots the device. Pending address and mode changes are applied
// once the reset is acknowledged.
//
// The device reloads its operating mode from flash on reboot, so a mode set
// without SaveSettings would be lost. The cached mode is written again after
// the reset to keep the device and the driver in agreement.
func (s *TFLuna) SoftReset(ctx context.Context) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeOps(ctx, CmdSoftReset, EncodeSoftReset()); err != nil {
		return s.commandFailed("soft reset", err)
	}
	if s.hasPending {
		slog.DebugContext(ctx, "tfluna address changed", "from", slog.IntValue(int(s.addr)), "to", slog.IntValue(int(s.pendingAddr)))
		s.addr = s.pendingAddr
		s.hasPending = false
	}
	if s.pendingMode != ModeUnset {
		s.mode = s.pendingMode
		s.pendingMode = ModeUnset
	}
	s.state = stateIdle
	if value, ok := s.mode.registerValue(); ok {
		if err := s.writeCommand(ctx, CmdSetMode, value); err != nil {
			return s.commandFailed("restore mode", err)
		}
	}
	return s.succeed()
}

// HardReset restores the factory settings. The factory address and continuous
// mode are applied with the next SoftReset.
func (s *TFLuna) HardReset(ctx context.Context) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeOps(ctx, CmdHardReset, EncodeHardReset()); err != nil {
		return s.commandFailed("hard reset", err)
	}
	s.pendingAddr = DefaultAddress
	s.hasPending = true
	s.pendingMode = ModeContinuous
	s.state = stateIdle
	return s.succeed()
}

// SaveSettings persists the current configuration to the device flash.
func (s *TFLuna) SaveSettings(ctx context.Context) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeOps(ctx, CmdSave, EncodeSaveSettings()); err != nil {
		return s.commandFailed("save settings", err)
	}
	return s.succeed()
}

// SetEnable turns the light source on.
func (s *TFLuna) SetEnable(ctx context.Context) error {
	return s.setFlag(ctx, CmdEnable, "enable", 0)
}

// SetDisable turns the light source off.
func (s *TFLuna) SetDisable(ctx context.Context) error {
	return s.setFlag(ctx, CmdEnable, "disable", 1)
}

// SetLowPower switches between normal and low power operation.
func (s *TFLuna) SetLowPower(ctx context.Context, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return s.setFlag(ctx, CmdSetLowPower, "set low power", value)
}

func (s *TFLuna) SetModeCont(ctx context.Context) error {
	return s.setMode(ctx, ModeContinuous)
}

func (s *TFLuna) SetModeTrig(ctx context.Context) error {
	return s.setMode(ctx, ModeTrigger)
}

// Mode returns the cached operating mode.
func (s *TFLuna) Mode() OperatingMode {
	return s.mode
}

// ReadMode reads the mode register and refreshes the cached mode.
func (s *TFLuna) ReadMode(ctx context.Context) (OperatingMode, error) {
	v, err := s.readValue(ctx, RegMode, "read mode")
	if err != nil {
		return s.mode, err
	}
	s.mode = ModeTrigger
	if v == modeValueContinuous {
		s.mode = ModeContinuous
		s.state = stateIdle
	}
	return s.mode, nil
}

// SetFrameRate sets the sampling frequency in frames per second.
func (s *TFLuna) SetFrameRate(ctx context.Context, fps uint16) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeCommand(ctx, CmdSetFrameRate, int(fps)); err != nil {
		return s.commandFailed("set frame rate", err)
	}
	return s.succeed()
}

func (s *TFLuna) GetFrameRate(ctx context.Context) (uint16, error) {
	v, err := s.readValue(ctx, RegFPS, "get frame rate")
	return uint16(v), err
}

// GetTime returns the device clock in milliseconds since the last reset.
func (s *TFLuna) GetTime(ctx context.Context) (uint16, error) {
	v, err := s.readValue(ctx, RegTick, "get time")
	return uint16(v), err
}

// GetErrorCode returns the content of the device error register.
func (s *TFLuna) GetErrorCode(ctx context.Context) (uint16, error) {
	v, err := s.readValue(ctx, RegError, "get error code")
	return uint16(v), err
}

// GetProdCode returns the 14 character production code (serial number).
func (s *TFLuna) GetProdCode(ctx context.Context) (string, error) {
	return s.readString(ctx, RegProdCode, "get production code")
}

// GetFirmwareVersion returns the firmware version as major.minor.revision.
func (s *TFLuna) GetFirmwareVersion(ctx context.Context) (string, error) {
	return s.readString(ctx, RegVersion, "get firmware version")
}

// ReadRaw returns the undecoded bytes of a readable register.
func (s *TFLuna) ReadRaw(ctx context.Context, name RegisterName) ([]byte, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	entry, err := Entry(name)
	if err != nil {
		return nil, s.commandFailed("read raw", err)
	}
	if entry.Access == WriteTrigger {
		return nil, s.commandFailed("read raw", fmt.Errorf("%w: register %s is write-only", ErrInvalidParameter, name))
	}
	raw, err := s.readBlock(ctx, entry.Addr, entry.Width)
	if err != nil {
		return nil, s.commandFailed("read raw", err)
	}
	s.succeed()
	return raw, nil
}

// Address returns the address the session currently talks to.
func (s *TFLuna) Address() byte {
	return s.addr
}

// PendingAddress returns the address that will be used after the next SoftReset.
func (s *TFLuna) PendingAddress() (byte, bool) {
	return s.pendingAddr, s.hasPending
}

// Last returns the last measurement.
func (s *TFLuna) Last() Measurement {
	return s.last
}

// LastStatus returns the status of the last operation. Its String method gives a
// human readable description.
func (s *TFLuna) LastStatus() StatusCode {
	return s.lastStatus
}

// LastError returns the error of the last operation, nil when it succeeded.
func (s *TFLuna) LastError() error {
	return s.lastErr
}

func (s *TFLuna) setMode(ctx context.Context, mode OperatingMode) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	value, _ := mode.registerValue()
	if err := s.writeCommand(ctx, CmdSetMode, value); err != nil {
		return s.commandFailed("set mode", err)
	}
	s.mode = mode
	s.state = stateIdle
	return s.succeed()
}

func (s *TFLuna) setFlag(ctx context.Context, kind CommandKind, op string, value int) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.writeCommand(ctx, kind, value); err != nil {
		return s.commandFailed(op, err)
	}
	return s.succeed()
}

func (s *TFLuna) readValue(ctx context.Context, name RegisterName, op string) (int, error) {
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}
	raw, err := s.readRegister(ctx, name)
	if err != nil {
		return 0, s.commandFailed(op, err)
	}
	v, err := DecodeRead(name, raw)
	if err != nil {
		return 0, s.commandFailed(op, err)
	}
	s.succeed()
	return v, nil
}

func (s *TFLuna) readString(ctx context.Context, name RegisterName, op string) (string, error) {
	if err := s.requireInitialized(); err != nil {
		return "", err
	}
	raw, err := s.readRegister(ctx, name)
	if err != nil {
		return "", s.commandFailed(op, err)
	}
	v, err := DecodeString(name, raw)
	if err != nil {
		return "", s.commandFailed(op, err)
	}
	s.succeed()
	return v, nil
}

func (s *TFLuna) trigger(ctx context.Context) error {
	s.state = stateIdle
	if err := s.writeOps(ctx, CmdTrigger, EncodeTrigger()); err != nil {
		return err
	}
	s.state = stateTriggered
	return nil
}

// writeCommand encodes value for the register targeted by kind and writes it.
// Encoding errors are returned before any bus traffic.
func (s *TFLuna) writeCommand(ctx context.Context, kind CommandKind, value int) error {
	ops, err := commands[kind].Encode(value)
	if err != nil {
		return err
	}
	return s.writeOps(ctx, kind, ops)
}

// writeOps issues the writes in order and waits the settle delay of kind.
// A failed write skips the remaining ones.
func (s *TFLuna) writeOps(ctx context.Context, kind CommandKind, ops []WriteOp) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := op.Bytes()
		snsctx.LogFrame(ctx, "write", s.addr, frame)
		if err := s.transport.WriteToAddr(ctx, s.addr, frame); err != nil {
			return fmt.Errorf("write register %#x: %w", op.Reg, err)
		}
	}
	s.wait(s.config.Timing.DelayFor(kind))
	return nil
}

func (s *TFLuna) readRegister(ctx context.Context, name RegisterName) ([]byte, error) {
	entry, err := Entry(name)
	if err != nil {
		return nil, err
	}
	return s.readBlock(ctx, entry.Addr, entry.Width)
}

// readBlock selects reg and reads n consecutive bytes.
func (s *TFLuna) readBlock(ctx context.Context, reg byte, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snsctx.LogFrame(ctx, "write", s.addr, []byte{reg})
	if err := s.transport.WriteToAddr(ctx, s.addr, []byte{reg}); err != nil {
		return nil, fmt.Errorf("select register %#x: %w", reg, err)
	}
	s.wait(s.config.Timing.DelayFor(CmdRead))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := s.transport.ReadFromAddr(ctx, s.addr, buf); err != nil {
		return nil, fmt.Errorf("read register %#x: %w", reg, err)
	}
	snsctx.LogFrame(ctx, "read", s.addr, buf)
	return buf, nil
}

func (s *TFLuna) wait(d time.Duration) {
	if d > 0 {
		s.config.Clock.Sleep(d)
	}
}

func (s *TFLuna) requireInitialized() error {
	if s.state == stateUninitialized {
		return s.fail(StatusNotReady, ErrNotInitialized)
	}
	return nil
}

func (s *TFLuna) requireTriggerMode() error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if s.mode != ModeTrigger {
		return s.fail(StatusNotReady, ErrModeNotTrigger)
	}
	return nil
}

// commandFailed maps a command error to its status: rejected parameters keep
// their identity, anything else is a bus failure.
func (s *TFLuna) commandFailed(op string, err error) error {
	if errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrUnknownRegister) {
		return s.fail(StatusInvalidParameter, fmt.Errorf("tfluna: %s: %w", op, err))
	}
	if errors.Is(err, ErrShortRead) {
		return s.fail(StatusCommFail, fmt.Errorf("%w: %s: %w", ErrCommFail, op, err))
	}
	return s.fail(StatusNoResponse, fmt.Errorf("%w: %s: %w", ErrNoResponse, op, err))
}

func (s *TFLuna) fail(status StatusCode, err error) error {
	s.lastStatus = status
	s.lastErr = err
	return err
}

func (s *TFLuna) succeed() error {
	s.lastStatus = StatusReady
	s.lastErr = nil
	return nil
}
