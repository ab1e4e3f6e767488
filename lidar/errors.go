package lidar

import "errors"

var (
	// ErrNoResponse is returned when the sensor does not acknowledge a bus transaction.
	ErrNoResponse = errors.New("tfluna: no response from device")
	// ErrInvalidParameter is returned before any bus traffic when a value is out of range.
	ErrInvalidParameter = errors.New("tfluna: invalid parameter")
	// ErrCommFail is returned when a measurement transaction fails.
	ErrCommFail = errors.New("tfluna: communication failure")
	// ErrShortRead is returned when a register read yields fewer bytes than the register width.
	ErrShortRead       = errors.New("tfluna: short read")
	ErrUnknownRegister = errors.New("tfluna: unknown register")
	ErrNotInitialized  = errors.New("tfluna: device not initialized")
	// ErrNotTriggered is returned by Read when no trigger is pending.
	ErrNotTriggered = errors.New("tfluna: no pending trigger")
	// ErrModeNotTrigger is returned when sampling is requested while the device runs in continuous mode.
	ErrModeNotTrigger = errors.New("tfluna: device is not in trigger mode")
)
