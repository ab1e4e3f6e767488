package lidar

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// DefaultAddress is the factory I2C address of the TF-Luna.
	DefaultAddress byte = 0x10
	MinAddress     byte = 0x08
	MaxAddress     byte = 0x77
	// MinNewAddress is the lowest address the device accepts in its address register.
	MinNewAddress byte = 0x07

	MinFrameRate = 1
	MaxFrameRate = 250
)

// valueRange holds the inclusive range accepted by a writable register.
type valueRange struct {
	min, max int
}

var writeLimits = map[RegisterName]valueRange{
	RegI2CAddr:   {int(MinNewAddress), int(MaxAddress)},
	RegMode:      {0, 1},
	RegDisable:   {0, 1},
	RegFPS:       {MinFrameRate, MaxFrameRate},
	RegLowPower:  {0, 1},
	RegSave:      {int(cmdSave), int(cmdSave)},
	RegSoftReset: {int(cmdSoftReset), int(cmdSoftReset)},
	RegTrigger:   {int(cmdTrigger), int(cmdTrigger)},
	RegHardReset: {int(cmdHardReset), int(cmdHardReset)},
}

// WriteOp is a single register write: the register address followed by its payload.
type WriteOp struct {
	Reg  byte
	Data []byte
}

// Bytes returns the wire representation of the write.
func (op WriteOp) Bytes() []byte {
	return append([]byte{op.Reg}, op.Data...)
}

// RawFrame is the undecoded content of the measurement window.
type RawFrame struct {
	Dist uint16
	Flux uint16
	Temp uint16
}

// EncodeWrite validates value against the register limits and returns the ordered
// writes that store it. Multi-byte values are split little-endian, one byte per
// consecutive register address.
func EncodeWrite(name RegisterName, value int) ([]WriteOp, error) {
	entry, err := Entry(name)
	if err != nil {
		return nil, err
	}
	if entry.Access == ReadOnly {
		return nil, fmt.Errorf("%w: register %s is read-only", ErrInvalidParameter, name)
	}
	limits, ok := writeLimits[name]
	if !ok {
		return nil, fmt.Errorf("%w: register %s has no write encoding", ErrInvalidParameter, name)
	}
	if value < limits.min || value > limits.max {
		return nil, fmt.Errorf("%w: %s value %d outside [%d, %d]", ErrInvalidParameter, name, value, limits.min, limits.max)
	}
	ops := make([]WriteOp, 0, entry.Width)
	for i := 0; i < entry.Width; i++ {
		ops = append(ops, WriteOp{
			Reg:  entry.Addr + byte(i),
			Data: []byte{byte(value >> (8 * i))},
		})
	}
	return ops, nil
}

func EncodeTrigger() []WriteOp {
	return mustEncode(CmdTrigger)
}

func EncodeSoftReset() []WriteOp {
	return mustEncode(CmdSoftReset)
}

func EncodeHardReset() []WriteOp {
	return mustEncode(CmdHardReset)
}

func EncodeSaveSettings() []WriteOp {
	return mustEncode(CmdSave)
}

// mustEncode encodes a fixed command; its value always passes the register limits.
func mustEncode(kind CommandKind) []WriteOp {
	ops, err := commands[kind].Encode(0)
	if err != nil {
		panic(err)
	}
	return ops
}

// DecodeRead reconstructs a numeric register value from its little-endian bytes.
func DecodeRead(name RegisterName, raw []byte) (int, error) {
	entry, err := Entry(name)
	if err != nil {
		return 0, err
	}
	if len(raw) < entry.Width {
		return 0, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrShortRead, name, entry.Width, len(raw))
	}
	switch {
	case entry.Kind == Unsigned && entry.Width == 1:
		return int(raw[0]), nil
	case entry.Kind == Unsigned && entry.Width == 2:
		return int(binary.LittleEndian.Uint16(raw)), nil
	case entry.Kind == Signed && entry.Width == 1:
		return int(int8(raw[0])), nil
	case entry.Kind == Signed && entry.Width == 2:
		return int(int16(binary.LittleEndian.Uint16(raw))), nil
	}
	return 0, fmt.Errorf("%w: register %s is not numeric", ErrInvalidParameter, name)
}

// DecodeString decodes the fixed-length text registers: the ASCII product code
// and the three-byte firmware version.
func DecodeString(name RegisterName, raw []byte) (string, error) {
	entry, err := Entry(name)
	if err != nil {
		return "", err
	}
	if len(raw) < entry.Width {
		return "", fmt.Errorf("%w: %s expects %d bytes, got %d", ErrShortRead, name, entry.Width, len(raw))
	}
	switch entry.Kind {
	case ASCII:
		return strings.TrimFunc(string(raw[:entry.Width]), notPrintable), nil
	case Version:
		return fmt.Sprintf("%d.%d.%d", raw[2], raw[1], raw[0]), nil
	}
	return "", fmt.Errorf("%w: register %s is not textual", ErrInvalidParameter, name)
}

// DecodeFrame splits the six-byte measurement window into raw dist, flux and temp.
func DecodeFrame(raw []byte) (RawFrame, error) {
	if len(raw) < frameWidth {
		return RawFrame{}, fmt.Errorf("%w: frame expects %d bytes, got %d", ErrShortRead, frameWidth, len(raw))
	}
	return RawFrame{
		Dist: binary.LittleEndian.Uint16(raw[0:2]),
		Flux: binary.LittleEndian.Uint16(raw[2:4]),
		Temp: binary.LittleEndian.Uint16(raw[4:6]),
	}, nil
}

func notPrintable(r rune) bool {
	return r < 0x20 || r > 0x7E
}
