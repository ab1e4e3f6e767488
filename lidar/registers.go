package lidar

import (
	"fmt"
	"sort"
)

// RegisterName identifies a logical register of the TF-Luna register map.
type RegisterName string

const (
	RegDist      RegisterName = "dist"
	RegFlux      RegisterName = "flux"
	RegTemp      RegisterName = "temp"
	RegTick      RegisterName = "tick"
	RegError     RegisterName = "error"
	RegVersion   RegisterName = "version"
	RegProdCode  RegisterName = "prod_code"
	RegSave      RegisterName = "save"
	RegSoftReset RegisterName = "soft_reset"
	RegI2CAddr   RegisterName = "i2c_addr"
	RegMode      RegisterName = "mode"
	RegTrigger   RegisterName = "trigger"
	RegDisable   RegisterName = "disable"
	RegFPS       RegisterName = "fps"
	RegLowPower  RegisterName = "low_power"
	RegHardReset RegisterName = "hard_reset"
)

// Access describes how the host may use a register.
type Access int

const (
	ReadOnly Access = iota
	// WriteTrigger registers start an action when written and hold no readable state.
	WriteTrigger
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case WriteTrigger:
		return "WO-trigger"
	case ReadWrite:
		return "RW"
	default:
		return "unknown"
	}
}

// Kind tells the codec how to interpret the register bytes.
type Kind int

const (
	Unsigned Kind = iota
	Signed
	// ASCII blocks are fixed-length, padded with non-printable bytes.
	ASCII
	// Version holds revision, minor and major release bytes in that order.
	Version
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "uint"
	case Signed:
		return "int"
	case ASCII:
		return "ascii"
	case Version:
		return "version"
	default:
		return "unknown"
	}
}

// RegisterEntry describes one register (or register block) of the device.
type RegisterEntry struct {
	Name   RegisterName
	Addr   byte
	Width  int
	Access Access
	Kind   Kind
}

// Measurement window: dist, flux and temp are stored as little-endian pairs
// in the first six bytes of the register space.
const (
	frameAddr  byte = 0x00
	frameWidth      = 6
)

// Command values the device expects in its write-trigger registers.
const (
	cmdSave      byte = 0x01
	cmdSoftReset byte = 0x02
	cmdTrigger   byte = 0x01
	cmdHardReset byte = 0x01
)

var registerMap = map[RegisterName]RegisterEntry{
	RegDist:      {Name: RegDist, Addr: 0x00, Width: 2, Access: ReadOnly, Kind: Unsigned},
	RegFlux:      {Name: RegFlux, Addr: 0x02, Width: 2, Access: ReadOnly, Kind: Unsigned},
	RegTemp:      {Name: RegTemp, Addr: 0x04, Width: 2, Access: ReadOnly, Kind: Signed},
	RegTick:      {Name: RegTick, Addr: 0x06, Width: 2, Access: ReadOnly, Kind: Unsigned},
	RegError:     {Name: RegError, Addr: 0x08, Width: 2, Access: ReadOnly, Kind: Unsigned},
	RegVersion:   {Name: RegVersion, Addr: 0x0A, Width: 3, Access: ReadOnly, Kind: Version},
	RegProdCode:  {Name: RegProdCode, Addr: 0x10, Width: 14, Access: ReadOnly, Kind: ASCII},
	RegSave:      {Name: RegSave, Addr: 0x20, Width: 1, Access: WriteTrigger, Kind: Unsigned},
	RegSoftReset: {Name: RegSoftReset, Addr: 0x21, Width: 1, Access: WriteTrigger, Kind: Unsigned},
	RegI2CAddr:   {Name: RegI2CAddr, Addr: 0x22, Width: 1, Access: ReadWrite, Kind: Unsigned},
	RegMode:      {Name: RegMode, Addr: 0x23, Width: 1, Access: ReadWrite, Kind: Unsigned},
	RegTrigger:   {Name: RegTrigger, Addr: 0x24, Width: 1, Access: WriteTrigger, Kind: Unsigned},
	RegDisable:   {Name: RegDisable, Addr: 0x25, Width: 1, Access: ReadWrite, Kind: Unsigned},
	RegFPS:       {Name: RegFPS, Addr: 0x26, Width: 2, Access: ReadWrite, Kind: Unsigned},
	RegLowPower:  {Name: RegLowPower, Addr: 0x28, Width: 1, Access: ReadWrite, Kind: Unsigned},
	RegHardReset: {Name: RegHardReset, Addr: 0x29, Width: 1, Access: WriteTrigger, Kind: Unsigned},
}

// Entry returns the register description for name.
func Entry(name RegisterName) (RegisterEntry, error) {
	e, ok := registerMap[name]
	if !ok {
		return RegisterEntry{}, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	return e, nil
}

// Registers returns all register entries ordered by address.
func Registers() []RegisterEntry {
	entries := make([]RegisterEntry, 0, len(registerMap))
	for _, e := range registerMap {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Addr < entries[j].Addr })
	return entries
}
