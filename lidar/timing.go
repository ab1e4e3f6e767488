package lidar

import "time"

// LatencyClass groups commands by how long the device needs to settle after them.
type LatencyClass int

const (
	// Fast commands only change a register value.
	Fast LatencyClass = iota
	// CrossChip commands make the controller coordinate with another on-board component.
	CrossChip
	// Flash commands write or reload the settings flash.
	Flash
)

func (c LatencyClass) String() string {
	switch c {
	case Fast:
		return "fast"
	case CrossChip:
		return "cross-chip"
	case Flash:
		return "flash"
	default:
		return "unknown"
	}
}

// CommandKind enumerates the commands the session issues.
type CommandKind int

const (
	CmdRead CommandKind = iota
	CmdSetAddress
	CmdSetMode
	CmdTrigger
	CmdEnable
	CmdSetFrameRate
	CmdSetLowPower
	CmdSave
	CmdSoftReset
	CmdHardReset
)

// CommandDescriptor ties a command to the register it targets, its payload and its
// latency class. Fixed commands always write Value; the others write the caller's value.
type CommandDescriptor struct {
	Register RegisterName
	Fixed    bool
	Value    byte
	Latency  LatencyClass
}

var commands = map[CommandKind]CommandDescriptor{
	CmdRead:         {Register: RegDist, Latency: Fast},
	CmdSetAddress:   {Register: RegI2CAddr, Latency: Fast},
	CmdSetMode:      {Register: RegMode, Latency: CrossChip},
	CmdTrigger:      {Register: RegTrigger, Fixed: true, Value: cmdTrigger, Latency: CrossChip},
	CmdEnable:       {Register: RegDisable, Latency: CrossChip},
	CmdSetFrameRate: {Register: RegFPS, Latency: CrossChip},
	CmdSetLowPower:  {Register: RegLowPower, Latency: CrossChip},
	CmdSave:         {Register: RegSave, Fixed: true, Value: cmdSave, Latency: Flash},
	CmdSoftReset:    {Register: RegSoftReset, Fixed: true, Value: cmdSoftReset, Latency: Flash},
	CmdHardReset:    {Register: RegHardReset, Fixed: true, Value: cmdHardReset, Latency: Flash},
}

// Encode returns the writes issuing the command. value is ignored for fixed commands.
func (d CommandDescriptor) Encode(value int) ([]WriteOp, error) {
	if d.Fixed {
		value = int(d.Value)
	}
	return EncodeWrite(d.Register, value)
}

// Default settle delays. They are a safety margin, not protocol constants.
const (
	DefaultFastDelay      = 1 * time.Millisecond
	DefaultCrossChipDelay = 5 * time.Millisecond
	DefaultFlashDelay     = 500 * time.Millisecond
)

// Timing holds the settle delay applied after each latency class.
type Timing struct {
	Fast      time.Duration `yaml:"fast"`
	CrossChip time.Duration `yaml:"cross_chip"`
	Flash     time.Duration `yaml:"flash"`
}

func DefaultTiming() Timing {
	return Timing{
		Fast:      DefaultFastDelay,
		CrossChip: DefaultCrossChipDelay,
		Flash:     DefaultFlashDelay,
	}
}

// ClassOf returns the latency class of a command. Unknown commands are treated as Flash.
func ClassOf(kind CommandKind) LatencyClass {
	d, ok := commands[kind]
	if !ok {
		return Flash
	}
	return d.Latency
}

// DelayFor returns the minimum wait after issuing kind before the bus may be used again.
func (t Timing) DelayFor(kind CommandKind) time.Duration {
	switch ClassOf(kind) {
	case Fast:
		return t.Fast
	case CrossChip:
		return t.CrossChip
	default:
		return t.Flash
	}
}
