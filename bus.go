package rangefinder

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrNoAck is returned by transports when the addressed device did not acknowledge.
var ErrNoAck = fmt.Errorf("device did not acknowledge")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
}

// I2CBus is the transport consumed by device drivers. A write selects a register
// with its first byte; a read returns len(buffer) bytes from the selected register.
// A failed transaction must be reported as an error, never as zeroed bytes.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
