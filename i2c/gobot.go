package i2c

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/rangefinder"
)

var _ rangefinder.I2CBus = &GobotBus{}

// GobotBus is a transport over a gobot board adaptor (NanoPi, Raspberry Pi).
// Gobot hands out one connection per device address; connections are opened on
// first use and closed together with the bus.
type GobotBus struct {
	mx        sync.Mutex
	connector gobot.Connector
	busNr     int
	conns     map[byte]gobot.Connection
}

func NewGobotBus(connector gobot.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gobot.Connection),
	}
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %d addr %#x: %w", b.busNr, address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from addr %#x: %d of %d: %w", address, n, len(buffer), io.ErrUnexpectedEOF)
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %d addr %#x: %w", b.busNr, address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to addr %#x: %d of %d: %w", address, n, len(buffer), io.ErrShortWrite)
	}
	return nil
}

// Close closes every connection opened so far.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var err error
	for addr, conn := range b.conns {
		if cerr := conn.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close addr %#x: %w", addr, cerr))
		}
		delete(b.conns, addr)
	}
	return err
}

func (b *GobotBus) connection(address byte) (gobot.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %d addr %#x: %w", b.busNr, address, err)
	}
	b.conns[address] = conn
	return conn, nil
}
