package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/rangefinder"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ rangefinder.I2CBus = &GenericBus{}

// GenericBus is a Linux I2C transport backed by periph.io.
type GenericBus struct {
	bus i2c.BusCloser
}

// NewGenericBus initializes the host drivers and opens dev. An empty dev opens the
// first bus available.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	return NewGenericBusFrom(bus), nil
}

// NewGenericBusFrom wraps an already opened bus.
func NewGenericBusFrom(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{
		bus: bus,
	}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %#x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %#x: %w", address, err)
	}
	return nil
}

// SetSpeed changes the bus clock. The TF-Luna supports up to 400kHz.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	if err := b.bus.SetSpeed(f); err != nil {
		return fmt.Errorf("could not set i2c bus speed to %s: %w", f, err)
	}
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
