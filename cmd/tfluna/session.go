package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/adapter"
	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/i2c"
	"github.com/mklimuk/rangefinder/lidar"
	"github.com/mklimuk/rangefinder/snsctx"
)

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.Int("bus")
	}
	if c.IsSet("addr") {
		cfg.Address = c.Int("addr")
	}
	return cfg, cfg.Validate()
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// openBus opens the transport selected by cfg. The returned function releases it.
func openBus(cfg config.Config) (rangefinder.I2CBus, func() error, error) {
	switch cfg.Adapter {
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus.Close, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus)
		return bus, func() error {
			return multierr.Append(bus.Close(), npi.I2cBusAdaptor.Finalize())
		}, nil
	case config.AdapterRaspi:
		pi := raspi.NewAdaptor()
		if err := pi.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(pi, cfg.Bus)
		return bus, func() error {
			return multierr.Append(bus.Close(), pi.Finalize())
		}, nil
	case config.AdapterMCP2221:
		return adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.AdapterIndex)), func() error { return nil }, nil
	case config.AdapterSim:
		return lidar.NewSimulatedBus(byte(cfg.Address)), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown adapter %q", config.ErrInvalidConfig, cfg.Adapter)
}

// withSession opens the bus, initializes the sensor and runs fn.
func withSession(c *cli.Context, fn func(ctx context.Context, s *lidar.TFLuna) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Exit(console.CodeError, "configuration error: %s", console.Red(err))
	}
	bus, release, err := openBus(cfg)
	if err != nil {
		return console.Exit(console.CodeError, "adapter initialization error: %s", console.Red(err))
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("could not release bus", "error", err)
		}
	}()
	ctx := commandContext(c)
	s := lidar.NewTFLuna(bus, cfg.Options()...)
	if err := s.Begin(ctx); err != nil {
		return console.ExitErr(fmt.Sprintf("sensor at %#x not responding", cfg.Address), err)
	}
	slog.Debug("session ready", "adapter", cfg.Adapter, "addr", fmt.Sprintf("%#x", cfg.Address))
	return fn(ctx, s)
}
