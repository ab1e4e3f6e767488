// Package config loads the sensor and transport configuration used by the tfluna CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/lidar"
)

// Supported transports.
const (
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterRaspi   = "raspi"
	AdapterMCP2221 = "mcp2221"
	AdapterSim     = "sim"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Adapter selects the transport, one of generic, nanopi, raspi, mcp2221 or sim.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name for the generic adapter (e.g. "/dev/i2c-1" or "1").
	Device string `yaml:"device"`
	// Bus is the bus number for gobot adaptors.
	Bus int `yaml:"bus"`
	// AdapterIndex selects the MCP2221 when several are plugged in.
	AdapterIndex int              `yaml:"adapter_index"`
	Address      int              `yaml:"address"`
	Timing       lidar.Timing     `yaml:"timing"`
	Thresholds   lidar.Thresholds `yaml:"thresholds"`
}

func Default() Config {
	return Config{
		Adapter:      AdapterGeneric,
		Bus:          1,
		AdapterIndex: -1,
		Address:      int(lidar.DefaultAddress),
		Timing:       lidar.DefaultTiming(),
		Thresholds:   lidar.DefaultThresholds(),
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("could not parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads the configuration file at path. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterGeneric, AdapterNanoPi, AdapterRaspi, AdapterMCP2221, AdapterSim:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalidConfig, c.Adapter)
	}
	if c.Address < int(lidar.MinAddress) || c.Address > int(lidar.MaxAddress) {
		return fmt.Errorf("%w: address %#x outside [%#x, %#x]", ErrInvalidConfig, c.Address, lidar.MinAddress, lidar.MaxAddress)
	}
	if c.Bus < 0 {
		return fmt.Errorf("%w: bus %d", ErrInvalidConfig, c.Bus)
	}
	if c.Timing.Fast < 0 || c.Timing.CrossChip < 0 || c.Timing.Flash < 0 {
		return fmt.Errorf("%w: negative settle delay", ErrInvalidConfig)
	}
	if c.Thresholds.TempUnitsPerDegree <= 0 {
		return fmt.Errorf("%w: temp_units_per_degree must be positive", ErrInvalidConfig)
	}
	return nil
}

// Options returns the driver options matching the configuration.
func (c Config) Options() []lidar.TFLunaOpt {
	return []lidar.TFLunaOpt{
		lidar.WithAddress(byte(c.Address)),
		lidar.WithTiming(c.Timing),
		lidar.WithThresholds(c.Thresholds),
	}
}
