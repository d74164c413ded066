package npu

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/timing/latency"
)

// Config selects and sizes a backend.
type Config struct {
	Dim     int                 `json:"dim"`
	MaxSeq  int                 `json:"max_seq"`
	Backend emu.BackendKind     `json:"backend"`
	Perf    *latency.PerfConfig `json:"perf"`
}

// DefaultConfig returns a 16-wide functional engine with a 256-position
// cache.
func DefaultConfig() *Config {
	return &Config{
		Dim:     emu.DefaultDim,
		MaxSeq:  emu.DefaultMaxSeq,
		Backend: emu.KindFunctional,
		Perf:    latency.DefaultPerfConfig(),
	}
}

// LoadConfig loads a Config from a JSON file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config: %w", err)
	}
	if config.Perf == nil {
		config.Perf = latency.DefaultPerfConfig()
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize runtime config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write runtime config file: %w", err)
	}

	return nil
}

// Validate checks the geometry, the backend name and the perf knobs.
func (c *Config) Validate() error {
	if c.Dim < 1 {
		return fmt.Errorf("dim must be >= 1")
	}
	if c.MaxSeq < 1 {
		return fmt.Errorf("max_seq must be >= 1")
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Perf != nil {
		if err := c.Perf.Validate(); err != nil {
			return fmt.Errorf("perf: %w", err)
		}
	}
	return nil
}

// ParseBackend maps a backend name to its kind. "rtl" is accepted as an
// alias of the hardware-proxy backend.
func ParseBackend(name string) (emu.BackendKind, error) {
	switch name {
	case "", string(emu.KindFunctional):
		return emu.KindFunctional, nil
	case string(emu.KindHardwareProxy), "rtl":
		return emu.KindHardwareProxy, nil
	default:
		return "", fmt.Errorf("unknown backend %q", name)
	}
}
