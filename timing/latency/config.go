package latency

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// PerfConfig holds the knobs of the per-token cycle model.
type PerfConfig struct {
	// KTile is the reduction-tiling width of the projection GEMMs. It is the
	// reset value of CFG_K_TILE. Default: 16.
	KTile int `json:"cfg_k_tile"`

	// PEMacPerCycle is the arithmetic throughput of the PE array.
	// Default: 256 MACs per cycle.
	PEMacPerCycle int `json:"pe_mac_per_cycle"`

	// TokenOverheadCycles is a fixed per-token cost. Default: 12 cycles.
	TokenOverheadCycles int `json:"token_overhead_cycles"`

	// CalibScale multiplies the raw estimate. Default: 1.0.
	CalibScale float64 `json:"cycle_calib_scale"`

	// CalibBias is added after scaling. Default: 0.0.
	CalibBias float64 `json:"cycle_calib_bias"`
}

// DefaultPerfConfig returns the uncalibrated default configuration.
func DefaultPerfConfig() *PerfConfig {
	return &PerfConfig{
		KTile:               16,
		PEMacPerCycle:       256,
		TokenOverheadCycles: 12,
		CalibScale:          1.0,
		CalibBias:           0.0,
	}
}

// LoadConfig loads a PerfConfig from a JSON file. Fields absent from the file
// keep their defaults.
func LoadConfig(path string) (*PerfConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read perf config file: %w", err)
	}

	config := DefaultPerfConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse perf config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a PerfConfig to a JSON file.
func (c *PerfConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize perf config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write perf config file: %w", err)
	}

	return nil
}

// Validate checks that the integer knobs are positive and the calibration
// pair is finite.
func (c *PerfConfig) Validate() error {
	if c.KTile < 1 {
		return fmt.Errorf("cfg_k_tile must be >= 1")
	}
	if c.PEMacPerCycle < 1 {
		return fmt.Errorf("pe_mac_per_cycle must be >= 1")
	}
	if c.TokenOverheadCycles < 1 {
		return fmt.Errorf("token_overhead_cycles must be >= 1")
	}
	if math.IsNaN(c.CalibScale) || math.IsInf(c.CalibScale, 0) {
		return fmt.Errorf("cycle_calib_scale must be finite")
	}
	if math.IsNaN(c.CalibBias) || math.IsInf(c.CalibBias, 0) {
		return fmt.Errorf("cycle_calib_bias must be finite")
	}
	return nil
}

// Normalize coerces the integer knobs to at least 1.
func (c *PerfConfig) Normalize() *PerfConfig {
	c.KTile = max(1, c.KTile)
	c.PEMacPerCycle = max(1, c.PEMacPerCycle)
	c.TokenOverheadCycles = max(1, c.TokenOverheadCycles)
	return c
}

// Clone returns a copy of the PerfConfig.
func (c *PerfConfig) Clone() *PerfConfig {
	clone := *c
	return &clone
}

// WithCalibration returns a copy with the given calibration pair.
func (c *PerfConfig) WithCalibration(scale, bias float64) *PerfConfig {
	clone := c.Clone()
	clone.CalibScale = scale
	clone.CalibBias = bias
	return clone
}
