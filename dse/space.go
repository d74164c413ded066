// Package dse sweeps the hardware-proxy cycle model over a grid of
// accelerator configurations and ranks them by throughput per area.
package dse

import (
	"fmt"
	"runtime"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/timing/latency"
)

// Space is the candidate grid. Every combination is one trial.
type Space struct {
	KTiles    []int `json:"k_tiles"`
	PEMacs    []int `json:"pe_macs"`
	Overheads []int `json:"overheads"`
}

// DefaultSpace returns the default 27-point grid.
func DefaultSpace() Space {
	return Space{
		KTiles:    []int{4, 8, 16},
		PEMacs:    []int{64, 128, 256},
		Overheads: []int{8, 12, 16},
	}
}

// Size returns the number of trials in the cross product.
func (s Space) Size() int {
	return len(s.KTiles) * len(s.PEMacs) * len(s.Overheads)
}

// Validate checks that every axis is non-empty.
func (s Space) Validate() error {
	if len(s.KTiles) == 0 {
		return fmt.Errorf("k_tiles must not be empty")
	}
	if len(s.PEMacs) == 0 {
		return fmt.Errorf("pe_macs must not be empty")
	}
	if len(s.Overheads) == 0 {
		return fmt.Errorf("overheads must not be empty")
	}
	return nil
}

// Points enumerates the grid with k_tile outermost and overhead innermost.
func (s Space) Points() []latency.PerfConfig {
	points := make([]latency.PerfConfig, 0, s.Size())
	for _, k := range s.KTiles {
		for _, pe := range s.PEMacs {
			for _, oh := range s.Overheads {
				points = append(points, latency.PerfConfig{
					KTile:               k,
					PEMacPerCycle:       pe,
					TokenOverheadCycles: oh,
					CalibScale:          1,
				})
			}
		}
	}
	return points
}

// Options holds the session shape and sweep settings shared by all trials.
type Options struct {
	Dim       int      `json:"dim"`
	MaxSeq    int      `json:"max_seq"`
	PromptLen int      `json:"prompt_len"`
	GenLen    int      `json:"gen_len"`
	Clock     sim.Freq `json:"clock_hz"`
	Seed      int64    `json:"seed"`

	// Parallelism bounds concurrent trials. Zero means GOMAXPROCS.
	Parallelism int `json:"parallelism"`

	// CalibScale and CalibBias are applied to every trial.
	CalibScale float64 `json:"cycle_calib_scale"`
	CalibBias  float64 `json:"cycle_calib_bias"`
}

// DefaultOptions returns the default sweep settings.
func DefaultOptions() Options {
	return Options{
		Dim:         emu.DefaultDim,
		MaxSeq:      emu.DefaultMaxSeq,
		PromptLen:   8,
		GenLen:      8,
		Clock:       200 * sim.MHz,
		Seed:        11,
		Parallelism: runtime.GOMAXPROCS(0),
		CalibScale:  1,
		CalibBias:   0,
	}
}
