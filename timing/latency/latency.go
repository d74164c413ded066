// Package latency provides the analytic per-token cycle model of the
// hardware-proxy backend.
//
// For one decoded token with T cached positions (including its own), model
// dimension D and live tiling width k:
//
//	k_pass     = ceil(D / k)
//	mac_count  = 3·D·D·k_pass + 2·T·D
//	mac_cycles = ceil(mac_count / pe_mac_per_cycle)
//	stall_in   = floor(T/32) + max(0, 8 - min(k, 8))
//	stall_out  = 1 if T > 0 and T % 64 == 0
//	raw        = token_overhead + mac_cycles + stall_in + stall_out
//	total      = max(1, round(raw·scale + bias))
//
// The estimate only feeds the performance counters. It never changes the
// decoded values.
package latency

import "math"

const (
	// StallInPeriod is the sequence length per extra input stall cycle.
	StallInPeriod = 32
	// NarrowTileThreshold is the tile width below which input stalls grow.
	NarrowTileThreshold = 8
	// DrainPeriod is the token interval of the output-buffer drain.
	DrainPeriod = 64
)

// TokenCost is the estimate for one token.
type TokenCost struct {
	// Total is the calibrated cycle count, at least 1.
	Total int
	// Raw is the uncalibrated cycle count.
	Raw       int
	MACCount  int
	MACCycles int
	StallIn   int
	StallOut  int
}

// Estimator evaluates the cycle model for one model dimension.
type Estimator struct {
	dim    int
	config *PerfConfig
}

// NewEstimator creates an estimator. The config is cloned and normalized.
func NewEstimator(dim int, config *PerfConfig) *Estimator {
	if config == nil {
		config = DefaultPerfConfig()
	}
	return &Estimator{
		dim:    dim,
		config: config.Clone().Normalize(),
	}
}

// Config returns the estimator's configuration.
func (e *Estimator) Config() *PerfConfig {
	return e.config
}

// Dim returns the model dimension.
func (e *Estimator) Dim() int {
	return e.dim
}

// KPass returns ceil(D/kTile) with kTile coerced to at least 1.
func (e *Estimator) KPass(kTile int) int {
	kTile = max(1, kTile)
	return (e.dim + kTile - 1) / kTile
}

// Estimate returns the cost of one token with seqLen cached positions under
// tiling width kTile.
func (e *Estimator) Estimate(seqLen, kTile int) TokenCost {
	kTile = max(1, kTile)
	d := e.dim
	c := e.config

	macCount := 3*d*d*e.KPass(kTile) + 2*seqLen*d
	macCycles := (macCount + c.PEMacPerCycle - 1) / c.PEMacPerCycle

	stallIn := seqLen/StallInPeriod + max(0, NarrowTileThreshold-min(kTile, NarrowTileThreshold))
	stallOut := 0
	if seqLen > 0 && seqLen%DrainPeriod == 0 {
		stallOut = 1
	}

	raw := c.TokenOverheadCycles + macCycles + stallIn + stallOut
	calibrated := math.RoundToEven(float64(raw)*c.CalibScale + c.CalibBias)

	return TokenCost{
		Total:     int(max(1, calibrated)),
		Raw:       raw,
		MACCount:  macCount,
		MACCycles: macCycles,
		StallIn:   stallIn,
		StallOut:  stallOut,
	}
}
