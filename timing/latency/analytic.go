package latency

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// AnalyticInput describes a full-size decoder for the first-order
// throughput model.
type AnalyticInput struct {
	Layers        int      `json:"layers"`
	Hidden        int      `json:"hidden"`
	Seq           int      `json:"seq"`
	PEMacPerCycle int      `json:"pe_mac_per_cycle"`
	Clock         sim.Freq `json:"clock_hz"`
	Efficiency    float64  `json:"efficiency"`
}

// DefaultAnalyticInput is a 6-layer, 768-wide decoder at 256-token context
// on a 256-MAC array clocked at 200 MHz with 15% efficiency.
func DefaultAnalyticInput() AnalyticInput {
	return AnalyticInput{
		Layers:        6,
		Hidden:        768,
		Seq:           256,
		PEMacPerCycle: 256,
		Clock:         200 * sim.MHz,
		Efficiency:    0.15,
	}
}

// AnalyticOutput is the result of EstimateAnalytic.
type AnalyticOutput struct {
	MACPerToken           int     `json:"mac_per_token"`
	IdealTokensPerSec     float64 `json:"ideal_tokens_per_sec"`
	EffectiveTokensPerSec float64 `json:"effective_tokens_per_sec"`
	CyclesPerToken        float64 `json:"cycles_per_token_effective"`
}

// EstimateAnalytic evaluates
//
//	mac/token = layers·(12·h² + 2·h·seq)
//
// against the peak MAC rate of the array, then derates by efficiency.
func EstimateAnalytic(in AnalyticInput) (AnalyticOutput, error) {
	if in.Layers < 1 || in.Hidden < 1 || in.Seq < 0 || in.PEMacPerCycle < 1 {
		return AnalyticOutput{}, fmt.Errorf("invalid analytic input %+v", in)
	}
	if in.Clock <= 0 || in.Efficiency <= 0 {
		return AnalyticOutput{}, fmt.Errorf("clock and efficiency must be positive")
	}

	h := in.Hidden
	mac := in.Layers * (12*h*h + 2*h*in.Seq)
	hz := float64(in.Clock)

	ideal := float64(in.PEMacPerCycle) * hz / float64(mac)
	effective := ideal * in.Efficiency

	return AnalyticOutput{
		MACPerToken:           mac,
		IdealTokensPerSec:     ideal,
		EffectiveTokensPerSec: effective,
		CyclesPerToken:        hz / effective,
	}, nil
}
