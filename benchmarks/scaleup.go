package benchmarks

import (
	"fmt"
	"io"

	"github.com/sarchlab/npusim/timing/latency"
)

// PrintScaleup evaluates the analytic model for a full-size decoder and
// writes its inputs and outputs as metric,value rows.
func PrintScaleup(w io.Writer, in latency.AnalyticInput) (latency.AnalyticOutput, error) {
	out, err := latency.EstimateAnalytic(in)
	if err != nil {
		return latency.AnalyticOutput{}, err
	}

	_, _ = fmt.Fprintln(w, "metric,value")
	_, _ = fmt.Fprintf(w, "layers,%d\n", in.Layers)
	_, _ = fmt.Fprintf(w, "hidden,%d\n", in.Hidden)
	_, _ = fmt.Fprintf(w, "seq,%d\n", in.Seq)
	_, _ = fmt.Fprintf(w, "pe_mac_per_cycle,%d\n", in.PEMacPerCycle)
	_, _ = fmt.Fprintf(w, "clock_mhz,%.1f\n", float64(in.Clock)/1e6)
	_, _ = fmt.Fprintf(w, "efficiency,%.3f\n", in.Efficiency)
	_, _ = fmt.Fprintf(w, "mac_per_token,%d\n", out.MACPerToken)
	_, _ = fmt.Fprintf(w, "ideal_tokens_per_sec,%.3f\n", out.IdealTokensPerSec)
	_, _ = fmt.Fprintf(w, "effective_tokens_per_sec,%.3f\n", out.EffectiveTokensPerSec)
	_, _ = fmt.Fprintf(w, "cycles_per_token_effective,%.1f\n", out.CyclesPerToken)
	return out, nil
}
