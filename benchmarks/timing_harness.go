// Package benchmarks provides decode-workload timing and kernel accuracy
// infrastructure for NPU model calibration.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/npu"
	"github.com/sarchlab/npusim/timing/core"
	"github.com/sarchlab/npusim/timing/latency"
)

// MeasureConfig describes one decode session on the hardware-proxy backend.
type MeasureConfig struct {
	// MaxSeq is the KV cache capacity. Default: emu.DefaultMaxSeq.
	MaxSeq int

	// PromptLen is the number of all-ones prompt rows.
	PromptLen int

	// GenLen is the number of tokens to decode.
	GenLen int

	// Perf is the cycle-model configuration. nil means the default.
	Perf *latency.PerfConfig

	// Clock converts cycles to seconds. Default: core.DefaultClock.
	Clock sim.Freq
}

// Measurement holds the counters of one decode session.
type Measurement struct {
	Status          emu.Status `json:"status"`
	PerfCycles      uint32     `json:"perf_cycles"`
	PerfTokens      uint32     `json:"perf_tokens"`
	PerfStallIn     uint32     `json:"perf_stall_in"`
	PerfStallOut    uint32     `json:"perf_stall_out"`
	CyclesPerToken  float64    `json:"cycles_per_token"`
	TokensPerSecond float64    `json:"tokens_per_second"`
	LastError       string     `json:"last_error,omitempty"`
}

// Measure runs one decode session of ws through a fresh hardware-proxy
// core and returns its counters. A failed session still returns the
// counters it left behind, along with the error.
func Measure(ws *loader.WeightSet, cfg MeasureConfig) (Measurement, error) {
	if ws == nil {
		return Measurement{}, fmt.Errorf("measure: weights not loaded")
	}

	opts := []core.Option{core.WithDim(ws.Dim)}
	if cfg.MaxSeq > 0 {
		opts = append(opts, core.WithMaxSeq(cfg.MaxSeq))
	}
	if cfg.Perf != nil {
		opts = append(opts, core.WithPerfConfig(cfg.Perf))
	}
	if cfg.Clock > 0 {
		opts = append(opts, core.WithClock(cfg.Clock))
	}

	c := core.NewCore(opts...)
	if err := c.LoadWeights(ws); err != nil {
		return Measurement{Status: emu.StatusError, LastError: err.Error()}, err
	}

	_, runErr := c.Run(npu.OnesPrompt(cfg.PromptLen, ws.Dim), cfg.GenLen)

	p := c.Poll()
	m := Measurement{
		Status:          p.Status,
		PerfCycles:      p.PerfCycles,
		PerfTokens:      p.PerfTokens,
		PerfStallIn:     p.PerfStallIn,
		PerfStallOut:    p.PerfStallOut,
		CyclesPerToken:  c.Stats().CyclesPerToken(),
		TokensPerSecond: c.TokensPerSecond(),
		LastError:       c.LastError(),
	}
	return m, runErr
}

// BenchmarkResult holds the timing results for a single workload run.
type BenchmarkResult struct {
	// Name identifies the workload
	Name string `json:"name"`

	// Description explains what the workload exercises
	Description string `json:"description"`

	// PromptLen and GenLen are the session shape
	PromptLen int `json:"prompt_len"`
	GenLen    int `json:"gen_len"`

	// KTile is the CFG_K_TILE value used
	KTile int `json:"k_tile"`

	// Status is the final STATUS register value
	Status emu.Status `json:"status"`

	// SimulatedCycles is PERF_CYCLES
	SimulatedCycles uint32 `json:"simulated_cycles"`

	// TokensGenerated is PERF_TOKENS
	TokensGenerated uint32 `json:"tokens_generated"`

	// CyclesPerToken is SimulatedCycles / TokensGenerated
	CyclesPerToken float64 `json:"cycles_per_token"`

	// TokensPerSecond is the estimated decode rate at the target clock
	TokensPerSecond float64 `json:"tokens_per_second"`

	// StallIn and StallOut are the accumulated stall cycles
	StallIn  uint32 `json:"stall_in"`
	StallOut uint32 `json:"stall_out"`

	// Error holds the failure message, if any
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Workload defines a single decode session shape.
type Workload struct {
	// Name identifies the workload
	Name string

	// Description explains what the workload exercises
	Description string

	// PromptLen is the number of prompt rows
	PromptLen int

	// GenLen is the number of tokens to decode
	GenLen int

	// KTile overrides CFG_K_TILE when > 0
	KTile int
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Dim is the model dimension of the synthetic weights
	Dim int

	// Seed seeds the synthetic weights
	Seed int64

	// MaxSeq is the KV cache capacity
	MaxSeq int

	// Perf is the cycle-model configuration
	Perf *latency.PerfConfig

	// Clock is the target clock
	Clock sim.Freq

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Dim:     emu.DefaultDim,
		Seed:    loader.DefaultSeed,
		MaxSeq:  emu.DefaultMaxSeq,
		Perf:    latency.DefaultPerfConfig(),
		Clock:   core.DefaultClock,
		Output:  os.Stdout,
		Verbose: false,
	}
}

// Harness runs decode workloads and reports results.
type Harness struct {
	config    HarnessConfig
	weights   *loader.WeightSet
	workloads []Workload
}

// NewHarness creates a new benchmark harness over synthetic weights.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Dim <= 0 {
		config.Dim = emu.DefaultDim
	}
	if config.Perf == nil {
		config.Perf = latency.DefaultPerfConfig()
	}
	return &Harness{
		config:    config,
		weights:   loader.Synthetic(config.Dim, config.Seed),
		workloads: []Workload{},
	}
}

// SetWeights replaces the synthetic weights with ws.
func (h *Harness) SetWeights(ws *loader.WeightSet) {
	h.weights = ws
	h.config.Dim = ws.Dim
}

// AddWorkload adds a workload to the harness.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// AddWorkloads adds multiple workloads to the harness.
func (h *Harness) AddWorkloads(workloads []Workload) {
	h.workloads = append(h.workloads, workloads...)
}

// RunAll executes all workloads and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.workloads))

	for _, w := range h.workloads {
		results = append(results, h.runWorkload(w))
	}

	return results
}

func (h *Harness) runWorkload(w Workload) BenchmarkResult {
	perf := h.config.Perf.Clone()
	if w.KTile > 0 {
		perf.KTile = w.KTile
	}

	start := time.Now()
	m, err := Measure(h.weights, MeasureConfig{
		MaxSeq:    h.config.MaxSeq,
		PromptLen: w.PromptLen,
		GenLen:    w.GenLen,
		Perf:      perf,
		Clock:     h.config.Clock,
	})
	wallTime := time.Since(start)

	result := BenchmarkResult{
		Name:            w.Name,
		Description:     w.Description,
		PromptLen:       w.PromptLen,
		GenLen:          w.GenLen,
		KTile:           perf.KTile,
		Status:          m.Status,
		SimulatedCycles: m.PerfCycles,
		TokensGenerated: m.PerfTokens,
		CyclesPerToken:  m.CyclesPerToken,
		TokensPerSecond: m.TokensPerSecond,
		StallIn:         m.PerfStallIn,
		StallOut:        m.PerfStallOut,
		WallTime:        wallTime,
	}
	if err != nil {
		result.Error = err.Error()
	}

	if h.config.Verbose {
		_, _ = fmt.Fprintf(h.config.Output, "ran %s: status=%s cycles=%d tokens=%d\n",
			w.Name, m.Status, m.PerfCycles, m.PerfTokens)
	}

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== NPU Decode Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Workload: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Shape: prompt=%d gen=%d k_tile=%d\n",
			r.PromptLen, r.GenLen, r.KTile)
		_, _ = fmt.Fprintf(h.config.Output, "  Status: %s\n", r.Status)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:  %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Tokens Generated:  %d\n", r.TokensGenerated)
		_, _ = fmt.Fprintf(h.config.Output, "  Cycles/Token:      %.3f\n", r.CyclesPerToken)
		_, _ = fmt.Fprintf(h.config.Output, "  Tokens/Second:     %.1f\n", r.TokensPerSecond)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall In:          %d\n", r.StallIn)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Out:         %d\n", r.StallOut)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,prompt_len,gen_len,k_tile,status,cycles,tokens,cycles_per_token,tokens_per_sec,stall_in,stall_out")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%s,%d,%d,%.3f,%.1f,%d,%d\n",
			r.Name,
			r.PromptLen,
			r.GenLen,
			r.KTile,
			r.Status,
			r.SimulatedCycles,
			r.TokensGenerated,
			r.CyclesPerToken,
			r.TokensPerSecond,
			r.StallIn,
			r.StallOut,
		)
	}
}

// StandardWorkloads returns the default decode workloads.
func StandardWorkloads() []Workload {
	return []Workload{
		{
			Name:        "short_decode",
			Description: "4-row prompt, 6 tokens",
			PromptLen:   4,
			GenLen:      6,
		},
		{
			Name:        "reference_decode",
			Description: "16-row prompt, 8 tokens",
			PromptLen:   16,
			GenLen:      8,
		},
		{
			Name:        "long_decode",
			Description: "8-row prompt, 64 tokens, crosses the drain period",
			PromptLen:   8,
			GenLen:      64,
		},
		{
			Name:        "narrow_tile",
			Description: "8-row prompt, 16 tokens at k_tile 4",
			PromptLen:   8,
			GenLen:      16,
			KTile:       4,
		},
	}
}
