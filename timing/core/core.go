// Package core provides the hardware-proxy accelerator model.
// It wraps the functional engine with a strict register file and charges
// every decoded token to the performance counters through the cycle model.
package core

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/timing/latency"
)

// DefaultClock is the target clock used for wall-time estimates.
const DefaultClock = 200 * sim.MHz

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the accumulated estimated cycles (PERF_CYCLES).
	Cycles uint64
	// Tokens is the number of tokens charged (PERF_TOKENS).
	Tokens uint64
	// StallIn is the accumulated input-side stall (PERF_STALL_IN).
	StallIn uint64
	// StallOut is the accumulated output drain stall (PERF_STALL_OUT).
	StallOut uint64
}

// CyclesPerToken returns Cycles/Tokens, or 0 before any token.
func (s Stats) CyclesPerToken() float64 {
	if s.Tokens == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Tokens)
}

// Core is the hardware-proxy backend.
type Core struct {
	*emu.Emulator

	estimator *latency.Estimator
	clock     sim.Freq
	lastCost  latency.TokenCost
}

type options struct {
	dim    int
	maxSeq int
	config *latency.PerfConfig
	clock  sim.Freq
	log    *logger.Logger
}

// Option configures a Core.
type Option func(*options)

// WithDim sets the model dimension.
func WithDim(dim int) Option {
	return func(o *options) { o.dim = dim }
}

// WithMaxSeq sets the KV cache capacity.
func WithMaxSeq(maxSeq int) Option {
	return func(o *options) { o.maxSeq = maxSeq }
}

// WithPerfConfig sets the cycle-model configuration.
func WithPerfConfig(c *latency.PerfConfig) Option {
	return func(o *options) { o.config = c }
}

// WithClock sets the clock used by EstimatedSeconds.
func WithClock(f sim.Freq) Option {
	return func(o *options) { o.clock = f }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewCore creates a hardware-proxy core. All eleven registers are mapped and
// CFG_K_TILE resets to the configured tiling width.
func NewCore(opts ...Option) *Core {
	o := options{
		dim:    emu.DefaultDim,
		maxSeq: emu.DefaultMaxSeq,
		config: latency.DefaultPerfConfig(),
		clock:  DefaultClock,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Core{
		estimator: latency.NewEstimator(o.dim, o.config),
		clock:     o.clock,
	}

	defaults := make(map[emu.Addr]uint32, len(emu.AllRegisters))
	for _, a := range emu.AllRegisters {
		defaults[a] = 0
	}
	defaults[emu.AddrCfgKTile] = uint32(c.estimator.Config().KTile)

	emuOpts := []emu.EmulatorOption{
		emu.WithDim(o.dim),
		emu.WithMaxSeq(o.maxSeq),
		emu.WithPolicy(emu.PolicyStrict),
		emu.WithResetDefaults(defaults),
		emu.WithKind(emu.KindHardwareProxy),
		emu.WithTokenObserver(c.chargeToken),
	}
	if o.log != nil {
		emuOpts = append(emuOpts, emu.WithLogger(o.log))
	}
	c.Emulator = emu.NewEmulator(emuOpts...)

	return c
}

// chargeToken accumulates one token's estimate into the perf counters using
// the live CFG_K_TILE value.
func (c *Core) chargeToken(regs *emu.RegFile, seqLen int) {
	kTile := int(regs.Read(emu.AddrCfgKTile))
	cost := c.estimator.Estimate(seqLen, kTile)

	regs.Add(emu.AddrPerfCycles, uint32(cost.Total))
	regs.Add(emu.AddrPerfTokens, 1)
	regs.Add(emu.AddrPerfStallIn, uint32(cost.StallIn))
	regs.Add(emu.AddrPerfStallOut, uint32(cost.StallOut))

	c.lastCost = cost
	metrics.RecordTokenCost(cost.Total, cost.StallIn, cost.StallOut)
}

// PerfConfig returns the cycle-model configuration.
func (c *Core) PerfConfig() *latency.PerfConfig {
	return c.estimator.Config()
}

// Estimator returns the cycle model.
func (c *Core) Estimator() *latency.Estimator {
	return c.estimator
}

// SetKTile live-patches CFG_K_TILE through MMIO. The configured reset value
// is unchanged.
func (c *Core) SetKTile(kTile int) {
	c.MMIOWrite(emu.AddrCfgKTile, uint32(kTile))
}

// KTile returns the live CFG_K_TILE value.
func (c *Core) KTile() int {
	return int(c.MMIORead(emu.AddrCfgKTile))
}

// LastCost returns the estimate of the most recently charged token.
func (c *Core) LastCost() latency.TokenCost {
	return c.lastCost
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	p := c.Poll()
	return Stats{
		Cycles:   uint64(p.PerfCycles),
		Tokens:   uint64(p.PerfTokens),
		StallIn:  uint64(p.PerfStallIn),
		StallOut: uint64(p.PerfStallOut),
	}
}

// Clock returns the target clock frequency.
func (c *Core) Clock() sim.Freq {
	return c.clock
}

// EstimatedSeconds converts the accumulated cycles to seconds at Clock.
func (c *Core) EstimatedSeconds() float64 {
	return float64(c.Stats().Cycles) / float64(c.clock)
}

// TokensPerSecond returns the estimated decode rate at Clock, or 0 before
// any token.
func (c *Core) TokensPerSecond() float64 {
	cpt := c.Stats().CyclesPerToken()
	if cpt == 0 {
		return 0
	}
	return float64(c.clock) / cpt
}
