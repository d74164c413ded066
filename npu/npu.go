// Package npu is the runtime entry point of the simulator. It builds either
// the functional or the hardware-proxy backend behind one interface.
package npu

import (
	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/timing/core"
)

// Backend is the engine surface shared by both backends.
type Backend interface {
	// Init resets registers and cache. Loaded weights are kept.
	Init()
	// Load reads a weight pack directory.
	Load(dir string) error
	// LoadWeights installs an in-memory weight set.
	LoadWeights(ws *loader.WeightSet) error
	// Run decodes genLen tokens from the last row of prompt [T, Dim].
	Run(prompt *kernels.Tensor[int16], genLen int) (*kernels.Tensor[int16], error)
	// Poll reads status and counters without side effects.
	Poll() emu.PollResult
	MMIORead(addr emu.Addr) uint32
	MMIOWrite(addr emu.Addr, value uint32)
	Generated() *kernels.Tensor[int16]
	LastError() string
	Kind() emu.BackendKind
	Dim() int
}

var (
	_ Backend = (*emu.Emulator)(nil)
	_ Backend = (*core.Core)(nil)
)

// New validates cfg and builds the selected backend, initialized.
func New(cfg *Config) (Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kind, _ := ParseBackend(string(cfg.Backend))
	if kind == emu.KindHardwareProxy {
		opts := []core.Option{core.WithDim(cfg.Dim), core.WithMaxSeq(cfg.MaxSeq)}
		if cfg.Perf != nil {
			opts = append(opts, core.WithPerfConfig(cfg.Perf))
		}
		return core.NewCore(opts...), nil
	}

	return emu.NewEmulator(emu.WithDim(cfg.Dim), emu.WithMaxSeq(cfg.MaxSeq)), nil
}

// OnesPrompt returns a [promptLen, dim] prompt of ones.
func OnesPrompt(promptLen, dim int) *kernels.Tensor[int16] {
	p := kernels.New[int16](promptLen, dim)
	for i := range p.Data {
		p.Data[i] = 1
	}
	return p
}
