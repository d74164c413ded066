package emu

import (
	"fmt"
	"math"
	"time"

	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/simerr"
)

// BackendKind names a backend in Poll results, logs and metrics.
type BackendKind string

const (
	KindFunctional    BackendKind = "functional"
	KindHardwareProxy BackendKind = "hw_proxy"
)

// Default engine geometry.
const (
	DefaultDim    = 16
	DefaultMaxSeq = 256
)

// TokenObserver is called after each completed token, before DONE_TOKENS is
// incremented. seqLen is the cache length including the new position.
type TokenObserver func(regs *RegFile, seqLen int)

// PollResult is a side-effect-free view of the engine status and counters.
type PollResult struct {
	Backend      BackendKind `json:"backend"`
	Status       Status      `json:"status"`
	DoneTokens   uint32      `json:"done_tokens"`
	PromptLen    uint32      `json:"prompt_len"`
	GenLen       uint32      `json:"gen_len"`
	PerfCycles   uint32      `json:"perf_cycles"`
	PerfTokens   uint32      `json:"perf_tokens"`
	PerfStallIn  uint32      `json:"perf_stall_in"`
	PerfStallOut uint32      `json:"perf_stall_out"`
	LastError    uint32      `json:"last_error_code"`
}

// Emulator is the functional decode engine. It drives the DecodeUnit through
// the register-file state machine IDLE -> BUSY -> DONE | ERROR.
type Emulator struct {
	dim      int
	maxSeq   int
	kind     BackendKind
	policy   WritePolicy
	defaults map[Addr]uint32
	observer TokenObserver
	lg       *logger.Logger

	regFile   *RegFile
	cache     *KVCache
	unit      *DecodeUnit
	generated *kernels.Tensor[int16]
	lastError string
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithDim sets the model dimension.
func WithDim(dim int) EmulatorOption {
	return func(e *Emulator) {
		e.dim = dim
	}
}

// WithMaxSeq sets the KV cache capacity.
func WithMaxSeq(maxSeq int) EmulatorOption {
	return func(e *Emulator) {
		e.maxSeq = maxSeq
	}
}

// WithPolicy sets the register write policy.
func WithPolicy(p WritePolicy) EmulatorOption {
	return func(e *Emulator) {
		e.policy = p
	}
}

// WithResetDefaults replaces the mapped register set and its reset values.
func WithResetDefaults(defaults map[Addr]uint32) EmulatorOption {
	return func(e *Emulator) {
		e.defaults = defaults
	}
}

// WithTokenObserver installs a per-token hook.
func WithTokenObserver(obs TokenObserver) EmulatorOption {
	return func(e *Emulator) {
		e.observer = obs
	}
}

// WithKind sets the backend name reported by Poll.
func WithKind(kind BackendKind) EmulatorOption {
	return func(e *Emulator) {
		e.kind = kind
	}
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *logger.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.lg = l
	}
}

// NewEmulator creates a functional engine with a permissive register file
// mapping the control registers. The engine starts initialized.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		dim:    DefaultDim,
		maxSeq: DefaultMaxSeq,
		kind:   KindFunctional,
		policy: PolicyPermissive,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.defaults == nil {
		e.defaults = make(map[Addr]uint32, len(ControlRegisters))
		for _, a := range ControlRegisters {
			e.defaults[a] = 0
		}
	}

	e.cache = NewKVCache(e.maxSeq, e.dim)
	e.regFile = NewRegFile(e.policy, e.defaults)
	e.regFile.OnReset(e.clearSession)

	return e
}

func (e *Emulator) log() *logger.Logger {
	if e.lg != nil {
		return e.lg
	}
	return logger.Log
}

func (e *Emulator) clearSession() {
	e.cache.Reset()
	e.generated = nil
	e.lastError = ""
}

// Kind returns the backend name.
func (e *Emulator) Kind() BackendKind {
	return e.kind
}

// Dim returns the model dimension.
func (e *Emulator) Dim() int {
	return e.dim
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Cache returns the emulator's KV cache.
func (e *Emulator) Cache() *KVCache {
	return e.cache
}

// Init resets the register file and clears the cache and session state.
// Loaded weights are kept.
func (e *Emulator) Init() {
	e.regFile.Reset()
}

// Load reads a weight pack from dir.
func (e *Emulator) Load(dir string) error {
	ws, err := loader.Load(dir)
	if err != nil {
		return err
	}
	return e.LoadWeights(ws)
}

// LoadWeights installs an in-memory weight set.
func (e *Emulator) LoadWeights(ws *loader.WeightSet) error {
	if err := ws.CheckDim(e.dim); err != nil {
		return err
	}
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}
	e.unit = NewDecodeUnit(ws)
	return nil
}

// MMIORead reads a register.
func (e *Emulator) MMIORead(addr Addr) uint32 {
	return e.regFile.Read(addr)
}

// MMIOWrite writes a register through the policy-checked MMIO path.
func (e *Emulator) MMIOWrite(addr Addr, value uint32) {
	e.regFile.Write(addr, value)
}

// Run decodes genLen tokens starting from the last row of prompt, which must
// be [T, Dim] with T >= 1. The registers are updated before any error is
// returned: STATUS ends in DONE or ERROR and LAST_ERROR holds the failure
// signature. Output rows are the generated int16 activations.
func (e *Emulator) Run(prompt *kernels.Tensor[int16], genLen int) (*kernels.Tensor[int16], error) {
	if Status(e.regFile.Read(AddrStatus)) == StatusBusy {
		return nil, simerr.InvalidRequest("run", "engine is busy")
	}

	start := time.Now()
	regs := e.regFile
	regs.Write(AddrControl, CtrlStart)
	regs.Set(AddrStatus, uint32(StatusBusy))
	regs.Set(AddrPromptLen, regValue(promptLen(prompt)))
	regs.Set(AddrGenLen, regValue(genLen))
	regs.Clear(AddrDoneTokens, AddrLastError)
	regs.Clear(PerfRegisters...)
	e.lastError = ""

	e.log().Debug("decode session started",
		"backend", e.kind, "prompt_len", promptLen(prompt), "gen_len", genLen)

	out, err := e.decode(prompt, genLen)
	if err != nil {
		return nil, e.fail(err)
	}

	e.generated = out
	regs.Set(AddrStatus, uint32(StatusDone))
	metrics.RecordSession(string(e.kind), genLen, time.Since(start))
	metrics.RecordKVCache(e.cache.Len())
	e.log().Debug("decode session finished",
		"backend", e.kind, "tokens", genLen, "cache_len", e.cache.Len())
	return out, nil
}

func promptLen(prompt *kernels.Tensor[int16]) int {
	if prompt == nil || prompt.Rank() == 0 {
		return 0
	}
	return prompt.Shape[0]
}

// regValue saturates a length into a 32-bit register.
func regValue(n int) uint32 {
	switch {
	case n < 0:
		return 0
	case uint64(n) > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(n)
}

func (e *Emulator) decode(prompt *kernels.Tensor[int16], genLen int) (*kernels.Tensor[int16], error) {
	if prompt == nil || prompt.Rank() != 2 || prompt.Shape[1] != e.dim {
		return nil, simerr.InvalidRequest("run", "prompt shape must be [T, D]")
	}
	if prompt.Shape[0] == 0 {
		return nil, simerr.InvalidRequest("run", "prompt must hold at least one token")
	}
	if genLen <= 0 {
		return nil, simerr.InvalidRequest("run", "gen_len must be > 0")
	}
	if e.unit == nil {
		return nil, simerr.InvalidRequest("run", "weights not loaded")
	}

	x := append([]int16(nil), prompt.Row(prompt.Shape[0]-1)...)
	// Rows grow with the decoded tokens; genLen is only bounded by the cache.
	var rows []int16
	for t := 0; t < genLen; t++ {
		y, err := e.unit.Step(x, e.cache)
		if err != nil {
			return nil, err
		}
		rows = append(rows, y...)
		x = y

		if e.observer != nil {
			e.observer(e.regFile, e.cache.Len())
		}
		e.regFile.Add(AddrDoneTokens, 1)
	}
	return kernels.FromSlice(rows, genLen, e.dim)
}

func (e *Emulator) fail(err error) error {
	e.lastError = err.Error()
	e.regFile.Set(AddrLastError, simerr.Signature(err))
	e.regFile.Set(AddrStatus, uint32(StatusError))

	kind := simerr.KindOf(err)
	metrics.RecordDecodeError(string(e.kind), kind.String())
	e.log().Warn("decode session failed",
		"backend", e.kind, "kind", kind.String(), "err", err)
	return err
}

// Poll reads the status and counters without side effects.
func (e *Emulator) Poll() PollResult {
	r := e.regFile
	return PollResult{
		Backend:      e.kind,
		Status:       Status(r.Read(AddrStatus)),
		DoneTokens:   r.Read(AddrDoneTokens),
		PromptLen:    r.Read(AddrPromptLen),
		GenLen:       r.Read(AddrGenLen),
		PerfCycles:   r.Read(AddrPerfCycles),
		PerfTokens:   r.Read(AddrPerfTokens),
		PerfStallIn:  r.Read(AddrPerfStallIn),
		PerfStallOut: r.Read(AddrPerfStallOut),
		LastError:    r.Read(AddrLastError),
	}
}

// Generated returns the output of the last successful run, or nil.
func (e *Emulator) Generated() *kernels.Tensor[int16] {
	return e.generated
}

// LastError returns the message of the last failure since the last start or
// reset, or "".
func (e *Emulator) LastError() string {
	return e.lastError
}
