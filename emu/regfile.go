// Package emu provides the register file, KV cache and functional decode
// engine of the simulated accelerator.
package emu

import "sort"

// WritePolicy decides what happens to writes aimed at addresses outside the
// register file's mapped set.
type WritePolicy int

const (
	// PolicyPermissive creates any written address on demand.
	PolicyPermissive WritePolicy = iota
	// PolicyStrict silently drops writes to unmapped addresses.
	PolicyStrict
)

func (p WritePolicy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "permissive"
}

func (p WritePolicy) admits(mapped bool) bool {
	return mapped || p == PolicyPermissive
}

// RegFile is a bank of 32-bit MMIO registers.
// Unmapped addresses read as zero.
type RegFile struct {
	policy   WritePolicy
	defaults map[Addr]uint32
	regs     map[Addr]uint32
	onReset  func()
}

// NewRegFile creates a register file whose mapped set and reset values are
// given by defaults. The file starts in its reset state.
func NewRegFile(policy WritePolicy, defaults map[Addr]uint32) *RegFile {
	r := &RegFile{
		policy:   policy,
		defaults: make(map[Addr]uint32, len(defaults)),
	}
	for a, v := range defaults {
		r.defaults[a] = v
	}
	r.Reset()
	return r
}

// Policy returns the write policy.
func (r *RegFile) Policy() WritePolicy {
	return r.policy
}

// OnReset registers a hook that runs after every reset, whether triggered by
// Reset or by a RESET write to CONTROL.
func (r *RegFile) OnReset(fn func()) {
	r.onReset = fn
}

// SetResetDefault changes the value addr takes on reset and maps addr.
func (r *RegFile) SetResetDefault(addr Addr, value uint32) {
	r.defaults[addr] = value
}

// Mapped reports whether addr currently exists in the file.
func (r *RegFile) Mapped(addr Addr) bool {
	_, ok := r.regs[addr]
	return ok
}

// Read returns the value at addr, or 0 when addr is unmapped.
func (r *RegFile) Read(addr Addr) uint32 {
	return r.regs[addr]
}

// Write is the MMIO write path. A write to CONTROL with the RESET bit set
// stores the value and then reinitializes the whole file.
func (r *RegFile) Write(addr Addr, value uint32) {
	if !r.Set(addr, value) {
		return
	}
	if addr == AddrControl && value&CtrlReset != 0 {
		r.Reset()
	}
}

// Set stores value at addr subject to the write policy, with no CONTROL side
// effects. It reports whether the write was admitted.
func (r *RegFile) Set(addr Addr, value uint32) bool {
	if !r.policy.admits(r.Mapped(addr)) {
		return false
	}
	r.regs[addr] = value
	return true
}

// Add increments the register at addr with 32-bit wraparound.
func (r *RegFile) Add(addr Addr, delta uint32) {
	r.Set(addr, r.regs[addr]+delta)
}

// Clear zeroes each mapped address in addrs.
func (r *RegFile) Clear(addrs ...Addr) {
	for _, a := range addrs {
		if r.Mapped(a) {
			r.regs[a] = 0
		}
	}
}

// Reset restores the reset defaults, unmaps anything created since, and
// runs the reset hook.
func (r *RegFile) Reset() {
	r.regs = make(map[Addr]uint32, len(r.defaults))
	for a, v := range r.defaults {
		r.regs[a] = v
	}
	if r.onReset != nil {
		r.onReset()
	}
}

// Snapshot returns a copy of all mapped registers.
func (r *RegFile) Snapshot() map[Addr]uint32 {
	out := make(map[Addr]uint32, len(r.regs))
	for a, v := range r.regs {
		out[a] = v
	}
	return out
}

// Addrs returns the mapped addresses in ascending order.
func (r *RegFile) Addrs() []Addr {
	out := make([]Addr, 0, len(r.regs))
	for a := range r.regs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
