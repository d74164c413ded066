package emu

import "fmt"

// Addr is the byte offset of a 32-bit MMIO register.
type Addr uint32

// Register address map.
const (
	AddrControl      Addr = 0x00
	AddrStatus       Addr = 0x04
	AddrPromptLen    Addr = 0x08
	AddrGenLen       Addr = 0x0C
	AddrDoneTokens   Addr = 0x10
	AddrLastError    Addr = 0x14
	AddrPerfCycles   Addr = 0x18
	AddrPerfTokens   Addr = 0x1C
	AddrPerfStallIn  Addr = 0x20
	AddrPerfStallOut Addr = 0x24
	AddrCfgKTile     Addr = 0x28
)

// CONTROL bits.
const (
	CtrlStart uint32 = 1 << 0
	CtrlReset uint32 = 1 << 1
)

var addrNames = map[Addr]string{
	AddrControl:      "CONTROL",
	AddrStatus:       "STATUS",
	AddrPromptLen:    "PROMPT_LEN",
	AddrGenLen:       "GEN_LEN",
	AddrDoneTokens:   "DONE_TOKENS",
	AddrLastError:    "LAST_ERROR",
	AddrPerfCycles:   "PERF_CYCLES",
	AddrPerfTokens:   "PERF_TOKENS",
	AddrPerfStallIn:  "PERF_STALL_IN",
	AddrPerfStallOut: "PERF_STALL_OUT",
	AddrCfgKTile:     "CFG_K_TILE",
}

func (a Addr) String() string {
	if name, ok := addrNames[a]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint32(a))
}

// ControlRegisters is the register set of the functional backend.
var ControlRegisters = []Addr{
	AddrControl, AddrStatus, AddrPromptLen, AddrGenLen, AddrDoneTokens, AddrLastError,
}

// PerfRegisters are the counters the hardware-proxy backend adds.
var PerfRegisters = []Addr{
	AddrPerfCycles, AddrPerfTokens, AddrPerfStallIn, AddrPerfStallOut,
}

// AllRegisters is the full map of the hardware-proxy backend.
var AllRegisters = append(append(append([]Addr{}, ControlRegisters...), PerfRegisters...), AddrCfgKTile)

// Status is the value of the STATUS register. Exactly one bit is set
// outside IDLE.
type Status uint32

const (
	StatusIdle  Status = 0
	StatusBusy  Status = 1 << 0
	StatusDone  Status = 1 << 1
	StatusError Status = 1 << 2
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusBusy:
		return "BUSY"
	case StatusDone:
		return "DONE"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", uint32(s))
	}
}
