package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/emu"
)

var _ = Describe("RegFile", func() {
	defaults := map[emu.Addr]uint32{
		emu.AddrControl:  0,
		emu.AddrStatus:   0,
		emu.AddrCfgKTile: 16,
	}

	Context("with the permissive policy", func() {
		var r *emu.RegFile

		BeforeEach(func() {
			r = emu.NewRegFile(emu.PolicyPermissive, defaults)
		})

		It("should create unmapped addresses on write", func() {
			Expect(r.Mapped(emu.AddrPerfCycles)).To(BeFalse())
			r.Write(emu.AddrPerfCycles, 42)
			Expect(r.Mapped(emu.AddrPerfCycles)).To(BeTrue())
			Expect(r.Read(emu.AddrPerfCycles)).To(Equal(uint32(42)))
		})

		It("should unmap created addresses on reset", func() {
			r.Write(emu.Addr(0x100), 1)
			r.Write(emu.AddrControl, emu.CtrlReset)
			Expect(r.Mapped(emu.Addr(0x100))).To(BeFalse())
			Expect(r.Read(emu.AddrControl)).To(Equal(uint32(0)))
		})
	})

	Context("with the strict policy", func() {
		var r *emu.RegFile

		BeforeEach(func() {
			r = emu.NewRegFile(emu.PolicyStrict, defaults)
		})

		It("should start at the reset defaults", func() {
			Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(16)))
			Expect(r.Addrs()).To(Equal([]emu.Addr{emu.AddrControl, emu.AddrStatus, emu.AddrCfgKTile}))
		})

		It("should drop writes to unmapped addresses", func() {
			r.Write(emu.AddrPerfCycles, 42)
			Expect(r.Mapped(emu.AddrPerfCycles)).To(BeFalse())
			Expect(r.Read(emu.AddrPerfCycles)).To(BeZero())
			Expect(r.Set(emu.Addr(0x44), 1)).To(BeFalse())
		})

		It("should accept writes to mapped addresses", func() {
			r.Write(emu.AddrCfgKTile, 4)
			Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(4)))
		})

		It("should reinitialize on RESET and fire the hook", func() {
			fired := 0
			r.OnReset(func() { fired++ })
			r.Write(emu.AddrCfgKTile, 2)
			r.Write(emu.AddrStatus, uint32(emu.StatusError))

			r.Write(emu.AddrControl, emu.CtrlReset|emu.CtrlStart)

			Expect(fired).To(Equal(1))
			Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(16)))
			Expect(r.Read(emu.AddrStatus)).To(BeZero())
			Expect(r.Read(emu.AddrControl)).To(BeZero())
		})

		It("should store START without resetting", func() {
			r.Write(emu.AddrCfgKTile, 2)
			r.Write(emu.AddrControl, emu.CtrlStart)
			Expect(r.Read(emu.AddrControl)).To(Equal(emu.CtrlStart))
			Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(2)))
		})

		It("should honor a changed reset default", func() {
			r.SetResetDefault(emu.AddrCfgKTile, 8)
			r.Reset()
			Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(8)))
		})
	})

	It("should wrap counters at 32 bits", func() {
		r := emu.NewRegFile(emu.PolicyStrict, map[emu.Addr]uint32{emu.AddrPerfCycles: 0xFFFFFFFF})
		r.Add(emu.AddrPerfCycles, 2)
		Expect(r.Read(emu.AddrPerfCycles)).To(Equal(uint32(1)))
	})

	It("should return an independent snapshot", func() {
		r := emu.NewRegFile(emu.PolicyStrict, defaults)
		snap := r.Snapshot()
		snap[emu.AddrCfgKTile] = 99
		Expect(r.Read(emu.AddrCfgKTile)).To(Equal(uint32(16)))
	})

	It("should name registers and states", func() {
		Expect(emu.AddrPerfStallOut.String()).To(Equal("PERF_STALL_OUT"))
		Expect(emu.Addr(0x40).String()).To(Equal("0x40"))
		Expect(emu.StatusDone.String()).To(Equal("DONE"))
		Expect(emu.PolicyStrict.String()).To(Equal("strict"))
		Expect(emu.AllRegisters).To(HaveLen(11))
	})
})
