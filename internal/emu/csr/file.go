package csr

import (
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// Count is the size of the CSR address space.
const Count = 4096

// MisaValue is the hardwired extension bitmap: RV64IMAFDC with S and U
// modes.
const MisaValue = MisaI | MisaM | MisaA | MisaF | MisaD | MisaC |
	MisaS | MisaU | MisaMXL64

// File is the 4096-slot control register table plus typed views of the
// registers the hart, MMU, engine and devices touch on hot paths.
type File struct {
	slots [Count]CSR

	mstatus  *MStatus
	fp       *FPState
	mip      *Mip
	mie      *Plain
	mideleg  *AtomicReg
	medeleg  *Plain
	menvcfg  *AtomicReg
	satp     *Satp
	mcycle   *Counter
	minstret *Counter
	stimecmp *AtomicReg
	timeReg  *AtomicReg

	mtvec  *Tvec
	stvec  *Tvec
	mepc   *Epc
	sepc   *Epc
	mcause *Cause
	scause *Cause
	mtval  *Plain
	stval  *Plain

	mcounteren *Plain
	scounteren *Plain
}

// NewFile builds the full register table. Construction happens exactly once
// per hart; every slot is populated, with unimplemented addresses sharing a
// single inert instance.
func NewFile() *File {
	f := &File{}

	f.mstatus = NewMStatus()
	mcountinhibit := NewMasked(AddrMCountInhibit, 0, InhibitCY|InhibitIR, InhibitCY|InhibitIR)
	f.mcounteren = NewMasked(AddrMCounteren, 0, CounterenCY|CounterenTM|CounterenIR, CounterenCY|CounterenTM|CounterenIR)
	f.scounteren = NewMasked(AddrSCounteren, 0, CounterenCY|CounterenTM|CounterenIR, CounterenCY|CounterenTM|CounterenIR)

	f.menvcfg = NewAtomic(AddrMEnvCfg, EnvCfgFIOM|EnvCfgADUE|EnvCfgSTCE, nil)
	f.mideleg = NewAtomic(AddrMIDeleg, IntSupervisorSet, nil)
	f.medeleg = NewMEDeleg()
	f.mip = NewMip(f.menvcfg)
	f.mie = NewMasked(AddrMie, 0, IntAll, IntAll)
	f.satp = NewSatp(f.mstatus)
	f.fp = NewFPState(f.mstatus)

	f.mcycle = NewCounter(AddrMCycle, mcountinhibit, InhibitCY)
	f.minstret = NewCounter(AddrMInstret, mcountinhibit, InhibitIR)

	f.timeReg = NewAtomic(AddrTime, ^uint64(0), func(a Access, forWrite bool) *trap.Trap {
		if !counterVisible(a, f.mcounteren, f.scounteren, CounterenTM) {
			return a.illegal()
		}
		return nil
	})
	f.stimecmp = NewAtomic(AddrSTimecmp, ^uint64(0), func(a Access, forWrite bool) *trap.Trap {
		if a.Priv == trap.PrivM {
			return nil
		}
		if f.mcounteren.ReadUnchecked()&CounterenTM == 0 ||
			f.menvcfg.ReadUnchecked()&EnvCfgSTCE == 0 {
			return a.illegal()
		}
		return nil
	})

	f.mtvec = NewTvec(AddrMtvec)
	f.stvec = NewTvec(AddrStvec)
	f.mepc = NewEpc(AddrMepc, MisaValue)
	f.sepc = NewEpc(AddrSepc, MisaValue)
	f.mcause = NewCause(AddrMCause, false)
	f.scause = NewCause(AddrSCause, true)
	f.mtval = NewPlain(AddrMtval, 0)
	f.stval = NewPlain(AddrStval, 0)

	// Machine information registers.
	f.set(AddrMVendorID, NewConst(AddrMVendorID, 0))
	f.set(AddrMArchID, NewConst(AddrMArchID, 0))
	f.set(AddrMImpID, NewConst(AddrMImpID, 0x10))
	f.set(AddrMHartID, NewConst(AddrMHartID, 0))
	f.set(AddrMConfigPtr, NewConst(AddrMConfigPtr, 0))
	f.set(AddrMisa, NewHardwired(AddrMisa, MisaValue))

	// Machine trap setup / handling.
	f.set(AddrMStatus, f.mstatus)
	f.set(AddrMEDeleg, f.medeleg)
	f.set(AddrMIDeleg, f.mideleg)
	f.set(AddrMie, f.mie)
	f.set(AddrMtvec, f.mtvec)
	f.set(AddrMCounteren, f.mcounteren)
	f.set(AddrMEnvCfg, f.menvcfg)
	f.set(AddrMCountInhibit, mcountinhibit)
	f.set(AddrMScratch, NewPlain(AddrMScratch, 0))
	f.set(AddrMepc, f.mepc)
	f.set(AddrMCause, f.mcause)
	f.set(AddrMtval, f.mtval)
	f.set(AddrMip, f.mip)

	// Supervisor trap setup / handling.
	f.set(AddrSStatus, &SStatus{m: f.mstatus})
	f.set(AddrSie, &maskedView{addr: AddrSie, target: f.mie, mask: f.mideleg.ReadUnchecked})
	f.set(AddrStvec, f.stvec)
	f.set(AddrSCounteren, f.scounteren)
	f.set(AddrSEnvCfg, NewMasked(AddrSEnvCfg, 0, EnvCfgFIOM, EnvCfgFIOM))
	f.set(AddrSScratch, NewPlain(AddrSScratch, 0))
	f.set(AddrSepc, f.sepc)
	f.set(AddrSCause, f.scause)
	f.set(AddrStval, f.stval)
	f.set(AddrSip, &maskedView{addr: AddrSip, target: f.mip, mask: f.mideleg.ReadUnchecked})
	f.set(AddrSTimecmp, f.stimecmp)
	f.set(AddrSatp, f.satp)

	// Floating-point state.
	f.set(AddrFFlags, fflagsCSR{fp: f.fp})
	f.set(AddrFrm, frmCSR{fp: f.fp})
	f.set(AddrFcsr, fcsrCSR{fp: f.fp})

	// Counters.
	f.set(AddrMCycle, f.mcycle)
	f.set(AddrMInstret, f.minstret)
	for addr := AddrMHpmCtr3; addr <= AddrMHpmCtr31; addr++ {
		f.set(addr, NewHardwired(addr, 0))
	}
	for addr := AddrMHpmEvent3; addr <= AddrMHpmEvent31; addr++ {
		f.set(addr, NewHardwired(addr, 0))
	}
	f.set(AddrCycle, NewUserCounter(AddrCycle, func() uint64 { return f.mcycle.ReadUnchecked() }, f.mcounteren, f.scounteren, CounterenCY))
	f.set(AddrTime, f.timeReg)
	f.set(AddrInstret, NewUserCounter(AddrInstret, func() uint64 { return f.minstret.ReadUnchecked() }, f.mcounteren, f.scounteren, CounterenIR))
	for i := uint32(3); i <= 31; i++ {
		addr := AddrHpmCtr3 + i - 3
		machine := f.slots[AddrMHpmCtr3+i-3]
		f.set(addr, NewUserCounter(addr, machine.ReadUnchecked, f.mcounteren, f.scounteren, uint64(1)<<i))
	}

	// Physical memory protection and trigger stubs.
	for addr := AddrPmpCfg0; addr < AddrPmpCfg0+16; addr += 2 {
		f.set(addr, NewHardwired(addr, 0))
	}
	for addr := AddrPmpAddr0; addr <= AddrPmpAddr63; addr++ {
		f.set(addr, NewPlain(addr, 0))
	}
	f.set(AddrTSelect, NewHardwired(AddrTSelect, 0))
	for addr := AddrTData1; addr <= AddrTData3; addr++ {
		f.set(addr, NewHardwired(addr, 0))
	}

	unimpl := Unimplemented{}
	for i := range f.slots {
		if f.slots[i] == nil {
			f.slots[i] = unimpl
		}
	}

	return f
}

func counterVisible(a Access, mcounteren, scounteren *Plain, bit uint64) bool {
	switch a.Priv {
	case trap.PrivM:
		return true
	case trap.PrivS:
		return mcounteren.ReadUnchecked()&bit != 0
	default:
		return mcounteren.ReadUnchecked()&bit != 0 &&
			scounteren.ReadUnchecked()&bit != 0
	}
}

func (f *File) set(addr uint32, c CSR) {
	f.slots[addr] = c
}

// Slot returns the register at addr (addr is 12 bits).
func (f *File) Slot(addr uint32) CSR {
	return f.slots[addr&0xFFF]
}

// Typed views, acquired once by the hart/engine/devices instead of repeated
// table lookups.

func (f *File) MStatus() *MStatus    { return f.mstatus }
func (f *File) FP() *FPState         { return f.fp }
func (f *File) Mip() *Mip            { return f.mip }
func (f *File) Mie() *Plain          { return f.mie }
func (f *File) MIDeleg() *AtomicReg  { return f.mideleg }
func (f *File) MEDeleg() *Plain      { return f.medeleg }
func (f *File) MEnvCfg() *AtomicReg  { return f.menvcfg }
func (f *File) Satp() *Satp          { return f.satp }
func (f *File) MCycle() *Counter     { return f.mcycle }
func (f *File) MInstret() *Counter   { return f.minstret }
func (f *File) STimecmp() *AtomicReg { return f.stimecmp }
func (f *File) Time() *AtomicReg     { return f.timeReg }

func (f *File) Mtvec() *Tvec   { return f.mtvec }
func (f *File) Stvec() *Tvec   { return f.stvec }
func (f *File) Mepc() *Epc     { return f.mepc }
func (f *File) Sepc() *Epc     { return f.sepc }
func (f *File) MCause() *Cause { return f.mcause }
func (f *File) SCause() *Cause { return f.scause }
func (f *File) Mtval() *Plain  { return f.mtval }
func (f *File) Stval() *Plain  { return f.stval }
