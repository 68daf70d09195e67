package csr

import (
	"sync/atomic"

	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// MStatus holds the machine status register. SD is never stored: it is
// derived from FS on every read so the "SD iff FS==Dirty" invariant cannot
// be broken by a write.
type MStatus struct {
	value uint64
}

const mstatusWriteMask = StatusSIE | StatusMIE | StatusSPIE | StatusMPIE |
	StatusSPP | StatusMPP | StatusFS | StatusMPRV | StatusSUM | StatusMXR |
	StatusTVM | StatusTW | StatusTSR

func NewMStatus() *MStatus {
	// UXL/SXL are read-only 64-bit; MPP resets to M.
	v := (uint64(2) << StatusUXLShift) | (uint64(2) << StatusSXLShift) |
		(uint64(trap.PrivM) << StatusMPPShift)
	return &MStatus{value: v}
}

func (c *MStatus) ReadUnchecked() uint64 {
	v := c.value
	if v&StatusFS == StatusFS {
		v |= StatusSD
	}
	return v
}

func (c *MStatus) WriteUnchecked(v uint64) {
	mask := mstatusWriteMask
	// MPP is WARL: an illegal privilege encoding leaves the field unchanged.
	mpp := (v & StatusMPP) >> StatusMPPShift
	if mpp == uint64(trap.PrivM)+1 { // reserved H encoding
		mask &^= StatusMPP
	}
	c.value = (c.value &^ mask) | (v & mask)
}

func (c *MStatus) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(AddrMStatus, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *MStatus) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(AddrMStatus, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Field returns the masked raw field bits.
func (c *MStatus) Field(mask uint64) uint64 { return c.value & mask }

// SetField overwrites the masked field bits without a WARL filter; used by
// the trap dispatcher and xRET, which only produce legal values.
func (c *MStatus) SetField(mask, v uint64) {
	c.value = (c.value &^ mask) | (v & mask)
}

// FS returns the floating-point unit state field.
func (c *MStatus) FS() uint64 {
	return (c.value & StatusFS) >> StatusFSShift
}

// SetFSDirty marks the FPU state dirty (and thereby SD on the next read).
func (c *MStatus) SetFSDirty() {
	c.value |= StatusFS
}

// SStatus is the supervisor view of mstatus: the same storage seen through
// SStatusMask.
type SStatus struct {
	m *MStatus
}

func (c *SStatus) ReadUnchecked() uint64 { return c.m.ReadUnchecked() & SStatusMask }

func (c *SStatus) WriteUnchecked(v uint64) {
	c.m.WriteUnchecked((c.m.value &^ SStatusMask) | (v & SStatusMask))
}

func (c *SStatus) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(AddrSStatus, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *SStatus) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(AddrSStatus, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Tvec is mtvec/stvec: BASE plus a 2-bit MODE with the reserved modes
// excluded by forcing bit 1 to zero.
type Tvec struct {
	addr  uint32
	value uint64
}

func NewTvec(addr uint32) *Tvec { return &Tvec{addr: addr} }

func (c *Tvec) ReadUnchecked() uint64   { return c.value }
func (c *Tvec) WriteUnchecked(v uint64) { c.value = v &^ 2 }

func (c *Tvec) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.value, nil
}

func (c *Tvec) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Epc is mepc/sepc. Bit 0 always reads zero; without the compressed
// extension bit 1 would be masked as well.
type Epc struct {
	addr     uint32
	value    uint64
	readMask uint64
}

func NewEpc(addr uint32, misa uint64) *Epc {
	mask := ^uint64(1)
	if misa&MisaC == 0 {
		mask = ^uint64(3)
	}
	return &Epc{addr: addr, readMask: mask}
}

func (c *Epc) ReadUnchecked() uint64   { return c.value & c.readMask }
func (c *Epc) WriteUnchecked(v uint64) { c.value = v &^ 1 }

func (c *Epc) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *Epc) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Cause is mcause/scause. Only causes from the implemented taxonomy are
// accepted; machine-only causes are additionally rejected by scause.
type Cause struct {
	addr  uint32
	value uint64
	smode bool
}

func NewCause(addr uint32, smode bool) *Cause {
	return &Cause{addr: addr, smode: smode}
}

func (c *Cause) accepts(v uint64) bool {
	if v&trap.InterruptBit != 0 {
		code := v &^ trap.InterruptBit
		if !trap.ValidInterrupt(code) {
			return false
		}
		if c.smode && (code == 3 || code == 7 || code == 11) {
			return false
		}
		return true
	}
	if !trap.ValidException(v) {
		return false
	}
	if c.smode && trap.Cause(v) == trap.EnvironmentCallFromM {
		return false
	}
	return true
}

func (c *Cause) ReadUnchecked() uint64 { return c.value }

func (c *Cause) WriteUnchecked(v uint64) {
	if c.accepts(v) {
		c.value = v
	}
}

func (c *Cause) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.value, nil
}

func (c *Cause) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// medeleg write mask: every implemented exception except EnvironmentCallFromM
// (bit 11); bit 16 is outside the implemented range and reads zero.
const medelegMask = uint64(1)<<0 | 1<<1 | 1<<2 | 1<<3 | 1<<4 | 1<<5 |
	1<<6 | 1<<7 | 1<<8 | 1<<9 | 1<<12 | 1<<13 | 1<<15

// NewMEDeleg builds the machine exception delegation register.
func NewMEDeleg() *Plain {
	return NewMasked(AddrMEDeleg, 0, medelegMask, medelegMask)
}

// AtomicReg is masked storage backed by an atomic word so device goroutines
// can read it without taking a lock (mideleg, menvcfg, stimecmp, time).
type AtomicReg struct {
	addr  uint32
	value atomic.Uint64
	mask  uint64
	gate  func(a Access, forWrite bool) *trap.Trap
}

// NewAtomic builds an atomic register accepting and exposing only mask bits.
// gate, when non-nil, runs after the address-derived privilege check on every
// checked access.
func NewAtomic(addr uint32, mask uint64, gate func(a Access, forWrite bool) *trap.Trap) *AtomicReg {
	return &AtomicReg{addr: addr, mask: mask, gate: gate}
}

func (c *AtomicReg) ReadUnchecked() uint64 { return c.value.Load() & c.mask }

func (c *AtomicReg) WriteUnchecked(v uint64) {
	for {
		old := c.value.Load()
		next := (old &^ c.mask) | (v & c.mask)
		if c.value.CompareAndSwap(old, next) {
			return
		}
	}
}

func (c *AtomicReg) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	if c.gate != nil {
		if t := c.gate(a, false); t != nil {
			return 0, t
		}
	}
	return c.ReadUnchecked(), nil
}

func (c *AtomicReg) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	if c.gate != nil {
		if t := c.gate(a, true); t != nil {
			return t
		}
	}
	c.WriteUnchecked(v)
	return nil
}

// Mip is the interrupt-pending register. Devices flip bits from their own
// goroutines, so all updates go through CAS on an atomic word.
type Mip struct {
	value  atomic.Uint64
	envcfg *AtomicReg
}

func NewMip(envcfg *AtomicReg) *Mip { return &Mip{envcfg: envcfg} }

func (c *Mip) ReadUnchecked() uint64 { return c.value.Load() & IntAll }

func (c *Mip) WriteUnchecked(v uint64) {
	for {
		old := c.value.Load()
		next := (old &^ IntAll) | (v & IntAll)
		if c.value.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetBits asserts pending bits from a device goroutine.
func (c *Mip) SetBits(mask uint64) {
	for {
		old := c.value.Load()
		if c.value.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// ClearBits deasserts pending bits from a device goroutine.
func (c *Mip) ClearBits(mask uint64) {
	for {
		old := c.value.Load()
		if c.value.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// softwareWritable is the set of mip bits a CSR write may change. STIP is
// software-writable only while the timer extension is off (menvcfg.STCE=0).
func (c *Mip) softwareWritable() uint64 {
	mask := IntSSI | IntSEI
	if c.envcfg.ReadUnchecked()&EnvCfgSTCE == 0 {
		mask |= IntSTI
	}
	return mask
}

func (c *Mip) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(AddrMip, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *Mip) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(AddrMip, a, true); t != nil {
		return t
	}
	mask := c.softwareWritable()
	for {
		old := c.value.Load()
		next := (old &^ mask) | (v & mask)
		if c.value.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// maskedView mirrors another CSR through a mask supplied per access; used by
// sie/sip, whose visible bits are those delegated via mideleg.
type maskedView struct {
	addr   uint32
	target CSR
	mask   func() uint64
}

func (c *maskedView) ReadUnchecked() uint64 { return c.target.ReadUnchecked() & c.mask() }

func (c *maskedView) WriteUnchecked(v uint64) {
	m := c.mask()
	c.target.WriteUnchecked((c.target.ReadUnchecked() &^ m) | (v & m))
}

func (c *maskedView) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *maskedView) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Satp controls address translation. Writes are atomic: an unsupported MODE
// causes the whole write to be ignored. Reads and writes from S-mode are
// rejected while mstatus.TVM is set.
type Satp struct {
	value    atomic.Uint64
	mstatus  *MStatus
	onChange func()
}

func NewSatp(mstatus *MStatus) *Satp { return &Satp{mstatus: mstatus} }

// SetOnChange installs the TLB invalidation hook.
func (c *Satp) SetOnChange(fn func()) { c.onChange = fn }

func (c *Satp) ReadUnchecked() uint64 { return c.value.Load() }

func (c *Satp) WriteUnchecked(v uint64) {
	mode := v >> SatpModeShift
	if mode != SatpModeBare && mode != SatpModeSv39 {
		return
	}
	next := (v & SatpPPNMask) | (v & (SatpASIDMask << SatpASIDShift)) | (mode << SatpModeShift)
	old := c.value.Swap(next)
	if old != next && c.onChange != nil {
		c.onChange()
	}
}

func (c *Satp) tvmBlocked(a Access) bool {
	return a.Priv == trap.PrivS && c.mstatus.Field(StatusTVM) != 0
}

func (c *Satp) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(AddrSatp, a, false); t != nil {
		return 0, t
	}
	if c.tvmBlocked(a) {
		return 0, a.illegal()
	}
	return c.value.Load(), nil
}

func (c *Satp) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(AddrSatp, a, true); t != nil {
		return t
	}
	if c.tvmBlocked(a) {
		return a.illegal()
	}
	c.WriteUnchecked(v)
	return nil
}

// Counter is mcycle/minstret. The engine advances it once per cycle or
// retirement; a checked write suppresses the very next advance so software
// sees exactly the value it wrote.
type Counter struct {
	addr       uint32
	value      uint64
	suppressed bool
	inhibit    *Plain
	inhibitBit uint64
}

func NewCounter(addr uint32, inhibit *Plain, inhibitBit uint64) *Counter {
	return &Counter{addr: addr, inhibit: inhibit, inhibitBit: inhibitBit}
}

func (c *Counter) ReadUnchecked() uint64   { return c.value }
func (c *Counter) WriteUnchecked(v uint64) { c.value = v }

func (c *Counter) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.value, nil
}

func (c *Counter) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.value = v
	c.suppressed = true
	return nil
}

// Advance increments the counter unless frozen via mcountinhibit or
// suppressed by a preceding CSR write.
func (c *Counter) Advance() {
	if c.inhibit.ReadUnchecked()&c.inhibitBit != 0 {
		return
	}
	if c.suppressed {
		c.suppressed = false
		return
	}
	c.value++
}

// UserCounter is cycle/instret/hpmcounterN/time: a read-only mirror of the
// machine counter gated by mcounteren (for S) and additionally scounteren
// (for U).
type UserCounter struct {
	addr       uint32
	read       func() uint64
	mcounteren *Plain
	scounteren *Plain
	bit        uint64
}

func NewUserCounter(addr uint32, read func() uint64, mcounteren, scounteren *Plain, bit uint64) *UserCounter {
	return &UserCounter{addr: addr, read: read, mcounteren: mcounteren, scounteren: scounteren, bit: bit}
}

func (c *UserCounter) ReadUnchecked() uint64 { return c.read() }
func (c *UserCounter) WriteUnchecked(uint64) {}

func (c *UserCounter) visible(a Access) bool {
	switch a.Priv {
	case trap.PrivM:
		return true
	case trap.PrivS:
		return c.mcounteren.ReadUnchecked()&c.bit != 0
	default:
		return c.mcounteren.ReadUnchecked()&c.bit != 0 &&
			c.scounteren.ReadUnchecked()&c.bit != 0
	}
}

func (c *UserCounter) ReadChecked(a Access) (uint64, *trap.Trap) {
	if !c.visible(a) {
		return 0, a.illegal()
	}
	return c.read(), nil
}

func (c *UserCounter) WriteChecked(a Access, v uint64) *trap.Trap {
	return a.illegal()
}

// FPState is the shared backing for fflags, frm and fcsr. Updating any field
// marks mstatus.FS dirty.
type FPState struct {
	fflags  uint64
	frm     uint64
	mstatus *MStatus
}

func NewFPState(mstatus *MStatus) *FPState { return &FPState{mstatus: mstatus} }

// Flags returns the accumulated exception flags.
func (f *FPState) Flags() uint64 { return f.fflags }

// Frm returns the dynamic rounding mode.
func (f *FPState) Frm() uint64 { return f.frm }

// AccrueFlags ORs new exception flags in and dirties FS.
func (f *FPState) AccrueFlags(flags uint64) {
	if flags == 0 {
		return
	}
	f.fflags |= flags & FFlagsMask
	f.mstatus.SetFSDirty()
}

func (f *FPState) gate(a Access) *trap.Trap {
	if f.mstatus.FS() == FSOff {
		return a.illegal()
	}
	return nil
}

type fflagsCSR struct{ fp *FPState }

func (c fflagsCSR) ReadUnchecked() uint64 { return c.fp.fflags }
func (c fflagsCSR) WriteUnchecked(v uint64) {
	c.fp.fflags = v & FFlagsMask
	c.fp.mstatus.SetFSDirty()
}

func (c fflagsCSR) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := c.fp.gate(a); t != nil {
		return 0, t
	}
	return c.fp.fflags, nil
}

func (c fflagsCSR) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := c.fp.gate(a); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

type frmCSR struct{ fp *FPState }

func (c frmCSR) ReadUnchecked() uint64 { return c.fp.frm }
func (c frmCSR) WriteUnchecked(v uint64) {
	c.fp.frm = v & FrmMask
	c.fp.mstatus.SetFSDirty()
}

func (c frmCSR) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := c.fp.gate(a); t != nil {
		return 0, t
	}
	return c.fp.frm, nil
}

func (c frmCSR) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := c.fp.gate(a); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// fcsrCSR is the packed view: fflags in [4:0], frm in [7:5]. Writes
// decompose into the two fields.
type fcsrCSR struct{ fp *FPState }

func (c fcsrCSR) ReadUnchecked() uint64 {
	return c.fp.fflags | c.fp.frm<<FcsrFrmOff
}

func (c fcsrCSR) WriteUnchecked(v uint64) {
	c.fp.fflags = v & FFlagsMask
	c.fp.frm = (v >> FcsrFrmOff) & FrmMask
	c.fp.mstatus.SetFSDirty()
}

func (c fcsrCSR) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := c.fp.gate(a); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c fcsrCSR) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := c.fp.gate(a); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}
