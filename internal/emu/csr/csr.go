package csr

import (
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// Access identifies the CSR instruction performing a checked access. The raw
// encoding becomes tval when the access is rejected.
type Access struct {
	PC   uint64
	Raw  uint32
	Priv trap.Privilege
}

func (a Access) illegal() *trap.Trap {
	return trap.New(a.PC, trap.IllegalInstruction, uint64(a.Raw))
}

// CSR is one slot of the 4096-entry control register file.
//
// The unchecked pair bypasses privilege checks and is used by hardware-side
// updates (trap dispatch, devices). The checked pair is used by the CSR
// instructions and enforces privilege plus any per-register gates.
type CSR interface {
	ReadUnchecked() uint64
	WriteUnchecked(v uint64)
	ReadChecked(a Access) (uint64, *trap.Trap)
	WriteChecked(a Access, v uint64) *trap.Trap
}

// addrPriv derives the minimum privilege from the standard CSR address
// layout: bits [9:8] encode the lowest privilege that may access the
// register, bits [11:10] == 3 mark it read-only.
func addrPriv(addr uint32) trap.Privilege {
	switch (addr >> 8) & 3 {
	case 0:
		return trap.PrivU
	case 1, 2:
		return trap.PrivS
	default:
		return trap.PrivM
	}
}

func addrReadOnly(addr uint32) bool {
	return (addr>>10)&3 == 3
}

// checkAccess applies the address-encoded privilege and read-only rules.
func checkAccess(addr uint32, a Access, forWrite bool) *trap.Trap {
	if a.Priv < addrPriv(addr) {
		return a.illegal()
	}
	if forWrite && addrReadOnly(addr) {
		return a.illegal()
	}
	return nil
}

// Plain is simple storage with optional read and write masks.
type Plain struct {
	addr      uint32
	value     uint64
	readMask  uint64
	writeMask uint64
}

// NewPlain builds storage with all bits readable and writable.
func NewPlain(addr uint32, reset uint64) *Plain {
	return NewMasked(addr, reset, ^uint64(0), ^uint64(0))
}

// NewMasked builds storage exposing readMask on reads and accepting
// writeMask on writes.
func NewMasked(addr uint32, reset, readMask, writeMask uint64) *Plain {
	return &Plain{addr: addr, value: reset, readMask: readMask, writeMask: writeMask}
}

func (c *Plain) ReadUnchecked() uint64 { return c.value & c.readMask }

func (c *Plain) WriteUnchecked(v uint64) {
	c.value = (c.value &^ c.writeMask) | (v & c.writeMask)
}

func (c *Plain) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.ReadUnchecked(), nil
}

func (c *Plain) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	c.WriteUnchecked(v)
	return nil
}

// Hardwired reads a fixed value and ignores all writes, checked or not.
type Hardwired struct {
	addr  uint32
	value uint64
}

func NewHardwired(addr uint32, value uint64) *Hardwired {
	return &Hardwired{addr: addr, value: value}
}

func (c *Hardwired) ReadUnchecked() uint64 { return c.value }
func (c *Hardwired) WriteUnchecked(uint64) {}

func (c *Hardwired) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.value, nil
}

func (c *Hardwired) WriteChecked(a Access, v uint64) *trap.Trap {
	return checkAccess(c.addr, a, true)
}

// Const is read-only: the value may be mirrored dynamically through the read
// function, and any checked write raises Illegal Instruction.
type Const struct {
	addr uint32
	read func() uint64
}

// NewConst builds a read-only register with a fixed value.
func NewConst(addr uint32, value uint64) *Const {
	return &Const{addr: addr, read: func() uint64 { return value }}
}

// NewConstFunc builds a read-only register whose value is computed on each
// read (mirrors).
func NewConstFunc(addr uint32, read func() uint64) *Const {
	return &Const{addr: addr, read: read}
}

func (c *Const) ReadUnchecked() uint64 { return c.read() }
func (c *Const) WriteUnchecked(uint64) {}

func (c *Const) ReadChecked(a Access) (uint64, *trap.Trap) {
	if t := checkAccess(c.addr, a, false); t != nil {
		return 0, t
	}
	return c.read(), nil
}

func (c *Const) WriteChecked(a Access, v uint64) *trap.Trap {
	if t := checkAccess(c.addr, a, true); t != nil {
		return t
	}
	return a.illegal()
}

// Unimplemented occupies a slot with no architected register behind it. The
// unchecked pair is inert so hardware paths never fault; any checked access
// raises Illegal Instruction.
type Unimplemented struct{}

func (Unimplemented) ReadUnchecked() uint64 { return 0 }
func (Unimplemented) WriteUnchecked(uint64) {}

func (Unimplemented) ReadChecked(a Access) (uint64, *trap.Trap) {
	return 0, a.illegal()
}

func (Unimplemented) WriteChecked(a Access, v uint64) *trap.Trap {
	return a.illegal()
}
