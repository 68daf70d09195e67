package mmu

import (
	"github.com/uemu-dev/uemu/internal/emu/bus"
	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// AccessType selects the permission and fault flavor of a memory access.
type AccessType int

const (
	AccessFetch AccessType = iota
	AccessLoad
	AccessStore
)

// Sv39 parameters.
const (
	pageShift   = 12
	pageMask    = (1 << pageShift) - 1
	sv39Levels  = 3
	vpnBits     = 9
	pteSize     = 8
	sv39VABits  = 39
)

// PTE fields.
const (
	pteV uint64 = 1 << 0
	pteR uint64 = 1 << 1
	pteW uint64 = 1 << 2
	pteX uint64 = 1 << 3
	pteU uint64 = 1 << 4
	pteA uint64 = 1 << 6
	pteD uint64 = 1 << 7

	ptePPNShift = 10
	ptePPNMask  = (uint64(1) << 44) - 1

	// Bits 63:54 hold reserved, PBMT and N fields, none of which are
	// implemented; a PTE with any of them set is malformed.
	pteUpperMask uint64 = ^((uint64(1) << 54) - 1)
)

// MMU performs address translation and typed memory access for one hart. It
// also owns the hart's LR/SC reservation.
type MMU struct {
	hart *hart.Hart
	bus  *bus.Bus

	mstatus *csr.MStatus
	satp    *csr.Satp
	menvcfg *csr.AtomicReg

	resValid bool
	resAddr  uint64
}

// New builds an MMU bound to the hart's CSR file and the bus.
func New(h *hart.Hart, b *bus.Bus) *MMU {
	return &MMU{
		hart:    h,
		bus:     b,
		mstatus: h.CSRs.MStatus(),
		satp:    h.CSRs.Satp(),
		menvcfg: h.CSRs.MEnvCfg(),
	}
}

func pageFaultCause(access AccessType) trap.Cause {
	switch access {
	case AccessFetch:
		return trap.InstructionPageFault
	case AccessLoad:
		return trap.LoadPageFault
	default:
		return trap.StoreAMOPageFault
	}
}

func accessFaultCause(access AccessType) trap.Cause {
	switch access {
	case AccessFetch:
		return trap.InstructionAccessFault
	case AccessLoad:
		return trap.LoadAccessFault
	default:
		return trap.StoreAMOAccessFault
	}
}

// effectivePriv selects the privilege used for translation: loads and stores
// honor mstatus.MPRV, fetches always use the hart privilege.
func (m *MMU) effectivePriv(access AccessType) trap.Privilege {
	if access != AccessFetch && m.mstatus.Field(csr.StatusMPRV) != 0 {
		return trap.Privilege(m.mstatus.Field(csr.StatusMPP) >> csr.StatusMPPShift)
	}
	return m.hart.Priv
}

// Translate maps a virtual address to a physical one for the given access
// type. pc is the address of the executing instruction, used for the trap
// record.
func (m *MMU) Translate(pc, vaddr uint64, access AccessType) (uint64, *trap.Trap) {
	priv := m.effectivePriv(access)
	if priv == trap.PrivM {
		return vaddr, nil
	}

	satp := m.satp.ReadUnchecked()
	if satp>>csr.SatpModeShift == csr.SatpModeBare {
		return vaddr, nil
	}

	return m.walkSv39(pc, vaddr, access, priv, satp)
}

func (m *MMU) walkSv39(pc, vaddr uint64, access AccessType, priv trap.Privilege, satp uint64) (uint64, *trap.Trap) {
	// The upper 25 bits must be the sign extension of bit 38.
	if uint64(int64(vaddr<<(64-sv39VABits))>>(64-sv39VABits)) != vaddr {
		return 0, trap.New(pc, pageFaultCause(access), vaddr)
	}

	a := (satp & csr.SatpPPNMask) << pageShift

	for level := sv39Levels - 1; level >= 0; level-- {
		vpn := (vaddr >> (pageShift + vpnBits*level)) & ((1 << vpnBits) - 1)
		pteAddr := a + vpn*pteSize

		pte, ok := m.bus.Read64(pteAddr)
		if !ok {
			return 0, trap.New(pc, accessFaultCause(access), vaddr)
		}

		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) || pte&pteUpperMask != 0 {
			return 0, trap.New(pc, pageFaultCause(access), vaddr)
		}

		if pte&(pteR|pteX) == 0 {
			// Non-leaf: A, D and U must be clear.
			if pte&(pteA|pteD|pteU) != 0 {
				return 0, trap.New(pc, pageFaultCause(access), vaddr)
			}
			a = ((pte >> ptePPNShift) & ptePPNMask) << pageShift
			continue
		}

		ppn := (pte >> ptePPNShift) & ptePPNMask

		// Superpage alignment: the PPN bits replaced by VA bits must be zero.
		if level > 0 && ppn&((1<<(vpnBits*level))-1) != 0 {
			return 0, trap.New(pc, pageFaultCause(access), vaddr)
		}

		if priv == trap.PrivS {
			if pte&pteU != 0 {
				if access == AccessFetch || m.mstatus.Field(csr.StatusSUM) == 0 {
					return 0, trap.New(pc, pageFaultCause(access), vaddr)
				}
			}
		} else if pte&pteU == 0 {
			return 0, trap.New(pc, pageFaultCause(access), vaddr)
		}

		switch access {
		case AccessFetch:
			if pte&pteX == 0 {
				return 0, trap.New(pc, pageFaultCause(access), vaddr)
			}
		case AccessLoad:
			readable := pte&pteR != 0 ||
				(pte&pteX != 0 && m.mstatus.Field(csr.StatusMXR) != 0)
			if !readable {
				return 0, trap.New(pc, pageFaultCause(access), vaddr)
			}
		case AccessStore:
			if pte&pteW == 0 {
				return 0, trap.New(pc, pageFaultCause(access), vaddr)
			}
		}

		needUpdate := pte&pteA == 0 || (access == AccessStore && pte&pteD == 0)
		if needUpdate {
			if m.menvcfg.ReadUnchecked()&csr.EnvCfgADUE == 0 {
				return 0, trap.New(pc, pageFaultCause(access), vaddr)
			}
			pte |= pteA
			if access == AccessStore {
				pte |= pteD
			}
			if !m.bus.Write64(pteAddr, pte) {
				return 0, trap.New(pc, accessFaultCause(access), vaddr)
			}
		}

		mask := uint64(1)<<(pageShift+vpnBits*level) - 1
		pa := (ppn << pageShift) &^ mask
		return pa | (vaddr & mask), nil
	}

	return 0, trap.New(pc, pageFaultCause(access), vaddr)
}

// translateBytes translates every byte of a misaligned access and verifies
// the bus covers it before any byte is committed.
func (m *MMU) translateBytes(pc, vaddr uint64, size int, access AccessType) ([]uint64, *trap.Trap) {
	pas := make([]uint64, size)
	for i := 0; i < size; i++ {
		pa, t := m.Translate(pc, vaddr+uint64(i), access)
		if t != nil {
			t.TVal = vaddr
			return nil, t
		}
		if !m.bus.Accessible(pa) {
			return nil, trap.New(pc, accessFaultCause(access), vaddr)
		}
		pas[i] = pa
	}
	return pas, nil
}

func (m *MMU) readMisaligned(pc, vaddr uint64, size int) (uint64, *trap.Trap) {
	pas, t := m.translateBytes(pc, vaddr, size, AccessLoad)
	if t != nil {
		return 0, t
	}
	var v uint64
	for i, pa := range pas {
		b, ok := m.bus.Read8(pa)
		if !ok {
			return 0, trap.New(pc, trap.LoadAccessFault, vaddr)
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func (m *MMU) writeMisaligned(pc, vaddr uint64, size int, v uint64) *trap.Trap {
	pas, t := m.translateBytes(pc, vaddr, size, AccessStore)
	if t != nil {
		return t
	}
	for i, pa := range pas {
		if !m.bus.Write8(pa, uint8(v>>(8*i))) {
			return trap.New(pc, trap.StoreAMOAccessFault, vaddr)
		}
	}
	return nil
}

// Read8 loads one byte at vaddr.
func (m *MMU) Read8(pc, vaddr uint64) (uint8, *trap.Trap) {
	pa, t := m.Translate(pc, vaddr, AccessLoad)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read8(pa)
	if !ok {
		return 0, trap.New(pc, trap.LoadAccessFault, vaddr)
	}
	return v, nil
}

// Read16 loads a halfword at vaddr, misaligned allowed.
func (m *MMU) Read16(pc, vaddr uint64) (uint16, *trap.Trap) {
	if vaddr&1 != 0 {
		v, t := m.readMisaligned(pc, vaddr, 2)
		return uint16(v), t
	}
	pa, t := m.Translate(pc, vaddr, AccessLoad)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read16(pa)
	if !ok {
		return 0, trap.New(pc, trap.LoadAccessFault, vaddr)
	}
	return v, nil
}

// Read32 loads a word at vaddr, misaligned allowed.
func (m *MMU) Read32(pc, vaddr uint64) (uint32, *trap.Trap) {
	if vaddr&3 != 0 {
		v, t := m.readMisaligned(pc, vaddr, 4)
		return uint32(v), t
	}
	pa, t := m.Translate(pc, vaddr, AccessLoad)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read32(pa)
	if !ok {
		return 0, trap.New(pc, trap.LoadAccessFault, vaddr)
	}
	return v, nil
}

// Read64 loads a doubleword at vaddr, misaligned allowed.
func (m *MMU) Read64(pc, vaddr uint64) (uint64, *trap.Trap) {
	if vaddr&7 != 0 {
		return m.readMisaligned(pc, vaddr, 8)
	}
	pa, t := m.Translate(pc, vaddr, AccessLoad)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read64(pa)
	if !ok {
		return 0, trap.New(pc, trap.LoadAccessFault, vaddr)
	}
	return v, nil
}

// Write8 stores one byte at vaddr.
func (m *MMU) Write8(pc, vaddr uint64, v uint8) *trap.Trap {
	m.noteStore(vaddr)
	pa, t := m.Translate(pc, vaddr, AccessStore)
	if t != nil {
		return t
	}
	if !m.bus.Write8(pa, v) {
		return trap.New(pc, trap.StoreAMOAccessFault, vaddr)
	}
	return nil
}

// Write16 stores a halfword at vaddr, misaligned allowed.
func (m *MMU) Write16(pc, vaddr uint64, v uint16) *trap.Trap {
	m.noteStore(vaddr)
	if vaddr&1 != 0 {
		return m.writeMisaligned(pc, vaddr, 2, uint64(v))
	}
	pa, t := m.Translate(pc, vaddr, AccessStore)
	if t != nil {
		return t
	}
	if !m.bus.Write16(pa, v) {
		return trap.New(pc, trap.StoreAMOAccessFault, vaddr)
	}
	return nil
}

// Write32 stores a word at vaddr, misaligned allowed.
func (m *MMU) Write32(pc, vaddr uint64, v uint32) *trap.Trap {
	m.noteStore(vaddr)
	if vaddr&3 != 0 {
		return m.writeMisaligned(pc, vaddr, 4, uint64(v))
	}
	pa, t := m.Translate(pc, vaddr, AccessStore)
	if t != nil {
		return t
	}
	if !m.bus.Write32(pa, v) {
		return trap.New(pc, trap.StoreAMOAccessFault, vaddr)
	}
	return nil
}

// Write64 stores a doubleword at vaddr, misaligned allowed.
func (m *MMU) Write64(pc, vaddr uint64, v uint64) *trap.Trap {
	m.noteStore(vaddr)
	if vaddr&7 != 0 {
		return m.writeMisaligned(pc, vaddr, 8, v)
	}
	pa, t := m.Translate(pc, vaddr, AccessStore)
	if t != nil {
		return t
	}
	if !m.bus.Write64(pa, v) {
		return trap.New(pc, trap.StoreAMOAccessFault, vaddr)
	}
	return nil
}

// Fetch reads the instruction at pc. An instruction whose first halfword
// sits in the final two bytes of a page is fetched in two 16-bit reads so a
// fault on the second half carries pc+2.
func (m *MMU) Fetch(pc uint64) (uint32, *trap.Trap) {
	if pc&pageMask == pageMask-1 {
		// Only the final two bytes of this page are usable.
		low, t := m.fetch16(pc, pc)
		if t != nil {
			return 0, t
		}
		if low&3 != 3 {
			return uint32(low), nil
		}
		high, t := m.fetch16(pc, pc+2)
		if t != nil {
			return 0, t
		}
		return uint32(low) | uint32(high)<<16, nil
	}

	pa, t := m.Translate(pc, pc, AccessFetch)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read32(pa)
	if !ok {
		return 0, trap.New(pc, trap.InstructionAccessFault, pc)
	}
	return v, nil
}

func (m *MMU) fetch16(pc, vaddr uint64) (uint16, *trap.Trap) {
	pa, t := m.Translate(pc, vaddr, AccessFetch)
	if t != nil {
		return 0, t
	}
	v, ok := m.bus.Read16(pa)
	if !ok {
		return 0, trap.New(pc, trap.InstructionAccessFault, vaddr)
	}
	return v, nil
}

// LoadReserve records the reservation for an LR.
func (m *MMU) LoadReserve(addr uint64) {
	m.resValid = true
	m.resAddr = addr
}

// CheckReservation reports whether an SC at addr may succeed. The
// reservation is consumed either way.
func (m *MMU) CheckReservation(addr uint64) bool {
	ok := m.resValid && m.resAddr == addr
	m.resValid = false
	return ok
}

// noteStore invalidates the reservation when an ordinary store hits the
// reserved doubleword.
func (m *MMU) noteStore(addr uint64) {
	if m.resValid && addr&^uint64(7) == m.resAddr&^uint64(7) {
		m.resValid = false
	}
}
