package hart

import (
	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/dram"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// nanBoxHigh is the upper half of a NaN-boxed single-precision value.
const nanBoxHigh uint64 = 0xFFFF_FFFF_0000_0000

// canonicalNaN32 is the single-precision canonical quiet NaN returned when a
// 32-bit read observes a non-boxed register.
const canonicalNaN32 uint32 = 0x7FC0_0000

// Hart is the execution context: PC, integer and floating-point register
// files, the CSR table and the current privilege level. Only the CPU worker
// mutates it.
type Hart struct {
	PC   uint64
	Priv trap.Privilege

	gprs [32]uint64
	fprs [32]uint64

	CSRs *csr.File

	mstatus *csr.MStatus
	mip     *csr.Mip
	mie     *csr.Plain
	mideleg *csr.AtomicReg
	medeleg *csr.Plain
}

// New builds a hart resetting at the DRAM base in M-mode.
func New() *Hart {
	f := csr.NewFile()
	return &Hart{
		PC:      dram.Base,
		Priv:    trap.PrivM,
		CSRs:    f,
		mstatus: f.MStatus(),
		mip:     f.Mip(),
		mie:     f.Mie(),
		mideleg: f.MIDeleg(),
		medeleg: f.MEDeleg(),
	}
}

// ReadReg reads integer register idx; x0 always reads zero.
func (h *Hart) ReadReg(idx uint32) uint64 {
	if idx == 0 {
		return 0
	}
	return h.gprs[idx]
}

// WriteReg writes integer register idx; writes to x0 are dropped.
func (h *Hart) WriteReg(idx uint32, v uint64) {
	if idx != 0 {
		h.gprs[idx] = v
	}
}

// ReadF64 reads the raw 64-bit pattern of floating register idx.
func (h *Hart) ReadF64(idx uint32) uint64 {
	return h.fprs[idx]
}

// WriteF64 stores a raw 64-bit pattern into floating register idx.
func (h *Hart) WriteF64(idx uint32, v uint64) {
	h.fprs[idx] = v
}

// ReadF32 reads the single-precision view of floating register idx. A value
// that is not NaN-boxed yields the canonical quiet NaN without altering
// storage.
func (h *Hart) ReadF32(idx uint32) uint32 {
	v := h.fprs[idx]
	if v&nanBoxHigh != nanBoxHigh {
		return canonicalNaN32
	}
	return uint32(v)
}

// WriteF32 NaN-boxes a single-precision pattern into floating register idx.
func (h *Hart) WriteF32(idx uint32, v uint32) {
	h.fprs[idx] = nanBoxHigh | uint64(v)
}

// Access builds the CSR access context for the current instruction.
func (h *Hart) Access(pc uint64, raw uint32) csr.Access {
	return csr.Access{PC: pc, Raw: raw, Priv: h.Priv}
}

// SetInterruptPending asserts or deasserts pending bits in mip. Safe to call
// from device goroutines.
func (h *Hart) SetInterruptPending(mask uint64, level bool) {
	if level {
		h.mip.SetBits(mask)
	} else {
		h.mip.ClearBits(mask)
	}
}

// HandleTrap applies a trap to architectural state: target selection via
// delegation, xepc/xcause/xtval, the xPIE/xPP/xIE shuffle, and the vector
// jump.
func (h *Hart) HandleTrap(t *trap.Trap) {
	code := t.Cause.Code()

	deleg := false
	if h.Priv <= trap.PrivS {
		if t.Cause.IsInterrupt() {
			deleg = h.mideleg.ReadUnchecked()&(uint64(1)<<code) != 0
		} else {
			deleg = h.medeleg.ReadUnchecked()&(uint64(1)<<code) != 0
		}
	}

	if deleg {
		f := h.CSRs
		f.Sepc().WriteUnchecked(t.PC)
		f.SCause().WriteUnchecked(uint64(t.Cause))
		f.Stval().WriteUnchecked(t.TVal)

		sie := h.mstatus.Field(csr.StatusSIE) >> csr.StatusSIEShift
		h.mstatus.SetField(csr.StatusSPIE, sie<<csr.StatusSPIEShift)
		h.mstatus.SetField(csr.StatusSPP, uint64(h.Priv)<<csr.StatusSPPShift)
		h.mstatus.SetField(csr.StatusSIE, 0)

		h.PC = vector(f.Stvec().ReadUnchecked(), t.Cause)
		h.Priv = trap.PrivS
		return
	}

	f := h.CSRs
	f.Mepc().WriteUnchecked(t.PC)
	f.MCause().WriteUnchecked(uint64(t.Cause))
	f.Mtval().WriteUnchecked(t.TVal)

	mie := h.mstatus.Field(csr.StatusMIE) >> csr.StatusMIEShift
	h.mstatus.SetField(csr.StatusMPIE, mie<<csr.StatusMPIEShift)
	h.mstatus.SetField(csr.StatusMPP, uint64(h.Priv)<<csr.StatusMPPShift)
	h.mstatus.SetField(csr.StatusMIE, 0)

	h.PC = vector(f.Mtvec().ReadUnchecked(), t.Cause)
	h.Priv = trap.PrivM
}

func vector(tvec uint64, cause trap.Cause) uint64 {
	base := tvec & csr.TvecBaseMask
	if tvec&csr.TvecModeMask == csr.TvecModeVectored && cause.IsInterrupt() {
		return base + 4*cause.Code()
	}
	return base
}

// interrupt priority order within each target set.
var machineOrder = []uint64{csr.IntMEI, csr.IntMSI, csr.IntMTI}
var supervisorOrder = []uint64{csr.IntSEI, csr.IntSSI, csr.IntSTI}

// PendingInterrupt evaluates interrupt eligibility at the top of a cycle and
// returns the cause to take, if any. Machine-targeted interrupts outrank
// supervisor-targeted ones.
func (h *Hart) PendingInterrupt() (trap.Cause, bool) {
	pending := h.mip.ReadUnchecked() & h.mie.ReadUnchecked()
	if pending == 0 {
		return 0, false
	}

	deleg := h.mideleg.ReadUnchecked()
	mPending := pending &^ deleg
	sPending := pending & deleg

	takeM := h.Priv < trap.PrivM ||
		(h.Priv == trap.PrivM && h.mstatus.Field(csr.StatusMIE) != 0)
	if takeM && mPending != 0 {
		for _, bit := range machineOrder {
			if mPending&bit != 0 {
				return interruptCause(bit), true
			}
		}
	}

	takeS := h.Priv < trap.PrivS ||
		(h.Priv == trap.PrivS && h.mstatus.Field(csr.StatusSIE) != 0)
	if takeS && sPending != 0 {
		for _, bit := range supervisorOrder {
			if sPending&bit != 0 {
				return interruptCause(bit), true
			}
		}
	}

	return 0, false
}

func interruptCause(bit uint64) trap.Cause {
	switch bit {
	case csr.IntSSI:
		return trap.SupervisorSoftwareInterrupt
	case csr.IntMSI:
		return trap.MachineSoftwareInterrupt
	case csr.IntSTI:
		return trap.SupervisorTimerInterrupt
	case csr.IntMTI:
		return trap.MachineTimerInterrupt
	case csr.IntSEI:
		return trap.SupervisorExternalInterrupt
	default:
		return trap.MachineExternalInterrupt
	}
}
