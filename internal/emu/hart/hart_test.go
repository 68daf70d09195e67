package hart

import (
	"testing"

	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/dram"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func TestResetState(t *testing.T) {
	h := New()

	if h.PC != dram.Base {
		t.Errorf("reset PC = %#x, want %#x", h.PC, dram.Base)
	}
	if h.Priv != trap.PrivM {
		t.Errorf("reset privilege = %v, want M", h.Priv)
	}
}

func TestX0Hardwired(t *testing.T) {
	h := New()

	h.WriteReg(0, 0xDEAD)
	if got := h.ReadReg(0); got != 0 {
		t.Errorf("x0 = %#x after write", got)
	}

	h.WriteReg(5, 42)
	if got := h.ReadReg(5); got != 42 {
		t.Errorf("x5 = %d", got)
	}
}

func TestNaNBoxing(t *testing.T) {
	h := New()

	// A freshly written 32-bit value reads back unchanged.
	h.WriteF32(1, 0x3F80_0000) // 1.0f
	if got := h.ReadF32(1); got != 0x3F80_0000 {
		t.Errorf("ReadF32 = %#x", got)
	}
	if got := h.ReadF64(1); got != 0xFFFF_FFFF_3F80_0000 {
		t.Errorf("boxed pattern = %#x", got)
	}

	// A 64-bit value that is not boxed reads as the canonical qNaN, and the
	// storage itself is untouched.
	h.WriteF64(2, 0x4000_0000_0000_0000) // 2.0
	if got := h.ReadF32(2); got != 0x7FC0_0000 {
		t.Errorf("unboxed read = %#x, want canonical qNaN", got)
	}
	if got := h.ReadF64(2); got != 0x4000_0000_0000_0000 {
		t.Errorf("storage altered by 32-bit read: %#x", got)
	}
}

func TestTrapDispatchToMachine(t *testing.T) {
	h := New()
	h.CSRs.Mtvec().WriteUnchecked(0x8000_4000)
	h.CSRs.MStatus().SetField(csr.StatusMIE, csr.StatusMIE)
	h.Priv = trap.PrivU

	h.HandleTrap(trap.New(0x8000_0100, trap.IllegalInstruction, 0xBEEF))

	if h.PC != 0x8000_4000 {
		t.Errorf("PC = %#x, want mtvec base", h.PC)
	}
	if h.Priv != trap.PrivM {
		t.Errorf("priv = %v, want M", h.Priv)
	}
	if got := h.CSRs.Mepc().ReadUnchecked(); got != 0x8000_0100 {
		t.Errorf("mepc = %#x", got)
	}
	if got := h.CSRs.MCause().ReadUnchecked(); got != uint64(trap.IllegalInstruction) {
		t.Errorf("mcause = %#x", got)
	}
	if got := h.CSRs.Mtval().ReadUnchecked(); got != 0xBEEF {
		t.Errorf("mtval = %#x", got)
	}

	st := h.CSRs.MStatus()
	if st.Field(csr.StatusMIE) != 0 {
		t.Error("MIE not cleared")
	}
	if st.Field(csr.StatusMPIE) == 0 {
		t.Error("MPIE did not capture prior MIE")
	}
	if got := st.Field(csr.StatusMPP) >> csr.StatusMPPShift; got != uint64(trap.PrivU) {
		t.Errorf("MPP = %d, want U", got)
	}
}

func TestTrapDelegationToSupervisor(t *testing.T) {
	h := New()
	h.CSRs.Stvec().WriteUnchecked(0x8000_8000)
	h.CSRs.MEDeleg().WriteUnchecked(1 << uint64(trap.EnvironmentCallFromU))
	h.Priv = trap.PrivU

	h.HandleTrap(trap.New(0x8000_0200, trap.EnvironmentCallFromU, 0))

	if h.Priv != trap.PrivS {
		t.Fatalf("priv = %v, want S", h.Priv)
	}
	if h.PC != 0x8000_8000 {
		t.Errorf("PC = %#x, want stvec base", h.PC)
	}
	if got := h.CSRs.Sepc().ReadUnchecked(); got != 0x8000_0200 {
		t.Errorf("sepc = %#x", got)
	}
	if got := h.CSRs.SCause().ReadUnchecked(); got != uint64(trap.EnvironmentCallFromU) {
		t.Errorf("scause = %#x", got)
	}
	if got := h.CSRs.MStatus().Field(csr.StatusSPP); got != 0 {
		t.Errorf("SPP = %#x, want U", got)
	}
}

func TestTrapFromMachineNeverDelegates(t *testing.T) {
	h := New()
	h.CSRs.Mtvec().WriteUnchecked(0x8000_4000)
	h.CSRs.Stvec().WriteUnchecked(0x8000_8000)
	h.CSRs.MEDeleg().WriteUnchecked(^uint64(0))

	h.HandleTrap(trap.New(0x8000_0300, trap.Breakpoint, 0x8000_0300))

	if h.Priv != trap.PrivM || h.PC != 0x8000_4000 {
		t.Errorf("M-mode trap delegated: priv=%v pc=%#x", h.Priv, h.PC)
	}
}

func TestVectoredInterruptDispatch(t *testing.T) {
	h := New()
	h.CSRs.Mtvec().WriteUnchecked(0x8000_4000 | 1)

	h.HandleTrap(trap.New(0x8000_0000, trap.MachineTimerInterrupt, 0))
	if h.PC != 0x8000_4000+4*7 {
		t.Errorf("vectored PC = %#x, want base+4*7", h.PC)
	}

	// Exceptions ignore vectoring.
	h.HandleTrap(trap.New(0x8000_0000, trap.IllegalInstruction, 0))
	if h.PC != 0x8000_4000 {
		t.Errorf("exception PC = %#x, want base", h.PC)
	}
}

func TestPendingInterruptEligibility(t *testing.T) {
	h := New()
	f := h.CSRs

	// Nothing pending.
	if _, ok := h.PendingInterrupt(); ok {
		t.Fatal("interrupt with empty mip")
	}

	f.Mip().SetBits(csr.IntMTI)
	f.Mie().WriteUnchecked(csr.IntMTI)

	// M-mode with MIE clear: masked.
	if _, ok := h.PendingInterrupt(); ok {
		t.Error("M-mode interrupt taken with MIE clear")
	}

	f.MStatus().SetField(csr.StatusMIE, csr.StatusMIE)
	cause, ok := h.PendingInterrupt()
	if !ok || cause != trap.MachineTimerInterrupt {
		t.Errorf("cause = %#x, ok=%v", uint64(cause), ok)
	}

	// Lower privilege always takes machine interrupts.
	f.MStatus().SetField(csr.StatusMIE, 0)
	h.Priv = trap.PrivU
	if _, ok := h.PendingInterrupt(); !ok {
		t.Error("U-mode did not take a machine interrupt")
	}
}

func TestInterruptPriorityOrder(t *testing.T) {
	h := New()
	f := h.CSRs

	f.Mie().WriteUnchecked(csr.IntAll)
	f.MIDeleg().WriteUnchecked(csr.IntSupervisorSet)
	f.MStatus().SetField(csr.StatusMIE, csr.StatusMIE)

	// All pending: MEI wins.
	f.Mip().SetBits(csr.IntAll)
	cause, ok := h.PendingInterrupt()
	if !ok || cause != trap.MachineExternalInterrupt {
		t.Fatalf("cause = %#x, want MEI", uint64(cause))
	}

	// Machine set drained: supervisor external is next, but only when the
	// S-set is enabled for the current privilege.
	f.Mip().ClearBits(csr.IntMachineSet)
	h.Priv = trap.PrivU
	cause, ok = h.PendingInterrupt()
	if !ok || cause != trap.SupervisorExternalInterrupt {
		t.Fatalf("cause = %#x, want SEI", uint64(cause))
	}

	// S-mode honors SIE for delegated interrupts.
	h.Priv = trap.PrivS
	if _, ok := h.PendingInterrupt(); ok {
		t.Error("S interrupt taken with SIE clear")
	}
	f.MStatus().SetField(csr.StatusSIE, csr.StatusSIE)
	if _, ok := h.PendingInterrupt(); !ok {
		t.Error("S interrupt not taken with SIE set")
	}
}

func TestSetInterruptPendingFromDevice(t *testing.T) {
	h := New()

	h.SetInterruptPending(csr.IntMEI, true)
	if h.CSRs.Mip().ReadUnchecked()&csr.IntMEI == 0 {
		t.Error("MEIP not asserted")
	}
	h.SetInterruptPending(csr.IntMEI, false)
	if h.CSRs.Mip().ReadUnchecked()&csr.IntMEI != 0 {
		t.Error("MEIP not deasserted")
	}
}
