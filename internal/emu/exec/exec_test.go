package exec

import (
	"testing"

	"github.com/uemu-dev/uemu/internal/emu/bus"
	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/dram"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

type machine struct {
	h *hart.Hart
	b *bus.Bus
	m *mmu.MMU
}

func newMachine(t *testing.T) *machine {
	t.Helper()
	d := dram.New(1 << 20)
	b := bus.New(d)
	h := hart.New()
	return &machine{h: h, b: b, m: mmu.New(h, b)}
}

// step decodes and executes one instruction, mimicking the engine's PC
// handling.
func (mc *machine) step(t *testing.T, raw uint32) *trap.Trap {
	t.Helper()
	d := decode.Decode(raw, mc.h.PC)
	mc.h.PC = d.PC + d.Len
	return Dispatch(mc.h, mc.m, &d)
}

func (mc *machine) mustStep(t *testing.T, raw uint32) {
	t.Helper()
	if tr := mc.step(t, raw); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
}

func TestAluWrapping(t *testing.T) {
	mc := newMachine(t)

	mc.h.WriteReg(6, ^uint64(0)) // x6 = -1
	mc.mustStep(t, 0x0013_0293)  // addi x5, x6, 1 -> wraps to 0
	if got := mc.h.ReadReg(5); got != 0 {
		t.Errorf("x5 = %#x, want 0", got)
	}
}

func TestWVariantSignExtension(t *testing.T) {
	mc := newMachine(t)

	mc.h.WriteReg(6, 0x7FFF_FFFF)
	mc.mustStep(t, 0x0013_029B) // addiw x5, x6, 1 -> 0x80000000 sign-extended
	if got := mc.h.ReadReg(5); got != 0xFFFF_FFFF_8000_0000 {
		t.Errorf("x5 = %#x", got)
	}
}

func TestShiftAmountMasking(t *testing.T) {
	mc := newMachine(t)

	mc.h.WriteReg(6, 1)
	mc.h.WriteReg(7, 64) // amount masks to 0 for 64-bit shifts
	mc.mustStep(t, 0x0073_12B3) // sll x5, x6, x7
	if got := mc.h.ReadReg(5); got != 1 {
		t.Errorf("sll by 64 = %#x, want 1", got)
	}
}

func TestDivRemEdgeCases(t *testing.T) {
	mc := newMachine(t)

	// div by zero -> all ones.
	mc.h.WriteReg(6, 42)
	mc.h.WriteReg(7, 0)
	mc.mustStep(t, 0x0273_42B3) // div x5, x6, x7
	if got := mc.h.ReadReg(5); got != ^uint64(0) {
		t.Errorf("div/0 = %#x", got)
	}

	// rem by zero -> dividend.
	mc.mustStep(t, 0x0273_62B3) // rem x5, x6, x7
	if got := mc.h.ReadReg(5); got != 42 {
		t.Errorf("rem/0 = %d", got)
	}

	// Signed overflow: INT64_MIN / -1 -> dividend, remainder 0.
	mc.h.WriteReg(6, 1<<63)
	mc.h.WriteReg(7, ^uint64(0))
	mc.mustStep(t, 0x0273_42B3)
	if got := mc.h.ReadReg(5); got != 1<<63 {
		t.Errorf("overflow quotient = %#x", got)
	}
	mc.mustStep(t, 0x0273_62B3)
	if got := mc.h.ReadReg(5); got != 0 {
		t.Errorf("overflow remainder = %d", got)
	}
}

func TestMulh(t *testing.T) {
	mc := newMachine(t)

	mc.h.WriteReg(6, ^uint64(0)) // -1
	mc.h.WriteReg(7, ^uint64(0)) // -1
	mc.mustStep(t, 0x0273_12B3)  // mulh x5, x6, x7 -> high bits of 1
	if got := mc.h.ReadReg(5); got != 0 {
		t.Errorf("mulh(-1,-1) = %#x, want 0", got)
	}

	// mulhu(-1,-1) -> 0xFFFF...FE
	mc.mustStep(t, 0x0273_32B3) // mulhu
	if got := mc.h.ReadReg(5); got != ^uint64(1) {
		t.Errorf("mulhu = %#x, want %#x", got, ^uint64(1))
	}
}

func TestLoadStore(t *testing.T) {
	mc := newMachine(t)
	mc.h.WriteReg(10, dram.Base+0x100)
	mc.h.WriteReg(11, 0xFFFF_FFFF_8000_00EE)

	mc.mustStep(t, 0x00B5_3023) // sd x11, 0(x10)
	mc.mustStep(t, 0x0005_3283) // ld x5, 0(x10)
	if got := mc.h.ReadReg(5); got != 0xFFFF_FFFF_8000_00EE {
		t.Errorf("ld = %#x", got)
	}

	// lbu zero-extends, lb sign-extends.
	mc.mustStep(t, 0x0005_4283) // lbu x5, 0(x10)
	if got := mc.h.ReadReg(5); got != 0xEE {
		t.Errorf("lbu = %#x", got)
	}
	mc.mustStep(t, 0x0005_0283) // lb x5, 0(x10)
	if got := mc.h.ReadReg(5); got != 0xFFFF_FFFF_FFFF_FFEE {
		t.Errorf("lb = %#x", got)
	}
}

func TestBranchTargets(t *testing.T) {
	mc := newMachine(t)
	start := mc.h.PC

	mc.h.WriteReg(1, 7)
	mc.h.WriteReg(2, 7)
	mc.mustStep(t, 0x0020_8863) // beq x1, x2, +16
	if mc.h.PC != start+16 {
		t.Errorf("taken branch PC = %#x, want %#x", mc.h.PC, start+16)
	}

	// Not taken: falls through.
	mc.h.WriteReg(2, 8)
	prev := mc.h.PC
	mc.mustStep(t, 0x0020_8863)
	if mc.h.PC != prev+4 {
		t.Errorf("untaken branch PC = %#x", mc.h.PC)
	}
}

func TestJalrMasksBit0(t *testing.T) {
	mc := newMachine(t)
	ret := mc.h.PC + 4

	mc.h.WriteReg(6, dram.Base+0x201) // odd target
	mc.mustStep(t, 0x0003_00E7)       // jalr x1, 0(x6)
	if mc.h.PC != dram.Base+0x200 {
		t.Errorf("PC = %#x, want bit 0 masked", mc.h.PC)
	}
	if got := mc.h.ReadReg(1); got != ret {
		t.Errorf("link = %#x, want %#x", got, ret)
	}
}

func TestLrScSuccessAndFailure(t *testing.T) {
	mc := newMachine(t)
	addr := dram.Base + 0x400
	mc.h.WriteReg(10, addr)
	mc.h.WriteReg(11, 77)

	mc.mustStep(t, 0x1005_22AF) // lr.w x5, (x10)
	mc.mustStep(t, 0x18B5_22AF) // sc.w x5, x11, (x10)
	if got := mc.h.ReadReg(5); got != 0 {
		t.Fatalf("sc after lr failed: rd = %d", got)
	}
	if v, _ := mc.b.Read32(addr); v != 77 {
		t.Errorf("memory = %d, want 77", v)
	}

	// An intervening store from the same hart kills the reservation.
	mc.mustStep(t, 0x1005_22AF) // lr.w x5, (x10)
	mc.mustStep(t, 0x00B5_2023) // sw x11, 0(x10)
	mc.h.WriteReg(11, 99)
	mc.mustStep(t, 0x18B5_22AF) // sc.w x5, x11, (x10)
	if got := mc.h.ReadReg(5); got != 1 {
		t.Errorf("sc after intervening store: rd = %d, want 1", got)
	}
	if v, _ := mc.b.Read32(addr); v != 77 {
		t.Errorf("memory = %d, want unchanged 77", v)
	}
}

func TestAmoAdd(t *testing.T) {
	mc := newMachine(t)
	addr := dram.Base + 0x500
	mc.b.Write32(addr, 10)
	mc.h.WriteReg(10, addr)
	mc.h.WriteReg(11, 5)

	mc.mustStep(t, 0x00B5_22AF) // amoadd.w x5, x11, (x10)
	if got := mc.h.ReadReg(5); got != 10 {
		t.Errorf("amoadd old = %d", got)
	}
	if v, _ := mc.b.Read32(addr); v != 15 {
		t.Errorf("memory = %d, want 15", v)
	}
}

func TestAmoMinSigned(t *testing.T) {
	mc := newMachine(t)
	addr := dram.Base + 0x508
	mc.b.Write32(addr, 0xFFFF_FFFF) // -1
	mc.h.WriteReg(10, addr)
	mc.h.WriteReg(11, 3)

	mc.mustStep(t, 0x80B5_22AF) // amomin.w x5, x11, (x10)
	if got := mc.h.ReadReg(5); got != ^uint64(0) {
		t.Errorf("old = %#x, want sign-extended -1", got)
	}
	if v, _ := mc.b.Read32(addr); v != 0xFFFF_FFFF {
		t.Errorf("memory = %#x, want -1 (min)", v)
	}
}

func TestCsrSideEffectRules(t *testing.T) {
	mc := newMachine(t)

	// csrrs x5, cycle, x0: read-only counter, zero mask skips the write and
	// must not trap.
	if tr := mc.step(t, 0xC000_22F3); tr != nil {
		t.Fatalf("csrrs cycle with x0 trapped: %v", tr)
	}

	// csrrs x5, cycle, x6 with a mask attempts the write and traps.
	mc.h.WriteReg(6, 1)
	if tr := mc.step(t, 0xC003_22F3); tr == nil {
		t.Fatal("csrrs cycle with nonzero mask did not trap")
	}

	// csrrw to mscratch round-trips.
	mc.h.WriteReg(6, 0xABCD)
	mc.mustStep(t, 0x3403_1273) // csrrw x4, mscratch, x6
	mc.mustStep(t, 0x3400_22F3) // csrrs x5, mscratch, x0
	if got := mc.h.ReadReg(5); got != 0xABCD {
		t.Errorf("mscratch = %#x", got)
	}
}

func TestEcallPerPrivilege(t *testing.T) {
	mc := newMachine(t)

	tr := mc.step(t, 0x0000_0073)
	if tr == nil || tr.Cause != trap.EnvironmentCallFromM {
		t.Errorf("M ecall: %v", tr)
	}

	mc.h.Priv = trap.PrivS
	tr = mc.step(t, 0x0000_0073)
	if tr == nil || tr.Cause != trap.EnvironmentCallFromS {
		t.Errorf("S ecall: %v", tr)
	}

	mc.h.Priv = trap.PrivU
	tr = mc.step(t, 0x0000_0073)
	if tr == nil || tr.Cause != trap.EnvironmentCallFromU {
		t.Errorf("U ecall: %v", tr)
	}
}

func TestEcallDelegation(t *testing.T) {
	mc := newMachine(t)
	mc.h.CSRs.Stvec().WriteUnchecked(0x8000_8000)
	mc.h.CSRs.MEDeleg().WriteUnchecked(1 << 8)
	mc.h.Priv = trap.PrivU

	pc := mc.h.PC
	tr := mc.step(t, 0x0000_0073)
	if tr == nil {
		t.Fatal("ecall did not trap")
	}
	mc.h.HandleTrap(tr)

	if mc.h.Priv != trap.PrivS {
		t.Errorf("priv = %v, want S", mc.h.Priv)
	}
	if mc.h.PC != 0x8000_8000 {
		t.Errorf("PC = %#x", mc.h.PC)
	}
	if got := mc.h.CSRs.SCause().ReadUnchecked(); got != 8 {
		t.Errorf("scause = %d", got)
	}
	if got := mc.h.CSRs.Sepc().ReadUnchecked(); got != pc {
		t.Errorf("sepc = %#x, want %#x", got, pc)
	}
	if got := mc.h.CSRs.MStatus().Field(csr.StatusSPP); got != 0 {
		t.Errorf("SPP = %#x, want U", got)
	}
}

func TestMretRoundTrip(t *testing.T) {
	mc := newMachine(t)
	mc.h.CSRs.Mtvec().WriteUnchecked(0x8000_4000)
	mc.h.CSRs.MStatus().SetField(csr.StatusMIE, csr.StatusMIE)
	before := mc.h.CSRs.MStatus().ReadUnchecked()

	pc := mc.h.PC
	tr := mc.step(t, 0x0010_0073) // ebreak
	if tr == nil {
		t.Fatal("ebreak did not trap")
	}
	mc.h.HandleTrap(tr)

	if mc.h.CSRs.MStatus().Field(csr.StatusMIE) != 0 {
		t.Fatal("MIE survived trap entry")
	}

	mc.h.PC = 0x8000_4000
	mc.mustStep(t, 0x3020_0073) // mret

	if mc.h.PC != pc {
		t.Errorf("PC = %#x, want mepc %#x", mc.h.PC, pc)
	}
	if mc.h.Priv != trap.PrivM {
		t.Errorf("priv = %v", mc.h.Priv)
	}

	// The fields the trap touched are restored; MPP ends at U.
	after := mc.h.CSRs.MStatus().ReadUnchecked()
	if after&csr.StatusMIE != before&csr.StatusMIE {
		t.Error("MIE not restored by mret")
	}
	if after&csr.StatusMPP != 0 {
		t.Error("MPP not reset to U")
	}
}

func TestMretIllegalOutsideM(t *testing.T) {
	mc := newMachine(t)
	mc.h.Priv = trap.PrivS
	if tr := mc.step(t, 0x3020_0073); tr == nil || tr.Cause != trap.IllegalInstruction {
		t.Errorf("mret from S: %v", tr)
	}
}

func TestSretTSRGate(t *testing.T) {
	mc := newMachine(t)
	mc.h.Priv = trap.PrivS

	mc.h.CSRs.MStatus().SetField(csr.StatusTSR, csr.StatusTSR)
	if tr := mc.step(t, 0x1020_0073); tr == nil {
		t.Error("sret allowed in S with TSR set")
	}

	mc.h.CSRs.MStatus().SetField(csr.StatusTSR, 0)
	mc.h.CSRs.Sepc().WriteUnchecked(0x8000_1000)
	mc.mustStep(t, 0x1020_0073)
	if mc.h.PC != 0x8000_1000 || mc.h.Priv != trap.PrivU {
		t.Errorf("after sret: pc=%#x priv=%v", mc.h.PC, mc.h.Priv)
	}
}

func TestWfiGates(t *testing.T) {
	mc := newMachine(t)

	mc.mustStep(t, 0x1050_0073) // wfi in M is a nop

	mc.h.Priv = trap.PrivU
	if tr := mc.step(t, 0x1050_0073); tr == nil {
		t.Error("wfi allowed in U")
	}

	mc.h.Priv = trap.PrivS
	mc.mustStep(t, 0x1050_0073)
	mc.h.CSRs.MStatus().SetField(csr.StatusTW, csr.StatusTW)
	if tr := mc.step(t, 0x1050_0073); tr == nil {
		t.Error("wfi allowed in S with TW set")
	}
}

func TestSfenceVmaGates(t *testing.T) {
	mc := newMachine(t)

	mc.mustStep(t, 0x1200_0073)

	mc.h.Priv = trap.PrivU
	if tr := mc.step(t, 0x1200_0073); tr == nil {
		t.Error("sfence.vma allowed in U")
	}

	mc.h.Priv = trap.PrivS
	mc.mustStep(t, 0x1200_0073)
	mc.h.CSRs.MStatus().SetField(csr.StatusTVM, csr.StatusTVM)
	if tr := mc.step(t, 0x1200_0073); tr == nil {
		t.Error("sfence.vma allowed in S with TVM set")
	}
}

func TestIllegalEncodingTval(t *testing.T) {
	mc := newMachine(t)

	tr := mc.step(t, 0xFFFF_FFFF)
	if tr == nil || tr.Cause != trap.IllegalInstruction {
		t.Fatalf("trap = %v", tr)
	}
	if tr.TVal != 0xFFFF_FFFF {
		t.Errorf("tval = %#x, want the raw encoding", tr.TVal)
	}
}

func TestCompressedArithAndMemory(t *testing.T) {
	mc := newMachine(t)

	mc.mustStep(t, 0x4505) // c.li a0, 1
	if got := mc.h.ReadReg(10); got != 1 {
		t.Fatalf("a0 = %d", got)
	}

	mc.h.WriteReg(11, 41)
	mc.mustStep(t, 0x952E) // c.add a0, a1
	if got := mc.h.ReadReg(10); got != 42 {
		t.Errorf("a0 = %d, want 42", got)
	}

	// c.sw / c.lw through memory.
	mc.h.WriteReg(10, dram.Base+0x600)
	mc.h.WriteReg(12, 0x1234)
	mc.mustStep(t, 0xC110) // c.sw a2, 0(a0)
	mc.mustStep(t, 0x4114) // c.lw a3, 0(a0)
	if got := mc.h.ReadReg(13); got != 0x1234 {
		t.Errorf("a3 = %#x", got)
	}

	// PC advanced by 2 for each compressed instruction.
	if mc.h.PC != dram.Base+4*2 {
		t.Errorf("PC = %#x", mc.h.PC)
	}
}

func TestCompressedEbreak(t *testing.T) {
	mc := newMachine(t)
	if tr := mc.step(t, 0x9002); tr == nil || tr.Cause != trap.Breakpoint {
		t.Errorf("c.ebreak: %v", tr)
	}
}
