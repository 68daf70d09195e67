package exec

import (
	"math"
	"testing"

	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/dram"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

const (
	fminS  uint32 = 0x2873_02D3 // fmin.s f5, f6, f7
	faddS  uint32 = 0x0073_02D3 // fadd.s f5, f6, f7
	sNaN32 uint32 = 0x7F80_0001
)

// enableFPU flips mstatus.FS out of Off.
func (mc *machine) enableFPU() {
	mc.h.CSRs.MStatus().SetField(csr.StatusFS, uint64(csr.FSInitial)<<csr.StatusFSShift)
}

func TestFPIllegalWhileOff(t *testing.T) {
	mc := newMachine(t)

	tr := mc.step(t, faddS)
	if tr == nil || tr.Cause != trap.IllegalInstruction {
		t.Errorf("fadd.s with FS off: %v", tr)
	}
}

func TestFminSNaNFlags(t *testing.T) {
	mc := newMachine(t)
	mc.enableFPU()

	// One signaling NaN operand: NV accrues, the numeric operand wins, and
	// FS goes dirty (so SD reads set).
	mc.h.WriteF32(6, sNaN32)
	mc.h.WriteF32(7, 0x3F80_0000) // 1.0f
	mc.mustStep(t, fminS)

	if got := mc.h.ReadF32(5); got != 0x3F80_0000 {
		t.Errorf("fmin result = %#x, want 1.0f", got)
	}
	if mc.h.CSRs.FP().Flags()&csr.FFlagNV == 0 {
		t.Error("NV not accrued")
	}
	if mc.h.CSRs.MStatus().ReadUnchecked()&csr.StatusSD == 0 {
		t.Error("FS not dirty after FP write")
	}

	// Both NaN: canonical quiet NaN.
	mc.h.WriteF32(6, sNaN32)
	mc.h.WriteF32(7, 0x7FC0_0001)
	mc.mustStep(t, fminS)
	if got := mc.h.ReadF32(5); got != 0x7FC0_0000 {
		t.Errorf("fmin(NaN, NaN) = %#x, want canonical qNaN", got)
	}
}

func TestFPArithThroughMemory(t *testing.T) {
	mc := newMachine(t)
	mc.enableFPU()
	addr := dram.Base + 0x700
	mc.h.WriteReg(10, addr)

	// Store 1.5f, load it back, add to itself.
	mc.b.Write32(addr, math.Float32bits(1.5))
	mc.mustStep(t, 0x0005_2307) // flw f6, 0(x10)
	mc.mustStep(t, 0x0005_2387) // flw f7, 0(x10)
	mc.mustStep(t, faddS)       // fadd.s f5, f6, f7

	if got := mc.h.ReadF32(5); math.Float32frombits(got) != 3.0 {
		t.Errorf("1.5+1.5 = %v", math.Float32frombits(got))
	}

	// fsw writes the result back.
	mc.mustStep(t, 0x0055_2427) // fsw f5, 8(x10)
	if v, _ := mc.b.Read32(addr + 8); math.Float32frombits(v) != 3.0 {
		t.Errorf("stored = %v", math.Float32frombits(v))
	}
}

func TestInvalidRoundingModeIllegal(t *testing.T) {
	mc := newMachine(t)
	mc.enableFPU()

	// fadd.s with rm=5 (reserved).
	tr := mc.step(t, faddS|5<<12)
	if tr == nil || tr.Cause != trap.IllegalInstruction {
		t.Errorf("rm=5: %v", tr)
	}

	// rm=DYN with a reserved frm value is also illegal.
	mc.h.CSRs.Slot(csr.AddrFrm).WriteUnchecked(5)
	tr = mc.step(t, faddS|7<<12)
	if tr == nil || tr.Cause != trap.IllegalInstruction {
		t.Errorf("DYN with frm=5: %v", tr)
	}
}

func TestFcvtAndFmv(t *testing.T) {
	mc := newMachine(t)
	mc.enableFPU()

	// fcvt.s.w f5, x6 (-3)
	mc.h.WriteReg(6, uint64(0xFFFFFFFFFFFFFFFD)) // -3 as int64, two's complement
	mc.mustStep(t, 0xD003_02D3)
	if got := math.Float32frombits(mc.h.ReadF32(5)); got != -3.0 {
		t.Errorf("fcvt.s.w(-3) = %v", got)
	}

	// fmv.x.w x5, f5 sign-extends the pattern.
	mc.mustStep(t, 0xE002_82D3)
	want := uint64(int64(int32(math.Float32bits(-3.0))))
	if got := mc.h.ReadReg(5); got != want {
		t.Errorf("fmv.x.w = %#x, want %#x", got, want)
	}

	// fcvt.w.s x5, f5 rounds back to the integer.
	mc.mustStep(t, 0xC002_82D3)
	if got := int64(mc.h.ReadReg(5)); got != -3 {
		t.Errorf("fcvt.w.s = %d", got)
	}
}
