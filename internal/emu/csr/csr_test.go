package csr

import (
	"testing"

	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func access(p trap.Privilege) Access {
	return Access{PC: 0x8000_0000, Raw: 0x0000_0073, Priv: p}
}

func TestUnimplementedSlots(t *testing.T) {
	f := NewFile()

	// 0x5FF has no architected register.
	slot := f.Slot(0x5FF)
	if v := slot.ReadUnchecked(); v != 0 {
		t.Errorf("unchecked read = %#x, want 0", v)
	}
	slot.WriteUnchecked(123) // must not panic

	if _, tr := slot.ReadChecked(access(trap.PrivM)); tr == nil {
		t.Error("checked read of unimplemented CSR did not trap")
	}
	if tr := slot.WriteChecked(access(trap.PrivM), 1); tr == nil {
		t.Error("checked write of unimplemented CSR did not trap")
	} else if tr.Cause != trap.IllegalInstruction {
		t.Errorf("cause = %#x, want IllegalInstruction", uint64(tr.Cause))
	} else if tr.TVal != 0x73 {
		t.Errorf("tval = %#x, want the raw encoding", tr.TVal)
	}
}

func TestPrivilegeGates(t *testing.T) {
	f := NewFile()

	if _, tr := f.Slot(AddrMStatus).ReadChecked(access(trap.PrivS)); tr == nil {
		t.Error("S-mode read of mstatus allowed")
	}
	if _, tr := f.Slot(AddrSStatus).ReadChecked(access(trap.PrivU)); tr == nil {
		t.Error("U-mode read of sstatus allowed")
	}
	if _, tr := f.Slot(AddrSStatus).ReadChecked(access(trap.PrivS)); tr != nil {
		t.Error("S-mode read of sstatus denied")
	}

	// Read-only address range (0xFxx): writes trap even from M.
	if tr := f.Slot(AddrMHartID).WriteChecked(access(trap.PrivM), 1); tr == nil {
		t.Error("write to mhartid allowed")
	}
}

func TestMStatusSDDerived(t *testing.T) {
	f := NewFile()
	st := f.MStatus()

	if st.ReadUnchecked()&StatusSD != 0 {
		t.Error("SD set while FS off")
	}

	st.SetFSDirty()
	if st.ReadUnchecked()&StatusSD == 0 {
		t.Error("SD clear while FS dirty")
	}

	// Clearing FS through a write clears SD, even if the write asserts SD.
	v := st.ReadUnchecked() &^ StatusFS
	v |= StatusSD
	st.WriteUnchecked(v)
	if st.ReadUnchecked()&StatusSD != 0 {
		t.Error("SD stuck after FS cleared")
	}
}

func TestEpcMasking(t *testing.T) {
	f := NewFile()

	f.Mepc().WriteUnchecked(0x8000_0003)
	if got := f.Mepc().ReadUnchecked(); got != 0x8000_0002 {
		t.Errorf("mepc = %#x, want bit 0 masked", got)
	}

	f.Sepc().WriteUnchecked(0xFFFF_FFFF_FFFF_FFFF)
	if got := f.Sepc().ReadUnchecked(); got&1 != 0 {
		t.Errorf("sepc bit 0 readable: %#x", got)
	}
}

func TestTvecReservedMode(t *testing.T) {
	f := NewFile()

	f.Mtvec().WriteUnchecked(0x8000_0003)
	if got := f.Mtvec().ReadUnchecked(); got != 0x8000_0001 {
		t.Errorf("mtvec = %#x, want bit 1 forced clear", got)
	}
}

func TestCauseValidation(t *testing.T) {
	f := NewFile()

	f.MCause().WriteUnchecked(uint64(trap.IllegalInstruction))
	f.MCause().WriteUnchecked(10) // reserved, must be ignored
	if got := f.MCause().ReadUnchecked(); got != uint64(trap.IllegalInstruction) {
		t.Errorf("mcause = %#x after reserved write", got)
	}

	// Machine ecall is rejected by scause.
	f.SCause().WriteUnchecked(uint64(trap.EnvironmentCallFromS))
	f.SCause().WriteUnchecked(uint64(trap.EnvironmentCallFromM))
	if got := f.SCause().ReadUnchecked(); got != uint64(trap.EnvironmentCallFromS) {
		t.Errorf("scause accepted an M-only cause: %#x", got)
	}

	// Machine timer interrupt is rejected by scause as well.
	f.SCause().WriteUnchecked(uint64(trap.MachineTimerInterrupt))
	if got := f.SCause().ReadUnchecked(); got != uint64(trap.EnvironmentCallFromS) {
		t.Errorf("scause accepted an M interrupt: %#x", got)
	}
}

func TestMEDelegReadOnlyZeroBits(t *testing.T) {
	f := NewFile()

	f.MEDeleg().WriteUnchecked(^uint64(0))
	got := f.MEDeleg().ReadUnchecked()
	if got&(1<<11) != 0 {
		t.Error("medeleg bit 11 writable")
	}
	if got&(1<<16) != 0 {
		t.Error("medeleg bit 16 writable")
	}
	if got&(1<<8) == 0 {
		t.Error("medeleg bit 8 (ecall from U) not writable")
	}
}

func TestSatpModeFiltering(t *testing.T) {
	f := NewFile()
	satp := f.Satp()

	sv39 := SatpModeSv39<<SatpModeShift | 0x80000
	satp.WriteUnchecked(sv39)
	if got := satp.ReadUnchecked(); got != sv39 {
		t.Fatalf("satp = %#x, want %#x", got, sv39)
	}

	// Unsupported mode: the whole write is ignored.
	satp.WriteUnchecked(uint64(5)<<SatpModeShift | 0x1234)
	if got := satp.ReadUnchecked(); got != sv39 {
		t.Errorf("satp changed by unsupported-mode write: %#x", got)
	}

	invalidated := false
	satp.SetOnChange(func() { invalidated = true })
	satp.WriteUnchecked(0)
	if !invalidated {
		t.Error("satp change did not fire the invalidation hook")
	}
}

func TestSatpTVMGate(t *testing.T) {
	f := NewFile()

	f.MStatus().SetField(StatusTVM, StatusTVM)
	if _, tr := f.Satp().ReadChecked(access(trap.PrivS)); tr == nil {
		t.Error("satp readable from S with TVM set")
	}
	if _, tr := f.Satp().ReadChecked(access(trap.PrivM)); tr != nil {
		t.Error("satp blocked from M with TVM set")
	}

	f.MStatus().SetField(StatusTVM, 0)
	if _, tr := f.Satp().ReadChecked(access(trap.PrivS)); tr != nil {
		t.Error("satp blocked from S with TVM clear")
	}
}

func TestCounterSuppression(t *testing.T) {
	f := NewFile()
	c := f.MInstret()

	c.Advance()
	c.Advance()
	if got := c.ReadUnchecked(); got != 2 {
		t.Fatalf("minstret = %d, want 2", got)
	}

	// A checked write suppresses exactly the next advance.
	if tr := c.WriteChecked(access(trap.PrivM), 100); tr != nil {
		t.Fatal(tr)
	}
	c.Advance()
	if got := c.ReadUnchecked(); got != 100 {
		t.Errorf("minstret = %d, want 100 (suppressed)", got)
	}
	c.Advance()
	if got := c.ReadUnchecked(); got != 101 {
		t.Errorf("minstret = %d, want 101", got)
	}
}

func TestCounterInhibit(t *testing.T) {
	f := NewFile()

	f.Slot(AddrMCountInhibit).WriteUnchecked(InhibitCY)
	f.MCycle().Advance()
	if got := f.MCycle().ReadUnchecked(); got != 0 {
		t.Errorf("mcycle advanced while inhibited: %d", got)
	}

	// minstret is inhibited independently.
	f.MInstret().Advance()
	if got := f.MInstret().ReadUnchecked(); got != 1 {
		t.Errorf("minstret = %d, want 1", got)
	}
}

func TestUserCounterVisibility(t *testing.T) {
	f := NewFile()
	f.MCycle().WriteUnchecked(7)
	cycle := f.Slot(AddrCycle)

	if _, tr := cycle.ReadChecked(access(trap.PrivM)); tr != nil {
		t.Error("cycle blocked from M")
	}
	if _, tr := cycle.ReadChecked(access(trap.PrivS)); tr == nil {
		t.Error("cycle readable from S without mcounteren.CY")
	}

	f.Slot(AddrMCounteren).WriteUnchecked(CounterenCY)
	if v, tr := cycle.ReadChecked(access(trap.PrivS)); tr != nil || v != 7 {
		t.Errorf("cycle from S = %d, %v", v, tr)
	}

	// U additionally needs scounteren.
	if _, tr := cycle.ReadChecked(access(trap.PrivU)); tr == nil {
		t.Error("cycle readable from U without scounteren.CY")
	}
	f.Slot(AddrSCounteren).WriteUnchecked(CounterenCY)
	if _, tr := cycle.ReadChecked(access(trap.PrivU)); tr != nil {
		t.Error("cycle blocked from U with both enables set")
	}
}

func TestMipSoftwareWriteMask(t *testing.T) {
	f := NewFile()
	mip := f.Mip()

	// With STCE clear, STIP is software writable.
	if tr := mip.WriteChecked(access(trap.PrivM), IntSTI|IntSSI|IntMTI); tr != nil {
		t.Fatal(tr)
	}
	got := mip.ReadUnchecked()
	if got&IntSTI == 0 || got&IntSSI == 0 {
		t.Errorf("mip = %#x, STIP/SSIP not set", got)
	}
	if got&IntMTI != 0 {
		t.Error("MTIP writable by software")
	}

	// With STCE set, STIP becomes hardware-owned.
	f.MEnvCfg().WriteUnchecked(EnvCfgSTCE)
	if tr := mip.WriteChecked(access(trap.PrivM), 0); tr != nil {
		t.Fatal(tr)
	}
	if mip.ReadUnchecked()&IntSTI == 0 {
		t.Error("STIP cleared by software while STCE set")
	}
}

func TestMipAtomicBits(t *testing.T) {
	f := NewFile()
	mip := f.Mip()

	mip.SetBits(IntMEI | IntMTI)
	mip.ClearBits(IntMTI)
	if got := mip.ReadUnchecked(); got != IntMEI {
		t.Errorf("mip = %#x, want MEI only", got)
	}
}

func TestFcsrPackedView(t *testing.T) {
	f := NewFile()

	fcsr := f.Slot(AddrFcsr)
	fcsr.WriteUnchecked(0xFF)

	if got := f.Slot(AddrFFlags).ReadUnchecked(); got != 0x1F {
		t.Errorf("fflags = %#x, want 0x1F", got)
	}
	if got := f.Slot(AddrFrm).ReadUnchecked(); got != 7 {
		t.Errorf("frm = %#x, want 7", got)
	}
	if got := fcsr.ReadUnchecked(); got != 0xFF {
		t.Errorf("fcsr = %#x, want 0xFF", got)
	}

	// Updating float state dirties FS.
	if f.MStatus().ReadUnchecked()&StatusSD == 0 {
		t.Error("fcsr write did not dirty FS")
	}
}

func TestFcsrGateOnFSOff(t *testing.T) {
	f := NewFile()
	f.MStatus().SetField(StatusFS, 0)

	if _, tr := f.Slot(AddrFFlags).ReadChecked(access(trap.PrivM)); tr == nil {
		t.Error("fflags readable with FS off")
	}
}

func TestSStatusMirror(t *testing.T) {
	f := NewFile()

	f.Slot(AddrSStatus).WriteUnchecked(StatusSIE | StatusSUM)
	if got := f.MStatus().Field(StatusSIE | StatusSUM); got != StatusSIE|StatusSUM {
		t.Errorf("mstatus fields = %#x after sstatus write", got)
	}

	// M-only fields never leak into the sstatus view.
	f.MStatus().SetField(StatusMIE, StatusMIE)
	if got := f.Slot(AddrSStatus).ReadUnchecked(); got&StatusMIE != 0 {
		t.Error("MIE visible through sstatus")
	}
}

func TestSieSipDelegationMask(t *testing.T) {
	f := NewFile()

	f.Mie().WriteUnchecked(IntAll)
	if got := f.Slot(AddrSie).ReadUnchecked(); got != 0 {
		t.Errorf("sie = %#x with empty mideleg", got)
	}

	f.MIDeleg().WriteUnchecked(IntSupervisorSet)
	if got := f.Slot(AddrSie).ReadUnchecked(); got != IntSupervisorSet {
		t.Errorf("sie = %#x, want supervisor set", got)
	}

	f.Mip().SetBits(IntSEI | IntMEI)
	if got := f.Slot(AddrSip).ReadUnchecked(); got != IntSEI {
		t.Errorf("sip = %#x, want SEI only", got)
	}
}

func TestSTimecmpGate(t *testing.T) {
	f := NewFile()
	st := f.Slot(AddrSTimecmp)

	if _, tr := st.ReadChecked(access(trap.PrivM)); tr != nil {
		t.Error("stimecmp blocked from M")
	}
	if _, tr := st.ReadChecked(access(trap.PrivS)); tr == nil {
		t.Error("stimecmp readable from S without TM+STCE")
	}

	f.Slot(AddrMCounteren).WriteUnchecked(CounterenTM)
	if _, tr := st.ReadChecked(access(trap.PrivS)); tr == nil {
		t.Error("stimecmp readable from S without STCE")
	}

	f.MEnvCfg().WriteUnchecked(EnvCfgSTCE)
	if _, tr := st.ReadChecked(access(trap.PrivS)); tr != nil {
		t.Error("stimecmp blocked from S with TM+STCE set")
	}
}

func TestMisaHardwired(t *testing.T) {
	f := NewFile()
	misa := f.Slot(AddrMisa)

	want := MisaValue
	if got := misa.ReadUnchecked(); got != want {
		t.Fatalf("misa = %#x, want %#x", got, want)
	}

	if tr := misa.WriteChecked(access(trap.PrivM), 0); tr != nil {
		t.Fatalf("misa write trapped: %v", tr)
	}
	if got := misa.ReadUnchecked(); got != want {
		t.Errorf("misa changed by write: %#x", got)
	}
}
