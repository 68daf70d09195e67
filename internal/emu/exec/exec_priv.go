package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.Ecall, execEcall)
	register(decode.Ebreak, execEbreak)
	register(decode.Mret, execMret)
	register(decode.Sret, execSret)
	register(decode.Wfi, execWfi)
	register(decode.SfenceVma, execSfenceVma)
}

func execEcall(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	switch h.Priv {
	case trap.PrivM:
		return trap.New(d.PC, trap.EnvironmentCallFromM, 0)
	case trap.PrivS:
		return trap.New(d.PC, trap.EnvironmentCallFromS, 0)
	default:
		return trap.New(d.PC, trap.EnvironmentCallFromU, 0)
	}
}

func execEbreak(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return trap.New(d.PC, trap.Breakpoint, d.PC)
}

func execMret(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if h.Priv != trap.PrivM {
		return illegal(d)
	}

	st := h.CSRs.MStatus()
	mpp := trap.Privilege(st.Field(csr.StatusMPP) >> csr.StatusMPPShift)

	h.PC = h.CSRs.Mepc().ReadUnchecked()
	h.Priv = mpp

	if mpp != trap.PrivM {
		st.SetField(csr.StatusMPRV, 0)
	}

	mpie := st.Field(csr.StatusMPIE) >> csr.StatusMPIEShift
	st.SetField(csr.StatusMIE, mpie<<csr.StatusMIEShift)
	st.SetField(csr.StatusMPIE, csr.StatusMPIE)
	st.SetField(csr.StatusMPP, uint64(trap.PrivU)<<csr.StatusMPPShift)

	return nil
}

func execSret(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	st := h.CSRs.MStatus()

	if h.Priv == trap.PrivU {
		return illegal(d)
	}
	if h.Priv == trap.PrivS && st.Field(csr.StatusTSR) != 0 {
		return illegal(d)
	}

	spp := trap.Privilege(st.Field(csr.StatusSPP) >> csr.StatusSPPShift)

	h.PC = h.CSRs.Sepc().ReadUnchecked()
	h.Priv = spp

	if spp != trap.PrivM {
		st.SetField(csr.StatusMPRV, 0)
	}

	spie := st.Field(csr.StatusSPIE) >> csr.StatusSPIEShift
	st.SetField(csr.StatusSIE, spie<<csr.StatusSIEShift)
	st.SetField(csr.StatusSPIE, csr.StatusSPIE)
	st.SetField(csr.StatusSPP, uint64(trap.PrivU)<<csr.StatusSPPShift)

	return nil
}

func execWfi(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if h.Priv == trap.PrivU {
		return illegal(d)
	}
	if h.Priv == trap.PrivS && h.CSRs.MStatus().Field(csr.StatusTW) != 0 {
		return illegal(d)
	}
	// Implemented as a nop; the interrupt check at the top of the next cycle
	// observes any pending wakeup.
	return nil
}

func execSfenceVma(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if h.Priv == trap.PrivU {
		return illegal(d)
	}
	if h.Priv == trap.PrivS && h.CSRs.MStatus().Field(csr.StatusTVM) != 0 {
		return illegal(d)
	}
	// No TLB is maintained, so the fence has nothing to invalidate.
	return nil
}
