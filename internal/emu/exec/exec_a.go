package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.LrW, execLr)
	register(decode.LrD, execLr)
	register(decode.ScW, execSc)
	register(decode.ScD, execSc)

	for _, n := range []decode.Name{
		decode.AmoswapW, decode.AmoaddW, decode.AmoxorW, decode.AmoandW,
		decode.AmoorW, decode.AmominW, decode.AmomaxW, decode.AmominuW,
		decode.AmomaxuW,
	} {
		register(n, execAmoW)
	}
	for _, n := range []decode.Name{
		decode.AmoswapD, decode.AmoaddD, decode.AmoxorD, decode.AmoandD,
		decode.AmoorD, decode.AmominD, decode.AmomaxD, decode.AmominuD,
		decode.AmomaxuD,
	} {
		register(n, execAmoD)
	}
}

func execLr(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1)

	var v uint64
	if d.Name == decode.LrW {
		r, t := m.Read32(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(int64(int32(r)))
	} else {
		r, t := m.Read64(d.PC, addr)
		if t != nil {
			return t
		}
		v = r
	}

	m.LoadReserve(addr)
	h.WriteReg(d.Rd, v)
	return nil
}

func execSc(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1)

	if !m.CheckReservation(addr) {
		h.WriteReg(d.Rd, 1)
		return nil
	}

	if d.Name == decode.ScW {
		if t := m.Write32(d.PC, addr, uint32(h.ReadReg(d.Rs2))); t != nil {
			return t
		}
	} else {
		if t := m.Write64(d.PC, addr, h.ReadReg(d.Rs2)); t != nil {
			return t
		}
	}

	h.WriteReg(d.Rd, 0)
	return nil
}

// AMOs run read-modify-write as a single step; the worker is the only
// mutator of guest memory so no host-level atomicity is needed.
func execAmoW(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1)

	old, t := m.Read32(d.PC, addr)
	if t != nil {
		return t
	}

	rs2 := uint32(h.ReadReg(d.Rs2))
	var next uint32
	switch d.Name {
	case decode.AmoswapW:
		next = rs2
	case decode.AmoaddW:
		next = old + rs2
	case decode.AmoxorW:
		next = old ^ rs2
	case decode.AmoandW:
		next = old & rs2
	case decode.AmoorW:
		next = old | rs2
	case decode.AmominW:
		next = rs2
		if int32(old) < int32(rs2) {
			next = old
		}
	case decode.AmomaxW:
		next = rs2
		if int32(old) > int32(rs2) {
			next = old
		}
	case decode.AmominuW:
		next = min(old, rs2)
	default: // amomaxu.w
		next = max(old, rs2)
	}

	if t := m.Write32(d.PC, addr, next); t != nil {
		return t
	}

	h.WriteReg(d.Rd, uint64(int64(int32(old))))
	return nil
}

func execAmoD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1)

	old, t := m.Read64(d.PC, addr)
	if t != nil {
		return t
	}

	rs2 := h.ReadReg(d.Rs2)
	var next uint64
	switch d.Name {
	case decode.AmoswapD:
		next = rs2
	case decode.AmoaddD:
		next = old + rs2
	case decode.AmoxorD:
		next = old ^ rs2
	case decode.AmoandD:
		next = old & rs2
	case decode.AmoorD:
		next = old | rs2
	case decode.AmominD:
		next = rs2
		if int64(old) < int64(rs2) {
			next = old
		}
	case decode.AmomaxD:
		next = rs2
		if int64(old) > int64(rs2) {
			next = old
		}
	case decode.AmominuD:
		next = min(old, rs2)
	default: // amomaxu.d
		next = max(old, rs2)
	}

	if t := m.Write64(d.PC, addr, next); t != nil {
		return t
	}

	h.WriteReg(d.Rd, old)
	return nil
}
