package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.CNop, execNop)
	register(decode.CAddi, execCAddi)
	register(decode.CAddiw, execCAddiw)
	register(decode.CLi, execCLi)
	register(decode.CAddi16sp, execCAddi)
	register(decode.CLui, execCLi)
	register(decode.CSrli, execCShift)
	register(decode.CSrai, execCShift)
	register(decode.CSlli, execCShift)
	register(decode.CAndi, execCAndi)
	register(decode.CSub, execCAlu)
	register(decode.CXor, execCAlu)
	register(decode.COr, execCAlu)
	register(decode.CAnd, execCAlu)
	register(decode.CSubw, execCAlu)
	register(decode.CAddw, execCAlu)
	register(decode.CJ, execCJ)
	register(decode.CBeqz, execCBranch)
	register(decode.CBnez, execCBranch)
	register(decode.CAddi4spn, execCAddi4spn)
	register(decode.CFld, execCFld)
	register(decode.CLw, execCLw)
	register(decode.CLd, execCLd)
	register(decode.CFsd, execCFsd)
	register(decode.CSw, execCSw)
	register(decode.CSd, execCSd)
	register(decode.CFldsp, execCFld)
	register(decode.CLwsp, execCLw)
	register(decode.CLdsp, execCLd)
	register(decode.CJr, execCJr)
	register(decode.CMv, execCMv)
	register(decode.CEbreak, execEbreak)
	register(decode.CJalr, execCJalr)
	register(decode.CAdd, execCAdd)
	register(decode.CFsdsp, execCFsd)
	register(decode.CSwsp, execCSw)
	register(decode.CSdsp, execCSd)
}

func execCAddi(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, h.ReadReg(d.Rs1)+d.Imm)
	return nil
}

func execCAddiw(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, uint64(int64(int32(h.ReadReg(d.Rs1))+int32(d.Imm))))
	return nil
}

func execCLi(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, d.Imm)
	return nil
}

func execCShift(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a := h.ReadReg(d.Rs1)
	shamt := d.Imm & 63

	var v uint64
	switch d.Name {
	case decode.CSrli:
		v = a >> shamt
	case decode.CSrai:
		v = uint64(int64(a) >> shamt)
	default: // c.slli
		v = a << shamt
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execCAndi(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, h.ReadReg(d.Rs1)&d.Imm)
	return nil
}

func execCAlu(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.CSub:
		v = a - b
	case decode.CXor:
		v = a ^ b
	case decode.COr:
		v = a | b
	case decode.CAnd:
		v = a & b
	case decode.CSubw:
		v = uint64(int64(int32(a) - int32(b)))
	default: // c.addw
		v = uint64(int64(int32(a) + int32(b)))
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execCJ(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return jumpTo(h, d, d.PC+d.Imm)
}

func execCBranch(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	taken := h.ReadReg(d.Rs1) == 0
	if d.Name == decode.CBnez {
		taken = !taken
	}
	if taken {
		return jumpTo(h, d, d.PC+d.Imm)
	}
	return nil
}

func execCAddi4spn(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, h.ReadReg(2)+d.Imm)
	return nil
}

func execCFld(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	v, t := m.Read64(d.PC, h.ReadReg(d.Rs1)+d.Imm)
	if t != nil {
		return t
	}
	h.WriteF64(d.Rd, v)
	h.CSRs.MStatus().SetFSDirty()
	return nil
}

func execCLw(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	v, t := m.Read32(d.PC, h.ReadReg(d.Rs1)+d.Imm)
	if t != nil {
		return t
	}
	h.WriteReg(d.Rd, uint64(int64(int32(v))))
	return nil
}

func execCLd(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	v, t := m.Read64(d.PC, h.ReadReg(d.Rs1)+d.Imm)
	if t != nil {
		return t
	}
	h.WriteReg(d.Rd, v)
	return nil
}

func execCFsd(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	return m.Write64(d.PC, h.ReadReg(d.Rs1)+d.Imm, h.ReadF64(d.Rs2))
}

func execCSw(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return m.Write32(d.PC, h.ReadReg(d.Rs1)+d.Imm, uint32(h.ReadReg(d.Rs2)))
}

func execCSd(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return m.Write64(d.PC, h.ReadReg(d.Rs1)+d.Imm, h.ReadReg(d.Rs2))
}

func execCJr(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return jumpTo(h, d, h.ReadReg(d.Rs1)&^uint64(1))
}

func execCMv(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, h.ReadReg(d.Rs2))
	return nil
}

func execCJalr(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	ret := link(d)
	if t := jumpTo(h, d, h.ReadReg(d.Rs1)&^uint64(1)); t != nil {
		return t
	}
	h.WriteReg(1, ret)
	return nil
}

func execCAdd(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, h.ReadReg(d.Rs1)+h.ReadReg(d.Rs2))
	return nil
}
