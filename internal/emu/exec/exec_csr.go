package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.Csrrw, execCsr)
	register(decode.Csrrs, execCsr)
	register(decode.Csrrc, execCsr)
	register(decode.Csrrwi, execCsr)
	register(decode.Csrrsi, execCsr)
	register(decode.Csrrci, execCsr)
}

func execCsr(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := uint32(d.Imm) & 0xFFF
	slot := h.CSRs.Slot(addr)
	a := h.Access(d.PC, d.Raw)

	// The immediate forms take the operand from the rs1 field itself.
	var operand uint64
	immediate := d.Name == decode.Csrrwi || d.Name == decode.Csrrsi || d.Name == decode.Csrrci
	if immediate {
		operand = uint64(d.Rs1)
	} else {
		operand = h.ReadReg(d.Rs1)
	}

	switch d.Name {
	case decode.Csrrw, decode.Csrrwi:
		// rd=x0 skips the read side effect entirely.
		var old uint64
		if d.Rd != 0 {
			v, t := slot.ReadChecked(a)
			if t != nil {
				return t
			}
			old = v
		}
		if t := slot.WriteChecked(a, operand); t != nil {
			return t
		}
		h.WriteReg(d.Rd, old)

	case decode.Csrrs, decode.Csrrsi:
		old, t := slot.ReadChecked(a)
		if t != nil {
			return t
		}
		// rs1=x0 (or zimm=0) skips the write side effect, so reading a
		// read-only counter with a zero mask does not trap.
		if d.Rs1 != 0 {
			if t := slot.WriteChecked(a, old|operand); t != nil {
				return t
			}
		}
		h.WriteReg(d.Rd, old)

	default: // csrrc / csrrci
		old, t := slot.ReadChecked(a)
		if t != nil {
			return t
		}
		if d.Rs1 != 0 {
			if t := slot.WriteChecked(a, old&^operand); t != nil {
				return t
			}
		}
		h.WriteReg(d.Rd, old)
	}

	return nil
}
