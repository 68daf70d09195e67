package exec

import (
	"math/bits"

	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.Lui, execLui)
	register(decode.Auipc, execAuipc)
	register(decode.Jal, execJal)
	register(decode.Jalr, execJalr)
	register(decode.Beq, execBranch)
	register(decode.Bne, execBranch)
	register(decode.Blt, execBranch)
	register(decode.Bge, execBranch)
	register(decode.Bltu, execBranch)
	register(decode.Bgeu, execBranch)
	register(decode.Lb, execLoad)
	register(decode.Lh, execLoad)
	register(decode.Lw, execLoad)
	register(decode.Ld, execLoad)
	register(decode.Lbu, execLoad)
	register(decode.Lhu, execLoad)
	register(decode.Lwu, execLoad)
	register(decode.Sb, execStore)
	register(decode.Sh, execStore)
	register(decode.Sw, execStore)
	register(decode.Sd, execStore)
	register(decode.Addi, execOpImm)
	register(decode.Slti, execOpImm)
	register(decode.Sltiu, execOpImm)
	register(decode.Xori, execOpImm)
	register(decode.Ori, execOpImm)
	register(decode.Andi, execOpImm)
	register(decode.Slli, execOpImm)
	register(decode.Srli, execOpImm)
	register(decode.Srai, execOpImm)
	register(decode.Addiw, execOpImm32)
	register(decode.Slliw, execOpImm32)
	register(decode.Srliw, execOpImm32)
	register(decode.Sraiw, execOpImm32)
	register(decode.Add, execOp)
	register(decode.Sub, execOp)
	register(decode.Sll, execOp)
	register(decode.Slt, execOp)
	register(decode.Sltu, execOp)
	register(decode.Xor, execOp)
	register(decode.Srl, execOp)
	register(decode.Sra, execOp)
	register(decode.Or, execOp)
	register(decode.And, execOp)
	register(decode.Addw, execOp32)
	register(decode.Subw, execOp32)
	register(decode.Sllw, execOp32)
	register(decode.Srlw, execOp32)
	register(decode.Sraw, execOp32)
	register(decode.Fence, execNop)
	register(decode.FenceI, execNop)

	register(decode.Mul, execMul)
	register(decode.Mulh, execMul)
	register(decode.Mulhsu, execMul)
	register(decode.Mulhu, execMul)
	register(decode.Mulw, execMul)
	register(decode.Div, execDiv)
	register(decode.Divu, execDiv)
	register(decode.Divw, execDiv)
	register(decode.Divuw, execDiv)
	register(decode.Rem, execDiv)
	register(decode.Remu, execDiv)
	register(decode.Remw, execDiv)
	register(decode.Remuw, execDiv)
}

func execNop(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	return nil
}

func execLui(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, d.Imm)
	return nil
}

func execAuipc(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	h.WriteReg(d.Rd, d.PC+d.Imm)
	return nil
}

func execJal(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	ret := link(d)
	if t := jumpTo(h, d, d.PC+d.Imm); t != nil {
		return t
	}
	h.WriteReg(d.Rd, ret)
	return nil
}

func execJalr(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	ret := link(d)
	target := (h.ReadReg(d.Rs1) + d.Imm) &^ uint64(1)
	if t := jumpTo(h, d, target); t != nil {
		return t
	}
	h.WriteReg(d.Rd, ret)
	return nil
}

func execBranch(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var taken bool
	switch d.Name {
	case decode.Beq:
		taken = a == b
	case decode.Bne:
		taken = a != b
	case decode.Blt:
		taken = int64(a) < int64(b)
	case decode.Bge:
		taken = int64(a) >= int64(b)
	case decode.Bltu:
		taken = a < b
	default:
		taken = a >= b
	}

	if taken {
		return jumpTo(h, d, d.PC+d.Imm)
	}
	return nil
}

func execLoad(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1) + d.Imm

	var v uint64
	switch d.Name {
	case decode.Lb:
		r, t := m.Read8(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(int64(int8(r)))
	case decode.Lbu:
		r, t := m.Read8(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(r)
	case decode.Lh:
		r, t := m.Read16(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(int64(int16(r)))
	case decode.Lhu:
		r, t := m.Read16(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(r)
	case decode.Lw:
		r, t := m.Read32(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(int64(int32(r)))
	case decode.Lwu:
		r, t := m.Read32(d.PC, addr)
		if t != nil {
			return t
		}
		v = uint64(r)
	default: // ld
		r, t := m.Read64(d.PC, addr)
		if t != nil {
			return t
		}
		v = r
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execStore(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	addr := h.ReadReg(d.Rs1) + d.Imm
	v := h.ReadReg(d.Rs2)

	switch d.Name {
	case decode.Sb:
		return m.Write8(d.PC, addr, uint8(v))
	case decode.Sh:
		return m.Write16(d.PC, addr, uint16(v))
	case decode.Sw:
		return m.Write32(d.PC, addr, uint32(v))
	default:
		return m.Write64(d.PC, addr, v)
	}
}

func execOpImm(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a := h.ReadReg(d.Rs1)
	imm := d.Imm

	var v uint64
	switch d.Name {
	case decode.Addi:
		v = a + imm
	case decode.Slti:
		if int64(a) < int64(imm) {
			v = 1
		}
	case decode.Sltiu:
		if a < imm {
			v = 1
		}
	case decode.Xori:
		v = a ^ imm
	case decode.Ori:
		v = a | imm
	case decode.Andi:
		v = a & imm
	case decode.Slli:
		v = a << (imm & 63)
	case decode.Srli:
		v = a >> (imm & 63)
	default: // srai
		v = uint64(int64(a) >> (imm & 63))
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execOpImm32(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a := h.ReadReg(d.Rs1)
	imm := d.Imm

	var v uint64
	switch d.Name {
	case decode.Addiw:
		v = uint64(int64(int32(a) + int32(imm)))
	case decode.Slliw:
		v = uint64(int64(int32(uint32(a) << (imm & 31))))
	case decode.Srliw:
		v = uint64(int64(int32(uint32(a) >> (imm & 31))))
	default: // sraiw
		v = uint64(int64(int32(a) >> (imm & 31)))
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execOp(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.Add:
		v = a + b
	case decode.Sub:
		v = a - b
	case decode.Sll:
		v = a << (b & 63)
	case decode.Slt:
		if int64(a) < int64(b) {
			v = 1
		}
	case decode.Sltu:
		if a < b {
			v = 1
		}
	case decode.Xor:
		v = a ^ b
	case decode.Srl:
		v = a >> (b & 63)
	case decode.Sra:
		v = uint64(int64(a) >> (b & 63))
	case decode.Or:
		v = a | b
	default: // and
		v = a & b
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execOp32(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.Addw:
		v = uint64(int64(int32(a) + int32(b)))
	case decode.Subw:
		v = uint64(int64(int32(a) - int32(b)))
	case decode.Sllw:
		v = uint64(int64(int32(uint32(a) << (b & 31))))
	case decode.Srlw:
		v = uint64(int64(int32(uint32(a) >> (b & 31))))
	default: // sraw
		v = uint64(int64(int32(a) >> (b & 31)))
	}

	h.WriteReg(d.Rd, v)
	return nil
}

func execMul(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.Mul:
		v = a * b
	case decode.Mulh:
		v = mulhSigned(int64(a), int64(b))
	case decode.Mulhsu:
		v = mulhSignedUnsigned(int64(a), b)
	case decode.Mulhu:
		hi, _ := bits.Mul64(a, b)
		v = hi
	default: // mulw
		v = uint64(int64(int32(a) * int32(b)))
	}

	h.WriteReg(d.Rd, v)
	return nil
}

// mulhSigned computes the high 64 bits of the 128-bit signed product.
func mulhSigned(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	r := int64(hi)
	if a < 0 {
		r -= b
	}
	if b < 0 {
		r -= a
	}
	return uint64(r)
}

// mulhSignedUnsigned computes the high bits of signed*unsigned.
func mulhSignedUnsigned(a int64, b uint64) uint64 {
	hi, _ := bits.Mul64(uint64(a), b)
	r := int64(hi)
	if a < 0 {
		r -= int64(b)
	}
	return uint64(r)
}

func execDiv(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	a, b := h.ReadReg(d.Rs1), h.ReadReg(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.Div:
		switch {
		case b == 0:
			v = ^uint64(0)
		case int64(a) == -1<<63 && int64(b) == -1:
			v = a
		default:
			v = uint64(int64(a) / int64(b))
		}
	case decode.Divu:
		if b == 0 {
			v = ^uint64(0)
		} else {
			v = a / b
		}
	case decode.Rem:
		switch {
		case b == 0:
			v = a
		case int64(a) == -1<<63 && int64(b) == -1:
			v = 0
		default:
			v = uint64(int64(a) % int64(b))
		}
	case decode.Remu:
		if b == 0 {
			v = a
		} else {
			v = a % b
		}
	case decode.Divw:
		x, y := int32(a), int32(b)
		switch {
		case y == 0:
			v = ^uint64(0)
		case x == -1<<31 && y == -1:
			v = uint64(int64(x))
		default:
			v = uint64(int64(x / y))
		}
	case decode.Divuw:
		x, y := uint32(a), uint32(b)
		if y == 0 {
			v = ^uint64(0)
		} else {
			v = uint64(int64(int32(x / y)))
		}
	case decode.Remw:
		x, y := int32(a), int32(b)
		switch {
		case y == 0:
			v = uint64(int64(x))
		case x == -1<<31 && y == -1:
			v = 0
		default:
			v = uint64(int64(x % y))
		}
	default: // remuw
		x, y := uint32(a), uint32(b)
		if y == 0 {
			v = uint64(int64(int32(x)))
		} else {
			v = uint64(int64(int32(x % y)))
		}
	}

	h.WriteReg(d.Rd, v)
	return nil
}
