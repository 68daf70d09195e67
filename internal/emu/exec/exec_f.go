package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/softfloat"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

func init() {
	register(decode.Flw, execFpLoad)
	register(decode.Fld, execFpLoad)
	register(decode.Fsw, execFpStore)
	register(decode.Fsd, execFpStore)

	register(decode.FaddS, execFpArithS)
	register(decode.FsubS, execFpArithS)
	register(decode.FmulS, execFpArithS)
	register(decode.FdivS, execFpArithS)
	register(decode.FsqrtS, execFpArithS)
	register(decode.FaddD, execFpArithD)
	register(decode.FsubD, execFpArithD)
	register(decode.FmulD, execFpArithD)
	register(decode.FdivD, execFpArithD)
	register(decode.FsqrtD, execFpArithD)

	register(decode.FmaddS, execFmaS)
	register(decode.FmsubS, execFmaS)
	register(decode.FnmsubS, execFmaS)
	register(decode.FnmaddS, execFmaS)
	register(decode.FmaddD, execFmaD)
	register(decode.FmsubD, execFmaD)
	register(decode.FnmsubD, execFmaD)
	register(decode.FnmaddD, execFmaD)

	register(decode.FsgnjS, execFsgnjS)
	register(decode.FsgnjnS, execFsgnjS)
	register(decode.FsgnjxS, execFsgnjS)
	register(decode.FsgnjD, execFsgnjD)
	register(decode.FsgnjnD, execFsgnjD)
	register(decode.FsgnjxD, execFsgnjD)

	register(decode.FminS, execMinMaxS)
	register(decode.FmaxS, execMinMaxS)
	register(decode.FminD, execMinMaxD)
	register(decode.FmaxD, execMinMaxD)

	register(decode.FeqS, execCmpS)
	register(decode.FltS, execCmpS)
	register(decode.FleS, execCmpS)
	register(decode.FeqD, execCmpD)
	register(decode.FltD, execCmpD)
	register(decode.FleD, execCmpD)

	register(decode.FclassS, execFclass)
	register(decode.FclassD, execFclass)
	register(decode.FmvXW, execFmv)
	register(decode.FmvWX, execFmv)
	register(decode.FmvXD, execFmv)
	register(decode.FmvDX, execFmv)

	for _, n := range []decode.Name{
		decode.FcvtWS, decode.FcvtWuS, decode.FcvtLS, decode.FcvtLuS,
		decode.FcvtSW, decode.FcvtSWu, decode.FcvtSL, decode.FcvtSLu,
		decode.FcvtWD, decode.FcvtWuD, decode.FcvtLD, decode.FcvtLuD,
		decode.FcvtDW, decode.FcvtDWu, decode.FcvtDL, decode.FcvtDLu,
		decode.FcvtSD, decode.FcvtDS,
	} {
		register(n, execFcvt)
	}
}

func execFpLoad(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	addr := h.ReadReg(d.Rs1) + d.Imm

	if d.Name == decode.Flw {
		v, t := m.Read32(d.PC, addr)
		if t != nil {
			return t
		}
		h.WriteF32(d.Rd, v)
	} else {
		v, t := m.Read64(d.PC, addr)
		if t != nil {
			return t
		}
		h.WriteF64(d.Rd, v)
	}

	h.CSRs.MStatus().SetFSDirty()
	return nil
}

func execFpStore(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	addr := h.ReadReg(d.Rs1) + d.Imm

	if d.Name == decode.Fsw {
		return m.Write32(d.PC, addr, uint32(h.ReadF64(d.Rs2)))
	}
	return m.Write64(d.PC, addr, h.ReadF64(d.Rs2))
}

func writeF32Result(h *hart.Hart, rd uint32, v uint32, flags uint64) {
	h.CSRs.FP().AccrueFlags(flags)
	h.WriteF32(rd, v)
	h.CSRs.MStatus().SetFSDirty()
}

func writeF64Result(h *hart.Hart, rd uint32, v uint64, flags uint64) {
	h.CSRs.FP().AccrueFlags(flags)
	h.WriteF64(rd, v)
	h.CSRs.MStatus().SetFSDirty()
}

func execFpArithS(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	rm, t := roundingMode(h, d)
	if t != nil {
		return t
	}

	a, b := h.ReadF32(d.Rs1), h.ReadF32(d.Rs2)

	var v uint32
	var flags uint64
	switch d.Name {
	case decode.FaddS:
		v, flags = softfloat.Add32(a, b, rm)
	case decode.FsubS:
		v, flags = softfloat.Sub32(a, b, rm)
	case decode.FmulS:
		v, flags = softfloat.Mul32(a, b, rm)
	case decode.FdivS:
		v, flags = softfloat.Div32(a, b, rm)
	default: // fsqrt.s
		v, flags = softfloat.Sqrt32(a, rm)
	}

	writeF32Result(h, d.Rd, v, flags)
	return nil
}

func execFpArithD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	rm, t := roundingMode(h, d)
	if t != nil {
		return t
	}

	a, b := h.ReadF64(d.Rs1), h.ReadF64(d.Rs2)

	var v uint64
	var flags uint64
	switch d.Name {
	case decode.FaddD:
		v, flags = softfloat.Add64(a, b, rm)
	case decode.FsubD:
		v, flags = softfloat.Sub64(a, b, rm)
	case decode.FmulD:
		v, flags = softfloat.Mul64(a, b, rm)
	case decode.FdivD:
		v, flags = softfloat.Div64(a, b, rm)
	default: // fsqrt.d
		v, flags = softfloat.Sqrt64(a, rm)
	}

	writeF64Result(h, d.Rd, v, flags)
	return nil
}

const signBit32 = uint32(1) << 31
const signBit64 = uint64(1) << 63

func execFmaS(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	rm, t := roundingMode(h, d)
	if t != nil {
		return t
	}

	a, b, c := h.ReadF32(d.Rs1), h.ReadF32(d.Rs2), h.ReadF32(d.Rs3)

	// fmsub negates the addend, fnmadd/fnmsub negate the product.
	switch d.Name {
	case decode.FmsubS:
		c ^= signBit32
	case decode.FnmsubS:
		a ^= signBit32
	case decode.FnmaddS:
		a ^= signBit32
		c ^= signBit32
	}

	v, flags := softfloat.Fma32(a, b, c, rm)
	writeF32Result(h, d.Rd, v, flags)
	return nil
}

func execFmaD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	rm, t := roundingMode(h, d)
	if t != nil {
		return t
	}

	a, b, c := h.ReadF64(d.Rs1), h.ReadF64(d.Rs2), h.ReadF64(d.Rs3)

	switch d.Name {
	case decode.FmsubD:
		c ^= signBit64
	case decode.FnmsubD:
		a ^= signBit64
	case decode.FnmaddD:
		a ^= signBit64
		c ^= signBit64
	}

	v, flags := softfloat.Fma64(a, b, c, rm)
	writeF64Result(h, d.Rd, v, flags)
	return nil
}

func execFsgnjS(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF32(d.Rs1), h.ReadF32(d.Rs2)

	var v uint32
	switch d.Name {
	case decode.FsgnjS:
		v = a&^signBit32 | b&signBit32
	case decode.FsgnjnS:
		v = a&^signBit32 | ^b&signBit32
	default: // fsgnjx.s
		v = a ^ b&signBit32
	}

	h.WriteF32(d.Rd, v)
	h.CSRs.MStatus().SetFSDirty()
	return nil
}

func execFsgnjD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF64(d.Rs1), h.ReadF64(d.Rs2)

	var v uint64
	switch d.Name {
	case decode.FsgnjD:
		v = a&^signBit64 | b&signBit64
	case decode.FsgnjnD:
		v = a&^signBit64 | ^b&signBit64
	default: // fsgnjx.d
		v = a ^ b&signBit64
	}

	h.WriteF64(d.Rd, v)
	h.CSRs.MStatus().SetFSDirty()
	return nil
}

func execMinMaxS(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF32(d.Rs1), h.ReadF32(d.Rs2)

	var v uint32
	var flags uint64
	if d.Name == decode.FminS {
		v, flags = softfloat.Min32(a, b)
	} else {
		v, flags = softfloat.Max32(a, b)
	}

	writeF32Result(h, d.Rd, v, flags)
	return nil
}

func execMinMaxD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF64(d.Rs1), h.ReadF64(d.Rs2)

	var v uint64
	var flags uint64
	if d.Name == decode.FminD {
		v, flags = softfloat.Min64(a, b)
	} else {
		v, flags = softfloat.Max64(a, b)
	}

	writeF64Result(h, d.Rd, v, flags)
	return nil
}

func execCmpS(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF32(d.Rs1), h.ReadF32(d.Rs2)

	var v, flags uint64
	switch d.Name {
	case decode.FeqS:
		v, flags = softfloat.Eq32(a, b)
	case decode.FltS:
		v, flags = softfloat.Lt32(a, b)
	default:
		v, flags = softfloat.Le32(a, b)
	}

	h.CSRs.FP().AccrueFlags(flags)
	h.WriteReg(d.Rd, v)
	return nil
}

func execCmpD(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	a, b := h.ReadF64(d.Rs1), h.ReadF64(d.Rs2)

	var v, flags uint64
	switch d.Name {
	case decode.FeqD:
		v, flags = softfloat.Eq64(a, b)
	case decode.FltD:
		v, flags = softfloat.Lt64(a, b)
	default:
		v, flags = softfloat.Le64(a, b)
	}

	h.CSRs.FP().AccrueFlags(flags)
	h.WriteReg(d.Rd, v)
	return nil
}

func execFclass(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	if d.Name == decode.FclassS {
		h.WriteReg(d.Rd, softfloat.Class32(h.ReadF32(d.Rs1)))
	} else {
		h.WriteReg(d.Rd, softfloat.Class64(h.ReadF64(d.Rs1)))
	}
	return nil
}

func execFmv(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}

	switch d.Name {
	case decode.FmvXW:
		h.WriteReg(d.Rd, uint64(int64(int32(h.ReadF32(d.Rs1)))))
	case decode.FmvWX:
		h.WriteF32(d.Rd, uint32(h.ReadReg(d.Rs1)))
		h.CSRs.MStatus().SetFSDirty()
	case decode.FmvXD:
		h.WriteReg(d.Rd, h.ReadF64(d.Rs1))
	default: // fmv.d.x
		h.WriteF64(d.Rd, h.ReadReg(d.Rs1))
		h.CSRs.MStatus().SetFSDirty()
	}
	return nil
}

func execFcvt(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	if t := fpEnabled(h, d); t != nil {
		return t
	}
	rm, t := roundingMode(h, d)
	if t != nil {
		return t
	}

	fp := h.CSRs.FP()

	switch d.Name {
	case decode.FcvtWS:
		v, flags := softfloat.F32ToI32(h.ReadF32(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtWuS:
		v, flags := softfloat.F32ToU32(h.ReadF32(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtLS:
		v, flags := softfloat.F32ToI64(h.ReadF32(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtLuS:
		v, flags := softfloat.F32ToU64(h.ReadF32(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtWD:
		v, flags := softfloat.F64ToI32(h.ReadF64(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtWuD:
		v, flags := softfloat.F64ToU32(h.ReadF64(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtLD:
		v, flags := softfloat.F64ToI64(h.ReadF64(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)
	case decode.FcvtLuD:
		v, flags := softfloat.F64ToU64(h.ReadF64(d.Rs1), rm)
		fp.AccrueFlags(flags)
		h.WriteReg(d.Rd, v)

	case decode.FcvtSW:
		v, flags := softfloat.I32ToF32(int32(h.ReadReg(d.Rs1)), rm)
		writeF32Result(h, d.Rd, v, flags)
	case decode.FcvtSWu:
		v, flags := softfloat.U32ToF32(uint32(h.ReadReg(d.Rs1)), rm)
		writeF32Result(h, d.Rd, v, flags)
	case decode.FcvtSL:
		v, flags := softfloat.I64ToF32(int64(h.ReadReg(d.Rs1)), rm)
		writeF32Result(h, d.Rd, v, flags)
	case decode.FcvtSLu:
		v, flags := softfloat.U64ToF32(h.ReadReg(d.Rs1), rm)
		writeF32Result(h, d.Rd, v, flags)
	case decode.FcvtDW:
		writeF64Result(h, d.Rd, softfloat.I32ToF64(int32(h.ReadReg(d.Rs1))), 0)
	case decode.FcvtDWu:
		writeF64Result(h, d.Rd, softfloat.U32ToF64(uint32(h.ReadReg(d.Rs1))), 0)
	case decode.FcvtDL:
		v, flags := softfloat.I64ToF64(int64(h.ReadReg(d.Rs1)))
		writeF64Result(h, d.Rd, v, flags)
	case decode.FcvtDLu:
		v, flags := softfloat.U64ToF64(h.ReadReg(d.Rs1))
		writeF64Result(h, d.Rd, v, flags)

	case decode.FcvtSD:
		v, flags := softfloat.F64ToF32(h.ReadF64(d.Rs1), rm)
		writeF32Result(h, d.Rd, v, flags)
	default: // fcvt.d.s
		v, flags := softfloat.F32ToF64(h.ReadF32(d.Rs1))
		writeF64Result(h, d.Rd, v, flags)
	}

	return nil
}
