package decode

// sext sign-extends the low n bits of v.
func sext(v uint64, n uint) uint64 {
	return uint64(int64(v<<(64-n)) >> (64 - n))
}

// field moves bits [srcPos + width) of v to dstPos, the compressed-format
// immediate scatter helper.
func field(v uint32, srcPos, dstPos, dstPosMax uint) uint32 {
	mask := uint32((1<<(dstPosMax-dstPos+1))-1) << dstPos
	if dstPos >= srcPos {
		return (v << (dstPos - srcPos)) & mask
	}
	return (v >> (srcPos - dstPos)) & mask
}

// Decode classifies a 16- or 32-bit instruction word fetched at pc. Illegal
// encodings resolve to the Inv/CInv names, whose executors raise Illegal
// Instruction with the raw encoding as tval.
func Decode(raw uint32, pc uint64) Decoded {
	if raw&3 != 3 {
		return decodeCompressed(raw&0xFFFF, pc)
	}
	return decode32(raw, pc)
}

func decode32(raw uint32, pc uint64) Decoded {
	d := Decoded{Raw: raw, Len: 4, PC: pc, Name: Inv, Format: FormatN}
	opcode := raw & 0x7F
	funct3 := (raw >> 12) & 7
	funct7 := raw >> 25

	switch opcode {
	case 0x37:
		d.uType(Lui)
	case 0x17:
		d.uType(Auipc)
	case 0x6F:
		d.jType(Jal)
	case 0x67:
		if funct3 == 0 {
			d.iType(Jalr)
		}
	case 0x63:
		switch funct3 {
		case 0:
			d.bType(Beq)
		case 1:
			d.bType(Bne)
		case 4:
			d.bType(Blt)
		case 5:
			d.bType(Bge)
		case 6:
			d.bType(Bltu)
		case 7:
			d.bType(Bgeu)
		}
	case 0x03:
		switch funct3 {
		case 0:
			d.iType(Lb)
		case 1:
			d.iType(Lh)
		case 2:
			d.iType(Lw)
		case 3:
			d.iType(Ld)
		case 4:
			d.iType(Lbu)
		case 5:
			d.iType(Lhu)
		case 6:
			d.iType(Lwu)
		}
	case 0x23:
		switch funct3 {
		case 0:
			d.sType(Sb)
		case 1:
			d.sType(Sh)
		case 2:
			d.sType(Sw)
		case 3:
			d.sType(Sd)
		}
	case 0x13:
		switch funct3 {
		case 0:
			d.iType(Addi)
		case 1:
			if raw>>26 == 0 {
				d.iType(Slli)
			}
		case 2:
			d.iType(Slti)
		case 3:
			d.iType(Sltiu)
		case 4:
			d.iType(Xori)
		case 5:
			switch raw >> 26 {
			case 0x00:
				d.iType(Srli)
			case 0x10:
				d.iType(Srai)
			}
		case 6:
			d.iType(Ori)
		case 7:
			d.iType(Andi)
		}
	case 0x1B:
		switch funct3 {
		case 0:
			d.iType(Addiw)
		case 1:
			if funct7 == 0 {
				d.iType(Slliw)
			}
		case 5:
			switch funct7 {
			case 0x00:
				d.iType(Srliw)
			case 0x20:
				d.iType(Sraiw)
			}
		}
	case 0x33:
		switch funct7 {
		case 0x01:
			switch funct3 {
			case 0:
				d.rType(Mul)
			case 1:
				d.rType(Mulh)
			case 2:
				d.rType(Mulhsu)
			case 3:
				d.rType(Mulhu)
			case 4:
				d.rType(Div)
			case 5:
				d.rType(Divu)
			case 6:
				d.rType(Rem)
			case 7:
				d.rType(Remu)
			}
		case 0x00:
			switch funct3 {
			case 0:
				d.rType(Add)
			case 1:
				d.rType(Sll)
			case 2:
				d.rType(Slt)
			case 3:
				d.rType(Sltu)
			case 4:
				d.rType(Xor)
			case 5:
				d.rType(Srl)
			case 6:
				d.rType(Or)
			case 7:
				d.rType(And)
			}
		case 0x20:
			switch funct3 {
			case 0:
				d.rType(Sub)
			case 5:
				d.rType(Sra)
			}
		}
	case 0x3B:
		switch funct7 {
		case 0x01:
			switch funct3 {
			case 0:
				d.rType(Mulw)
			case 4:
				d.rType(Divw)
			case 5:
				d.rType(Divuw)
			case 6:
				d.rType(Remw)
			case 7:
				d.rType(Remuw)
			}
		case 0x00:
			switch funct3 {
			case 0:
				d.rType(Addw)
			case 1:
				d.rType(Sllw)
			case 5:
				d.rType(Srlw)
			}
		case 0x20:
			switch funct3 {
			case 0:
				d.rType(Subw)
			case 5:
				d.rType(Sraw)
			}
		}
	case 0x0F:
		switch funct3 {
		case 0:
			d.iType(Fence)
		case 1:
			d.iType(FenceI)
		}
	case 0x73:
		d.decodeSystem()
	case 0x2F:
		d.decodeAtomic()
	case 0x07:
		switch funct3 {
		case 2:
			d.iType(Flw)
		case 3:
			d.iType(Fld)
		}
	case 0x27:
		switch funct3 {
		case 2:
			d.sType(Fsw)
		case 3:
			d.sType(Fsd)
		}
	case 0x43, 0x47, 0x4B, 0x4F:
		d.decodeFma()
	case 0x53:
		d.decodeOpFp()
	}

	return d
}

func (d *Decoded) setRegs() {
	d.Rd = (d.Raw >> 7) & 0x1F
	d.Rs1 = (d.Raw >> 15) & 0x1F
	d.Rs2 = (d.Raw >> 20) & 0x1F
	d.Rs3 = d.Raw >> 27
}

func (d *Decoded) iType(n Name) {
	d.Name = n
	d.Format = FormatI
	d.setRegs()
	d.Imm = sext(uint64(d.Raw>>20), 12)
}

func (d *Decoded) uType(n Name) {
	d.Name = n
	d.Format = FormatU
	d.setRegs()
	d.Imm = sext(uint64(d.Raw&0xFFFF_F000), 32)
}

func (d *Decoded) sType(n Name) {
	d.Name = n
	d.Format = FormatS
	d.setRegs()
	imm := uint64(d.Raw>>25)<<5 | uint64((d.Raw>>7)&0x1F)
	d.Imm = sext(imm, 12)
}

func (d *Decoded) bType(n Name) {
	d.Name = n
	d.Format = FormatB
	d.setRegs()
	imm := uint64(d.Raw>>31)<<12 |
		uint64((d.Raw>>7)&1)<<11 |
		uint64((d.Raw>>25)&0x3F)<<5 |
		uint64((d.Raw>>8)&0xF)<<1
	d.Imm = sext(imm, 13)
}

func (d *Decoded) jType(n Name) {
	d.Name = n
	d.Format = FormatJ
	d.setRegs()
	imm := uint64(d.Raw>>31)<<20 |
		uint64((d.Raw>>12)&0xFF)<<12 |
		uint64((d.Raw>>20)&1)<<11 |
		uint64((d.Raw>>21)&0x3FF)<<1
	d.Imm = sext(imm, 21)
}

func (d *Decoded) rType(n Name) {
	d.Name = n
	d.Format = FormatR
	d.setRegs()
}

func (d *Decoded) r4Type(n Name) {
	d.Name = n
	d.Format = FormatR4
	d.setRegs()
}

func (d *Decoded) decodeSystem() {
	funct3 := (d.Raw >> 12) & 7
	switch funct3 {
	case 0:
		// No register operands outside rs1/rd==0 patterns.
		switch d.Raw {
		case 0x0000_0073:
			d.iType(Ecall)
		case 0x0010_0073:
			d.iType(Ebreak)
		case 0x1020_0073:
			d.iType(Sret)
		case 0x3020_0073:
			d.iType(Mret)
		case 0x1050_0073:
			d.iType(Wfi)
		default:
			if d.Raw>>25 == 0x09 && (d.Raw>>7)&0x1F == 0 {
				d.rType(SfenceVma)
			}
		}
	case 1:
		d.iType(Csrrw)
	case 2:
		d.iType(Csrrs)
	case 3:
		d.iType(Csrrc)
	case 5:
		d.iType(Csrrwi)
	case 6:
		d.iType(Csrrsi)
	case 7:
		d.iType(Csrrci)
	}
}

func (d *Decoded) decodeAtomic() {
	funct3 := (d.Raw >> 12) & 7
	funct5 := d.Raw >> 27

	var n Name
	switch {
	case funct3 == 2:
		switch funct5 {
		case 0x02:
			n = LrW
		case 0x03:
			n = ScW
		case 0x01:
			n = AmoswapW
		case 0x00:
			n = AmoaddW
		case 0x04:
			n = AmoxorW
		case 0x0C:
			n = AmoandW
		case 0x08:
			n = AmoorW
		case 0x10:
			n = AmominW
		case 0x14:
			n = AmomaxW
		case 0x18:
			n = AmominuW
		case 0x1C:
			n = AmomaxuW
		default:
			return
		}
	case funct3 == 3:
		switch funct5 {
		case 0x02:
			n = LrD
		case 0x03:
			n = ScD
		case 0x01:
			n = AmoswapD
		case 0x00:
			n = AmoaddD
		case 0x04:
			n = AmoxorD
		case 0x0C:
			n = AmoandD
		case 0x08:
			n = AmoorD
		case 0x10:
			n = AmominD
		case 0x14:
			n = AmomaxD
		case 0x18:
			n = AmominuD
		case 0x1C:
			n = AmomaxuD
		default:
			return
		}
	default:
		return
	}

	if (n == LrW || n == LrD) && (d.Raw>>20)&0x1F != 0 {
		return
	}
	d.rType(n)
}

func (d *Decoded) decodeFma() {
	fmt := (d.Raw >> 25) & 3
	var n Name
	switch d.Raw & 0x7F {
	case 0x43:
		n = FmaddS
	case 0x47:
		n = FmsubS
	case 0x4B:
		n = FnmsubS
	default:
		n = FnmaddS
	}
	switch fmt {
	case 0:
	case 1:
		// The D variants sit at a fixed offset from the S variants in the
		// name table.
		n += FmaddD - FmaddS
	default:
		return
	}
	d.r4Type(n)
}

func (d *Decoded) decodeOpFp() {
	funct7 := d.Raw >> 25
	rm := (d.Raw >> 12) & 7
	rs2 := (d.Raw >> 20) & 0x1F

	switch funct7 {
	case 0x00:
		d.rType(FaddS)
	case 0x01:
		d.rType(FaddD)
	case 0x04:
		d.rType(FsubS)
	case 0x05:
		d.rType(FsubD)
	case 0x08:
		d.rType(FmulS)
	case 0x09:
		d.rType(FmulD)
	case 0x0C:
		d.rType(FdivS)
	case 0x0D:
		d.rType(FdivD)
	case 0x2C:
		if rs2 == 0 {
			d.rType(FsqrtS)
		}
	case 0x2D:
		if rs2 == 0 {
			d.rType(FsqrtD)
		}
	case 0x10:
		switch rm {
		case 0:
			d.rType(FsgnjS)
		case 1:
			d.rType(FsgnjnS)
		case 2:
			d.rType(FsgnjxS)
		}
	case 0x11:
		switch rm {
		case 0:
			d.rType(FsgnjD)
		case 1:
			d.rType(FsgnjnD)
		case 2:
			d.rType(FsgnjxD)
		}
	case 0x14:
		switch rm {
		case 0:
			d.rType(FminS)
		case 1:
			d.rType(FmaxS)
		}
	case 0x15:
		switch rm {
		case 0:
			d.rType(FminD)
		case 1:
			d.rType(FmaxD)
		}
	case 0x50:
		switch rm {
		case 0:
			d.rType(FleS)
		case 1:
			d.rType(FltS)
		case 2:
			d.rType(FeqS)
		}
	case 0x51:
		switch rm {
		case 0:
			d.rType(FleD)
		case 1:
			d.rType(FltD)
		case 2:
			d.rType(FeqD)
		}
	case 0x60:
		switch rs2 {
		case 0:
			d.rType(FcvtWS)
		case 1:
			d.rType(FcvtWuS)
		case 2:
			d.rType(FcvtLS)
		case 3:
			d.rType(FcvtLuS)
		}
	case 0x61:
		switch rs2 {
		case 0:
			d.rType(FcvtWD)
		case 1:
			d.rType(FcvtWuD)
		case 2:
			d.rType(FcvtLD)
		case 3:
			d.rType(FcvtLuD)
		}
	case 0x68:
		switch rs2 {
		case 0:
			d.rType(FcvtSW)
		case 1:
			d.rType(FcvtSWu)
		case 2:
			d.rType(FcvtSL)
		case 3:
			d.rType(FcvtSLu)
		}
	case 0x69:
		switch rs2 {
		case 0:
			d.rType(FcvtDW)
		case 1:
			d.rType(FcvtDWu)
		case 2:
			d.rType(FcvtDL)
		case 3:
			d.rType(FcvtDLu)
		}
	case 0x20:
		if rs2 == 1 {
			d.rType(FcvtSD)
		}
	case 0x21:
		if rs2 == 0 {
			d.rType(FcvtDS)
		}
	case 0x70:
		switch {
		case rs2 == 0 && rm == 0:
			d.rType(FmvXW)
		case rs2 == 0 && rm == 1:
			d.rType(FclassS)
		}
	case 0x71:
		switch {
		case rs2 == 0 && rm == 0:
			d.rType(FmvXD)
		case rs2 == 0 && rm == 1:
			d.rType(FclassD)
		}
	case 0x78:
		if rs2 == 0 && rm == 0 {
			d.rType(FmvWX)
		}
	case 0x79:
		if rs2 == 0 && rm == 0 {
			d.rType(FmvDX)
		}
	}
}
