package decode

// decodeCompressed classifies a 16-bit encoding. Compressed instructions
// decode to their own executors rather than expanding to the 32-bit forms,
// so the operand fields here are already in final form.
func decodeCompressed(raw uint32, pc uint64) Decoded {
	d := Decoded{Raw: raw, Len: 2, PC: pc, Name: CInv, Format: FormatN}

	if raw == 0 {
		// The all-zero encoding is defined illegal.
		return d
	}

	switch raw & 3 {
	case 0:
		d.decodeQuadrant0()
	case 1:
		d.decodeQuadrant1()
	case 2:
		d.decodeQuadrant2()
	}
	return d
}

// rdPrime extracts the 3-bit register field used by the CIW, CL, CS, CA and
// CB compressed forms (x8-x15).
func rdPrime(raw uint32, shift uint) uint32 {
	return (raw>>shift)&7 | 8
}

func (d *Decoded) decodeQuadrant0() {
	raw := d.Raw
	funct3 := (raw >> 13) & 7

	switch funct3 {
	case 0: // c.addi4spn
		imm := field(raw, 11, 4, 5) | field(raw, 7, 6, 9) |
			field(raw, 6, 2, 2) | field(raw, 5, 3, 3)
		if imm == 0 {
			return
		}
		d.Name = CAddi4spn
		d.Format = FormatCIW
		d.Rd = rdPrime(raw, 2)
		d.Rs1 = 2
		d.Imm = uint64(imm)
	case 1: // c.fld
		d.clFormat(CFld, field(raw, 10, 3, 5)|field(raw, 5, 6, 7))
	case 2: // c.lw
		d.clFormat(CLw, field(raw, 10, 3, 5)|field(raw, 6, 2, 2)|field(raw, 5, 6, 6))
	case 3: // c.ld
		d.clFormat(CLd, field(raw, 10, 3, 5)|field(raw, 5, 6, 7))
	case 5: // c.fsd
		d.csFormat(CFsd, field(raw, 10, 3, 5)|field(raw, 5, 6, 7))
	case 6: // c.sw
		d.csFormat(CSw, field(raw, 10, 3, 5)|field(raw, 6, 2, 2)|field(raw, 5, 6, 6))
	case 7: // c.sd
		d.csFormat(CSd, field(raw, 10, 3, 5)|field(raw, 5, 6, 7))
	}
}

func (d *Decoded) clFormat(n Name, imm uint32) {
	d.Name = n
	d.Format = FormatCL
	d.Rd = rdPrime(d.Raw, 2)
	d.Rs1 = rdPrime(d.Raw, 7)
	d.Imm = uint64(imm)
}

func (d *Decoded) csFormat(n Name, imm uint32) {
	d.Name = n
	d.Format = FormatCS
	d.Rs1 = rdPrime(d.Raw, 7)
	d.Rs2 = rdPrime(d.Raw, 2)
	d.Imm = uint64(imm)
}

func (d *Decoded) decodeQuadrant1() {
	raw := d.Raw
	funct3 := (raw >> 13) & 7
	rd := (raw >> 7) & 0x1F
	imm6 := sext(uint64(field(raw, 12, 5, 5)|field(raw, 2, 0, 4)), 6)

	switch funct3 {
	case 0:
		if rd == 0 {
			d.Name = CNop
			d.Format = FormatCI
			return
		}
		d.ciFormat(CAddi, rd, imm6)
	case 1: // c.addiw
		if rd == 0 {
			return
		}
		d.ciFormat(CAddiw, rd, imm6)
	case 2:
		if rd == 0 {
			return
		}
		d.ciFormat(CLi, rd, imm6)
	case 3:
		switch rd {
		case 0:
			return
		case 2: // c.addi16sp
			imm := sext(uint64(field(raw, 12, 9, 9)|field(raw, 6, 4, 4)|
				field(raw, 5, 6, 6)|field(raw, 3, 7, 8)|field(raw, 2, 5, 5)), 10)
			if imm == 0 {
				return
			}
			d.ciFormat(CAddi16sp, 2, imm)
		default: // c.lui
			imm := sext(uint64(field(raw, 12, 17, 17)|field(raw, 2, 12, 16)), 18)
			if imm == 0 {
				return
			}
			d.ciFormat(CLui, rd, imm)
		}
	case 4:
		d.decodeQuadrant1Alu()
	case 5: // c.j
		imm := sext(uint64(field(raw, 12, 11, 11)|field(raw, 11, 4, 4)|
			field(raw, 9, 8, 9)|field(raw, 8, 10, 10)|field(raw, 7, 6, 6)|
			field(raw, 6, 7, 7)|field(raw, 3, 1, 3)|field(raw, 2, 5, 5)), 12)
		d.Name = CJ
		d.Format = FormatCJ
		d.Imm = imm
	case 6, 7: // c.beqz / c.bnez
		imm := sext(uint64(field(raw, 12, 8, 8)|field(raw, 10, 3, 4)|
			field(raw, 5, 6, 7)|field(raw, 3, 1, 2)|field(raw, 2, 5, 5)), 9)
		if funct3 == 6 {
			d.Name = CBeqz
		} else {
			d.Name = CBnez
		}
		d.Format = FormatCB
		d.Rs1 = rdPrime(raw, 7)
		d.Imm = imm
	}
}

func (d *Decoded) ciFormat(n Name, rd uint32, imm uint64) {
	d.Name = n
	d.Format = FormatCI
	d.Rd = rd
	d.Rs1 = rd
	d.Imm = imm
}

func (d *Decoded) decodeQuadrant1Alu() {
	raw := d.Raw
	rd := rdPrime(raw, 7)

	switch (raw >> 10) & 3 {
	case 0, 1: // c.srli / c.srai
		shamt := field(raw, 12, 5, 5) | field(raw, 2, 0, 4)
		n := CSrli
		if (raw>>10)&3 == 1 {
			n = CSrai
		}
		d.cbAlu(n, rd, uint64(shamt))
	case 2: // c.andi
		d.cbAlu(CAndi, rd, sext(uint64(field(raw, 12, 5, 5)|field(raw, 2, 0, 4)), 6))
	case 3:
		rs2 := rdPrime(raw, 2)
		sel := (raw>>5)&3 | (raw>>(12-2))&4
		var n Name
		switch sel {
		case 0:
			n = CSub
		case 1:
			n = CXor
		case 2:
			n = COr
		case 3:
			n = CAnd
		case 4:
			n = CSubw
		case 5:
			n = CAddw
		default:
			return
		}
		d.Name = n
		d.Format = FormatCA
		d.Rd = rd
		d.Rs1 = rd
		d.Rs2 = rs2
	}
}

func (d *Decoded) cbAlu(n Name, rd uint32, imm uint64) {
	d.Name = n
	d.Format = FormatCB
	d.Rd = rd
	d.Rs1 = rd
	d.Imm = imm
}

func (d *Decoded) decodeQuadrant2() {
	raw := d.Raw
	funct3 := (raw >> 13) & 7
	rd := (raw >> 7) & 0x1F
	rs2 := (raw >> 2) & 0x1F

	switch funct3 {
	case 0: // c.slli
		d.ciFormat(CSlli, rd, uint64(field(raw, 12, 5, 5)|rs2))
	case 1: // c.fldsp
		d.ciFormat(CFldsp, rd, uint64(field(raw, 12, 5, 5)|field(raw, 5, 3, 4)|field(raw, 2, 6, 8)))
	case 2: // c.lwsp
		if rd == 0 {
			return
		}
		d.ciFormat(CLwsp, rd, uint64(field(raw, 12, 5, 5)|field(raw, 4, 2, 4)|field(raw, 2, 6, 7)))
	case 3: // c.ldsp
		if rd == 0 {
			return
		}
		d.ciFormat(CLdsp, rd, uint64(field(raw, 12, 5, 5)|field(raw, 5, 3, 4)|field(raw, 2, 6, 8)))
	case 4:
		if (raw>>12)&1 == 0 {
			if rs2 == 0 { // c.jr
				if rd == 0 {
					return
				}
				d.crFormat(CJr, 0, rd, 0)
			} else { // c.mv
				d.crFormat(CMv, rd, 0, rs2)
			}
		} else {
			if rs2 == 0 {
				if rd == 0 { // c.ebreak
					d.crFormat(CEbreak, 0, 0, 0)
				} else { // c.jalr
					d.crFormat(CJalr, 1, rd, 0)
				}
			} else { // c.add
				d.crFormat(CAdd, rd, rd, rs2)
			}
		}
	case 5: // c.fsdsp
		d.cssFormat(CFsdsp, rs2, uint64(field(raw, 10, 3, 5)|field(raw, 7, 6, 8)))
	case 6: // c.swsp
		d.cssFormat(CSwsp, rs2, uint64(field(raw, 9, 2, 5)|field(raw, 7, 6, 7)))
	case 7: // c.sdsp
		d.cssFormat(CSdsp, rs2, uint64(field(raw, 10, 3, 5)|field(raw, 7, 6, 8)))
	}
}

func (d *Decoded) crFormat(n Name, rd, rs1, rs2 uint32) {
	d.Name = n
	d.Format = FormatCR
	d.Rd = rd
	d.Rs1 = rs1
	d.Rs2 = rs2
}

func (d *Decoded) cssFormat(n Name, rs2 uint32, imm uint64) {
	d.Name = n
	d.Format = FormatCSS
	d.Rs1 = 2
	d.Rs2 = rs2
	d.Imm = imm
}
