package decode

// Name identifies an instruction. It doubles as the executor handle: the
// executor package dispatches through a table indexed by Name.
type Name uint16

const (
	// Invalid encodings.
	Inv Name = iota
	CInv

	// RV64I.
	Add
	Addi
	Addiw
	Addw
	And
	Andi
	Auipc
	Beq
	Bge
	Bgeu
	Blt
	Bltu
	Bne
	Fence
	FenceI
	Jal
	Jalr
	Lb
	Lbu
	Ld
	Lh
	Lhu
	Lui
	Lw
	Lwu
	Or
	Ori
	Sb
	Sd
	Sh
	Sw
	Sll
	Slli
	Slliw
	Sllw
	Slt
	Slti
	Sltiu
	Sltu
	Sra
	Srai
	Sraiw
	Sraw
	Srl
	Srli
	Srliw
	Srlw
	Sub
	Subw
	Xor
	Xori

	// Zicsr.
	Csrrc
	Csrrci
	Csrrs
	Csrrsi
	Csrrw
	Csrrwi

	// Privileged.
	Ebreak
	Ecall
	Mret
	Sret
	Wfi
	SfenceVma

	// RV64M.
	Mul
	Mulh
	Mulhsu
	Mulhu
	Mulw
	Div
	Divu
	Divuw
	Divw
	Rem
	Remu
	Remuw
	Remw

	// RV64A.
	LrW
	LrD
	ScW
	ScD
	AmoswapW
	AmoswapD
	AmoaddW
	AmoaddD
	AmoxorW
	AmoxorD
	AmoandW
	AmoandD
	AmoorW
	AmoorD
	AmominW
	AmominD
	AmomaxW
	AmomaxD
	AmominuW
	AmominuD
	AmomaxuW
	AmomaxuD

	// RV64F.
	Flw
	Fsw
	FaddS
	FsubS
	FmulS
	FdivS
	FsqrtS
	FsgnjS
	FsgnjnS
	FsgnjxS
	FminS
	FmaxS
	FclassS
	FeqS
	FltS
	FleS
	FmaddS
	FmsubS
	FnmsubS
	FnmaddS
	FcvtWS
	FcvtWuS
	FcvtLS
	FcvtLuS
	FcvtSW
	FcvtSWu
	FcvtSL
	FcvtSLu
	FmvXW
	FmvWX

	// RV64D.
	Fld
	Fsd
	FaddD
	FsubD
	FmulD
	FdivD
	FsqrtD
	FsgnjD
	FsgnjnD
	FsgnjxD
	FminD
	FmaxD
	FclassD
	FeqD
	FltD
	FleD
	FmaddD
	FmsubD
	FnmsubD
	FnmaddD
	FcvtWD
	FcvtWuD
	FcvtLD
	FcvtLuD
	FcvtDW
	FcvtDWu
	FcvtDL
	FcvtDLu
	FcvtSD
	FcvtDS
	FmvXD
	FmvDX

	// RV64C.
	CNop
	CAddi
	CAddiw
	CLi
	CAddi16sp
	CLui
	CSrli
	CSrai
	CAndi
	CSub
	CXor
	COr
	CAnd
	CSubw
	CAddw
	CJ
	CBeqz
	CBnez
	CAddi4spn
	CFld
	CLw
	CLd
	CFsd
	CSw
	CSd
	CSlli
	CFldsp
	CLwsp
	CLdsp
	CJr
	CMv
	CEbreak
	CJalr
	CAdd
	CFsdsp
	CSwsp
	CSdsp

	NameCount
)

// Format tags the encoding format the operands were extracted with.
type Format uint8

const (
	FormatI Format = iota
	FormatU
	FormatS
	FormatJ
	FormatR
	FormatB
	FormatR4

	FormatCR
	FormatCI
	FormatCSS
	FormatCIW
	FormatCL
	FormatCS
	FormatCA
	FormatCB
	FormatCJ

	FormatN
)

// Decoded is the result of classifying one instruction word.
type Decoded struct {
	Raw    uint32
	Len    uint64 // 2 or 4 bytes
	Name   Name
	Format Format

	Rd  uint32
	Rs1 uint32
	Rs2 uint32
	Rs3 uint32
	Imm uint64 // sign-extended

	PC uint64
}

var names = map[Name]string{
	Inv: "inv", CInv: "c.inv",
	Add: "add", Addi: "addi", Addiw: "addiw", Addw: "addw", And: "and",
	Andi: "andi", Auipc: "auipc", Beq: "beq", Bge: "bge", Bgeu: "bgeu",
	Blt: "blt", Bltu: "bltu", Bne: "bne", Fence: "fence", FenceI: "fence.i",
	Jal: "jal", Jalr: "jalr", Lb: "lb", Lbu: "lbu", Ld: "ld", Lh: "lh",
	Lhu: "lhu", Lui: "lui", Lw: "lw", Lwu: "lwu", Or: "or", Ori: "ori",
	Sb: "sb", Sd: "sd", Sh: "sh", Sw: "sw", Sll: "sll", Slli: "slli",
	Slliw: "slliw", Sllw: "sllw", Slt: "slt", Slti: "slti", Sltiu: "sltiu",
	Sltu: "sltu", Sra: "sra", Srai: "srai", Sraiw: "sraiw", Sraw: "sraw",
	Srl: "srl", Srli: "srli", Srliw: "srliw", Srlw: "srlw", Sub: "sub",
	Subw: "subw", Xor: "xor", Xori: "xori",
	Csrrc: "csrrc", Csrrci: "csrrci", Csrrs: "csrrs", Csrrsi: "csrrsi",
	Csrrw: "csrrw", Csrrwi: "csrrwi",
	Ebreak: "ebreak", Ecall: "ecall", Mret: "mret", Sret: "sret",
	Wfi: "wfi", SfenceVma: "sfence.vma",
	Mul: "mul", Mulh: "mulh", Mulhsu: "mulhsu", Mulhu: "mulhu", Mulw: "mulw",
	Div: "div", Divu: "divu", Divuw: "divuw", Divw: "divw", Rem: "rem",
	Remu: "remu", Remuw: "remuw", Remw: "remw",
	LrW: "lr.w", LrD: "lr.d", ScW: "sc.w", ScD: "sc.d",
	AmoswapW: "amoswap.w", AmoswapD: "amoswap.d", AmoaddW: "amoadd.w",
	AmoaddD: "amoadd.d", AmoxorW: "amoxor.w", AmoxorD: "amoxor.d",
	AmoandW: "amoand.w", AmoandD: "amoand.d", AmoorW: "amoor.w",
	AmoorD: "amoor.d", AmominW: "amomin.w", AmominD: "amomin.d",
	AmomaxW: "amomax.w", AmomaxD: "amomax.d", AmominuW: "amominu.w",
	AmominuD: "amominu.d", AmomaxuW: "amomaxu.w", AmomaxuD: "amomaxu.d",
	Flw: "flw", Fsw: "fsw", FaddS: "fadd.s", FsubS: "fsub.s", FmulS: "fmul.s",
	FdivS: "fdiv.s", FsqrtS: "fsqrt.s", FsgnjS: "fsgnj.s", FsgnjnS: "fsgnjn.s",
	FsgnjxS: "fsgnjx.s", FminS: "fmin.s", FmaxS: "fmax.s", FclassS: "fclass.s",
	FeqS: "feq.s", FltS: "flt.s", FleS: "fle.s", FmaddS: "fmadd.s",
	FmsubS: "fmsub.s", FnmsubS: "fnmsub.s", FnmaddS: "fnmadd.s",
	FcvtWS: "fcvt.w.s", FcvtWuS: "fcvt.wu.s", FcvtLS: "fcvt.l.s",
	FcvtLuS: "fcvt.lu.s", FcvtSW: "fcvt.s.w", FcvtSWu: "fcvt.s.wu",
	FcvtSL: "fcvt.s.l", FcvtSLu: "fcvt.s.lu", FmvXW: "fmv.x.w", FmvWX: "fmv.w.x",
	Fld: "fld", Fsd: "fsd", FaddD: "fadd.d", FsubD: "fsub.d", FmulD: "fmul.d",
	FdivD: "fdiv.d", FsqrtD: "fsqrt.d", FsgnjD: "fsgnj.d", FsgnjnD: "fsgnjn.d",
	FsgnjxD: "fsgnjx.d", FminD: "fmin.d", FmaxD: "fmax.d", FclassD: "fclass.d",
	FeqD: "feq.d", FltD: "flt.d", FleD: "fle.d", FmaddD: "fmadd.d",
	FmsubD: "fmsub.d", FnmsubD: "fnmsub.d", FnmaddD: "fnmadd.d",
	FcvtWD: "fcvt.w.d", FcvtWuD: "fcvt.wu.d", FcvtLD: "fcvt.l.d",
	FcvtLuD: "fcvt.lu.d", FcvtDW: "fcvt.d.w", FcvtDWu: "fcvt.d.wu",
	FcvtDL: "fcvt.d.l", FcvtDLu: "fcvt.d.lu", FcvtSD: "fcvt.s.d",
	FcvtDS: "fcvt.d.s", FmvXD: "fmv.x.d", FmvDX: "fmv.d.x",
	CNop: "c.nop", CAddi: "c.addi", CAddiw: "c.addiw", CLi: "c.li",
	CAddi16sp: "c.addi16sp", CLui: "c.lui", CSrli: "c.srli", CSrai: "c.srai",
	CAndi: "c.andi", CSub: "c.sub", CXor: "c.xor", COr: "c.or", CAnd: "c.and",
	CSubw: "c.subw", CAddw: "c.addw", CJ: "c.j", CBeqz: "c.beqz",
	CBnez: "c.bnez", CAddi4spn: "c.addi4spn", CFld: "c.fld", CLw: "c.lw",
	CLd: "c.ld", CFsd: "c.fsd", CSw: "c.sw", CSd: "c.sd", CSlli: "c.slli",
	CFldsp: "c.fldsp", CLwsp: "c.lwsp", CLdsp: "c.ldsp", CJr: "c.jr",
	CMv: "c.mv", CEbreak: "c.ebreak", CJalr: "c.jalr", CAdd: "c.add",
	CFsdsp: "c.fsdsp", CSwsp: "c.swsp", CSdsp: "c.sdsp",
}

func (n Name) String() string {
	if s, ok := names[n]; ok {
		return s
	}
	return "unknown"
}
