package csr

// CSR addresses.
const (
	AddrFFlags uint32 = 0x001
	AddrFrm    uint32 = 0x002
	AddrFcsr   uint32 = 0x003

	AddrSStatus    uint32 = 0x100
	AddrSie        uint32 = 0x104
	AddrStvec      uint32 = 0x105
	AddrSCounteren uint32 = 0x106
	AddrSEnvCfg    uint32 = 0x10A
	AddrSScratch   uint32 = 0x140
	AddrSepc       uint32 = 0x141
	AddrSCause     uint32 = 0x142
	AddrStval      uint32 = 0x143
	AddrSip        uint32 = 0x144
	AddrSTimecmp   uint32 = 0x14D
	AddrSatp       uint32 = 0x180

	AddrMStatus       uint32 = 0x300
	AddrMisa          uint32 = 0x301
	AddrMEDeleg       uint32 = 0x302
	AddrMIDeleg       uint32 = 0x303
	AddrMie           uint32 = 0x304
	AddrMtvec         uint32 = 0x305
	AddrMCounteren    uint32 = 0x306
	AddrMEnvCfg       uint32 = 0x30A
	AddrMCountInhibit uint32 = 0x320
	AddrMScratch      uint32 = 0x340
	AddrMepc          uint32 = 0x341
	AddrMCause        uint32 = 0x342
	AddrMtval         uint32 = 0x343
	AddrMip           uint32 = 0x344

	AddrPmpCfg0   uint32 = 0x3A0
	AddrPmpAddr0  uint32 = 0x3B0
	AddrPmpAddr63 uint32 = 0x3EF

	AddrTSelect uint32 = 0x7A0
	AddrTData1  uint32 = 0x7A1
	AddrTData3  uint32 = 0x7A3

	AddrMCycle      uint32 = 0xB00
	AddrMInstret    uint32 = 0xB02
	AddrMHpmCtr3    uint32 = 0xB03
	AddrMHpmCtr31   uint32 = 0xB1F
	AddrMHpmEvent3  uint32 = 0x323
	AddrMHpmEvent31 uint32 = 0x33F

	AddrCycle    uint32 = 0xC00
	AddrTime     uint32 = 0xC01
	AddrInstret  uint32 = 0xC02
	AddrHpmCtr3  uint32 = 0xC03
	AddrHpmCtr31 uint32 = 0xC1F

	AddrMVendorID  uint32 = 0xF11
	AddrMArchID    uint32 = 0xF12
	AddrMImpID     uint32 = 0xF13
	AddrMHartID    uint32 = 0xF14
	AddrMConfigPtr uint32 = 0xF15
)

// misa extension bits.
const (
	MisaA uint64 = 1 << ('A' - 'A')
	MisaC uint64 = 1 << ('C' - 'A')
	MisaD uint64 = 1 << ('D' - 'A')
	MisaF uint64 = 1 << ('F' - 'A')
	MisaI uint64 = 1 << ('I' - 'A')
	MisaM uint64 = 1 << ('M' - 'A')
	MisaS uint64 = 1 << ('S' - 'A')
	MisaU uint64 = 1 << ('U' - 'A')

	MisaMXLShift = 62
	MisaMXL64    = uint64(2) << MisaMXLShift
)

// mstatus fields.
const (
	StatusSIEShift  = 1
	StatusMIEShift  = 3
	StatusSPIEShift = 5
	StatusMPIEShift = 7
	StatusSPPShift  = 8
	StatusMPPShift  = 11
	StatusFSShift   = 13
	StatusXSShift   = 15
	StatusMPRVShift = 17
	StatusSUMShift  = 18
	StatusMXRShift  = 19
	StatusTVMShift  = 20
	StatusTWShift   = 21
	StatusTSRShift  = 22
	StatusUXLShift  = 32
	StatusSXLShift  = 34
	StatusSDShift   = 63

	StatusSIE  uint64 = 1 << StatusSIEShift
	StatusMIE  uint64 = 1 << StatusMIEShift
	StatusSPIE uint64 = 1 << StatusSPIEShift
	StatusMPIE uint64 = 1 << StatusMPIEShift
	StatusSPP  uint64 = 1 << StatusSPPShift
	StatusMPP  uint64 = 3 << StatusMPPShift
	StatusFS   uint64 = 3 << StatusFSShift
	StatusXS   uint64 = 3 << StatusXSShift
	StatusMPRV uint64 = 1 << StatusMPRVShift
	StatusSUM  uint64 = 1 << StatusSUMShift
	StatusMXR  uint64 = 1 << StatusMXRShift
	StatusTVM  uint64 = 1 << StatusTVMShift
	StatusTW   uint64 = 1 << StatusTWShift
	StatusTSR  uint64 = 1 << StatusTSRShift
	StatusUXL  uint64 = 3 << StatusUXLShift
	StatusSXL  uint64 = 3 << StatusSXLShift
	StatusSD   uint64 = 1 << StatusSDShift
)

// FS field encodings.
const (
	FSOff     uint64 = 0
	FSInitial uint64 = 1
	FSClean   uint64 = 2
	FSDirty   uint64 = 3
)

// sstatus is the S-mode view of mstatus.
const SStatusMask = StatusSIE | StatusSPIE | StatusSPP | StatusFS |
	StatusSUM | StatusMXR | StatusUXL | StatusSD

// Interrupt-pending / interrupt-enable bits (mip/mie).
const (
	IntSSI uint64 = 1 << 1
	IntMSI uint64 = 1 << 3
	IntSTI uint64 = 1 << 5
	IntMTI uint64 = 1 << 7
	IntSEI uint64 = 1 << 9
	IntMEI uint64 = 1 << 11

	IntMachineSet    = IntMSI | IntMTI | IntMEI
	IntSupervisorSet = IntSSI | IntSTI | IntSEI
	IntAll           = IntMachineSet | IntSupervisorSet
)

// xtvec fields.
const (
	TvecModeDirect   uint64 = 0
	TvecModeVectored uint64 = 1
	TvecModeMask     uint64 = 3
	TvecBaseMask            = ^TvecModeMask
)

// satp fields.
const (
	SatpModeShift        = 60
	SatpModeBare  uint64 = 0
	SatpModeSv39  uint64 = 8
	SatpPPNMask   uint64 = (1 << 44) - 1
	SatpASIDShift        = 44
	SatpASIDMask  uint64 = 0xFFFF
)

// menvcfg / senvcfg fields.
const (
	EnvCfgFIOM uint64 = 1 << 0
	EnvCfgADUE uint64 = 1 << 61
	EnvCfgSTCE uint64 = 1 << 63
)

// mcounteren / scounteren bits.
const (
	CounterenCY uint64 = 1 << 0
	CounterenTM uint64 = 1 << 1
	CounterenIR uint64 = 1 << 2
)

// mcountinhibit bits.
const (
	InhibitCY uint64 = 1 << 0
	InhibitIR uint64 = 1 << 2
)

// fcsr layout: fflags in [4:0], frm in [7:5].
const (
	FFlagsMask  uint64 = 0x1F
	FrmMask     uint64 = 0x7
	FcsrFrmOff         = 5
	FFlagNX     uint64 = 1 << 0
	FFlagUF     uint64 = 1 << 1
	FFlagOF     uint64 = 1 << 2
	FFlagDZ     uint64 = 1 << 3
	FFlagNV     uint64 = 1 << 4
	FrmRNE      uint64 = 0
	FrmRTZ      uint64 = 1
	FrmRDN      uint64 = 2
	FrmRUP      uint64 = 3
	FrmRMM      uint64 = 4
	FrmDYN      uint64 = 7
)
