package softfloat

// Min32 implements fmin.s: signaling NaNs set NV, a single NaN operand
// yields the other operand, two NaNs yield the canonical quiet NaN, and
// -0.0 orders below +0.0.
func Min32(a, b uint32) (uint32, uint64) {
	flags := nvOnSNaN32(a, b)
	switch {
	case IsNaN32(a) && IsNaN32(b):
		return QNaN32, flags
	case IsNaN32(a):
		return b, flags
	case IsNaN32(b):
		return a, flags
	}
	x, y := f32(a), f32(b)
	if x == y {
		// pick -0.0 over +0.0
		if a == 0x8000_0000 || b == 0x8000_0000 {
			return 0x8000_0000, flags
		}
		return a, flags
	}
	if x < y {
		return a, flags
	}
	return b, flags
}

// Max32 implements fmax.s with the mirrored zero rule.
func Max32(a, b uint32) (uint32, uint64) {
	flags := nvOnSNaN32(a, b)
	switch {
	case IsNaN32(a) && IsNaN32(b):
		return QNaN32, flags
	case IsNaN32(a):
		return b, flags
	case IsNaN32(b):
		return a, flags
	}
	x, y := f32(a), f32(b)
	if x == y {
		if a == 0 || b == 0 {
			return 0, flags
		}
		return a, flags
	}
	if x > y {
		return a, flags
	}
	return b, flags
}

// Min64 implements fmin.d.
func Min64(a, b uint64) (uint64, uint64) {
	flags := nvOnSNaN64(a, b)
	switch {
	case IsNaN64(a) && IsNaN64(b):
		return QNaN64, flags
	case IsNaN64(a):
		return b, flags
	case IsNaN64(b):
		return a, flags
	}
	x, y := f64(a), f64(b)
	if x == y {
		if a == 0x8000_0000_0000_0000 || b == 0x8000_0000_0000_0000 {
			return 0x8000_0000_0000_0000, flags
		}
		return a, flags
	}
	if x < y {
		return a, flags
	}
	return b, flags
}

// Max64 implements fmax.d.
func Max64(a, b uint64) (uint64, uint64) {
	flags := nvOnSNaN64(a, b)
	switch {
	case IsNaN64(a) && IsNaN64(b):
		return QNaN64, flags
	case IsNaN64(a):
		return b, flags
	case IsNaN64(b):
		return a, flags
	}
	x, y := f64(a), f64(b)
	if x == y {
		if a == 0 || b == 0 {
			return 0, flags
		}
		return a, flags
	}
	if x > y {
		return a, flags
	}
	return b, flags
}

// Eq32 is the quiet equality: NV only for signaling NaN operands.
func Eq32(a, b uint32) (uint64, uint64) {
	if IsNaN32(a) || IsNaN32(b) {
		return 0, nvOnSNaN32(a, b)
	}
	if f32(a) == f32(b) {
		return 1, 0
	}
	return 0, 0
}

// Lt32 is the signaling less-than: NV for any NaN operand.
func Lt32(a, b uint32) (uint64, uint64) {
	if IsNaN32(a) || IsNaN32(b) {
		return 0, FlagNV
	}
	if f32(a) < f32(b) {
		return 1, 0
	}
	return 0, 0
}

// Le32 is the signaling less-or-equal.
func Le32(a, b uint32) (uint64, uint64) {
	if IsNaN32(a) || IsNaN32(b) {
		return 0, FlagNV
	}
	if f32(a) <= f32(b) {
		return 1, 0
	}
	return 0, 0
}

// Eq64 is the quiet equality for doubles.
func Eq64(a, b uint64) (uint64, uint64) {
	if IsNaN64(a) || IsNaN64(b) {
		return 0, nvOnSNaN64(a, b)
	}
	if f64(a) == f64(b) {
		return 1, 0
	}
	return 0, 0
}

// Lt64 is the signaling less-than for doubles.
func Lt64(a, b uint64) (uint64, uint64) {
	if IsNaN64(a) || IsNaN64(b) {
		return 0, FlagNV
	}
	if f64(a) < f64(b) {
		return 1, 0
	}
	return 0, 0
}

// Le64 is the signaling less-or-equal for doubles.
func Le64(a, b uint64) (uint64, uint64) {
	if IsNaN64(a) || IsNaN64(b) {
		return 0, FlagNV
	}
	if f64(a) <= f64(b) {
		return 1, 0
	}
	return 0, 0
}

// FCLASS result bits.
const (
	ClassNegInf       uint64 = 1 << 0
	ClassNegNormal    uint64 = 1 << 1
	ClassNegSubnormal uint64 = 1 << 2
	ClassNegZero      uint64 = 1 << 3
	ClassPosZero      uint64 = 1 << 4
	ClassPosSubnormal uint64 = 1 << 5
	ClassPosNormal    uint64 = 1 << 6
	ClassPosInf       uint64 = 1 << 7
	ClassSNaN         uint64 = 1 << 8
	ClassQNaN         uint64 = 1 << 9
)

// Class32 implements fclass.s.
func Class32(a uint32) uint64 {
	switch {
	case IsSNaN32(a):
		return ClassSNaN
	case IsNaN32(a):
		return ClassQNaN
	}
	sign := a&0x8000_0000 != 0
	exp := (a >> 23) & 0xFF
	frac := a & 0x007F_FFFF
	switch {
	case exp == 0xFF:
		if sign {
			return ClassNegInf
		}
		return ClassPosInf
	case exp == 0 && frac == 0:
		if sign {
			return ClassNegZero
		}
		return ClassPosZero
	case exp == 0:
		if sign {
			return ClassNegSubnormal
		}
		return ClassPosSubnormal
	default:
		if sign {
			return ClassNegNormal
		}
		return ClassPosNormal
	}
}

// Class64 implements fclass.d.
func Class64(a uint64) uint64 {
	switch {
	case IsSNaN64(a):
		return ClassSNaN
	case IsNaN64(a):
		return ClassQNaN
	}
	sign := a&0x8000_0000_0000_0000 != 0
	exp := (a >> 52) & 0x7FF
	frac := a & 0x000F_FFFF_FFFF_FFFF
	switch {
	case exp == 0x7FF:
		if sign {
			return ClassNegInf
		}
		return ClassPosInf
	case exp == 0 && frac == 0:
		if sign {
			return ClassNegZero
		}
		return ClassPosZero
	case exp == 0:
		if sign {
			return ClassNegSubnormal
		}
		return ClassPosSubnormal
	default:
		if sign {
			return ClassNegNormal
		}
		return ClassPosNormal
	}
}
