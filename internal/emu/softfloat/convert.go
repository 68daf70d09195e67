package softfloat

import "math"

// Two's-complement bit patterns of the int32/int64 minimum values, computed
// at runtime (via the intermediate vars) to avoid the constant-overflow
// check on uint64(negative).
var (
	minInt32      int32 = math.MinInt32
	maxInt32      int32 = math.MaxInt32
	minInt64      int64 = math.MinInt64
	maxInt64      int64 = math.MaxInt64
	minInt32Bits        = uint64(int64(minInt32))
	maxInt32Bits        = uint64(int64(maxInt32))
	minInt64Bits        = uint64(minInt64)
	maxInt64Bits        = uint64(maxInt64)
)

// roundInt applies the rounding mode to a finite value before integer
// truncation.
func roundInt(x float64, rm int) float64 {
	switch rm {
	case RoundTowardZero:
		return math.Trunc(x)
	case RoundDown:
		return math.Floor(x)
	case RoundUp:
		return math.Ceil(x)
	case RoundNearestMax:
		// Ties away from zero.
		if x >= 0 {
			return math.Floor(x + 0.5)
		}
		return math.Ceil(x - 0.5)
	default:
		return math.RoundToEven(x)
	}
}

func cvtToInt(x float64, rm int, min, max float64, minRes, maxRes uint64) (uint64, uint64) {
	if math.IsNaN(x) {
		return maxRes, FlagNV
	}
	r := roundInt(x, rm)
	if r < min {
		return minRes, FlagNV
	}
	if r > max {
		return maxRes, FlagNV
	}
	var flags uint64
	if r != x {
		flags = FlagNX
	}
	if r < 0 {
		return uint64(int64(r)), flags
	}
	return uint64(r), flags
}

// F32ToI32 implements fcvt.w.s; the result is sign-extended to 64 bits.
func F32ToI32(a uint32, rm int) (uint64, uint64) {
	v, flags := cvtToInt(float64(f32(a)), rm,
		math.MinInt32, math.MaxInt32,
		minInt32Bits, maxInt32Bits)
	return uint64(int64(int32(v))), flags
}

// F32ToU32 implements fcvt.wu.s.
func F32ToU32(a uint32, rm int) (uint64, uint64) {
	v, flags := cvtToInt(float64(f32(a)), rm, 0, math.MaxUint32, 0, math.MaxUint32)
	return uint64(int64(int32(uint32(v)))), flags
}

// F32ToI64 implements fcvt.l.s.
func F32ToI64(a uint32, rm int) (uint64, uint64) {
	return cvtToInt(float64(f32(a)), rm,
		math.MinInt64, math.MaxInt64,
		minInt64Bits, maxInt64Bits)
}

// F32ToU64 implements fcvt.lu.s.
func F32ToU64(a uint32, rm int) (uint64, uint64) {
	return cvtToInt(float64(f32(a)), rm, 0, math.MaxUint64, 0, math.MaxUint64)
}

// F64ToI32 implements fcvt.w.d.
func F64ToI32(a uint64, rm int) (uint64, uint64) {
	v, flags := cvtToInt(f64(a), rm,
		math.MinInt32, math.MaxInt32,
		minInt32Bits, maxInt32Bits)
	return uint64(int64(int32(v))), flags
}

// F64ToU32 implements fcvt.wu.d.
func F64ToU32(a uint64, rm int) (uint64, uint64) {
	v, flags := cvtToInt(f64(a), rm, 0, math.MaxUint32, 0, math.MaxUint32)
	return uint64(int64(int32(uint32(v)))), flags
}

// F64ToI64 implements fcvt.l.d.
func F64ToI64(a uint64, rm int) (uint64, uint64) {
	return cvtToInt(f64(a), rm,
		math.MinInt64, math.MaxInt64,
		minInt64Bits, maxInt64Bits)
}

// F64ToU64 implements fcvt.lu.d.
func F64ToU64(a uint64, rm int) (uint64, uint64) {
	return cvtToInt(f64(a), rm, 0, math.MaxUint64, 0, math.MaxUint64)
}

// I32ToF32 implements fcvt.s.w.
func I32ToF32(v int32, rm int) (uint32, uint64) {
	return round32(float64(v), rm)
}

// U32ToF32 implements fcvt.s.wu.
func U32ToF32(v uint32, rm int) (uint32, uint64) {
	return round32(float64(v), rm)
}

// I64ToF32 implements fcvt.s.l.
func I64ToF32(v int64, rm int) (uint32, uint64) {
	return round32(float64(v), rm)
}

// U64ToF32 implements fcvt.s.lu.
func U64ToF32(v uint64, rm int) (uint32, uint64) {
	return round32(float64(v), rm)
}

// I32ToF64 implements fcvt.d.w; exact for all 32-bit inputs.
func I32ToF64(v int32) uint64 {
	return b64(float64(v))
}

// U32ToF64 implements fcvt.d.wu.
func U32ToF64(v uint32) uint64 {
	return b64(float64(v))
}

// I64ToF64 implements fcvt.d.l.
func I64ToF64(v int64) (uint64, uint64) {
	r := float64(v)
	var flags uint64
	if int64(r) != v && !math.IsInf(r, 0) {
		flags = FlagNX
	}
	return b64(r), flags
}

// U64ToF64 implements fcvt.d.lu.
func U64ToF64(v uint64) (uint64, uint64) {
	r := float64(v)
	var flags uint64
	if r < 0 || uint64(r) != v {
		if !math.IsInf(r, 0) {
			flags = FlagNX
		}
	}
	return b64(r), flags
}

// F64ToF32 implements fcvt.s.d.
func F64ToF32(a uint64, rm int) (uint32, uint64) {
	if IsNaN64(a) {
		return QNaN32, nvOnSNaN64(a)
	}
	return round32(f64(a), rm)
}

// F32ToF64 implements fcvt.d.s; widening is exact.
func F32ToF64(a uint32) (uint64, uint64) {
	if IsNaN32(a) {
		return QNaN64, nvOnSNaN32(a)
	}
	return b64(float64(f32(a))), 0
}
