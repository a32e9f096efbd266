package riscv

import "math/bits"

// Division and remainder follow the RISC-V spec's defined behavior for the edge cases
// (division by zero, signed overflow) rather than raising a trap.

func divSigned(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	if a == minInt64 && b == -1 {
		return minInt64
	}
	return a / b
}

func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b int64) int64 {
	if b == 0 {
		return a
	}
	if a == minInt64 && b == -1 {
		return 0
	}
	return a % b
}

func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func divSigned32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == minInt32 && b == -1 {
		return minInt32
	}
	return a / b
}

func divUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func remSigned32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == minInt32 && b == -1 {
		return 0
	}
	return a % b
}

func remUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

const (
	minInt64 = -1 << 63
	minInt32 = -1 << 31
)

func mulHighSigned(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(absInt64(a)), uint64(absInt64(b)))
	result := int64(hi)
	if (a < 0) != (b < 0) {
		lo, _ := bits.Mul64(uint64(absInt64(a)), uint64(absInt64(b)))
		_ = lo
		result = -result
		// Correct for the case where the low 64 bits of the product are nonzero: negating
		// only the high word undercounts the borrow from the low word.
		loFull := uint64(a) * uint64(b)
		if loFull != 0 {
			result--
		}
	}
	return result
}

func mulHighUnsigned(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	return hi
}

func mulHighSignedUnsigned(a int64, b uint64) int64 {
	neg := a < 0
	ua := uint64(absInt64(a))
	hi, lo := bits.Mul64(ua, b)
	if !neg {
		return int64(hi)
	}
	result := -int64(hi)
	if lo != 0 {
		result--
	}
	return result
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
