package conv

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrOverflow is returned when an arithmetic result does not fit in an int.
var ErrOverflow = errors.New("integer overflow")

// AddInt returns a+b for non-negative operands.
func AddInt(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: negative operand (%d + %d)", ErrOverflow, a, b)
	}
	if a > math.MaxInt-b {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return a + b, nil
}

// MulInt returns a*b for non-negative operands.
func MulInt(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: negative operand (%d * %d)", ErrOverflow, a, b)
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return int(lo), nil
}

// AlignUp rounds v up to the next multiple of align.
// align must be positive; it does not need to be a power of two.
func AlignUp(v, align int) (int, error) {
	if v < 0 || align <= 0 {
		return 0, fmt.Errorf("%w: cannot align %d to %d", ErrOverflow, v, align)
	}
	rem := v % align
	if rem == 0 {
		return v, nil
	}
	return AddInt(v, align-rem)
}
