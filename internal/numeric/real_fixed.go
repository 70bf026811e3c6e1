//go:build poet_fixed

package numeric

import (
	"math"
	"strconv"
	"sync/atomic"
)

// Real is the controller's magnitude type: signed Q16.16 fixed point.
// Arithmetic saturates instead of wrapping; saturation events are
// counted and readable through OverflowCount.
type Real int32

const fracBits = 16

// One is the baseline normalization value.
const One Real = 1 << fracBits

const (
	maxReal Real = math.MaxInt32
	minReal Real = math.MinInt32
)

var overflows atomic.Uint64

// OverflowCount reports how many arithmetic operations saturated since
// process start.
func OverflowCount() uint64 { return overflows.Load() }

func saturate(v int64) Real {
	if v > int64(maxReal) {
		overflows.Add(1)
		return maxReal
	}
	if v < int64(minReal) {
		overflows.Add(1)
		return minReal
	}
	return Real(v)
}

// FromFloat converts a float64 into Q16.16, saturating out-of-range input.
func FromFloat(f float64) Real {
	return saturate(int64(math.Round(f * float64(One))))
}

// ToFloat converts a Real back into float64 for reporting.
func ToFloat(r Real) float64 {
	return float64(r) / float64(One)
}

// Add returns a + b with saturation.
func Add(a, b Real) Real {
	return saturate(int64(a) + int64(b))
}

// Sub returns a - b with saturation.
func Sub(a, b Real) Real {
	return saturate(int64(a) - int64(b))
}

// Mul returns a * b with saturation.
func Mul(a, b Real) Real {
	return saturate(int64(a) * int64(b) >> fracBits)
}

// Div returns a / b with saturation. Division by zero saturates to the
// signed extreme rather than trapping.
func Div(a, b Real) Real {
	if b == 0 {
		overflows.Add(1)
		if a < 0 {
			return minReal
		}
		return maxReal
	}
	return saturate((int64(a) << fracBits) / int64(b))
}

// MulDiv returns v * num / den through a single int64 intermediate so
// the scaled product does not saturate prematurely.
func MulDiv(v, num, den Real) Real {
	if den == 0 {
		overflows.Add(1)
		if (v < 0) != (num < 0) {
			return minReal
		}
		return maxReal
	}
	return saturate(int64(v) * int64(num) / int64(den))
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice. The
// sum runs in int64 so depth-bounded windows cannot saturate mid-sum.
func Mean(xs []Real) Real {
	if len(xs) == 0 {
		return 0
	}
	var sum int64
	for _, x := range xs {
		sum += int64(x)
	}
	return saturate(sum / int64(len(xs)))
}

// Format renders r for log rows in decimal form.
func Format(r Real) string {
	return strconv.FormatFloat(ToFloat(r), 'f', 6, 64)
}
