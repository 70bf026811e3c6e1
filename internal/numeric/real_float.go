//go:build !poet_fixed

// Package numeric provides the magnitude representation used by the
// controller (goals, speedups, costs, measured performance and power).
// The representation is selected at build time: float64 by default, or
// a saturating Q16.16 fixed-point encoding with the poet_fixed tag. The
// two are never mixed within one build.
package numeric

import (
	"math"
	"strconv"
)

// Real is the controller's magnitude type.
type Real = float64

// One is the baseline normalization value.
const One Real = 1

// FromFloat converts a float64 into the Real representation.
func FromFloat(f float64) Real { return f }

// ToFloat converts a Real back into float64 for reporting.
func ToFloat(r Real) float64 { return r }

// Add returns a + b.
func Add(a, b Real) Real { return a + b }

// Sub returns a - b.
func Sub(a, b Real) Real { return a - b }

// Mul returns a * b.
func Mul(a, b Real) Real { return a * b }

// Div returns a / b. Division by zero returns the signed extreme so
// callers keep defined behavior in both numeric builds.
func Div(a, b Real) Real {
	if b == 0 {
		if a < 0 {
			return -maxReal
		}
		return maxReal
	}
	return a / b
}

// MulDiv returns v * num / den, the linear scaling primitive used for
// state predictions.
func MulDiv(v, num, den Real) Real {
	return Div(Mul(v, num), den)
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []Real) Real {
	if len(xs) == 0 {
		return 0
	}
	var sum Real
	for _, x := range xs {
		sum = Add(sum, x)
	}
	return Div(sum, Real(len(xs)))
}

// Format renders r for log rows.
func Format(r Real) string {
	return strconv.FormatFloat(r, 'f', 6, 64)
}

const maxReal Real = math.MaxFloat64

// OverflowCount reports saturation events. The float build never
// saturates; the counter exists so diagnostics code compiles under
// either representation.
func OverflowCount() uint64 { return 0 }
