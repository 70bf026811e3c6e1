//go:build poet_fixed

package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSaturatesInsteadOfWrapping(t *testing.T) {
	big := Real(math.MaxInt32)

	before := OverflowCount()
	assert.Equal(t, big, Add(big, One))
	assert.Equal(t, Real(math.MinInt32), Sub(Real(math.MinInt32), One))
	assert.Equal(t, big, Mul(big, FromFloat(4)))
	assert.Greater(t, OverflowCount(), before)
}

func TestFixedDivByZeroSaturatesSigned(t *testing.T) {
	assert.Equal(t, Real(math.MaxInt32), Div(One, 0))
	assert.Equal(t, Real(math.MinInt32), Div(FromFloat(-1), 0))
	assert.Equal(t, Real(math.MinInt32), MulDiv(FromFloat(-1), One, 0))
}

func TestFixedMulDivAvoidsIntermediateSaturation(t *testing.T) {
	// v * num saturates as a Q16.16 Mul, but the int64 intermediate in
	// MulDiv keeps the quotient exact.
	v := FromFloat(30000)
	num := FromFloat(4)
	den := FromFloat(4)
	assert.Equal(t, v, MulDiv(v, num, den))
}

func TestFixedResolution(t *testing.T) {
	step := Real(1)
	assert.InDelta(t, 1.0/65536, ToFloat(step), 1e-12)
}
