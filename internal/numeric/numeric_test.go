package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Values in these tests are exactly representable in both the float64
// and the Q16.16 builds, so the suite passes under either tag.

func TestFromToFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 0.5, 1, 1.5, 2.25, 100, -3.75} {
		assert.InDelta(t, f, ToFloat(FromFloat(f)), 1e-9)
	}
}

func TestArithmetic(t *testing.T) {
	a := FromFloat(1.5)
	b := FromFloat(2)

	assert.InDelta(t, 3.5, ToFloat(Add(a, b)), 1e-9)
	assert.InDelta(t, -0.5, ToFloat(Sub(a, b)), 1e-9)
	assert.InDelta(t, 3, ToFloat(Mul(a, b)), 1e-9)
	assert.InDelta(t, 0.75, ToFloat(Div(a, b)), 1e-9)
}

func TestMulDivScaling(t *testing.T) {
	// predicted = achieved * candidate factor / current factor
	achieved := FromFloat(1)
	cand := FromFloat(2)
	cur := FromFloat(1)
	assert.InDelta(t, 2, ToFloat(MulDiv(achieved, cand, cur)), 1e-9)

	cand = FromFloat(1.5)
	assert.InDelta(t, 1.5, ToFloat(MulDiv(achieved, cand, cur)), 1e-9)
}

func TestDivByZeroSaturatesPositive(t *testing.T) {
	r := Div(One, 0)
	assert.Greater(t, ToFloat(r), 1e4)
}

func TestMean(t *testing.T) {
	xs := []Real{FromFloat(1), FromFloat(2), FromFloat(3)}
	assert.InDelta(t, 2, ToFloat(Mean(xs)), 1e-9)

	assert.Equal(t, Real(0), Mean(nil))
}

func TestFormat(t *testing.T) {
	s := Format(FromFloat(1.5))
	require.NotEmpty(t, s)
	assert.Equal(t, "1.500000", s)
}
