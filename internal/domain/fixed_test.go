package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedRescale(t *testing.T) {
	v := FixedFromInt64(5100, 2) // 51.00

	up := v.Rescale(4)
	assert.Equal(t, int64(510000), up.Mantissa().Int64())
	assert.Equal(t, 4, up.Scale())
	assert.True(t, up.Equal(v))

	down := FixedFromInt64(5199, 2).Rescale(0)
	assert.Equal(t, int64(51), down.Mantissa().Int64(), "scaling down truncates")

	neg := FixedFromInt64(-5199, 2).Rescale(0)
	assert.Equal(t, int64(-51), neg.Mantissa().Int64(), "truncation is toward zero, not floor")
}

func TestFixedAddSubAlignScales(t *testing.T) {
	a := FixedFromInt64(100, 2)  // 1.00
	b := FixedFromInt64(5000, 4) // 0.5000

	sum := a.Add(b)
	assert.Equal(t, 4, sum.Scale())
	assert.Equal(t, "1.5000", sum.String())

	diff := a.Sub(b)
	assert.Equal(t, "0.5000", diff.String())
}

func TestFixedMulScaleIsSum(t *testing.T) {
	a := FixedFromInt64(10_000_000, 8) // 0.1
	b := FixedFromInt64(5_000_000, 2)  // 50000.00

	p := a.Mul(b)
	assert.Equal(t, 10, p.Scale())
	assert.Equal(t, big.NewInt(50_000_000_000_000), p.Mantissa())
	assert.Equal(t, "5000.0000000000", p.String())
}

func TestFixedDivTruncatesOnce(t *testing.T) {
	// 1 / 3 at scale 4.
	q := FixedFromInt64(1, 0).Div(FixedFromInt64(3, 0), 4)
	assert.Equal(t, "0.3333", q.String())

	// Result scale above the numerator scale still divides exactly once:
	// 2.00 / 3 at scale 6 is 0.666666, not 0.660000.
	q = FixedFromInt64(200, 2).Div(FixedFromInt64(3, 0), 6)
	assert.Equal(t, "0.666666", q.String())

	// Result scale below the natural scale truncates toward zero.
	q = FixedFromInt64(-200, 2).Div(FixedFromInt64(3, 0), 0)
	assert.Equal(t, int64(0), q.Mantissa().Int64())
}

func TestFixedDivByZeroIsZero(t *testing.T) {
	q := FixedFromInt64(100, 2).Div(ZeroFixed(0), 2)
	assert.True(t, q.IsZero())
	assert.Equal(t, 2, q.Scale())
}

func TestFixedCmpAcrossScales(t *testing.T) {
	a := FixedFromInt64(100, 2)
	b := FixedFromInt64(1, 0)
	assert.Equal(t, 0, a.Cmp(b))
	assert.True(t, a.Equal(b))

	assert.Equal(t, -1, FixedFromInt64(99, 2).Cmp(b))
	assert.Equal(t, 1, FixedFromInt64(101, 2).Cmp(b))
}

func TestFixedImmutability(t *testing.T) {
	m := big.NewInt(500)
	v := NewFixed(m, 2)
	m.SetInt64(999)
	assert.Equal(t, int64(500), v.Mantissa().Int64(), "constructor copies the mantissa")

	w := v.Rescale(4)
	_ = w.Add(FixedFromInt64(1, 4))
	assert.Equal(t, int64(500), v.Mantissa().Int64(), "operations never mutate the receiver")
}

func TestFixedFromFloatTruncates(t *testing.T) {
	assert.Equal(t, int64(5099), FixedFromFloat(50.999, 2).Mantissa().Int64())
	assert.Equal(t, int64(-5099), FixedFromFloat(-50.999, 2).Mantissa().Int64())
}

func TestFixedString(t *testing.T) {
	assert.Equal(t, "51.00", FixedFromInt64(5100, 2).String())
	assert.Equal(t, "0.05", FixedFromInt64(5, 2).String())
	assert.Equal(t, "-0.05", FixedFromInt64(-5, 2).String())
	assert.Equal(t, "51", FixedFromInt64(51, 0).String())
	assert.Equal(t, "0.00000001", FixedFromInt64(1, 8).String())
}

func TestFixedMarshalJSON(t *testing.T) {
	out, err := FixedFromInt64(5100, 2).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"5100","decimals":2}`, string(out))

	out, err = Fixed{}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"0","decimals":0}`, string(out))
}
