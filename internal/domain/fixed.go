package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Fixed is an immutable fixed-point decimal value: Mantissa / 10^Scale.
// All monetary and quantity arithmetic in the system goes through Fixed so
// that no precision is lost implicitly. Every operation returns a new value;
// the receiver is never mutated.
//
// Divisions truncate toward zero. This is a deliberate rounding policy that
// callers must not second-guess: a conservative valuation always rounds in
// the direction that under-states value.
type Fixed struct {
	mantissa *big.Int
	scale    int
}

// NewFixed builds a Fixed from a mantissa and a non-negative decimal scale.
// The mantissa is copied.
func NewFixed(mantissa *big.Int, scale int) Fixed {
	if mantissa == nil {
		mantissa = big.NewInt(0)
	}
	return Fixed{mantissa: new(big.Int).Set(mantissa), scale: scale}
}

// FixedFromInt64 builds a Fixed whose mantissa fits in an int64.
func FixedFromInt64(mantissa int64, scale int) Fixed {
	return Fixed{mantissa: big.NewInt(mantissa), scale: scale}
}

// FixedFromFloat converts a float to a Fixed at the given scale by
// multiplying by 10^scale and truncating toward zero. This is the single
// allowed float-to-fixed boundary; it exists for external JSON payloads that
// report prices as floats and must not be used for any other conversion.
func FixedFromFloat(f float64, scale int) Fixed {
	v := math.Trunc(f * math.Pow10(scale))
	return Fixed{mantissa: big.NewInt(int64(v)), scale: scale}
}

// ZeroFixed returns the zero value at the given scale.
func ZeroFixed(scale int) Fixed {
	return Fixed{mantissa: big.NewInt(0), scale: scale}
}

// Mantissa returns a copy of the raw integer mantissa.
func (f Fixed) Mantissa() *big.Int {
	if f.mantissa == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(f.mantissa)
}

// Scale returns the decimal scale.
func (f Fixed) Scale() int { return f.scale }

// Sign returns -1, 0, or +1 depending on the sign of the value.
func (f Fixed) Sign() int {
	if f.mantissa == nil {
		return 0
	}
	return f.mantissa.Sign()
}

// IsZero reports whether the value is exactly zero.
func (f Fixed) IsZero() bool { return f.Sign() == 0 }

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Rescale returns the value expressed at the target scale. Scaling up is
// exact; scaling down truncates toward zero.
func (f Fixed) Rescale(scale int) Fixed {
	m := f.Mantissa()
	switch {
	case scale == f.scale:
		return Fixed{mantissa: m, scale: scale}
	case scale > f.scale:
		return Fixed{mantissa: m.Mul(m, pow10(scale-f.scale)), scale: scale}
	default:
		return Fixed{mantissa: m.Quo(m, pow10(f.scale-scale)), scale: scale}
	}
}

// align rescales both operands to their common (larger) scale.
func align(a, b Fixed) (Fixed, Fixed) {
	if a.scale == b.scale {
		return a, b
	}
	if a.scale > b.scale {
		return a, b.Rescale(a.scale)
	}
	return a.Rescale(b.scale), b
}

// Add returns f + other at the larger of the two scales.
func (f Fixed) Add(other Fixed) Fixed {
	a, b := align(f, other)
	return Fixed{mantissa: new(big.Int).Add(a.mantissa, b.mantissa), scale: a.scale}
}

// Sub returns f - other at the larger of the two scales.
func (f Fixed) Sub(other Fixed) Fixed {
	a, b := align(f, other)
	return Fixed{mantissa: new(big.Int).Sub(a.mantissa, b.mantissa), scale: a.scale}
}

// Cmp compares the two values after rescaling to a common scale. It returns
// -1, 0, or +1.
func (f Fixed) Cmp(other Fixed) int {
	a, b := align(f, other)
	return a.mantissa.Cmp(b.mantissa)
}

// Equal reports whether the two values are numerically equal, regardless of
// their scales.
func (f Fixed) Equal(other Fixed) bool { return f.Cmp(other) == 0 }

// Mul returns f * other. The result scale is the sum of the operand scales,
// so multiplication is always exact.
func (f Fixed) Mul(other Fixed) Fixed {
	return Fixed{
		mantissa: new(big.Int).Mul(f.Mantissa(), other.Mantissa()),
		scale:    f.scale + other.scale,
	}
}

// Div returns f / den expressed at the requested result scale, truncating
// toward zero exactly once. Division by zero returns zero at the requested
// scale; callers guard against zero denominators where it matters.
func (f Fixed) Div(den Fixed, scale int) Fixed {
	if den.Sign() == 0 {
		return ZeroFixed(scale)
	}
	// result mantissa = f.m * 10^(scale + den.scale - f.scale) / den.m,
	// with the power folded into whichever side keeps a single truncation.
	exp := scale + den.scale - f.scale
	num := f.Mantissa()
	d := den.Mantissa()
	if exp >= 0 {
		num.Mul(num, pow10(exp))
	} else {
		d.Mul(d, pow10(-exp))
	}
	return Fixed{mantissa: num.Quo(num, d), scale: scale}
}

// String renders the value as a plain decimal string, e.g. "51.00" for
// mantissa 5100 at scale 2. Used for logs.
func (f Fixed) String() string {
	m := f.Mantissa()
	neg := m.Sign() < 0
	if neg {
		m.Neg(m)
	}
	s := m.String()
	if f.scale > 0 {
		if len(s) <= f.scale {
			s = strings.Repeat("0", f.scale-len(s)+1) + s
		}
		s = s[:len(s)-f.scale] + "." + s[len(s)-f.scale:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

// MarshalJSON encodes the value as {"value":"<mantissa>","decimals":<scale>}
// so API clients can render bigint/scale pairs without precision loss.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return fmt.Appendf(nil, `{"value":%q,"decimals":%d}`, f.Mantissa().String(), f.scale), nil
}
