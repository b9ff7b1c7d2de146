package stamp

import (
	"fmt"
	"math"
)

// FloatStamp describes an IEEE-754 value of 32 or 64 bits. Bounds are inclusive and
// ordered by math.Min/math.Max, so -0.0 sorts below 0.0. NaN is tracked separately:
// a stamp with empty bounds that may be NaN describes exactly NaN.
type FloatStamp struct {
	bits         int
	lower, upper float64
	nonNaN       bool
}

// NewFloat creates a float stamp, rounding the bounds to the width
func NewFloat(bits int, lower, upper float64, nonNaN bool) FloatStamp {
	if bits != 32 && bits != 64 {
		panic(fmt.Sprintf("unsupported float width %d", bits))
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || less(upper, lower) {
		lower, upper = math.Inf(1), math.Inf(-1)
	} else if bits == 32 {
		lower, upper = float64(float32(lower)), float64(float32(upper))
	}
	return FloatStamp{bits: bits, lower: lower, upper: upper, nonNaN: nonNaN}
}

// less orders floats with -0.0 below 0.0
func less(a, b float64) bool {
	if a == 0 && b == 0 {
		return math.Signbit(a) && !math.Signbit(b)
	}
	return a < b
}

// Float returns the unrestricted stamp of a width
func Float(bits int) FloatStamp {
	return NewFloat(bits, math.Inf(-1), math.Inf(1), false)
}

// FloatConstant creates the stamp of a single value
func FloatConstant(bits int, v float64) FloatStamp {
	if math.IsNaN(v) {
		return FloatStamp{bits: bits, lower: math.Inf(1), upper: math.Inf(-1)}
	}
	return NewFloat(bits, v, v, true)
}

func (s FloatStamp) Kind() Kind     { return KindFloat }
func (s FloatStamp) Bits() int      { return s.bits }
func (s FloatStamp) Lower() float64 { return s.lower }
func (s FloatStamp) Upper() float64 { return s.upper }
func (s FloatStamp) IsNonNaN() bool { return s.nonNaN }

func (s FloatStamp) hasRange() bool {
	return !less(s.upper, s.lower)
}

func (s FloatStamp) IsEmpty() bool {
	return !s.hasRange() && s.nonNaN
}

// IsNaN reports whether NaN is the only possible value
func (s FloatStamp) IsNaN() bool {
	return !s.hasRange() && !s.nonNaN
}

func (s FloatStamp) IsUnrestricted() bool {
	return math.IsInf(s.lower, -1) && math.IsInf(s.upper, 1) && !s.nonNaN
}

// IsConstant reports whether a single value is possible, distinguishing -0.0 and 0.0
func (s FloatStamp) IsConstant() bool {
	if s.IsNaN() {
		return true
	}
	return s.nonNaN && math.Float64bits(s.lower) == math.Float64bits(s.upper)
}

// Constant returns the single possible value; only meaningful when IsConstant.
func (s FloatStamp) Constant() float64 {
	if s.IsNaN() {
		return math.NaN()
	}
	return s.lower
}

// Contains reports whether v is possible
func (s FloatStamp) Contains(v float64) bool {
	if math.IsNaN(v) {
		return !s.nonNaN
	}
	return !less(v, s.lower) && !less(s.upper, v)
}

func (s FloatStamp) Empty() Stamp {
	return FloatStamp{bits: s.bits, lower: math.Inf(1), upper: math.Inf(-1), nonNaN: true}
}

func (s FloatStamp) Unrestricted() Stamp {
	return Float(s.bits)
}

func (s FloatStamp) other(op string, o Stamp) (FloatStamp, bool) {
	if o.Kind() == KindIllegal {
		return FloatStamp{}, false
	}
	t, ok := o.(FloatStamp)
	if !ok || t.bits != s.bits {
		incompatible(op, s, o)
	}
	return t, true
}

func (s FloatStamp) Meet(o Stamp) Stamp {
	t, ok := s.other("meet", o)
	if !ok {
		return s
	}
	r := FloatStamp{bits: s.bits, nonNaN: s.nonNaN && t.nonNaN}
	switch {
	case !s.hasRange():
		r.lower, r.upper = t.lower, t.upper
	case !t.hasRange():
		r.lower, r.upper = s.lower, s.upper
	default:
		r.lower, r.upper = math.Min(s.lower, t.lower), math.Max(s.upper, t.upper)
	}
	return r
}

func (s FloatStamp) Join(o Stamp) Stamp {
	t, ok := s.other("join", o)
	if !ok {
		return Illegal
	}
	r := FloatStamp{bits: s.bits, nonNaN: s.nonNaN || t.nonNaN}
	r.lower, r.upper = math.Max(s.lower, t.lower), math.Min(s.upper, t.upper)
	if !s.hasRange() || !t.hasRange() || less(r.upper, r.lower) {
		r.lower, r.upper = math.Inf(1), math.Inf(-1)
	}
	return r
}

func (s FloatStamp) Equals(o Stamp) bool {
	t, ok := o.(FloatStamp)
	if !ok || s.bits != t.bits || s.nonNaN != t.nonNaN {
		return false
	}
	return math.Float64bits(s.lower) == math.Float64bits(t.lower) && math.Float64bits(s.upper) == math.Float64bits(t.upper)
}

func (s FloatStamp) String() string {
	switch {
	case s.IsEmpty():
		return fmt.Sprintf("f%d <empty>", s.bits)
	case s.IsNaN():
		return fmt.Sprintf("f%d NaN", s.bits)
	case s.IsConstant():
		return fmt.Sprintf("f%d %v", s.bits, s.lower)
	}
	str := fmt.Sprintf("f%d [%v, %v]", s.bits, s.lower, s.upper)
	if !s.nonNaN {
		str += " NaN?"
	}
	return str
}

func (s FloatStamp) round(v float64) float64 {
	if s.bits == 32 {
		return float64(float32(v))
	}
	return v
}

func FNeg(a FloatStamp) FloatStamp {
	if !a.hasRange() {
		return a
	}
	return FloatStamp{bits: a.bits, lower: -a.upper, upper: -a.lower, nonNaN: a.nonNaN}
}

func FAbs(a FloatStamp) FloatStamp {
	if !a.hasRange() {
		return a
	}
	r := FloatStamp{bits: a.bits, nonNaN: a.nonNaN}
	switch {
	case !math.Signbit(a.lower):
		r.lower, r.upper = a.lower, a.upper
	case a.upper < 0 || a.upper == 0 && math.Signbit(a.upper):
		r.lower, r.upper = -a.upper, -a.lower
	default:
		r.lower, r.upper = 0, math.Max(-a.lower, a.upper)
	}
	return r
}

// corners applies op to the bound pairs; any NaN corner makes the result unrestricted.
func corners(a, b FloatStamp, op func(x, y float64) float64) FloatStamp {
	if !a.hasRange() || !b.hasRange() {
		if a.IsEmpty() || b.IsEmpty() {
			return a.Empty().(FloatStamp)
		}
		return FloatConstant(a.bits, math.NaN())
	}
	r := FloatStamp{bits: a.bits, lower: math.Inf(1), upper: math.Inf(-1), nonNaN: a.nonNaN && b.nonNaN}
	for _, x := range [2]float64{a.lower, a.upper} {
		for _, y := range [2]float64{b.lower, b.upper} {
			v := a.round(op(x, y))
			if math.IsNaN(v) {
				return Float(a.bits)
			}
			r.lower, r.upper = math.Min(r.lower, v), math.Max(r.upper, v)
		}
	}
	return r
}

func FAdd(a, b FloatStamp) FloatStamp {
	return corners(a, b, func(x, y float64) float64 { return x + y })
}

func FSub(a, b FloatStamp) FloatStamp {
	return corners(a, b, func(x, y float64) float64 { return x - y })
}

func FMul(a, b FloatStamp) FloatStamp {
	// 0 * inf is NaN even when neither is a corner of the other range
	if a.Contains(0) && (b.Contains(math.Inf(1)) || b.Contains(math.Inf(-1))) ||
		b.Contains(0) && (a.Contains(math.Inf(1)) || a.Contains(math.Inf(-1))) {
		return Float(a.bits)
	}
	return corners(a, b, func(x, y float64) float64 { return x * y })
}

// FoldFloatCompare decides an ordered float comparison, false for NaN unless
// unorderedIsTrue.
func FoldFloatCompare(lessThan bool, x, y FloatStamp, unorderedIsTrue bool) (known, result bool) {
	if x.IsConstant() && y.IsConstant() {
		a, b := x.Constant(), y.Constant()
		if math.IsNaN(a) || math.IsNaN(b) {
			return true, unorderedIsTrue
		}
		if lessThan {
			return true, a < b
		}
		return true, a == b
	}
	if !x.nonNaN || !y.nonNaN || !x.hasRange() || !y.hasRange() {
		return false, false
	}
	if lessThan {
		if x.upper < y.lower {
			return true, true
		}
		if x.lower >= y.upper {
			return true, false
		}
		return false, false
	}
	if x.upper < y.lower || y.upper < x.lower {
		return true, false
	}
	return false, false
}
