package stamp

import (
	"fmt"
	bitops "math/bits"

	"jitopt/internal/cond"
)

// IntegerStamp describes a two's complement integer of 8, 16, 32 or 64 bits as a
// signed range plus known bits. Values are kept sign-extended to 64 bits and masks
// are restricted to the low Bits() bits.
type IntegerStamp struct {
	bits         int
	lower, upper int64
	must, may    uint64
}

// Mask returns the low-bits mask of a width
func Mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<bits - 1
}

// MinValue returns the smallest signed value of a width
func MinValue(bits int) int64 {
	return -1 << (bits - 1)
}

// MaxValue returns the largest signed value of a width
func MaxValue(bits int) int64 {
	return 1<<(bits-1) - 1
}

// SignExtend interprets the low bits of v as a signed number
func SignExtend(v uint64, bits int) int64 {
	if bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// ZeroExtendValue returns the low bits of v as a non-negative number
func ZeroExtendValue(v int64, bits int) int64 {
	return int64(uint64(v) & Mask(bits))
}

func signBit(bits int) uint64 {
	return uint64(1) << (bits - 1)
}

func minFromMasks(must, may uint64, bits int) int64 {
	if may&signBit(bits) != 0 {
		return SignExtend(must|signBit(bits), bits)
	}
	return SignExtend(must, bits)
}

func maxFromMasks(must, may uint64, bits int) int64 {
	if must&signBit(bits) != 0 {
		return SignExtend(may, bits)
	}
	return SignExtend(may&^signBit(bits), bits)
}

// masksFromRange returns the bits shared by every value in [lower, upper]: all bits
// above the highest bit in which the bounds differ.
func masksFromRange(lower, upper int64, bits int) (must, may uint64) {
	m := Mask(bits)
	l, u := uint64(lower)&m, uint64(upper)&m
	diff := l ^ u
	same := ^uint64(0)
	if diff != 0 {
		h := uint64(1) << (63 - bitops.LeadingZeros64(diff))
		same = ^(h<<1 - 1)
	}
	return l & same & m, (l | ^same) & m
}

func emptyInteger(bits int) IntegerStamp {
	return IntegerStamp{bits: bits, lower: MaxValue(bits), upper: MinValue(bits)}
}

// NewInteger creates a normalized stamp. Bounds are clamped to the width, bounds and
// masks tighten each other, and contradictions give the empty stamp.
func NewInteger(bits int, lower, upper int64, must, may uint64) IntegerStamp {
	checkBits(bits)
	m := Mask(bits)
	must &= m
	may &= m
	lower = max(lower, MinValue(bits))
	upper = min(upper, MaxValue(bits))
	for i := 0; ; i++ {
		if lower > upper || must&^may != 0 {
			return emptyInteger(bits)
		}
		rm, rM := masksFromRange(lower, upper, bits)
		nmust, nmay := must|rm, may&rM
		if nmust&^nmay != 0 {
			return emptyInteger(bits)
		}
		nl := max(lower, minFromMasks(nmust, nmay, bits))
		nu := min(upper, maxFromMasks(nmust, nmay, bits))
		if nl == lower && nu == upper && nmust == must && nmay == may {
			break
		}
		lower, upper, must, may = nl, nu, nmust, nmay
		if i > 2*bits {
			break
		}
	}
	return IntegerStamp{bits: bits, lower: lower, upper: upper, must: must, may: may}
}

func checkBits(bits int) {
	switch bits {
	case 8, 16, 32, 64:
		return
	}
	panic(fmt.Sprintf("unsupported integer width %d", bits))
}

// Range creates a stamp for [lower, upper] with masks derived from the bounds
func Range(bits int, lower, upper int64) IntegerStamp {
	return NewInteger(bits, lower, upper, 0, Mask(bits))
}

// FromMasks creates a stamp from known bits only
func FromMasks(bits int, must, may uint64) IntegerStamp {
	return NewInteger(bits, MinValue(bits), MaxValue(bits), must, may)
}

// IntConstant creates the stamp of a single value, which is sign-extended from bits
func IntConstant(bits int, v int64) IntegerStamp {
	v = SignExtend(uint64(v), bits)
	return Range(bits, v, v)
}

// Int returns the unrestricted stamp of a width
func Int(bits int) IntegerStamp {
	return Range(bits, MinValue(bits), MaxValue(bits))
}

// FromUnsignedRange creates a stamp for the values whose unsigned interpretation lies
// in [ulo, uhi].
func FromUnsignedRange(bits int, ulo, uhi uint64) IntegerStamp {
	m := Mask(bits)
	ulo, uhi = ulo&m, uhi&m
	if ulo > uhi {
		return emptyInteger(bits)
	}
	sb := signBit(bits)
	if ulo&sb == uhi&sb {
		return Range(bits, SignExtend(ulo, bits), SignExtend(uhi, bits))
	}
	// The set wraps around the signed range; keep only the bit bound of uhi.
	may := uint64(1)<<(64-bitops.LeadingZeros64(uhi)) - 1
	return FromMasks(bits, 0, may)
}

func (s IntegerStamp) Kind() Kind        { return KindInteger }
func (s IntegerStamp) Bits() int         { return s.bits }
func (s IntegerStamp) Lower() int64      { return s.lower }
func (s IntegerStamp) Upper() int64      { return s.upper }
func (s IntegerStamp) MustBeSet() uint64 { return s.must }
func (s IntegerStamp) MayBeSet() uint64  { return s.may }

func (s IntegerStamp) IsEmpty() bool {
	return s.lower > s.upper
}

func (s IntegerStamp) IsUnrestricted() bool {
	return s.lower == MinValue(s.bits) && s.upper == MaxValue(s.bits) && s.must == 0 && s.may == Mask(s.bits)
}

// IsConstant reports whether exactly one value is possible
func (s IntegerStamp) IsConstant() bool {
	return s.lower == s.upper
}

// Constant returns the single possible value; only meaningful when IsConstant.
func (s IntegerStamp) Constant() int64 {
	return s.lower
}

func (s IntegerStamp) IsPositive() bool         { return s.lower >= 0 && !s.IsEmpty() }
func (s IntegerStamp) IsStrictlyPositive() bool { return s.lower > 0 && !s.IsEmpty() }
func (s IntegerStamp) IsNegative() bool         { return s.upper < 0 && !s.IsEmpty() }

// Contains reports whether v is a possible value
func (s IntegerStamp) Contains(v int64) bool {
	u := uint64(v) & Mask(s.bits)
	return v >= s.lower && v <= s.upper && u&s.must == s.must && u&^s.may == 0
}

// UnsignedLower returns the smallest possible value under unsigned interpretation
func (s IntegerStamp) UnsignedLower() uint64 {
	m := Mask(s.bits)
	if s.lower >= 0 || s.upper < 0 {
		return uint64(s.lower) & m
	}
	return s.must
}

// UnsignedUpper returns the largest possible value under unsigned interpretation
func (s IntegerStamp) UnsignedUpper() uint64 {
	m := Mask(s.bits)
	if s.lower >= 0 || s.upper < 0 {
		return uint64(s.upper) & m
	}
	return s.may
}

func (s IntegerStamp) Empty() Stamp {
	return emptyInteger(s.bits)
}

func (s IntegerStamp) Unrestricted() Stamp {
	return Int(s.bits)
}

func (s IntegerStamp) other(op string, o Stamp) (IntegerStamp, bool) {
	if o.Kind() == KindIllegal {
		return IntegerStamp{}, false
	}
	t, ok := o.(IntegerStamp)
	if !ok || t.bits != s.bits {
		incompatible(op, s, o)
	}
	return t, true
}

func (s IntegerStamp) Meet(o Stamp) Stamp {
	t, ok := s.other("meet", o)
	if !ok {
		return s
	}
	return s.MeetInt(t)
}

// MeetInt is Meet for integer stamps of the same width
func (s IntegerStamp) MeetInt(t IntegerStamp) IntegerStamp {
	if s.IsEmpty() {
		return t
	}
	if t.IsEmpty() {
		return s
	}
	return NewInteger(s.bits, min(s.lower, t.lower), max(s.upper, t.upper), s.must&t.must, s.may|t.may)
}

func (s IntegerStamp) Join(o Stamp) Stamp {
	t, ok := s.other("join", o)
	if !ok {
		return Illegal
	}
	return s.JoinInt(t)
}

// JoinInt is Join for integer stamps of the same width
func (s IntegerStamp) JoinInt(t IntegerStamp) IntegerStamp {
	return NewInteger(s.bits, max(s.lower, t.lower), min(s.upper, t.upper), s.must|t.must, s.may&t.may)
}

func (s IntegerStamp) Equals(o Stamp) bool {
	t, ok := o.(IntegerStamp)
	return ok && s == t
}

func (s IntegerStamp) String() string {
	if s.IsEmpty() {
		return fmt.Sprintf("i%d <empty>", s.bits)
	}
	if s.IsConstant() {
		return fmt.Sprintf("i%d %d", s.bits, s.lower)
	}
	str := fmt.Sprintf("i%d [%d, %d]", s.bits, s.lower, s.upper)
	if rm, rM := masksFromRange(s.lower, s.upper, s.bits); rm != s.must || rM != s.may {
		str += fmt.Sprintf(" %x/%x", s.must, s.may)
	}
	return str
}

// FoldCondition decides c for values drawn from x and y when the stamps allow it
func FoldCondition(c cond.Condition, x, y IntegerStamp) cond.TriState {
	if x.IsEmpty() || y.IsEmpty() {
		return cond.Unknown
	}
	cc := c.Canonicalize()
	if cc.Mirror {
		x, y = y, x
	}
	var r cond.TriState
	switch cc.Cond {
	case cond.EQ:
		switch {
		case x.IsConstant() && y.IsConstant() && x.lower == y.lower:
			r = cond.True
		case x.JoinInt(y).IsEmpty():
			r = cond.False
		}
	case cond.LT:
		switch {
		case x.upper < y.lower:
			r = cond.True
		case x.lower >= y.upper:
			r = cond.False
		}
	case cond.BT:
		switch {
		case x.UnsignedUpper() < y.UnsignedLower():
			r = cond.True
		case x.UnsignedLower() >= y.UnsignedUpper():
			r = cond.False
		}
	}
	if cc.Negate {
		r = r.Negate()
	}
	return r
}

// RefineForCondition returns the stamps of x and y given that "x c y" holds.
func RefineForCondition(c cond.Condition, x, y IntegerStamp) (IntegerStamp, IntegerStamp) {
	b := x.bits
	switch c {
	case cond.EQ:
		j := x.JoinInt(y)
		return j, j
	case cond.NE:
		return excludeBound(x, y), excludeBound(y, x)
	case cond.LT:
		// nothing is below MIN or above MAX
		if y.upper == MinValue(b) || x.lower == MaxValue(b) {
			return emptyInteger(b), emptyInteger(b)
		}
		return x.JoinInt(Range(b, MinValue(b), y.upper-1)), y.JoinInt(Range(b, x.lower+1, MaxValue(b)))
	case cond.LE:
		return x.JoinInt(Range(b, MinValue(b), y.upper)), y.JoinInt(Range(b, x.lower, MaxValue(b)))
	case cond.GT:
		ny, nx := RefineForCondition(cond.LT, y, x)
		return nx, ny
	case cond.GE:
		ny, nx := RefineForCondition(cond.LE, y, x)
		return nx, ny
	case cond.BT:
		if y.UnsignedUpper() == 0 {
			return emptyInteger(b), emptyInteger(b)
		}
		nx := x.JoinInt(FromUnsignedRange(b, 0, y.UnsignedUpper()-1))
		if x.UnsignedLower() == Mask(b) {
			return emptyInteger(b), emptyInteger(b)
		}
		ny := y.JoinInt(FromUnsignedRange(b, x.UnsignedLower()+1, Mask(b)))
		return nx, ny
	case cond.BE:
		return x.JoinInt(FromUnsignedRange(b, 0, y.UnsignedUpper())), y.JoinInt(FromUnsignedRange(b, x.UnsignedLower(), Mask(b)))
	case cond.AT:
		ny, nx := RefineForCondition(cond.BT, y, x)
		return nx, ny
	case cond.AE:
		ny, nx := RefineForCondition(cond.BE, y, x)
		return nx, ny
	}
	return x, y
}

// excludeBound removes the constant other from x when it sits at one of x's bounds.
func excludeBound(x, other IntegerStamp) IntegerStamp {
	if !other.IsConstant() {
		return x
	}
	c := other.lower
	switch {
	case x.lower == c && x.upper == c:
		return emptyInteger(x.bits)
	case x.lower == c:
		return NewInteger(x.bits, c+1, x.upper, x.must, x.may)
	case x.upper == c:
		return NewInteger(x.bits, x.lower, c-1, x.must, x.may)
	}
	return x
}
