package stamp

import (
	bitops "math/bits"
)

// Transfer functions over integer stamps. All arithmetic wraps modulo 2^bits, so any
// bound computation that may leave the signed range gives up on the bounds and keeps
// whatever the known bits still prove.

func anyEmpty(xs ...IntegerStamp) bool {
	for _, x := range xs {
		if x.IsEmpty() {
			return true
		}
	}
	return false
}

// fits reports whether a mathematically exact result is representable
func fits(v int64, bits int) bool {
	return v >= MinValue(bits) && v <= MaxValue(bits)
}

func addExact(x, y int64, bits int) (int64, bool) {
	if bits < 64 {
		r := x + y
		return r, fits(r, bits)
	}
	r := x + y
	return r, (x >= 0) != (y >= 0) || (r >= 0) == (x >= 0)
}

func mulExact(x, y int64, bits int) (int64, bool) {
	if bits <= 32 {
		r := x * y
		return r, fits(r, bits)
	}
	hi, lo := bitops.Mul64(uint64(abs64(x)), uint64(abs64(y)))
	if x == MinValue(64) || y == MinValue(64) {
		if x == 0 || y == 0 {
			return 0, true
		}
		if x == 1 || y == 1 {
			return x * y, true
		}
		return 0, false
	}
	neg := (x < 0) != (y < 0)
	if hi != 0 || lo > uint64(MaxValue(64))+boolToU64(neg) {
		return 0, false
	}
	return x * y, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// addKnownBits propagates known bits through an addition with carry-in
func addKnownBits(must1, may1, must2, may2 uint64, carry uint64, m uint64) (uint64, uint64) {
	possibleSumZero := may1 + may2 + carry
	possibleSumOne := must1 + must2 + carry
	zero1, zero2 := ^may1, ^may2
	carryKnownZero := ^(possibleSumZero ^ zero1 ^ zero2)
	carryKnownOne := possibleSumOne ^ must1 ^ must2
	known := (zero1 | must1) & (zero2 | must2) & (carryKnownZero | carryKnownOne)
	must := possibleSumOne & known & m
	may := (possibleSumZero | ^known) & m
	return must, may
}

func Add(a, b IntegerStamp) IntegerStamp {
	bits := a.bits
	if anyEmpty(a, b) {
		return emptyInteger(bits)
	}
	must, may := addKnownBits(a.must, a.may, b.must, b.may, 0, Mask(bits))
	lo, ok1 := addExact(a.lower, b.lower, bits)
	hi, ok2 := addExact(a.upper, b.upper, bits)
	if !ok1 || !ok2 {
		return NewInteger(bits, MinValue(bits), MaxValue(bits), must, may)
	}
	return NewInteger(bits, lo, hi, must, may)
}

func Sub(a, b IntegerStamp) IntegerStamp {
	bits := a.bits
	if anyEmpty(a, b) {
		return emptyInteger(bits)
	}
	m := Mask(bits)
	must, may := addKnownBits(a.must, a.may, ^b.may&m, ^b.must&m, 1, m)
	lo, ok1 := addExact(a.lower, -b.upper, bits)
	hi, ok2 := addExact(a.upper, -b.lower, bits)
	if bits == 64 && (b.upper == MinValue(64) || b.lower == MinValue(64)) {
		ok1, ok2 = false, false
	}
	if !ok1 || !ok2 {
		return NewInteger(bits, MinValue(bits), MaxValue(bits), must, may)
	}
	return NewInteger(bits, lo, hi, must, may)
}

func Mul(a, b IntegerStamp) IntegerStamp {
	bits := a.bits
	if anyEmpty(a, b) {
		return emptyInteger(bits)
	}
	// trailing zeros of the factors add up
	tz := bitops.TrailingZeros64(a.may|^Mask(bits)) + bitops.TrailingZeros64(b.may|^Mask(bits))
	var may uint64 = Mask(bits)
	if tz >= bits {
		may = 0
	} else {
		may &^= uint64(1)<<tz - 1
	}
	lo, hi := MaxValue(64), MinValue(64)
	for _, x := range [2]int64{a.lower, a.upper} {
		for _, y := range [2]int64{b.lower, b.upper} {
			p, ok := mulExact(x, y, bits)
			if !ok {
				return NewInteger(bits, MinValue(bits), MaxValue(bits), 0, may)
			}
			lo, hi = min(lo, p), max(hi, p)
		}
	}
	return NewInteger(bits, lo, hi, 0, may)
}

func Neg(a IntegerStamp) IntegerStamp {
	bits := a.bits
	if a.IsEmpty() {
		return a
	}
	m := Mask(bits)
	must, may := addKnownBits(^a.may&m, ^a.must&m, 0, 0, 1, m)
	if a.lower == MinValue(bits) {
		if a.upper == MinValue(bits) {
			return a
		}
		return NewInteger(bits, MinValue(bits), MaxValue(bits), must, may)
	}
	return NewInteger(bits, -a.upper, -a.lower, must, may)
}

func Abs(a IntegerStamp) IntegerStamp {
	bits := a.bits
	switch {
	case a.IsEmpty() || a.lower >= 0:
		return a
	case a.lower == MinValue(bits):
		// abs(MIN) is MIN
		return Range(bits, MinValue(bits), MaxValue(bits))
	case a.upper <= 0:
		return Range(bits, -a.upper, -a.lower)
	}
	return Range(bits, 0, max(-a.lower, a.upper))
}

func Not(a IntegerStamp) IntegerStamp {
	if a.IsEmpty() {
		return a
	}
	m := Mask(a.bits)
	return NewInteger(a.bits, -a.upper-1, -a.lower-1, ^a.may&m, ^a.must&m)
}

func And(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	return FromMasks(a.bits, a.must&b.must, a.may&b.may)
}

func Or(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	return FromMasks(a.bits, a.must|b.must, a.may|b.may)
}

func Xor(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	m := Mask(a.bits)
	must := (a.must &^ b.may) | (^a.may & b.must)
	may := (a.may &^ b.must) | (^a.must & b.may)
	return FromMasks(a.bits, must&m, may&m)
}

// Div is the stamp of a / b with truncation toward zero. A divisor range that contains
// both signs only bounds the result by the magnitude of the dividend.
func Div(a, b IntegerStamp) IntegerStamp {
	bits := a.bits
	if anyEmpty(a, b) {
		return emptyInteger(bits)
	}
	if b.IsConstant() && b.lower == -1 {
		return Neg(a)
	}
	if b.lower > 0 || b.upper < 0 {
		// for a fixed sign of the divisor the quotient is monotone in both operands
		lo, hi := MaxValue(64), MinValue(64)
		for _, x := range [2]int64{a.lower, a.upper} {
			for _, y := range [2]int64{b.lower, b.upper} {
				if x == MinValue(bits) && y == -1 {
					return Int(bits)
				}
				q := x / y
				lo, hi = min(lo, q), max(hi, q)
			}
		}
		return Range(bits, lo, hi)
	}
	return magnitudeBound(a)
}

// magnitudeBound is the range of values no larger in magnitude than a's bounds.
func magnitudeBound(a IntegerStamp) IntegerStamp {
	bits := a.bits
	if a.lower == MinValue(bits) {
		return Int(bits)
	}
	mag := max(abs64(a.lower), abs64(a.upper))
	return Range(bits, -mag, mag)
}

// Rem is the stamp of a % b: the sign follows the dividend and the magnitude is below
// the divisor's.
func Rem(a, b IntegerStamp) IntegerStamp {
	bits := a.bits
	if anyEmpty(a, b) {
		return emptyInteger(bits)
	}
	if b.IsConstant() && b.lower == 0 {
		return Int(bits)
	}
	if b.lower > 0 || b.upper < 0 {
		minAbs := b.lower
		if b.upper < 0 {
			minAbs = -b.upper
		}
		if a.lower >= 0 && a.upper < minAbs || a.upper <= 0 && a.lower > -minAbs {
			return a
		}
	}
	bound := MaxValue(bits)
	if b.lower != MinValue(bits) {
		bound = max(abs64(b.lower), abs64(b.upper)) - 1
	}
	lo := max(a.lower, -bound)
	hi := min(a.upper, bound)
	if a.lower >= 0 {
		lo = 0
	}
	if a.upper <= 0 {
		hi = 0
	}
	return Range(bits, lo, hi)
}

// ShiftMask returns the mask applied to shift distances of a width
func ShiftMask(bits int) int64 {
	if bits == 64 {
		return 63
	}
	return 31
}

// shiftAmounts returns the possible masked shift distances, or nil when too many.
func shiftAmounts(bits int, s IntegerStamp) []int {
	sm := ShiftMask(bits)
	if s.IsConstant() {
		return []int{int(s.lower & sm)}
	}
	if s.lower >= 0 && s.upper <= sm {
		var r []int
		for k := s.lower; k <= s.upper; k++ {
			if s.Contains(k) {
				r = append(r, int(k))
			}
		}
		return r
	}
	// only the low bits matter
	if s.may&uint64(sm) == 0 {
		return []int{0}
	}
	return nil
}

func shiftBy(a, s IntegerStamp, f func(IntegerStamp, int) IntegerStamp) IntegerStamp {
	if anyEmpty(a, s) {
		return emptyInteger(a.bits)
	}
	ks := shiftAmounts(a.bits, s)
	if ks == nil {
		return Int(a.bits)
	}
	r := emptyInteger(a.bits)
	for _, k := range ks {
		r = r.MeetInt(f(a, k))
	}
	return r
}

func Shl(a, s IntegerStamp) IntegerStamp {
	return shiftBy(a, s, shlConst)
}

func shlConst(a IntegerStamp, k int) IntegerStamp {
	bits := a.bits
	k &= int(ShiftMask(bits))
	if k >= bits {
		// 8 and 16 bit values are shifted as int
		return Int(bits)
	}
	m := Mask(bits)
	must, may := (a.must<<k)&m, (a.may<<k)&m
	lo, hi := a.lower<<k, a.upper<<k
	if lo>>k == a.lower && hi>>k == a.upper && fits(lo, bits) && fits(hi, bits) {
		return NewInteger(bits, lo, hi, must, may)
	}
	return FromMasks(bits, must, may)
}

func Shr(a, s IntegerStamp) IntegerStamp {
	return shiftBy(a, s, func(a IntegerStamp, k int) IntegerStamp {
		k &= int(ShiftMask(a.bits))
		if k >= a.bits {
			k = a.bits - 1
		}
		m := Mask(a.bits)
		must := uint64(SignExtend(a.must, a.bits)>>k) & m
		may := uint64(SignExtend(a.may, a.bits)>>k) & m
		return NewInteger(a.bits, a.lower>>k, a.upper>>k, must, may)
	})
}

func UShr(a, s IntegerStamp) IntegerStamp {
	return shiftBy(a, s, func(a IntegerStamp, k int) IntegerStamp {
		k &= int(ShiftMask(a.bits))
		if k == 0 {
			return a
		}
		if k >= a.bits {
			return Int(a.bits)
		}
		ulo, uhi := a.UnsignedLower(), a.UnsignedUpper()
		return NewInteger(a.bits, int64(ulo>>k), int64(uhi>>k), a.must>>k, a.may>>k)
	})
}

func Min(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	return NewInteger(a.bits, min(a.lower, b.lower), min(a.upper, b.upper), a.must&b.must, a.may|b.may)
}

func Max(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	return NewInteger(a.bits, max(a.lower, b.lower), max(a.upper, b.upper), a.must&b.must, a.may|b.may)
}

func UMin(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	u := FromUnsignedRange(a.bits, min(a.UnsignedLower(), b.UnsignedLower()), min(a.UnsignedUpper(), b.UnsignedUpper()))
	return a.MeetInt(b).JoinInt(u)
}

func UMax(a, b IntegerStamp) IntegerStamp {
	if anyEmpty(a, b) {
		return emptyInteger(a.bits)
	}
	u := FromUnsignedRange(a.bits, max(a.UnsignedLower(), b.UnsignedLower()), max(a.UnsignedUpper(), b.UnsignedUpper()))
	return a.MeetInt(b).JoinInt(u)
}

// SignExtendTo widens a to bits, replicating the sign bit
func SignExtendTo(a IntegerStamp, bits int) IntegerStamp {
	if a.IsEmpty() {
		return emptyInteger(bits)
	}
	high := Mask(bits) &^ Mask(a.bits)
	must, may := a.must, a.may
	if a.must&signBit(a.bits) != 0 {
		must |= high
	}
	if a.may&signBit(a.bits) != 0 {
		may |= high
	}
	return NewInteger(bits, a.lower, a.upper, must, may)
}

// ZeroExtendTo widens a to bits with zero high bits
func ZeroExtendTo(a IntegerStamp, bits int) IntegerStamp {
	if a.IsEmpty() {
		return emptyInteger(bits)
	}
	return NewInteger(bits, int64(a.UnsignedLower()), int64(a.UnsignedUpper()), a.must, a.may)
}

// Narrow truncates a to its low bits
func Narrow(a IntegerStamp, bits int) IntegerStamp {
	if a.IsEmpty() {
		return emptyInteger(bits)
	}
	if a.lower >= MinValue(bits) && a.upper <= MaxValue(bits) {
		return NewInteger(bits, a.lower, a.upper, a.must, a.may)
	}
	return FromMasks(bits, a.must, a.may)
}

// InvertSignExtend returns the stamp of x given the stamp of SignExtend(x) where x has
// the given width. All extension bits equal the sign bit of x, so a known high bit of
// the wide value decides the sign of the narrow one.
func InvertSignExtend(wide IntegerStamp, from int) IntegerStamp {
	if wide.IsEmpty() {
		return emptyInteger(from)
	}
	ext := Mask(wide.bits) &^ Mask(from-1)
	must, may := wide.must&Mask(from), wide.may&Mask(from)
	sb := signBit(from)
	if wide.must&ext != 0 {
		must |= sb
	}
	if wide.may&ext != ext {
		may &^= sb
	}
	lo := max(wide.lower, MinValue(from))
	hi := min(wide.upper, MaxValue(from))
	return NewInteger(from, lo, hi, must, may)
}

// InvertZeroExtend returns the stamp of x given the stamp of ZeroExtend(x)
func InvertZeroExtend(wide IntegerStamp, from int) IntegerStamp {
	if wide.IsEmpty() || wide.must&^Mask(from) != 0 {
		return emptyInteger(from)
	}
	m := Mask(from)
	must, may := wide.must&m, wide.may&m
	lo := max(wide.lower, 0)
	hi := min(wide.upper, int64(m))
	if lo > hi {
		return emptyInteger(from)
	}
	switch {
	case hi <= MaxValue(from):
		return NewInteger(from, lo, hi, must, may)
	case lo > MaxValue(from):
		return NewInteger(from, SignExtend(uint64(lo), from), SignExtend(uint64(hi), from), must, may)
	}
	return FromMasks(from, must, may)
}
