package ir

import (
	"math"

	"jitopt/internal/cond"
	"jitopt/internal/stamp"
)

// Concrete evaluation with Java semantics. Integers of every width are carried as
// int64 values sign-extended from their width; results are truncated back.

// FoldInt evaluates a binary integer operation. ok is false for a division or
// remainder by zero, which throws instead of producing a value.
func FoldInt(op Op, bits int, x, y int64) (r int64, ok bool) {
	m := stamp.Mask(bits)
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv:
		if y == 0 {
			return 0, false
		}
		if y == -1 {
			// MIN / -1 wraps to MIN
			r = -x
		} else {
			r = x / y
		}
	case OpRem:
		if y == 0 {
			return 0, false
		}
		if y == -1 {
			r = 0
		} else {
			r = x % y
		}
	case OpAnd:
		r = x & y
	case OpOr:
		r = x | y
	case OpXor:
		r = x ^ y
	case OpShl:
		r = x << uint(y&stamp.ShiftMask(bits))
	case OpShr:
		r = x >> uint(y&stamp.ShiftMask(bits))
	case OpUShr:
		r = int64((uint64(x) & m) >> uint(y&stamp.ShiftMask(bits)))
	case OpMin:
		r = min(x, y)
	case OpMax:
		r = max(x, y)
	case OpUMin:
		if uint64(x)&m < uint64(y)&m {
			r = x
		} else {
			r = y
		}
	case OpUMax:
		if uint64(x)&m > uint64(y)&m {
			r = x
		} else {
			r = y
		}
	default:
		return 0, false
	}
	return stamp.SignExtend(uint64(r), bits), true
}

// FoldIntUnary evaluates Neg, Abs and Not
func FoldIntUnary(op Op, bits int, x int64) int64 {
	var r int64
	switch op {
	case OpNeg:
		r = -x
	case OpAbs:
		// abs(MIN) is MIN
		r = x
		if x < 0 {
			r = -x
		}
	case OpNot:
		r = ^x
	}
	return stamp.SignExtend(uint64(r), bits)
}

// FoldConvert evaluates SignExtend, ZeroExtend and Narrow of a from-bit value
func FoldConvert(op Op, from, to int, x int64) int64 {
	switch op {
	case OpZeroExtend:
		return stamp.ZeroExtendValue(x, from)
	case OpNarrow:
		return stamp.SignExtend(uint64(x), to)
	}
	return x
}

// RoundFloat rounds v to the precision of the width
func RoundFloat(bits int, v float64) float64 {
	if bits == 32 {
		return float64(float32(v))
	}
	return v
}

// FoldFloat evaluates a binary float operation with IEEE-754 semantics at the given
// width. ok is false for kinds that do not apply to floats.
func FoldFloat(op Op, bits int, x, y float64) (float64, bool) {
	var r float64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv:
		r = x / y
	case OpRem:
		r = math.Mod(x, y)
	case OpMin:
		r = math.Min(x, y)
	case OpMax:
		r = math.Max(x, y)
	default:
		return 0, false
	}
	// float64 carries enough precision that rounding the exact result once more to
	// float32 matches float32 arithmetic for these operations
	return RoundFloat(bits, r), true
}

// FoldFloatUnary evaluates Neg and Abs on a float
func FoldFloatUnary(op Op, x float64) float64 {
	if op == OpAbs {
		return math.Abs(x)
	}
	return -x
}

// FoldCompareInt evaluates a canonical integer comparison
func FoldCompareInt(c cond.Condition, bits int, x, y int64) bool {
	return c.Eval(bits, x, y)
}

// FoldCompareFloat evaluates a canonical float comparison
func FoldCompareFloat(c cond.Condition, unordered bool, x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return unordered
	}
	if c == cond.LT {
		return x < y
	}
	return x == y
}

// FoldConstantBinary folds op over two constants of the same kind
func FoldConstantBinary(op Op, a, b Constant) (Constant, bool) {
	switch {
	case a.Kind == ConstInt && b.Kind == ConstInt:
		if op != OpShl && op != OpShr && op != OpUShr && a.Bits != b.Bits {
			return Constant{}, false
		}
		r, ok := FoldInt(op, a.Bits, a.Int, b.Int)
		if !ok {
			return Constant{}, false
		}
		return Constant{Kind: ConstInt, Bits: a.Bits, Int: r}, true
	case a.Kind == ConstFloat && b.Kind == ConstFloat && a.Bits == b.Bits:
		r, ok := FoldFloat(op, a.Bits, a.Float(), b.Float())
		if !ok {
			return Constant{}, false
		}
		return Constant{Kind: ConstFloat, Bits: a.Bits, FloatBits: math.Float64bits(r)}, true
	}
	return Constant{}, false
}

// FoldConstantUnary folds Neg, Abs, Not and conversions over a constant
func FoldConstantUnary(op Op, bits int, a Constant) (Constant, bool) {
	switch a.Kind {
	case ConstInt:
		switch op {
		case OpNeg, OpAbs, OpNot:
			return Constant{Kind: ConstInt, Bits: a.Bits, Int: FoldIntUnary(op, a.Bits, a.Int)}, true
		case OpSignExtend, OpZeroExtend, OpNarrow:
			return Constant{Kind: ConstInt, Bits: bits, Int: FoldConvert(op, a.Bits, bits, a.Int)}, true
		}
	case ConstFloat:
		if op == OpNeg || op == OpAbs {
			r := FoldFloatUnary(op, a.Float())
			return Constant{Kind: ConstFloat, Bits: a.Bits, FloatBits: math.Float64bits(r)}, true
		}
	}
	return Constant{}, false
}
