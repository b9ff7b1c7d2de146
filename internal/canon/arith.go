package canon

import (
	"math/bits"

	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

func (t *tool) canonicalArith(n *ir.Node) *ir.Node {
	g := t.g
	if n.Op().IsBinary() {
		x, y := g.Input(n, 0), g.Input(n, 1)
		if x.IsConstant() && y.IsConstant() {
			if c, ok := ir.FoldConstantBinary(n.Op(), x.Const, y.Const); ok {
				return g.Const(c)
			}
			return nil
		}
		switch n.Stamp().(type) {
		case stamp.IntegerStamp:
			return t.intBinary(n, x, y)
		case stamp.FloatStamp:
			return t.floatBinary(n, x, y)
		}
		return nil
	}

	x := g.Input(n, 0)
	if x.IsConstant() {
		if c, ok := ir.FoldConstantUnary(n.Op(), n.Bits, x.Const); ok {
			return g.Const(c)
		}
		return nil
	}
	switch n.Op() {
	case ir.OpNeg:
		return t.neg(x)
	case ir.OpAbs:
		return t.abs(x)
	case ir.OpNot:
		if x.Op() == ir.OpNot {
			return g.Input(x, 0)
		}
	case ir.OpSignExtend, ir.OpZeroExtend, ir.OpNarrow:
		return t.convert(n, x)
	}
	return nil
}

// splitConst matches "a op k" with an integer constant k on either side
func (t *tool) splitConst(n *ir.Node) (a *ir.Node, k int64, ok bool) {
	x, y := t.g.Input(n, 0), t.g.Input(n, 1)
	if k, ok := y.IntConstant(); ok {
		return x, k, true
	}
	if n.Op().IsCommutative() {
		if k, ok := x.IntConstant(); ok {
			return y, k, true
		}
	}
	return nil, 0, false
}

// log2 returns k when v is 2^k for k > 0
func log2(v int64) (int, bool) {
	if v <= 1 || v&(v-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(uint64(v)), true
}

func (t *tool) intBinary(n, x, y *ir.Node) *ir.Node {
	g := t.g
	width := n.ValueBits()
	if n.Op().IsCommutative() && x.IsConstant() && !y.IsConstant() {
		x, y = y, x
	}
	xs, _ := x.IntStamp()
	ys, _ := y.IntStamp()
	if xs.IsEmpty() || ys.IsEmpty() {
		return nil
	}
	c, isConst := y.IntConstant()

	switch n.Op() {
	case ir.OpAdd:
		if isConst {
			if c == 0 {
				return x
			}
			if x.Op() == ir.OpAdd {
				if a, k, ok := t.splitConst(x); ok {
					return g.Binary(ir.OpAdd, a, g.ConstInt(width, k+c))
				}
			}
		}
		if x.Op() == ir.OpNeg {
			return g.Binary(ir.OpSub, y, g.Input(x, 0))
		}
		if y.Op() == ir.OpNeg {
			return g.Binary(ir.OpSub, x, g.Input(y, 0))
		}
		// (a - b) + b
		if x.Op() == ir.OpSub && g.Input(x, 1) == y {
			return g.Input(x, 0)
		}
		if y.Op() == ir.OpSub && g.Input(y, 1) == x {
			return g.Input(y, 0)
		}

	case ir.OpSub:
		if x == y {
			return g.ConstInt(width, 0)
		}
		if isConst {
			if c == 0 {
				return x
			}
			return g.Binary(ir.OpAdd, x, g.ConstInt(width, -c))
		}
		if k, ok := x.IntConstant(); ok && k == 0 {
			return g.Unary(ir.OpNeg, y)
		}
		if x.Op() == ir.OpAdd {
			a, b := g.Input(x, 0), g.Input(x, 1)
			if b == y {
				return a
			}
			if a == y {
				return b
			}
		}
		// (a - b) - a
		if x.Op() == ir.OpSub && g.Input(x, 0) == y {
			return g.Unary(ir.OpNeg, g.Input(x, 1))
		}
		if y.Op() == ir.OpNeg {
			return g.Binary(ir.OpAdd, x, g.Input(y, 0))
		}

	case ir.OpMul:
		if isConst {
			switch c {
			case 0:
				return y
			case 1:
				return x
			case -1:
				return g.Unary(ir.OpNeg, x)
			}
			if k, ok := log2(c); ok {
				return g.Binary(ir.OpShl, x, g.ConstInt(32, int64(k)))
			}
			if x.Op() == ir.OpMul {
				if a, k, ok := t.splitConst(x); ok {
					return g.Binary(ir.OpMul, a, g.ConstInt(width, k*c))
				}
			}
		}
		if x.Op() == ir.OpNeg && y.Op() == ir.OpNeg {
			return g.Binary(ir.OpMul, g.Input(x, 0), g.Input(y, 0))
		}

	case ir.OpDiv:
		if isConst {
			switch c {
			case 1:
				return x
			case -1:
				// MIN / -1 wraps to MIN, as does -MIN
				return g.Unary(ir.OpNeg, x)
			}
			if k, ok := log2(c); ok && xs.IsPositive() {
				return g.Binary(ir.OpShr, x, g.ConstInt(32, int64(k)))
			}
		}
		// (a - a % b) / b: the remainder is recomputed by the division
		if x.Op() == ir.OpSub {
			a, r := g.Input(x, 0), g.Input(x, 1)
			if r.Op() == ir.OpRem && g.Input(r, 0) == a && g.Input(r, 1) == y {
				return g.Binary(ir.OpDiv, a, y)
			}
		}

	case ir.OpRem:
		if isConst {
			if c == 1 || c == -1 {
				return g.ConstInt(width, 0)
			}
			if _, ok := log2(c); ok && xs.IsPositive() {
				return g.Binary(ir.OpAnd, x, g.ConstInt(width, c-1))
			}
		}
		if xs.IsPositive() && ys.IsStrictlyPositive() && xs.Upper() < ys.Lower() {
			return x
		}

	case ir.OpAnd:
		if x == y {
			return x
		}
		if isConst {
			switch c {
			case 0:
				return y
			case -1:
				return x
			}
		}
		if xs.MayBeSet()&^ys.MustBeSet() == 0 {
			return x
		}
		if ys.MayBeSet()&^xs.MustBeSet() == 0 {
			return y
		}

	case ir.OpOr:
		if x == y {
			return x
		}
		if isConst {
			switch c {
			case 0:
				return x
			case -1:
				return y
			}
		}
		if ys.MayBeSet()&^xs.MustBeSet() == 0 {
			return x
		}
		if xs.MayBeSet()&^ys.MustBeSet() == 0 {
			return y
		}

	case ir.OpXor:
		if x == y {
			return g.ConstInt(width, 0)
		}
		if isConst {
			switch c {
			case 0:
				return x
			case -1:
				return g.Unary(ir.OpNot, x)
			}
		}

	case ir.OpShl, ir.OpShr, ir.OpUShr:
		return t.shift(n, x, y)

	case ir.OpMin, ir.OpMax, ir.OpUMin, ir.OpUMax:
		if x == y {
			return x
		}
		return minMaxByStamp(n.Op(), x, y, xs, ys)
	}
	return nil
}

func (t *tool) shift(n, x, y *ir.Node) *ir.Node {
	g := t.g
	width := n.ValueBits()
	c, ok := y.IntConstant()
	if !ok {
		return nil
	}
	k := c & stamp.ShiftMask(width)
	if k == 0 {
		return x
	}
	if x.Op() != n.Op() {
		return nil
	}
	inner, ok := g.Input(x, 1).IntConstant()
	if !ok {
		return nil
	}
	sum := inner&stamp.ShiftMask(width) + k
	switch {
	case sum < int64(width):
		return g.Binary(n.Op(), g.Input(x, 0), g.ConstInt(32, sum))
	case n.Op() == ir.OpShr:
		// sign bits saturate
		return g.Binary(ir.OpShr, g.Input(x, 0), g.ConstInt(32, int64(width-1)))
	}
	return g.ConstInt(width, 0)
}

// minMaxByStamp picks the operand that is always selected
func minMaxByStamp(op ir.Op, x, y *ir.Node, xs, ys stamp.IntegerStamp) *ir.Node {
	if xs.IsEmpty() || ys.IsEmpty() {
		return nil
	}
	switch op {
	case ir.OpMin:
		if xs.Upper() <= ys.Lower() {
			return x
		}
		if ys.Upper() <= xs.Lower() {
			return y
		}
	case ir.OpMax:
		if xs.Lower() >= ys.Upper() {
			return x
		}
		if ys.Lower() >= xs.Upper() {
			return y
		}
	case ir.OpUMin:
		if xs.UnsignedUpper() <= ys.UnsignedLower() {
			return x
		}
		if ys.UnsignedUpper() <= xs.UnsignedLower() {
			return y
		}
	case ir.OpUMax:
		if xs.UnsignedLower() >= ys.UnsignedUpper() {
			return x
		}
		if ys.UnsignedLower() >= xs.UnsignedUpper() {
			return y
		}
	}
	return nil
}

// floatBinary only applies rules that hold bit for bit under IEEE-754, including for
// signed zeros and NaN
func (t *tool) floatBinary(n, x, y *ir.Node) *ir.Node {
	g := t.g
	switch n.Op() {
	case ir.OpMul:
		if x.Op() == ir.OpNeg && y.Op() == ir.OpNeg {
			return g.Binary(ir.OpMul, g.Input(x, 0), g.Input(y, 0))
		}
		if x.IsConstant() {
			x, y = y, x
		}
		if y.IsConstant() && y.Const.Float() == 1 {
			return x
		}
	case ir.OpMin, ir.OpMax:
		if x == y {
			return x
		}
	}
	return nil
}

func (t *tool) neg(x *ir.Node) *ir.Node {
	g := t.g
	if x.Op() == ir.OpNeg {
		return g.Input(x, 0)
	}
	if _, ok := x.IntStamp(); !ok {
		return nil
	}
	width := x.ValueBits()
	switch x.Op() {
	case ir.OpSub:
		return g.Binary(ir.OpSub, g.Input(x, 1), g.Input(x, 0))
	case ir.OpShr, ir.OpUShr:
		// -(x >> (bits-1)) is x >>> (bits-1) and the other way around
		if k, ok := g.Input(x, 1).IntConstant(); ok && k&stamp.ShiftMask(width) == int64(width-1) {
			op := ir.OpUShr
			if x.Op() == ir.OpUShr {
				op = ir.OpShr
			}
			return g.Binary(op, g.Input(x, 0), g.Input(x, 1))
		}
	}
	return nil
}

func (t *tool) abs(x *ir.Node) *ir.Node {
	g := t.g
	switch x.Op() {
	case ir.OpAbs:
		return x
	case ir.OpNeg:
		return g.Unary(ir.OpAbs, g.Input(x, 0))
	}
	if s, ok := x.IntStamp(); ok && s.IsPositive() {
		return x
	}
	if s, ok := x.FloatStamp(); ok && s.IsNonNaN() && s.Lower() > 0 {
		return x
	}
	return nil
}

func (t *tool) convert(n, x *ir.Node) *ir.Node {
	g := t.g
	switch n.Op() {
	case ir.OpSignExtend, ir.OpZeroExtend:
		if x.Op() == n.Op() {
			return g.Convert(n.Op(), g.Input(x, 0), n.Bits)
		}
	case ir.OpNarrow:
		switch x.Op() {
		case ir.OpSignExtend, ir.OpZeroExtend:
			src := g.Input(x, 0)
			switch from := src.ValueBits(); {
			case from == n.Bits:
				return src
			case from > n.Bits:
				return g.Convert(ir.OpNarrow, src, n.Bits)
			default:
				return g.Convert(x.Op(), src, n.Bits)
			}
		case ir.OpNarrow:
			return g.Convert(ir.OpNarrow, g.Input(x, 0), n.Bits)
		}
	}
	return nil
}
