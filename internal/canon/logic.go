package canon

import (
	"jitopt/internal/cond"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

// Logic nodes fold to the i32 constants 1 and 0; consumers of a condition read any
// non-zero constant as true.

func (t *tool) canonicalCompare(n *ir.Node) *ir.Node {
	g := t.g
	x, y := g.Input(n, 0), g.Input(n, 1)
	switch xs := x.Stamp().(type) {
	case stamp.IntegerStamp:
		ys, ok := y.IntStamp()
		if !ok || xs.IsEmpty() || ys.IsEmpty() {
			return nil
		}
		if x == y {
			return g.ConstBool(n.Cond == cond.EQ)
		}
		if r := stamp.FoldCondition(n.Cond, xs, ys); r.IsKnown() {
			return g.ConstBool(r.ToBool())
		}
		return t.intCompare(n, x, y)

	case stamp.FloatStamp:
		if x.IsConstant() && y.IsConstant() {
			return g.ConstBool(ir.FoldCompareFloat(n.Cond, n.Unordered, x.Const.Float(), y.Const.Float()))
		}
		ys, ok := y.FloatStamp()
		if !ok {
			return nil
		}
		if known, r := stamp.FoldFloatCompare(n.Cond == cond.LT, xs, ys, n.Unordered); known {
			return g.ConstBool(r)
		}

	case stamp.ObjectStamp:
		return t.objectCompare(x, y, xs)
	}
	return nil
}

func (t *tool) intCompare(n, x, y *ir.Node) *ir.Node {
	g := t.g
	c := n.Cond
	if c == cond.EQ && x.IsConstant() && !y.IsConstant() {
		return g.CanonicalCompare(cond.EQ, y, x, false)
	}

	if k, ok := y.IntConstant(); ok {
		width := y.ValueBits()
		switch x.Op() {
		case ir.OpMin, ir.OpMax, ir.OpUMin, ir.OpUMax:
			if c == cond.EQ {
				return t.minMaxEquals(x, y, k)
			}
		case ir.OpAnd:
			if c == cond.EQ && k == 0 {
				return g.IntegerTest(g.Input(x, 0), g.Input(x, 1))
			}
		case ir.OpAdd:
			if c == cond.EQ {
				if a, d, ok := t.splitConst(x); ok {
					return g.CanonicalCompare(cond.EQ, a, g.ConstInt(width, k-d), false)
				}
			}
		case ir.OpSub:
			if c == cond.EQ && k == 0 {
				return g.CanonicalCompare(cond.EQ, g.Input(x, 0), g.Input(x, 1), false)
			}
		case ir.OpSignExtend:
			a := g.Input(x, 0)
			from := a.ValueBits()
			if k >= stamp.MinValue(from) && k <= stamp.MaxValue(from) {
				// sign extension preserves signed and unsigned order
				return g.CanonicalCompare(c, a, g.ConstInt(from, k), false)
			}
		case ir.OpZeroExtend:
			a := g.Input(x, 0)
			from := a.ValueBits()
			if k >= 0 && uint64(k) <= stamp.Mask(from) {
				if c == cond.LT {
					// zero-extended values are non-negative
					c = cond.BT
				}
				return g.CanonicalCompare(c, a, g.ConstInt(from, k), false)
			}
		case ir.OpConditional:
			if c == cond.EQ {
				return t.conditionalEquals(x, k)
			}
		}
	}

	if x.Op() == y.Op() && (x.Op() == ir.OpSignExtend || x.Op() == ir.OpZeroExtend) {
		a, b := g.Input(x, 0), g.Input(y, 0)
		if a.ValueBits() == b.ValueBits() {
			if x.Op() == ir.OpZeroExtend && c == cond.LT {
				c = cond.BT
			}
			return g.CanonicalCompare(c, a, b, false)
		}
	}
	return nil
}

// minMaxEquals rewrites "min(c, x) == c" and its relatives into a comparison of x
// with c
func (t *tool) minMaxEquals(mm, cst *ir.Node, k int64) *ir.Node {
	g := t.g
	a, b := g.Input(mm, 0), g.Input(mm, 1)
	var other *ir.Node
	if v, ok := b.IntConstant(); ok && v == k {
		other = a
	} else if v, ok := a.IntConstant(); ok && v == k {
		other = b
	} else {
		return nil
	}
	switch mm.Op() {
	case ir.OpMin: // c <= x
		return g.LogicNegation(g.CanonicalCompare(cond.LT, other, cst, false))
	case ir.OpMax: // x <= c
		return g.LogicNegation(g.CanonicalCompare(cond.LT, cst, other, false))
	case ir.OpUMin:
		return g.LogicNegation(g.CanonicalCompare(cond.BT, other, cst, false))
	case ir.OpUMax:
		return g.LogicNegation(g.CanonicalCompare(cond.BT, cst, other, false))
	}
	return nil
}

// conditionalEquals decides "(l ? a : b) == k" for constant a and b
func (t *tool) conditionalEquals(sel *ir.Node, k int64) *ir.Node {
	g := t.g
	a, aok := g.Input(sel, 1).IntConstant()
	b, bok := g.Input(sel, 2).IntConstant()
	if !aok || !bok {
		return nil
	}
	l := g.Input(sel, 0)
	switch {
	case a == k && b == k:
		return g.ConstBool(true)
	case a == k:
		return l
	case b == k:
		return g.LogicNegation(l)
	}
	return g.ConstBool(false)
}

func (t *tool) objectCompare(x, y *ir.Node, xs stamp.ObjectStamp) *ir.Node {
	g := t.g
	if x == y {
		return g.ConstBool(true)
	}
	if x.IsConstant() && y.IsConstant() {
		// constants are interned, so distinct nodes are distinct values
		return g.ConstBool(false)
	}
	if y.IsNullConstant() {
		return g.IsNull(x)
	}
	if x.IsNullConstant() {
		return g.IsNull(y)
	}
	ys, ok := y.ObjectStamp()
	if !ok || xs.IsEmpty() || ys.IsEmpty() {
		return nil
	}
	switch {
	case xs.AlwaysNull && ys.AlwaysNull:
		return g.ConstBool(true)
	case xs.NonNull && ys.AlwaysNull, xs.AlwaysNull && ys.NonNull:
		return g.ConstBool(false)
	case (xs.NonNull || ys.NonNull) && !types.MayShareInstance(xs.Type, xs.Exact, ys.Type, ys.Exact):
		return g.ConstBool(false)
	}
	return nil
}

func (t *tool) canonicalIsNull(n *ir.Node) *ir.Node {
	x := t.g.Input(n, 0)
	s, ok := x.ObjectStamp()
	if !ok {
		return nil
	}
	if r := stamp.FoldIsNull(s); r.IsKnown() {
		return t.g.ConstBool(r.ToBool())
	}
	return nil
}

func (t *tool) canonicalInstanceOf(n *ir.Node) *ir.Node {
	g := t.g
	x := g.Input(n, 0)
	s, ok := x.ObjectStamp()
	if !ok || s.IsEmpty() {
		return nil
	}
	if r := stamp.FoldInstanceOf(s, n.Type, n.AllowNull); r.IsKnown() {
		return g.ConstBool(r.ToBool())
	}
	switch {
	case n.Type.IsAssignableFrom(s.Type):
		// every non-null value passes
		return g.LogicNegation(g.IsNull(x))
	case n.AllowNull && !types.MayShareInstance(s.Type, s.Exact, n.Type, false):
		// only null passes
		return g.IsNull(x)
	}
	return nil
}

func (t *tool) canonicalIntegerTest(n *ir.Node) *ir.Node {
	g := t.g
	x, y := g.Input(n, 0), g.Input(n, 1)
	xs, xok := x.IntStamp()
	ys, yok := y.IntStamp()
	if !xok || !yok || xs.IsEmpty() || ys.IsEmpty() {
		return nil
	}
	if a, ok := x.IntConstant(); ok {
		if b, ok := y.IntConstant(); ok {
			return g.ConstBool(a&b == 0)
		}
	}
	switch {
	case xs.MayBeSet()&ys.MayBeSet() == 0:
		return g.ConstBool(true)
	case xs.MustBeSet()&ys.MustBeSet() != 0:
		return g.ConstBool(false)
	case x == y:
		return g.CanonicalCompare(cond.EQ, x, g.ConstInt(xs.Bits(), 0), false)
	}
	return nil
}

func (t *tool) canonicalNegation(n *ir.Node) *ir.Node {
	g := t.g
	x := g.Input(n, 0)
	if v, ok := x.IntConstant(); ok {
		return g.ConstBool(v == 0)
	}
	if x.Op() == ir.OpLogicNegation {
		return g.Input(x, 0)
	}
	return nil
}

func (t *tool) canonicalConditional(n *ir.Node) *ir.Node {
	g := t.g
	c, a, b := g.Input(n, 0), g.Input(n, 1), g.Input(n, 2)
	if v, ok := c.IntConstant(); ok {
		if v != 0 {
			return a
		}
		return b
	}
	if a == b {
		return a
	}
	if c.Op() == ir.OpLogicNegation {
		return g.Conditional(g.Input(c, 0), b, a)
	}
	if c.Op() != ir.OpCompare {
		return nil
	}
	if _, ok := a.IntStamp(); !ok {
		return nil
	}
	x, y := g.Input(c, 0), g.Input(c, 1)
	switch c.Cond {
	case cond.LT:
		switch {
		case a == x && b == y:
			return g.Binary(ir.OpMin, x, y)
		case a == y && b == x:
			return g.Binary(ir.OpMax, x, y)
		}
		// x < 0 ? -x : x
		if k, ok := y.IntConstant(); ok && k == 0 && b == x && a.Op() == ir.OpNeg && g.Input(a, 0) == x {
			return g.Unary(ir.OpAbs, x)
		}
	case cond.BT:
		switch {
		case a == x && b == y:
			return g.Binary(ir.OpUMin, x, y)
		case a == y && b == x:
			return g.Binary(ir.OpUMax, x, y)
		}
	}
	return nil
}
