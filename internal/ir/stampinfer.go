package ir

import (
	"math"

	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

// PrimStamp returns the unrestricted stamp of a storage kind. ref is the class of a
// reference, nil meaning any object.
func PrimStamp(p types.Prim, ref *types.Type) stamp.Stamp {
	switch p {
	case types.PrimI32, types.PrimI64:
		return stamp.Int(p.Bits())
	case types.PrimF32, types.PrimF64:
		return stamp.Float(p.Bits())
	case types.PrimRef:
		return stamp.ObjectOf(ref, false, false)
	}
	return stamp.Void
}

// ElementStamp returns the stamp of an element loaded from an array of type t
func ElementStamp(t *types.Type) stamp.Stamp {
	if t == nil || !t.Array {
		return stamp.Illegal
	}
	return PrimStamp(t.ElemPrim, t.ElemType)
}

// FieldStamp returns the stamp of a value loaded from f
func FieldStamp(f *types.Field) stamp.Stamp {
	return PrimStamp(f.Prim, f.RefType)
}

func inputStamp(g *Graph, n *Node, i int) stamp.Stamp {
	if in := g.Input(n, i); in != nil {
		return in.stamp
	}
	return stamp.Illegal
}

func inferStamp(g *Graph, n *Node) stamp.Stamp {
	switch n.op {
	case OpConstant:
		return n.Const.Stamp()
	case OpParam, OpInvoke:
		if n.Declared == nil {
			return stamp.Void
		}
		return n.Declared
	case OpPhi:
		return phiStamp(g, n)
	case OpPi:
		return inputStamp(g, n, 0).Join(n.Declared)
	case OpOpaque:
		return inputStamp(g, n, 0).Unrestricted()
	case OpNeg, OpAbs, OpNot:
		return unaryStamp(n.op, inputStamp(g, n, 0))
	case OpSignExtend, OpZeroExtend, OpNarrow:
		a, ok := inputStamp(g, n, 0).(stamp.IntegerStamp)
		if !ok {
			return stamp.Illegal
		}
		switch n.op {
		case OpSignExtend:
			return stamp.SignExtendTo(a, n.Bits)
		case OpZeroExtend:
			return stamp.ZeroExtendTo(a, n.Bits)
		}
		return stamp.Narrow(a, n.Bits)
	case OpConditional:
		return inputStamp(g, n, 1).Meet(inputStamp(g, n, 2))
	case OpArrayLength:
		return stamp.Range(32, 0, math.MaxInt32)
	case OpFloatingReadField, OpLoadField:
		return FieldStamp(n.Field)
	case OpLoadIndexed:
		return ElementStamp(n.Type)
	case OpNewInstance, OpNewArray:
		return stamp.ObjectOf(n.Type, true, true)
	}
	if n.op.IsBinary() {
		return binaryStamp(n.op, inputStamp(g, n, 0), inputStamp(g, n, 1))
	}
	return stamp.Void
}

func meetValues(g *Graph, n *Node, ids []NodeID) stamp.Stamp {
	var s stamp.Stamp
	for _, id := range ids {
		if id == n.id {
			continue
		}
		in := g.Node(id)
		if in == nil {
			continue
		}
		if s == nil {
			s = in.stamp
		} else if s.Kind() == stamp.KindIllegal || stamp.IsCompatible(s, in.stamp) {
			s = s.Meet(in.stamp)
		}
	}
	return s
}

// phiStamp meets the values of a phi. A loop phi whose back edges widen the forward
// stamp goes straight to the declared stamp, so stamps of loop-carried values cannot
// creep one iteration at a time.
func phiStamp(g *Graph, n *Node) stamp.Stamp {
	s := meetValues(g, n, n.inputs[1:])
	if s == nil {
		if n.Declared != nil {
			return n.Declared.Empty()
		}
		return stamp.Illegal
	}
	if m := g.Node(n.inputs[0]); m != nil && m.op == OpLoopBegin && len(n.inputs) > len(m.inputs)+1 {
		if fwd := meetValues(g, n, n.inputs[1:len(m.inputs)+1]); fwd != nil && !fwd.Equals(s) {
			s = s.Unrestricted()
		}
	}
	if n.Declared != nil && stamp.IsCompatible(s, n.Declared) {
		s = s.Join(n.Declared)
	}
	return s
}

func unaryStamp(op Op, a stamp.Stamp) stamp.Stamp {
	switch x := a.(type) {
	case stamp.IntegerStamp:
		switch op {
		case OpNeg:
			return stamp.Neg(x)
		case OpAbs:
			return stamp.Abs(x)
		case OpNot:
			return stamp.Not(x)
		}
	case stamp.FloatStamp:
		switch op {
		case OpNeg:
			return stamp.FNeg(x)
		case OpAbs:
			return stamp.FAbs(x)
		}
	}
	return stamp.Illegal
}

func binaryStamp(op Op, a, b stamp.Stamp) stamp.Stamp {
	switch x := a.(type) {
	case stamp.IntegerStamp:
		y, ok := b.(stamp.IntegerStamp)
		if !ok {
			return stamp.Illegal
		}
		switch op {
		case OpShl:
			return stamp.Shl(x, y)
		case OpShr:
			return stamp.Shr(x, y)
		case OpUShr:
			return stamp.UShr(x, y)
		}
		if x.Bits() != y.Bits() {
			return stamp.Illegal
		}
		switch op {
		case OpAdd:
			return stamp.Add(x, y)
		case OpSub:
			return stamp.Sub(x, y)
		case OpMul:
			return stamp.Mul(x, y)
		case OpDiv:
			return stamp.Div(x, y)
		case OpRem:
			return stamp.Rem(x, y)
		case OpAnd:
			return stamp.And(x, y)
		case OpOr:
			return stamp.Or(x, y)
		case OpXor:
			return stamp.Xor(x, y)
		case OpMin:
			return stamp.Min(x, y)
		case OpMax:
			return stamp.Max(x, y)
		case OpUMin:
			return stamp.UMin(x, y)
		case OpUMax:
			return stamp.UMax(x, y)
		}
	case stamp.FloatStamp:
		y, ok := b.(stamp.FloatStamp)
		if !ok || x.Bits() != y.Bits() {
			return stamp.Illegal
		}
		switch op {
		case OpAdd:
			return stamp.FAdd(x, y)
		case OpSub:
			return stamp.FSub(x, y)
		case OpMul:
			return stamp.FMul(x, y)
		case OpMin, OpMax:
			// the result is one of the operands, or NaN when either is NaN
			return x.Meet(y)
		case OpDiv, OpRem:
			if x.IsEmpty() || y.IsEmpty() {
				return x.Empty()
			}
			return stamp.Float(x.Bits())
		}
	}
	return stamp.Illegal
}
