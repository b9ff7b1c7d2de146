package ir

import (
	"fmt"
	"math"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

// Floating node factories. Every one of them may return an existing equal node, so
// the result must always be used in place of any earlier reference. The
// jitopt:unique directive lets uniquelint find calls that drop the result.

// ConstInt returns the integer constant v truncated to bits
//
//jitopt:unique
func (g *Graph) ConstInt(bits int, v int64) *Node {
	return g.Const(Constant{Kind: ConstInt, Bits: bits, Int: stamp.SignExtend(uint64(v), bits)})
}

// ConstBool returns the i32 constant 1 or 0
//
//jitopt:unique
func (g *Graph) ConstBool(b bool) *Node {
	if b {
		return g.ConstInt(32, 1)
	}
	return g.ConstInt(32, 0)
}

// ConstFloat returns the float constant v rounded to bits
//
//jitopt:unique
func (g *Graph) ConstFloat(bits int, v float64) *Node {
	if bits == 32 {
		v = float64(float32(v))
	}
	return g.Const(Constant{Kind: ConstFloat, Bits: bits, FloatBits: math.Float64bits(v)})
}

//jitopt:unique
func (g *Graph) ConstNull() *Node {
	return g.Const(Constant{Kind: ConstNull})
}

//jitopt:unique
func (g *Graph) ConstArray(a *ConstArray) *Node {
	return g.Const(Constant{Kind: ConstArrayRef, Array: a})
}

// Const interns an arbitrary constant
//
//jitopt:unique
func (g *Graph) Const(c Constant) *Node {
	return g.unique(OpConstant, Data{Const: c})
}

// Param creates the parameter at the given position. Parameters are not interned.
func (g *Graph) Param(index int, name string, s stamp.Stamp) *Node {
	n := g.newNode(OpParam, Data{Index: index, Name: name, Declared: s}, nil)
	g.params = append(g.params, n.id)
	return n
}

// Binary creates an arithmetic or bitwise node
//
//jitopt:unique
func (g *Graph) Binary(op Op, x, y *Node) *Node {
	if !op.IsBinary() {
		panic(fmt.Sprintf("%s is not a binary operation", op))
	}
	return g.unique(op, Data{}, x.id, y.id)
}

// Unary creates Neg, Abs or Not
//
//jitopt:unique
func (g *Graph) Unary(op Op, x *Node) *Node {
	switch op {
	case OpNeg, OpAbs, OpNot:
	default:
		panic(fmt.Sprintf("%s is not a unary operation", op))
	}
	return g.unique(op, Data{}, x.id)
}

// Convert changes the width of an integer with SignExtend, ZeroExtend or Narrow
//
//jitopt:unique
func (g *Graph) Convert(op Op, x *Node, bits int) *Node {
	switch op {
	case OpSignExtend, OpZeroExtend, OpNarrow:
	default:
		panic(fmt.Sprintf("%s is not a conversion", op))
	}
	return g.unique(op, Data{Bits: bits}, x.id)
}

// CanonicalCompare creates a Compare node for one of the canonical conditions EQ,
// LT or BT. unordered selects the result on NaN operands of a float comparison.
//
//jitopt:unique
func (g *Graph) CanonicalCompare(c cond.Condition, x, y *Node, unordered bool) *Node {
	if c != cond.EQ && c != cond.LT && c != cond.BT {
		panic(fmt.Sprintf("condition %s is not canonical", c.Name()))
	}
	if _, ok := x.stamp.(stamp.FloatStamp); !ok {
		unordered = false
	}
	return g.unique(OpCompare, Data{Cond: c, Unordered: unordered}, x.id, y.id)
}

// Compare builds the logic of "x c y" with the usual source language semantics: float
// comparisons are false on NaN except for NE. The result is a canonical Compare,
// possibly under a LogicNegation.
//
//jitopt:unique
func (g *Graph) Compare(c cond.Condition, x, y *Node) *Node {
	return g.FloatCompare(c, x, y, c == cond.NE)
}

// FloatCompare is Compare with an explicit result for unordered operands
//
//jitopt:unique
func (g *Graph) FloatCompare(c cond.Condition, x, y *Node, unorderedIsTrue bool) *Node {
	cc := c.Canonicalize()
	if cc.Mirror {
		x, y = y, x
	}
	if cc.Negate {
		return g.LogicNegation(g.CanonicalCompare(cc.Cond, x, y, !unorderedIsTrue))
	}
	return g.CanonicalCompare(cc.Cond, x, y, unorderedIsTrue)
}

//jitopt:unique
func (g *Graph) IsNull(x *Node) *Node {
	return g.unique(OpIsNull, Data{}, x.id)
}

// InstanceOf tests x against t. With allowNull the test also holds for null.
//
//jitopt:unique
func (g *Graph) InstanceOf(x *Node, t *types.Type, allowNull bool) *Node {
	return g.unique(OpInstanceOf, Data{Type: t, AllowNull: allowNull}, x.id)
}

// IntegerTest holds when x & y == 0
//
//jitopt:unique
func (g *Graph) IntegerTest(x, y *Node) *Node {
	return g.unique(OpIntegerTest, Data{}, x.id, y.id)
}

//jitopt:unique
func (g *Graph) LogicNegation(l *Node) *Node {
	return g.unique(OpLogicNegation, Data{}, l.id)
}

// Conditional selects t when the logic node c holds and f otherwise
//
//jitopt:unique
func (g *Graph) Conditional(c, t, f *Node) *Node {
	return g.unique(OpConditional, Data{}, c.id, t.id, f.id)
}

// ArrayLength reads the length of a non-null array
//
//jitopt:unique
func (g *Graph) ArrayLength(a *Node) *Node {
	return g.unique(OpArrayLength, Data{}, a.id)
}

// FloatingRead reads a final field of a non-null object
//
//jitopt:unique
func (g *Graph) FloatingRead(f *types.Field, obj *Node) *Node {
	return g.unique(OpFloatingReadField, Data{Field: f}, obj.id)
}

// Pi narrows v to s while guard (a guard or begin node) is known to have passed
//
//jitopt:unique
func (g *Graph) Pi(v, guard *Node, s stamp.Stamp) *Node {
	return g.unique(OpPi, Data{Declared: s}, v.id, guard.id)
}

// Guard creates a floating guard that deoptimizes unless c holds (or, when negated,
// unless c fails) once execution reaches anchor.
//
//jitopt:unique
func (g *Graph) Guard(c, anchor *Node, reason deopt.Reason, action deopt.Action, negated bool) *Node {
	return g.unique(OpGuard, Data{Reason: reason, Action: action, Negated: negated}, c.id, anchor.id)
}

// Opaque hides the value of x from every optimization
func (g *Graph) Opaque(x *Node) *Node {
	g.opaque++
	return g.newNode(OpOpaque, Data{Index: g.opaque}, []NodeID{x.id})
}

// Phi creates a phi of a merge or loop begin. values follow the order of the forward
// ends and then the loop ends. declared is the stamp of the source variable.
func (g *Graph) Phi(merge *Node, declared stamp.Stamp, values ...*Node) *Node {
	ids := make([]NodeID, 0, len(values)+1)
	ids = append(ids, merge.id)
	for _, v := range values {
		ids = append(ids, v.id)
	}
	return g.newNode(OpPhi, Data{Declared: declared}, ids)
}

// Fixed node factories. The results are unlinked; use SetNext, InsertBefore or the
// block helpers in control.go to place them.

func (g *Graph) fixed(op Op, data Data, inputs ...*Node) *Node {
	ids := make([]NodeID, len(inputs))
	for i, in := range inputs {
		if in != nil {
			ids[i] = in.id
		}
	}
	return g.newNode(op, data, ids)
}

func (g *Graph) Begin() *Node { return g.fixed(OpBegin, Data{}) }

func (g *Graph) End() *Node { return g.fixed(OpEnd, Data{}) }

// Merge creates a merge of the given ends
func (g *Graph) Merge(ends ...*Node) *Node { return g.fixed(OpMerge, Data{}, ends...) }

// LoopBegin creates a loop header entered through the given forward ends
func (g *Graph) LoopBegin(ends ...*Node) *Node {
	return g.fixed(OpLoopBegin, Data{Safepoint: true}, ends...)
}

// LoopEnd creates the next back edge of lb. Phis of lb must be given a value for it.
func (g *Graph) LoopEnd(lb *Node) *Node {
	return g.fixed(OpLoopEnd, Data{Index: len(g.LoopEnds(lb)), Safepoint: lb.Safepoint}, lb)
}

// LoopExit marks leaving lb
func (g *Graph) LoopExit(lb *Node) *Node { return g.fixed(OpLoopExit, Data{}, lb) }

// If creates a branch together with its two successor Begins
func (g *Graph) If(c *Node) (ifNode, trueBegin, falseBegin *Node) {
	ifNode = g.fixed(OpIf, Data{}, c)
	trueBegin, falseBegin = g.Begin(), g.Begin()
	g.SetSucc(ifNode, 0, trueBegin)
	g.SetSucc(ifNode, 1, falseBegin)
	return ifNode, trueBegin, falseBegin
}

// Return returns v, or nothing when v is nil
func (g *Graph) Return(v *Node) *Node {
	if v == nil {
		return g.fixed(OpReturn, Data{})
	}
	return g.fixed(OpReturn, Data{}, v)
}

func (g *Graph) Deoptimize(reason deopt.Reason, action deopt.Action) *Node {
	return g.fixed(OpDeoptimize, Data{Reason: reason, Action: action})
}

// FixedGuard deoptimizes unless c holds (or fails, when negated)
func (g *Graph) FixedGuard(c *Node, reason deopt.Reason, action deopt.Action, negated bool) *Node {
	return g.fixed(OpFixedGuard, Data{Reason: reason, Action: action, Negated: negated}, c)
}

func (g *Graph) LoadField(obj *Node, f *types.Field) *Node {
	return g.fixed(OpLoadField, Data{Field: f}, obj)
}

func (g *Graph) StoreField(obj *Node, f *types.Field, v *Node) *Node {
	return g.fixed(OpStoreField, Data{Field: f}, obj, v)
}

// LoadIndexed reads arr[index]; arrayType describes arr
func (g *Graph) LoadIndexed(arr, index *Node, arrayType *types.Type) *Node {
	return g.fixed(OpLoadIndexed, Data{Type: arrayType}, arr, index)
}

func (g *Graph) StoreIndexed(arr, index, v *Node, arrayType *types.Type) *Node {
	return g.fixed(OpStoreIndexed, Data{Type: arrayType}, arr, index, v)
}

func (g *Graph) NewInstance(t *types.Type) *Node {
	return g.fixed(OpNewInstance, Data{Type: t})
}

func (g *Graph) NewArray(arrayType *types.Type, length *Node) *Node {
	return g.fixed(OpNewArray, Data{Type: arrayType}, length)
}

// Invoke calls an opaque function with the given result stamp
func (g *Graph) Invoke(name string, result stamp.Stamp, args ...*Node) *Node {
	return g.fixed(OpInvoke, Data{Name: name, Declared: result}, args...)
}

// BlackHole consumes v as an observable side effect
func (g *Graph) BlackHole(v *Node) *Node { return g.fixed(OpBlackHole, Data{}, v) }

// ControlFlowAnchor is a position that no optimization may move guards across
func (g *Graph) ControlFlowAnchor() *Node { return g.fixed(OpControlFlowAnchor, Data{}) }
