package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/stamp"
)

func TestUniqueReturnsExistingNode(t *testing.T) {
	g := NewGraph("gvn", nil)
	x := g.Param(0, "x", stamp.Int(32))
	y := g.Param(1, "y", stamp.Int(32))

	a := g.Binary(OpAdd, x, y)
	b := g.Binary(OpAdd, y, x)
	assert.Same(t, a, b, "commutative operands intern to one node")

	s1 := g.Binary(OpSub, x, y)
	s2 := g.Binary(OpSub, y, x)
	assert.NotSame(t, s1, s2)

	assert.Same(t, g.ConstInt(32, 7), g.ConstInt(32, 7))
	assert.NotSame(t, g.ConstInt(32, 7), g.ConstInt(64, 7))
	assert.Same(t, g.ConstFloat(64, 0), g.ConstFloat(64, 0))
	assert.NotSame(t, g.ConstFloat(64, 0), g.ConstFloat(64, negZero()), "-0.0 is a different constant")

	p1, p2 := g.Param(2, "z", stamp.Int(32)), g.Param(3, "z", stamp.Int(32))
	assert.NotSame(t, p1, p2, "parameters are never shared")
	assert.NotSame(t, g.Opaque(x), g.Opaque(x))
}

func TestCompareIsCanonical(t *testing.T) {
	g := NewGraph("cmp", nil)
	x := g.Param(0, "x", stamp.Int(32))
	y := g.Param(1, "y", stamp.Int(32))

	gt := g.Compare(cond.GT, x, y)
	require.Equal(t, OpCompare, gt.Op())
	assert.Equal(t, cond.LT, gt.Cond)
	assert.Equal(t, y.ID(), gt.InputID(0))

	le := g.Compare(cond.LE, x, y)
	require.Equal(t, OpLogicNegation, le.Op())
	assert.Same(t, gt, g.Input(le, 0), "x <= y is !(y < x)")

	f := g.Param(2, "f", stamp.Float(64))
	h := g.Param(3, "h", stamp.Float(64))
	ge := g.Compare(cond.GE, f, h)
	require.Equal(t, OpLogicNegation, ge.Op())
	inner := g.Input(ge, 0)
	assert.Equal(t, cond.LT, inner.Cond)
	assert.True(t, inner.Unordered, "f >= h is false on NaN, so the negated test is true on NaN")
	ne := g.Compare(cond.NE, f, h)
	assert.False(t, g.Input(ne, 0).Unordered)
}

func TestReplaceAtUsagesMergesEqualUsers(t *testing.T) {
	g := NewGraph("merge", nil)
	x := g.Param(0, "x", stamp.Int(32))
	y := g.Param(1, "y", stamp.Int(32))
	one := g.ConstInt(32, 1)
	a := g.Binary(OpAdd, x, one)
	b := g.Binary(OpAdd, y, one)
	ret := g.Return(g.Binary(OpMul, a, b))
	g.SetNext(g.Start(), ret)

	// once y is x, both additions are the same value
	g.ReplaceAtUsages(y, x)
	assert.Nil(t, g.Node(b.ID()), "the duplicate was merged away")
	mul := g.Input(ret, 0)
	assert.Equal(t, []NodeID{a.ID(), a.ID()}, mul.Inputs())
	assert.Equal(t, 2, a.UsageCount())
	assert.Equal(t, []NodeID{mul.ID()}, a.Usages())
	assert.False(t, y.HasUsages())
}

func TestSetInputReturnsSurvivor(t *testing.T) {
	g := NewGraph("setinput", nil)
	x := g.Param(0, "x", stamp.Int(32))
	y := g.Param(1, "y", stamp.Int(32))
	nx := g.Unary(OpNeg, x)
	ny := g.Unary(OpNeg, y)
	g.SetNext(g.Start(), g.Return(g.Binary(OpAdd, nx, ny)))

	r := g.SetInput(ny, 0, x)
	assert.Same(t, nx, r)
	assert.Nil(t, g.Node(ny.ID()))
}

func TestKillIfDead(t *testing.T) {
	g := NewGraph("dce", nil)
	x := g.Param(0, "x", stamp.Int(32))
	a := g.Binary(OpAdd, x, g.ConstInt(32, 3))
	n := g.Unary(OpNeg, a)
	g.KillIfDead(n)
	assert.Nil(t, g.Node(n.ID()))
	assert.Nil(t, g.Node(a.ID()))
	assert.NotNil(t, g.Node(x.ID()), "parameters stay")
	assert.Equal(t, 0, g.Count(OpConstant))

	c := g.Compare(cond.EQ, x, g.ConstInt(32, 0))
	guard := g.Guard(c, g.Start(), deopt.NullCheck, deopt.InvalidateRecompile, false)
	g.KillIfDead(guard)
	assert.NotNil(t, g.Node(guard.ID()), "guards are anchored, not used")
}

func TestKillCFGRemovesBranchAndPhiInputs(t *testing.T) {
	g := buildAbsDiamond(false)
	ifn := g.NodesOf(OpIf)[0]
	tb := g.Succ(ifn, 0)
	m := g.NodesOf(OpMerge)[0]
	phi := g.Phis(m)[0]
	neg := g.NodesOf(OpNeg)[0]

	g.KillCFG(tb)
	assert.Nil(t, g.Node(tb.ID()))
	assert.Equal(t, 1, len(g.Ends(m)))
	assert.Equal(t, 2, phi.InputCount(), "phi keeps the merge and one value")
	assert.Nil(t, g.Node(neg.ID()), "values of the dead branch are gone")
	assert.Equal(t, NoNode, ifn.Succs()[0])
}

func TestKillCFGLoopWithoutEntry(t *testing.T) {
	g := NewGraph("loop", nil)
	entry := g.End()
	g.SetNext(g.Start(), entry)
	lb := g.LoopBegin(entry)
	phi := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
	le := g.LoopEnd(lb)
	g.SetNext(lb, le)
	g.AppendInput(phi, g.Binary(OpAdd, phi, g.ConstInt(32, 1)))

	g.KillCFG(lb)
	assert.Nil(t, g.Node(lb.ID()))
	assert.Nil(t, g.Node(le.ID()))
	assert.Nil(t, g.Node(phi.ID()))
	assert.Equal(t, 0, g.Count(OpAdd))
}

func TestRemoveLoopEndRenumbers(t *testing.T) {
	g := NewGraph("ends", nil)
	entry := g.End()
	g.SetNext(g.Start(), entry)
	lb := g.LoopBegin(entry)
	phi := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
	le0 := g.LoopEnd(lb)
	g.AppendInput(phi, g.ConstInt(32, 1))
	le1 := g.LoopEnd(lb)
	g.AppendInput(phi, g.ConstInt(32, 2))
	assert.Equal(t, 1, le1.Index)

	g.RemoveLoopEnd(lb, le0)
	assert.Equal(t, 0, le1.Index)
	v, _ := g.PhiValueAt(phi, 1).IntConstant()
	assert.Equal(t, int64(2), v)
	assert.Equal(t, []*Node{le1}, g.LoopEnds(lb))
}

func TestInsertBeforeAndRemoveFixed(t *testing.T) {
	g := NewGraph("fixed", nil)
	x := g.Param(0, "x", stamp.Int(32))
	ret := g.Return(x)
	g.SetNext(g.Start(), ret)

	sink := g.BlackHole(x)
	g.InsertBefore(ret, sink)
	assert.Same(t, sink, g.Next(g.Start()))
	assert.Same(t, ret, g.Next(sink))
	assert.Same(t, sink, g.Pred(ret))

	g.RemoveFixed(sink, nil)
	assert.Same(t, ret, g.Next(g.Start()))
	assert.Nil(t, g.Node(sink.ID()))
}

func TestCopyIsIndependent(t *testing.T) {
	g := buildAbsDiamond(false)
	c := g.Copy()
	require.Equal(t, Print(g), Print(c))

	tb := g.Succ(g.NodesOf(OpIf)[0], 0)
	g.KillCFG(tb)
	assert.NotEqual(t, Print(g), Print(c))
	assert.Equal(t, 1, c.Count(OpNeg))
}

func TestRemoveDeadFloatingCycle(t *testing.T) {
	g := NewGraph("cycle", nil)
	entry := g.End()
	g.SetNext(g.Start(), entry)
	lb := g.LoopBegin(entry)
	phi := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
	le := g.LoopEnd(lb)
	g.SetNext(lb, le)
	add := g.Binary(OpAdd, phi, g.ConstInt(32, 1))
	g.AppendInput(phi, add)

	// the phi and the add keep each other alive but nothing fixed uses them
	g.KillIfDead(add)
	assert.NotNil(t, g.Node(add.ID()))
	removed := g.RemoveDeadFloating()
	assert.Equal(t, 4, removed)
	assert.Nil(t, g.Node(phi.ID()))
}

func TestListener(t *testing.T) {
	g := NewGraph("events", nil)
	var added, changed int
	stop := g.AddListener(func(e EventKind, n *Node) {
		switch e {
		case NodeAdded:
			added++
		case InputsChanged:
			changed++
		}
	})
	x := g.Param(0, "x", stamp.Int(32))
	y := g.Param(1, "y", stamp.Int(32))
	n := g.Unary(OpNeg, x)
	g.SetNext(g.Start(), g.Return(n))
	n = g.SetInput(n, 0, y)
	assert.Equal(t, 4, added)
	assert.Equal(t, 1, changed)
	stop()
	assert.NotNil(t, g.ConstInt(32, 1))
	assert.Equal(t, 4, added)
	assert.Same(t, y, g.Input(n, 0))
}
