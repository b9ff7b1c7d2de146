package loop

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/canon"
	"jitopt/internal/cfg"
	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

type counted struct {
	g     *ir.Graph
	entry *ir.Node
	lb    *ir.Node
	iv    *ir.Node
	body  *ir.Node // first node of the body, after the exit test
}

// countedLoop builds
//
//	i = init; while (i c limit) { sink(i); i += stride }; return i
func countedLoop(c cond.Condition, init int64, limit func(*ir.Graph) *ir.Node, stride int64) counted {
	g := ir.NewGraph("counted", nil)
	lim := limit(g)
	e0 := g.End()
	g.SetNext(g.Start(), e0)
	lb := g.LoopBegin(e0)
	i := g.Phi(lb, stamp.Int(32), g.ConstInt(32, init))
	ifn, body, exit := g.If(g.Compare(c, i, lim))
	g.SetNext(lb, ifn)
	bh := g.BlackHole(i)
	g.SetNext(body, bh)
	g.SetNext(bh, g.LoopEnd(lb))
	g.AppendInput(i, g.Binary(ir.OpAdd, i, g.ConstInt(32, stride)))
	lx := g.LoopExit(lb)
	g.SetNext(exit, lx)
	g.SetNext(lx, g.Return(i))
	return counted{g: g, entry: e0, lb: lb, iv: i, body: bh}
}

func param(s stamp.Stamp) func(*ir.Graph) *ir.Node {
	return func(g *ir.Graph) *ir.Node { return g.Param(0, "n", s) }
}

func constant(v int64) func(*ir.Graph) *ir.Node {
	return func(g *ir.Graph) *ir.Node { return g.ConstInt(32, v) }
}

func detect(t *testing.T, g *ir.Graph) *CountedLoopInfo {
	t.Helper()
	infos := Counted(cfg.Compute(g))
	require.Len(t, infos, 1)
	return infos[0]
}

func TestDetectCounted(t *testing.T) {
	l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 1)
	info := detect(t, l.g)
	assert.Same(t, l.iv, info.IV)
	assert.Equal(t, cond.LT, info.Condition)
	assert.Equal(t, int64(1), info.Stride)
	assert.True(t, info.Up())
	assert.Equal(t, 32, info.Bits())
	assert.False(t, info.MayOverflow(), "i < n with step 1 stops at n")

	down := countedLoop(cond.GT, 10, constant(0), -1)
	info = detect(t, down.g)
	assert.Equal(t, cond.GT, info.Condition)
	assert.False(t, info.Up())

	wrong := countedLoop(cond.LT, 0, param(stamp.Int(32)), -1)
	assert.Empty(t, Counted(cfg.Compute(wrong.g)), "counting down towards an upper limit")
}

func TestConstantTripCount(t *testing.T) {
	tests := []struct {
		name   string
		c      cond.Condition
		init   int64
		limit  int64
		stride int64
		want   int64
	}{
		{"lt", cond.LT, 0, 10, 1, 10},
		{"lt stride", cond.LT, 0, 10, 3, 4},
		{"le", cond.LE, 0, 10, 1, 11},
		{"gt", cond.GT, 10, 0, -1, 10},
		{"ge stride", cond.GE, 10, 0, -5, 3},
		{"never", cond.LT, 5, 5, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := countedLoop(tt.c, tt.init, constant(tt.limit), tt.stride)
			n, ok := detect(t, l.g).ConstantTripCount()
			require.True(t, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestLimitCheckOnlyWhenOverflowPossible(t *testing.T) {
	l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 2)
	info := detect(t, l.g)
	require.True(t, info.MayOverflow())

	assert.Equal(t, 1, InsertLimitChecks(l.g))
	gd := l.g.Pred(l.entry)
	require.Equal(t, ir.OpFixedGuard, gd.Op())
	assert.Equal(t, deopt.LoopLimitCheck, gd.Reason)
	assert.False(t, gd.Negated)
	test := l.g.Input(gd, 0)
	k, ok := l.g.Input(test, 1).IntConstant()
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt32), k, "n must stay below MAX for i+2 not to wrap")

	info = detect(t, l.g)
	assert.Equal(t, ir.OpPi, info.Limit.Op())
	assert.False(t, info.MayOverflow())
	assert.Zero(t, InsertLimitChecks(l.g))

	bounded := countedLoop(cond.LT, 0, param(stamp.Range(32, 0, 100)), 2)
	assert.Zero(t, InsertLimitChecks(bounded.g))

	down := countedLoop(cond.GE, 100, param(stamp.Int(32)), -1)
	assert.Equal(t, 1, InsertLimitChecks(down.g))
	assert.True(t, down.g.Pred(down.entry).Negated, "down loops deoptimize when the limit is too small")
}

func TestLimitCheckPhaseFollowsOptions(t *testing.T) {
	ctx := phase.NewContext(context.Background(), options.Default())
	l := countedLoop(cond.LE, 0, param(stamp.Int(32)), 1)
	changed, err := phase.Run(LimitCheck{}, l.g, ctx)
	require.NoError(t, err)
	assert.False(t, changed, "no loop transformation needs it")

	ctx.Options.LoopPeeling = true
	changed, err = phase.Run(LimitCheck{}, l.g, ctx)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSafepointsOfCountedLoops(t *testing.T) {
	l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 1)
	snap := TakeSafepoints(l.g)
	require.True(t, l.lb.Safepoint)

	ctx := phase.NewContext(context.Background(), options.Default())
	p := NewSafepointElimination()
	changed, err := phase.Run(p, l.g, ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, l.lb.Safepoint)
	for _, le := range l.g.LoopEnds(l.lb) {
		assert.False(t, le.Safepoint)
	}

	err = snap.Verify(l.g)
	require.Error(t, err)
	assert.Equal(t, jerrors.ErrorSafepointChanged, jerrors.CodeOf(err))

	_, err = phase.Run(p, l.g, ctx)
	assert.Equal(t, jerrors.ErrorPhaseReapplied, jerrors.CodeOf(err))
}

func TestPreserveSafepoints(t *testing.T) {
	ctx := phase.NewContext(context.Background(), options.Default())
	l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 1)

	quiet := PreserveSafepoints(canon.New())
	_, err := phase.Run(quiet, l.g, ctx)
	require.NoError(t, err)

	flip := PreserveSafepoints(&phase.Func{PhaseName: "flip", Fn: func(g *ir.Graph, _ *phase.Context) (bool, error) {
		for _, lb := range g.NodesOf(ir.OpLoopBegin) {
			lb.Safepoint = !lb.Safepoint
		}
		return true, nil
	}})
	_, err = phase.Run(flip, l.g, ctx)
	require.Error(t, err)
	var v *jerrors.VerificationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "flip", v.Phase)
}

func TestVerifyProgress(t *testing.T) {
	t.Run("counted", func(t *testing.T) {
		l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 1)
		assert.NoError(t, VerifyProgress(l.g))
	})

	// while (i < n) {} with nothing changing i
	static := func(sink bool) *ir.Graph {
		g := ir.NewGraph("static", nil)
		n := g.Param(0, "n", stamp.Int(32))
		e0 := g.End()
		g.SetNext(g.Start(), e0)
		lb := g.LoopBegin(e0)
		i := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
		ifn, body, exit := g.If(g.Compare(cond.LT, i, n))
		g.SetNext(lb, ifn)
		le := g.LoopEnd(lb)
		if sink {
			bh := g.BlackHole(n)
			g.SetNext(body, bh)
			g.SetNext(bh, le)
		} else {
			g.SetNext(body, le)
		}
		g.AppendInput(i, i)
		lx := g.LoopExit(lb)
		g.SetNext(exit, lx)
		g.SetNext(lx, g.Return(i))
		return g
	}

	t.Run("static", func(t *testing.T) {
		err := VerifyProgress(static(false))
		require.Error(t, err)
		assert.Equal(t, jerrors.ErrorLoopProgress, jerrors.CodeOf(err))
	})

	t.Run("side effect", func(t *testing.T) {
		assert.NoError(t, VerifyProgress(static(true)))
	})

	// while (i < n) { if (p != 0) { i = i + 1; } } with i carried through an inner merge
	conditional := func(elseStep bool) *ir.Graph {
		g := ir.NewGraph("conditional", nil)
		n := g.Param(0, "n", stamp.Int(32))
		p := g.Param(1, "p", stamp.Int(32))
		e0 := g.End()
		g.SetNext(g.Start(), e0)
		lb := g.LoopBegin(e0)
		i := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
		ifn, body, exit := g.If(g.Compare(cond.LT, i, n))
		g.SetNext(lb, ifn)
		inner, inc, skip := g.If(g.Compare(cond.NE, p, g.ConstInt(32, 0)))
		g.SetNext(body, inner)
		te, fe := g.End(), g.End()
		g.SetNext(inc, te)
		g.SetNext(skip, fe)
		m := g.Merge(te, fe)
		other := i
		if elseStep {
			other = g.Binary(ir.OpAdd, i, g.ConstInt(32, 2))
		}
		next := g.Phi(m, stamp.Int(32), g.Binary(ir.OpAdd, i, g.ConstInt(32, 1)), other)
		le := g.LoopEnd(lb)
		g.SetNext(m, le)
		g.AppendInput(i, next)
		lx := g.LoopExit(lb)
		g.SetNext(exit, lx)
		g.SetNext(lx, g.Return(i))
		return g
	}

	t.Run("conditional step", func(t *testing.T) {
		err := VerifyProgress(conditional(false))
		require.Error(t, err, "the path around the increment leaves i unchanged")
		assert.Equal(t, jerrors.ErrorLoopProgress, jerrors.CodeOf(err))
	})

	t.Run("step on both paths", func(t *testing.T) {
		assert.NoError(t, VerifyProgress(conditional(true)))
	})
}

func box(t *testing.T) (*types.TypeRegistry, *types.Type, *types.Field) {
	t.Helper()
	reg := types.NewTypeRegistry()
	cls, err := reg.Declare("Box", nil, nil, false, false)
	require.NoError(t, err)
	f, err := reg.AddField(cls, "v", types.PrimI32, nil, false)
	require.NoError(t, err)
	return reg, cls, f
}

func TestInvariantGuardLeavesLoop(t *testing.T) {
	reg, cls, f := box(t)
	g := ir.NewGraph("invariant", reg)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
	n := g.Param(1, "n", stamp.Int(32))
	e0 := g.End()
	g.SetNext(g.Start(), e0)
	lb := g.LoopBegin(e0)
	i := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
	gd := g.FixedGuard(g.IsNull(x), deopt.NullCheck, deopt.InvalidateReprofile, true)
	g.SetNext(lb, gd)
	ifn, body, exit := g.If(g.Compare(cond.LT, i, n))
	g.SetNext(gd, ifn)
	ld := g.LoadField(g.Pi(x, gd, stamp.ObjectOf(cls, false, true)), f)
	g.SetNext(body, ld)
	g.SetNext(ld, g.LoopEnd(lb))
	g.AppendInput(i, g.Binary(ir.OpAdd, i, ld))
	lx := g.LoopExit(lb)
	g.SetNext(exit, lx)
	g.SetNext(lx, g.Return(i))

	assert.Equal(t, 1, HoistInvariantGuards(g))
	moved := g.Next(g.Start())
	require.Equal(t, ir.OpFixedGuard, moved.Op())
	assert.Same(t, e0, g.Next(moved))
	assert.Same(t, ifn, g.Next(lb))
	assert.Same(t, moved, g.Input(g.Input(ld, 0), 1))
	assert.Zero(t, HoistInvariantGuards(g))
}

func TestGuardsDependingOnTheLoopStay(t *testing.T) {
	g := ir.NewGraph("variant", nil)
	n := g.Param(0, "n", stamp.Int(32))
	e0 := g.End()
	g.SetNext(g.Start(), e0)
	lb := g.LoopBegin(e0)
	i := g.Phi(lb, stamp.Int(32), g.ConstInt(32, 0))
	bh := g.BlackHole(i)
	g.SetNext(lb, bh)
	// invariant, but after a side effect
	late := g.FixedGuard(g.Compare(cond.EQ, n, g.ConstInt(32, 3)), deopt.UnreachedCode, deopt.None, true)
	g.SetNext(bh, late)
	ifn, body, exit := g.If(g.Compare(cond.LT, i, n))
	g.SetNext(late, ifn)
	variant := g.FixedGuard(g.Compare(cond.EQ, i, g.ConstInt(32, 7)), deopt.UnreachedCode, deopt.None, true)
	g.SetNext(body, variant)
	g.SetNext(variant, g.LoopEnd(lb))
	g.AppendInput(i, g.Binary(ir.OpAdd, i, g.ConstInt(32, 1)))
	lx := g.LoopExit(lb)
	g.SetNext(exit, lx)
	g.SetNext(lx, g.Return(i))

	assert.Zero(t, HoistInvariantGuards(g))
}

// while (true) { while (j < n) { guard x != null; j++ } if (c < 0) break }
func TestGuardLeavesNestedLoops(t *testing.T) {
	_, cls, _ := box(t)
	g := ir.NewGraph("nested", nil)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
	n := g.Param(1, "n", stamp.Int(32))
	c := g.Param(2, "c", stamp.Int(32))

	e0 := g.End()
	g.SetNext(g.Start(), e0)
	outer := g.LoopBegin(e0)
	e1 := g.End()
	g.SetNext(outer, e1)
	inner := g.LoopBegin(e1)
	j := g.Phi(inner, stamp.Int(32), g.ConstInt(32, 0))
	gd := g.FixedGuard(g.IsNull(x), deopt.NullCheck, deopt.InvalidateReprofile, true)
	g.SetNext(inner, gd)
	iif, ibody, iexit := g.If(g.Compare(cond.LT, j, n))
	g.SetNext(gd, iif)
	g.SetNext(ibody, g.LoopEnd(inner))
	g.AppendInput(j, g.Binary(ir.OpAdd, j, g.ConstInt(32, 1)))
	ilx := g.LoopExit(inner)
	g.SetNext(iexit, ilx)
	oif, stay, leave := g.If(g.Compare(cond.LT, c, g.ConstInt(32, 0)))
	g.SetNext(ilx, oif)
	g.SetNext(stay, g.LoopEnd(outer))
	olx := g.LoopExit(outer)
	g.SetNext(leave, olx)
	g.SetNext(olx, g.Return(nil))

	assert.Equal(t, 2, HoistInvariantGuards(g))
	moved := g.Next(g.Start())
	require.Equal(t, ir.OpFixedGuard, moved.Op())
	assert.Same(t, e0, g.Next(moved))
	assert.Equal(t, 1, g.Count(ir.OpFixedGuard))
}

func TestFailingInvariantGuardDeoptsBeforeLoop(t *testing.T) {
	l := countedLoop(cond.LT, 0, param(stamp.Int(32)), 1)
	g := l.g
	gd := g.FixedGuard(g.ConstBool(false), deopt.UnreachedCode, deopt.InvalidateRecompile, false)
	g.InsertAfter(l.lb, gd)

	ctx := phase.NewContext(context.Background(), options.Default())
	changed, err := phase.Run(GuardMotion{}, g, ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = canon.Run(g, options.Default())
	require.NoError(t, err)

	d := g.Next(g.Start())
	require.Equal(t, ir.OpDeoptimize, d.Op())
	assert.Equal(t, deopt.UnreachedCode, d.Reason)
	assert.Zero(t, g.Count(ir.OpLoopBegin))
}
