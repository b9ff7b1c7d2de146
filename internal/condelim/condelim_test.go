package condelim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

func box(t *testing.T) (*types.TypeRegistry, *types.Type, *types.Field) {
	t.Helper()
	reg := types.NewTypeRegistry()
	cls, err := reg.Declare("Box", nil, nil, false, false)
	require.NoError(t, err)
	f, err := reg.AddField(cls, "v", types.PrimI32, nil, false)
	require.NoError(t, err)
	return reg, cls, f
}

func nullCheck(g *ir.Graph, x *ir.Node) *ir.Node {
	return g.FixedGuard(g.IsNull(x), deopt.NullCheck, deopt.InvalidateReprofile, true)
}

func constant(t *testing.T, n *ir.Node) int64 {
	t.Helper()
	v, ok := n.IntConstant()
	require.True(t, ok, "%s is not a constant", n)
	return v
}

func TestNestedNullChecksCollapse(t *testing.T) {
	reg, cls, f := box(t)
	g := ir.NewGraph("nested", reg)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
	prev := g.Start()
	for i := range 3 {
		a := g.Param(i+1, fmt.Sprintf("a%d", i), stamp.Int(32))
		gd := nullCheck(g, x)
		g.SetNext(prev, gd)
		ld := g.LoadField(g.Pi(x, gd, stamp.ObjectOf(cls, false, true)), f)
		g.SetNext(gd, ld)
		ifn, tb, fb := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 0)))
		g.SetNext(ld, ifn)
		g.SetNext(fb, g.Return(ld))
		prev = tb
	}
	g.SetNext(prev, g.Return(g.ConstInt(32, 0)))
	require.Equal(t, 3, g.Count(ir.OpFixedGuard))

	n, err := RunIterative(g, options.Default())
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Equal(t, 1, g.Count(ir.OpFixedGuard))
	assert.Equal(t, 1, g.Count(ir.OpPi))
	assert.Zero(t, Run(g, options.Default()))
}

func TestBoundsChecksGroupToLargestIndex(t *testing.T) {
	reg := types.NewTypeRegistry()
	arrT := reg.ArrayOf(types.PrimRef, reg.Object())
	g := ir.NewGraph("bounds", reg)
	args := g.Param(0, "args", stamp.ObjectOf(arrT, false, false))
	prev := g.Start()
	for _, k := range []int64{5, 7, 6} {
		ng := nullCheck(g, args)
		g.SetNext(prev, ng)
		arr := g.Pi(args, ng, stamp.ObjectOf(arrT, false, true))
		idx := g.ConstInt(32, k)
		bg := g.FixedGuard(g.Compare(cond.BT, idx, g.ArrayLength(arr)),
			deopt.BoundsCheck, deopt.InvalidateReprofile, false)
		g.SetNext(ng, bg)
		ld := g.LoadIndexed(arr, idx, arrT)
		ld.Checked = true
		g.SetNext(bg, ld)
		ifn, tb, fb := g.If(g.IsNull(ld))
		g.SetNext(ld, ifn)
		g.SetNext(tb, g.Return(g.ConstInt(32, 0)))
		prev = fb
	}
	g.SetNext(prev, g.Return(g.ConstInt(32, 1)))

	_, err := RunIterative(g, options.Default())
	require.NoError(t, err)

	var bounds []*ir.Node
	for _, n := range g.NodesOf(ir.OpFixedGuard) {
		if n.Reason == deopt.BoundsCheck {
			bounds = append(bounds, n)
		}
	}
	require.Len(t, bounds, 1)
	c := g.Input(bounds[0], 0)
	assert.Equal(t, cond.BT, c.Cond)
	assert.Equal(t, int64(7), constant(t, g.Input(c, 0)))
	assert.Equal(t, 2, g.Count(ir.OpFixedGuard), "one null check and one bounds check")
}

func TestDominatingConditionDecidesBranch(t *testing.T) {
	g := ir.NewGraph("dominated", nil)
	a := g.Param(0, "a", stamp.Int(32))
	outer, ot, of := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 10)))
	g.SetNext(g.Start(), outer)

	inner, it, ie := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 20)))
	g.SetNext(ot, inner)
	g.SetNext(it, g.Return(g.ConstInt(32, 1)))
	g.SetNext(ie, g.Return(g.ConstInt(32, 2)))

	other, xt, xf := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 5)))
	g.SetNext(of, other)
	g.SetNext(xt, g.Return(g.ConstInt(32, 3)))
	g.SetNext(xf, g.Return(g.ConstInt(32, 4)))

	assert.Equal(t, 2, Run(g, options.Default()))
	assert.Equal(t, int64(1), constant(t, g.Input(inner, 0)))
	assert.Equal(t, int64(0), constant(t, g.Input(other, 0)))
}

func TestImpliedByCompareOfSameOperands(t *testing.T) {
	g := ir.NewGraph("implied", nil)
	a := g.Param(0, "a", stamp.Int(64))
	b := g.Param(1, "b", stamp.Int(64))
	outer, ot, of := g.If(g.Compare(cond.LT, a, b))
	g.SetNext(g.Start(), outer)
	g.SetNext(of, g.Return(g.ConstInt(32, 0)))

	mirrored, mt, mf := g.If(g.Compare(cond.LT, b, a))
	g.SetNext(ot, mirrored)
	g.SetNext(mt, g.Return(g.ConstInt(32, 1)))

	equal, et, ef := g.If(g.Compare(cond.EQ, a, b))
	g.SetNext(mf, equal)
	g.SetNext(et, g.Return(g.ConstInt(32, 2)))
	g.SetNext(ef, g.Return(g.ConstInt(32, 3)))

	Run(g, options.Default())
	assert.Equal(t, int64(0), constant(t, g.Input(mirrored, 0)))
	assert.Equal(t, int64(0), constant(t, g.Input(equal, 0)))
}

func TestFactsSurvivingEveryPathReachTheMerge(t *testing.T) {
	opts := options.Default()
	opts.MoveGuardsUpwards = false

	_, cls, _ := box(t)
	g := ir.NewGraph("merge", nil)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
	c := g.Param(1, "c", stamp.Int(32))
	ifn, tb, fb := g.If(g.Compare(cond.LT, c, g.ConstInt(32, 0)))
	g.SetNext(g.Start(), ifn)
	var ends []*ir.Node
	for _, b := range []*ir.Node{tb, fb} {
		gd := nullCheck(g, x)
		g.SetNext(b, gd)
		end := g.End()
		g.SetNext(gd, end)
		ends = append(ends, end)
	}
	m := g.Merge(ends...)
	last := nullCheck(g, x)
	g.SetNext(m, last)
	g.SetNext(last, g.Return(g.ConstInt(32, 0)))

	assert.Equal(t, 1, Run(g, opts))
	assert.Equal(t, 2, g.Count(ir.OpFixedGuard))
	assert.Nil(t, g.Node(last.ID()))
}

func TestPhiStampRefinedFromEachEnd(t *testing.T) {
	g := ir.NewGraph("phi", nil)
	a := g.Param(0, "a", stamp.Int(32))
	ifn, tb, fb := g.If(g.Compare(cond.GT, a, g.ConstInt(32, 0)))
	g.SetNext(g.Start(), ifn)
	te, fe := g.End(), g.End()
	g.SetNext(tb, te)
	g.SetNext(fb, fe)
	m := g.Merge(te, fe)
	phi := g.Phi(m, stamp.Int(32), a, g.ConstInt(32, 1))

	check, ct, cf := g.If(g.Compare(cond.LT, phi, g.ConstInt(32, 1)))
	g.SetNext(m, check)
	g.SetNext(ct, g.Return(g.ConstInt(32, 0)))
	g.SetNext(cf, g.Return(phi))

	assert.Equal(t, 1, Run(g, options.Default()))
	assert.Equal(t, int64(0), constant(t, g.Input(check, 0)))
}

func TestExtensionInversion(t *testing.T) {
	t.Run("sign", func(t *testing.T) {
		g := ir.NewGraph("sext", nil)
		x := g.Param(0, "x", stamp.Int(32))
		w := g.Convert(ir.OpSignExtend, x, 64)
		outer, ot, of := g.If(g.Compare(cond.LT, w, g.ConstInt(64, 0)))
		g.SetNext(g.Start(), outer)
		g.SetNext(of, g.Return(g.ConstInt(32, 0)))
		inner, it, ie := g.If(g.Compare(cond.LT, x, g.ConstInt(32, 0)))
		g.SetNext(ot, inner)
		g.SetNext(it, g.Return(g.ConstInt(32, 1)))
		g.SetNext(ie, g.Return(g.ConstInt(32, 2)))

		Run(g, options.Default())
		assert.Equal(t, int64(1), constant(t, g.Input(inner, 0)))
	})

	t.Run("zero", func(t *testing.T) {
		g := ir.NewGraph("zext", nil)
		x := g.Param(0, "x", stamp.Int(32))
		z := g.Convert(ir.OpZeroExtend, x, 64)
		// z > 0x7fffffff means the sign bit of x is set
		outer, ot, of := g.If(g.Compare(cond.LT, g.ConstInt(64, 0x7fffffff), z))
		g.SetNext(g.Start(), outer)
		negative, nt, nf := g.If(g.Compare(cond.LT, x, g.ConstInt(32, 0)))
		g.SetNext(ot, negative)
		g.SetNext(nt, g.Return(g.ConstInt(32, 1)))
		g.SetNext(nf, g.Return(g.ConstInt(32, 2)))
		positive, pt, pf := g.If(g.Compare(cond.LT, x, g.ConstInt(32, 0)))
		g.SetNext(of, positive)
		g.SetNext(pt, g.Return(g.ConstInt(32, 3)))
		g.SetNext(pf, g.Return(g.ConstInt(32, 4)))

		Run(g, options.Default())
		assert.Equal(t, int64(1), constant(t, g.Input(negative, 0)))
		assert.Equal(t, int64(0), constant(t, g.Input(positive, 0)))
	})
}

func TestRepeatedFieldLoadsAreReused(t *testing.T) {
	reg, cls, f := box(t)
	g := ir.NewGraph("loads", reg)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, true))
	l1 := g.LoadField(x, f)
	l2 := g.LoadField(x, f)
	st := g.StoreField(x, f, g.ConstInt(32, 3))
	l3 := g.LoadField(x, f)
	ret := g.Return(g.Binary(ir.OpAdd, g.Binary(ir.OpAdd, l1, l2), l3))
	g.SetNext(g.Start(), l1)
	g.SetNext(l1, l2)
	g.SetNext(l2, st)
	g.SetNext(st, l3)
	g.SetNext(l3, ret)

	assert.Equal(t, 1, Run(g, options.Default()))
	assert.Equal(t, 2, g.Count(ir.OpLoadField), "the store kills the first load")
	assert.Nil(t, g.Node(l2.ID()))
}

func TestFieldLoadsThroughPi(t *testing.T) {
	build := func() *ir.Graph {
		reg, cls, f := box(t)
		g := ir.NewGraph("pi-loads", reg)
		x := g.Param(0, "x", stamp.ObjectOf(cls, false, true))
		p := g.Pi(x, g.Start(), stamp.ObjectOf(cls, true, true))
		l1 := g.LoadField(x, f)
		l2 := g.LoadField(p, f)
		g.SetNext(g.Start(), l1)
		g.SetNext(l1, l2)
		g.SetNext(l2, g.Return(g.Binary(ir.OpAdd, l1, l2)))
		return g
	}

	precise := options.Default()
	precise.FieldAccessSkipPreciseTypes = false
	g := build()
	Run(g, precise)
	assert.Equal(t, 2, g.Count(ir.OpLoadField))

	skip := options.Default()
	skip.FieldAccessSkipPreciseTypes = true
	g = build()
	Run(g, skip)
	assert.Equal(t, 1, g.Count(ir.OpLoadField))
}

func TestSharedGuardsMoveAboveIf(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		reg, cls, f := box(t)
		g := ir.NewGraph("hoist", reg)
		x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
		c := g.Param(1, "c", stamp.Int(32))
		ifn, tb, fb := g.If(g.Compare(cond.LT, c, g.ConstInt(32, 0)))
		g.SetNext(g.Start(), ifn)
		for _, b := range []*ir.Node{tb, fb} {
			gd := nullCheck(g, x)
			g.SetNext(b, gd)
			ld := g.LoadField(g.Pi(x, gd, stamp.ObjectOf(cls, false, true)), f)
			g.SetNext(gd, ld)
			g.SetNext(ld, g.Return(ld))
		}
		require.Equal(t, 2, g.Count(ir.OpPi))

		assert.Equal(t, 1, HoistSharedGuards(g))
		assert.Equal(t, 1, g.Count(ir.OpFixedGuard))
		assert.Equal(t, 1, g.Count(ir.OpPi))
		gd := g.Next(g.Start())
		require.Equal(t, ir.OpFixedGuard, gd.Op())
		assert.Same(t, ifn, g.Next(gd))
	})

	t.Run("floating", func(t *testing.T) {
		_, cls, _ := box(t)
		g := ir.NewGraph("hoist-floating", nil)
		x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
		c := g.Param(1, "c", stamp.Int(32))
		ifn, tb, fb := g.If(g.Compare(cond.LT, c, g.ConstInt(32, 0)))
		g.SetNext(g.Start(), ifn)
		tg := g.Guard(g.IsNull(x), tb, deopt.NullCheck, deopt.InvalidateReprofile, true)
		fg := g.Guard(g.IsNull(x), fb, deopt.NullCheck, deopt.InvalidateReprofile, true)
		g.SetNext(tb, g.Return(g.Pi(x, tg, stamp.ObjectOf(cls, false, true))))
		g.SetNext(fb, g.Return(g.Pi(x, fg, stamp.ObjectOf(cls, false, true))))

		assert.Equal(t, 1, HoistSharedGuards(g))
		guards := g.NodesOf(ir.OpGuard)
		require.Len(t, guards, 1)
		assert.Same(t, g.Start(), g.Input(guards[0], 1))
	})

	t.Run("fixed input before the if", func(t *testing.T) {
		reg, cls, f := box(t)
		g := ir.NewGraph("stay", reg)
		x := g.Param(0, "x", stamp.ObjectOf(cls, true, true))
		ld := g.LoadField(x, f)
		g.SetNext(g.Start(), ld)
		ifn, tb, fb := g.If(g.Compare(cond.LT, ld, g.ConstInt(32, 0)))
		g.SetNext(ld, ifn)
		for _, b := range []*ir.Node{tb, fb} {
			gd := g.FixedGuard(g.Compare(cond.EQ, ld, g.ConstInt(32, 7)),
				deopt.UnreachedCode, deopt.InvalidateReprofile, true)
			g.SetNext(b, gd)
			g.SetNext(gd, g.Return(ld))
		}
		// the load the check reads is above the If
		assert.Equal(t, 1, HoistSharedGuards(g))
		assert.Same(t, ld, g.Pred(g.Pred(ifn)))
	})
}

func TestGuardThatMustFailBecomesDeopt(t *testing.T) {
	g := ir.NewGraph("fails", nil)
	a := g.Param(0, "a", stamp.Int(32))
	neg := g.Compare(cond.LT, a, g.ConstInt(32, 0))
	ifn, tb, fb := g.If(neg)
	g.SetNext(g.Start(), ifn)
	gd := g.FixedGuard(neg, deopt.ArithmeticException, deopt.InvalidateRecompile, true)
	g.SetNext(tb, gd)
	g.SetNext(gd, g.Return(a))
	g.SetNext(fb, g.Return(g.ConstInt(32, 0)))

	_, err := RunIterative(g, options.Default())
	require.NoError(t, err)
	assert.Zero(t, g.Count(ir.OpFixedGuard))
	deopts := g.NodesOf(ir.OpDeoptimize)
	require.Len(t, deopts, 1)
	assert.Equal(t, deopt.ArithmeticException, deopts[0].Reason)
	assert.Equal(t, deopt.InvalidateRecompile, deopts[0].Action)
}

func TestFloatingGuardProvenByEarlierAnchor(t *testing.T) {
	reg, cls, f := box(t)
	g := ir.NewGraph("floating", reg)
	x := g.Param(0, "x", stamp.ObjectOf(cls, false, false))
	c := g.Param(1, "c", stamp.Int(32))
	outer := g.Guard(g.IsNull(x), g.Start(), deopt.NullCheck, deopt.InvalidateReprofile, true)
	ifn, tb, fb := g.If(g.Compare(cond.LT, c, g.ConstInt(32, 0)))
	g.SetNext(g.Start(), ifn)
	inner := g.Guard(g.IsNull(x), tb, deopt.NullCheck, deopt.InvalidateReprofile, true)
	ld := g.LoadField(g.Pi(x, inner, stamp.ObjectOf(cls, false, true)), f)
	g.SetNext(tb, ld)
	g.SetNext(ld, g.Return(ld))
	g.SetNext(fb, g.Return(g.Pi(x, outer, stamp.ObjectOf(cls, false, true))))

	opts := options.Default()
	opts.MoveGuardsUpwards = false
	assert.Equal(t, 1, Run(g, opts))
	assert.Nil(t, g.Node(inner.ID()))
	for _, pi := range g.NodesOf(ir.OpPi) {
		assert.Same(t, outer, g.Input(pi, 1))
	}
	assert.Zero(t, Run(g, opts))
}

func TestIterationCapIsRetryable(t *testing.T) {
	g := ir.NewGraph("capped", nil)
	a := g.Param(0, "a", stamp.Int(32))
	outer, ot, of := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 10)))
	g.SetNext(g.Start(), outer)
	g.SetNext(of, g.Return(g.ConstInt(32, 0)))
	inner, it, ie := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 20)))
	g.SetNext(ot, inner)
	g.SetNext(it, g.Return(g.ConstInt(32, 1)))
	g.SetNext(ie, g.Return(g.ConstInt(32, 2)))

	opts := options.Default()
	opts.ConditionalEliminationMaxIterations = 0
	_, err := RunIterative(g, opts)
	require.Error(t, err)
	assert.True(t, jerrors.IsRetryable(err))
}

func TestPhasesReportChanges(t *testing.T) {
	build := func() *ir.Graph {
		g := ir.NewGraph("phase", nil)
		a := g.Param(0, "a", stamp.Int(32))
		outer, ot, of := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 0)))
		g.SetNext(g.Start(), outer)
		g.SetNext(of, g.Return(g.ConstInt(32, 0)))
		inner, it, ie := g.If(g.Compare(cond.LT, a, g.ConstInt(32, 0)))
		g.SetNext(ot, inner)
		g.SetNext(it, g.Return(g.ConstInt(32, 1)))
		g.SetNext(ie, g.Return(g.ConstInt(32, 2)))
		return g
	}
	ctx := phase.NewContext(context.Background(), options.Default())

	for _, p := range []phase.Phase{New(), NewIterative()} {
		t.Run(p.Name(), func(t *testing.T) {
			g := build()
			changed, err := phase.Run(p, g, ctx)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = phase.Run(p, g, ctx)
			require.NoError(t, err)
			assert.False(t, changed)
		})
	}
}
