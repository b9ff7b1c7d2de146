package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/canon"
	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/stamp"
)

// abs builds
//
//	if (x < 0) { r = -x } else { r = x }; return r
func abs() (*ir.Graph, *ir.Node) {
	g := ir.NewGraph("abs", nil)
	x := g.Param(0, "x", stamp.Int(32))
	ifn, tb, fb := g.If(g.Compare(cond.LT, x, g.ConstInt(32, 0)))
	g.SetNext(g.Start(), ifn)
	e1, e2 := g.End(), g.End()
	g.SetNext(tb, e1)
	g.SetNext(fb, e2)
	m := g.Merge(e1, e2)
	phi := g.Phi(m, stamp.Int(32), g.Unary(ir.OpNeg, x), x)
	g.SetNext(m, g.Return(phi))
	return g, m
}

func codes(errs []*jerrors.VerificationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestWellFormedGraph(t *testing.T) {
	g, _ := abs()
	require.NoError(t, Graph(g))
	require.NoError(t, Strict(g))

	_, err := canon.Run(g, options.Default())
	require.NoError(t, err)
	assert.NoError(t, Strict(g))
}

func TestPhiArity(t *testing.T) {
	g, m := abs()
	ret := g.Next(m)
	short := g.Phi(m, stamp.Int(32), g.ConstInt(32, 1))
	g.SetInput(ret, 0, short)

	err := Graph(g)
	require.Error(t, err)
	assert.Equal(t, jerrors.ErrorPhiArity, jerrors.CodeOf(err))
}

func TestBrokenControlFlow(t *testing.T) {
	t.Run("missing successor", func(t *testing.T) {
		g := ir.NewGraph("open", nil)
		x := g.Param(0, "x", stamp.Int(32))
		g.SetNext(g.Start(), g.BlackHole(x))
		assert.Equal(t, jerrors.ErrorControlFlow, jerrors.CodeOf(Graph(g)))
	})

	t.Run("unreachable", func(t *testing.T) {
		g, _ := abs()
		x := g.Params()[0]
		orphan := g.BlackHole(x)
		g.SetNext(orphan, g.Return(nil))
		errs := Check(g, false)
		require.NotEmpty(t, errs)
		assert.Contains(t, codes(errs), jerrors.ErrorControlFlow)
		assert.Equal(t, orphan.String(), errs[0].Node)
	})
}

func TestCycleOutsidePhis(t *testing.T) {
	g := ir.NewGraph("cycle", nil)
	x := g.Param(0, "x", stamp.Int(32))
	add := g.Binary(ir.OpAdd, x, g.ConstInt(32, 1))
	g.SetNext(g.Start(), g.Return(add))
	g.SetInput(add, 1, add)

	errs := Check(g, false)
	assert.Contains(t, codes(errs), jerrors.ErrorCycle)
}

func TestFloatingGarbage(t *testing.T) {
	g, _ := abs()
	x := g.Params()[0]
	sq := g.Binary(ir.OpMul, x, x)
	require.Zero(t, sq.UsageCount())

	assert.NoError(t, Graph(g), "tolerated between phases")
	err := Strict(g)
	require.Error(t, err)
	assert.Equal(t, jerrors.ErrorUnreachableFloating, jerrors.CodeOf(err))
}

func TestValueOfDeadControl(t *testing.T) {
	g, m := abs()
	x := g.Params()[0]
	gd := g.FixedGuard(g.Compare(cond.EQ, x, g.ConstInt(32, 7)), deopt.UnreachedCode, deopt.None, true)
	pi := g.Pi(x, gd, stamp.Int(32))
	g.SetInput(g.Next(m), 0, pi)

	got := codes(Check(g, false))
	assert.Contains(t, got, jerrors.ErrorUnreachableFloating)
	assert.Contains(t, got, jerrors.ErrorControlFlow)
}
