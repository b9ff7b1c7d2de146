package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/cond"
	"jitopt/internal/condelim"
	"jitopt/internal/deopt"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

func guards(g *ir.Graph, reason deopt.Reason) []*ir.Node {
	var out []*ir.Node
	for _, n := range g.NodesOf(ir.OpFixedGuard) {
		if n.Reason == reason {
			out = append(out, n)
		}
	}
	return out
}

func TestFieldAccessGetsNullCheck(t *testing.T) {
	reg := types.NewTypeRegistry()
	cls, err := reg.Declare("Point", nil, nil, false, false)
	require.NoError(t, err)
	f, err := reg.AddField(cls, "x", types.PrimI32, nil, false)
	require.NoError(t, err)

	g := ir.NewGraph("field", reg)
	p := g.Param(0, "p", stamp.ObjectOf(cls, false, false))
	q := g.Param(1, "q", stamp.ObjectOf(cls, false, true))
	lp := g.LoadField(p, f)
	sq := g.StoreField(q, f, lp)
	g.SetNext(g.Start(), lp)
	g.SetNext(lp, sq)
	g.SetNext(sq, g.Return(nil))

	assert.Equal(t, 1, Run(g))
	assert.True(t, lp.Checked)
	assert.True(t, sq.Checked)

	gd := g.Next(g.Start())
	require.Equal(t, ir.OpFixedGuard, gd.Op())
	assert.Equal(t, deopt.NullCheck, gd.Reason)
	assert.True(t, gd.Negated)
	assert.Same(t, lp, g.Next(gd))

	obj := g.Input(lp, 0)
	require.Equal(t, ir.OpPi, obj.Op())
	assert.Same(t, gd, g.Input(obj, 1))
	s, _ := obj.ObjectStamp()
	assert.True(t, s.NonNull)
	assert.Same(t, q, g.Input(sq, 0), "q is known to be non-null")

	assert.Zero(t, Run(g), "checked accesses are left alone")
}

func TestArrayAccessGetsNullAndBoundsCheck(t *testing.T) {
	reg := types.NewTypeRegistry()
	arrT := reg.ArrayOf(types.PrimI32, nil)
	g := ir.NewGraph("array", reg)
	a := g.Param(0, "a", stamp.ObjectOf(arrT, false, false))
	i := g.Param(1, "i", stamp.Int(32))
	ld := g.LoadIndexed(a, i, arrT)
	g.SetNext(g.Start(), ld)
	g.SetNext(ld, g.Return(ld))

	assert.Equal(t, 2, Run(g))
	nc, bc := g.Next(g.Start()), g.Pred(ld)
	assert.Equal(t, deopt.NullCheck, nc.Reason)
	assert.Equal(t, deopt.BoundsCheck, bc.Reason)
	assert.Same(t, bc, g.Next(nc))

	c := g.Input(bc, 0)
	require.Equal(t, ir.OpCompare, c.Op())
	assert.Equal(t, cond.BT, c.Cond)
	assert.Same(t, i, g.Input(c, 0))
	length := g.Input(c, 1)
	assert.Equal(t, ir.OpArrayLength, length.Op())
	assert.Same(t, g.Input(ld, 0), g.Input(length, 0), "length is read through the null check")
}

func TestAllocatedArrayNeedsNoNullCheck(t *testing.T) {
	reg := types.NewTypeRegistry()
	arrT := reg.ArrayOf(types.PrimI32, nil)
	g := ir.NewGraph("allocated", reg)
	n := g.Param(0, "n", stamp.Range(32, 1, 100))
	arr := g.NewArray(arrT, n)
	ld := g.LoadIndexed(arr, g.ConstInt(32, 0), arrT)
	g.SetNext(g.Start(), arr)
	g.SetNext(arr, ld)
	g.SetNext(ld, g.Return(ld))

	assert.Equal(t, 1, Run(g))
	assert.Empty(t, guards(g, deopt.NullCheck))
	assert.Len(t, guards(g, deopt.BoundsCheck), 1)
	assert.Same(t, arr, g.Input(ld, 0))
}

// args[5], args[7] and args[6] read under a5 != null && a7 != null && a6 != null
func TestBoundsChecksOfOneArrayCollapse(t *testing.T) {
	reg := types.NewTypeRegistry()
	arrT := reg.ArrayOf(types.PrimRef, reg.Object())
	g := ir.NewGraph("args", reg)
	args := g.Param(0, "args", stamp.ObjectOf(arrT, false, false))

	prev := g.Start()
	var sink *ir.Node
	for _, k := range []int64{5, 7, 6} {
		ld := g.LoadIndexed(args, g.ConstInt(32, k), arrT)
		g.SetNext(prev, ld)
		ifn, tb, fb := g.If(g.IsNull(ld))
		g.SetNext(ld, ifn)
		g.SetNext(tb, g.Return(g.ConstInt(32, 0)))
		prev = fb
		sink = ld
	}
	bh := g.BlackHole(sink)
	g.SetNext(prev, bh)
	g.SetNext(bh, g.Return(g.ConstInt(32, 1)))

	assert.Equal(t, 6, Run(g))
	require.Len(t, guards(g, deopt.BoundsCheck), 3)

	_, err := condelim.RunIterative(g, options.Default())
	require.NoError(t, err)

	bounds := guards(g, deopt.BoundsCheck)
	require.Len(t, bounds, 1)
	idx, ok := g.Input(g.Input(bounds[0], 0), 0).IntConstant()
	require.True(t, ok)
	assert.Equal(t, int64(7), idx, "the surviving check covers length >= 8")
	assert.Len(t, guards(g, deopt.NullCheck), 1)
}
