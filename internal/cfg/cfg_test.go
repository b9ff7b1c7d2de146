package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/cond"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

func diamond() (*ir.Graph, *ir.Node, *ir.Node, *ir.Node, *ir.Node) {
	g := ir.NewGraph("diamond", nil)
	x := g.Param(0, "x", stamp.Int(32))
	ifn, tb, fb := g.If(g.Compare(cond.LT, x, g.ConstInt(32, 0)))
	g.SetNext(g.Start(), ifn)
	e1, e2 := g.End(), g.End()
	g.SetNext(tb, e1)
	g.SetNext(fb, e2)
	m := g.Merge(e1, e2)
	g.SetNext(m, g.Return(x))
	return g, ifn, tb, fb, m
}

func TestDiamond(t *testing.T) {
	g, ifn, tb, fb, m := diamond()
	c := Compute(g)
	require.Len(t, c.Blocks, 4)

	entry := c.Entry()
	assert.Same(t, g.Start(), entry.Begin)
	assert.Same(t, ifn, entry.Last)
	assert.Same(t, entry, c.BlockOf(ifn))

	bt, bf, bm := c.BlockOf(tb), c.BlockOf(fb), c.BlockOf(m)
	assert.Equal(t, []*Block{bt, bf}, entry.Succs)
	assert.Equal(t, []*Block{bt, bf}, bm.Preds)
	assert.Same(t, entry, bm.Dom, "neither branch dominates the merge")
	assert.Same(t, entry, bt.Dom)
	assert.True(t, Dominates(entry, bm))
	assert.False(t, Dominates(bt, bm))
	assert.Same(t, entry, CommonDominator(bt, bf))
	assert.Len(t, entry.Dominated, 3)
	assert.Equal(t, 1, bm.DomDepth())
	assert.Equal(t, 3, bm.ID, "the merge comes last in reverse postorder")
	assert.Empty(t, c.Loops)
}

func TestDominatesNodeWithinBlock(t *testing.T) {
	g := ir.NewGraph("chain", nil)
	x := g.Param(0, "x", stamp.Int(32))
	s1, s2 := g.BlackHole(x), g.BlackHole(g.ConstInt(32, 1))
	ret := g.Return(x)
	g.SetNext(g.Start(), s1)
	g.SetNext(s1, s2)
	g.SetNext(s2, ret)

	c := Compute(g)
	require.Len(t, c.Blocks, 1)
	assert.Equal(t, []*ir.Node{g.Start(), s1, s2, ret}, c.Nodes(c.Entry()))
	assert.True(t, c.DominatesNode(s1, s2))
	assert.False(t, c.DominatesNode(s2, s1))
}

// nestedLoops builds
//
//	while (i < n) { while (j < n) { j++ } i++ }
func nestedLoops() (*ir.Graph, *ir.Node, *ir.Node) {
	g := ir.NewGraph("nested", nil)
	n := g.Param(0, "n", stamp.Int(32))
	zero, one := g.ConstInt(32, 0), g.ConstInt(32, 1)

	e0 := g.End()
	g.SetNext(g.Start(), e0)
	outer := g.LoopBegin(e0)
	i := g.Phi(outer, stamp.Int(32), zero)
	oif, obody, oexit := g.If(g.Compare(cond.LT, i, n))
	g.SetNext(outer, oif)
	lx := g.LoopExit(outer)
	g.SetNext(oexit, lx)
	g.SetNext(lx, g.Return(i))

	e1 := g.End()
	g.SetNext(obody, e1)
	inner := g.LoopBegin(e1)
	j := g.Phi(inner, stamp.Int(32), zero)
	iif, ibody, iexit := g.If(g.Compare(cond.LT, j, n))
	g.SetNext(inner, iif)
	ile := g.LoopEnd(inner)
	g.SetNext(ibody, ile)
	g.AppendInput(j, g.Binary(ir.OpAdd, j, one))
	ilx := g.LoopExit(inner)
	g.SetNext(iexit, ilx)
	ole := g.LoopEnd(outer)
	g.SetNext(ilx, ole)
	g.AppendInput(i, g.Binary(ir.OpAdd, i, one))
	return g, outer, inner
}

func TestNestedLoops(t *testing.T) {
	g, outer, inner := nestedLoops()
	c := Compute(g)
	require.Len(t, c.Loops, 2)

	lo, li := c.LoopOf(outer), c.LoopOf(inner)
	require.NotNil(t, lo)
	require.NotNil(t, li)
	assert.Same(t, lo, c.Loops[0])
	assert.Same(t, lo, li.Parent)
	assert.Equal(t, []*Loop{li}, lo.Children)
	assert.Equal(t, 1, lo.Depth)
	assert.Equal(t, 2, li.Depth)
	assert.True(t, lo.ContainsLoop(li))
	assert.False(t, li.ContainsLoop(lo))

	hb := c.BlockOf(inner)
	assert.Same(t, li, hb.Loop)
	assert.True(t, lo.Contains(hb))
	assert.Len(t, hb.Preds, 2, "forward entry and back edge")
	assert.Same(t, c.BlockOf(outer), c.BlockOf(outer).Loop.Header)
	assert.Len(t, c.ExitBlocks(lo), 1)
	assert.Len(t, c.ExitBlocks(li), 1)

	// every header dominates its loop
	for _, l := range c.Loops {
		for _, b := range l.Blocks {
			assert.True(t, Dominates(l.Header, b))
		}
	}
}

func TestUnreachableBlocksAreSkipped(t *testing.T) {
	g, ifn, _, fb, _ := diamond()
	// detach the false branch from the If without deleting it
	g.SetSucc(ifn, 1, nil)
	c := Compute(g)
	assert.Nil(t, c.BlockOf(fb))
	assert.Len(t, c.Blocks, 3)
}

func TestAvailableAt(t *testing.T) {
	g, outer, inner := nestedLoops()
	c := Compute(g)
	n := g.Params()[0]
	i := g.Phis(outer)[0]
	entry := g.Input(inner, 0)

	assert.True(t, c.AvailableAt(g.Binary(ir.OpAdd, n, g.ConstInt(32, 1)), entry))
	assert.True(t, c.AvailableAt(i, entry), "the outer phi is defined before the inner loop")
	assert.False(t, c.AvailableAt(g.Phis(inner)[0], entry))
	assert.False(t, c.AvailableAt(i, g.Input(outer, 0)), "not before its own loop")
}
