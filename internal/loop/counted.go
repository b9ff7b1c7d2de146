// Package loop analyzes and transforms the natural loops of a graph: counted loop
// detection, the trip-count overflow guard, hoisting of loop-invariant guards and the
// loop invariants that other phases must preserve.
package loop

import (
	"fmt"

	"github.com/tliron/commonlog"

	"jitopt/internal/cfg"
	"jitopt/internal/cond"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

var log = commonlog.GetLogger("jitopt.loop")

// CountedLoopInfo describes a loop that runs while an induction variable, stepped by a
// constant stride on its only back edge, compares to a loop-invariant limit.
type CountedLoopInfo struct {
	Loop *cfg.Loop
	IV   *ir.Node // phi of the loop begin
	Init *ir.Node // value on entry
	// Stride is added to IV on the back edge. It is positive for LT and LE loops and
	// negative for GT and GE loops.
	Stride int64
	Limit  *ir.Node
	// Condition keeps the loop running while "IV Condition Limit" holds
	Condition cond.Condition
	Exit      *ir.Node // the If that leaves the loop
	Test      *ir.Node // the Compare of Exit
}

func (c *CountedLoopInfo) String() string {
	return fmt.Sprintf("%s: %s from %s step %d while %s %s",
		c.Loop.Begin(), c.IV, c.Init, c.Stride, c.Condition.Name(), c.Limit)
}

// Bits returns the width of the induction variable
func (c *CountedLoopInfo) Bits() int { return c.IV.ValueBits() }

// Up reports whether the induction variable counts upwards
func (c *CountedLoopInfo) Up() bool { return c.Stride > 0 }

// ConstantTripCount returns the number of iterations when the initial value and the
// limit are constants and the induction variable cannot wrap.
func (c *CountedLoopInfo) ConstantTripCount() (int64, bool) {
	init, ok1 := c.Init.IntConstant()
	limit, ok2 := c.Limit.IntConstant()
	if !ok1 || !ok2 || c.MayOverflow() {
		return 0, false
	}
	// first and last values the loop body sees, counted in the direction of the stride
	first, last := init, limit
	switch c.Condition {
	case cond.LT:
		if limit == stamp.MinValue(c.Bits()) {
			return 0, true
		}
		last = limit - 1
	case cond.GT:
		if limit == stamp.MaxValue(c.Bits()) {
			return 0, true
		}
		last = limit + 1
	}
	if c.Up() && first > last || !c.Up() && first < last {
		return 0, true
	}
	span, step := uint64(last)-uint64(first), uint64(c.Stride)
	if !c.Up() {
		span, step = uint64(first)-uint64(last), uint64(-c.Stride)
	}
	return int64(span/step + 1), true
}

// overflowLimit returns K such that the induction variable cannot wrap when
// "Limit < K" holds (up loops) or does not hold (down loops). ok is false when it can
// never wrap.
func (c *CountedLoopInfo) overflowLimit() (k int64, ok bool) {
	bits := c.Bits()
	lo, hi := stamp.MinValue(bits), stamp.MaxValue(bits)
	switch c.Condition {
	case cond.LT:
		// the last value is at most limit-1, then limit-1+stride must not wrap
		if c.Stride == 1 {
			return 0, false
		}
		return hi - c.Stride + 2, true
	case cond.LE:
		return hi - c.Stride + 1, true
	case cond.GT:
		if c.Stride == -1 {
			return 0, false
		}
		return lo - 1 - c.Stride, true
	case cond.GE:
		return lo - c.Stride, true
	}
	return 0, false
}

// MayOverflow reports whether the stamp of the limit allows the induction variable to
// wrap around before the loop exits
func (c *CountedLoopInfo) MayOverflow() bool {
	k, ok := c.overflowLimit()
	if !ok {
		return false
	}
	ls, isInt := c.Limit.IntStamp()
	if !isInt {
		return true
	}
	if c.Up() {
		return ls.Upper() >= k
	}
	return ls.Lower() < k
}

// DetectCounted returns the counted loop information of l, or nil when l is not a
// counted loop.
func DetectCounted(c *cfg.CFG, l *cfg.Loop) *CountedLoopInfo {
	g := c.Graph
	lb := l.Begin()
	if lb.InputCount() != 1 || len(g.LoopEnds(lb)) != 1 {
		return nil
	}
	exit := l.Header.Last
	if exit.Op() != ir.OpIf {
		return nil
	}
	tb := c.BlockOf(g.Succ(exit, 0))
	fb := c.BlockOf(g.Succ(exit, 1))
	if tb == nil || fb == nil || l.Contains(tb) == l.Contains(fb) {
		return nil
	}
	stay := l.Contains(tb)

	test := g.Input(exit, 0)
	if test.Op() == ir.OpLogicNegation {
		test = g.Input(test, 0)
		stay = !stay
	}
	if test.Op() != ir.OpCompare || test.Cond != cond.LT {
		return nil
	}
	x, y := g.Input(test, 0), g.Input(test, 1)

	var iv, limit *ir.Node
	var cc cond.Condition
	switch {
	case isPhiOf(g, x, lb):
		iv, limit = x, y
		cc = cond.LT
		if !stay {
			cc = cond.GE
		}
	case isPhiOf(g, y, lb):
		iv, limit = y, x
		cc = cond.GT
		if !stay {
			cc = cond.LE
		}
	default:
		return nil
	}
	if _, ok := iv.IntStamp(); !ok {
		return nil
	}

	// the back edge value must be iv + constant stride
	next := g.PhiValueAt(iv, 1)
	if next == nil || next.Op() != ir.OpAdd {
		return nil
	}
	var stride int64
	var ok bool
	switch {
	case g.Input(next, 0) == iv:
		stride, ok = g.Input(next, 1).IntConstant()
	case g.Input(next, 1) == iv:
		stride, ok = g.Input(next, 0).IntConstant()
	}
	if !ok || stride == 0 {
		return nil
	}
	up := cc == cond.LT || cc == cond.LE
	if up != (stride > 0) {
		return nil
	}
	if !c.AvailableAt(limit, g.Input(lb, 0)) {
		return nil
	}
	return &CountedLoopInfo{
		Loop:      l,
		IV:        iv,
		Init:      g.PhiValueAt(iv, 0),
		Stride:    stride,
		Limit:     limit,
		Condition: cc,
		Exit:      exit,
		Test:      test,
	}
}

func isPhiOf(g *ir.Graph, n, lb *ir.Node) bool {
	return n.Op() == ir.OpPhi && g.PhiMerge(n) == lb
}

// Counted returns the counted loops of the graph, outer loops first
func Counted(c *cfg.CFG) []*CountedLoopInfo {
	var out []*CountedLoopInfo
	for _, l := range c.Loops {
		if info := DetectCounted(c, l); info != nil {
			out = append(out, info)
		}
	}
	return out
}
