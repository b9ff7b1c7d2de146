package loop

import (
	"jitopt/internal/cfg"
	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

// InsertLimitChecks guards every counted loop whose induction variable may wrap. The
// guard deoptimizes before the loop when the limit is too close to the end of the
// integer range; inside the loop the limit is then known to be in range. Returns the
// number of guards inserted.
func InsertLimitChecks(g *ir.Graph) int {
	inserted := 0
	for _, info := range Counted(cfg.Compute(g)) {
		if insertLimitCheck(g, info) {
			inserted++
		}
	}
	return inserted
}

func insertLimitCheck(g *ir.Graph, info *CountedLoopInfo) bool {
	if !info.MayOverflow() {
		return false
	}
	k, _ := info.overflowLimit()
	bits := info.Bits()
	entry := g.Input(info.Loop.Begin(), 0)

	// up loops need limit < k, down loops need !(limit < k)
	test := g.Compare(cond.LT, info.Limit, g.ConstInt(bits, k))
	gd := g.FixedGuard(test, deopt.LoopLimitCheck, deopt.InvalidateRecompile, !info.Up())
	g.InsertBefore(entry, gd)

	in := stamp.Range(bits, k, stamp.MaxValue(bits))
	if info.Up() {
		in = stamp.Range(bits, stamp.MinValue(bits), k-1)
	}
	pi := g.Pi(info.Limit, gd, in)
	g.ReplaceAtMatchingUsages(info.Limit, pi, func(u *ir.Node) bool { return u == info.Test })
	log.Debugf("%s: limit check %s before %s", g.Name, gd, info.Loop.Begin())
	return true
}

// HoistInvariantGuards moves fixed guards out of loops. A guard qualifies when it sits
// in the loop header before any side effect and its condition only depends on values
// computed before the loop: every entry into the loop checks it with the same outcome,
// so checking it once in front of the loop deoptimizes in exactly the same executions.
// A guard moved out of an inner loop can then move out of the enclosing loop as well.
// Returns the number of moves.
func HoistInvariantGuards(g *ir.Graph) int {
	moved := 0
	for {
		c := cfg.Compute(g)
		gd, l := findInvariantGuard(c)
		if gd == nil {
			return moved
		}
		entry := g.Input(l.Begin(), 0)
		log.Debugf("%s: moving %s out of %s", g.Name, gd, l.Begin())
		ng := g.FixedGuard(g.Input(gd, 0), gd.Reason, gd.Action, gd.Negated)
		g.InsertBefore(entry, ng)
		g.RemoveFixed(gd, ng)
		moved++
	}
}

// findInvariantGuard looks at inner loops first
func findInvariantGuard(c *cfg.CFG) (*ir.Node, *cfg.Loop) {
	g := c.Graph
	for i := len(c.Loops) - 1; i >= 0; i-- {
		l := c.Loops[i]
		lb := l.Begin()
		if lb.InputCount() != 1 {
			continue
		}
		entry := g.Input(lb, 0)
		for _, n := range c.Nodes(l.Header)[1:] {
			if ir.HasSideEffect(n) || n.Op() == ir.OpControlFlowAnchor {
				break
			}
			if n.Op() == ir.OpFixedGuard && c.AvailableAt(g.Input(n, 0), entry) {
				return n, l
			}
		}
	}
	return nil, nil
}

// EliminateSafepoints clears the safepoint flag of counted loops over 32-bit induction
// variables that cannot wrap: their trip count is bounded, so they need no poll.
// Returns the number of loops changed.
func EliminateSafepoints(g *ir.Graph) int {
	changed := 0
	for _, info := range Counted(cfg.Compute(g)) {
		lb := info.Loop.Begin()
		if !lb.Safepoint || info.Bits() != 32 || info.MayOverflow() {
			continue
		}
		lb.Safepoint = false
		for _, le := range g.LoopEnds(lb) {
			le.Safepoint = false
		}
		changed++
	}
	return changed
}
