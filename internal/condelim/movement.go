package condelim

import (
	"jitopt/internal/cfg"
	"jitopt/internal/ir"
)

// HoistSharedGuards moves a guard that both successors of an If check first to just
// above the If. Every path through the If evaluates the guard before anything else
// happens, so checking it once earlier deoptimizes in exactly the same cases. Returns
// the number of guards moved.
func HoistSharedGuards(g *ir.Graph) int {
	moved := 0
	c := cfg.Compute(g)
	for _, ifn := range g.NodesOf(ir.OpIf) {
		tb, fb := g.Succ(ifn, 0), g.Succ(ifn, 1)
		if tb == nil || fb == nil || c.BlockOf(ifn) == nil {
			continue
		}
		n := hoistFixed(g, c, ifn, tb, fb) + hoistFloating(g, c, ifn, tb, fb)
		if n > 0 {
			moved += n
			c = cfg.Compute(g)
		}
	}
	return moved
}

func sameCheck(g *ir.Graph, a, b *ir.Node) bool {
	return g.Input(a, 0) == g.Input(b, 0) && a.Negated == b.Negated &&
		a.Reason == b.Reason && a.Action == b.Action
}

func hoistFixed(g *ir.Graph, c *cfg.CFG, ifn, tb, fb *ir.Node) int {
	tg, fg := g.Next(tb), g.Next(fb)
	if tg == nil || fg == nil || tg.Op() != ir.OpFixedGuard || fg.Op() != ir.OpFixedGuard {
		return 0
	}
	if !sameCheck(g, tg, fg) || !c.AvailableAt(g.Input(tg, 0), ifn) {
		return 0
	}
	log.Debugf("%s: moving %s and %s above %s", g.Name, tg, fg, ifn)
	ng := g.FixedGuard(g.Input(tg, 0), tg.Reason, tg.Action, tg.Negated)
	g.InsertBefore(ifn, ng)
	g.RemoveFixed(tg, ng)
	g.RemoveFixed(fg, ng)
	return 1
}

func hoistFloating(g *ir.Graph, c *cfg.CFG, ifn, tb, fb *ir.Node) int {
	anchor := g.AnchorOf(g.Pred(ifn))
	if anchor == nil {
		return 0
	}
	moved := 0
	for _, tg := range g.UsageNodes(tb) {
		if tg.Op() != ir.OpGuard || g.Input(tg, 1) != tb || g.Node(tg.ID()) != tg {
			continue
		}
		var fg *ir.Node
		for _, u := range g.UsageNodes(fb) {
			if u.Op() == ir.OpGuard && g.Input(u, 1) == fb && sameCheck(g, tg, u) {
				fg = u
				break
			}
		}
		// the guard is checked as soon as control reaches the anchor
		if fg == nil || !c.AvailableAt(g.Input(tg, 0), g.Next(anchor)) {
			continue
		}
		log.Debugf("%s: moving %s and %s to %s", g.Name, tg, fg, anchor)
		ng := g.Guard(g.Input(tg, 0), anchor, tg.Reason, tg.Action, tg.Negated)
		g.ReplaceAtUsages(tg, ng)
		g.ReplaceAtUsages(fg, ng)
		g.Delete(tg)
		g.Delete(fg)
		moved++
	}
	return moved
}
