package canon

import (
	"jitopt/internal/deopt"
	"jitopt/internal/ir"
)

// holds evaluates a guard or branch condition that folded to a constant
func holds(c *ir.Node, negated bool) (result, known bool) {
	v, ok := c.IntConstant()
	if !ok {
		return false, false
	}
	return (v != 0) != negated, true
}

func (t *tool) simplifyIf(n *ir.Node) {
	g := t.g
	c := g.Input(n, 0)
	if taken, ok := holds(c, false); ok {
		keep := 0
		if !taken {
			keep = 1
		}
		t.changed(n, "folded branch")
		live := g.ReduceIf(n, keep)
		t.push(live)
		return
	}
	if c.Op() == ir.OpLogicNegation {
		t.changed(n, "swapped branch")
		g.SetInput(n, 0, g.Input(c, 0))
		g.SwapSuccs(n)
		g.KillIfDead(c)
		return
	}
	t.materializeDiamond(n)
}

// materializeDiamond removes an If whose branches are empty and meet again at the same
// merge. Phis of the merge become Conditionals; that is only done when each
// Conditional folds into something simpler or selects between constants.
func (t *tool) materializeDiamond(n *ir.Node) {
	g := t.g
	tb, fb := g.Succ(n, 0), g.Succ(n, 1)
	if tb == nil || fb == nil || tb.HasUsages() || fb.HasUsages() {
		return
	}
	te, fe := g.Next(tb), g.Next(fb)
	if te == nil || fe == nil || te.Op() != ir.OpEnd || fe.Op() != ir.OpEnd {
		return
	}
	m := g.MergeOf(te)
	if m == nil || m.Op() != ir.OpMerge || m != g.MergeOf(fe) || m.InputCount() != 2 {
		return
	}
	c := g.Input(n, 0)
	ti, fi := g.EndIndex(m, te), g.EndIndex(m, fe)
	phis := g.Phis(m)
	repls := make([]*ir.Node, len(phis))
	for i, phi := range phis {
		a, b := g.PhiValueAt(phi, ti), g.PhiValueAt(phi, fi)
		if a == b {
			repls[i] = a
			continue
		}
		sel := g.Conditional(c, a, b)
		if !a.IsConstant() || !b.IsConstant() {
			if r := t.canonicalConditional(sel); r == nil || r.Op() == ir.OpConditional {
				return
			}
		}
		repls[i] = sel
	}

	t.changed(n, "removed diamond")
	for i, phi := range phis {
		g.ReplaceAtUsages(phi, repls[i])
		t.push(repls[i])
		g.KillIfDead(phi)
	}
	p, next := g.Pred(n), g.Next(m)
	g.SetNext(m, nil)
	repl := t.anchorReplacement(m, next)
	g.ReplaceSucc(p, n, repl)
	g.KillCFG(n)
	t.push(repl)
	t.push(p)
}

// anchorReplacement returns what takes the place of a begin node that is going away:
// next itself, or a fresh Begin in front of next when guards or Pis are anchored at
// the old node.
func (t *tool) anchorReplacement(old, next *ir.Node) *ir.Node {
	g := t.g
	if !old.HasUsages() {
		return next
	}
	b := g.Begin()
	g.ReplaceAtUsages(old, b)
	if next != nil {
		g.SetNext(b, next)
	}
	return b
}

func (t *tool) simplifyFixedGuard(n *ir.Node) {
	g := t.g
	c := g.Input(n, 0)
	if ok, known := holds(c, n.Negated); known {
		if ok {
			t.changed(n, "removed guard")
			anchor := g.AnchorOf(g.Pred(n))
			g.RemoveFixed(n, anchor)
			t.push(anchor)
			return
		}
		t.changed(n, "guard always fails")
		p := g.Pred(n)
		if p == nil {
			return
		}
		d := g.Deoptimize(n.Reason, n.Action)
		g.KillCFG(n)
		g.SetNext(p, d)
		return
	}
	if c.Op() == ir.OpLogicNegation {
		t.changed(n, "flipped guard")
		g.SetInput(n, 0, g.Input(c, 0))
		n.Negated = !n.Negated
		g.KillIfDead(c)
	}
}

// simplifyGuard handles floating guards. A guard is checked when control reaches its
// anchor, so a guard that always fails turns the anchor's block into a deopt.
func (t *tool) simplifyGuard(n *ir.Node) {
	g := t.g
	c, anchor := g.Input(n, 0), g.Input(n, 1)
	if ok, known := holds(c, n.Negated); known {
		if ok {
			t.changed(n, "removed guard")
			g.ReplaceAtUsages(n, anchor)
			g.Delete(n)
			g.KillIfDead(c)
			t.push(anchor)
			return
		}
		t.changed(n, "guard always fails")
		t.deoptAt(anchor, n.Reason, n.Action)
		return
	}
	if c.Op() == ir.OpLogicNegation {
		t.changed(n, "flipped guard")
		flipped := g.Guard(g.Input(c, 0), anchor, n.Reason, n.Action, !n.Negated)
		g.ReplaceAtUsages(n, flipped)
		g.Delete(n)
		g.KillIfDead(c)
	}
}

// deoptAt replaces everything after anchor with an unconditional deopt. Other floating
// guards at the anchor can no longer be reached and go as well.
func (t *tool) deoptAt(anchor *ir.Node, reason deopt.Reason, action deopt.Action) {
	g := t.g
	if next := g.Next(anchor); next != nil {
		g.SetNext(anchor, nil)
		g.KillCFG(next)
	}
	for _, u := range g.UsageNodes(anchor) {
		if u.Op() == ir.OpGuard {
			c := g.Input(u, 0)
			g.ReplaceAtUsages(u, anchor)
			g.Delete(u)
			g.KillIfDead(c)
		}
	}
	g.SetNext(anchor, g.Deoptimize(reason, action))
}

// simplifyBegin removes a Begin that does not start a branch and anchors nothing
func (t *tool) simplifyBegin(n *ir.Node) {
	g := t.g
	p := g.Pred(n)
	if p == nil || p.Op() == ir.OpIf || n.HasUsages() {
		return
	}
	t.changed(n, "removed begin")
	g.RemoveFixed(n, nil)
	t.push(p)
	t.push(g.Next(p))
}

func (t *tool) simplifyMerge(n *ir.Node) {
	if n.InputCount() == 1 {
		t.dissolve(n)
	}
}

// simplifyLoopBegin turns a loop without back edges into straight-line code
func (t *tool) simplifyLoopBegin(n *ir.Node) {
	g := t.g
	if n.InputCount() != 1 || len(g.LoopEnds(n)) > 0 {
		return
	}
	for _, lx := range g.LoopExits(n) {
		g.RemoveFixed(lx, g.AnchorOf(g.Pred(lx)))
	}
	t.dissolve(n)
}

// dissolve removes a merge or loop begin with a single forward end and no back edges.
// Its phis take their only value.
func (t *tool) dissolve(m *ir.Node) {
	g := t.g
	end := g.Input(m, 0)
	t.changed(m, "dissolved")
	for _, phi := range g.Phis(m) {
		v := g.PhiValueAt(phi, 0)
		g.ReplaceAtUsages(phi, v)
		t.push(v)
		g.KillIfDead(phi)
	}
	p, next := g.Pred(end), g.Next(m)
	g.SetNext(m, nil)
	repl := t.anchorReplacement(m, next)
	if p != nil {
		g.ReplaceSucc(p, end, repl)
	}
	g.RemoveInput(m, 0)
	g.Delete(m)
	g.Delete(end)
	t.push(p)
	t.push(repl)
}

func (t *tool) canonicalPhi(n *ir.Node) *ir.Node {
	var v *ir.Node
	for _, in := range t.g.PhiValues(n) {
		if in == nil || in == n || in == v {
			continue
		}
		if v != nil {
			return nil
		}
		v = in
	}
	return v
}

func (t *tool) canonicalPi(n *ir.Node) *ir.Node {
	g := t.g
	v, guard := g.Input(n, 0), g.Input(n, 1)
	if n.Stamp().Equals(v.Stamp()) {
		return v
	}
	if v.Op() == ir.OpPi && g.Input(v, 1) == guard {
		return g.Pi(g.Input(v, 0), guard, v.Declared.Join(n.Declared))
	}
	return nil
}
