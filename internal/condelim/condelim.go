// Package condelim removes guards and branches whose outcome is decided by conditions
// that dominate them. It walks the dominator tree once, collecting what each branch
// and surviving guard proves, and rewrites every check that the collected facts
// decide.
package condelim

import (
	"maps"
	"slices"

	"github.com/tliron/commonlog"

	"jitopt/internal/cfg"
	"jitopt/internal/cond"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

var log = commonlog.GetLogger("jitopt.condelim")

// ConditionalElimination is a single pass of the elimination walk
type ConditionalElimination struct{}

func New() *ConditionalElimination { return &ConditionalElimination{} }

func (c *ConditionalElimination) Name() string { return "conditional-elimination" }

func (c *ConditionalElimination) Description() string {
	return "Removes guards and branches decided by dominating conditions"
}

func (c *ConditionalElimination) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	return Run(g, ctx.Options) > 0, nil
}

type fieldKey struct {
	obj   ir.NodeID
	field *types.Field
}

type eliminator struct {
	g     *ir.Graph
	opts  options.Options
	cfg   *cfg.CFG
	state *state

	ends   map[ir.NodeID]snapshot // facts at each visited merge end
	fields map[fieldKey]*ir.Node  // loads available in the current block
	epoch  int                    // side effects seen so far

	changes int
}

// Run performs one elimination pass over g and returns the number of rewrites
func Run(g *ir.Graph, opts options.Options) int {
	e := &eliminator{g: g, opts: opts, state: newState(), ends: map[ir.NodeID]snapshot{}}
	if opts.MoveGuardsUpwards {
		e.changes += HoistSharedGuards(g)
	}
	e.cfg = cfg.Compute(g)
	e.walk()
	if e.changes > 0 {
		log.Debugf("%s: %d eliminations", g.Name, e.changes)
	}
	return e.changes
}

func (e *eliminator) changed(n *ir.Node, what string) {
	e.changes++
	log.Debugf("%s: %s %s", e.g.Name, what, n)
}

type frame struct {
	b    *cfg.Block
	mark int
	next int // dominated blocks entered so far
}

// walk visits the dominator tree depth first with an explicit stack. Facts added
// while inside a block are dropped when its subtree is done.
func (e *eliminator) walk() {
	entry := e.cfg.Entry()
	stack := []frame{{b: entry, mark: e.state.mark()}}
	e.enter(entry)
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.b.Dominated) {
			child := top.b.Dominated[top.next]
			top.next++
			stack = append(stack, frame{b: child, mark: e.state.mark()})
			e.enter(child)
			continue
		}
		e.state.rollback(top.mark)
		stack = stack[:len(stack)-1]
	}
}

func (e *eliminator) enter(b *cfg.Block) {
	g := e.g
	begin := b.Begin
	if begin.Op() == ir.OpMerge {
		e.intersect(begin)
	} else if p := g.Pred(begin); p != nil && p.Op() == ir.OpIf {
		e.register(g.Input(p, 0), g.Succ(p, 0) == begin, begin)
	}
	e.fields = map[fieldKey]*ir.Node{}
	e.anchored(begin)

	for n := g.Next(begin); n != nil && !n.Op().IsBegin(); {
		var next *ir.Node
		if n.Op().HasNext() {
			next = g.Next(n)
		}
		e.process(n)
		n = next
	}
}

// anchored handles the floating guards and Pis anchored at a begin node
func (e *eliminator) anchored(begin *ir.Node) {
	g := e.g
	for _, u := range g.UsageNodes(begin) {
		if g.Node(u.ID()) != u || g.Input(u, 1) != begin {
			continue
		}
		switch u.Op() {
		case ir.OpGuard:
			e.guard(u)
		case ir.OpPi:
			e.refine(g.Input(u, 0), u.Declared, begin)
		}
	}
}

func (e *eliminator) process(n *ir.Node) {
	if ir.HasSideEffect(n) {
		e.epoch++
	}
	switch n.Op() {
	case ir.OpFixedGuard:
		e.guard(n)
	case ir.OpIf:
		e.branch(n)
	case ir.OpLoopExit, ir.OpControlFlowAnchor:
		e.anchored(n)
	case ir.OpLoadField:
		e.load(n)
	case ir.OpEnd:
		if e.cfg.BlockOf(n) != nil {
			e.ends[n.ID()] = e.state.snapshot()
		}
	case ir.OpInvoke:
		clear(e.fields)
	default:
		for k := range e.fields {
			if ir.Kills(n, ir.Location{Field: k.field}) {
				delete(e.fields, k)
			}
		}
	}
}

// branch turns an If decided by the facts into a branch on a constant
func (e *eliminator) branch(n *ir.Node) {
	g := e.g
	c := g.Input(n, 0)
	if c == nil || c.IsConstant() {
		return
	}
	if r := e.decide(c, nil); r.IsKnown() {
		e.changed(n, "decided branch")
		g.SetInput(n, 0, g.ConstBool(r.ToBool()))
		g.KillIfDead(c)
	}
}

// guard removes a fixed or floating guard that must pass and forces one that must
// fail to deoptimize. A surviving guard adds its condition to the facts.
func (e *eliminator) guard(n *ir.Node) {
	g := e.g
	c := g.Input(n, 0)
	if c == nil || c.IsConstant() {
		return
	}
	var p proof
	if r := e.decide(c, &p); r.IsKnown() {
		if r.ToBool() != n.Negated {
			e.removeGuard(n, p.node)
		} else {
			e.failGuard(n)
		}
		return
	}
	if e.groupBounds(n) {
		return
	}
	e.register(c, !n.Negated, n)
	for _, u := range g.UsageNodes(n) {
		if u.Op() == ir.OpPi && g.Input(u, 1) == n {
			e.refine(g.Input(u, 0), u.Declared, n)
		}
	}
	e.noteBounds(n)
}

// removeGuard deletes a guard that always passes. Pis that depended on it now
// depend on the node that proves its condition.
func (e *eliminator) removeGuard(n, by *ir.Node) {
	g := e.g
	if by == nil {
		if n.Op() == ir.OpGuard {
			by = g.Input(n, 1)
		} else {
			by = g.AnchorOf(g.Pred(n))
		}
	}
	e.changed(n, "removed guard proven by "+by.String())
	if n.Op() == ir.OpFixedGuard {
		g.RemoveFixed(n, by)
		return
	}
	c := g.Input(n, 0)
	g.ReplaceAtUsages(n, by)
	g.Delete(n)
	g.KillIfDead(c)
}

// failGuard replaces the condition of a guard that always fails by a constant; the
// canonicalizer turns it into a deopt
func (e *eliminator) failGuard(n *ir.Node) {
	g := e.g
	e.changed(n, "guard always fails")
	c := g.Input(n, 0)
	g.SetInput(n, 0, g.ConstBool(n.Negated))
	g.KillIfDead(c)
}

// boundsCheck matches a non-negated fixed guard "k |<| length" with a constant k
func (e *eliminator) boundsCheck(n *ir.Node) (boundsKey, int64, bool) {
	g := e.g
	if n.Op() != ir.OpFixedGuard || n.Negated {
		return boundsKey{}, 0, false
	}
	c := g.Input(n, 0)
	if c.Op() != ir.OpCompare || c.Cond != cond.BT {
		return boundsKey{}, 0, false
	}
	k, ok := g.Input(c, 0).IntConstant()
	if !ok || k < 0 {
		return boundsKey{}, 0, false
	}
	return boundsKey{length: g.Input(c, 1).ID(), reason: n.Reason, action: n.Action}, k, true
}

func (e *eliminator) noteBounds(n *ir.Node) {
	if k, index, ok := e.boundsCheck(n); ok {
		e.state.setBounds(k, &boundsFact{guard: n, index: index, epoch: e.epoch})
	}
}

// groupBounds folds a bounds check into a dominating check of the same length with a
// smaller constant index. The dominating check is strengthened to the larger index;
// nothing with a side effect may run between the two.
func (e *eliminator) groupBounds(n *ir.Node) bool {
	g := e.g
	k, index, ok := e.boundsCheck(n)
	if !ok {
		return false
	}
	f, ok := e.state.bounds[k]
	if !ok || g.Node(f.guard.ID()) != f.guard {
		return false
	}
	if index > f.index {
		if f.epoch != e.epoch {
			return false
		}
		c := g.Input(n, 0)
		old := g.Input(f.guard, 0)
		e.changed(f.guard, "strengthened bounds check")
		g.SetInput(f.guard, 0, c)
		g.KillIfDead(old)
		f.index = index
		e.register(c, true, f.guard)
	}
	e.removeGuard(n, f.guard)
	return true
}

// load reuses an earlier load of the same field of the same object in this block
func (e *eliminator) load(n *ir.Node) {
	g := e.g
	obj := g.Input(n, 0)
	if e.opts.FieldAccessSkipPreciseTypes {
		for obj.Op() == ir.OpPi {
			obj = g.Input(obj, 0)
		}
	}
	k := fieldKey{obj: obj.ID(), field: n.Field}
	if prev, ok := e.fields[k]; ok && g.Node(prev.ID()) == prev && prev.Stamp().Equals(n.Stamp()) {
		e.changed(n, "reused load "+prev.String())
		g.RemoveFixed(n, prev)
		return
	}
	e.fields[k] = n
}

// intersect adds the facts that hold at every forward end of a merge. Phis get the
// meet of the stamps their values have at the ends.
func (e *eliminator) intersect(m *ir.Node) {
	g := e.g
	var snaps []snapshot
	var edges []int
	for i, end := range g.Ends(m) {
		if e.cfg.BlockOf(end) == nil {
			continue
		}
		s, ok := e.ends[end.ID()]
		if !ok {
			return
		}
		snaps = append(snaps, s)
		edges = append(edges, i)
	}
	if len(snaps) == 0 {
		return
	}

	first, rest := snaps[0], snaps[1:]
	for _, id := range slices.Sorted(maps.Keys(first.conds)) {
		f := first.conds[id]
		if _, known := e.state.conds[id]; known || g.Node(id) == nil {
			continue
		}
		all := true
		for _, s := range rest {
			if o, ok := s.conds[id]; !ok || o.holds != f.holds {
				all = false
				break
			}
		}
		if all {
			e.state.setCond(id, condFact{holds: f.holds, proof: m})
		}
	}

	for _, id := range slices.Sorted(maps.Keys(first.stamps)) {
		n := g.Node(id)
		if n == nil {
			continue
		}
		s := first.stamps[id].stamp
		all := true
		for _, o := range rest {
			of, ok := o.stamps[id]
			if !ok {
				all = false
				break
			}
			s = s.Meet(of.stamp)
		}
		if all {
			e.refine(n, s, m)
		}
	}

	for _, phi := range g.Phis(m) {
		var s stamp.Stamp
		for k, snap := range snaps {
			v := g.PhiValueAt(phi, edges[k])
			if v == nil {
				continue
			}
			vs := v.Stamp()
			if f, ok := snap.stamps[v.ID()]; ok {
				vs = f.stamp
			}
			if s == nil {
				s = vs
			} else if stamp.IsCompatible(s, vs) {
				s = s.Meet(vs)
			}
		}
		if s != nil {
			e.refine(phi, s, m)
		}
	}
}
