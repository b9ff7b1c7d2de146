package ir

import (
	"fmt"
	"slices"
)

// SetNext links n to next as its single successor
func (g *Graph) SetNext(n, next *Node) {
	g.SetSucc(n, 0, next)
}

// SetSucc makes s the i-th successor of n. A previous successor is unlinked.
func (g *Graph) SetSucc(n *Node, i int, s *Node) {
	if old := g.Node(n.succs[i]); old != nil && old.pred == n.id {
		old.pred = NoNode
	}
	if s == nil {
		n.succs[i] = NoNode
	} else {
		if p := g.Node(s.pred); p != nil && p != n {
			panic(fmt.Sprintf("%s already follows %s", s, p))
		}
		n.succs[i] = s.id
		s.pred = n.id
	}
	g.mods++
}

// ReplaceSucc points the edge of pred that leads to old at repl. old is left
// without a predecessor.
func (g *Graph) ReplaceSucc(pred, old, repl *Node) {
	for i, s := range pred.succs {
		if s == old.id {
			old.pred = NoNode
			g.SetSucc(pred, i, repl)
			return
		}
	}
	panic(fmt.Sprintf("%s is not a successor of %s", old, pred))
}

// InsertBefore places the unlinked single-successor node n directly before at
func (g *Graph) InsertBefore(at, n *Node) {
	p := g.Pred(at)
	if p == nil {
		panic(fmt.Sprintf("cannot insert before %s: no predecessor", at))
	}
	g.ReplaceSucc(p, at, n)
	g.SetNext(n, at)
}

// InsertAfter places the unlinked single-successor node n directly after at
func (g *Graph) InsertAfter(at, n *Node) {
	next := g.Next(at)
	g.SetNext(at, nil)
	g.SetNext(at, n)
	if next != nil {
		g.SetNext(n, next)
	}
}

// Unlink removes the single-successor node n from the control flow, connecting its
// predecessor to its successor. n stays in the graph.
func (g *Graph) Unlink(n *Node) {
	p, next := g.Pred(n), g.Next(n)
	g.SetNext(n, nil)
	if p != nil {
		g.ReplaceSucc(p, n, next)
	}
}

// RemoveFixed unlinks n, redirects its value usages to repl and deletes it. repl may be
// nil only when n has no usages left.
func (g *Graph) RemoveFixed(n, repl *Node) {
	if !n.op.HasNext() {
		panic(fmt.Sprintf("cannot splice out %s", n))
	}
	if repl != nil {
		g.ReplaceAtUsages(n, repl)
	}
	g.Unlink(n)
	inputs := g.InputNodes(n)
	g.Delete(n)
	for _, in := range inputs {
		g.KillIfDead(in)
	}
}

// ReplaceFixedWithFloating replaces the fixed node n by the floating node v
func (g *Graph) ReplaceFixedWithFloating(n, v *Node) {
	g.RemoveFixed(n, v)
}

// Ends returns the forward ends of a merge or loop begin in order
func (g *Graph) Ends(merge *Node) []*Node {
	return g.InputNodes(merge)
}

// EndIndex returns the position of end among the forward ends of its merge
func (g *Graph) EndIndex(merge, end *Node) int {
	return slices.Index(merge.inputs, end.id)
}

// MergeOf returns the merge or loop begin that an End flows into
func (g *Graph) MergeOf(end *Node) *Node {
	for _, u := range g.UsageNodes(end) {
		if u.op == OpMerge || u.op == OpLoopBegin {
			return u
		}
	}
	return nil
}

// Phis returns the phis of a merge or loop begin in ID order
func (g *Graph) Phis(merge *Node) []*Node {
	var out []*Node
	for _, u := range g.UsageNodes(merge) {
		if u.op == OpPhi && u.inputs[0] == merge.id {
			out = append(out, u)
		}
	}
	return out
}

// LoopEnds returns the back edges of a loop begin ordered by their index
func (g *Graph) LoopEnds(lb *Node) []*Node {
	var out []*Node
	for _, u := range g.UsageNodes(lb) {
		if u.op == OpLoopEnd {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int { return a.Index - b.Index })
	return out
}

// LoopExits returns the exits of a loop begin in ID order
func (g *Graph) LoopExits(lb *Node) []*Node {
	var out []*Node
	for _, u := range g.UsageNodes(lb) {
		if u.op == OpLoopExit {
			out = append(out, u)
		}
	}
	return out
}

// PhiValueAt returns the value a phi takes along the i-th predecessor edge, counting
// forward ends first and then loop ends
func (g *Graph) PhiValueAt(phi *Node, i int) *Node {
	return g.Node(phi.inputs[i+1])
}

// PhiValues returns all values of a phi
func (g *Graph) PhiValues(phi *Node) []*Node {
	return g.InputNodes(phi)[1:]
}

// PhiMerge returns the merge a phi belongs to
func (g *Graph) PhiMerge(phi *Node) *Node { return g.Node(phi.inputs[0]) }

// AddEnd appends a forward end to a merge. Phis must receive their value with
// AppendInput afterwards.
func (g *Graph) AddEnd(merge, end *Node) {
	g.AppendInput(merge, end)
}

// RemoveEnd disconnects a forward end from its merge and drops the matching phi
// values, deleting values nothing else uses. The End node itself is left for the
// caller.
func (g *Graph) RemoveEnd(merge, end *Node) {
	i := g.EndIndex(merge, end)
	if i < 0 {
		panic(fmt.Sprintf("%s does not end at %s", end, merge))
	}
	var dropped []*Node
	for _, phi := range g.Phis(merge) {
		dropped = append(dropped, g.Input(phi, i+1))
		g.RemoveInput(phi, i+1)
	}
	g.RemoveInput(merge, i)
	for _, v := range dropped {
		g.KillIfDead(v)
	}
}

// RemoveLoopEnd disconnects a back edge from its loop begin, drops the matching phi
// values and renumbers the remaining back edges
func (g *Graph) RemoveLoopEnd(lb, le *Node) {
	fwd := len(lb.inputs)
	var dropped []*Node
	for _, phi := range g.Phis(lb) {
		dropped = append(dropped, g.Input(phi, 1+fwd+le.Index))
		g.RemoveInput(phi, 1+fwd+le.Index)
	}
	for _, other := range g.LoopEnds(lb) {
		if other.Index > le.Index {
			other.Index--
		}
	}
	g.RemoveInput(le, 0)
	le.Index = -1
	for _, v := range dropped {
		g.KillIfDead(v)
	}
}

// KillCFG deletes the control flow region that starts at n, which must no longer be
// reachable. Merges lose the ends that lie in the region; a merge left without forward
// ends is dead as well. Floating nodes that only the region used go with it.
func (g *Graph) KillCFG(n *Node) {
	if p := g.Pred(n); p != nil {
		for i, s := range p.succs {
			if s == n.id {
				g.SetSucc(p, i, nil)
			}
		}
	}
	dead := map[NodeID]bool{}
	var order []*Node
	work := []*Node{n}
	for len(work) > 0 {
		x := work[len(work)-1]
		work = work[:len(work)-1]
		if x == nil || dead[x.id] {
			continue
		}
		dead[x.id] = true
		order = append(order, x)
		switch x.op {
		case OpEnd:
			if m := g.MergeOf(x); m != nil && !dead[m.id] {
				g.RemoveEnd(m, x)
				if len(m.inputs) == 0 {
					work = append(work, m)
				}
			}
		case OpLoopEnd:
			if lb := g.Input(x, 0); lb != nil && !dead[lb.id] {
				g.RemoveLoopEnd(lb, x)
			}
		case OpLoopBegin:
			// a loop without entries dies with all of its back edges
			for _, le := range g.LoopEnds(x) {
				work = append(work, le)
			}
		}
		for _, s := range x.succs {
			work = append(work, g.Node(s))
		}
	}

	// floating nodes anchored in or computed from the region
	for i := 0; i < len(order); i++ {
		for _, u := range g.UsageNodes(order[i]) {
			if dead[u.id] {
				continue
			}
			if u.op.IsFloating() {
				dead[u.id] = true
				order = append(order, u)
			}
		}
	}
	log.Debugf("%s: killing %d nodes starting at %s", g.Name, len(order), n)

	var survivors []*Node
	for _, x := range order {
		for _, in := range g.InputNodes(x) {
			if in != nil && !dead[in.id] {
				survivors = append(survivors, in)
			}
		}
	}
	for _, x := range order {
		g.unintern(x)
		for _, in := range x.inputs {
			if o := g.Node(in); o != nil {
				o.usages = removeOne(o.usages, x.id)
			}
		}
		x.inputs = nil
		x.succs = nil
	}
	for _, x := range order {
		x.usages = nil
		x.pred = NoNode
		g.Delete(x)
	}
	for _, s := range survivors {
		if g.Node(s.id) == s {
			g.KillIfDead(s)
		}
	}
}

// AnchorOf returns the closest abstract begin at or above the fixed node n, the node
// that floating guards and Pis valid at n are anchored to
func (g *Graph) AnchorOf(n *Node) *Node {
	for x := n; x != nil; x = g.Pred(x) {
		if x.op.IsAbstractBegin() {
			return x
		}
	}
	return nil
}

// SwapSuccs exchanges the successors of an If
func (g *Graph) SwapSuccs(ifNode *Node) {
	t, f := g.Succ(ifNode, 0), g.Succ(ifNode, 1)
	g.SetSucc(ifNode, 0, nil)
	g.SetSucc(ifNode, 1, nil)
	g.SetSucc(ifNode, 0, f)
	g.SetSucc(ifNode, 1, t)
}

// ReduceIf removes an If whose condition is known, keeping the successor at index
// keep and killing the other branch. The kept Begin takes the place of the If.
func (g *Graph) ReduceIf(ifNode *Node, keep int) *Node {
	live, dead := g.Succ(ifNode, keep), g.Succ(ifNode, 1-keep)
	g.SetSucc(ifNode, keep, nil)
	if dead != nil {
		g.KillCFG(dead)
	}
	if p := g.Pred(ifNode); p != nil {
		g.ReplaceSucc(p, ifNode, live)
	}
	c := g.Input(ifNode, 0)
	g.Delete(ifNode)
	g.KillIfDead(c)
	return live
}
