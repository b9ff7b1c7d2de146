// Package verify checks the structural invariants of a graph. Phases run it after every
// change when verification is enabled; a failure is a compiler bug, never a property of
// the input program.
package verify

import (
	"github.com/tliron/commonlog"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

var log = commonlog.GetLogger("jitopt.verify")

type verifier struct {
	g      *ir.Graph
	strict bool
	errors []*jerrors.VerificationError

	reachable map[ir.NodeID]bool // fixed nodes reachable from Start
}

// Graph verifies g and returns the first violation. Floating nodes that nothing refers
// to are tolerated: phases leave them behind and canonicalization collects them.
func Graph(g *ir.Graph) error {
	return first(Check(g, false))
}

// Strict is Graph without tolerance for unreferenced floating nodes
func Strict(g *ir.Graph) error {
	return first(Check(g, true))
}

func first(errs []*jerrors.VerificationError) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// Check returns every violation found in g
func Check(g *ir.Graph, strict bool) []*jerrors.VerificationError {
	v := &verifier{g: g, strict: strict}
	v.edges()
	if len(v.errors) > 0 {
		// the remaining checks follow edges and need them intact
		return v.errors
	}
	v.control()
	v.phis()
	v.cycles()
	v.floating()
	v.stamps()
	for _, e := range v.errors {
		log.Debugf("%s: %s", g.Name, e)
	}
	return v.errors
}

func (v *verifier) fail(code string, n *ir.Node, format string, args ...any) {
	node := ""
	if n != nil {
		node = n.String()
	}
	v.errors = append(v.errors, jerrors.Verification(code, node, format, args...))
}

// edges checks that inputs and successors point at live nodes and that input and
// usage lists mirror each other
func (v *verifier) edges() {
	g := v.g
	uses := map[ir.NodeID]int{}
	for _, n := range g.Nodes() {
		for i, id := range n.Inputs() {
			if id == ir.NoNode {
				continue
			}
			if g.Node(id) == nil {
				v.fail(jerrors.ErrorDeadReference, n, "input %d refers to deleted node %d", i, id)
				continue
			}
			uses[id]++
		}
		for i, id := range n.Succs() {
			if id != ir.NoNode && g.Node(id) == nil {
				v.fail(jerrors.ErrorDeadReference, n, "successor %d refers to deleted node %d", i, id)
			}
		}
	}
	for _, n := range g.Nodes() {
		if n.UsageCount() != uses[n.ID()] {
			v.fail(jerrors.ErrorUsageMismatch, n, "%d usages recorded but %d input edges point here",
				n.UsageCount(), uses[n.ID()])
		}
		for _, u := range n.Usages() {
			un := g.Node(u)
			if un == nil {
				v.fail(jerrors.ErrorDeadReference, n, "usage %d was deleted", u)
				continue
			}
			if !hasInput(un, n.ID()) {
				v.fail(jerrors.ErrorUsageMismatch, n, "listed as used by %s, which does not use it", un)
			}
		}
	}
}

func hasInput(n *ir.Node, id ir.NodeID) bool {
	for _, in := range n.Inputs() {
		if in == id {
			return true
		}
	}
	return false
}

// control checks successor and predecessor links and that every fixed node is reachable
// from Start
func (v *verifier) control() {
	g := v.g
	for _, n := range g.Nodes() {
		op := n.Op()
		if !op.IsFixed() {
			continue
		}
		for i, id := range n.Succs() {
			s := g.Node(id)
			if s == nil {
				if op.HasNext() || op == ir.OpIf {
					v.fail(jerrors.ErrorControlFlow, n, "successor %d is missing", i)
				}
				continue
			}
			if s.PredID() != n.ID() {
				v.fail(jerrors.ErrorControlFlow, n, "successor %s names %d as its predecessor", s, s.PredID())
			}
			if op == ir.OpIf && s.Op() != ir.OpBegin {
				v.fail(jerrors.ErrorControlFlow, n, "successor %s of an If is not a Begin", s)
			}
		}
		if p := g.Pred(n); p != nil && !hasSucc(p, n.ID()) {
			v.fail(jerrors.ErrorControlFlow, n, "predecessor %s does not lead here", p)
		}
		switch op {
		case ir.OpEnd:
			if g.MergeOf(n) == nil {
				v.fail(jerrors.ErrorControlFlow, n, "end without a merge")
			}
		case ir.OpLoopEnd, ir.OpLoopExit:
			if n.InputCount() == 0 || g.Input(n, 0) == nil || g.Input(n, 0).Op() != ir.OpLoopBegin {
				v.fail(jerrors.ErrorControlFlow, n, "does not belong to a loop begin")
			}
		case ir.OpMerge, ir.OpLoopBegin:
			for _, e := range g.InputNodes(n) {
				if e == nil || e.Op() != ir.OpEnd {
					v.fail(jerrors.ErrorControlFlow, n, "forward input %v is not an End", e)
				}
			}
		}
	}

	v.reachable = map[ir.NodeID]bool{}
	work := []*ir.Node{g.Start()}
	v.reachable[g.Start().ID()] = true
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		next := make([]*ir.Node, 0, 2)
		for _, id := range n.Succs() {
			next = append(next, g.Node(id))
		}
		if n.Op() == ir.OpEnd {
			next = append(next, g.MergeOf(n))
		}
		for _, s := range next {
			if s != nil && !v.reachable[s.ID()] {
				v.reachable[s.ID()] = true
				work = append(work, s)
			}
		}
	}
	for _, n := range g.Nodes() {
		if n.Op().IsFixed() && !v.reachable[n.ID()] {
			v.fail(jerrors.ErrorControlFlow, n, "not reachable from Start")
		}
	}
}

func hasSucc(n *ir.Node, id ir.NodeID) bool {
	for _, s := range n.Succs() {
		if s == id {
			return true
		}
	}
	return false
}

func (v *verifier) phis() {
	g := v.g
	for _, phi := range g.NodesOf(ir.OpPhi) {
		m := g.PhiMerge(phi)
		if m == nil || (m.Op() != ir.OpMerge && m.Op() != ir.OpLoopBegin) {
			v.fail(jerrors.ErrorPhiArity, phi, "input 0 is not a merge")
			continue
		}
		want := m.InputCount()
		if m.Op() == ir.OpLoopBegin {
			want += len(g.LoopEnds(m))
		}
		if got := phi.InputCount() - 1; got != want {
			v.fail(jerrors.ErrorPhiArity, phi, "%d values for %d ends of %s", got, want, m)
		}
	}
	for _, lb := range g.NodesOf(ir.OpLoopBegin) {
		for i, le := range g.LoopEnds(lb) {
			if le.Index != i {
				v.fail(jerrors.ErrorPhiArity, le, "loop end number %d at position %d", le.Index, i)
			}
		}
	}
}

// cycles looks for input cycles that do not pass through a phi
func (v *verifier) cycles() {
	const (
		white = iota
		grey
		black
	)
	g := v.g
	color := map[ir.NodeID]int{}
	type frame struct {
		n    *ir.Node
		next int
	}
	for _, root := range g.Nodes() {
		if color[root.ID()] != white {
			continue
		}
		color[root.ID()] = grey
		stack := []frame{{n: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.n.Op() == ir.OpPhi || top.next >= top.n.InputCount() {
				color[top.n.ID()] = black
				stack = stack[:len(stack)-1]
				continue
			}
			in := g.Input(top.n, top.next)
			top.next++
			if in == nil {
				continue
			}
			switch color[in.ID()] {
			case grey:
				v.fail(jerrors.ErrorCycle, in, "reaches itself through %s", top.n)
				return
			case white:
				color[in.ID()] = grey
				stack = append(stack, frame{n: in})
			}
		}
	}
}

// floating checks that values only depend on reachable control and, when strict, that
// every floating node is needed by some fixed node
func (v *verifier) floating() {
	g := v.g
	live := map[ir.NodeID]bool{}
	var work []*ir.Node
	mark := func(n *ir.Node) {
		if n != nil && !live[n.ID()] {
			live[n.ID()] = true
			work = append(work, n)
		}
	}
	for _, n := range g.Nodes() {
		switch {
		case n.Op().IsFixed() && v.reachable[n.ID()]:
			mark(n)
		case n.Op() == ir.OpParam:
			mark(n)
		case n.Op() == ir.OpGuard:
			if a := g.Input(n, 1); a != nil && v.reachable[a.ID()] {
				mark(n)
			}
		}
	}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, in := range g.InputNodes(n) {
			if in == nil {
				continue
			}
			if in.Op().IsFixed() && !v.reachable[in.ID()] {
				v.fail(jerrors.ErrorUnreachableFloating, n, "depends on unreachable %s", in)
				continue
			}
			mark(in)
		}
	}
	if !v.strict {
		return
	}
	for _, n := range g.Nodes() {
		if n.Op().IsFloating() && !live[n.ID()] {
			v.fail(jerrors.ErrorUnreachableFloating, n, "no fixed node needs it")
		}
	}
}

// stamps checks that each cached stamp has the family and width its inputs imply
func (v *verifier) stamps() {
	g := v.g
	for _, n := range g.Nodes() {
		have := n.Stamp()
		if have == nil {
			continue
		}
		want := g.InferStamp(n)
		if want == nil {
			continue
		}
		if !stamp.IsCompatible(have, want) {
			v.fail(jerrors.ErrorStamp, n, "stamp %s does not fit %s inferred from the inputs", have, want)
		}
	}
}
