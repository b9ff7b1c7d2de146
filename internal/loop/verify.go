package loop

import (
	"slices"
	"strconv"
	"strings"

	"jitopt/internal/cfg"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/phase"
)

// VerifyProgress checks that no loop can iterate with static state: along every path
// from a loop header to one of its back edges, either a phi of the loop takes a new
// value or something with a side effect runs. Values that reach a back edge through
// phis of merges inside the loop are followed edge by edge, so a branch that leaves a
// phi alone is a path of its own.
func VerifyProgress(g *ir.Graph) error {
	c := cfg.Compute(g)
	for _, l := range c.Loops {
		lb := l.Begin()
		fwd := lb.InputCount()
		phis := g.Phis(lb)
		for _, le := range g.LoopEnds(lb) {
			b := c.BlockOf(le)
			if b == nil {
				continue
			}
			vals := make([]*ir.Node, len(phis))
			for i, phi := range phis {
				vals[i] = g.PhiValueAt(phi, fwd+le.Index)
			}
			if staticPath(c, l, phis, b, vals) {
				return jerrors.Verification(jerrors.ErrorLoopProgress, le.String(),
					"back edge of %s is reachable without changing a phi or a side effect", lb)
			}
		}
	}
	return nil
}

func hasSideEffect(c *cfg.CFG, b *cfg.Block) bool {
	for _, n := range c.Nodes(b) {
		if ir.HasSideEffect(n) {
			return true
		}
	}
	return false
}

// pathState is a block on a backward walk together with the value each loop phi
// must have had there for the phis to be unchanged at the back edge
type pathState struct {
	b    *cfg.Block
	vals []*ir.Node
}

func (s pathState) key() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(s.b.ID))
	for _, v := range s.vals {
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(int(v.ID())))
	}
	return sb.String()
}

// predEdge is an incoming control edge of a block. index is the phi value index of
// the edge for merges and loop begins, and -1 otherwise.
type predEdge struct {
	pred  *cfg.Block
	index int
}

func predEdges(c *cfg.CFG, b *cfg.Block) []predEdge {
	g := c.Graph
	switch b.Begin.Op() {
	case ir.OpMerge, ir.OpLoopBegin:
		var out []predEdge
		ends := g.Ends(b.Begin)
		for k, e := range ends {
			if e == nil {
				continue
			}
			if p := c.BlockOf(e); p != nil {
				out = append(out, predEdge{p, k})
			}
		}
		if b.Begin.Op() == ir.OpLoopBegin {
			for _, le := range g.LoopEnds(b.Begin) {
				if p := c.BlockOf(le); p != nil {
					out = append(out, predEdge{p, len(ends) + le.Index})
				}
			}
		}
		return out
	}
	out := make([]predEdge, len(b.Preds))
	for i, p := range b.Preds {
		out[i] = predEdge{p, -1}
	}
	return out
}

// unchanged strips Pis from vals and reports whether each value is still either its
// own loop phi or a phi of a merge inside the loop that may resolve to it further up
func unchanged(c *cfg.CFG, l *cfg.Loop, phis, vals []*ir.Node) bool {
	g := c.Graph
	for i, v := range vals {
		for v != nil && v.Op() == ir.OpPi {
			v = g.Input(v, 0)
		}
		vals[i] = v
		if v == phis[i] {
			continue
		}
		if v == nil || v.Op() != ir.OpPhi {
			return false
		}
		m := g.PhiMerge(v)
		if m == l.Begin() {
			return false
		}
		if mb := c.BlockOf(m); mb == nil || !l.Contains(mb) {
			return false
		}
	}
	return true
}

// staticPath walks backwards from the block of a back edge to the loop header through
// blocks without side effects, looking for a path on which every loop phi keeps its
// value. vals are the phi values at the back edge.
func staticPath(c *cfg.CFG, l *cfg.Loop, phis []*ir.Node, from *cfg.Block, vals []*ir.Node) bool {
	g := c.Graph
	vals = slices.Clone(vals)
	if !unchanged(c, l, phis, vals) {
		return false
	}
	start := pathState{b: from, vals: vals}
	seen := map[string]bool{start.key(): true}
	work := []pathState{start}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		if hasSideEffect(c, s.b) {
			continue
		}
		if s.b == l.Header {
			if slices.Equal(s.vals, phis) {
				return true
			}
			continue
		}
		for _, e := range predEdges(c, s.b) {
			if !l.Contains(e.pred) {
				continue
			}
			next := make([]*ir.Node, len(s.vals))
			for i, v := range s.vals {
				if e.index >= 0 && v.Op() == ir.OpPhi && g.PhiMerge(v) == s.b.Begin {
					v = g.PhiValueAt(v, e.index)
				}
				next[i] = v
			}
			if !unchanged(c, l, phis, next) {
				continue
			}
			ns := pathState{b: e.pred, vals: next}
			if k := ns.key(); !seen[k] {
				seen[k] = true
				work = append(work, ns)
			}
		}
	}
	return false
}

// SafepointSnapshot records the safepoint flags of the loop begins and loop ends of a
// graph
type SafepointSnapshot map[ir.NodeID]bool

// TakeSafepoints snapshots the safepoint flags of g
func TakeSafepoints(g *ir.Graph) SafepointSnapshot {
	s := SafepointSnapshot{}
	for _, n := range g.Nodes() {
		if n.Op() == ir.OpLoopBegin || n.Op() == ir.OpLoopEnd {
			s[n.ID()] = n.Safepoint
		}
	}
	return s
}

// Verify fails when a node of the snapshot that still exists has a different flag.
// Loops removed since the snapshot are fine.
func (s SafepointSnapshot) Verify(g *ir.Graph) error {
	if v := s.check(g); v != nil {
		return v
	}
	return nil
}

func (s SafepointSnapshot) check(g *ir.Graph) *jerrors.VerificationError {
	for _, n := range g.Nodes() {
		before, ok := s[n.ID()]
		if ok && before != n.Safepoint {
			return jerrors.Verification(jerrors.ErrorSafepointChanged, n.String(),
				"safepoint flag changed from %t to %t", before, n.Safepoint)
		}
	}
	return nil
}

type preserving struct {
	phase.Phase
}

// PreserveSafepoints wraps p so that applying it fails when it changes the safepoint
// flag of a loop that survives it
func PreserveSafepoints(p phase.Phase) phase.Phase {
	return &preserving{Phase: p}
}

func (p *preserving) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	snap := TakeSafepoints(g)
	changed, err := p.Phase.Apply(g, ctx)
	if err != nil {
		return changed, err
	}
	if v := snap.check(g); v != nil {
		v.Phase = p.Name()
		return changed, v
	}
	return changed, nil
}
