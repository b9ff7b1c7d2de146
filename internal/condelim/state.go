package condelim

import (
	"maps"

	"jitopt/internal/deopt"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

// condFact records the proven outcome of a logic node and the node that proves it:
// a branch begin, a merge or a guard.
type condFact struct {
	holds bool
	proof *ir.Node
	seq   int
}

// stampFact is a stamp of a value that holds below proof
type stampFact struct {
	stamp stamp.Stamp
	proof *ir.Node
	seq   int
}

type boundsKey struct {
	length ir.NodeID
	reason deopt.Reason
	action deopt.Action
}

// boundsFact is a dominating fixed guard "index |<| length" with a constant index.
// index follows the guard when the guard is strengthened, so it is shared rather
// than restored on rollback.
type boundsFact struct {
	guard *ir.Node
	index int64
	epoch int
}

type undoKind uint8

const (
	undoCond undoKind = iota
	undoStamp
	undoBounds
)

type undo struct {
	kind   undoKind
	id     ir.NodeID
	key    boundsKey
	had    bool
	cond   condFact
	stamp  stampFact
	bounds *boundsFact
}

// state holds the facts valid at the current point of the dominator walk. Every
// update is logged so that leaving a dominator subtree restores the facts of its
// parent.
type state struct {
	conds  map[ir.NodeID]condFact
	stamps map[ir.NodeID]stampFact
	bounds map[boundsKey]*boundsFact
	log    []undo
	seq    int
}

func newState() *state {
	return &state{
		conds:  map[ir.NodeID]condFact{},
		stamps: map[ir.NodeID]stampFact{},
		bounds: map[boundsKey]*boundsFact{},
	}
}

func (s *state) mark() int { return len(s.log) }

func (s *state) setCond(id ir.NodeID, f condFact) {
	prev, had := s.conds[id]
	s.log = append(s.log, undo{kind: undoCond, id: id, had: had, cond: prev})
	s.seq++
	f.seq = s.seq
	s.conds[id] = f
}

func (s *state) setStamp(id ir.NodeID, f stampFact) {
	prev, had := s.stamps[id]
	s.log = append(s.log, undo{kind: undoStamp, id: id, had: had, stamp: prev})
	s.seq++
	f.seq = s.seq
	s.stamps[id] = f
}

func (s *state) setBounds(k boundsKey, f *boundsFact) {
	prev, had := s.bounds[k]
	s.log = append(s.log, undo{kind: undoBounds, key: k, had: had, bounds: prev})
	s.bounds[k] = f
}

// rollback undoes every update made after mark
func (s *state) rollback(mark int) {
	for len(s.log) > mark {
		u := s.log[len(s.log)-1]
		s.log = s.log[:len(s.log)-1]
		switch u.kind {
		case undoCond:
			if u.had {
				s.conds[u.id] = u.cond
			} else {
				delete(s.conds, u.id)
			}
		case undoStamp:
			if u.had {
				s.stamps[u.id] = u.stamp
			} else {
				delete(s.stamps, u.id)
			}
		case undoBounds:
			if u.had {
				s.bounds[u.key] = u.bounds
			} else {
				delete(s.bounds, u.key)
			}
		}
	}
}

// snapshot is the path-dependent part of the state at a merge end
type snapshot struct {
	conds  map[ir.NodeID]condFact
	stamps map[ir.NodeID]stampFact
}

func (s *state) snapshot() snapshot {
	return snapshot{conds: maps.Clone(s.conds), stamps: maps.Clone(s.stamps)}
}

// proof tracks the most recently established fact used by a decision. Facts on the
// current dominator path are established top down, so the latest one is dominated
// by all the others.
type proof struct {
	node *ir.Node
	seq  int
}

func (p *proof) use(n *ir.Node, seq int) {
	if p != nil && n != nil && seq >= p.seq {
		p.node, p.seq = n, seq
	}
}
