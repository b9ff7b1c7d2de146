package condelim

import (
	"jitopt/internal/cond"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
)

// stampOf returns the best known stamp of n at the current point
func (e *eliminator) stampOf(n *ir.Node, p *proof) stamp.Stamp {
	s := n.Stamp()
	if f, ok := e.state.stamps[n.ID()]; ok {
		s = f.stamp
		p.use(f.proof, f.seq)
	}
	if n.Op() == ir.OpPi {
		// a Pi is its input seen through a guard
		if in := e.stampOf(e.g.Input(n, 0), p); stamp.IsCompatible(s, in) {
			s = s.Join(in)
		}
	}
	return s
}

// refine records that n has stamp s below proof
func (e *eliminator) refine(n *ir.Node, s stamp.Stamp, proof *ir.Node) {
	if n == nil || n.IsConstant() {
		return
	}
	cur := e.stampOf(n, nil)
	if !stamp.IsCompatible(cur, s) {
		return
	}
	j := cur.Join(s)
	if j.Equals(cur) {
		return
	}
	e.state.setStamp(n.ID(), stampFact{stamp: j, proof: proof})

	g := e.g
	switch n.Op() {
	case ir.OpPi:
		e.refine(g.Input(n, 0), j, proof)
	case ir.OpSignExtend, ir.OpZeroExtend:
		w, ok := j.(stamp.IntegerStamp)
		in := g.Input(n, 0)
		if !ok || in == nil {
			return
		}
		if n.Op() == ir.OpSignExtend {
			e.refine(in, stamp.InvertSignExtend(w, in.ValueBits()), proof)
		} else {
			e.refine(in, stamp.InvertZeroExtend(w, in.ValueBits()), proof)
		}
	}
}

// register records that the logic node l evaluates to holds below proof and narrows
// the stamps of the values it constrains
func (e *eliminator) register(l *ir.Node, holds bool, proof *ir.Node) {
	if l == nil || l.IsConstant() {
		return
	}
	if f, ok := e.state.conds[l.ID()]; ok && f.holds == holds {
		return
	}
	e.state.setCond(l.ID(), condFact{holds: holds, proof: proof})

	g := e.g
	switch l.Op() {
	case ir.OpLogicNegation:
		e.register(g.Input(l, 0), !holds, proof)

	case ir.OpCompare:
		x, y := g.Input(l, 0), g.Input(l, 1)
		xs, xok := e.stampOf(x, nil).(stamp.IntegerStamp)
		ys, yok := e.stampOf(y, nil).(stamp.IntegerStamp)
		if !xok || !yok {
			return
		}
		c := l.Cond
		if !holds {
			c = c.Negate()
		}
		nx, ny := stamp.RefineForCondition(c, xs, ys)
		e.refine(x, nx, proof)
		e.refine(y, ny, proof)

	case ir.OpIsNull:
		if holds {
			e.refine(g.Input(l, 0), stamp.Null(), proof)
		} else {
			e.refine(g.Input(l, 0), stamp.ObjectOf(nil, false, true), proof)
		}

	case ir.OpInstanceOf:
		x := g.Input(l, 0)
		if s, ok := e.stampOf(x, nil).(stamp.ObjectStamp); ok {
			e.refine(x, stamp.RefineInstanceOf(s, l.Type, l.AllowNull, holds), proof)
		}

	case ir.OpIntegerTest:
		if !holds {
			return
		}
		// x & k == 0 clears the bits of k in x
		x, y := g.Input(l, 0), g.Input(l, 1)
		for range 2 {
			if k, ok := y.IntConstant(); ok {
				bits := x.ValueBits()
				e.refine(x, stamp.FromMasks(bits, 0, stamp.Mask(bits)&^uint64(k)), proof)
			}
			x, y = y, x
		}
	}
}

// decide evaluates the logic node l from the facts. Facts it relies on are reported
// through p.
func (e *eliminator) decide(l *ir.Node, p *proof) cond.TriState {
	g := e.g
	if v, ok := l.IntConstant(); ok {
		return cond.Of(v != 0)
	}
	if f, ok := e.state.conds[l.ID()]; ok {
		p.use(f.proof, f.seq)
		return cond.Of(f.holds)
	}
	switch l.Op() {
	case ir.OpLogicNegation:
		return e.decide(g.Input(l, 0), p).Negate()

	case ir.OpCompare:
		return e.decideCompare(l, p)

	case ir.OpIsNull:
		if s, ok := e.stampOf(g.Input(l, 0), p).(stamp.ObjectStamp); ok {
			return stamp.FoldIsNull(s)
		}

	case ir.OpInstanceOf:
		if s, ok := e.stampOf(g.Input(l, 0), p).(stamp.ObjectStamp); ok {
			return stamp.FoldInstanceOf(s, l.Type, l.AllowNull)
		}

	case ir.OpIntegerTest:
		xs, xok := e.stampOf(g.Input(l, 0), p).(stamp.IntegerStamp)
		ys, yok := e.stampOf(g.Input(l, 1), p).(stamp.IntegerStamp)
		if !xok || !yok || xs.IsEmpty() || ys.IsEmpty() {
			return cond.Unknown
		}
		switch {
		case xs.MayBeSet()&ys.MayBeSet() == 0:
			return cond.True
		case xs.MustBeSet()&ys.MustBeSet() != 0:
			return cond.False
		}
	}
	return cond.Unknown
}

func (e *eliminator) decideCompare(l *ir.Node, p *proof) cond.TriState {
	g := e.g
	x, y := g.Input(l, 0), g.Input(l, 1)
	xs, xok := e.stampOf(x, p).(stamp.IntegerStamp)
	ys, yok := e.stampOf(y, p).(stamp.IntegerStamp)
	if !xok || !yok {
		return cond.Unknown
	}
	if r := stamp.FoldCondition(l.Cond, xs, ys); r.IsKnown() {
		return r
	}

	// another comparison of the same operands
	for _, u := range g.UsageNodes(x) {
		if u == l || u.Op() != ir.OpCompare {
			continue
		}
		f, ok := e.state.conds[u.ID()]
		if !ok {
			continue
		}
		var c cond.Condition
		switch {
		case g.Input(u, 0) == x && g.Input(u, 1) == y:
			c = u.Cond
		case g.Input(u, 0) == y && g.Input(u, 1) == x:
			c = u.Cond.Mirror()
		default:
			continue
		}
		if !f.holds {
			c = c.Negate()
		}
		switch {
		case c.Implies(l.Cond):
			p.use(f.proof, f.seq)
			return cond.True
		case c.TrueIsDisjoint(l.Cond):
			p.use(f.proof, f.seq)
			return cond.False
		}
	}
	return cond.Unknown
}
