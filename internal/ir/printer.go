package ir

import (
	"fmt"
	"strings"

	"jitopt/internal/stamp"
)

// Printer renders a graph as text. Nodes are renumbered in schedule order, so two
// graphs with the same structure print identically whatever their IDs are.
type Printer struct {
	indent int
	output strings.Builder

	g       *Graph
	order   []*Node
	number  map[NodeID]int
	visited map[NodeID]bool // floating nodes entered by emit
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the string representation of a graph
func Print(g *Graph) string {
	p := NewPrinter()
	p.printGraph(g)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printGraph(g *Graph) {
	p.g = g
	p.number = map[NodeID]int{}
	p.visited = map[NodeID]bool{}
	p.schedule()

	p.writeLine("graph %s {", g.Name)
	p.indent++
	for _, n := range p.order {
		if n.op.IsBegin() || n.op == OpLoopExit {
			p.indent--
			p.writeLine("%s", p.describe(n))
			p.indent++
			continue
		}
		p.writeLine("%s", p.describe(n))
	}
	p.indent--
	p.writeLine("}")
}

// schedule orders the nodes: fixed nodes in a depth-first walk from Start with the
// true branch first and merges after all of their forward ends, and every floating
// node right before its first user.
func (p *Printer) schedule() {
	g := p.g
	for _, param := range g.Params() {
		p.emit(param)
	}
	arrived := map[NodeID]int{}
	stack := []*Node{g.Start()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for n != nil {
			p.emitFixed(n)
			switch n.op {
			case OpIf:
				if f := g.Succ(n, 1); f != nil {
					stack = append(stack, f)
				}
				n = g.Succ(n, 0)
				continue
			case OpEnd:
				m := g.MergeOf(n)
				if m == nil {
					n = nil
					continue
				}
				p.emitPhiValues(m, g.EndIndex(m, n))
				arrived[m.id]++
				if arrived[m.id] == len(m.inputs) {
					n = m
					continue
				}
				n = nil
				continue
			case OpLoopEnd:
				if lb := g.Input(n, 0); lb != nil {
					p.emitPhiValues(lb, len(lb.inputs)+n.Index)
				}
				n = nil
				continue
			}
			n = g.Next(n)
		}
	}
	// unreachable leftovers, so that a broken graph still prints
	for _, n := range g.Nodes() {
		if n.op.IsFixed() || n.op == OpPhi {
			p.add(n)
		} else {
			p.emit(n)
		}
	}
}

func (p *Printer) emitPhiValues(merge *Node, edge int) {
	for _, phi := range p.g.Phis(merge) {
		if v := p.g.PhiValueAt(phi, edge); v != nil {
			p.emit(v)
		}
	}
}

func (p *Printer) emitFixed(n *Node) {
	for _, in := range p.g.InputNodes(n) {
		if in != nil && in.op.IsFloating() {
			p.emit(in)
		}
	}
	p.add(n)
	if n.op.IsAbstractBegin() {
		for _, phi := range p.g.Phis(n) {
			p.add(phi)
		}
		for _, u := range p.g.UsageNodes(n) {
			if u.op == OpGuard {
				p.emit(u)
			}
		}
	}
}

// emit schedules a floating node after its floating inputs. Phis are scheduled with
// their merge and their values at the ends of the predecessors.
func (p *Printer) emit(n *Node) {
	if _, done := p.number[n.id]; done || n.op.IsFixed() || n.op == OpPhi || p.visited[n.id] {
		return
	}
	p.visited[n.id] = true
	for _, in := range p.g.InputNodes(n) {
		if in != nil {
			p.emit(in)
		}
	}
	p.add(n)
}

func (p *Printer) add(n *Node) {
	if _, done := p.number[n.id]; done {
		return
	}
	p.number[n.id] = len(p.order) + 1
	p.order = append(p.order, n)
}

func (p *Printer) ref(id NodeID) string {
	if id == NoNode {
		return "_"
	}
	if k, ok := p.number[id]; ok {
		return fmt.Sprintf("%%%d", k)
	}
	return fmt.Sprintf("%%?%d", id)
}

func (p *Printer) refs(ids []NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = p.ref(id)
	}
	return strings.Join(parts, " ")
}

func (p *Printer) describe(n *Node) string {
	var b strings.Builder
	b.WriteString(p.ref(n.id))
	b.WriteString(" = ")
	b.WriteString(n.op.String())
	if d := describeData(n); d != "" {
		b.WriteString(" ")
		b.WriteString(d)
	}
	if len(n.inputs) > 0 {
		b.WriteString(" ")
		b.WriteString(p.refs(n.inputs))
	}
	switch {
	case n.op == OpIf:
		fmt.Fprintf(&b, " then %s else %s", p.ref(n.succs[0]), p.ref(n.succs[1]))
	case n.op == OpEnd:
		if m := p.g.MergeOf(n); m != nil {
			fmt.Fprintf(&b, " -> %s", p.ref(m.id))
		}
	}
	if k := n.stamp.Kind(); k != stamp.KindVoid && !n.op.IsLogic() {
		b.WriteString(" : ")
		b.WriteString(n.stamp.String())
	}
	return b.String()
}

func describeData(n *Node) string {
	switch n.op {
	case OpConstant:
		return n.Const.String()
	case OpParam:
		return fmt.Sprintf("%d %q", n.Index, n.Name)
	case OpCompare:
		if n.Unordered {
			return n.Cond.String() + " unordered"
		}
		return n.Cond.String()
	case OpSignExtend, OpZeroExtend, OpNarrow:
		return fmt.Sprintf("to %d", n.Bits)
	case OpInstanceOf:
		if n.AllowNull {
			return n.Type.String() + " or null"
		}
		return n.Type.String()
	case OpGuard, OpFixedGuard:
		s := n.Reason.String() + "/" + n.Action.String()
		if n.Negated {
			s += " negated"
		}
		return s
	case OpDeoptimize:
		return n.Reason.String() + "/" + n.Action.String()
	case OpLoadField, OpStoreField, OpFloatingReadField:
		s := n.Field.String()
		if n.Checked {
			s += " checked"
		}
		return s
	case OpLoadIndexed, OpStoreIndexed:
		s := n.Type.String()
		if n.Checked {
			s += " checked"
		}
		return s
	case OpNewInstance, OpNewArray:
		return n.Type.String()
	case OpInvoke:
		return n.Name
	case OpLoopEnd:
		return fmt.Sprintf("#%d", n.Index)
	case OpLoopBegin:
		if !n.Safepoint {
			return "nosafepoint"
		}
	case OpPi:
		return "(" + n.Declared.String() + ")"
	}
	return ""
}
