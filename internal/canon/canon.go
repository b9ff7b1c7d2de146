// Package canon rewrites a graph into a simpler equivalent one. Every node kind has a
// local rule set driven by the stamps of its inputs; a worklist applies the rules until
// nothing changes.
package canon

import (
	"github.com/tliron/commonlog"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
)

var log = commonlog.GetLogger("jitopt.canon")

// maxRounds bounds the reseeding rounds of one run; each round must make progress
const maxRounds = 16

// Canonicalizer is the canonicalization phase
type Canonicalizer struct{}

// New returns the canonicalization phase
func New() *Canonicalizer { return &Canonicalizer{} }

func (c *Canonicalizer) Name() string { return "canonicalize" }

func (c *Canonicalizer) Description() string {
	return "Folds constants, applies algebraic identities and simplifies control flow"
}

func (c *Canonicalizer) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	n, err := Run(g, ctx.Options)
	return n > 0, err
}

// Run canonicalizes g to a fixed point and returns the number of rewrites. Running it
// again on its own result returns zero.
func Run(g *ir.Graph, opts options.Options) (int, error) {
	t := &tool{
		g:        g,
		opts:     opts,
		startMax: ir.NodeID(g.MaxID()),
		budget:   opts.CanonicalizerMaxIterations * (g.NodeCount() + 1),
	}
	remove := g.AddListener(t.listen)
	defer remove()

	for round := 0; round < maxRounds; round++ {
		before := t.changes
		for _, n := range g.Nodes() {
			t.push(n)
		}
		if err := t.drain(); err != nil {
			return t.changes, err
		}
		if removed := g.RemoveDeadFloating(); removed > 0 {
			log.Debugf("%s: removed %d unreachable floating nodes", g.Name, removed)
		}
		if t.changes == before {
			log.Debugf("%s: canonical after %d rounds, %d rewrites", g.Name, round+1, t.changes)
			return t.changes, nil
		}
	}
	return t.changes, jerrors.Verification(jerrors.ErrorIterationCap, g.Name,
		"canonicalization still changing after %d rounds", maxRounds)
}

// tool carries the state of one canonicalization run
type tool struct {
	g        *ir.Graph
	opts     options.Options
	work     []ir.NodeID
	queued   []bool
	startMax ir.NodeID
	changes  int
	pops     int
	budget   int
}

func (t *tool) push(n *ir.Node) {
	if n == nil {
		return
	}
	id := int(n.ID())
	for id >= len(t.queued) {
		t.queued = append(t.queued, false)
	}
	if !t.queued[id] {
		t.queued[id] = true
		t.work = append(t.work, n.ID())
	}
}

func (t *tool) pushUsages(n *ir.Node) {
	for _, u := range t.g.UsageNodes(n) {
		t.push(u)
	}
}

func (t *tool) listen(e ir.EventKind, n *ir.Node) {
	switch e {
	case ir.NodeAdded:
		t.push(n)
	case ir.InputsChanged:
		t.push(n)
		t.pushUsages(n)
	}
}

// changed records a rewrite of n. Removing nodes that this run created itself does
// not count, so a run over a canonical graph reports nothing.
func (t *tool) changed(n *ir.Node, what string) {
	if n.ID() < t.startMax {
		t.changes++
	}
	log.Debugf("%s: %s %s", t.g.Name, what, n)
}

func (t *tool) drain() error {
	g := t.g
	for len(t.work) > 0 {
		id := t.work[0]
		t.work = t.work[1:]
		t.queued[id] = false
		n := g.Node(id)
		if n == nil {
			continue
		}
		t.pops++
		if t.pops > t.budget {
			return jerrors.Verification(jerrors.ErrorIterationCap, n.String(),
				"canonicalizer exceeded %d worklist steps", t.budget)
		}
		t.visit(n)
	}
	return nil
}

// dead reports whether n is a floating value nothing uses
func dead(n *ir.Node) bool {
	if !n.Op().IsFloating() || n.HasUsages() {
		return false
	}
	return n.Op() != ir.OpParam && n.Op() != ir.OpGuard
}

func (t *tool) visit(n *ir.Node) {
	g := t.g
	if dead(n) {
		t.changed(n, "removed dead")
		inputs := g.InputNodes(n)
		g.KillIfDead(n)
		for _, in := range inputs {
			t.push(in)
		}
		return
	}
	if g.UpdateStamp(n) {
		t.pushUsages(n)
	}
	switch {
	case n.Op() == ir.OpGuard:
		t.simplifyGuard(n)
	case n.Op().IsFloating():
		if repl := t.canonical(n); repl != nil && repl != n {
			t.replace(n, repl)
		}
	default:
		t.simplifyFixed(n)
	}
}

// replace substitutes repl for the floating node n
func (t *tool) replace(n, repl *ir.Node) {
	t.changed(n, "replaced by "+repl.String())
	t.push(repl)
	t.pushUsages(n)
	t.g.ReplaceAtUsages(n, repl)
	if g := t.g; g.Node(n.ID()) == n {
		inputs := g.InputNodes(n)
		g.KillIfDead(n)
		for _, in := range inputs {
			t.push(in)
		}
	}
}

// canonical returns the canonical form of a floating node, or nil when it already is
func (t *tool) canonical(n *ir.Node) *ir.Node {
	if c := t.stampConstant(n); c != nil {
		return c
	}
	switch n.Op() {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpRem, ir.OpNeg, ir.OpAbs, ir.OpNot,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr, ir.OpUShr,
		ir.OpMin, ir.OpMax, ir.OpUMin, ir.OpUMax,
		ir.OpSignExtend, ir.OpZeroExtend, ir.OpNarrow:
		return t.canonicalArith(n)
	case ir.OpCompare:
		return t.canonicalCompare(n)
	case ir.OpIsNull:
		return t.canonicalIsNull(n)
	case ir.OpInstanceOf:
		return t.canonicalInstanceOf(n)
	case ir.OpIntegerTest:
		return t.canonicalIntegerTest(n)
	case ir.OpLogicNegation:
		return t.canonicalNegation(n)
	case ir.OpConditional:
		return t.canonicalConditional(n)
	case ir.OpPhi:
		return t.canonicalPhi(n)
	case ir.OpPi:
		return t.canonicalPi(n)
	case ir.OpArrayLength:
		return t.canonicalArrayLength(n)
	}
	return nil
}

// stampConstant replaces a value whose stamp admits a single value by that constant
func (t *tool) stampConstant(n *ir.Node) *ir.Node {
	switch n.Op() {
	case ir.OpConstant, ir.OpOpaque, ir.OpParam:
		return nil
	}
	if n.Op().IsLogic() || mayThrow(t.g, n) {
		return nil
	}
	g := t.g
	if s, ok := n.IntStamp(); ok && s.IsConstant() {
		return g.ConstInt(s.Bits(), s.Constant())
	}
	if s, ok := n.FloatStamp(); ok && s.IsConstant() {
		return g.ConstFloat(s.Bits(), s.Constant())
	}
	if s, ok := n.ObjectStamp(); ok && s.IsConstantNull() {
		return g.ConstNull()
	}
	return nil
}

// simplifyFixed dispatches the control flow and memory rules
func (t *tool) simplifyFixed(n *ir.Node) {
	switch n.Op() {
	case ir.OpIf:
		t.simplifyIf(n)
	case ir.OpFixedGuard:
		t.simplifyFixedGuard(n)
	case ir.OpBegin:
		t.simplifyBegin(n)
	case ir.OpMerge:
		t.simplifyMerge(n)
	case ir.OpLoopBegin:
		t.simplifyLoopBegin(n)
	case ir.OpLoadIndexed:
		t.simplifyLoadIndexed(n)
	case ir.OpLoadField:
		t.simplifyLoadField(n)
	}
}

// mayThrow reports whether n is a division whose divisor may be zero. Such a node
// raises an exception when evaluated, so its value cannot be substituted.
func mayThrow(g *ir.Graph, n *ir.Node) bool {
	if n.Op() != ir.OpDiv && n.Op() != ir.OpRem {
		return false
	}
	s, ok := g.Input(n, 1).IntStamp()
	return ok && s.Contains(0)
}
