// Package eval executes graphs on concrete arguments. It is the oracle of the
// optimization tests: a graph and its optimized version must produce equivalent
// outcomes for every input.
//
// Fixed nodes run in control flow order. Floating nodes are evaluated on demand from
// the values of the fixed nodes and phis they depend on, so a floating value is
// recomputed whenever a loop gives its phis new values. Floating guards are checked
// when execution passes their anchor.
package eval

import (
	"errors"
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/ir"
	"jitopt/internal/types"
)

var log = commonlog.GetLogger("jitopt.eval")

// DefaultMaxSteps bounds the fixed nodes one execution may run
const DefaultMaxSteps = 1_000_000

// ErrStepLimit ends an execution that ran more than the configured number of steps
var ErrStepLimit = errors.New("step limit exceeded")

// Invoker runs an Invoke node. It returns the outcome of the callee, whose trace is
// appended to the caller's.
type Invoker func(name string, args []Value) (Outcome, error)

// Config tunes an execution
type Config struct {
	MaxSteps int
	Invoke   Invoker
}

// thrown is an exception raised while evaluating a node
type thrown struct {
	name string
}

func (t *thrown) Error() string { return t.name }

func throw(name string) error { return &thrown{name: name} }

type machine struct {
	g    *ir.Graph
	cfg  Config
	args []Value

	fixed  map[ir.NodeID]Value // results of executed fixed nodes
	phis   map[ir.NodeID]Value
	arrays map[*ir.ConstArray]*Object

	memo  map[ir.NodeID]Value // floating values for the current step
	trace []Value
	steps int
}

// Run executes g on args. The error is nil unless the graph is malformed, a check the
// graph claims to have made explicit fails anyway, or the step limit is exceeded;
// exceptions and deoptimizations are outcomes.
func Run(g *ir.Graph, args []Value, cfg Config) (Outcome, error) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	params := g.Params()
	if len(args) != len(params) {
		return Outcome{}, fmt.Errorf("%s takes %d arguments, got %d", g.Name, len(params), len(args))
	}
	m := &machine{
		g:      g,
		cfg:    cfg,
		args:   args,
		fixed:  map[ir.NodeID]Value{},
		phis:   map[ir.NodeID]Value{},
		arrays: map[*ir.ConstArray]*Object{},
	}
	o, err := m.run()
	o.Trace = m.trace
	o.Steps = m.steps
	if err != nil {
		return o, fmt.Errorf("%s: %w", g.Name, err)
	}
	log.Debugf("%s%v: %s after %d steps", g.Name, args, o, m.steps)
	return o, nil
}

func (m *machine) run() (Outcome, error) {
	g := m.g
	n := g.Start()
	for {
		m.steps++
		if m.steps > m.cfg.MaxSteps {
			return Outcome{}, ErrStepLimit
		}
		m.memo = map[ir.NodeID]Value{}

		next, out, err := m.step(n)
		if err != nil {
			var t *thrown
			if errors.As(err, &t) {
				return Outcome{Kind: Threw, Exception: t.name}, nil
			}
			return Outcome{}, fmt.Errorf("at %s: %w", n, err)
		}
		if out != nil {
			return *out, nil
		}
		if d, err := m.anchoredGuards(n); err != nil || d != nil {
			if err != nil {
				return Outcome{}, fmt.Errorf("guards at %s: %w", n, err)
			}
			return *d, nil
		}
		if next == nil {
			return Outcome{}, fmt.Errorf("control ends at %s", n)
		}
		n = next
	}
}

func deoptimized(reason deopt.Reason, action deopt.Action) *Outcome {
	return &Outcome{Kind: Deoptimized, Deopt: &Deopt{Reason: reason, Action: action}}
}

// step executes one fixed node and returns the node control continues with, or the
// outcome when execution ends here
func (m *machine) step(n *ir.Node) (*ir.Node, *Outcome, error) {
	g := m.g
	switch n.Op() {
	case ir.OpStart, ir.OpBegin, ir.OpMerge, ir.OpLoopBegin, ir.OpLoopExit, ir.OpControlFlowAnchor:
		return g.Next(n), nil, nil

	case ir.OpEnd:
		merge := g.MergeOf(n)
		if merge == nil {
			return nil, nil, fmt.Errorf("%s has no merge", n)
		}
		return merge, nil, m.enter(merge, g.EndIndex(merge, n))

	case ir.OpLoopEnd:
		lb := g.Input(n, 0)
		return lb, nil, m.enter(lb, lb.InputCount()+n.Index)

	case ir.OpIf:
		c, err := m.test(g.Input(n, 0))
		if err != nil {
			return nil, nil, err
		}
		if c {
			return g.Succ(n, 0), nil, nil
		}
		return g.Succ(n, 1), nil, nil

	case ir.OpReturn:
		if n.InputCount() == 0 || g.Input(n, 0) == nil {
			return nil, &Outcome{Kind: Returned, Value: Void}, nil
		}
		v, err := m.value(g.Input(n, 0))
		if err != nil {
			return nil, nil, err
		}
		return nil, &Outcome{Kind: Returned, Value: v}, nil

	case ir.OpDeoptimize:
		return nil, deoptimized(n.Reason, n.Action), nil

	case ir.OpFixedGuard:
		c, err := m.test(g.Input(n, 0))
		if err != nil {
			return nil, nil, err
		}
		if c == n.Negated {
			return nil, deoptimized(n.Reason, n.Action), nil
		}
		return g.Next(n), nil, nil

	case ir.OpBlackHole:
		v, err := m.value(g.Input(n, 0))
		if err != nil {
			return nil, nil, err
		}
		m.trace = append(m.trace, v)
		return g.Next(n), nil, nil

	case ir.OpLoadField, ir.OpStoreField:
		return g.Next(n), nil, m.field(n)

	case ir.OpLoadIndexed, ir.OpStoreIndexed:
		return g.Next(n), nil, m.indexed(n)

	case ir.OpNewInstance:
		m.fixed[n.ID()] = Ref(NewInstance(n.Type))
		return g.Next(n), nil, nil

	case ir.OpNewArray:
		l, err := m.value(g.Input(n, 0))
		if err != nil {
			return nil, nil, err
		}
		if l.Int < 0 {
			return nil, nil, throw("NegativeArraySizeException")
		}
		m.fixed[n.ID()] = Ref(NewArray(n.Type, int(l.Int)))
		return g.Next(n), nil, nil

	case ir.OpInvoke:
		return m.invoke(n)
	}
	return nil, nil, fmt.Errorf("cannot execute %s", n)
}

// enter moves control into merge through edge i and gives its phis their values for
// that edge, all read before any is written
func (m *machine) enter(merge *ir.Node, i int) error {
	if i < 0 {
		return fmt.Errorf("%s entered through an unknown edge", merge)
	}
	phis := m.g.Phis(merge)
	vals := make([]Value, len(phis))
	for k, phi := range phis {
		v, err := m.value(m.g.PhiValueAt(phi, i))
		if err != nil {
			return err
		}
		vals[k] = v
	}
	for k, phi := range phis {
		m.phis[phi.ID()] = vals[k]
	}
	return nil
}

// anchoredGuards checks the floating guards anchored at n
func (m *machine) anchoredGuards(n *ir.Node) (*Outcome, error) {
	g := m.g
	for _, u := range g.UsageNodes(n) {
		if u.Op() != ir.OpGuard || g.Input(u, 1) != n {
			continue
		}
		m.memo = map[ir.NodeID]Value{}
		c, err := m.test(g.Input(u, 0))
		if err != nil {
			var t *thrown
			if errors.As(err, &t) {
				return &Outcome{Kind: Threw, Exception: t.name}, nil
			}
			return nil, err
		}
		if c == u.Negated {
			return deoptimized(u.Reason, u.Action), nil
		}
	}
	return nil, nil
}

func (m *machine) field(n *ir.Node) error {
	g := m.g
	obj, err := m.value(g.Input(n, 0))
	if err != nil {
		return err
	}
	if obj.IsNull() {
		if n.Checked {
			return fmt.Errorf("%s of null after its explicit null check", n)
		}
		return throw(deopt.NullCheck.Exception())
	}
	if n.Op() == ir.OpLoadField {
		m.fixed[n.ID()] = obj.Ref.Field(n.Field)
		return nil
	}
	v, err := m.value(g.Input(n, 1))
	if err != nil {
		return err
	}
	obj.Ref.Fields[n.Field] = v
	return nil
}

func (m *machine) indexed(n *ir.Node) error {
	g := m.g
	arr, err := m.value(g.Input(n, 0))
	if err != nil {
		return err
	}
	idx, err := m.value(g.Input(n, 1))
	if err != nil {
		return err
	}
	if arr.IsNull() {
		if n.Checked {
			return fmt.Errorf("%s of null after its explicit null check", n)
		}
		return throw(deopt.NullCheck.Exception())
	}
	elems := arr.Ref.Elems
	if idx.Int < 0 || idx.Int >= int64(len(elems)) {
		if n.Checked {
			return fmt.Errorf("%s index %d out of bounds after its explicit bounds check", n, idx.Int)
		}
		return throw(deopt.BoundsCheck.Exception())
	}
	if n.Op() == ir.OpLoadIndexed {
		m.fixed[n.ID()] = elems[idx.Int]
		return nil
	}
	v, err := m.value(g.Input(n, 2))
	if err != nil {
		return err
	}
	elems[idx.Int] = v
	return nil
}

func (m *machine) invoke(n *ir.Node) (*ir.Node, *Outcome, error) {
	g := m.g
	if m.cfg.Invoke == nil {
		return nil, nil, fmt.Errorf("no invoker for %s", n.Name)
	}
	args := make([]Value, n.InputCount())
	for i := range args {
		v, err := m.value(g.Input(n, i))
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	o, err := m.cfg.Invoke(n.Name, args)
	if err != nil {
		return nil, nil, fmt.Errorf("call %s: %w", n.Name, err)
	}
	m.trace = append(m.trace, o.Trace...)
	switch o.Kind {
	case Threw:
		return nil, nil, throw(o.Exception)
	case Deoptimized:
		o.Trace = nil
		return nil, &o, nil
	}
	m.fixed[n.ID()] = o.Value
	return g.Next(n), nil, nil
}

// test evaluates a logic node
func (m *machine) test(n *ir.Node) (bool, error) {
	v, err := m.value(n)
	if err != nil {
		return false, err
	}
	return v.Int != 0, nil
}

// value evaluates a node. Logic nodes evaluate to Bool.
func (m *machine) value(n *ir.Node) (Value, error) {
	if n == nil {
		return Void, errors.New("missing input")
	}
	if n.Op().IsFixed() {
		v, ok := m.fixed[n.ID()]
		if !ok {
			return Void, fmt.Errorf("%s used before it ran", n)
		}
		return v, nil
	}
	if v, ok := m.memo[n.ID()]; ok {
		return v, nil
	}
	v, err := m.floating(n)
	if err != nil {
		return Void, err
	}
	m.memo[n.ID()] = v
	return v, nil
}

func (m *machine) floating(n *ir.Node) (Value, error) {
	g := m.g
	in := func(i int) (Value, error) { return m.value(g.Input(n, i)) }

	switch op := n.Op(); {
	case op == ir.OpConstant:
		return m.constant(n.Const), nil

	case op == ir.OpParam:
		return m.args[n.Index], nil

	case op == ir.OpPhi:
		v, ok := m.phis[n.ID()]
		if !ok {
			return Void, fmt.Errorf("%s read before its merge ran", n)
		}
		return v, nil

	case op == ir.OpPi, op == ir.OpOpaque:
		return in(0)

	case op.IsBinary():
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		y, err := in(1)
		if err != nil {
			return Void, err
		}
		return binary(op, n.ValueBits(), x, y)

	case op.IsUnary():
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		if x.Kind == KindFloat {
			return Float(x.Bits, ir.FoldFloatUnary(op, x.Float)), nil
		}
		return Int(x.Bits, ir.FoldIntUnary(op, x.Bits, x.Int)), nil

	case op == ir.OpSignExtend, op == ir.OpZeroExtend, op == ir.OpNarrow:
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		return Int(n.Bits, ir.FoldConvert(op, x.Bits, n.Bits, x.Int)), nil

	case op == ir.OpCompare:
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		y, err := in(1)
		if err != nil {
			return Void, err
		}
		return Bool(compare(n.Cond, n.Unordered, x, y)), nil

	case op == ir.OpIsNull:
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		return Bool(x.IsNull()), nil

	case op == ir.OpInstanceOf:
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		if x.IsNull() {
			return Bool(n.AllowNull), nil
		}
		return Bool(n.Type.IsAssignableFrom(x.Ref.Type)), nil

	case op == ir.OpIntegerTest:
		x, err := in(0)
		if err != nil {
			return Void, err
		}
		y, err := in(1)
		if err != nil {
			return Void, err
		}
		return Bool(x.Int&y.Int == 0), nil

	case op == ir.OpLogicNegation:
		c, err := m.test(g.Input(n, 0))
		if err != nil {
			return Void, err
		}
		return Bool(!c), nil

	case op == ir.OpConditional:
		c, err := m.test(g.Input(n, 0))
		if err != nil {
			return Void, err
		}
		if c {
			return in(1)
		}
		return in(2)

	case op == ir.OpArrayLength:
		a, err := in(0)
		if err != nil {
			return Void, err
		}
		if a.IsNull() {
			return Void, fmt.Errorf("%s of null", n)
		}
		return Int(32, int64(len(a.Ref.Elems))), nil

	case op == ir.OpFloatingReadField:
		o, err := in(0)
		if err != nil {
			return Void, err
		}
		if o.IsNull() {
			return Void, fmt.Errorf("%s of null", n)
		}
		return o.Ref.Field(n.Field), nil

	case op == ir.OpGuard:
		// a guard used as a Pi anchor has no value of its own
		return Void, nil
	}
	return Void, fmt.Errorf("cannot evaluate %s", n)
}

func (m *machine) constant(c ir.Constant) Value {
	switch c.Kind {
	case ir.ConstInt:
		return Int(c.Bits, c.Int)
	case ir.ConstFloat:
		return Float(c.Bits, c.Float())
	case ir.ConstNull:
		return Null()
	case ir.ConstArrayRef:
		// a constant array is one object for the whole execution
		if o, ok := m.arrays[c.Array]; ok {
			return Ref(o)
		}
		o := &Object{Type: c.Array.Type, Elems: make([]Value, len(c.Array.Values))}
		for i := range o.Elems {
			e, _ := c.Array.Element(i)
			o.Elems[i] = m.constant(e)
		}
		m.arrays[c.Array] = o
		return Ref(o)
	}
	return Void
}

func binary(op ir.Op, bits int, x, y Value) (Value, error) {
	if x.Kind == KindFloat {
		r, ok := ir.FoldFloat(op, x.Bits, x.Float, y.Float)
		if !ok {
			return Void, fmt.Errorf("%s is not a float operation", op)
		}
		return Float(x.Bits, r), nil
	}
	if bits == 0 {
		bits = x.Bits
	}
	r, ok := ir.FoldInt(op, bits, x.Int, y.Int)
	if !ok {
		if op == ir.OpDiv || op == ir.OpRem {
			return Void, throw(deopt.ArithmeticException.Exception())
		}
		return Void, fmt.Errorf("%s is not an integer operation", op)
	}
	return Int(bits, r), nil
}

func compare(c cond.Condition, unordered bool, x, y Value) bool {
	switch x.Kind {
	case KindFloat:
		return ir.FoldCompareFloat(c, unordered, x.Float, y.Float)
	case KindRef:
		return x.Ref == y.Ref
	}
	return ir.FoldCompareInt(c, x.Bits, x.Int, y.Int)
}

// Args converts Go values to arguments: int32, int64, float32, float64, nil for null,
// and *Object
func Args(vals ...any) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case int32:
			out[i] = Int(32, int64(v))
		case int:
			out[i] = Int(32, int64(v))
		case int64:
			out[i] = Int(64, v)
		case float32:
			out[i] = Float(32, float64(v))
		case float64:
			out[i] = Float(64, v)
		case bool:
			out[i] = Bool(v)
		case *Object:
			out[i] = Ref(v)
		case nil:
			out[i] = Null()
		default:
			panic(fmt.Sprintf("unsupported argument %T", v))
		}
	}
	return out
}

// ArrayOf builds an integer array of t from values
func ArrayOf(t *types.Type, vals ...int64) *Object {
	o := NewArray(t, len(vals))
	for i, v := range vals {
		o.Elems[i] = Int(t.ElemPrim.Bits(), v)
	}
	return o
}

// Float64s lists special float values tests should cover
var Float64s = []float64{0, math.Copysign(0, -1), 1, -1, math.Inf(1), math.Inf(-1), math.NaN(),
	math.MaxFloat64, math.SmallestNonzeroFloat64}
