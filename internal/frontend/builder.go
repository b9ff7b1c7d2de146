package frontend

import (
	"fmt"
	"slices"

	"jitopt/grammar"
	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
)

type variable struct {
	name string
	typ  Type
	pos  jerrors.Position
	used bool
	warn bool
}

// state is an open control point together with the variable values that hold there
type state struct {
	cur *ir.Node
	env []*ir.Node
}

type builder struct {
	u *Unit
	f *Function
	g *ir.Graph

	// cur is the fixed node the next statement is appended to; nil after return or deopt
	cur    *ir.Node
	vars   []*variable
	env    []*ir.Node
	scopes []map[string]int
	errs   jerrors.ErrorList

	// open holds the loop header phis whose back edge inputs are not built yet. Their
	// stamps only describe the first iteration.
	open map[*ir.Node]bool
}

func newBuilder(u *Unit, f *Function) *builder {
	g := ir.NewGraph(f.Name, u.Registry)
	f.Graph = g
	return &builder{u: u, f: f, g: g, cur: g.Start(), open: map[*ir.Node]bool{}}
}

func (b *builder) build() {
	b.push()
	for i, p := range b.f.Params {
		n := b.g.Param(i, p.Name, p.Type.Stamp())
		b.declare(p.Name, p.Type, n, b.f.Position, false)
	}
	b.block(b.f.decl.Body.Stmts)
	b.pop()
	if b.cur == nil {
		return
	}
	if b.f.Result != voidType {
		b.errs = append(b.errs, jerrors.MissingReturn(b.f.Name, b.f.Result.String(), b.f.Position))
		return
	}
	b.terminate(b.g.Return(nil))
}

func (b *builder) errorf(code string, pos jerrors.Position, format string, args ...any) {
	b.errs = append(b.errs, jerrors.NewError(code, fmt.Sprintf(format, args...), pos).Build())
}

// append links the fixed node n after the current one
func (b *builder) append(n *ir.Node) {
	b.g.SetNext(b.cur, n)
	b.cur = n
}

// terminate ends the current path with n
func (b *builder) terminate(n *ir.Node) {
	b.g.SetNext(b.cur, n)
	b.cur = nil
}

// Scopes

func (b *builder) push() { b.scopes = append(b.scopes, map[string]int{}) }

func (b *builder) pop() {
	top := b.scopes[len(b.scopes)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	for _, i := range top {
		if v := b.vars[i]; v.warn && !v.used {
			b.errs = append(b.errs, jerrors.UnusedVariable(v.name, v.pos))
		}
		if i < len(b.env) {
			b.env[i] = nil
		}
	}
}

func (b *builder) declare(name string, t Type, value *ir.Node, pos jerrors.Position, warn bool) {
	top := b.scopes[len(b.scopes)-1]
	if _, dup := top[name]; dup {
		b.errs = append(b.errs, jerrors.DuplicateDeclaration(name, pos))
		return
	}
	top[name] = len(b.vars)
	b.vars = append(b.vars, &variable{name: name, typ: t, pos: pos, warn: warn && name != "_"})
	for len(b.env) < len(b.vars) {
		b.env = append(b.env, nil)
	}
	b.env[len(b.vars)-1] = value
}

func (b *builder) lookup(name string) (int, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if slot, ok := b.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (b *builder) visibleNames() []string {
	var names []string
	for _, s := range b.scopes {
		for n := range s {
			names = append(names, n)
		}
	}
	for n := range b.u.Consts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (b *builder) save() state {
	return state{cur: b.cur, env: slices.Clone(b.env)}
}

func (b *builder) restore(s state) {
	b.cur = s.cur
	b.env = slices.Clone(s.env)
}

// merge joins the live states and makes the result current. Variables with different
// values get a phi; when values is given it holds one value per state and the phi
// that joins them is returned.
func (b *builder) merge(states []state, values []*ir.Node, t Type) *ir.Node {
	var live []state
	var vals []*ir.Node
	for i, s := range states {
		if s.cur == nil {
			continue
		}
		live = append(live, s)
		if values != nil {
			vals = append(vals, values[i])
		}
	}
	switch len(live) {
	case 0:
		b.cur = nil
		return nil
	case 1:
		b.restore(live[0])
		if vals != nil {
			return vals[0]
		}
		return nil
	}
	ends := make([]*ir.Node, len(live))
	for i, s := range live {
		ends[i] = b.g.End()
		b.g.SetNext(s.cur, ends[i])
	}
	m := b.g.Merge(ends...)
	b.cur = m
	b.env = make([]*ir.Node, len(b.vars))
	for slot := range b.env {
		in := make([]*ir.Node, len(live))
		for i, s := range live {
			if slot < len(s.env) {
				in[i] = s.env[slot]
			}
		}
		b.env[slot] = b.phi(m, b.vars[slot].typ, in)
	}
	if vals == nil {
		return nil
	}
	return b.phi(m, t, vals)
}

// phi joins values at m, reusing the value when all agree
func (b *builder) phi(m *ir.Node, t Type, values []*ir.Node) *ir.Node {
	if slices.Contains(values, nil) {
		return nil
	}
	same := true
	for _, v := range values[1:] {
		same = same && v == values[0]
	}
	if same {
		return values[0]
	}
	return b.g.Phi(m, t.Stamp(), values...)
}

// mergePoints joins control points reached with the current variable values
func (b *builder) mergePoints(points []*ir.Node) {
	env := b.env
	states := make([]state, len(points))
	for i, p := range points {
		states[i] = state{cur: p, env: env}
	}
	b.merge(states, nil, voidType)
}

// Statements

func (b *builder) block(stmts []*grammar.Stmt) {
	for _, s := range stmts {
		if b.cur == nil {
			b.errs = append(b.errs, jerrors.UnreachableCode(position(s.Pos)))
			return
		}
		b.stmt(s)
	}
}

func (b *builder) stmt(s *grammar.Stmt) {
	switch {
	case s.Let != nil:
		b.let(s.Let)
	case s.If != nil:
		b.ifStmt(s.If)
	case s.While != nil:
		b.while(s.While)
	case s.Guard != nil:
		b.guard(s.Guard)
	case s.Deopt != nil:
		reason, action := b.deoptSpec(s.Deopt.Reason, s.Deopt.Action, position(s.Deopt.Pos))
		b.terminate(b.g.Deoptimize(reason, action))
	case s.Return != nil:
		b.ret(s.Return)
	case s.Anchor:
		b.append(b.g.ControlFlowAnchor())
	case s.Block != nil:
		b.push()
		b.block(s.Block.Stmts)
		b.pop()
	case s.Expr != nil:
		b.exprStmt(s.Expr)
	}
}

func (b *builder) let(s *grammar.LetStmt) {
	pos := position(s.Pos)
	v := b.value(flatten(s.Value))
	t := v.t
	if s.Type != nil {
		declared, ok := resolveType(b.u, s.Type, &b.errs)
		if !ok {
			return
		}
		if !v.bad && !declared.AssignableFrom(v.t) {
			b.errs = append(b.errs, jerrors.TypeMismatch(declared.String(), v.t.String(), pos))
		}
		t = declared
	} else if t == voidType || t == nullType {
		b.errs = append(b.errs, jerrors.TypeMismatch("a typed value", t.String(), position(s.Value.Pos)))
		return
	}
	b.declare(s.Name, t, v.n, pos, true)
}

func (b *builder) ifStmt(s *grammar.IfStmt) {
	t, f := b.branch(flatten(s.Cond))
	before := slices.Clone(b.env)

	b.mergePoints(t)
	b.push()
	b.block(s.Then.Stmts)
	b.pop()
	then := b.save()

	b.env = before
	b.mergePoints(f)
	if s.Else != nil {
		if s.Else.If != nil {
			b.ifStmt(s.Else.If)
		} else {
			b.push()
			b.block(s.Else.Block.Stmts)
			b.pop()
		}
	}
	b.merge([]state{then, b.save()}, nil, voidType)
}

// while builds a loop whose header holds a phi for every visible variable the body
// may assign. The condition is evaluated at the header; each way out of the loop
// passes a LoopExit.
func (b *builder) while(s *grammar.WhileStmt) {
	entry := b.g.End()
	b.terminate(entry)
	lb := b.g.LoopBegin(entry)
	b.cur = lb

	phis := map[int]*ir.Node{}
	for _, name := range assigned(s.Body.Stmts) {
		if slot, ok := b.lookup(name); ok && b.env[slot] != nil {
			phis[slot] = b.g.Phi(lb, b.vars[slot].typ.Stamp(), b.env[slot])
			b.env[slot] = phis[slot]
			b.open[phis[slot]] = true
		}
	}
	header := slices.Clone(b.env)

	t, f := b.branch(flatten(s.Cond))
	b.mergePoints(t)
	b.push()
	b.block(s.Body.Stmts)
	b.pop()
	if b.cur != nil {
		b.terminate(b.g.LoopEnd(lb))
		for _, slot := range sortedKeys(phis) {
			b.g.AppendInput(phis[slot], b.env[slot])
		}
	} else {
		log.Debugf("loop at %s never repeats", position(s.Pos))
	}
	for _, phi := range phis {
		delete(b.open, phi)
	}

	exits := make([]state, len(f))
	for i, p := range f {
		lx := b.g.LoopExit(lb)
		b.g.SetNext(p, lx)
		exits[i] = state{cur: lx, env: header}
	}
	b.merge(exits, nil, voidType)
}

// settled reports whether the stamp of n is final. It is not while n depends on a
// loop phi that is still missing its back edge values.
func (b *builder) settled(n *ir.Node) bool {
	if len(b.open) == 0 {
		return true
	}
	seen := map[*ir.Node]bool{}
	work := []*ir.Node{n}
	for len(work) > 0 {
		x := work[len(work)-1]
		work = work[:len(work)-1]
		if x == nil || seen[x] {
			continue
		}
		seen[x] = true
		if b.open[x] {
			return false
		}
		if x.Op().IsFloating() {
			work = append(work, b.g.InputNodes(x)...)
		}
	}
	return true
}

func sortedKeys(m map[int]*ir.Node) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// assigned lists the names of variables assigned anywhere in stmts
func assigned(stmts []*grammar.Stmt) []string {
	names := map[string]bool{}
	var walk func([]*grammar.Stmt)
	walk = func(stmts []*grammar.Stmt) {
		for _, s := range stmts {
			switch {
			case s.Expr != nil && s.Expr.Value != nil:
				if id, ok := flatten(s.Expr.Target).(*identExpr); ok {
					names[id.name] = true
				}
			case s.If != nil:
				for is := s.If; is != nil; {
					walk(is.Then.Stmts)
					if is.Else == nil {
						break
					}
					if is.Else.Block != nil {
						walk(is.Else.Block.Stmts)
					}
					is = is.Else.If
				}
			case s.While != nil:
				walk(s.While.Body.Stmts)
			case s.Block != nil:
				walk(s.Block.Stmts)
			}
		}
	}
	walk(stmts)
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	slices.Sort(sorted)
	return sorted
}

func (b *builder) deoptSpec(reasonName, actionName string, pos jerrors.Position) (deopt.Reason, deopt.Action) {
	reason, err := deopt.ParseReason(reasonName)
	if err != nil {
		b.errs = append(b.errs, jerrors.UnknownDeopt("reason", reasonName, pos, deopt.Reasons()))
	}
	action := deopt.InvalidateReprofile
	if actionName != "" {
		if action, err = deopt.ParseAction(actionName); err != nil {
			b.errs = append(b.errs, jerrors.UnknownDeopt("action", actionName, pos, deopt.Actions()))
		}
	}
	return reason, action
}

// guard emits one fixed guard per conjunct of the condition
func (b *builder) guard(s *grammar.GuardStmt) {
	reason, action := b.deoptSpec(s.Reason, s.Action, position(s.Pos))
	var conjuncts func(expr) []expr
	conjuncts = func(e expr) []expr {
		if be, ok := e.(*binaryExpr); ok && be.op == "&&" {
			return append(conjuncts(be.x), conjuncts(be.y)...)
		}
		return []expr{e}
	}
	for _, c := range conjuncts(flatten(s.Cond)) {
		b.append(b.g.FixedGuard(b.logic(c), reason, action, false))
	}
}

func (b *builder) ret(s *grammar.ReturnStmt) {
	pos := position(s.Pos)
	if s.Value == nil {
		if b.f.Result != voidType {
			b.errs = append(b.errs, jerrors.TypeMismatch(b.f.Result.String(), "void", pos))
		}
		b.terminate(b.g.Return(nil))
		return
	}
	v := b.value(flatten(s.Value))
	if !v.bad && (b.f.Result == voidType || !b.f.Result.AssignableFrom(v.t)) {
		b.errs = append(b.errs, jerrors.TypeMismatch(b.f.Result.String(), v.t.String(), pos))
	}
	b.terminate(b.g.Return(v.n))
}

func (b *builder) exprStmt(s *grammar.ExprStmt) {
	target := flatten(s.Target)
	if s.Value == nil {
		if c, ok := target.(*callExpr); ok && c.name == "sink" && !c.user {
			b.sink(c)
			return
		}
		b.value(target)
		return
	}
	switch t := target.(type) {
	case *identExpr:
		slot, ok := b.lookup(t.name)
		if !ok {
			b.errs = append(b.errs, jerrors.UndefinedVariable(t.name, t.at, b.visibleNames()))
			return
		}
		v := b.value(flatten(s.Value))
		if vt := b.vars[slot].typ; !v.bad && !vt.AssignableFrom(v.t) {
			b.errs = append(b.errs, jerrors.TypeMismatch(vt.String(), v.t.String(), position(s.Value.Pos)))
		}
		b.env[slot] = v.n
	case *fieldExpr:
		obj := b.value(t.obj)
		f, ok := b.field(obj, t)
		if !ok {
			return
		}
		v := b.value(flatten(s.Value))
		b.checkStore(fieldType(f), v, position(s.Value.Pos))
		b.append(b.g.StoreField(obj.n, f, v.n))
	case *indexExpr:
		arr, idx, ok := b.indexOperands(t)
		if !ok {
			return
		}
		v := b.value(flatten(s.Value))
		b.checkStore(elemType(arr.t.Ref), v, position(s.Value.Pos))
		b.append(b.g.StoreIndexed(arr.n, idx.n, v.n, arr.t.Ref))
	default:
		b.errorf(jerrors.ErrorTypeMismatch, target.pos(), "cannot assign to this expression")
	}
}

func (b *builder) checkStore(want Type, v val, pos jerrors.Position) {
	if !v.bad && !want.AssignableFrom(v.t) {
		b.errs = append(b.errs, jerrors.TypeMismatch(want.String(), v.t.String(), pos))
	}
}

// branch evaluates a condition as control flow. It returns the Begins reached when
// the condition holds and when it does not; the current path is consumed.
func (b *builder) branch(e expr) (t, f []*ir.Node) {
	switch x := e.(type) {
	case *unaryExpr:
		if x.op == "!" {
			f, t = b.branch(x.x)
			return t, f
		}
	case *binaryExpr:
		switch x.op {
		case "&&":
			ta, fa := b.branch(x.x)
			b.mergePoints(ta)
			tb, fb := b.branch(x.y)
			return tb, append(fa, fb...)
		case "||":
			ta, fa := b.branch(x.x)
			b.mergePoints(fa)
			tb, fb := b.branch(x.y)
			return append(ta, tb...), fb
		}
	}
	ifn, tb, fb := b.g.If(b.logic(e))
	b.terminate(ifn)
	return []*ir.Node{tb}, []*ir.Node{fb}
}

// falseLogic stands in for a condition that failed to type check
func (b *builder) falseLogic() *ir.Node {
	zero := b.g.ConstInt(32, 0)
	return b.g.Compare(cond.NE, zero, zero)
}
