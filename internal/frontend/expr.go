package frontend

import (
	"strings"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

// val is a built expression. bad marks the stand-in for an expression that failed to
// type check, so that one mistake is reported once.
type val struct {
	n   *ir.Node
	t   Type
	bad bool
}

func (b *builder) bad() val {
	return val{n: b.g.ConstInt(32, 0), t: i32Type, bad: true}
}

func (b *builder) mismatch(want string, got val, pos jerrors.Position) val {
	if !got.bad {
		b.errs = append(b.errs, jerrors.TypeMismatch(want, got.t.String(), pos))
	}
	return b.bad()
}

var arith = map[string]ir.Op{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpDiv, "%": ir.OpRem,
	"&": ir.OpAnd, "|": ir.OpOr, "^": ir.OpXor,
	"<<": ir.OpShl, ">>": ir.OpShr, ">>>": ir.OpUShr,
}

var comparisons = map[string]cond.Condition{
	"==": cond.EQ, "!=": cond.NE, "<": cond.LT, "<=": cond.LE, ">": cond.GT, ">=": cond.GE,
}

var unsignedBuiltins = map[string]cond.Condition{
	"ult": cond.BT, "ule": cond.BE, "ugt": cond.AT, "uge": cond.AE,
}

// isLogic reports whether e is naturally a condition rather than a value
func isLogic(e expr) bool {
	switch x := e.(type) {
	case *binaryExpr:
		_, ok := comparisons[x.op]
		return ok
	case *unaryExpr:
		return x.op == "!"
	case *instanceOfExpr:
		return true
	case *callExpr:
		_, ok := unsignedBuiltins[x.name]
		return ok && !x.user
	}
	return false
}

// value builds e as a value
func (b *builder) value(e expr) val {
	if isLogic(e) {
		return val{n: b.g.Conditional(b.logic(e), b.g.ConstInt(32, 1), b.g.ConstInt(32, 0)), t: boolType}
	}
	switch x := e.(type) {
	case *binaryExpr:
		if x.op == "&&" || x.op == "||" {
			return b.shortCircuit(x)
		}
		return b.arithmetic(x)
	case *unaryExpr:
		v := b.value(x.x)
		switch {
		case v.bad:
			return v
		case x.op == "-" && v.t.IsNumeric():
			return val{n: b.g.Unary(ir.OpNeg, v.n), t: v.t}
		case x.op == "~" && v.t.IsInteger():
			return val{n: b.g.Unary(ir.OpNot, v.n), t: v.t}
		}
		return b.mismatch("an integer", v, x.at)
	case *ternaryExpr:
		return b.ternary(x)
	case *litExpr:
		return b.literal(x)
	case *identExpr:
		if slot, ok := b.lookup(x.name); ok {
			b.vars[slot].used = true
			return val{n: b.env[slot], t: b.vars[slot].typ}
		}
		if a, ok := b.u.Consts[x.name]; ok {
			return val{n: b.g.ConstArray(a), t: refType(a.Type)}
		}
		b.errs = append(b.errs, jerrors.UndefinedVariable(x.name, x.at, b.visibleNames()))
		return b.bad()
	case *callExpr:
		return b.call(x)
	case *newExpr:
		return b.allocate(x)
	case *fieldExpr:
		obj := b.value(x.obj)
		if obj.t.IsRef() && obj.t.Ref != nil && obj.t.Ref.Array && x.field == "length" {
			return val{n: b.g.ArrayLength(b.nonNull(obj)), t: i32Type}
		}
		f, ok := b.field(obj, x)
		if !ok {
			return b.bad()
		}
		load := b.g.LoadField(obj.n, f)
		b.append(load)
		return val{n: load, t: fieldType(f)}
	case *indexExpr:
		arr, idx, ok := b.indexOperands(x)
		if !ok {
			return b.bad()
		}
		load := b.g.LoadIndexed(arr.n, idx.n, arr.t.Ref)
		b.append(load)
		return val{n: load, t: elemType(arr.t.Ref)}
	case *castExpr:
		return b.cast(x)
	}
	return b.bad()
}

// logic builds e as a condition node
func (b *builder) logic(e expr) *ir.Node {
	switch x := e.(type) {
	case *binaryExpr:
		if c, ok := comparisons[x.op]; ok {
			return b.compare(c, b.value(x.x), b.value(x.y), x.at)
		}
	case *unaryExpr:
		if x.op == "!" {
			return b.g.LogicNegation(b.logic(x.x))
		}
	case *instanceOfExpr:
		v := b.value(x.x)
		t, ok := resolveType(b.u, x.typ, &b.errs)
		if !ok || v.bad {
			return b.falseLogic()
		}
		if !v.t.IsRef() || !t.IsRef() {
			b.mismatch("a reference", v, x.at)
			return b.falseLogic()
		}
		return b.g.InstanceOf(v.n, t.Ref, false)
	case *callExpr:
		if c, ok := unsignedBuiltins[x.name]; ok && !x.user {
			args, ok := b.args(x, 2)
			if !ok {
				return b.falseLogic()
			}
			if !args[0].t.IsInteger() || args[0].t != args[1].t {
				b.mismatch(args[0].t.String(), args[1], x.at)
				return b.falseLogic()
			}
			return b.g.Compare(c, args[0].n, args[1].n)
		}
	}
	v := b.value(e)
	if !v.bad && !v.t.Bool {
		b.mismatch("bool", v, e.pos())
		return b.falseLogic()
	}
	return b.g.Compare(cond.NE, v.n, b.g.ConstInt(32, 0))
}

func (b *builder) compare(c cond.Condition, x, y val, pos jerrors.Position) *ir.Node {
	if x.bad || y.bad {
		return b.falseLogic()
	}
	if x.t.IsRef() && y.t.IsRef() && (c == cond.EQ || c == cond.NE) {
		var l *ir.Node
		switch {
		case x.t == nullType && y.t == nullType:
			return b.g.Compare(c, b.g.ConstInt(32, 0), b.g.ConstInt(32, 0))
		case y.t == nullType:
			l = b.g.IsNull(x.n)
		case x.t == nullType:
			l = b.g.IsNull(y.n)
		default:
			l = b.g.CanonicalCompare(cond.EQ, x.n, y.n, false)
		}
		if c == cond.NE {
			return b.g.LogicNegation(l)
		}
		return l
	}
	ordered := c != cond.EQ && c != cond.NE
	if x.t != y.t || x.t.IsRef() || (ordered && x.t.Bool) {
		b.mismatch(x.t.String(), y, pos)
		return b.falseLogic()
	}
	return b.g.Compare(c, x.n, y.n)
}

func (b *builder) arithmetic(x *binaryExpr) val {
	op := arith[x.op]
	l, r := b.value(x.x), b.value(x.y)
	if l.bad || r.bad {
		return b.bad()
	}
	switch op {
	case ir.OpShl, ir.OpShr, ir.OpUShr:
		if !l.t.IsInteger() {
			return b.mismatch("an integer", l, x.at)
		}
		if !r.t.IsInteger() {
			return b.mismatch("an integer", r, x.at)
		}
		return val{n: b.g.Binary(op, l.n, r.n), t: l.t}
	case ir.OpAnd, ir.OpOr, ir.OpXor:
		if l.t != r.t || !(l.t.IsInteger() || l.t.Bool) {
			return b.mismatch(l.t.String(), r, x.at)
		}
		return val{n: b.g.Binary(op, l.n, r.n), t: l.t}
	}
	if l.t != r.t || !l.t.IsNumeric() {
		return b.mismatch(l.t.String(), r, x.at)
	}
	if (op == ir.OpDiv || op == ir.OpRem) && l.t.IsInteger() {
		b.divisorCheck(r.n)
	}
	return val{n: b.g.Binary(op, l.n, r.n), t: l.t}
}

// divisorCheck guards against an integer division by zero unless the divisor's final
// stamp excludes zero
func (b *builder) divisorCheck(y *ir.Node) {
	if s, ok := y.IntStamp(); ok && !s.Contains(0) && b.settled(y) {
		return
	}
	zero := b.g.Compare(cond.EQ, y, b.g.ConstInt(y.ValueBits(), 0))
	b.append(b.g.FixedGuard(zero, deopt.ArithmeticException, deopt.InvalidateReprofile, true))
}

// nonNull guards v against null and returns the value to use from then on
func (b *builder) nonNull(v val) *ir.Node {
	if s, ok := v.n.ObjectStamp(); ok && s.NonNull && b.settled(v.n) {
		return v.n
	}
	gd := b.g.FixedGuard(b.g.IsNull(v.n), deopt.NullCheck, deopt.InvalidateReprofile, true)
	b.append(gd)
	return b.g.Pi(v.n, gd, stamp.ObjectOf(nil, false, true))
}

func (b *builder) shortCircuit(x *binaryExpr) val {
	t, f := b.branch(x)
	env := b.env
	states := make([]state, 0, len(t)+len(f))
	values := make([]*ir.Node, 0, len(t)+len(f))
	for _, p := range t {
		states = append(states, state{cur: p, env: env})
		values = append(values, b.g.ConstInt(32, 1))
	}
	for _, p := range f {
		states = append(states, state{cur: p, env: env})
		values = append(values, b.g.ConstInt(32, 0))
	}
	return val{n: b.merge(states, values, boolType), t: boolType}
}

func (b *builder) ternary(x *ternaryExpr) val {
	t, f := b.branch(x.cond)
	b.mergePoints(t)
	tv := b.value(x.then)
	then := b.save()
	b.mergePoints(f)
	fv := b.value(x.else_)
	rt, ok := unify(tv.t, fv.t)
	if !ok && !tv.bad && !fv.bad {
		b.mismatch(tv.t.String(), fv, x.else_.pos())
	}
	n := b.merge([]state{then, b.save()}, []*ir.Node{tv.n, fv.n}, rt)
	return val{n: n, t: rt, bad: tv.bad || fv.bad || !ok}
}

// unify returns the type of a value that may be either a or b
func unify(a, b Type) (Type, bool) {
	switch {
	case a == b:
		return a, true
	case !a.IsRef() || !b.IsRef():
		return a, false
	case a.Ref == nil:
		return b, true
	case b.Ref == nil || a.Ref.IsAssignableFrom(b.Ref):
		return a, true
	case b.Ref.IsAssignableFrom(a.Ref):
		return b, true
	}
	for s := a.Ref.Super; s != nil; s = s.Super {
		if s.IsAssignableFrom(b.Ref) {
			return refType(s), true
		}
	}
	return a, false
}

func (b *builder) literal(x *litExpr) val {
	v, t, err := parseLiteral(x.lit)
	if err != nil {
		b.errorf(jerrors.ErrorSyntax, x.at, "%v", err)
		return b.bad()
	}
	switch {
	case t == nullType:
		return val{n: b.g.ConstNull(), t: t}
	case t.Prim.IsFloat():
		return val{n: b.g.ConstFloat(t.Prim.Bits(), v.(float64)), t: t}
	}
	return val{n: b.g.ConstInt(t.Prim.Bits(), v.(int64)), t: t}
}

func (b *builder) allocate(x *newExpr) val {
	if x.length == nil {
		t := b.u.Registry.Lookup(x.typ)
		if t == nil || x.dims > 0 {
			b.errs = append(b.errs, jerrors.UnknownType(x.typ, x.at, b.u.typeNames()))
			return b.bad()
		}
		if t.Interface || t.Abstract {
			b.errorf(jerrors.ErrorTypeMismatch, x.at, "cannot instantiate %s", t.Name)
			return b.bad()
		}
		n := b.g.NewInstance(t)
		b.append(n)
		return val{n: n, t: refType(t)}
	}
	name := x.typ + strings.Repeat("[]", x.dims+1)
	if x.typ == "bool" {
		name = "i32" + strings.Repeat("[]", x.dims+1)
	}
	t := b.u.Registry.Lookup(name)
	if t == nil {
		b.errs = append(b.errs, jerrors.UnknownType(x.typ, x.at, b.u.typeNames()))
		return b.bad()
	}
	length := b.value(x.length)
	if length.bad {
		return length
	}
	if length.t != i32Type {
		return b.mismatch("i32", length, x.length.pos())
	}
	n := b.g.NewArray(t, length.n)
	b.append(n)
	return val{n: n, t: refType(t)}
}

func (b *builder) field(obj val, x *fieldExpr) (*types.Field, bool) {
	if obj.bad {
		return nil, false
	}
	if !obj.t.IsRef() || obj.t.Ref == nil || obj.t.Ref.Array || obj.t.Ref.Interface {
		b.mismatch("a class instance", obj, x.at)
		return nil, false
	}
	f := obj.t.Ref.LookupField(x.field)
	if f == nil {
		var names []string
		for c := obj.t.Ref; c != nil; c = c.Super {
			for _, f := range c.Fields {
				names = append(names, f.Name)
			}
		}
		b.errs = append(b.errs, jerrors.FieldNotFound(obj.t.Ref.Name, x.field, x.at, names))
		return nil, false
	}
	return f, true
}

func (b *builder) indexOperands(x *indexExpr) (arr, idx val, ok bool) {
	arr = b.value(x.arr)
	idx = b.value(x.idx)
	if arr.bad || idx.bad {
		return arr, idx, false
	}
	if !arr.t.IsRef() || arr.t.Ref == nil || !arr.t.Ref.Array {
		b.mismatch("an array", arr, x.at)
		return arr, idx, false
	}
	if idx.t != i32Type {
		b.mismatch("i32", idx, x.idx.pos())
		return arr, idx, false
	}
	return arr, idx, true
}

func fieldType(f *types.Field) Type {
	return Type{Prim: f.Prim, Ref: f.RefType}
}

func elemType(t *types.Type) Type {
	return Type{Prim: t.ElemPrim, Ref: t.ElemType}
}

// cast checks x against the target type with a guard unless the static types already
// prove it. The result is a Pi that carries the checked type.
func (b *builder) cast(x *castExpr) val {
	v := b.value(x.x)
	t, ok := resolveType(b.u, x.typ, &b.errs)
	if !ok || v.bad {
		return b.bad()
	}
	if !v.t.IsRef() || !t.IsRef() {
		return b.mismatch("a reference", v, x.at)
	}
	if v.t.Ref == nil || t.Ref.IsAssignableFrom(v.t.Ref) {
		return val{n: v.n, t: t}
	}
	check := b.g.InstanceOf(v.n, t.Ref, true)
	gd := b.g.FixedGuard(check, deopt.ClassCastException, deopt.InvalidateReprofile, false)
	b.append(gd)
	return val{n: b.g.Pi(v.n, gd, stamp.ObjectOf(t.Ref, false, false)), t: t}
}
