package frontend

import (
	"slices"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
)

// Builtins lists the functions that need no declaration
var Builtins = []string{
	"abs", "i2l", "l2i", "len", "max", "min", "opaque", "sink", "u2l", "uge", "ugt", "ule",
	"ult", "umax", "umin",
}

var binaryBuiltins = map[string]ir.Op{
	"min": ir.OpMin, "max": ir.OpMax, "umin": ir.OpUMin, "umax": ir.OpUMax,
}

// args builds the arguments of a call that takes n of them
func (b *builder) args(c *callExpr, n int) ([]val, bool) {
	if len(c.args) != n {
		b.errs = append(b.errs, jerrors.InvalidArguments(c.name, n, len(c.args), c.at))
		return nil, false
	}
	vals := make([]val, n)
	ok := true
	for i, a := range c.args {
		vals[i] = b.value(a)
		ok = ok && !vals[i].bad
	}
	return vals, ok
}

func (b *builder) call(c *callExpr) val {
	if c.user || !slices.Contains(Builtins, c.name) {
		return b.invoke(c)
	}
	if op, ok := binaryBuiltins[c.name]; ok {
		args, ok := b.args(c, 2)
		if !ok {
			return b.bad()
		}
		x, y := args[0], args[1]
		unsigned := op == ir.OpUMin || op == ir.OpUMax
		if x.t != y.t || !x.t.IsNumeric() || (unsigned && !x.t.IsInteger()) {
			return b.mismatch(x.t.String(), y, c.at)
		}
		return val{n: b.g.Binary(op, x.n, y.n), t: x.t}
	}
	if c.name == "sink" {
		b.errorf(jerrors.ErrorTypeMismatch, c.at, "sink has no value and can only be used as a statement")
		return b.bad()
	}
	args, ok := b.args(c, 1)
	if !ok {
		return b.bad()
	}
	x := args[0]
	switch c.name {
	case "abs":
		if !x.t.IsNumeric() {
			return b.mismatch("a number", x, c.at)
		}
		return val{n: b.g.Unary(ir.OpAbs, x.n), t: x.t}
	case "len":
		if !x.t.IsRef() || x.t.Ref == nil || !x.t.Ref.Array {
			return b.mismatch("an array", x, c.at)
		}
		return val{n: b.g.ArrayLength(b.nonNull(x)), t: i32Type}
	case "opaque":
		return val{n: b.g.Opaque(x.n), t: x.t}
	case "i2l", "u2l":
		if x.t != i32Type {
			return b.mismatch("i32", x, c.at)
		}
		op := ir.OpSignExtend
		if c.name == "u2l" {
			op = ir.OpZeroExtend
		}
		return val{n: b.g.Convert(op, x.n, 64), t: i64Type}
	case "l2i":
		if x.t != i64Type {
			return b.mismatch("i64", x, c.at)
		}
		return val{n: b.g.Convert(ir.OpNarrow, x.n, 32), t: i32Type}
	}
	// ult and friends are conditions
	return val{n: b.g.Conditional(b.logic(c), b.g.ConstInt(32, 1), b.g.ConstInt(32, 0)), t: boolType}
}

// invoke calls a function of the program. The callee is opaque to the optimizer; its
// result only carries the declared type.
func (b *builder) invoke(c *callExpr) val {
	callee := b.u.Function(c.name)
	if callee == nil {
		b.errs = append(b.errs, jerrors.UndefinedFunction(c.name, c.at, append(b.u.FunctionNames(), Builtins...)))
		return b.bad()
	}
	args, ok := b.args(c, len(callee.Params))
	if !ok {
		return b.bad()
	}
	nodes := make([]*ir.Node, len(args))
	for i, a := range args {
		if want := callee.Params[i].Type; !want.AssignableFrom(a.t) {
			return b.mismatch(want.String(), a, c.args[i].pos())
		}
		nodes[i] = a.n
	}
	result := callee.Result.Stamp()
	if callee.Result == voidType {
		result = nil
	}
	n := b.g.Invoke(callee.Name, result, nodes...)
	b.append(n)
	return val{n: n, t: callee.Result}
}

// sink makes a value observable
func (b *builder) sink(c *callExpr) {
	args, ok := b.args(c, 1)
	if !ok {
		return
	}
	if args[0].t == voidType {
		b.mismatch("a value", args[0], c.at)
		return
	}
	b.append(b.g.BlackHole(args[0].n))
}
