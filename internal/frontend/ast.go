package frontend

import (
	"github.com/alecthomas/participle/v2/lexer"

	"jitopt/grammar"
	jerrors "jitopt/internal/errors"
)

// expr is the operator tree of a grammar expression, with the precedence cascade
// collapsed
type expr interface {
	pos() jerrors.Position
}

type (
	binaryExpr struct {
		at   jerrors.Position
		op   string
		x, y expr
	}
	unaryExpr struct {
		at jerrors.Position
		op string
		x  expr
	}
	ternaryExpr struct {
		at                jerrors.Position
		cond, then, else_ expr
	}
	litExpr struct {
		at  jerrors.Position
		lit *grammar.Literal
	}
	identExpr struct {
		at   jerrors.Position
		name string
	}
	callExpr struct {
		at   jerrors.Position
		user bool
		name string
		args []expr
	}
	newExpr struct {
		at     jerrors.Position
		typ    string
		length expr
		dims   int
	}
	fieldExpr struct {
		at    jerrors.Position
		obj   expr
		field string
	}
	indexExpr struct {
		at       jerrors.Position
		arr, idx expr
	}
	castExpr struct {
		at  jerrors.Position
		x   expr
		typ *grammar.Type
	}
	instanceOfExpr struct {
		at  jerrors.Position
		x   expr
		typ *grammar.Type
	}
)

func (e *binaryExpr) pos() jerrors.Position     { return e.at }
func (e *unaryExpr) pos() jerrors.Position      { return e.at }
func (e *ternaryExpr) pos() jerrors.Position    { return e.at }
func (e *litExpr) pos() jerrors.Position        { return e.at }
func (e *identExpr) pos() jerrors.Position      { return e.at }
func (e *callExpr) pos() jerrors.Position       { return e.at }
func (e *newExpr) pos() jerrors.Position        { return e.at }
func (e *fieldExpr) pos() jerrors.Position      { return e.at }
func (e *indexExpr) pos() jerrors.Position      { return e.at }
func (e *castExpr) pos() jerrors.Position       { return e.at }
func (e *instanceOfExpr) pos() jerrors.Position { return e.at }

func position(p lexer.Position) jerrors.Position {
	return jerrors.Position{Filename: p.Filename, Offset: p.Offset, Line: p.Line, Column: p.Column}
}

// fold builds a left-associative chain
func fold(at lexer.Position, left expr, ops []string, rights []expr) expr {
	for i, op := range ops {
		left = &binaryExpr{at: position(at), op: op, x: left, y: rights[i]}
	}
	return left
}

func flatten(e *grammar.Expr) expr {
	if e == nil {
		return nil
	}
	c := flattenOr(e.Cond)
	if e.Then == nil {
		return c
	}
	return &ternaryExpr{at: position(e.Pos), cond: c, then: flatten(e.Then), else_: flatten(e.Else)}
}

func flattenOr(e *grammar.OrExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenAnd(r.Right))
	}
	return fold(e.Pos, flattenAnd(e.Left), ops, rs)
}

func flattenAnd(e *grammar.AndExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenBitOr(r.Right))
	}
	return fold(e.Pos, flattenBitOr(e.Left), ops, rs)
}

func flattenBitOr(e *grammar.BitOrExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenBitXor(r.Right))
	}
	return fold(e.Pos, flattenBitXor(e.Left), ops, rs)
}

func flattenBitXor(e *grammar.BitXorExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenBitAnd(r.Right))
	}
	return fold(e.Pos, flattenBitAnd(e.Left), ops, rs)
}

func flattenBitAnd(e *grammar.BitAndExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenEq(r.Right))
	}
	return fold(e.Pos, flattenEq(e.Left), ops, rs)
}

func flattenEq(e *grammar.EqExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenRel(r.Right))
	}
	return fold(e.Pos, flattenRel(e.Left), ops, rs)
}

func flattenRel(e *grammar.RelExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenShift(r.Right))
	}
	return fold(e.Pos, flattenShift(e.Left), ops, rs)
}

func flattenShift(e *grammar.ShiftExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenAdd(r.Right))
	}
	return fold(e.Pos, flattenAdd(e.Left), ops, rs)
}

func flattenAdd(e *grammar.AddExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenMul(r.Right))
	}
	return fold(e.Pos, flattenMul(e.Left), ops, rs)
}

func flattenMul(e *grammar.MulExpr) expr {
	var ops []string
	var rs []expr
	for _, r := range e.Right {
		ops, rs = append(ops, r.Op), append(rs, flattenUnary(r.Right))
	}
	return fold(e.Pos, flattenUnary(e.Left), ops, rs)
}

func flattenUnary(e *grammar.Unary) expr {
	if e.Postfix != nil {
		return flattenPostfix(e.Postfix)
	}
	x := flattenUnary(e.Operand)
	// fold "-literal" so that MIN_VALUE can be written
	if l, ok := x.(*litExpr); ok && e.Op == "-" && !l.lit.Neg && (l.lit.Int != nil || l.lit.Float != nil) {
		neg := *l.lit
		neg.Neg = true
		return &litExpr{at: position(e.Pos), lit: &neg}
	}
	return &unaryExpr{at: position(e.Pos), op: e.Op, x: x}
}

func flattenPostfix(e *grammar.Postfix) expr {
	x := flattenPrimary(e.Primary)
	for _, op := range e.Ops {
		at := position(op.Pos)
		switch {
		case op.Index != nil:
			x = &indexExpr{at: at, arr: x, idx: flatten(op.Index)}
		case op.Cast != nil:
			x = &castExpr{at: at, x: x, typ: op.Cast}
		case op.InstanceOf != nil:
			x = &instanceOfExpr{at: at, x: x, typ: op.InstanceOf}
		default:
			x = &fieldExpr{at: at, obj: x, field: op.Field}
		}
	}
	return x
}

func flattenPrimary(p *grammar.Primary) expr {
	at := position(p.Pos)
	switch {
	case p.New != nil:
		return &newExpr{at: at, typ: p.New.Type, length: flatten(p.New.Length), dims: len(p.New.Brackets)}
	case p.Call != nil:
		args := make([]expr, len(p.Call.Args))
		for i, a := range p.Call.Args {
			args[i] = flatten(a)
		}
		return &callExpr{at: at, user: p.Call.User, name: p.Call.Name, args: args}
	case p.Lit != nil:
		return &litExpr{at: at, lit: p.Lit}
	case p.Parens != nil:
		return flatten(p.Parens)
	}
	return &identExpr{at: at, name: p.Ident}
}
