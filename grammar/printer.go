package grammar

import (
	"fmt"
	"strings"
)

func indent(level int) string {
	return strings.Repeat("    ", level)
}

// String prints the program in canonical layout. Comments are not preserved.
func (p *Program) String() string {
	var b strings.Builder
	for i, d := range p.Decls {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(d.String())
	}
	return b.String()
}

func (d *Decl) String() string {
	switch {
	case d.Class != nil:
		return d.Class.String()
	case d.Const != nil:
		return d.Const.String() + "\n"
	case d.Function != nil:
		return d.Function.String()
	}
	return ""
}

func (c *Class) String() string {
	var b strings.Builder
	if c.Final {
		b.WriteString("final ")
	}
	if c.Interface {
		b.WriteString("interface ")
	} else {
		b.WriteString("class ")
	}
	b.WriteString(c.Name)
	if c.Extends != "" {
		b.WriteString(" extends " + c.Extends)
	}
	if len(c.Implements) > 0 {
		b.WriteString(" implements " + strings.Join(c.Implements, ", "))
	}
	if len(c.Fields) == 0 {
		b.WriteString(" {}\n")
		return b.String()
	}
	b.WriteString(" {\n")
	for _, f := range c.Fields {
		b.WriteString(indent(1) + f.String() + "\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func (f *Field) String() string {
	if f.Final {
		return fmt.Sprintf("final %s: %s;", f.Name, f.Type)
	}
	return fmt.Sprintf("%s: %s;", f.Name, f.Type)
}

func (c *ConstArr) String() string {
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = v.String()
	}
	return fmt.Sprintf("const %s: %s = [%s];", c.Name, c.Type, strings.Join(vals, ", "))
}

func (t *Type) String() string {
	return t.Name + strings.Repeat("[]", t.Dims())
}

func (f *Function) String() string {
	var b strings.Builder
	b.WriteString("fn " + f.Name + "(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(")")
	if f.Result != nil {
		b.WriteString(": " + f.Result.String())
	}
	b.WriteString(" " + f.Body.StringWithIndent(0) + "\n")
	return b.String()
}

func (p *Param) String() string {
	return fmt.Sprintf("%s: %s", p.Name, p.Type)
}

// StringWithIndent prints the block with its closing brace at level. The opening
// brace is expected to continue the current line.
func (bl *Block) StringWithIndent(level int) string {
	if len(bl.Stmts) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{\n")
	for _, s := range bl.Stmts {
		b.WriteString(indent(level+1) + s.StringWithIndent(level+1) + "\n")
	}
	b.WriteString(indent(level) + "}")
	return b.String()
}

func (s *Stmt) StringWithIndent(level int) string {
	switch {
	case s.Let != nil:
		return s.Let.String()
	case s.If != nil:
		return s.If.StringWithIndent(level)
	case s.While != nil:
		return "while (" + s.While.Cond.String() + ") " + s.While.Body.StringWithIndent(level)
	case s.Guard != nil:
		return "guard " + s.Guard.Cond.String() + " else " + deoptString(s.Guard.Reason, s.Guard.Action) + ";"
	case s.Deopt != nil:
		return "deopt " + deoptString(s.Deopt.Reason, s.Deopt.Action) + ";"
	case s.Return != nil:
		if s.Return.Value == nil {
			return "return;"
		}
		return "return " + s.Return.Value.String() + ";"
	case s.Anchor:
		return "anchor;"
	case s.Block != nil:
		return s.Block.StringWithIndent(level)
	case s.Expr != nil:
		if s.Expr.Value != nil {
			return s.Expr.Target.String() + " = " + s.Expr.Value.String() + ";"
		}
		return s.Expr.Target.String() + ";"
	}
	return ""
}

func deoptString(reason, action string) string {
	if action == "" {
		return reason
	}
	return reason + "/" + action
}

func (l *LetStmt) String() string {
	if l.Type != nil {
		return fmt.Sprintf("let %s: %s = %s;", l.Name, l.Type, l.Value)
	}
	return fmt.Sprintf("let %s = %s;", l.Name, l.Value)
}

func (i *IfStmt) StringWithIndent(level int) string {
	s := "if (" + i.Cond.String() + ") " + i.Then.StringWithIndent(level)
	switch {
	case i.Else == nil:
		return s
	case i.Else.If != nil:
		return s + " else " + i.Else.If.StringWithIndent(level)
	default:
		return s + " else " + i.Else.Block.StringWithIndent(level)
	}
}

func (e *Expr) String() string {
	if e.Then == nil {
		return e.Cond.String()
	}
	return fmt.Sprintf("%s ? %s : %s", e.Cond, e.Then, e.Else)
}

// binary prints a left operand followed by operator and right operand pairs
func binary(left fmt.Stringer, n int, op func(i int) (string, fmt.Stringer)) string {
	var b strings.Builder
	b.WriteString(left.String())
	for i := 0; i < n; i++ {
		o, r := op(i)
		b.WriteString(" " + o + " " + r.String())
	}
	return b.String()
}

func (e *OrExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *AndExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *BitOrExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *BitXorExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *BitAndExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *EqExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *RelExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *ShiftExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *AddExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (e *MulExpr) String() string {
	return binary(e.Left, len(e.Right), func(i int) (string, fmt.Stringer) { return e.Right[i].Op, e.Right[i].Right })
}

func (u *Unary) String() string {
	if u.Postfix != nil {
		return u.Postfix.String()
	}
	return u.Op + u.Operand.String()
}

func (p *Postfix) String() string {
	var b strings.Builder
	b.WriteString(p.Primary.String())
	for _, op := range p.Ops {
		switch {
		case op.Index != nil:
			b.WriteString("[" + op.Index.String() + "]")
		case op.Cast != nil:
			b.WriteString(" as " + op.Cast.String())
		case op.InstanceOf != nil:
			b.WriteString(" instanceof " + op.InstanceOf.String())
		default:
			b.WriteString("." + op.Field)
		}
	}
	return b.String()
}

func (p *Primary) String() string {
	switch {
	case p.New != nil:
		s := "new " + p.New.Type
		if p.New.Length != nil {
			s += "[" + p.New.Length.String() + "]"
		}
		return s + strings.Repeat("[]", len(p.New.Brackets))
	case p.Call != nil:
		args := make([]string, len(p.Call.Args))
		for i, a := range p.Call.Args {
			args[i] = a.String()
		}
		s := p.Call.Name + "(" + strings.Join(args, ", ") + ")"
		if p.Call.User {
			return "call " + s
		}
		return s
	case p.Lit != nil:
		return p.Lit.String()
	case p.Parens != nil:
		return "(" + p.Parens.String() + ")"
	}
	return p.Ident
}

func (l *Literal) String() string {
	s := "null"
	switch {
	case l.Float != nil:
		s = *l.Float
	case l.Int != nil:
		s = *l.Int
	case l.Bool != nil:
		s = *l.Bool
	}
	if l.Neg {
		return "-" + s
	}
	return s
}
