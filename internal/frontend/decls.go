package frontend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"jitopt/grammar"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/types"
)

type declarer struct {
	unit *Unit
	errs jerrors.ErrorList
}

func (d *declarer) errorf(code string, pos jerrors.Position, format string, args ...any) {
	d.errs = append(d.errs, jerrors.NewError(code, fmt.Sprintf(format, args...), pos).Build())
}

func (d *declarer) declare(prog *grammar.Program) {
	var classes []*grammar.Class
	var consts []*grammar.ConstArr
	var funcs []*grammar.Function
	for _, decl := range prog.Decls {
		switch {
		case decl.Class != nil:
			classes = append(classes, decl.Class)
		case decl.Const != nil:
			consts = append(consts, decl.Const)
		case decl.Function != nil:
			funcs = append(funcs, decl.Function)
		}
	}
	declared := d.declareClasses(classes)
	for _, c := range classes {
		if t := declared[c.Name]; t != nil {
			d.declareFields(t, c)
		}
	}
	for _, c := range consts {
		d.declareConst(c)
	}
	for _, f := range funcs {
		d.declareFunction(f)
	}
}

// declareClasses registers classes once their supertypes are known. Whatever is
// left when no progress can be made refers to an unknown type or is cyclic.
func (d *declarer) declareClasses(classes []*grammar.Class) map[string]*types.Type {
	reg := d.unit.Registry
	declared := map[string]*types.Type{}
	seen := map[string]bool{}
	var pending []*grammar.Class
	for _, c := range classes {
		if seen[c.Name] {
			d.errs = append(d.errs, jerrors.DuplicateDeclaration(c.Name, position(c.Pos)))
			continue
		}
		seen[c.Name] = true
		d.unit.classes = append(d.unit.classes, c.Name)
		pending = append(pending, c)
	}
	ready := func(name string) bool { return name == "" || reg.Lookup(name) != nil }
	for len(pending) > 0 {
		var next []*grammar.Class
		for _, c := range pending {
			ok := ready(c.Extends)
			for _, i := range c.Implements {
				ok = ok && ready(i)
			}
			if !ok {
				next = append(next, c)
				continue
			}
			var super *types.Type
			if c.Extends != "" {
				super = reg.Lookup(c.Extends)
			}
			var ifaces []*types.Type
			for _, i := range c.Implements {
				ifaces = append(ifaces, reg.Lookup(i))
			}
			t, err := reg.Declare(c.Name, super, ifaces, c.Interface, c.Final)
			if err != nil {
				d.errs = append(d.errs, jerrors.InvalidHierarchy(err.Error(), position(c.Pos)))
				continue
			}
			declared[c.Name] = t
		}
		if len(next) == len(pending) {
			for _, c := range next {
				missing := c.Extends
				for _, i := range c.Implements {
					if !ready(i) {
						missing = i
					}
				}
				if seen[missing] {
					d.errs = append(d.errs, jerrors.InvalidHierarchy(
						fmt.Sprintf("cyclic inheritance involving %s", c.Name), position(c.Pos)))
				} else {
					d.errs = append(d.errs, jerrors.UnknownType(missing, position(c.Pos), d.unit.typeNames()))
				}
			}
			break
		}
		pending = next
	}
	return declared
}

func (d *declarer) declareFields(t *types.Type, c *grammar.Class) {
	for _, f := range c.Fields {
		ft, ok := d.resolve(f.Type)
		if !ok {
			continue
		}
		if ft == voidType {
			d.errs = append(d.errs, jerrors.TypeMismatch("a value type", "void", position(f.Type.Pos)))
			continue
		}
		if _, err := d.unit.Registry.AddField(t, f.Name, ft.Prim, ft.Ref, f.Final); err != nil {
			d.errs = append(d.errs, jerrors.NewError(jerrors.ErrorDuplicateDeclaration, err.Error(), position(f.Pos)).Build())
		}
	}
}

// resolve maps a written type to a .jop type
func (d *declarer) resolve(t *grammar.Type) (Type, bool) {
	return resolveType(d.unit, t, &d.errs)
}

func resolveType(u *Unit, t *grammar.Type, errs *jerrors.ErrorList) (Type, bool) {
	name := t.Name + strings.Repeat("[]", t.Dims())
	if t.Dims() == 0 {
		if name == "bool" {
			return boolType, true
		}
		if p, ok := types.BuiltinTypes[name]; ok {
			return Type{Prim: p}, true
		}
	}
	if t.Name == "void" && t.Dims() > 0 {
		*errs = append(*errs, jerrors.UnknownType(name, position(t.Pos), u.typeNames()))
		return Type{}, false
	}
	rt := u.Registry.Lookup(name)
	if rt == nil {
		*errs = append(*errs, jerrors.UnknownType(t.Name, position(t.Pos), u.typeNames()))
		return Type{}, false
	}
	return refType(rt), true
}

func (d *declarer) declareConst(c *grammar.ConstArr) {
	t, ok := d.resolve(c.Type)
	if !ok {
		return
	}
	pos := position(c.Pos)
	if !t.IsRef() || t.Ref == nil || !t.Ref.Array || !t.Ref.ElemPrim.IsInteger() {
		d.errs = append(d.errs, jerrors.TypeMismatch("an integer array type", t.String(), position(c.Type.Pos)))
		return
	}
	if _, dup := d.unit.Consts[c.Name]; dup {
		d.errs = append(d.errs, jerrors.DuplicateDeclaration(c.Name, pos))
		return
	}
	bits := t.Ref.ElemPrim.Bits()
	a := &ir.ConstArray{Name: c.Name, Type: t.Ref}
	for _, lit := range c.Values {
		v, lt, err := parseLiteral(lit)
		if err != nil {
			d.errorf(jerrors.ErrorSyntax, position(lit.Pos), "%v", err)
			return
		}
		if !lt.IsInteger() || lt.Prim.Bits() != bits {
			d.errs = append(d.errs, jerrors.TypeMismatch(t.Ref.ElemPrim.String(), lt.String(), position(lit.Pos)))
			return
		}
		a.Values = append(a.Values, v.(int64))
	}
	d.unit.Consts[c.Name] = a
}

func (d *declarer) declareFunction(g *grammar.Function) {
	f := &Function{Name: g.Name, Result: voidType, Position: position(g.Pos), decl: g}
	names := map[string]bool{}
	for _, p := range g.Params {
		t, ok := d.resolve(p.Type)
		if !ok {
			return
		}
		if names[p.Name] {
			d.errs = append(d.errs, jerrors.DuplicateDeclaration(p.Name, position(p.Pos)))
			return
		}
		names[p.Name] = true
		f.Params = append(f.Params, Param{Name: p.Name, Type: t})
	}
	if g.Result != nil {
		t, ok := d.resolve(g.Result)
		if !ok {
			return
		}
		f.Result = t
	}
	if err := d.unit.add(f); err != nil {
		d.errs = append(d.errs, jerrors.DuplicateDeclaration(g.Name, f.Position))
	}
}

// parseLiteral returns the value of a numeric or boolean literal as int64 or float64
func parseLiteral(l *grammar.Literal) (any, Type, error) {
	sign := ""
	if l.Neg {
		sign = "-"
	}
	switch {
	case l.Int != nil:
		text := *l.Int
		t := i32Type
		if strings.HasSuffix(text, "L") {
			text, t = strings.TrimSuffix(text, "L"), i64Type
		}
		v, err := parseInt(sign+text, t.Prim.Bits())
		if err != nil {
			return nil, t, err
		}
		return v, t, nil
	case l.Float != nil:
		text := *l.Float
		t := Type{Prim: types.PrimF64}
		if strings.HasSuffix(text, "f") {
			text, t = strings.TrimSuffix(text, "f"), Type{Prim: types.PrimF32}
		}
		v, err := strconv.ParseFloat(sign+text, t.Prim.Bits())
		if err != nil {
			return nil, t, fmt.Errorf("invalid float literal %s%s", sign, text)
		}
		return v, t, nil
	case l.Bool != nil:
		if *l.Bool == "true" {
			return int64(1), boolType, nil
		}
		return int64(0), boolType, nil
	}
	return nil, nullType, nil
}

// parseInt accepts decimal literals within the signed range and hexadecimal
// literals as bit patterns of the given width
func parseInt(text string, bits int) (int64, error) {
	neg := strings.HasPrefix(text, "-")
	digits := strings.TrimPrefix(text, "-")
	if strings.HasPrefix(digits, "0x") {
		u, err := strconv.ParseUint(digits[2:], 16, bits)
		if err != nil {
			return 0, fmt.Errorf("hexadecimal literal %s does not fit in %d bits", text, bits)
		}
		v := int64(u)
		if neg {
			v = -v
		}
		if bits == 32 {
			v = int64(int32(v))
		}
		return v, nil
	}
	v, err := strconv.ParseInt(text, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("integer literal %s does not fit in %d bits", text, bits)
	}
	if bits == 32 && (v < math.MinInt32 || v > math.MaxInt32) {
		return 0, fmt.Errorf("integer literal %s does not fit in 32 bits", text)
	}
	return v, nil
}
