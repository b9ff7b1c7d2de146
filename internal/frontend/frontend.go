// Package frontend turns a parsed .jop program into IR graphs, one per function.
//
// Declarations are resolved first: classes in dependency order, then fields, constant
// arrays and function signatures, so that bodies may call functions declared later.
// Each body is then built in SSA form directly: local variables live in an
// environment of graph nodes, control flow joins create phis at merges, and loops
// get phis at their header for every variable the body assigns.
//
// The builder emits only the checks the language defines beyond plain memory
// accesses: division by zero and checked casts. Null and bounds checks of field and
// array accesses are left to the lowering phase.
package frontend

import (
	"fmt"
	"slices"

	"github.com/tliron/commonlog"

	"jitopt/grammar"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

var log = commonlog.GetLogger("jitopt.frontend")

// Type is the static type of a .jop value
type Type struct {
	Prim types.Prim
	Bool bool
	Ref  *types.Type // class, interface or array; nil for the null literal
}

var (
	voidType = Type{Prim: types.PrimVoid}
	boolType = Type{Prim: types.PrimI32, Bool: true}
	i32Type  = Type{Prim: types.PrimI32}
	i64Type  = Type{Prim: types.PrimI64}
	nullType = Type{Prim: types.PrimRef}
)

func refType(t *types.Type) Type { return Type{Prim: types.PrimRef, Ref: t} }

func (t Type) String() string {
	switch {
	case t.Bool:
		return "bool"
	case t.Prim != types.PrimRef:
		return t.Prim.String()
	case t.Ref == nil:
		return "null"
	}
	return t.Ref.Name
}

func (t Type) IsRef() bool     { return t.Prim == types.PrimRef }
func (t Type) IsInteger() bool { return t.Prim.IsInteger() && !t.Bool }
func (t Type) IsNumeric() bool { return t.IsInteger() || t.Prim.IsFloat() }

// AssignableFrom reports whether a value of type s may be stored where t is expected
func (t Type) AssignableFrom(s Type) bool {
	if t.IsRef() && s.IsRef() {
		return s.Ref == nil || t.Ref.IsAssignableFrom(s.Ref)
	}
	return t == s
}

// Stamp is the stamp of a parameter or variable of type t
func (t Type) Stamp() stamp.Stamp {
	switch {
	case t.Bool:
		return stamp.Range(32, 0, 1)
	case t.IsRef() && t.Ref == nil:
		return stamp.Null()
	case t.IsRef():
		return stamp.ObjectOf(t.Ref, t.Ref.Array && t.Ref.IsLeaf(), false)
	}
	return ir.PrimStamp(t.Prim, nil)
}

// Param is a declared function parameter
type Param struct {
	Name string
	Type Type
}

// Function is a function of the program together with its graph
type Function struct {
	Name     string
	Params   []Param
	Result   Type
	Position jerrors.Position
	Graph    *ir.Graph

	decl *grammar.Function
}

func (f *Function) Signature() string {
	s := f.Name + "("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Name + ": " + p.Type.String()
	}
	s += ")"
	if f.Result != voidType {
		s += ": " + f.Result.String()
	}
	return s
}

// Unit is a built program
type Unit struct {
	Filename  string
	Registry  *types.TypeRegistry
	Functions []*Function
	Consts    map[string]*ir.ConstArray

	byName  map[string]*Function
	classes []string
}

// Function returns the function with the given name, or nil
func (u *Unit) Function(name string) *Function {
	return u.byName[name]
}

// FunctionNames lists the functions in declaration order
func (u *Unit) FunctionNames() []string {
	names := make([]string, len(u.Functions))
	for i, f := range u.Functions {
		names[i] = f.Name
	}
	return names
}

// ClassNames lists the declared classes and interfaces in declaration order
func (u *Unit) ClassNames() []string {
	return slices.Clone(u.classes)
}

// Build resolves the declarations of prog and builds a graph for every function.
// The returned list holds errors and warnings; the unit is only usable when the list
// has no errors.
func Build(filename string, prog *grammar.Program) (*Unit, jerrors.ErrorList) {
	u := &Unit{
		Filename: filename,
		Registry: types.NewTypeRegistry(),
		Consts:   map[string]*ir.ConstArray{},
		byName:   map[string]*Function{},
	}
	d := &declarer{unit: u}
	d.declare(prog)
	if d.errs.HasErrors() {
		return u, d.errs
	}
	errs := d.errs
	for _, f := range u.Functions {
		b := newBuilder(u, f)
		b.build()
		errs = append(errs, b.errs...)
	}
	log.Debugf("built %d functions of %s", len(u.Functions), filename)
	return u, errs
}

// Compile parses and builds source in one step
func Compile(filename, source string) (*Unit, jerrors.ErrorList) {
	prog, err := grammar.Parse(filename, source)
	if err != nil {
		return nil, jerrors.ErrorList{grammar.Diagnostic(err)}
	}
	return Build(filename, prog)
}

func (u *Unit) add(f *Function) error {
	if _, ok := u.byName[f.Name]; ok {
		return fmt.Errorf("duplicate function %s", f.Name)
	}
	u.byName[f.Name] = f
	u.Functions = append(u.Functions, f)
	return nil
}

// typeNames lists the names usable as types, for suggestions
func (u *Unit) typeNames() []string {
	var names []string
	for n := range types.BuiltinTypes {
		names = append(names, n)
	}
	names = append(names, "Object")
	names = append(names, u.classes...)
	slices.Sort(names)
	return names
}
