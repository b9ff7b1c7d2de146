package eval

import (
	"fmt"
	"math"
	"strings"

	"jitopt/internal/ir"
	"jitopt/internal/types"
)

// ValueKind tells which field of a Value is meaningful
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindInt
	KindFloat
	KindRef // Ref is nil for null
)

// Value is a concrete value of the evaluated program. Integers are held sign-extended
// from Bits.
type Value struct {
	Kind  ValueKind
	Bits  int
	Int   int64
	Float float64
	Ref   *Object
}

// Object is an instance or an array
type Object struct {
	Type   *types.Type
	Fields map[*types.Field]Value
	Elems  []Value
}

var Void = Value{}

func Int(bits int, v int64) Value {
	return Value{Kind: KindInt, Bits: bits, Int: ir.FoldConvert(ir.OpNarrow, 64, bits, v)}
}

func Float(bits int, v float64) Value {
	return Value{Kind: KindFloat, Bits: bits, Float: ir.RoundFloat(bits, v)}
}

func Null() Value { return Value{Kind: KindRef} }

func Ref(o *Object) Value { return Value{Kind: KindRef, Ref: o} }

// Bool is the 32-bit 0 or 1
func Bool(b bool) Value {
	if b {
		return Int(32, 1)
	}
	return Int(32, 0)
}

// IsNull reports whether v is the null reference
func (v Value) IsNull() bool { return v.Kind == KindRef && v.Ref == nil }

// Zero returns the default value of a field or element of kind p
func Zero(p types.Prim) Value {
	switch {
	case p.IsInteger():
		return Int(p.Bits(), 0)
	case p.IsFloat():
		return Float(p.Bits(), 0)
	case p == types.PrimRef:
		return Null()
	}
	return Void
}

// NewArray allocates an array of t with default elements
func NewArray(t *types.Type, length int) *Object {
	o := &Object{Type: t, Elems: make([]Value, length)}
	for i := range o.Elems {
		o.Elems[i] = Zero(t.ElemPrim)
	}
	return o
}

// NewInstance allocates an instance of t with default fields
func NewInstance(t *types.Type) *Object {
	return &Object{Type: t, Fields: map[*types.Field]Value{}}
}

// Field reads f, which defaults to zero until stored
func (o *Object) Field(f *types.Field) Value {
	if v, ok := o.Fields[f]; ok {
		return v
	}
	return Zero(f.Prim)
}

// Same compares two values: numbers by bit pattern, so NaN equals NaN and 0.0 differs
// from -0.0, and references by identity
func Same(a, b Value) bool {
	if a.Kind != b.Kind || a.Bits != b.Bits {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return math.Float64bits(a.Float) == math.Float64bits(b.Float)
	case KindRef:
		return a.Ref == b.Ref
	}
	return true
}

// EquivalentValues is Same, except that objects of two different runs compare by type and
// contents
func EquivalentValues(a, b Value) bool {
	if a.Kind != KindRef || b.Kind != KindRef || a.Ref == nil || b.Ref == nil {
		return Same(a, b)
	}
	x, y := a.Ref, b.Ref
	if x.Type != y.Type || len(x.Elems) != len(y.Elems) || len(x.Fields) != len(y.Fields) {
		return false
	}
	for i := range x.Elems {
		if !shallowSame(x.Elems[i], y.Elems[i]) {
			return false
		}
	}
	for f, v := range x.Fields {
		w, ok := y.Fields[f]
		if !ok || !shallowSame(v, w) {
			return false
		}
	}
	return true
}

// shallowSame does not follow nested references, which may form cycles
func shallowSame(a, b Value) bool {
	if a.Kind == KindRef && b.Kind == KindRef {
		return a.IsNull() == b.IsNull()
	}
	return Same(a, b)
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("i%d %d", v.Bits, v.Int)
	case KindFloat:
		return fmt.Sprintf("f%d %v", v.Bits, v.Float)
	case KindRef:
		if v.Ref == nil {
			return "null"
		}
		if v.Ref.Type.Array {
			parts := make([]string, len(v.Ref.Elems))
			for i, e := range v.Ref.Elems {
				parts[i] = e.String()
			}
			return v.Ref.Type.Name + "{" + strings.Join(parts, ", ") + "}"
		}
		return v.Ref.Type.Name + "@" + fmt.Sprintf("%p", v.Ref)
	}
	return "void"
}
