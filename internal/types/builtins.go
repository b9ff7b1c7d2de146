package types

// Prim is the storage kind of a field, array element or parameter.
type Prim uint8

const (
	PrimVoid Prim = iota
	PrimI32
	PrimI64
	PrimF32
	PrimF64
	PrimRef
)

// BuiltinTypes maps the primitive type names of the test language to their kinds.
// bool is carried as a 32-bit integer restricted to [0, 1].
var BuiltinTypes = map[string]Prim{
	"void": PrimVoid,
	"bool": PrimI32,
	"i32":  PrimI32,
	"i64":  PrimI64,
	"f32":  PrimF32,
	"f64":  PrimF64,
}

// IsBuiltinType checks if a type name is a primitive type
func IsBuiltinType(typeName string) bool {
	_, ok := BuiltinTypes[typeName]
	return ok
}

// Bits returns the width of a numeric primitive, 0 otherwise.
func (p Prim) Bits() int {
	switch p {
	case PrimI32, PrimF32:
		return 32
	case PrimI64, PrimF64:
		return 64
	}
	return 0
}

func (p Prim) IsInteger() bool { return p == PrimI32 || p == PrimI64 }

func (p Prim) IsFloat() bool { return p == PrimF32 || p == PrimF64 }

func (p Prim) String() string {
	switch p {
	case PrimVoid:
		return "void"
	case PrimI32:
		return "i32"
	case PrimI64:
		return "i64"
	case PrimF32:
		return "f32"
	case PrimF64:
		return "f64"
	case PrimRef:
		return "ref"
	}
	return "?"
}
