// Package stamp implements the abstract value lattice attached to every IR node.
//
// Meet is the least upper bound (union of the possible values, used at merges) and
// Join is the greatest lower bound (intersection of facts that hold simultaneously).
// Every constructor normalizes its input; contradictory bounds produce the canonical
// empty stamp of the kind instead of failing.
package stamp

import "fmt"

// Kind identifies the family of a stamp
type Kind uint8

const (
	KindIllegal Kind = iota
	KindVoid
	KindInteger
	KindFloat
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindObject:
		return "object"
	}
	return "illegal"
}

// Stamp is an immutable description of the values a node can produce
type Stamp interface {
	Kind() Kind
	// IsEmpty reports that no value is possible, e.g. on a path that cannot execute.
	IsEmpty() bool
	IsUnrestricted() bool
	Meet(other Stamp) Stamp
	Join(other Stamp) Stamp
	Equals(other Stamp) bool
	// Empty returns the empty stamp of the same family and width.
	Empty() Stamp
	Unrestricted() Stamp
	String() string
}

// IsCompatible reports whether a and b can be combined by Meet and Join
func IsCompatible(a, b Stamp) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case IntegerStamp:
		return x.bits == b.(IntegerStamp).bits
	case FloatStamp:
		return x.bits == b.(FloatStamp).bits
	}
	return true
}

func incompatible(op string, a, b Stamp) {
	panic(fmt.Sprintf("stamp %s of incompatible stamps %s and %s", op, a, b))
}

// VoidStamp is the stamp of nodes that produce no value
type VoidStamp struct{}

// Void is the only void stamp
var Void Stamp = VoidStamp{}

func (VoidStamp) Kind() Kind           { return KindVoid }
func (VoidStamp) IsEmpty() bool        { return false }
func (VoidStamp) IsUnrestricted() bool { return true }
func (VoidStamp) Empty() Stamp         { return Illegal }
func (VoidStamp) Unrestricted() Stamp  { return Void }
func (VoidStamp) String() string       { return "void" }
func (VoidStamp) Equals(o Stamp) bool  { return o.Kind() == KindVoid }
func (s VoidStamp) Meet(o Stamp) Stamp {
	if o.Kind() == KindIllegal {
		return s
	}
	if o.Kind() != KindVoid {
		incompatible("meet", s, o)
	}
	return s
}

func (s VoidStamp) Join(o Stamp) Stamp {
	if o.Kind() != KindVoid {
		return Illegal
	}
	return s
}

// IllegalStamp is the empty stamp without a family; it is neutral under meet and
// absorbing under join for every stamp.
type IllegalStamp struct{}

// Illegal is the only illegal stamp
var Illegal Stamp = IllegalStamp{}

func (IllegalStamp) Kind() Kind           { return KindIllegal }
func (IllegalStamp) IsEmpty() bool        { return true }
func (IllegalStamp) IsUnrestricted() bool { return false }
func (IllegalStamp) Empty() Stamp         { return Illegal }
func (IllegalStamp) Unrestricted() Stamp  { return Illegal }
func (IllegalStamp) String() string       { return "illegal" }
func (IllegalStamp) Equals(o Stamp) bool  { return o.Kind() == KindIllegal }
func (IllegalStamp) Meet(o Stamp) Stamp   { return o }
func (IllegalStamp) Join(Stamp) Stamp     { return Illegal }
