package types

import "strings"

// Type is a class, interface or array type. Types form a single-inheritance class
// tree rooted at Object plus interfaces; arrays are covariant in their element type.
type Type struct {
	Name       string
	Super      *Type
	Interfaces []*Type
	Interface  bool
	Final      bool
	Abstract   bool
	Fields     []*Field

	// Array types only
	Array    bool
	ElemPrim Prim
	ElemType *Type
}

// Field is an instance field declared by a class
type Field struct {
	Name    string
	Holder  *Type
	Prim    Prim
	RefType *Type // element class when Prim is PrimRef
	Final   bool
}

func (f *Field) String() string {
	return f.Holder.Name + "." + f.Name
}

func (t *Type) String() string {
	if t == nil {
		return "Object"
	}
	return t.Name
}

// IsObject reports whether t is the hierarchy root
func (t *Type) IsObject() bool {
	return t != nil && t.Super == nil && !t.Interface && !t.Array
}

// IsLeaf reports whether no proper subtype of t can exist
func (t *Type) IsLeaf() bool {
	if t.Array {
		return t.ElemPrim != PrimRef || t.ElemType.IsLeaf()
	}
	return t.Final
}

// LookupField finds a field declared by t or one of its superclasses
func (t *Type) LookupField(name string) *Field {
	for c := t; c != nil; c = c.Super {
		for _, f := range c.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// IsAssignableFrom reports whether every instance of s is an instance of t.
func (t *Type) IsAssignableFrom(s *Type) bool {
	if t == nil || t == s || t.IsObject() {
		return true
	}
	if s == nil {
		return false
	}
	if t.Array || s.Array {
		if !(t.Array && s.Array) {
			return false
		}
		if t.ElemPrim != PrimRef || s.ElemPrim != PrimRef {
			return t.ElemPrim == s.ElemPrim
		}
		return t.ElemType.IsAssignableFrom(s.ElemType)
	}
	for c := s; c != nil; c = c.Super {
		if c == t {
			return true
		}
		if t.Interface {
			for _, i := range c.Interfaces {
				if t.IsAssignableFrom(i) {
					return true
				}
			}
		}
	}
	if s.Interface && t.Interface {
		for _, i := range s.Interfaces {
			if t.IsAssignableFrom(i) {
				return true
			}
		}
	}
	return false
}

// superclasses returns the class chain of t from t up to the root.
func (t *Type) superclasses() []*Type {
	var chain []*Type
	for c := t; c != nil; c = c.Super {
		chain = append(chain, c)
	}
	return chain
}

// MayShareInstance reports whether some non-null object can be an instance of both a
// and b. Exactness restricts a side to instances of exactly that type.
func MayShareInstance(a *Type, aExact bool, b *Type, bExact bool) bool {
	if a == nil || b == nil || a == b {
		if aExact && bExact {
			return a == b
		}
		if aExact && b != nil {
			return b.IsAssignableFrom(a)
		}
		if bExact && a != nil {
			return a.IsAssignableFrom(b)
		}
		return true
	}
	if aExact {
		return b.IsAssignableFrom(a)
	}
	if bExact {
		return a.IsAssignableFrom(b)
	}
	if a.IsAssignableFrom(b) || b.IsAssignableFrom(a) {
		return true
	}
	if a.Array || b.Array {
		return false
	}
	// A non-final class may have a subclass implementing any interface.
	if a.Interface && b.Interface {
		return true
	}
	if a.Interface {
		return !b.Final
	}
	if b.Interface {
		return !a.Final
	}
	return false
}

// CommonSuper returns the most specific type that both a and b are assignable to.
func CommonSuper(a, b *Type) *Type {
	if a == nil || b == nil {
		return nil
	}
	if a.IsAssignableFrom(b) {
		return a
	}
	if b.IsAssignableFrom(a) {
		return b
	}
	if a.Array || b.Array || a.Interface || b.Interface {
		return root(a)
	}
	bs := b.superclasses()
	for _, c := range a.superclasses() {
		for _, d := range bs {
			if c == d {
				return c
			}
		}
	}
	return root(a)
}

func root(t *Type) *Type {
	for t.Super != nil {
		t = t.Super
	}
	if t.Interface || t.Array {
		return nil
	}
	return t
}

// ArrayName returns the textual name of an array of the given element
func ArrayName(elem Prim, elemType *Type) string {
	if elem == PrimRef {
		return elemType.Name + "[]"
	}
	return elem.String() + "[]"
}

// ElementName strips one array dimension from name.
func ElementName(name string) (string, bool) {
	return strings.CutSuffix(name, "[]")
}
