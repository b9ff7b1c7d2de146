package types

import (
	"fmt"
	"sync"
)

// TypeRegistry manages the types visible to a compilation. It is populated before
// compilations start and only read afterwards, except for array types which are
// created lazily under a lock.
type TypeRegistry struct {
	mu     sync.Mutex
	object *Type
	named  map[string]*Type
	arrays map[string]*Type
}

// NewTypeRegistry creates a new type registry containing only Object
func NewTypeRegistry() *TypeRegistry {
	object := &Type{Name: "Object"}
	return &TypeRegistry{
		object: object,
		named:  map[string]*Type{"Object": object},
		arrays: make(map[string]*Type),
	}
}

// Object returns the root of the class hierarchy
func (tr *TypeRegistry) Object() *Type {
	return tr.object
}

// Declare adds a class or interface to the registry. The supertype must already be
// declared; a nil super means Object for classes.
func (tr *TypeRegistry) Declare(name string, super *Type, interfaces []*Type, isInterface, final bool) (*Type, error) {
	if _, exists := tr.named[name]; exists || IsBuiltinType(name) {
		return nil, fmt.Errorf("type %s is already declared", name)
	}
	if isInterface {
		if super != nil {
			return nil, fmt.Errorf("interface %s cannot extend class %s", name, super.Name)
		}
	} else {
		if super == nil {
			super = tr.object
		}
		if super.Interface {
			return nil, fmt.Errorf("class %s cannot extend interface %s", name, super.Name)
		}
		if super.Final {
			return nil, fmt.Errorf("class %s cannot extend final class %s", name, super.Name)
		}
	}
	for _, i := range interfaces {
		if !i.Interface {
			return nil, fmt.Errorf("%s is not an interface", i.Name)
		}
	}
	t := &Type{
		Name:       name,
		Super:      super,
		Interfaces: interfaces,
		Interface:  isInterface,
		Final:      final,
	}
	tr.named[name] = t
	return t, nil
}

// AddField declares an instance field on a class
func (tr *TypeRegistry) AddField(holder *Type, name string, prim Prim, refType *Type, final bool) (*Field, error) {
	if holder.Interface {
		return nil, fmt.Errorf("interface %s cannot declare field %s", holder.Name, name)
	}
	if holder.LookupField(name) != nil {
		return nil, fmt.Errorf("field %s is already declared in %s", name, holder.Name)
	}
	f := &Field{Name: name, Holder: holder, Prim: prim, RefType: refType, Final: final}
	holder.Fields = append(holder.Fields, f)
	return f, nil
}

// Lookup returns a named class or interface, resolving array suffixes
func (tr *TypeRegistry) Lookup(name string) *Type {
	if elem, ok := ElementName(name); ok {
		if prim, ok := BuiltinTypes[elem]; ok && prim != PrimVoid {
			return tr.ArrayOf(prim, nil)
		}
		et := tr.Lookup(elem)
		if et == nil {
			return nil
		}
		return tr.ArrayOf(PrimRef, et)
	}
	return tr.named[name]
}

// ArrayOf returns the array type with the given element
func (tr *TypeRegistry) ArrayOf(elem Prim, elemType *Type) *Type {
	if elem != PrimRef {
		elemType = nil
	}
	name := ArrayName(elem, elemType)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if t, ok := tr.arrays[name]; ok {
		return t
	}
	t := &Type{
		Name:     name,
		Super:    tr.object,
		Array:    true,
		ElemPrim: elem,
		ElemType: elemType,
	}
	tr.arrays[name] = t
	return t
}

// IsUserDefinedType checks if a class or interface was declared by the program
func (tr *TypeRegistry) IsUserDefinedType(typeName string) bool {
	t := tr.named[typeName]
	return t != nil && t != tr.object
}
