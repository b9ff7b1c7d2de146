package ir

import "jitopt/internal/types"

// Effects describe what a node does besides producing its value. Pure floating nodes
// have none; fixed nodes read or write memory, allocate, call out or leave the method.

// Effect represents one side effect of a node
type Effect interface {
	EffectKind() string
}

// MemoryEffectType categorizes memory access patterns
type MemoryEffectType string

const (
	MemoryEffectRead     MemoryEffectType = "read"
	MemoryEffectWrite    MemoryEffectType = "write"
	MemoryEffectAllocate MemoryEffectType = "allocate"
)

// Location is the memory an access may touch. A nil Field with Array unset is any
// location.
type Location struct {
	Field *types.Field
	Array bool
	Elem  types.Prim
}

// Any reports whether the location covers all of memory
func (l Location) Any() bool { return l.Field == nil && !l.Array }

// Overlaps reports whether two locations may alias
func (l Location) Overlaps(o Location) bool {
	if l.Any() || o.Any() {
		return true
	}
	if l.Array != o.Array {
		return false
	}
	if l.Array {
		return l.Elem == o.Elem
	}
	return l.Field == o.Field
}

func (l Location) String() string {
	switch {
	case l.Any():
		return "any"
	case l.Array:
		return l.Elem.String() + "[]"
	}
	return l.Field.String()
}

// MemoryEffectOp is a read, write or allocation
type MemoryEffectOp struct {
	Type     MemoryEffectType
	Location Location
}

func (m *MemoryEffectOp) EffectKind() string { return "memory" }

// PureEffect indicates no side effects
type PureEffect struct{}

func (p *PureEffect) EffectKind() string { return "pure" }

// ControlEffect is an observable transfer out of compiled code: a call, a value that
// escapes into a sink, or a deoptimization.
type ControlEffect struct {
	Kind string // "call", "sink", "deopt", "return"
}

func (c *ControlEffect) EffectKind() string { return c.Kind }

func elementLocation(arrayType *types.Type) Location {
	if arrayType == nil || !arrayType.Array {
		return Location{}
	}
	return Location{Array: true, Elem: arrayType.ElemPrim}
}

// GetEffects returns the effects of n
func GetEffects(n *Node) []Effect {
	switch n.op {
	case OpLoadField:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectRead, Location: Location{Field: n.Field}}}
	case OpStoreField:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Location: Location{Field: n.Field}}}
	case OpLoadIndexed:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectRead, Location: elementLocation(n.Type)}}
	case OpStoreIndexed:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Location: elementLocation(n.Type)}}
	case OpNewInstance, OpNewArray:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectAllocate}}
	case OpInvoke:
		// calls may do anything
		return []Effect{
			&MemoryEffectOp{Type: MemoryEffectRead},
			&MemoryEffectOp{Type: MemoryEffectWrite},
			&ControlEffect{Kind: "call"},
		}
	case OpBlackHole:
		return []Effect{&ControlEffect{Kind: "sink"}}
	case OpDeoptimize:
		return []Effect{&ControlEffect{Kind: "deopt"}}
	case OpReturn:
		return []Effect{&ControlEffect{Kind: "return"}}
	}
	return []Effect{&PureEffect{}}
}

// HasSideEffect reports whether n changes state that outlives it: memory writes,
// calls and sinks. Allocation alone is not a side effect.
func HasSideEffect(n *Node) bool {
	for _, e := range GetEffects(n) {
		switch e := e.(type) {
		case *MemoryEffectOp:
			if e.Type == MemoryEffectWrite {
				return true
			}
		case *ControlEffect:
			if e.Kind == "call" || e.Kind == "sink" {
				return true
			}
		}
	}
	return false
}

// IsPure reports whether n has no effects at all
func IsPure(n *Node) bool {
	effects := GetEffects(n)
	if len(effects) != 1 {
		return false
	}
	_, ok := effects[0].(*PureEffect)
	return ok
}

// Kills reports whether n may overwrite the location loc
func Kills(n *Node, loc Location) bool {
	for _, e := range GetEffects(n) {
		if m, ok := e.(*MemoryEffectOp); ok && m.Type == MemoryEffectWrite && m.Location.Overlaps(loc) {
			return true
		}
	}
	return false
}

// ReadLocation returns the location a load reads
func ReadLocation(n *Node) (Location, bool) {
	for _, e := range GetEffects(n) {
		if m, ok := e.(*MemoryEffectOp); ok && m.Type == MemoryEffectRead {
			return m.Location, true
		}
	}
	return Location{}, false
}
