package stamp

import (
	"strings"

	"jitopt/internal/cond"
	"jitopt/internal/types"
)

// ObjectStamp describes a reference. A nil Type means any object. A stamp that is
// both NonNull and AlwaysNull is empty.
type ObjectStamp struct {
	Type       *types.Type
	Exact      bool
	NonNull    bool
	AlwaysNull bool
}

// Object returns the unrestricted reference stamp
func Object() ObjectStamp {
	return ObjectStamp{}
}

// ObjectOf returns a stamp for instances of t
func ObjectOf(t *types.Type, exact, nonNull bool) ObjectStamp {
	return normalize(ObjectStamp{Type: t, Exact: exact, NonNull: nonNull})
}

// Null is the stamp of the null constant
func Null() ObjectStamp {
	return ObjectStamp{AlwaysNull: true}
}

func emptyObject() ObjectStamp {
	return ObjectStamp{NonNull: true, AlwaysNull: true}
}

func normalize(s ObjectStamp) ObjectStamp {
	if s.NonNull && s.AlwaysNull {
		return emptyObject()
	}
	if s.AlwaysNull {
		return Null()
	}
	if s.Type != nil && s.Type.IsObject() {
		s.Type = nil
		if s.Exact {
			// instances of exactly Object are still objects
			s.Exact = false
		}
	}
	if s.Exact && s.Type != nil && (s.Type.Interface || s.Type.Abstract) {
		// no instance has an interface or abstract class as its exact type
		if s.NonNull {
			return emptyObject()
		}
		return Null()
	}
	if s.Type != nil && s.Type.IsLeaf() {
		s.Exact = true
	}
	return s
}

func (s ObjectStamp) Kind() Kind { return KindObject }

func (s ObjectStamp) IsEmpty() bool {
	return s.NonNull && s.AlwaysNull
}

func (s ObjectStamp) IsUnrestricted() bool {
	return s == ObjectStamp{}
}

func (s ObjectStamp) Empty() Stamp        { return emptyObject() }
func (s ObjectStamp) Unrestricted() Stamp { return Object() }

// IsConstantNull reports whether the value can only be null
func (s ObjectStamp) IsConstantNull() bool {
	return s.AlwaysNull && !s.NonNull
}

func (s ObjectStamp) other(op string, o Stamp) (ObjectStamp, bool) {
	if o.Kind() == KindIllegal {
		return ObjectStamp{}, false
	}
	t, ok := o.(ObjectStamp)
	if !ok {
		incompatible(op, s, o)
	}
	return t, true
}

func (s ObjectStamp) Meet(o Stamp) Stamp {
	t, ok := s.other("meet", o)
	if !ok {
		return s
	}
	return s.MeetObject(t)
}

// MeetObject is Meet for reference stamps
func (s ObjectStamp) MeetObject(t ObjectStamp) ObjectStamp {
	switch {
	case s.IsEmpty():
		return t
	case t.IsEmpty():
		return s
	case s.AlwaysNull && t.AlwaysNull:
		return Null()
	case s.AlwaysNull:
		return normalize(ObjectStamp{Type: t.Type, Exact: t.Exact})
	case t.AlwaysNull:
		return normalize(ObjectStamp{Type: s.Type, Exact: s.Exact})
	}
	r := ObjectStamp{
		Type:    types.CommonSuper(s.Type, t.Type),
		NonNull: s.NonNull && t.NonNull,
	}
	r.Exact = s.Exact && t.Exact && s.Type == t.Type
	return normalize(r)
}

func (s ObjectStamp) Join(o Stamp) Stamp {
	t, ok := s.other("join", o)
	if !ok {
		return Illegal
	}
	return s.JoinObject(t)
}

// JoinObject is Join for reference stamps. Incompatible types leave only null.
func (s ObjectStamp) JoinObject(t ObjectStamp) ObjectStamp {
	nonNull := s.NonNull || t.NonNull
	if s.AlwaysNull || t.AlwaysNull {
		return normalize(ObjectStamp{NonNull: nonNull, AlwaysNull: true})
	}
	if !types.MayShareInstance(s.Type, s.Exact, t.Type, t.Exact) {
		return normalize(ObjectStamp{NonNull: nonNull, AlwaysNull: true})
	}
	r := ObjectStamp{NonNull: nonNull}
	switch {
	case s.Exact:
		r.Type, r.Exact = s.Type, true
	case t.Exact:
		r.Type, r.Exact = t.Type, true
	case s.Type == nil:
		r.Type = t.Type
	case t.Type == nil:
		r.Type = s.Type
	case s.Type.IsAssignableFrom(t.Type):
		r.Type = t.Type
	case t.Type.IsAssignableFrom(s.Type):
		r.Type = s.Type
	case s.Type.Interface && !t.Type.Interface:
		r.Type = t.Type
	case t.Type.Interface && !s.Type.Interface:
		r.Type = s.Type
	case s.Type.Name < t.Type.Name:
		// two unrelated interfaces; keep one deterministically
		r.Type = s.Type
	default:
		r.Type = t.Type
	}
	return normalize(r)
}

func (s ObjectStamp) Equals(o Stamp) bool {
	t, ok := o.(ObjectStamp)
	return ok && s == t
}

func (s ObjectStamp) String() string {
	switch {
	case s.IsEmpty():
		return "a <empty>"
	case s.AlwaysNull:
		return "a null"
	}
	var sb strings.Builder
	sb.WriteString("a")
	if s.NonNull {
		sb.WriteString("!")
	}
	if s.Exact {
		sb.WriteString("#")
	}
	sb.WriteString(" ")
	sb.WriteString(s.Type.String())
	return sb.String()
}

// FoldIsNull decides a null check from the stamp
func FoldIsNull(s ObjectStamp) cond.TriState {
	switch {
	case s.IsEmpty():
		return cond.Unknown
	case s.AlwaysNull:
		return cond.True
	case s.NonNull:
		return cond.False
	}
	return cond.Unknown
}

// FoldInstanceOf decides "x instanceof t" where null passes when allowNull is set.
func FoldInstanceOf(s ObjectStamp, t *types.Type, allowNull bool) cond.TriState {
	if s.IsEmpty() {
		return cond.Unknown
	}
	if s.AlwaysNull {
		return cond.Of(allowNull)
	}
	if t.IsAssignableFrom(s.Type) {
		if s.NonNull || allowNull {
			return cond.True
		}
		return cond.Unknown
	}
	if !types.MayShareInstance(s.Type, s.Exact, t, false) {
		if s.NonNull || !allowNull {
			return cond.False
		}
	}
	return cond.Unknown
}

// RefineInstanceOf returns the stamp of x once the outcome of "x instanceof t" is
// known.
func RefineInstanceOf(s ObjectStamp, t *types.Type, allowNull, holds bool) ObjectStamp {
	if holds {
		return s.JoinObject(ObjectStamp{Type: t, NonNull: !allowNull})
	}
	if allowNull {
		// null would have passed
		s.NonNull = true
		return normalize(s)
	}
	return s
}
