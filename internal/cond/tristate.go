package cond

// TriState is the result of folding a predicate over abstract values
type TriState uint8

const (
	Unknown TriState = iota
	True
	False
)

// Of converts a known boolean
func Of(b bool) TriState {
	if b {
		return True
	}
	return False
}

func (t TriState) IsKnown() bool {
	return t != Unknown
}

// ToBool returns the known value; callers must check IsKnown first.
func (t TriState) ToBool() bool {
	return t == True
}

func (t TriState) Negate() TriState {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}
