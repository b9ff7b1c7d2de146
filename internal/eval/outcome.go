package eval

import (
	"fmt"
	"slices"

	"jitopt/internal/deopt"
)

// OutcomeKind is how an execution ended
type OutcomeKind uint8

const (
	Returned OutcomeKind = iota
	Threw
	Deoptimized
)

func (k OutcomeKind) String() string {
	switch k {
	case Returned:
		return "returned"
	case Threw:
		return "threw"
	}
	return "deoptimized"
}

// Deopt records the deoptimization that ended an execution
type Deopt struct {
	Reason deopt.Reason
	Action deopt.Action
}

// Outcome is the observable result of an execution: what it returned or threw, or
// where it deoptimized, and the values it sank along the way.
type Outcome struct {
	Kind      OutcomeKind
	Value     Value
	Exception string
	Deopt     *Deopt
	Trace     []Value
	Steps     int
}

func (o Outcome) String() string {
	switch o.Kind {
	case Returned:
		return fmt.Sprintf("returned %s", o.Value)
	case Threw:
		return fmt.Sprintf("threw %s", o.Exception)
	}
	return fmt.Sprintf("deoptimized %s/%s", o.Deopt.Reason, o.Deopt.Action)
}

// Normalize turns a deoptimization for a failed exception check into the exception
// the interpreter raises when it re-executes the check
func (o Outcome) Normalize() Outcome {
	if o.Kind != Deoptimized {
		return o
	}
	if ex := o.Deopt.Reason.Exception(); ex != "" {
		o.Kind = Threw
		o.Exception = ex
		o.Deopt = nil
	}
	return o
}

// Equivalent reports whether an optimized execution is allowed to produce opt where a
// reference execution of the same arguments produced ref. A speculative
// deoptimization resumes in the interpreter, which then produces the rest of ref, so
// it only has to happen before anything ref did not sink. Everything else must match
// exactly.
func Equivalent(ref, opt Outcome) bool {
	ref, opt = ref.Normalize(), opt.Normalize()
	if opt.Kind == Deoptimized {
		return len(opt.Trace) <= len(ref.Trace) && sameTrace(opt.Trace, ref.Trace[:len(opt.Trace)])
	}
	if ref.Kind != opt.Kind || !sameTrace(ref.Trace, opt.Trace) {
		return false
	}
	switch ref.Kind {
	case Returned:
		return EquivalentValues(ref.Value, opt.Value)
	case Threw:
		return ref.Exception == opt.Exception
	}
	return *ref.Deopt == *opt.Deopt
}

func sameTrace(a, b []Value) bool {
	return slices.EqualFunc(a, b, EquivalentValues)
}
