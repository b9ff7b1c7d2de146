// Package deopt defines the vocabulary of speculative checks: why a guard may fail
// and what the runtime does with the compiled code when it does.
package deopt

import "fmt"

// Reason records why execution left compiled code
type Reason uint8

const (
	NullCheck Reason = iota
	BoundsCheck
	ClassCastException
	ArithmeticException
	UnreachedCode
	TypeCheckedInliningViolated
	LoopLimitCheck
	TransferToInterpreter
	Unresolved
)

var reasonNames = [...]string{
	NullCheck:                   "NullCheck",
	BoundsCheck:                 "BoundsCheck",
	ClassCastException:          "ClassCastException",
	ArithmeticException:         "ArithmeticException",
	UnreachedCode:               "UnreachedCode",
	TypeCheckedInliningViolated: "TypeCheckedInliningViolated",
	LoopLimitCheck:              "LoopLimitCheck",
	TransferToInterpreter:       "TransferToInterpreter",
	Unresolved:                  "Unresolved",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// ParseReason returns the reason with the given name
func ParseReason(s string) (Reason, error) {
	for i, n := range reasonNames {
		if n == s {
			return Reason(i), nil
		}
	}
	return 0, fmt.Errorf("unknown deoptimization reason %q", s)
}

// Exception names the exception an interpreter raises when a check with this reason
// fails, or "" when the reason is purely speculative.
func (r Reason) Exception() string {
	switch r {
	case NullCheck:
		return "NullPointerException"
	case BoundsCheck:
		return "ArrayIndexOutOfBoundsException"
	case ClassCastException:
		return "ClassCastException"
	case ArithmeticException:
		return "ArithmeticException"
	}
	return ""
}

// Action is what happens to the compiled code after a deoptimization
type Action uint8

const (
	None Action = iota
	InvalidateReprofile
	InvalidateRecompile
	RecompileIfTooManyDeopts
	InvalidateStopCompiling
)

var actionNames = [...]string{
	None:                     "None",
	InvalidateReprofile:      "InvalidateReprofile",
	InvalidateRecompile:      "InvalidateRecompile",
	RecompileIfTooManyDeopts: "RecompileIfTooManyDeopts",
	InvalidateStopCompiling:  "InvalidateStopCompiling",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", a)
}

// ParseAction returns the action with the given name
func ParseAction(s string) (Action, error) {
	for i, n := range actionNames {
		if n == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown deoptimization action %q", s)
}

// Reasons lists all reasons, for completion and documentation
func Reasons() []string {
	return append([]string(nil), reasonNames[:]...)
}

// Actions lists all actions
func Actions() []string {
	return append([]string(nil), actionNames[:]...)
}
