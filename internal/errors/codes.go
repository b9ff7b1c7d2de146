package errors

// Error codes for the jitopt toolchain
// These codes appear in diagnostics, in the language server and in the JSON output of
// the command line tools.
//
// Error code ranges:
// E0100-E0199: Front end errors (.jop sources)
// E0200-E0299: Graph verification errors
// E0300-E0399: Bailouts
// W0100-W0199: Front end warnings

const (
	// Front end errors

	// E0100: Syntax errors reported by the parser
	ErrorSyntax = "E0100"

	// E0101: Variable resolution errors
	ErrorUndefinedVariable = "E0101"

	// E0102: Function resolution errors
	ErrorUndefinedFunction = "E0102"

	// E0103: Unknown class, interface or array element type
	ErrorUnknownType = "E0103"

	// E0104: Field access on a type without that field
	ErrorFieldNotFound = "E0104"

	// E0105: Operand types do not fit the operation
	ErrorTypeMismatch = "E0105"

	// E0106: Duplicate declaration of a type, field, function or variable
	ErrorDuplicateDeclaration = "E0106"

	// E0107: Unknown deoptimization reason or action
	ErrorUnknownDeopt = "E0107"

	// E0108: Wrong number of call arguments
	ErrorInvalidArguments = "E0108"

	// E0109: Function that may fall off its end without returning
	ErrorMissingReturn = "E0109"

	// E0110: Invalid class hierarchy
	ErrorInvalidHierarchy = "E0110"

	// Verification errors

	// E0200: An input or successor refers to a deleted node
	ErrorDeadReference = "E0200"

	// E0201: Input and usage lists disagree
	ErrorUsageMismatch = "E0201"

	// E0202: Broken predecessor/successor links
	ErrorControlFlow = "E0202"

	// E0203: Phi arity does not match its merge
	ErrorPhiArity = "E0203"

	// E0204: Cycle that does not pass through a phi
	ErrorCycle = "E0204"

	// E0205: Floating node that no fixed node reaches
	ErrorUnreachableFloating = "E0205"

	// E0206: Loop path without progress
	ErrorLoopProgress = "E0206"

	// E0207: Phase changed a loop's safepoint flag
	ErrorSafepointChanged = "E0207"

	// E0208: Fixed-point iteration did not converge
	ErrorIterationCap = "E0208"

	// E0209: Single-run phase applied twice
	ErrorPhaseReapplied = "E0209"

	// E0210: Stamp inconsistent with inputs
	ErrorStamp = "E0210"

	// Bailouts

	// E0300: Compilation given up permanently
	ErrorBailoutPermanent = "E0300"

	// E0301: Compilation given up, may succeed on retry
	ErrorBailoutRetryable = "E0301"

	// E0302: Compilation cancelled between phases
	ErrorCancelled = "E0302"

	// Warning codes

	// W0100: Unused variable warning
	WarningUnusedVariable = "W0100"

	// W0101: Unreachable code warning
	WarningUnreachableCode = "W0101"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorSyntax:
		return "The source does not follow the .jop grammar"
	case ErrorUndefinedVariable:
		return "Variable is used but not defined in the current scope"
	case ErrorUndefinedFunction:
		return "Function is called but not defined"
	case ErrorUnknownType:
		return "Type name does not refer to a declared class, interface or array"
	case ErrorFieldNotFound:
		return "Class has no field with this name"
	case ErrorTypeMismatch:
		return "Expression type does not match expected type"
	case ErrorDuplicateDeclaration:
		return "Name is declared more than once in the same scope"
	case ErrorUnknownDeopt:
		return "Unknown deoptimization reason or action"
	case ErrorInvalidArguments:
		return "Call passes the wrong number of arguments"
	case ErrorMissingReturn:
		return "Function with a result type does not return on every path"
	case ErrorInvalidHierarchy:
		return "Class or interface declaration breaks the type hierarchy rules"
	case ErrorDeadReference:
		return "Graph edge refers to a deleted node"
	case ErrorUsageMismatch:
		return "Input and usage lists of two nodes disagree"
	case ErrorControlFlow:
		return "Predecessor and successor links of fixed nodes disagree"
	case ErrorPhiArity:
		return "Phi has a different number of values than its merge has ends"
	case ErrorCycle:
		return "Data-flow cycle that does not pass through a phi"
	case ErrorUnreachableFloating:
		return "Floating node is not used by any fixed node"
	case ErrorLoopProgress:
		return "A path through the loop body changes no phi and has no side effect"
	case ErrorSafepointChanged:
		return "A phase changed whether a loop contains a safepoint"
	case ErrorIterationCap:
		return "A fixed-point iteration exceeded its cap"
	case ErrorPhaseReapplied:
		return "A single-run phase was applied more than once"
	case ErrorStamp:
		return "Node stamp is wider than its inputs allow"
	case ErrorBailoutPermanent:
		return "The method cannot be compiled under current assumptions"
	case ErrorBailoutRetryable:
		return "Compilation failed for a transient reason and may be retried"
	case ErrorCancelled:
		return "Compilation was cancelled"
	case WarningUnusedVariable:
		return "Variable is declared but never used"
	case WarningUnreachableCode:
		return "Code after a return or deopt is never executed"
	default:
		return "Unknown error"
	}
}

// IsWarning reports whether the code is a warning rather than an error
func IsWarning(code string) bool {
	return len(code) > 0 && code[0] == 'W'
}
