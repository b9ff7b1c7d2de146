package errors

import (
	"fmt"
	"strings"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics with suggestions
type DiagnosticBuilder struct {
	err CompilerError
}

// NewError creates a new error builder
func NewError(code, message string, pos Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{Level: Error, Code: code, Message: message, Position: pos, Length: 1},
	}
}

// NewWarning creates a new warning builder
func NewWarning(code, message string, pos Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{Level: Warning, Code: code, Message: message, Position: pos, Length: 1},
	}
}

// WithLength sets the length of the error span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

// WithSuggestion adds a suggestion to the error
func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

// WithReplacement adds a suggestion with replacement text
func (b *DiagnosticBuilder) WithReplacement(message, replacement string, pos Position, length int) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{
		Message:     message,
		Replacement: replacement,
		Position:    pos,
		Length:      length,
	})
	return b
}

// WithNote adds a note to the error
func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

// WithHelp adds help text to the error
func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed diagnostic
func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

func (b *DiagnosticBuilder) didYouMean(name string, candidates []string) *DiagnosticBuilder {
	similar := FindSimilarNames(name, candidates)
	switch len(similar) {
	case 0:
		return b
	case 1:
		return b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
	}
	return b.WithSuggestion(fmt.Sprintf("did you mean one of: '%s'?", strings.Join(similar, "', '")))
}

// SyntaxError wraps a parser message
func SyntaxError(message string, pos Position) CompilerError {
	return NewError(ErrorSyntax, message, pos).Build()
}

// UndefinedVariable creates an error for undefined variables with suggestions
func UndefinedVariable(name string, pos Position, inScope []string) CompilerError {
	b := NewError(ErrorUndefinedVariable, fmt.Sprintf("undefined variable '%s'", name), pos).
		WithLength(len(name)).
		didYouMean(name, inScope)
	if len(b.err.Suggestions) == 0 {
		b = b.WithSuggestion("make sure the variable is declared before use").
			WithNote("variables are declared with 'let' or as function parameters")
	}
	return b.Build()
}

// UndefinedFunction creates an error for calls to unknown functions
func UndefinedFunction(name string, pos Position, functions []string) CompilerError {
	return NewError(ErrorUndefinedFunction, fmt.Sprintf("function '%s' is not defined", name), pos).
		WithLength(len(name)).
		didYouMean(name, functions).
		WithHelp("builtins are abs, min, max, umin, umax, ult, ule, ugt, uge, len, opaque, sink, i2l, u2l and l2i; call functions of the file with 'call'").
		Build()
}

// UnknownType creates an error for a type name that is not declared
func UnknownType(name string, pos Position, types []string) CompilerError {
	return NewError(ErrorUnknownType, fmt.Sprintf("unknown type '%s'", name), pos).
		WithLength(len(name)).
		didYouMean(name, types).
		Build()
}

// FieldNotFound creates an error for missing fields with suggestions
func FieldNotFound(typeName, fieldName string, pos Position, availableFields []string) CompilerError {
	b := NewError(ErrorFieldNotFound, fmt.Sprintf("type '%s' has no field '%s'", typeName, fieldName), pos).
		WithLength(len(fieldName)).
		didYouMean(fieldName, availableFields)
	if len(availableFields) > 0 {
		b = b.WithNote(fmt.Sprintf("available fields: %s", strings.Join(availableFields, ", ")))
	}
	return b.Build()
}

// TypeMismatch creates an error for operands of the wrong type
func TypeMismatch(expected, actual string, pos Position) CompilerError {
	b := NewError(ErrorTypeMismatch, fmt.Sprintf("type mismatch: expected %s, found %s", expected, actual), pos)
	if isNumericType(expected) && isNumericType(actual) {
		b = b.WithNote("there are no implicit conversions; use i2l, u2l or l2i")
	} else if expected == "bool" {
		b = b.WithSuggestion("use a comparison operator to create a boolean value")
	}
	return b.Build()
}

// DuplicateDeclaration creates an error for duplicate declarations
func DuplicateDeclaration(name string, pos Position) CompilerError {
	return NewError(ErrorDuplicateDeclaration, fmt.Sprintf("duplicate declaration: %s", name), pos).
		WithLength(len(name)).
		WithSuggestion(fmt.Sprintf("rename the duplicate '%s' to a unique name", name)).
		WithNote("identifiers must be unique within their scope").
		Build()
}

// UnknownDeopt creates an error for an unknown reason or action name
func UnknownDeopt(what, name string, pos Position, valid []string) CompilerError {
	return NewError(ErrorUnknownDeopt, fmt.Sprintf("unknown deoptimization %s '%s'", what, name), pos).
		WithLength(len(name)).
		didYouMean(name, valid).
		WithNote(fmt.Sprintf("valid values: %s", strings.Join(valid, ", "))).
		Build()
}

// InvalidArguments creates an error for call argument count mismatches
func InvalidArguments(functionName string, expected, actual int, pos Position) CompilerError {
	return NewError(ErrorInvalidArguments,
		fmt.Sprintf("function '%s' expects %d arguments, got %d", functionName, expected, actual), pos).
		WithSuggestion(fmt.Sprintf("provide exactly %d argument(s)", expected)).
		Build()
}

// MissingReturn creates an error for functions that may fall off their end
func MissingReturn(functionName, returnType string, pos Position) CompilerError {
	return NewError(ErrorMissingReturn,
		fmt.Sprintf("function '%s' declares result type '%s' but does not return on every path", functionName, returnType), pos).
		WithSuggestion(fmt.Sprintf("add a return statement that returns a value of type '%s'", returnType)).
		WithSuggestion("or end the path with deopt").
		Build()
}

// InvalidHierarchy creates an error for a broken class or interface declaration
func InvalidHierarchy(message string, pos Position) CompilerError {
	return NewError(ErrorInvalidHierarchy, message, pos).
		WithHelp("classes extend one class and implement interfaces; interfaces extend nothing").
		Build()
}

// UnusedVariable creates a warning for unused variables
func UnusedVariable(name string, pos Position) CompilerError {
	return NewWarning(WarningUnusedVariable, fmt.Sprintf("variable '%s' is declared but never used", name), pos).
		WithLength(len(name)).
		WithSuggestion("remove the variable declaration if it's not needed").
		Build()
}

// UnreachableCode creates a warning for statements after return or deopt
func UnreachableCode(pos Position) CompilerError {
	return NewWarning(WarningUnreachableCode, "unreachable code", pos).
		WithSuggestion("remove this code").
		WithNote("code after a return or deopt statement will never be executed").
		Build()
}

// Helper functions

func isNumericType(typeName string) bool {
	switch typeName {
	case "i32", "i64", "f32", "f64":
		return true
	}
	return false
}

// FindSimilarNames returns the candidates within edit distance 2 of target
func FindSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if candidate != target && levenshteinDistance(target, candidate) <= 2 && len(candidate) > 2 {
			similar = append(similar, candidate)
		}
	}
	return similar
}

// Simple Levenshtein distance implementation for finding similar names
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
