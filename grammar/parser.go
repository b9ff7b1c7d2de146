package grammar

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"

	jerrors "jitopt/internal/errors"
)

var parser = participle.MustBuild[Program](
	participle.Lexer(JopLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// Parse parses the source of a .jop file
func Parse(filename, source string) (*Program, error) {
	return parser.ParseString(filename, source)
}

// ParseFile reads and parses a .jop file
func ParseFile(path string) (*Program, string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	program, err := Parse(path, string(source))
	return program, string(source), err
}

// Diagnostic converts a parse error into a positioned syntax error
func Diagnostic(err error) jerrors.CompilerError {
	var pe participle.Error
	if !errors.As(err, &pe) {
		return jerrors.SyntaxError(err.Error(), jerrors.Position{Line: 1, Column: 1})
	}
	p := pe.Position()
	pos := jerrors.Position{Filename: p.Filename, Offset: p.Offset, Line: p.Line, Column: p.Column}
	d := jerrors.SyntaxError(pe.Message(), pos)
	var ut *participle.UnexpectedTokenError
	if errors.As(err, &ut) && ut.Unexpected.Value != "" {
		d.Length = len(ut.Unexpected.Value)
	}
	return d
}

// Keywords are the reserved words of the language
var Keywords = []string{
	"anchor", "as", "call", "class", "const", "deopt", "else", "extends", "false", "final",
	"fn", "guard", "if", "implements", "instanceof", "interface", "let", "new", "null",
	"return", "true", "while",
}
