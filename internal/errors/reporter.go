package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// Position is a location in a .jop source file. Line and Column start at 1.
type Position struct {
	Filename string
	Offset   int
	Line     int
	Column   int
}

func (p Position) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// CompilerError represents a structured diagnostic with suggestions and context
type CompilerError struct {
	Level       ErrorLevel
	Code        string   // Error code like E0101
	Message     string   // Primary error message
	Position    Position // Location in source
	Length      int      // Length of the problematic region
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s[%s]: %s", e.Position, e.Level, e.Code, e.Message)
}

// Suggestion represents a suggested fix
type Suggestion struct {
	Message     string   // Description of the suggestion
	Replacement string   // Suggested replacement text (optional)
	Position    Position // Position to apply the fix (optional)
	Length      int      // Length of text to replace (optional)
}

// ErrorList collects the diagnostics of one source file. It is an error when it holds
// at least one diagnostic of level Error.
type ErrorList []CompilerError

func (l ErrorList) Error() string {
	parts := make([]string, 0, len(l))
	for _, e := range l {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// HasErrors reports whether any diagnostic is an error
func (l ErrorList) HasErrors() bool {
	for _, e := range l {
		if e.Level == Error {
			return true
		}
	}
	return false
}

// Err returns l as an error, or nil when it holds only warnings
func (l ErrorList) Err() error {
	if l.HasErrors() {
		return l
	}
	return nil
}

// ErrorReporter renders diagnostics against the source they refer to
type ErrorReporter struct {
	filename string
	lines    []string
}

// NewErrorReporter creates a new error reporter for a file
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{filename: filename, lines: strings.Split(source, "\n")}
}

// FormatAll formats every diagnostic of the list in order
func (er *ErrorReporter) FormatAll(list ErrorList) string {
	var b strings.Builder
	for _, e := range list {
		b.WriteString(er.FormatError(e))
	}
	return b.String()
}

var (
	dim   = color.New(color.Faint).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	blue  = color.New(color.FgBlue).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
)

// levelColor returns the color of a diagnostic level
func levelColor(level ErrorLevel) func(...any) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	}
	return color.New(color.FgRed, color.Bold).SprintFunc()
}

// gutter writes lines prefixed by a line number column of fixed width
type gutter struct {
	b     *strings.Builder
	width int
}

func (g gutter) blank(text string) {
	fmt.Fprintf(g.b, "%s %s %s\n", strings.Repeat(" ", g.width), dim("│"), text)
}

func (g gutter) numbered(n int, text string, current bool) {
	num := fmt.Sprintf("%*d", g.width, n)
	if current {
		num = bold(num)
	} else {
		num = dim(num)
	}
	fmt.Fprintf(g.b, "%s %s %s\n", num, dim("│"), text)
}

// line returns source line n (1-based) if it exists
func (er *ErrorReporter) line(n int) (string, bool) {
	if n < 1 || n > len(er.lines) {
		return "", false
	}
	return er.lines[n-1], true
}

// FormatError formats a diagnostic with the offending line and the line before it,
// an underline of the offending region, then suggestions, notes and help
func (er *ErrorReporter) FormatError(err CompilerError) string {
	var b strings.Builder
	paint := levelColor(err.Level)
	pos := err.Position

	header := paint(string(err.Level))
	if err.Code != "" {
		header += "[" + err.Code + "]"
	}
	fmt.Fprintf(&b, "%s: %s\n", header, err.Message)

	g := gutter{b: &b, width: max(3, len(fmt.Sprint(pos.Line)))}
	fmt.Fprintf(&b, "%s %s %s:%d:%d\n", strings.Repeat(" ", g.width), dim("-->"), er.filename, pos.Line, pos.Column)
	g.blank("")
	if prev, ok := er.line(pos.Line - 1); ok {
		g.numbered(pos.Line-1, prev, false)
	}
	if cur, ok := er.line(pos.Line); ok {
		g.numbered(pos.Line, cur, true)
		g.blank(strings.Repeat(" ", max(0, pos.Column-1)) + paint(strings.Repeat("^", max(1, err.Length))))
	}

	for i, s := range err.Suggestions {
		if i == 0 {
			g.blank("")
			g.blank(cyan("help: try") + " " + s.Message)
		} else {
			g.blank("          " + s.Message)
		}
		for _, r := range strings.Split(s.Replacement, "\n") {
			if r != "" {
				g.blank(cyan(r))
			}
		}
	}
	for _, note := range err.Notes {
		g.blank(blue("note:") + " " + note)
	}
	if err.HelpText != "" {
		g.blank(green("help:") + " " + err.HelpText)
	}
	b.WriteString("\n")
	return b.String()
}
