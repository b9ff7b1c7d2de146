package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	jerrors "jitopt/internal/errors"
)

// Exit codes for CLI commands
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // diagnostics, failed compilations, behavior mismatches
	ExitCommandError = 2 // unreadable files, bad flags
)

// ExitError is an error with the exit code the process should end with
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that carry none fail with
// ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output, kept off Writer so JSON stays parseable
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure in JSON output
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Diagnostic is the JSON form of a front end error or warning
type Diagnostic struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func diagnostics(list jerrors.ErrorList) []Diagnostic {
	out := make([]Diagnostic, len(list))
	for i, e := range list {
		out[i] = Diagnostic{
			Level: string(e.Level), Code: e.Code, Message: e.Message,
			File: e.Position.Filename, Line: e.Position.Line, Column: e.Position.Column,
		}
	}
	return out
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success outputs a result. In text mode text is printed instead of data.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// Error outputs a failure and returns it as an ExitError
func (f *OutputFormatter) Error(exit int, code, message string, details any, text string) error {
	if f.json() {
		if err := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		}); err != nil {
			return err
		}
	} else if text != "" {
		fmt.Fprint(f.Writer, text)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	}
	return NewExitError(exit, fmt.Sprintf("[%s] %s", code, message))
}

// VerboseLog writes a line only in verbose mode
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
