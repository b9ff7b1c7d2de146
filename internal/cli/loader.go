package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/frontend"
)

// Error codes of the command line itself. Compiler diagnostics keep their own codes.
const (
	ErrCodeNotFound        = "E0400"
	ErrCodeUnknownFunction = "E0401"
	ErrCodeArguments       = "E0402"
	ErrCodeMismatch        = "E0403"
	ErrCodeCompilation     = "E0404"
)

// loaded is a .jop file that built without errors
type loaded struct {
	path     string
	source   string
	unit     *frontend.Unit
	warnings jerrors.ErrorList
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// load reads and builds a file. Front end errors are reported through f and returned
// as an ExitError.
func load(f *OutputFormatter, path string) (*loaded, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, f.Error(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot read %s", path), err.Error(), "")
	}
	unit, diags := frontend.Compile(path, string(source))
	if diags.HasErrors() {
		reporter := jerrors.NewErrorReporter(path, string(source))
		msg := fmt.Sprintf("%s: %d diagnostics", path, len(diags))
		return nil, f.Error(ExitFailure, jerrors.CodeOf(diags), msg, diagnostics(diags), reporter.FormatAll(diags))
	}
	f.VerboseLog("built %d functions of %s", len(unit.Functions), path)
	return &loaded{path: path, source: string(source), unit: unit, warnings: diags}, nil
}

// function looks up a function of the unit by name
func (l *loaded) function(f *OutputFormatter, name string) (*frontend.Function, error) {
	fn := l.unit.Function(name)
	if fn == nil {
		return nil, f.Error(ExitCommandError, ErrCodeUnknownFunction,
			fmt.Sprintf("%s has no function %s", l.path, name), l.unit.FunctionNames(), "")
	}
	return fn, nil
}
