package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	jerrors "jitopt/internal/errors"
)

// CheckResult is the JSON result of check for one file
type CheckResult struct {
	File        string       `json:"file"`
	Functions   []string     `json:"functions"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// NewCheckCommand creates the check command
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.jop>...",
		Short: "Parse and build .jop files and report diagnostics",
		Long: `Parse and build .jop files without optimizing them.

Every function is turned into a graph, so type errors and malformed control flow
are reported along with warnings for unused variables and unreachable code.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
}

func runCheck(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	var (
		results []CheckResult
		text    strings.Builder
	)
	for _, path := range paths {
		l, err := load(f, path)
		if err != nil {
			return err
		}
		r := CheckResult{File: path, Diagnostics: diagnostics(l.warnings)}
		for _, fn := range l.unit.Functions {
			r.Functions = append(r.Functions, fn.Signature())
		}
		results = append(results, r)

		text.WriteString(jerrors.NewErrorReporter(path, l.source).FormatAll(l.warnings))
		text.WriteString(color.GreenString("✓ %s: %d functions", path, len(r.Functions)))
		if n := len(l.warnings); n > 0 {
			text.WriteString(color.YellowString(", %d warnings", n))
		}
		text.WriteString("\n")
		if f.Verbose {
			for _, sig := range r.Functions {
				fmt.Fprintf(&text, "    fn %s\n", sig)
			}
		}
	}
	return f.Success(results, text.String())
}
