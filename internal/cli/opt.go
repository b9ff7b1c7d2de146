package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jitopt/internal/compile"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
)

// OptResult is the JSON result of one compilation
type OptResult struct {
	ID         string   `json:"id"`
	Function   string   `json:"function"`
	Attempts   int      `json:"attempts"`
	Before     int      `json:"nodesBefore"`
	After      int      `json:"nodesAfter,omitempty"`
	Changed    []string `json:"changedBy,omitempty"`
	DurationMS float64  `json:"durationMs"`
	Input      string   `json:"input,omitempty"`
	Graph      string   `json:"graph,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// NewOptCommand creates the opt command
func NewOptCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		functions []string
		before    bool
	)
	cmd := &cobra.Command{
		Use:   "opt <file.jop>",
		Short: "Optimize the functions of a .jop file and print the graphs",
		Long: `Build every function of a .jop file (or those named with --fn) and run the
optimization pipeline on each. Compilations run in parallel on the configured
number of workers; a compilation that bails out retryably is retried.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpt(rootOpts, args[0], functions, before, cmd)
		},
	}
	cmd.Flags().StringSliceVar(&functions, "fn", nil, "functions to optimize (default all)")
	cmd.Flags().BoolVar(&before, "before", false, "also print the graphs before optimization")
	return cmd
}

func runOpt(opts *RootOptions, path string, functions []string, before bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	o, err := opts.Options()
	if err != nil {
		return err
	}
	l, err := load(f, path)
	if err != nil {
		return err
	}
	if len(functions) == 0 {
		functions = l.unit.FunctionNames()
	}
	var graphs []*ir.Graph
	for _, name := range functions {
		fn, err := l.function(f, name)
		if err != nil {
			return err
		}
		graphs = append(graphs, fn.Graph)
	}

	f.VerboseLog("optimizing %d functions with profile %s on %d workers", len(graphs), o.Profile, o.Workers)
	results := compile.NewQueue(compile.New(o)).Run(cmd.Context(), graphs)

	var (
		out  []OptResult
		text strings.Builder
	)
	for i, r := range results {
		res := OptResult{
			ID: r.ID.String(), Function: r.Name, Attempts: r.Attempts, Before: r.Before,
			After: r.After, Changed: r.Changed, DurationMS: float64(r.Duration.Microseconds()) / 1000,
		}
		if before {
			res.Input = ir.Print(graphs[i])
		}
		fmt.Fprintf(&text, "%s %s (%s)\n", color.CyanString("==="), r.Name, r.ID)
		if before {
			text.WriteString(res.Input)
			text.WriteString(color.CyanString("--- optimized\n"))
		}
		if r.OK() {
			res.Graph = ir.Print(r.Graph)
			text.WriteString(res.Graph)
			fmt.Fprintf(&text, "%s %d -> %d nodes, %d attempts\n", color.GreenString("✓"), r.Before, r.After, r.Attempts)
		} else {
			res.Error, res.Code = r.Err.Error(), jerrors.CodeOf(r.Err)
			fmt.Fprintf(&text, "%s [%s] %s\n", color.RedString("✗"), res.Code, r.Err)
		}
		out = append(out, res)
	}

	if err := compile.Errors(results); err != nil {
		return f.Error(ExitFailure, ErrCodeCompilation, err.Error(), out, text.String())
	}
	return f.Success(out, text.String())
}
