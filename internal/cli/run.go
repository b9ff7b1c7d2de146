package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jitopt/internal/compile"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/eval"
)

// RunResult is the JSON result of run
type RunResult struct {
	Function  string   `json:"function"`
	Args      []string `json:"args"`
	Outcome   string   `json:"outcome"`
	Trace     []string `json:"trace,omitempty"`
	Steps     int      `json:"steps"`
	Optimized string   `json:"optimized,omitempty"`
	Agrees    *bool    `json:"agrees,omitempty"`
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var optimized bool
	cmd := &cobra.Command{
		Use:   "run <file.jop> <function> [args...]",
		Short: "Run a function on the reference interpreter",
		Long: `Run a function of a .jop file on the reference interpreter. Arguments are
parsed according to the parameter types; references can only be passed as null.

With --optimized the function is also optimized and run again, and the two
executions must agree: the optimized graph may deoptimize early but must not
otherwise behave differently.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], args[1], args[2:], optimized, cmd)
		},
	}
	cmd.Flags().BoolVar(&optimized, "optimized", false, "also run the optimized graph and compare")
	return cmd
}

func traceStrings(trace []eval.Value) []string {
	out := make([]string, len(trace))
	for i, v := range trace {
		out[i] = v.String()
	}
	return out
}

func runRun(opts *RootOptions, path, name string, rawArgs []string, optimized bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	o, err := opts.Options()
	if err != nil {
		return err
	}
	l, err := load(f, path)
	if err != nil {
		return err
	}
	fn, err := l.function(f, name)
	if err != nil {
		return err
	}
	args, err := fn.ParseArgs(rawArgs)
	if err != nil {
		return f.Error(ExitCommandError, ErrCodeArguments, err.Error(), nil, "")
	}

	cfg := l.unit.EvalConfig(o.EvalStepLimit)
	ref, err := eval.Run(fn.Graph, args, cfg)
	if err != nil {
		return f.Error(ExitFailure, jerrors.CodeOf(err), err.Error(), nil, "")
	}
	res := RunResult{Function: fn.Signature(), Args: rawArgs, Outcome: ref.String(), Trace: traceStrings(ref.Trace), Steps: ref.Steps}

	var text strings.Builder
	fmt.Fprintf(&text, "%s(%s) %s\n", fn.Name, strings.Join(rawArgs, ", "), ref)
	for _, v := range res.Trace {
		fmt.Fprintf(&text, "  sink %s\n", v)
	}
	f.VerboseLog("%d steps", ref.Steps)
	if !optimized {
		return f.Success(res, text.String())
	}

	r := compile.New(o).Compile(cmd.Context(), fn.Graph)
	if !r.OK() {
		return f.Error(ExitFailure, jerrors.CodeOf(r.Err), r.Err.Error(), res, text.String()+color.RedString("✗ %s\n", r.Err))
	}
	opt, err := eval.Run(r.Graph, args, cfg)
	if err != nil {
		return f.Error(ExitFailure, jerrors.CodeOf(err), err.Error(), res, "")
	}
	agrees := eval.Equivalent(ref, opt)
	res.Optimized, res.Agrees = opt.String(), &agrees
	fmt.Fprintf(&text, "optimized %s (%d -> %d nodes)\n", opt, r.Before, r.After)
	if !agrees {
		msg := fmt.Sprintf("optimized %s but the built graph %s", opt, ref)
		return f.Error(ExitFailure, ErrCodeMismatch, msg, res, text.String()+color.RedString("✗ %s\n", msg))
	}
	text.WriteString(color.GreenString("✓ executions agree\n"))
	return f.Success(res, text.String())
}
