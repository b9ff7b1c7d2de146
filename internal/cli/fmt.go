package cli

import (
	"os"

	"github.com/spf13/cobra"

	"jitopt/grammar"
)

// NewFmtCommand creates the fmt command
func NewFmtCommand(rootOpts *RootOptions) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:           "fmt <file.jop>",
		Short:         "Print a .jop file in canonical layout",
		Long:          "Print a .jop file in canonical layout. Comments are dropped.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			source, err := os.ReadFile(args[0])
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeNotFound, err.Error(), nil, "")
			}
			prog, err := grammar.Parse(args[0], string(source))
			if err != nil {
				d := grammar.Diagnostic(err)
				return f.Error(ExitFailure, d.Code, d.Error(), nil, "")
			}
			formatted := prog.String()
			if write {
				if err := os.WriteFile(args[0], []byte(formatted), 0o644); err != nil {
					return f.Error(ExitCommandError, ErrCodeNotFound, err.Error(), nil, "")
				}
				f.VerboseLog("formatted %s", args[0])
				return f.Success(map[string]string{"file": args[0]}, "")
			}
			return f.Success(map[string]string{"file": args[0], "source": formatted}, formatted)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}
