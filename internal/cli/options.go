package cli

import (
	"github.com/spf13/cobra"
)

// NewOptionsCommand creates the options command, which prints the options a run would
// use after profiles, files and environment overrides are applied
func NewOptionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "options",
		Short:         "Print the resolved optimizer options",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			o, err := rootOpts.Options()
			if err != nil {
				return f.Error(GetExitCode(err), ErrCodeArguments, err.Error(), nil, "")
			}
			text, err := o.Marshal()
			if err != nil {
				return err
			}
			return f.Success(o, string(text))
		},
	}
}
