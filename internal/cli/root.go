// Package cli implements the jitopt command line: checking .jop files, optimizing
// their functions and running them on the reference interpreter.
package cli

import (
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"jitopt/internal/options"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // options file, overrides Profile
	Profile string
	NoColor bool
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// Options resolves the optimizer options selected by the flags
func (o *RootOptions) Options() (options.Options, error) {
	opts, err := options.Resolve(o.Profile, o.Config)
	if err != nil {
		return options.Options{}, WrapExitError(ExitCommandError, "invalid options", err)
	}
	return opts, nil
}

// NewRootCommand creates the root command
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "jitopt",
		Short:   "Canonicalize and eliminate conditions in sea-of-nodes graphs",
		Long:    "jitopt builds graphs from .jop files, optimizes them and checks the result against a reference interpreter.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.NoColor || opts.Format == "json" {
				color.NoColor = true
			}
			verbosity := 0
			if opts.Verbose {
				verbosity = 2
			}
			commonlog.Configure(verbosity, nil)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "YAML options file")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", fmt.Sprintf("options profile %v", options.Profiles()))
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewOptCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewFmtCommand(opts))
	cmd.AddCommand(NewOptionsCommand(opts))

	return cmd
}
