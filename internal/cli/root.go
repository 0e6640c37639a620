package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // policy file; empty means the default policy
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the exprmatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "exprmatch",
		Short: "exprmatch - rewrite $expr filters into native $match conditions",
		Long: `Rewrite MongoDB $expr filters into native $match conditions that can use indexes.

Equality and membership tests against field paths are converted; everything
else stays in a residual $expr clause. The policy file selects the converters,
the recursion limit and how partial $or splits are emitted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "policy file (CUE)")

	// Add subcommands
	cmd.AddCommand(NewOptimizeCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewGeoCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadPolicy reads the policy named by --config, or returns the default.
func loadPolicy(f *OutputFormatter, opts *RootOptions) (config.Policy, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	policy, err := config.Load(opts.Config)
	if err != nil {
		return config.Policy{}, f.CommandError(ErrCodePolicy, "failed to load policy", err)
	}
	return policy, nil
}

// newLogger returns a text logger on the command's stderr at the policy's
// level, lowered to debug by --verbose.
func newLogger(cmd *cobra.Command, opts *RootOptions, policy config.Policy) *slog.Logger {
	level := policy.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}
