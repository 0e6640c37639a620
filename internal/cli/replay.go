package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/config"
	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Policy   string // optional - rewrites recorded under this policy hash only
}

// ReplayRewriteResult holds the replay result for a single rewrite.
type ReplayRewriteResult struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	PolicyHash    string `json:"policy_hash"`
	Kind          string `json:"kind"`
	EngineVersion string `json:"engine_version"`
	Match         bool   `json:"match"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Rewrites      []ReplayRewriteResult `json:"rewrites"`
	TotalRewrites int                   `json:"total_rewrites"`
	Mismatched    int                   `json:"mismatched"`
	AllMatch      bool                  `json:"all_match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run recorded rewrites and verify they are reproduced",
		Long: `Re-run every recorded rewrite under the policy it was recorded with and
compare the fresh stages with the logged ones byte for byte.

A mismatch means the rewriter's output changed for that input since it was
recorded, for example after an engine upgrade.

Exit codes:
  0 - Every rewrite was reproduced
  1 - One or more rewrites produced different stages
  2 - Command error (database not found, etc.)

Examples:
  exprmatch replay --db ./rewrites.db
  exprmatch replay --db ./rewrites.db --policy 4be3...
  exprmatch replay --db ./rewrites.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite rewrite log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "replay rewrites recorded under this policy hash only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f := NewOutputFormatter(cmd, opts.RootOptions)

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.CommandError(ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	// Replay logs only through --verbose; the policy's own level is not used.
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	replayed, err := st.Replay(ctx, replayFunc(logger))
	if err != nil {
		return f.CommandError(ErrCodeStore, "failed to replay rewrites", err)
	}

	result := ReplayResult{
		Rewrites: make([]ReplayRewriteResult, 0, len(replayed)),
		AllMatch: true,
	}
	for _, r := range replayed {
		if opts.Policy != "" && r.Record.PolicyHash != opts.Policy {
			continue
		}
		result.Rewrites = append(result.Rewrites, ReplayRewriteResult{
			ID:            r.Record.ID,
			Seq:           r.Record.Seq,
			PolicyHash:    r.Record.PolicyHash,
			Kind:          string(r.Record.Kind),
			EngineVersion: r.Record.EngineVersion,
			Match:         r.Match,
		})
		if !r.Match {
			result.Mismatched++
			result.AllMatch = false
			logger.Warn("rewrite not reproduced",
				"id", r.Record.ID,
				"recorded", string(ir.MustMarshalJSON(stagesValue(r.Record.Stages))),
				"replayed", string(ir.MustMarshalJSON(stagesValue(r.Got))))
		}
	}
	result.TotalRewrites = len(result.Rewrites)

	if opts.Format == "json" {
		return outputReplayJSON(cmd, opts.RootOptions, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replayFunc rebuilds the optimizer for each recorded policy document.
func replayFunc(logger *slog.Logger) store.RewriteFunc {
	return func(policyDoc ir.Document, input ir.Document) ([]ir.Document, error) {
		policy, err := config.FromDocument(policyDoc)
		if err != nil {
			return nil, fmt.Errorf("recorded policy: %w", err)
		}
		opt, err := policy.Optimizer(logger)
		if err != nil {
			return nil, err
		}
		return opt.Optimize(input), nil
	}
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, opts *RootOptions, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllMatch {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplay,
			Message: fmt.Sprintf("%d rewrite(s) not reproduced", result.Mismatched),
		}
	}

	if err := NewOutputFormatter(cmd, opts).Respond(response); err != nil {
		return err
	}

	if !result.AllMatch {
		// Replay mismatch = exit code 1
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalRewrites == 0 {
		fmt.Fprintln(w, "No rewrites found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d rewrite(s)\n", result.TotalRewrites)
	fmt.Fprintln(w)

	for _, rw := range result.Rewrites {
		status := "✓"
		if !rw.Match {
			status = "✗"
		}

		fmt.Fprintf(w, "%s [%d] %s (%s)\n", status, rw.Seq, rw.ID, rw.Kind)
		if verbose {
			fmt.Fprintf(w, "  Policy: %s\n", rw.PolicyHash)
			fmt.Fprintf(w, "  Engine version: %s\n", rw.EngineVersion)
		}
		if !rw.Match {
			fmt.Fprintln(w, "  Warning: replayed stages differ from the log!")
		}
	}
	fmt.Fprintln(w)

	if result.AllMatch {
		fmt.Fprintln(w, "✓ All rewrites reproduced")
		return nil
	}

	fmt.Fprintf(w, "✗ %d rewrite(s) not reproduced\n", result.Mismatched)
	// Replay mismatch = exit code 1
	return NewExitError(ExitFailure, "replay verification failed")
}
