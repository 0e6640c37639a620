package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/config"
	"github.com/roach88/exprmatch/internal/eval"
	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
	"github.com/roach88/exprmatch/internal/store"
)

// OptimizeOptions holds flags for the optimize command.
type OptimizeOptions struct {
	*RootOptions
	Database string // record the rewrite in this log
	Verify   string // JSON array of sample documents
}

// OptimizeResult is the JSON payload of the optimize command.
type OptimizeResult struct {
	ID         string           `json:"id,omitempty"`
	Kind       string           `json:"kind"`
	Stages     json.RawMessage  `json:"stages"`
	Unsound    bool             `json:"unsound,omitempty"`
	Verified   int              `json:"verified,omitempty"`
	Mismatches []VerifyMismatch `json:"mismatches,omitempty"`
}

// VerifyMismatch reports a sample document the rewrite treats differently.
type VerifyMismatch struct {
	Index     int             `json:"index"`
	Document  json.RawMessage `json:"document"`
	Original  bool            `json:"original"`
	Rewritten bool            `json:"rewritten"`
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptimizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "optimize [filter.json|-]",
		Short: "Rewrite a filter into $match stages",
		Long: `Rewrite a filter document into a list of $match stages.

The filter is read from the named file, or from stdin when the argument is
omitted or "-". The stages are printed as a JSON array.

With --verify, the original filter and the stages are evaluated against the
sample documents and any document they disagree on is reported.

With --db, the rewrite is appended to the rewrite log together with the
policy that produced it.

Exit codes:
  0 - Rewrite succeeded (and verified, if requested)
  1 - The rewrite selects different sample documents
  2 - Command error (invalid filter, policy or database)

Examples:
  exprmatch optimize filter.json
  echo '{"$expr":{"$eq":["$a",1]}}' | exprmatch optimize
  exprmatch optimize --config policy.cue --db ./rewrites.db filter.json
  exprmatch optimize --verify docs.json filter.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the rewrite in this SQLite rewrite log")
	cmd.Flags().StringVar(&opts.Verify, "verify", "", "JSON array of documents to check equivalence against")

	return cmd
}

func runOptimize(opts *OptimizeOptions, args []string, cmd *cobra.Command) error {
	f := NewOutputFormatter(cmd, opts.RootOptions)

	policy, err := loadPolicy(f, opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, opts.RootOptions, policy)

	opt, err := policy.Optimizer(logger)
	if err != nil {
		return f.CommandError(ErrCodePolicy, "invalid policy", err)
	}

	filter, err := readFilter(cmd, f, args)
	if err != nil {
		return err
	}

	plan := opt.Explain(filter)

	stages, err := rawJSON(stagesValue(plan.Stages))
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	result := OptimizeResult{
		Kind:    string(plan.Kind),
		Stages:  stages,
		Unsound: plan.Unsound,
	}

	if opts.Database != "" {
		id, err := recordRewrite(cmd.Context(), f, opts.Database, policy, filter, plan)
		if err != nil {
			return err
		}
		result.ID = id
		logger.Info("rewrite recorded", "id", id, "db", opts.Database)
	}

	if opts.Verify != "" {
		docs, err := readDocuments(f, opts.Verify)
		if err != nil {
			return err
		}
		mismatches, err := eval.Equivalent(filter, plan.Stages, docs)
		if err != nil {
			return f.CommandError(ErrCodeGeneric, "failed to evaluate documents", err)
		}
		result.Verified = len(docs)
		for _, m := range mismatches {
			doc, err := rawJSON(m.Document)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			result.Mismatches = append(result.Mismatches, VerifyMismatch{
				Index:     m.Index,
				Document:  doc,
				Original:  m.Original,
				Rewritten: m.Rewritten,
			})
		}
	}

	if opts.Format == "json" {
		return outputOptimizeJSON(cmd, opts.RootOptions, result)
	}
	return outputOptimizeText(cmd, opts.RootOptions, plan, result, opts.Verify != "")
}

// recordRewrite appends the rewrite and its policy to the log at path.
func recordRewrite(ctx context.Context, f *OutputFormatter, path string, policy config.Policy, filter ir.Document, plan rewrite.Plan) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(path)
	if err != nil {
		return "", f.CommandError(ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	hash, err := policy.Hash()
	if err != nil {
		return "", fmt.Errorf("hash policy: %w", err)
	}
	if err := st.WritePolicy(ctx, hash, policy.Document()); err != nil {
		return "", f.CommandError(ErrCodeStore, "failed to record policy", err)
	}

	rec, err := store.NewRecord(hash, filter, plan)
	if err != nil {
		return "", err
	}
	if err := st.WriteRewrite(ctx, rec); err != nil {
		return "", f.CommandError(ErrCodeStore, "failed to record rewrite", err)
	}
	return rec.ID, nil
}

// outputOptimizeJSON outputs the optimize result as JSON.
func outputOptimizeJSON(cmd *cobra.Command, opts *RootOptions, result OptimizeResult) error {
	f := NewOutputFormatter(cmd, opts)
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if len(result.Mismatches) > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeEquivalence,
			Message: fmt.Sprintf("rewrite differs on %d of %d documents", len(result.Mismatches), result.Verified),
		}
	}

	if err := f.Respond(response); err != nil {
		return err
	}

	if len(result.Mismatches) > 0 {
		return NewExitError(ExitFailure, "rewrite is not equivalent on the sample documents")
	}
	return nil
}

// outputOptimizeText prints the stages, followed by the verification
// summary when one was requested.
func outputOptimizeText(cmd *cobra.Command, opts *RootOptions, plan rewrite.Plan, result OptimizeResult, verified bool) error {
	w := cmd.OutOrStdout()

	out, err := ir.MarshalIndent(stagesValue(plan.Stages), "  ")
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	fmt.Fprintln(w, string(out))

	f := NewOutputFormatter(cmd, opts)
	f.VerboseLog("kind: %s", result.Kind)
	if result.ID != "" {
		f.VerboseLog("recorded: %s", result.ID)
	}

	if !verified {
		return nil
	}

	if len(result.Mismatches) == 0 {
		fmt.Fprintf(w, "✓ Equivalent on %d document(s)\n", result.Verified)
		return nil
	}

	fmt.Fprintf(w, "✗ Rewrite differs on %d of %d document(s)\n", len(result.Mismatches), result.Verified)
	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "  [%d] %s original=%t rewritten=%t\n", m.Index, m.Document, m.Original, m.Rewritten)
	}
	return NewExitError(ExitFailure, "rewrite is not equivalent on the sample documents")
}
