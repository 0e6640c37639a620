package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/rewrite"
)

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Kind       string          `json:"kind"`
	Combinator string          `json:"combinator,omitempty"`
	Converted  int             `json:"converted"`
	Residual   int             `json:"residual"`
	Unsound    bool            `json:"unsound"`
	OrSplit    string          `json:"or_split"`
	Stages     json.RawMessage `json:"stages"`
	Expression *expr.Report    `json:"expression,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "explain [filter.json|-]",
		Short: "Show how a filter would be rewritten",
		Long: `Show how a filter would be rewritten without recording it.

Reports the plan kind, how many top-level terms were converted, how many
stayed residual, whether a partial $or split selects fewer documents than
the original, and a summary of the $expr clause: its depth, the operators,
fields and variables it references, and why parts of it cannot be pushed
into a native condition.

Examples:
  exprmatch explain filter.json
  exprmatch explain --config sound.cue --format json filter.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := NewOutputFormatter(cmd, opts)

	policy, err := loadPolicy(f, opts)
	if err != nil {
		return err
	}

	opt, err := policy.Optimizer(newLogger(cmd, opts, policy))
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

	result := ExplainResult{
		Kind:       string(plan.Kind),
		Combinator: plan.Combinator,
		Converted:  plan.Converted,
		Residual:   len(plan.Residual),
		Unsound:    plan.Unsound,
		OrSplit:    opt.OrSplit().String(),
		Stages:     stages,
	}
	if clause, ok := filter.Get(rewrite.KeyExpr); ok {
		// A clause that fails to parse is still reported by kind and stages.
		if n, err := expr.Parse(clause); err == nil {
			report := expr.Inspect(n)
			result.Expression = &report
		}
	}

	if opts.Format == "json" {
		return f.Success(result)
	}
	return outputExplainText(cmd, result)
}

// outputExplainText outputs the explain result as text.
func outputExplainText(cmd *cobra.Command, result ExplainResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Kind: %s\n", result.Kind)
	if result.Combinator != "" {
		fmt.Fprintf(w, "Combinator: %s\n", result.Combinator)
	}
	fmt.Fprintf(w, "Converted: %d\n", result.Converted)
	fmt.Fprintf(w, "Residual: %d\n", result.Residual)
	if result.Unsound {
		fmt.Fprintf(w, "Warning: partial %s split selects fewer documents (or_split=%s)\n",
			result.Combinator, result.OrSplit)
	}
	fmt.Fprintf(w, "Stages: %s\n", result.Stages)

	if r := result.Expression; r != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Expression depth: %d\n", r.Depth)
		fmt.Fprintf(w, "Operators: %s\n", joinOrNone(r.Operators))
		fmt.Fprintf(w, "Fields: %s\n", joinOrNone(r.Fields))
		fmt.Fprintf(w, "Variables: %s\n", joinOrNone(r.Variables))
		fmt.Fprintf(w, "Pushable: %t\n", r.Pushable)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
