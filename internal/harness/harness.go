package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/exprmatch/internal/config"
	"github.com/roach88/exprmatch/internal/eval"
	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
	"github.com/roach88/exprmatch/internal/store"
)

// CaseResult is the outcome of rewriting one case.
type CaseResult struct {
	Name       string           `json:"name"`
	ID         string           `json:"id"`
	Kind       rewrite.PlanKind `json:"kind"`
	Unsound    bool             `json:"unsound,omitempty"`
	Stages     []ir.Document    `json:"-"`
	Mismatches int              `json:"mismatches,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Cases holds one entry per scenario case, in order.
	Cases []CaseResult `json:"cases"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []CaseResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Case returns the result of the named case.
func (r *Result) Case(name string) (CaseResult, bool) {
	for _, c := range r.Cases {
		if c.Name == name {
			return c, true
		}
	}
	return CaseResult{}, false
}

// Harness runs scenario cases against one optimizer and rewrite log.
type Harness struct {
	store      *store.Store
	optimizer  *rewrite.Optimizer
	policyHash string
	logger     *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Parse the policy and build the optimizer
// 2. Create a fresh in-memory rewrite log and record the policy
// 3. Rewrite every case, recording it and checking its expectations
// 4. Evaluate assertions against the results and the log
//
// Errors that make the scenario impossible to run are returned; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	policy, err := config.Parse([]byte(scenario.Policy), scenario.Name+".policy.cue")
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opt, err := policy.Optimizer(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build optimizer: %w", err)
	}
	policyHash, err := policy.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash policy: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.WritePolicy(ctx, policyHash, policy.Document()); err != nil {
		return nil, fmt.Errorf("failed to record policy: %w", err)
	}

	h := &Harness{
		store:      st,
		optimizer:  opt,
		policyHash: policyHash,
		logger:     logger,
	}

	result := NewResult()
	for i := range scenario.Cases {
		if err := h.executeCase(ctx, &scenario.Cases[i], result); err != nil {
			return nil, fmt.Errorf("case %q: %w", scenario.Cases[i].Name, err)
		}
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeCase rewrites one case, records it and checks its expectations.
func (h *Harness) executeCase(ctx context.Context, c *Case, result *Result) error {
	input, err := nodeDocument(&c.Input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}

	plan := h.optimizer.Explain(input)

	rec, err := store.NewRecord(h.policyHash, input, plan)
	if err != nil {
		return err
	}
	if err := h.store.WriteRewrite(ctx, rec); err != nil {
		return err
	}

	cr := CaseResult{
		Name:    c.Name,
		ID:      rec.ID,
		Kind:    plan.Kind,
		Unsound: plan.Unsound,
		Stages:  plan.Stages,
	}

	if c.Kind != "" && string(plan.Kind) != c.Kind {
		result.AddError(fmt.Sprintf("case %q: kind = %s, want %s", c.Name, plan.Kind, c.Kind))
	}

	if c.Expect.Kind != 0 {
		want, err := nodeDocuments(&c.Expect)
		if err != nil {
			return fmt.Errorf("expect: %w", err)
		}
		if msg, err := compareStages(want, plan.Stages); err != nil {
			return err
		} else if msg != "" {
			result.AddError(fmt.Sprintf("case %q: %s", c.Name, msg))
		}
	}

	if c.Documents.Kind != 0 {
		docs, err := nodeDocuments(&c.Documents)
		if err != nil {
			return fmt.Errorf("documents: %w", err)
		}
		mismatches, err := eval.Equivalent(input, plan.Stages, docs)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		cr.Mismatches = len(mismatches)

		wantEquivalent := c.Equivalent == nil || *c.Equivalent
		switch {
		case wantEquivalent && len(mismatches) > 0:
			m := mismatches[0]
			result.AddError(fmt.Sprintf(
				"case %q: rewrite is not equivalent on document %d %s: original=%t rewritten=%t",
				c.Name, m.Index, ir.MustMarshalJSON(m.Document), m.Original, m.Rewritten))
		case !wantEquivalent && len(mismatches) == 0:
			result.AddError(fmt.Sprintf(
				"case %q: rewrite selects the same documents, want a difference", c.Name))
		}
	}

	result.Cases = append(result.Cases, cr)

	h.logger.Info("case rewritten",
		"case", c.Name,
		"id", rec.ID,
		"kind", plan.Kind,
		"converted", plan.Converted,
		"residual", len(plan.Residual),
	)
	return nil
}

// compareStages returns a description of the difference between want and
// got, or "" when they encode identically.
func compareStages(want, got []ir.Document) (string, error) {
	wantJSON, err := ir.MarshalStages(want)
	if err != nil {
		return "", fmt.Errorf("encode expected stages: %w", err)
	}
	gotJSON, err := ir.MarshalStages(got)
	if err != nil {
		return "", fmt.Errorf("encode stages: %w", err)
	}
	if bytes.Equal(wantJSON, gotJSON) {
		return "", nil
	}
	return fmt.Sprintf("stages = %s, want %s", gotJSON, wantJSON), nil
}
