package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string // glob over scenario base names
}

// ScenarioResult is one scenario's outcome.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Cases  int      `json:"cases"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the payload of the test command.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run rewrite conformance scenarios.

Every YAML scenario under the directory is rewritten under its own policy and
checked against its expected stages, plan kinds, sample documents and
assertions. When golden/<scenario>.golden exists next to a scenario file,
the case snapshot must also match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  exprmatch test ./scenarios
  exprmatch test ./scenarios --filter "sound-*"
  exprmatch test ./scenarios --update
  exprmatch test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := NewOutputFormatter(cmd, opts.RootOptions)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return f.CommandError(ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return f.CommandError(ErrCodeGeneric, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, path := range scenarioFiles {
		sr := runScenario(path, opts, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	switch {
	case opts.Format == "json":
		return outputTestJSON(cmd, opts.RootOptions, result)
	case result.Total == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	default:
		return outputTestText(cmd, result)
	}
}

// findScenarioFiles finds the scenario files under dir whose base name
// matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	files, err := harness.FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return files, nil
	}

	matched := files[:0]
	for _, path := range files {
		ok, err := filepath.Match(filter, scenarioName(path))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, path)
		}
	}
	return matched, nil
}

// runScenario loads, runs and snapshots one scenario, printing its status
// line in text mode.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	snapshot, err := harness.Snapshot(result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("snapshot failed: %v", err))
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := updateGoldenFile(goldenPath, snapshot); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(golden, snapshot) {
			return fail(scenario.Name, "snapshot does not match golden file (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		return fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}

	if text {
		suffix := ""
		if opts.Update {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "✓ %s (%d cases)%s\n", scenario.Name, len(result.Cases), suffix)
	}
	return ScenarioResult{
		Name:  scenario.Name,
		Cases: len(result.Cases),
		Pass:  true,
	}
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioName(scenarioFile)+".golden")
}

func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// updateGoldenFile writes the snapshot as the golden file.
func updateGoldenFile(goldenPath string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// failure returns the exit error for a run with failed scenarios.
func (r TestResult) failure() error {
	if r.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", r.Failed))
}

func outputTestJSON(cmd *cobra.Command, opts *RootOptions, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	fail := result.failure()
	if fail != nil {
		response.Status = "error"
		response.Error = &CLIError{Code: ErrCodeTestFailed, Message: fail.Error()}
	}

	if err := NewOutputFormatter(cmd, opts).Respond(response); err != nil {
		return err
	}
	return fail
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if err := result.failure(); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
