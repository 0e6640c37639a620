package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/exprmatch/internal/ir"
)

// Snapshot renders case results for golden comparison: one compact JSON
// line per case holding its name, plan kind and stages.
func Snapshot(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	for i, c := range result.Cases {
		if i > 0 {
			buf.WriteByte('\n')
		}
		stages := make(ir.Array, len(c.Stages))
		for j, s := range c.Stages {
			stages[j] = s
		}
		line, err := ir.MarshalJSON(ir.D(
			ir.E("case", ir.String(c.Name)),
			ir.E("kind", ir.String(string(c.Kind))),
			ir.E("stages", stages),
		))
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)

	return nil
}
