package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	TotalCases     int               `json:"total_cases"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios returns the YAML scenario files under dir, sorted.
// A path naming a single file is returned as is.
func FindScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario under dir.
//
// Scenarios that fail to load or run are reported as failures rather than
// aborting the suite.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Path:   path,
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   []string{fmt.Sprintf("scenario execution failed: %v", err)},
			})
			continue
		}
		result.TotalCases += len(runResult.Cases)

		if !runResult.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   runResult.Errors,
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}
