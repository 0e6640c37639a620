package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
)

// Scenario defines a conformance test scenario: a policy and the cases
// rewritten under it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is CUE policy source. Empty means the default policy.
	Policy string `yaml:"policy,omitempty"`

	// Cases are rewritten in order.
	Cases []Case `yaml:"cases"`

	// Assertions validate the case results and the rewrite log.
	// Supported types: case_kind, kind_count, unsound_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case is one filter to rewrite.
type Case struct {
	// Name identifies the case within its scenario.
	Name string `yaml:"name"`

	// Input is the filter document.
	Input yaml.Node `yaml:"input"`

	// Expect is the exact expected stage list. Omitted means unchecked.
	Expect yaml.Node `yaml:"expect,omitempty"`

	// Kind is the expected plan kind. Omitted means unchecked.
	Kind string `yaml:"kind,omitempty"`

	// Documents are evaluated against the original filter and the rewrite.
	Documents yaml.Node `yaml:"documents,omitempty"`

	// Equivalent states whether the rewrite must select the same documents
	// as the original. Defaults to true.
	Equivalent *bool `yaml:"equivalent,omitempty"`
}

// Assertion validates case results or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "case_kind": Check the plan kind of one case
	// - "kind_count": Check how many cases produced a plan kind
	// - "unsound_count": Check how many cases produced an unsound split
	// - "final_state": Query table and verify expected values
	Type string `yaml:"type"`

	// Case is the case name (used by case_kind).
	Case string `yaml:"case,omitempty"`

	// Kind is the plan kind (used by case_kind and kind_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of cases (used by kind_count and unsound_count).
	Count int `yaml:"count,omitempty"`

	// Table is the log table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCaseKind     = "case_kind"
	AssertKindCount    = "kind_count"
	AssertUnsoundCount = "unsound_count"
	AssertFinalState   = "final_state"
)

var planKinds = map[string]bool{
	string(rewrite.PlanPassthrough): true,
	string(rewrite.PlanEmpty):       true,
	string(rewrite.PlanConverted):   true,
	string(rewrite.PlanSplit):       true,
	string(rewrite.PlanResidual):    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		seen[c.Name] = true

		if c.Input.Kind != yaml.MappingNode {
			return fmt.Errorf("cases[%d]: input is required and must be a mapping", i)
		}
		if c.Expect.Kind != 0 && c.Expect.Kind != yaml.SequenceNode {
			return fmt.Errorf("cases[%d]: expect must be a list of stages", i)
		}
		if c.Documents.Kind != 0 && c.Documents.Kind != yaml.SequenceNode {
			return fmt.Errorf("cases[%d]: documents must be a list", i)
		}
		if c.Kind != "" && !planKinds[c.Kind] {
			return fmt.Errorf("cases[%d]: unknown plan kind %q", i, c.Kind)
		}
		if c.Equivalent != nil && c.Documents.Kind == 0 {
			return fmt.Errorf("cases[%d]: equivalent requires documents", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, seen); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, cases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCaseKind:
		if !cases[a.Case] {
			return fmt.Errorf("assertions[%d]: case_kind references unknown case %q", index, a.Case)
		}
		if !planKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown plan kind %q", index, a.Kind)
		}
	case AssertKindCount:
		if !planKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown plan kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for kind_count", index)
		}
	case AssertUnsoundCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for unsound_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// nodeDocument converts a YAML mapping to a document.
func nodeDocument(n *yaml.Node) (ir.Document, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("line %d: expected a mapping, got %s", n.Line, ir.TypeName(v))
	}
	return doc, nil
}

// nodeDocuments converts a YAML sequence of mappings to documents.
func nodeDocuments(n *yaml.Node) ([]ir.Document, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	docs := make([]ir.Document, 0, len(n.Content))
	for i, item := range n.Content {
		doc, err := nodeDocument(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// nodeValue converts a YAML node to a value, keeping mapping key order.
// Extended JSON wrappers are resolved by a round trip through the JSON codec.
func nodeValue(n *yaml.Node) (ir.Value, error) {
	raw, err := rawValue(n)
	if err != nil {
		return nil, err
	}
	data, err := ir.MarshalJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return ir.ParseJSON(data)
}

func rawValue(n *yaml.Node) (ir.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return ir.Null{}, nil
		}
		return rawValue(n.Content[0])
	case yaml.AliasNode:
		return rawValue(n.Alias)
	case yaml.MappingNode:
		doc := make(ir.Document, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			val, err := rawValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			doc = append(doc, ir.E(key.Value, val))
		}
		return doc, nil
	case yaml.SequenceNode:
		arr := make(ir.Array, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := rawValue(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func scalarValue(n *yaml.Node) (ir.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.Int(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			var decoded float64
			if derr := n.Decode(&decoded); derr != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			f = decoded
		}
		return ir.Float(f), nil
	default:
		return ir.String(n.Value), nil
	}
}
