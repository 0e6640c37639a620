// Package harness provides conformance testing for $expr rewrites.
//
// The harness loads YAML scenarios, rewrites every case under the scenario's
// policy, checks the produced stages and evaluates assertions against the
// results and the rewrite log.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	policy: |
//	  or_split: "sound"
//	cases:
//	  - name: equality
//	    input: {"$expr": {"$eq": ["$status", "active"]}}
//	    expect:
//	      - {"$match": {"status": "active"}}
//	    kind: converted
//	    documents:
//	      - {"status": "active"}
//	      - {"status": "closed"}
//	assertions:
//	  - type: case_kind
//	    case: equality
//	    kind: converted
//	  - type: final_state
//	    table: rewrites
//	    where: { kind: "converted" }
//	    expect: { converted: 1 }
//
// Inputs, expected stages and documents are YAML values converted to ordered
// documents; Extended JSON wrappers such as {"$date": "..."} are recognised.
// The policy is CUE source, see package config.
//
// When a case lists documents, the original filter and the rewritten stages
// are evaluated against them and must select the same documents, unless the
// case sets equivalent: false, in which case they must differ.
//
// # Assertion Types
//
//   - case_kind: the named case produced a plan of the given kind
//   - kind_count: exactly N cases produced a plan of the given kind
//   - unsound_count: exactly N cases produced an unsound split
//   - final_state: queries a rewrite log table and verifies expected values
//
// # Determinism
//
// Every scenario runs against a fresh in-memory rewrite log. Rewrite ids are
// content hashes, so results and golden snapshots are identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/conjunctive.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
