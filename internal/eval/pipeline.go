package eval

import (
	"github.com/roach88/exprmatch/internal/ir"
)

// Pipeline applies a list of $match stages to docs in order and returns the
// documents that pass all of them. Other stage kinds are not supported.
func Pipeline(stages []ir.Document, docs []ir.Document) ([]ir.Document, error) {
	out := docs
	for _, stage := range stages {
		filter, err := matchFilter(stage)
		if err != nil {
			return nil, err
		}
		var kept []ir.Document
		for _, doc := range out {
			ok, err := Match(filter, doc)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, doc)
			}
		}
		out = kept
	}
	return out, nil
}

func matchFilter(stage ir.Document) (ir.Document, error) {
	if len(stage) != 1 || stage[0].Key != "$match" {
		name := "{}"
		if len(stage) > 0 {
			name = stage[0].Key
		}
		return nil, &UnsupportedError{Context: "stage", Operator: name}
	}
	filter, ok := stage[0].Value.(ir.Document)
	if !ok {
		return nil, &ArgumentError{Operator: "$match", Message: "argument must be a document, got " + ir.TypeName(stage[0].Value)}
	}
	return filter, nil
}

// Mismatch records a document that a filter and its rewrite disagree on.
type Mismatch struct {
	Index     int
	Document  ir.Document
	Original  bool
	Rewritten bool
}

// Equivalent evaluates filter and the stages produced from it against every
// document and returns the documents on which they disagree. An empty result
// means the rewrite is equivalent on this sample.
//
// A filter without $expr is returned unchanged by the optimizer rather than
// wrapped in $match; such stages are evaluated as filters.
func Equivalent(filter ir.Document, stages []ir.Document, docs []ir.Document) ([]Mismatch, error) {
	passthrough := !filter.Has("$expr")

	var mismatches []Mismatch
	for i, doc := range docs {
		want, err := Match(filter, doc)
		if err != nil {
			return nil, err
		}

		got := true
		for _, stage := range stages {
			f := stage
			if !passthrough {
				if f, err = matchFilter(stage); err != nil {
					return nil, err
				}
			}
			ok, err := Match(f, doc)
			if err != nil {
				return nil, err
			}
			if !ok {
				got = false
				break
			}
		}

		if want != got {
			mismatches = append(mismatches, Mismatch{Index: i, Document: doc, Original: want, Rewritten: got})
		}
	}
	return mismatches, nil
}
