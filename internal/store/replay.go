package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/exprmatch/internal/ir"
)

// RewriteFunc rewrites input under a recorded policy.
type RewriteFunc func(policy ir.Document, input ir.Document) ([]ir.Document, error)

// ReplayResult compares one recorded rewrite against a fresh run.
type ReplayResult struct {
	Record Record
	Got    []ir.Document
	Match  bool
}

// Replay re-runs every recorded rewrite through fn and compares the fresh
// stages with the recorded ones byte for byte.
//
// Results are in log order. Policies are read once per hash.
func (s *Store) Replay(ctx context.Context, fn RewriteFunc) ([]ReplayResult, error) {
	records, err := s.ListRewrites(ctx)
	if err != nil {
		return nil, err
	}

	policies := make(map[string]ir.Document)
	results := make([]ReplayResult, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		policy, ok := policies[rec.PolicyHash]
		if !ok {
			policy, err = s.ReadPolicy(ctx, rec.PolicyHash)
			if err != nil {
				return nil, fmt.Errorf("replay %s: read policy: %w", rec.ID, err)
			}
			policies[rec.PolicyHash] = policy
		}

		got, err := fn(policy, rec.Input)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", rec.ID, err)
		}

		match, err := sameStages(rec.Stages, got)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", rec.ID, err)
		}
		results = append(results, ReplayResult{Record: rec, Got: got, Match: match})
	}
	return results, nil
}

func sameStages(want, got []ir.Document) (bool, error) {
	a, err := ir.MarshalStages(want)
	if err != nil {
		return false, err
	}
	b, err := ir.MarshalStages(got)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
