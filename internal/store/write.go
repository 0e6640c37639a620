package store

import (
	"context"
	"fmt"

	"github.com/roach88/exprmatch/internal/ir"
)

// WritePolicy stores a policy document under its hash.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) WritePolicy(ctx context.Context, hash string, policy ir.Document) error {
	blob, err := s.marshalDocument(policy)
	if err != nil {
		return fmt.Errorf("write policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (hash, policy)
		VALUES (?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, blob)
	if err != nil {
		return fmt.Errorf("write policy: %w", err)
	}
	return nil
}

// WriteRewrite appends a rewrite record to the log.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a rewrite already in
// the log is silently ignored and keeps its original seq.
//
// Note: the policy referenced by PolicyHash must exist (foreign key
// constraint); write it first with WritePolicy.
func (s *Store) WriteRewrite(ctx context.Context, rec Record) error {
	input, err := s.marshalDocument(rec.Input)
	if err != nil {
		return fmt.Errorf("write rewrite: %w", err)
	}
	stages, err := s.marshalStages(rec.Stages)
	if err != nil {
		return fmt.Errorf("write rewrite: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rewrites
		(id, policy_hash, input, stages, kind, converted, residual, unsound, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.PolicyHash,
		input,
		stages,
		string(rec.Kind),
		rec.Converted,
		rec.Residual,
		rec.Unsound,
		rec.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("write rewrite: %w", err)
	}
	return nil
}
