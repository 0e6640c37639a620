package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
)

const rewriteColumns = `seq, id, policy_hash, input, stages, kind, converted, residual, unsound, engine_version`

// ReadPolicy retrieves a policy document by hash.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadPolicy(ctx context.Context, hash string) (ir.Document, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT policy FROM policies WHERE hash = ?
	`, hash).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return s.unmarshalDocument(blob)
}

// ReadRewrite retrieves a single rewrite by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRewrite(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rewriteColumns+`
		FROM rewrites
		WHERE id = ?
	`, id)
	return s.scanRecord(row)
}

// ListRewrites returns every rewrite in log order.
// Results ordered by seq ASC, id ASC.
func (s *Store) ListRewrites(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewriteColumns+`
		FROM rewrites
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list rewrites: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rewrites: %w", err)
	}
	return records, nil
}

// ListRewritesForPolicy returns the rewrites recorded under one policy.
// Results ordered by seq ASC, id ASC.
func (s *Store) ListRewritesForPolicy(ctx context.Context, policyHash string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewriteColumns+`
		FROM rewrites
		WHERE policy_hash = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, policyHash)
	if err != nil {
		return nil, fmt.Errorf("list rewrites for policy: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rewrites for policy: %w", err)
	}
	return records, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(row rowScanner) (Record, error) {
	var (
		rec           Record
		kind          string
		input, stages []byte
	)
	if err := row.Scan(
		&rec.Seq, &rec.ID, &rec.PolicyHash, &input, &stages,
		&kind, &rec.Converted, &rec.Residual, &rec.Unsound, &rec.EngineVersion,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan rewrite: %w", err)
	}
	rec.Kind = rewrite.PlanKind(kind)

	var err error
	if rec.Input, err = s.unmarshalDocument(input); err != nil {
		return Record{}, fmt.Errorf("rewrite %s: %w", rec.ID, err)
	}
	if rec.Stages, err = s.unmarshalStages(stages); err != nil {
		return Record{}, fmt.Errorf("rewrite %s: %w", rec.ID, err)
	}
	return rec, nil
}
