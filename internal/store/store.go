package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stored in PRAGMA user_version. Version 1 adds
// the (policy_hash, seq) index; databases created before it report 0.
const currentSchemaVersion = 1

// pragmas are applied on every open, in order.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations[i] upgrades a log from user_version i to i+1.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_rewrites_policy_hash ON rewrites(policy_hash, seq)`,
}

// Store is the SQLite-backed rewrite log. Filter documents and stage lists
// are kept zstd-compressed.
type Store struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens the rewrite log at path, creating it when missing, and brings
// its schema up to date. Opening an existing log is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: pragmas are per connection and SQLite has a single writer.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply pragmas: %q: %w", stmt, err)
		}
	}

	if err := migrate(s.db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var err error
	if s.encoder, err = zstd.NewWriter(nil); err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	if s.decoder, err = zstd.NewReader(nil); err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return nil
}

// Close releases the codecs and the database. Calling it again is a no-op.
func (s *Store) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB exposes the connection for ad hoc queries such as scenario assertions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates missing tables, then runs each migration above the
// stored user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma reports whether the named pragma currently reads expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// LastSeq returns the highest seq number in the log, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM rewrites`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
