package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewrites.db")

	// Reopening an existing log must keep its schema and version.
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open #%d", i)
		assert.Equal(t, currentSchemaVersion, userVersion(t, s.db), "open #%d", i)
		require.NoError(t, s.Close())
	}

	_, err := os.Stat(path)
	require.NoError(t, err)

	s := openTestStore(t)
	assert.ElementsMatch(t, []string{"policies", "rewrites"}, sqliteObjects(t, s.db, "table", ""))
	require.NoError(t, s.DB().Ping())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/rewrites.db")
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "rewrites.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NotPanics(t, func() { _ = s.Close() })
}

func TestPragmas(t *testing.T) {
	s := openTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		assert.NoError(t, s.verifyPragma(name, want))
	}
}

func TestSchema_Columns(t *testing.T) {
	s := openTestStore(t)

	assert.ElementsMatch(t, []string{
		"seq", "id", "policy_hash", "input", "stages",
		"kind", "converted", "residual", "unsound", "engine_version",
	}, tableColumns(t, s.db, "rewrites"))
	assert.ElementsMatch(t, []string{"hash", "policy"}, tableColumns(t, s.db, "policies"))
}

func TestSchema_RewriteNeedsKnownPolicy(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO rewrites (id, policy_hash, input, stages, kind, converted, residual, unsound, engine_version)
		VALUES ('rw1', 'missing', x'00', x'00', 'converted', 1, 0, 0, '0.1.0')
	`)
	assert.Error(t, err)
}

func TestMigration_FromUnversioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewrites.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
	assert.Contains(t, sqliteObjects(t, s.db, "index", "rewrites"), "idx_rewrites_policy_hash")
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

// sqliteObjects lists schema objects of one type, optionally restricted to
// those belonging to table.
func sqliteObjects(t *testing.T, db *sql.DB, typ, table string) []string {
	t.Helper()

	rows, err := db.Query(
		`SELECT name FROM sqlite_master
		 WHERE type = ? AND (? = '' OR tbl_name = ?) AND name NOT LIKE 'sqlite_%'`,
		typ, table, table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}
