// Package testutil holds helpers shared by package tests: JSON fixtures
// decoded into ir values and a reproducible document corpus.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/exprmatch/internal/ir"
)

// MustValue decodes Extended JSON into a value, failing the test on error.
func MustValue(t testing.TB, s string) ir.Value {
	t.Helper()
	v, err := ir.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

// MustDocument decodes a JSON object, failing the test on error.
func MustDocument(t testing.TB, s string) ir.Document {
	t.Helper()
	doc, err := ir.ParseDocument([]byte(s))
	require.NoError(t, err)
	return doc
}

// MustDocuments decodes a JSON array of objects, failing the test on error.
func MustDocuments(t testing.TB, s string) []ir.Document {
	t.Helper()
	docs, err := ir.ParseDocuments([]byte(s))
	require.NoError(t, err)
	return docs
}

// ExprFilter wraps an aggregation expression as a {"$expr": ...} filter.
func ExprFilter(clause ir.Value) ir.Document {
	return ir.D(ir.E("$expr", clause))
}

// Op builds the operator expression {name: [args...]}.
func Op(name string, args ...ir.Value) ir.Document {
	return ir.D(ir.E(name, ir.A(args...)))
}

// Field returns the field path reference for name.
func Field(name string) ir.String {
	return ir.String("$" + name)
}
