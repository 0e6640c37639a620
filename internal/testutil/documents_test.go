package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/exprmatch/internal/ir"
)

func TestMustDocument(t *testing.T) {
	doc := MustDocument(t, `{"b": 1, "a": {"$numberLong": "2"}}`)
	assert.Equal(t, []string{"b", "a"}, doc.Keys())

	v, ok := doc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, ir.Int(2), v)
}

func TestMustDocuments(t *testing.T) {
	docs := MustDocuments(t, `[{"a": 1}, {}]`)
	assert.Len(t, docs, 2)
}

func TestExprFilterBuilders(t *testing.T) {
	filter := ExprFilter(Op("$eq", Field("status"), ir.String("active")))
	assert.Equal(t,
		`{"$expr":{"$eq":["$status","active"]}}`,
		string(ir.MustMarshalJSON(filter)))
	assert.Equal(t, MustValue(t, `{"$expr":{"$eq":["$status","active"]}}`), ir.Value(filter))
}
