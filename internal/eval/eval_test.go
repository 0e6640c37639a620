package eval

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
)

func parseDoc(t *testing.T, s string) ir.Document {
	t.Helper()
	doc, err := ir.ParseDocument([]byte(s))
	require.NoError(t, err)
	return doc
}

func parseNode(t *testing.T, s string) expr.Node {
	t.Helper()
	v, err := ir.ParseJSON([]byte(s))
	require.NoError(t, err)
	n, err := expr.Parse(v)
	require.NoError(t, err)
	return n
}

func newOptimizer(opts ...rewrite.Option) *rewrite.Optimizer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return rewrite.New(append([]rewrite.Option{rewrite.WithLogger(logger)}, opts...)...)
}

func TestExpr_Operators(t *testing.T) {
	doc := parseDoc(t, `{"a":5,"b":"x","c":[1,2],"d":{"e":true},"z":0}`)

	tests := []struct {
		in   string
		want bool
	}{
		{`{"$eq":["$a",5]}`, true},
		{`{"$eq":["$a",5.0]}`, true},
		{`{"$eq":["$a",{"$numberDecimal":"5.00"}]}`, true},
		{`{"$ne":["$a",5]}`, false},
		{`{"$gt":["$a",4]}`, true},
		{`{"$gte":["$a",5]}`, true},
		{`{"$lt":["$a",5]}`, false},
		{`{"$lte":["$b","y"]}`, true},
		{`{"$gt":["$b",100]}`, true},
		{`{"$eq":["$c",[1,2]]}`, true},
		{`{"$eq":["$c",1]}`, false},
		{`{"$eq":["$d.e",true]}`, true},
		{`{"$eq":["$missing",null]}`, true},
		{`{"$in":["$a",[1,5]]}`, true},
		{`{"$in":["$b",["y"]]}`, false},
		{`{"$and":[{"$eq":["$a",5]},"$d.e"]}`, true},
		{`{"$and":[]}`, true},
		{`{"$or":[]}`, false},
		{`{"$or":["$z",{"$eq":["$b","x"]}]}`, true},
		{`{"$not":"$z"}`, true},
		{`{"$not":["$a"]}`, false},
		{`{"$eq":["$$ROOT.a",5]}`, true},
		{`{"$eq":["$$CURRENT.b","$b"]}`, true},
		{`{"$eq":[{"x":"$a"},{"x":5}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Expr(parseNode(t, tt.in), doc)
			require.NoError(t, err)
			assert.Equal(t, ir.Bool(tt.want), v)
		})
	}
}

func TestExpr_PathThroughArray(t *testing.T) {
	doc := parseDoc(t, `{"items":[{"sku":"a"},{"sku":"b"},7]}`)

	v, err := Expr(expr.FieldRef{Path: "items.sku"}, doc)
	require.NoError(t, err)
	assert.Equal(t, ir.A(ir.String("a"), ir.String("b")), v)
}

func TestExpr_Errors(t *testing.T) {
	doc := parseDoc(t, `{"a":1}`)

	var unsupported *UnsupportedError
	_, err := Expr(parseNode(t, `{"$add":[1,2]}`), doc)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "$add", unsupported.Operator)

	_, err = Expr(parseNode(t, `{"$eq":["$a","$$NOW"]}`), doc)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "$$NOW", unsupported.Operator)

	var argErr *ArgumentError
	_, err = Expr(parseNode(t, `{"$in":["$a",1]}`), doc)
	require.True(t, errors.As(err, &argErr))

	_, err = Expr(parseNode(t, `{"$eq":["$a"]}`), doc)
	require.True(t, errors.As(err, &argErr))
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(ir.Null{}))
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(ir.Bool(false)))
	assert.False(t, Truthy(ir.Int(0)))
	assert.False(t, Truthy(ir.Float(0)))
	assert.False(t, Truthy(ir.MustDecimal("0.0")))
	assert.True(t, Truthy(ir.String("")))
	assert.True(t, Truthy(ir.A()))
	assert.True(t, Truthy(ir.Int(-1)))
}

func TestMatch(t *testing.T) {
	doc := parseDoc(t, `{"a":5,"b":"x","tags":["red","blue"],"sub":{"n":2},"rows":[{"k":1},{"k":3}],"nil":null}`)

	tests := []struct {
		filter string
		want   bool
	}{
		{`{}`, true},
		{`{"a":5}`, true},
		{`{"a":5.0}`, true},
		{`{"a":6}`, false},
		{`{"a":5,"b":"y"}`, false},
		{`{"tags":"red"}`, true},
		{`{"tags":["red","blue"]}`, true},
		{`{"tags":["blue","red"]}`, false},
		{`{"sub.n":2}`, true},
		{`{"rows.k":3}`, true},
		{`{"rows.1.k":3}`, true},
		{`{"rows.0.k":3}`, false},
		{`{"missing":null}`, true},
		{`{"nil":null}`, true},
		{`{"a":null}`, false},
		{`{"a":{"$gt":4,"$lt":6}}`, true},
		{`{"a":{"$gt":"4"}}`, false},
		{`{"b":{"$gte":"x"}}`, true},
		{`{"a":{"$ne":5}}`, false},
		{`{"missing":{"$ne":5}}`, true},
		{`{"a":{"$in":[1,5]}}`, true},
		{`{"tags":{"$in":["green","blue"]}}`, true},
		{`{"a":{"$nin":[1,5]}}`, false},
		{`{"missing":{"$in":[null]}}`, true},
		{`{"missing":{"$gte":null}}`, true},
		{`{"missing":{"$gt":null}}`, false},
		{`{"$and":[{"a":5},{"b":"x"}]}`, true},
		{`{"$or":[{"a":6},{"b":"x"}]}`, true},
		{`{"$nor":[{"a":6},{"b":"y"}]}`, true},
		{`{"$expr":{"$gt":["$a","$sub.n"]}}`, true},
		{`{"a":{"$eq":5},"$expr":{"$eq":["$b","y"]}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got, err := Match(parseDoc(t, tt.filter), doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Errors(t *testing.T) {
	doc := parseDoc(t, `{"loc":1}`)

	var unsupported *UnsupportedError
	_, err := Match(parseDoc(t, `{"loc":{"$geoWithin":{}}}`), doc)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "$geoWithin", unsupported.Operator)

	_, err = Match(parseDoc(t, `{"$where":"x"}`), doc)
	require.True(t, errors.As(err, &unsupported))

	var argErr *ArgumentError
	_, err = Match(parseDoc(t, `{"$or":[]}`), doc)
	require.True(t, errors.As(err, &argErr))

	_, err = Match(parseDoc(t, `{"loc":{"$in":1}}`), doc)
	require.True(t, errors.As(err, &argErr))
}

func TestPipeline(t *testing.T) {
	docs := []ir.Document{
		parseDoc(t, `{"a":1,"b":1}`),
		parseDoc(t, `{"a":1,"b":2}`),
		parseDoc(t, `{"a":2,"b":2}`),
	}
	stages := []ir.Document{
		parseDoc(t, `{"$match":{"a":1}}`),
		parseDoc(t, `{"$match":{"b":2}}`),
	}

	got, err := Pipeline(stages, docs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, docs[1], got[0])

	_, err = Pipeline([]ir.Document{parseDoc(t, `{"$project":{"a":1}}`)}, docs)
	var unsupported *UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "stage", unsupported.Context)
}

// sampleValues covers every simple value kind.
func sampleValues() []ir.Value {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	oid, _ := ir.ParseObjectID("5f1d7f1d7f1d7f1d7f1d7f1d")
	return []ir.Value{
		ir.Int(1), ir.Float(1.5), ir.MustDecimal("2.25"),
		ir.String("alpha"), ir.String(""),
		ir.Bool(true), ir.Bool(false),
		ir.Null{},
		ir.Timestamp(when), ir.Timestamp(when.Add(time.Hour)),
		ir.Duration(90 * time.Minute),
		oid,
	}
}

// sampleDocs holds one document per sample value under "f", plus one
// without the field.
func sampleDocs() []ir.Document {
	var docs []ir.Document
	for _, v := range sampleValues() {
		docs = append(docs, ir.D(ir.E("f", v)))
	}
	return append(docs, ir.D(ir.E("other", ir.Int(1))))
}

func TestLeafSoundness_Equality(t *testing.T) {
	o := newOptimizer()

	for _, v := range sampleValues() {
		t.Run(ir.TypeName(v), func(t *testing.T) {
			filter := ir.D(ir.E("$expr", ir.D(ir.E("$eq", ir.A(ir.String("$f"), v)))))
			plan := o.Explain(filter)
			require.Equal(t, rewrite.PlanConverted, plan.Kind)

			mismatches, err := Equivalent(filter, plan.Stages, sampleDocs())
			require.NoError(t, err)
			assert.Empty(t, mismatches)
		})
	}
}

func TestLeafSoundness_Membership(t *testing.T) {
	o := newOptimizer()
	values := sampleValues()

	sets := []ir.Array{
		{},
		{values[0]},
		{values[0], values[3], values[7]},
		ir.Array(values),
	}

	for _, set := range sets {
		filter := ir.D(ir.E("$expr", ir.D(ir.E("$in", ir.A(ir.String("$f"), set)))))
		plan := o.Explain(filter)
		require.Equal(t, rewrite.PlanConverted, plan.Kind)

		mismatches, err := Equivalent(filter, plan.Stages, sampleDocs())
		require.NoError(t, err)
		assert.Empty(t, mismatches, "set %s", ir.MustMarshalJSON(set))
	}
}

func gridDocs() []ir.Document {
	var docs []ir.Document
	for a := range 3 {
		for b := range 3 {
			for c := range 3 {
				docs = append(docs, ir.D(
					ir.E("a", ir.Int(int64(a))),
					ir.E("b", ir.Int(int64(b))),
					ir.E("c", ir.Int(int64(c))),
					ir.E("d", ir.Int(1)),
				))
			}
		}
	}
	return docs
}

func TestConjunctiveSplit_Equivalent(t *testing.T) {
	filter := parseDoc(t, `{"$expr":{"$and":[{"$eq":["$a",1]},{"$in":["$b",[0,2]]},{"$gt":["$c","$d"]}]}}`)

	plan := newOptimizer().Explain(filter)
	require.Equal(t, rewrite.PlanSplit, plan.Kind)

	mismatches, err := Equivalent(filter, plan.Stages, gridDocs())
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestDisjunctiveSplit_CompatDeviates(t *testing.T) {
	filter := parseDoc(t, `{"$expr":{"$or":[{"$eq":["$a",1]},{"$eq":["$b",2]},{"$gt":["$c","$d"]}]}}`)

	plan := newOptimizer().Explain(filter)
	require.True(t, plan.Unsound)

	mismatches, err := Equivalent(filter, plan.Stages, gridDocs())
	require.NoError(t, err)
	require.NotEmpty(t, mismatches)
	for _, m := range mismatches {
		// The rewrite only ever drops documents.
		assert.True(t, m.Original)
		assert.False(t, m.Rewritten)
	}
}

func TestDisjunctiveSplit_SoundEquivalent(t *testing.T) {
	filters := []string{
		`{"$expr":{"$or":[{"$eq":["$a",1]},{"$eq":["$b",2]},{"$gt":["$c","$d"]}]}}`,
		`{"$expr":{"$or":[{"$eq":["$a",1]},{"$gt":["$c","$d"]},{"$lt":["$b","$d"]}]}}`,
	}

	o := newOptimizer(rewrite.WithOrSplit(rewrite.OrSplitSound))
	for _, in := range filters {
		filter := parseDoc(t, in)
		plan := o.Explain(filter)
		require.Equal(t, rewrite.PlanSplit, plan.Kind)

		mismatches, err := Equivalent(filter, plan.Stages, gridDocs())
		require.NoError(t, err)
		assert.Empty(t, mismatches, in)
	}
}

func TestEquivalent_PassthroughAndNativeKeys(t *testing.T) {
	o := newOptimizer()

	for _, in := range []string{
		`{"a":1}`,
		`{"a":1,"$expr":{"$eq":["$b",2]}}`,
		`{"$expr":{}}`,
	} {
		filter := parseDoc(t, in)
		mismatches, err := Equivalent(filter, o.Optimize(filter), gridDocs())
		require.NoError(t, err)
		assert.Empty(t, mismatches, in)
	}
}

func TestConvertedLeaf_ArrayFieldDeviates(t *testing.T) {
	docs := []ir.Document{
		parseDoc(t, `{"tags":["a","b"]}`),
		parseDoc(t, `{"tags":"a"}`),
		parseDoc(t, `{"tags":["x",["a"]]}`),
		parseDoc(t, `{"items":[{"sku":"a"},{"sku":"b"}]}`),
	}

	tests := []struct {
		filter string
		differ []int
	}{
		{`{"$expr":{"$eq":["$tags","a"]}}`, []int{0}},
		{`{"$expr":{"$in":["$tags",["a"]]}}`, []int{0}},
		{`{"$expr":{"$eq":["$tags",["a"]]}}`, []int{2}},
		{`{"$expr":{"$eq":["$items.sku","a"]}}`, []int{3}},
	}

	o := newOptimizer()
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			filter := parseDoc(t, tt.filter)
			plan := o.Explain(filter)
			require.Equal(t, rewrite.PlanConverted, plan.Kind)

			mismatches, err := Equivalent(filter, plan.Stages, docs)
			require.NoError(t, err)

			var got []int
			for _, m := range mismatches {
				got = append(got, m.Index)
				// The native form matches arrays by element: it only adds documents.
				assert.False(t, m.Original)
				assert.True(t, m.Rewritten)
			}
			assert.Equal(t, tt.differ, got)
		})
	}
}
