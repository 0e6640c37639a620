package geo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprmatch/internal/ir"
)

func mustGeometry(t *testing.T, s string) Geometry {
	t.Helper()
	v, err := ir.ParseJSON([]byte(s))
	require.NoError(t, err)
	g, err := ParseGeometry(v)
	require.NoError(t, err)
	return g
}

func TestBuild(t *testing.T) {
	point := `{"type":"Point","coordinates":[2,48]}`
	polygon := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`

	tests := []struct {
		relation string
		geometry string
		params   []float64
		want     string
	}{
		{"contains", point, nil, `{"loc":{"$geoIntersects":{"$geometry":{"type":"Point","coordinates":[2,48]}}}}`},
		{"intersects", polygon, nil, `{"loc":{"$geoIntersects":{"$geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}}}`},
		{"disjoint", point, nil, `{"loc":{"$not":{"$geoIntersects":{"$geometry":{"type":"Point","coordinates":[2,48]}}}}}`},
		{"within", polygon, nil, `{"loc":{"$geoWithin":{"$geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}}}`},
		{"distance_lt", point, []float64{6378100}, `{"loc":{"$geoWithin":{"$centerSphere":[[2,48],1.0]}}}`},
		{"distance_lte", point, []float64{3189050}, `{"loc":{"$geoWithin":{"$centerSphere":[[2,48],0.5]}}}`},
		{"distance_gt", point, []float64{6378100}, `{"loc":{"$not":{"$geoWithin":{"$centerSphere":[[2,48],1.0]}}}}`},
		{"distance_gte", point, []float64{0}, `{"loc":{"$not":{"$geoWithin":{"$centerSphere":[[2,48],0.0]}}}}`},
		{"dwithin", point, []float64{0.25}, `{"loc":{"$geoWithin":{"$centerSphere":[[2,48],0.25]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.relation, func(t *testing.T) {
			got, err := Build(tt.relation, "loc", mustGeometry(t, tt.geometry), tt.params...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(ir.MustMarshalJSON(got)))
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	point := mustGeometry(t, `{"type":"Point","coordinates":[2,48]}`)
	polygon := mustGeometry(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)

	_, err := Build("touches", "loc", point)
	assert.True(t, errors.Is(err, ErrUnknownRelation))

	_, err = Build("contains", "loc", polygon)
	assert.True(t, errors.Is(err, ErrUnsupportedGeometry))

	_, err = Build("distance_lt", "loc", point)
	assert.True(t, errors.Is(err, ErrMissingDistance))

	_, err = Build("dwithin", "loc", point)
	assert.True(t, errors.Is(err, ErrMissingDistance))

	_, err = Build("within", "", point)
	assert.Error(t, err)
}

func TestParseGeometry_Errors(t *testing.T) {
	for _, in := range []string{
		`[1,2]`,
		`{"coordinates":[1,2]}`,
		`{"type":1,"coordinates":[1,2]}`,
		`{"type":"Point"}`,
		`{"type":"Point","coordinates":"1,2"}`,
	} {
		v, err := ir.ParseJSON([]byte(in))
		require.NoError(t, err)

		_, err = ParseGeometry(v)
		assert.Error(t, err, in)
	}
}

func TestBuild_DoesNotAliasGeometry(t *testing.T) {
	g := mustGeometry(t, `{"type":"Point","coordinates":[2,48]}`)

	got, err := Build("intersects", "loc", g)
	require.NoError(t, err)

	g.Coordinates.(ir.Array)[0] = ir.Int(9)
	assert.Contains(t, string(ir.MustMarshalJSON(got)), `[2,48]`)
}

func TestRelations(t *testing.T) {
	assert.Equal(t, []string{
		"contains", "disjoint", "distance_gt", "distance_gte",
		"distance_lt", "distance_lte", "dwithin", "intersects", "within",
	}, Relations())
}
