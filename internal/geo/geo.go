// Package geo maps named spatial relations to native geo-query fragments.
//
// The table is consumed by query builders as an opaque operator set; the
// rewriter never produces or inspects these fragments.
//
//	contains     {field: {"$geoIntersects": {"$geometry": g}}}   Point only
//	intersects   {field: {"$geoIntersects": {"$geometry": g}}}
//	disjoint     {field: {"$not": {"$geoIntersects": {"$geometry": g}}}}
//	within       {field: {"$geoWithin": {"$geometry": g}}}
//	distance_lt  {field: {"$geoWithin": {"$centerSphere": [coords, meters/R]}}}
//	distance_gt  {field: {"$not": {"$geoWithin": {"$centerSphere": [coords, meters/R]}}}}
//	dwithin      {field: {"$geoWithin": {"$centerSphere": [coords, radians]}}}
//
// R is EarthRadiusMeters. The _lte and _gte variants map like _lt and _gt.
package geo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/exprmatch/internal/ir"
)

// EarthRadiusMeters converts a distance in meters to radians for
// $centerSphere.
const EarthRadiusMeters = 6378100

var (
	// ErrUnknownRelation is returned for a relation name not in the table.
	ErrUnknownRelation = errors.New("unknown spatial relation")

	// ErrUnsupportedGeometry is returned when a relation cannot take the
	// query geometry's type.
	ErrUnsupportedGeometry = errors.New("unsupported query geometry")

	// ErrMissingDistance is returned when a distance relation has no
	// distance parameter.
	ErrMissingDistance = errors.New("distance parameter required")
)

// Geometry is a GeoJSON geometry.
type Geometry struct {
	Type        string
	Coordinates ir.Value
}

// ParseGeometry reads a GeoJSON geometry document with "type" and
// "coordinates" keys. Other keys are ignored.
func ParseGeometry(v ir.Value) (Geometry, error) {
	doc, ok := v.(ir.Document)
	if !ok {
		return Geometry{}, fmt.Errorf("geometry must be a document, got %s", ir.TypeName(v))
	}
	typ, ok := doc.Get("type")
	name, isStr := typ.(ir.String)
	if !ok || !isStr || name == "" {
		return Geometry{}, errors.New("geometry requires a string \"type\"")
	}
	coords, ok := doc.Get("coordinates")
	if !ok {
		return Geometry{}, errors.New("geometry requires \"coordinates\"")
	}
	if _, isArr := coords.(ir.Array); !isArr {
		return Geometry{}, fmt.Errorf("geometry coordinates must be an array, got %s", ir.TypeName(coords))
	}
	return Geometry{Type: string(name), Coordinates: coords}, nil
}

// Document returns the geometry as a GeoJSON document.
func (g Geometry) Document() ir.Document {
	return ir.D(
		ir.E("type", ir.String(g.Type)),
		ir.E("coordinates", ir.Clone(g.Coordinates)),
	)
}

// builder produces the fragment for one relation.
type builder func(field string, g Geometry, params []float64) (ir.Document, error)

var relations = map[string]builder{
	"contains":     buildContains,
	"intersects":   buildIntersects,
	"disjoint":     buildDisjoint,
	"within":       buildWithin,
	"distance_gt":  buildDistanceOutside,
	"distance_gte": buildDistanceOutside,
	"distance_lt":  buildDistanceInside,
	"distance_lte": buildDistanceInside,
	"dwithin":      buildDWithin,
}

// Relations returns the supported relation names, sorted.
func Relations() []string {
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the native fragment for field related to g.
//
// Distance relations read the distance from params[0]: meters for the
// distance_* relations, radians for dwithin.
func Build(relation, field string, g Geometry, params ...float64) (ir.Document, error) {
	b, ok := relations[relation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
	}
	if field == "" {
		return nil, errors.New("field name required")
	}
	return b(field, g, params)
}

func fragment(field string, cond ir.Document) ir.Document {
	return ir.D(ir.E(field, cond))
}

func geometryClause(op string, g Geometry) ir.Document {
	return ir.D(ir.E(op, ir.D(ir.E("$geometry", g.Document()))))
}

func buildContains(field string, g Geometry, _ []float64) (ir.Document, error) {
	if g.Type != "Point" {
		return nil, fmt.Errorf("%w: contains requires a Point, got %s", ErrUnsupportedGeometry, g.Type)
	}
	return fragment(field, geometryClause("$geoIntersects", g)), nil
}

func buildIntersects(field string, g Geometry, _ []float64) (ir.Document, error) {
	return fragment(field, geometryClause("$geoIntersects", g)), nil
}

func buildDisjoint(field string, g Geometry, _ []float64) (ir.Document, error) {
	return fragment(field, ir.D(ir.E("$not", geometryClause("$geoIntersects", g)))), nil
}

func buildWithin(field string, g Geometry, _ []float64) (ir.Document, error) {
	return fragment(field, geometryClause("$geoWithin", g)), nil
}

func centerSphere(g Geometry, radians float64) ir.Document {
	return ir.D(ir.E("$geoWithin", ir.D(ir.E("$centerSphere", ir.A(
		ir.Clone(g.Coordinates),
		ir.Float(radians),
	)))))
}

func distance(params []float64) (float64, error) {
	if len(params) == 0 {
		return 0, ErrMissingDistance
	}
	return params[0], nil
}

func buildDistanceInside(field string, g Geometry, params []float64) (ir.Document, error) {
	meters, err := distance(params)
	if err != nil {
		return nil, err
	}
	return fragment(field, centerSphere(g, meters/EarthRadiusMeters)), nil
}

func buildDistanceOutside(field string, g Geometry, params []float64) (ir.Document, error) {
	meters, err := distance(params)
	if err != nil {
		return nil, err
	}
	return fragment(field, ir.D(ir.E("$not", centerSphere(g, meters/EarthRadiusMeters)))), nil
}

func buildDWithin(field string, g Geometry, params []float64) (ir.Document, error) {
	radians, err := distance(params)
	if err != nil {
		return nil, err
	}
	return fragment(field, centerSphere(g, radians)), nil
}
