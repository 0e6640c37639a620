package rewrite

import (
	"fmt"
	"sort"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// Converter turns one leaf operator into a native match condition.
//
// Convert returns false when the operator's arguments do not have a shape
// the converter understands. It must not panic on any input.
type Converter interface {
	Convert(op expr.Operator) (ir.Document, bool)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(op expr.Operator) (ir.Document, bool)

// Convert calls f(op).
func (f ConverterFunc) Convert(op expr.Operator) (ir.Document, bool) {
	return f(op)
}

// EqConverter converts {"$eq": ["$path", value]} to {path: value}.
var EqConverter Converter = ConverterFunc(convertEq)

// InConverter converts {"$in": ["$path", [v1, v2]]} to
// {path: {"$in": [v1, v2]}}.
var InConverter Converter = ConverterFunc(convertIn)

// fieldAndValue extracts the (field, value) argument pair shared by the
// built-in converters.
func fieldAndValue(op expr.Operator) (expr.FieldRef, expr.Node, bool) {
	if op.Bare || len(op.Args) != 2 {
		return expr.FieldRef{}, nil, false
	}
	field, ok := op.Args[0].(expr.FieldRef)
	if !ok || !field.Matchable() {
		return expr.FieldRef{}, nil, false
	}
	return field, op.Args[1], true
}

func convertEq(op expr.Operator) (ir.Document, bool) {
	field, value, ok := fieldAndValue(op)
	if !ok || !expr.IsSimple(value) {
		return nil, false
	}
	return ir.D(ir.E(field.Path, expr.Encode(value))), true
}

func convertIn(op expr.Operator) (ir.Document, bool) {
	field, value, ok := fieldAndValue(op)
	if !ok {
		return nil, false
	}
	values, ok := value.(expr.Array)
	if !ok || !expr.IsSimple(values) {
		return nil, false
	}
	return ir.D(ir.E(field.Path, ir.D(ir.E("$in", expr.Encode(values))))), true
}

// Registry maps operator names to leaf converters.
//
// A Registry is immutable once built; With and Only return new registries.
// Entries for $and and $or are never consulted: combinators are handled by
// the recursive converter.
type Registry struct {
	converters map[string]Converter
}

// DefaultRegistry returns a registry holding the built-in converters for
// $eq and $in.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Converter{
		"$eq": EqConverter,
		"$in": InConverter,
	})
}

// NewRegistry builds a registry from a name → converter map.
// The map is copied.
func NewRegistry(converters map[string]Converter) *Registry {
	m := make(map[string]Converter, len(converters))
	for name, c := range converters {
		if c != nil {
			m[name] = c
		}
	}
	return &Registry{converters: m}
}

// With returns a copy of r with name mapped to c. A nil c removes name.
func (r *Registry) With(name string, c Converter) *Registry {
	m := make(map[string]Converter, len(r.converters)+1)
	for k, v := range r.converters {
		m[k] = v
	}
	if c == nil {
		delete(m, name)
	} else {
		m[name] = c
	}
	return &Registry{converters: m}
}

// Only returns a copy of r restricted to names.
// Naming an operator r does not know is an error.
func (r *Registry) Only(names ...string) (*Registry, error) {
	m := make(map[string]Converter, len(names))
	for _, name := range names {
		c, ok := r.converters[name]
		if !ok {
			return nil, fmt.Errorf("no converter registered for operator %q", name)
		}
		m[name] = c
	}
	return &Registry{converters: m}, nil
}

// Lookup returns the converter registered for name.
func (r *Registry) Lookup(name string) (Converter, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.converters[name]
	return c, ok
}

// Names returns the registered operator names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.converters))
	for name := range r.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
