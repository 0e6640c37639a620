package expr

import (
	"strconv"
	"strings"

	"github.com/roach88/exprmatch/internal/ir"
)

// Node represents one node of an expression tree.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	exprNode() // Marker method - seals interface to this package
}

// Literal is a scalar constant.
//
// Value is never an ir.Array or ir.Document; those parse into Array and
// Object so that nested references stay visible.
type Literal struct {
	Value ir.Value
}

func (Literal) exprNode() {}

// Array is an ordered container of nodes, e.g. the value list of $in.
type Array struct {
	Elems []Node
}

func (Array) exprNode() {}

// Field is one entry of an Object.
type Field struct {
	Key   string
	Value Node
}

// Object is a document literal that is not an operator application:
// it has several keys, or a single key without the "$" prefix.
type Object struct {
	Fields []Field
}

func (Object) exprNode() {}

// FieldRef references a document field.
//
// Path excludes the leading "$": the expression "$address.city" parses to
// FieldRef{Path: "address.city"}.
type FieldRef struct {
	Path string
}

func (FieldRef) exprNode() {}

// Matchable reports whether the path can be used as a key of a native match
// condition: a non-empty dotted path whose segments are non-empty, do not
// start with "$" and are not numeric (a numeric segment would be read as an
// array position by $match but as a field name by $expr).
func (f FieldRef) Matchable() bool {
	if f.Path == "" {
		return false
	}
	for _, seg := range strings.Split(f.Path, ".") {
		if seg == "" || strings.HasPrefix(seg, "$") {
			return false
		}
		if _, err := strconv.Atoi(seg); err == nil {
			return false
		}
	}
	return true
}

// VariableRef references a bound aggregation variable.
//
// Name excludes the leading "$$": "$$CURRENT.a" parses to
// VariableRef{Name: "CURRENT.a"}.
type VariableRef struct {
	Name string
}

func (VariableRef) exprNode() {}

// Operator is an operator application.
//
// Semantics:
//
//	{"$eq": ["$status", "active"]}  → Operator{Name: "$eq", Args: [FieldRef, Literal]}
//	{"$not": "$flag"}               → Operator{Name: "$not", Args: [FieldRef], Bare: true}
//
// Bare records that the operand was not wrapped in an array, so the node
// re-encodes exactly as it was written. Converters that expect an argument
// list treat a bare operand as a shape mismatch.
type Operator struct {
	Name string
	Args []Node
	Bare bool
}

func (Operator) exprNode() {}

// Logical combinator names.
const (
	OpAnd = "$and"
	OpOr  = "$or"
)

// IsCombinator reports whether name is a logical combinator.
func IsCombinator(name string) bool {
	return name == OpAnd || name == OpOr
}

// IsSimple reports whether n can be embedded verbatim in a native match
// condition: scalars, and arrays whose every element is simple. Field and
// variable references, operators and document literals are not simple.
func IsSimple(n Node) bool {
	switch node := n.(type) {
	case Literal:
		return true
	case *Literal:
		return node != nil
	case Array:
		return allSimple(node.Elems)
	case *Array:
		return node != nil && allSimple(node.Elems)
	default:
		return false
	}
}

func allSimple(elems []Node) bool {
	for _, e := range elems {
		if !IsSimple(e) {
			return false
		}
	}
	return true
}
