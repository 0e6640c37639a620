package eval

import (
	"strconv"
	"strings"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// Match reports whether doc satisfies a native query filter.
//
// Top-level keys are conjoined. Supported keys: field paths with implicit
// equality or an operator document ($eq $ne $gt $gte $lt $lte $in $nin),
// and $and, $or, $nor, $expr.
func Match(filter ir.Document, doc ir.Document) (bool, error) {
	for _, e := range filter {
		ok, err := matchElement(e, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElement(e ir.Element, doc ir.Document) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		return matchLogical(e, doc)
	case "$expr":
		n, err := expr.Parse(e.Value)
		if err != nil {
			return false, err
		}
		v, err := Expr(n, doc)
		if err != nil {
			return false, err
		}
		return Truthy(v), nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, &UnsupportedError{Context: "query", Operator: e.Key}
	}

	values := lookupCandidates(doc, strings.Split(e.Key, "."))
	if cond, ok := e.Value.(ir.Document); ok && isOperatorDocument(cond) {
		return matchOperators(cond, values)
	}
	return matchEq(values, e.Value), nil
}

func matchLogical(e ir.Element, doc ir.Document) (bool, error) {
	clauses, ok := e.Value.(ir.Array)
	if !ok || len(clauses) == 0 {
		return false, &ArgumentError{Operator: e.Key, Message: "argument must be a non-empty array"}
	}

	for _, clause := range clauses {
		filter, ok := clause.(ir.Document)
		if !ok {
			return false, &ArgumentError{Operator: e.Key, Message: "entries must be documents, got " + ir.TypeName(clause)}
		}
		matched, err := Match(filter, doc)
		if err != nil {
			return false, err
		}
		switch {
		case e.Key == "$and" && !matched:
			return false, nil
		case e.Key == "$or" && matched:
			return true, nil
		case e.Key == "$nor" && matched:
			return false, nil
		}
	}
	return e.Key != "$or", nil
}

func isOperatorDocument(d ir.Document) bool {
	return len(d) > 0 && strings.HasPrefix(d[0].Key, "$")
}

func matchOperators(cond ir.Document, values []ir.Value) (bool, error) {
	for _, e := range cond {
		var ok bool
		switch e.Key {
		case "$eq":
			ok = matchEq(values, e.Value)
		case "$ne":
			ok = !matchEq(values, e.Value)
		case "$gt", "$gte", "$lt", "$lte":
			ok = matchCompare(values, e.Key, e.Value)
		case "$in", "$nin":
			set, isArr := e.Value.(ir.Array)
			if !isArr {
				return false, &ArgumentError{Operator: e.Key, Message: "argument must be an array, got " + ir.TypeName(e.Value)}
			}
			ok = matchIn(values, set)
			if e.Key == "$nin" {
				ok = !ok
			}
		default:
			return false, &UnsupportedError{Context: "query", Operator: e.Key}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchEq implements implicit equality: a missing field equals null, and an
// array field matches when it equals want or holds an element equal to it.
func matchEq(values []ir.Value, want ir.Value) bool {
	if len(values) == 0 {
		return isNull(want)
	}
	for _, v := range values {
		if ir.Equal(v, want) {
			return true
		}
		if arr, ok := v.(ir.Array); ok && contains(arr, want) {
			return true
		}
	}
	return false
}

func matchIn(values []ir.Value, set ir.Array) bool {
	for _, want := range set {
		if matchEq(values, want) {
			return true
		}
	}
	return false
}

// matchCompare applies a range operator. Only values of the same type
// bracket compare; null bounds match null and missing fields on the
// inclusive operators.
func matchCompare(values []ir.Value, op string, bound ir.Value) bool {
	if isNull(bound) {
		return (op == "$gte" || op == "$lte") && matchEq(values, bound)
	}
	for _, v := range values {
		candidates := []ir.Value{v}
		if arr, ok := v.(ir.Array); ok {
			candidates = append(candidates, arr...)
		}
		for _, c := range candidates {
			if sameBracket(c, bound) && compareHolds(op, ir.Compare(c, bound)) {
				return true
			}
		}
	}
	return false
}

func sameBracket(a, b ir.Value) bool {
	if ir.IsNumber(a) && ir.IsNumber(b) {
		return true
	}
	return ir.TypeName(a) == ir.TypeName(b)
}

func isNull(v ir.Value) bool {
	switch v.(type) {
	case nil, ir.Null:
		return true
	}
	return false
}

// lookupCandidates resolves a dotted path with query semantics, returning
// every value reached. Arrays along the path are traversed element-wise; a
// numeric segment also selects an array position.
func lookupCandidates(v ir.Value, segs []string) []ir.Value {
	if len(segs) == 0 {
		return []ir.Value{v}
	}
	switch val := v.(type) {
	case ir.Document:
		next, ok := val.Get(segs[0])
		if !ok {
			return nil
		}
		return lookupCandidates(next, segs[1:])
	case ir.Array:
		var out []ir.Value
		if i, err := strconv.Atoi(segs[0]); err == nil && i >= 0 && i < len(val) {
			out = append(out, lookupCandidates(val[i], segs[1:])...)
		}
		for _, elem := range val {
			if _, isDoc := elem.(ir.Document); isDoc {
				out = append(out, lookupCandidates(elem, segs)...)
			}
		}
		return out
	default:
		return nil
	}
}
