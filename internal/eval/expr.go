package eval

import (
	"strings"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// Expr evaluates an aggregation expression against doc.
//
// Supported: literals, arrays, document literals, field paths, $$ROOT and
// $$CURRENT, and the operators $eq $ne $gt $gte $lt $lte $in $and $or $not.
func Expr(n expr.Node, doc ir.Document) (ir.Value, error) {
	switch node := n.(type) {
	case expr.Literal:
		return node.Value, nil
	case expr.FieldRef:
		return lookupValue(doc, node.Path), nil
	case expr.VariableRef:
		return evalVariable(node, doc)
	case expr.Array:
		out := make(ir.Array, len(node.Elems))
		for i, elem := range node.Elems {
			v, err := Expr(elem, doc)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case expr.Object:
		out := make(ir.Document, len(node.Fields))
		for i, f := range node.Fields {
			v, err := Expr(f.Value, doc)
			if err != nil {
				return nil, err
			}
			out[i] = ir.E(f.Key, v)
		}
		return out, nil
	case expr.Operator:
		return evalOperator(node, doc)
	default:
		return nil, &UnsupportedError{Context: "expression", Operator: "node"}
	}
}

// Truthy reports whether v counts as true in an expression: false, null
// and numeric zero are false, everything else is true.
func Truthy(v ir.Value) bool {
	switch val := v.(type) {
	case nil, ir.Null:
		return false
	case ir.Bool:
		return bool(val)
	case ir.Int, ir.Float, ir.Decimal:
		return !ir.Equal(val, ir.Int(0))
	default:
		return true
	}
}

func evalVariable(v expr.VariableRef, doc ir.Document) (ir.Value, error) {
	name, path, _ := strings.Cut(v.Name, ".")
	if name != "ROOT" && name != "CURRENT" {
		return nil, &UnsupportedError{Context: "expression", Operator: "$$" + name}
	}
	if path == "" {
		return doc, nil
	}
	return lookupValue(doc, path), nil
}

func evalOperator(op expr.Operator, doc ir.Document) (ir.Value, error) {
	switch op.Name {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		args, err := evalArgs(op, doc, 2)
		if err != nil {
			return nil, err
		}
		return ir.Bool(compareHolds(op.Name, ir.Compare(args[0], args[1]))), nil
	case "$in":
		args, err := evalArgs(op, doc, 2)
		if err != nil {
			return nil, err
		}
		set, ok := args[1].(ir.Array)
		if !ok {
			return nil, &ArgumentError{Operator: op.Name, Message: "second argument must be an array, got " + ir.TypeName(args[1])}
		}
		return ir.Bool(contains(set, args[0])), nil
	case "$and":
		for _, arg := range op.Args {
			v, err := Expr(arg, doc)
			if err != nil {
				return nil, err
			}
			if !Truthy(v) {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	case "$or":
		for _, arg := range op.Args {
			v, err := Expr(arg, doc)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case "$not":
		args, err := evalArgs(op, doc, 1)
		if err != nil {
			return nil, err
		}
		return ir.Bool(!Truthy(args[0])), nil
	default:
		return nil, &UnsupportedError{Context: "expression", Operator: op.Name}
	}
}

func evalArgs(op expr.Operator, doc ir.Document, want int) ([]ir.Value, error) {
	if len(op.Args) != want {
		return nil, &ArgumentError{Operator: op.Name, Message: "wrong number of arguments"}
	}
	out := make([]ir.Value, want)
	for i, arg := range op.Args {
		v, err := Expr(arg, doc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func compareHolds(op string, c int) bool {
	switch op {
	case "$eq":
		return c == 0
	case "$ne":
		return c != 0
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

func contains(set ir.Array, v ir.Value) bool {
	for _, elem := range set {
		if ir.Equal(elem, v) {
			return true
		}
	}
	return false
}

// lookupValue resolves a dotted path with expression semantics.
func lookupValue(doc ir.Document, path string) ir.Value {
	v, ok := lookupSegments(doc, strings.Split(path, "."))
	if !ok {
		return ir.Null{}
	}
	return v
}

func lookupSegments(v ir.Value, segs []string) (ir.Value, bool) {
	if len(segs) == 0 {
		return v, true
	}
	switch val := v.(type) {
	case ir.Document:
		next, ok := val.Get(segs[0])
		if !ok {
			return nil, false
		}
		return lookupSegments(next, segs[1:])
	case ir.Array:
		out := ir.Array{}
		for _, elem := range val {
			if _, isDoc := elem.(ir.Document); !isDoc {
				continue
			}
			if found, ok := lookupSegments(elem, segs); ok {
				out = append(out, found)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
