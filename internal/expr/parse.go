package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/exprmatch/internal/ir"
)

// MaxParseDepth bounds the nesting accepted by Parse.
const MaxParseDepth = 512

// ErrTooDeep is returned when a value nests deeper than MaxParseDepth.
var ErrTooDeep = errors.New("expression nests too deeply")

// Parse builds an expression tree from a decoded value.
//
// Strings are classified by sigil, one-key documents whose key starts with
// "$" become operators and all other documents become Object literals. The
// input is not retained: mutable leaves are copied.
//
// Parse only fails when the value nests deeper than MaxParseDepth.
func Parse(v ir.Value) (Node, error) {
	return parse(v, 0)
}

func parse(v ir.Value, depth int) (Node, error) {
	if depth > MaxParseDepth {
		return nil, fmt.Errorf("depth %d: %w", depth, ErrTooDeep)
	}

	switch val := v.(type) {
	case nil:
		return Literal{Value: ir.Null{}}, nil
	case ir.String:
		s := string(val)
		switch {
		case strings.HasPrefix(s, "$$"):
			return VariableRef{Name: s[2:]}, nil
		case strings.HasPrefix(s, "$"):
			return FieldRef{Path: s[1:]}, nil
		}
		return Literal{Value: val}, nil
	case ir.Array:
		elems, err := parseAll(val, depth)
		if err != nil {
			return nil, err
		}
		return Array{Elems: elems}, nil
	case ir.Document:
		if len(val) == 1 && strings.HasPrefix(val[0].Key, "$") {
			return parseOperator(val[0], depth)
		}
		fields := make([]Field, len(val))
		for i, e := range val {
			n, err := parse(e.Value, depth+1)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Key: e.Key, Value: n}
		}
		return Object{Fields: fields}, nil
	default:
		return Literal{Value: ir.Clone(val)}, nil
	}
}

func parseOperator(e ir.Element, depth int) (Node, error) {
	if arr, ok := e.Value.(ir.Array); ok {
		args, err := parseAll(arr, depth)
		if err != nil {
			return nil, err
		}
		return Operator{Name: e.Key, Args: args}, nil
	}
	arg, err := parse(e.Value, depth+1)
	if err != nil {
		return nil, err
	}
	return Operator{Name: e.Key, Args: []Node{arg}, Bare: true}, nil
}

func parseAll(vals ir.Array, depth int) ([]Node, error) {
	out := make([]Node, len(vals))
	for i, elem := range vals {
		n, err := parse(elem, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Encode converts a tree back to its document form. Encode(Parse(v)) is
// equal to v, key order included.
func Encode(n Node) ir.Value {
	switch node := n.(type) {
	case Literal:
		return ir.Clone(node.Value)
	case *Literal:
		return ir.Clone(node.Value)
	case FieldRef:
		return ir.String("$" + node.Path)
	case *FieldRef:
		return ir.String("$" + node.Path)
	case VariableRef:
		return ir.String("$$" + node.Name)
	case *VariableRef:
		return ir.String("$$" + node.Name)
	case Array:
		return encodeAll(node.Elems)
	case *Array:
		return encodeAll(node.Elems)
	case Object:
		return encodeObject(node)
	case *Object:
		return encodeObject(*node)
	case Operator:
		return encodeOperator(node)
	case *Operator:
		return encodeOperator(*node)
	default:
		return ir.Null{}
	}
}

func encodeAll(nodes []Node) ir.Array {
	out := make(ir.Array, len(nodes))
	for i, n := range nodes {
		out[i] = Encode(n)
	}
	return out
}

func encodeObject(o Object) ir.Document {
	out := make(ir.Document, len(o.Fields))
	for i, f := range o.Fields {
		out[i] = ir.E(f.Key, Encode(f.Value))
	}
	return out
}

func encodeOperator(op Operator) ir.Document {
	if op.Bare && len(op.Args) == 1 {
		return ir.D(ir.E(op.Name, Encode(op.Args[0])))
	}
	return ir.D(ir.E(op.Name, encodeAll(op.Args)))
}
