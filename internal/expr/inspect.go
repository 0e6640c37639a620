package expr

import (
	"fmt"
	"slices"
	"sort"
)

// knownOperators lists the aggregation expression operators Inspect accepts
// without a warning. Operators outside this set are passed through by the
// rewriter unchanged; the warning points at a probable typo.
var knownOperators = map[string]bool{
	"$and": true, "$or": true, "$not": true, "$nor": true,
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true, "$cmp": true,
	"$in": true, "$size": true, "$isArray": true, "$arrayElemAt": true, "$filter": true, "$map": true,
	"$type": true, "$ifNull": true, "$cond": true, "$switch": true, "$literal": true, "$let": true,
	"$add": true, "$subtract": true, "$multiply": true, "$divide": true, "$mod": true, "$abs": true,
	"$concat": true, "$toLower": true, "$toUpper": true, "$strLenCP": true, "$regexMatch": true,
	"$toString": true, "$toInt": true, "$toDouble": true, "$toDecimal": true, "$toDate": true,
	"$year": true, "$month": true, "$dayOfMonth": true, "$getField": true, "$objectToArray": true,
}

// Report summarizes an expression tree.
type Report struct {
	// Depth is the maximum nesting of the tree; a lone leaf has depth 1.
	Depth int `json:"depth"`

	// Operators, Fields and Variables list distinct names, sorted.
	Operators []string `json:"operators"`
	Fields    []string `json:"fields"`
	Variables []string `json:"variables"`

	// Pushable is true when the tree uses no construct that keeps it from
	// being a candidate for a native match condition.
	Pushable bool `json:"pushable"`

	// Warnings lists constructs that will stay in the residual clause.
	// Empty when Pushable is true.
	Warnings []string `json:"warnings,omitempty"`
}

// Inspect walks an expression tree and reports what it references.
//
// Warnings are raised for unknown operators, variable references, document
// literals and field paths that cannot key a native match condition. They
// are advisory: the rewriter handles every tree, warnings only explain why
// parts of it remain evaluated per document.
//
// Inspect is a pure function with no side effects.
func Inspect(n Node) Report {
	in := &inspector{
		operators: map[string]bool{},
		fields:    map[string]bool{},
		variables: map[string]bool{},
		warnings:  []string{},
	}
	depth := in.walk(n, 1)

	return Report{
		Depth:     depth,
		Operators: sortedKeys(in.operators),
		Fields:    sortedKeys(in.fields),
		Variables: sortedKeys(in.variables),
		Pushable:  len(in.warnings) == 0,
		Warnings:  in.warnings,
	}
}

// inspector accumulates names and warnings during traversal.
type inspector struct {
	operators map[string]bool
	fields    map[string]bool
	variables map[string]bool
	warnings  []string
}

func (in *inspector) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !slices.Contains(in.warnings, msg) {
		in.warnings = append(in.warnings, msg)
	}
}

// walk returns the depth of the subtree rooted at n.
func (in *inspector) walk(n Node, depth int) int {
	if n == nil {
		in.addWarning("nil node")
		return depth
	}

	switch node := n.(type) {
	case Literal, *Literal:
		return depth
	case FieldRef:
		in.visitField(node)
		return depth
	case *FieldRef:
		in.visitField(*node)
		return depth
	case VariableRef:
		in.visitVariable(node)
		return depth
	case *VariableRef:
		in.visitVariable(*node)
		return depth
	case Array:
		return in.walkAll(node.Elems, depth)
	case *Array:
		return in.walkAll(node.Elems, depth)
	case Object:
		return in.visitObject(node, depth)
	case *Object:
		return in.visitObject(*node, depth)
	case Operator:
		return in.visitOperator(node, depth)
	case *Operator:
		return in.visitOperator(*node, depth)
	default:
		in.addWarning("unknown node type %T", n)
		return depth
	}
}

func (in *inspector) walkAll(nodes []Node, depth int) int {
	deepest := depth
	for _, child := range nodes {
		deepest = max(deepest, in.walk(child, depth+1))
	}
	return deepest
}

func (in *inspector) visitField(f FieldRef) {
	in.fields[f.Path] = true
	if !f.Matchable() {
		in.addWarning("field path %q cannot be used in a match condition", "$"+f.Path)
	}
}

func (in *inspector) visitVariable(v VariableRef) {
	in.variables[v.Name] = true
	in.addWarning("variable reference %q is evaluated per document", "$$"+v.Name)
}

func (in *inspector) visitObject(o Object, depth int) int {
	in.addWarning("document literal is evaluated per document")
	deepest := depth
	for _, f := range o.Fields {
		deepest = max(deepest, in.walk(f.Value, depth+1))
	}
	return deepest
}

func (in *inspector) visitOperator(op Operator, depth int) int {
	in.operators[op.Name] = true
	if !knownOperators[op.Name] {
		in.addWarning("unknown operator %q", op.Name)
	}
	return in.walkAll(op.Args, depth)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
