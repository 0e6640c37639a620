package rewrite

import (
	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// Convert converts n into a native match condition, all or nothing.
//
// Leaf operators are dispatched to the registry. $and and $or convert only
// when every child converts, giving {combinator: [converted...]}; a single
// unconvertible leaf anywhere below makes the whole subtree unconvertible.
// Bare operands, empty combinators, non-operator nodes and subtrees nested
// deeper than MaxDepth are not convertible.
func (o *Optimizer) Convert(n expr.Node) (ir.Document, bool) {
	return o.convert(n, 1)
}

func (o *Optimizer) convert(n expr.Node, depth int) (ir.Document, bool) {
	if depth > o.maxDepth {
		return nil, false
	}

	op, ok := n.(expr.Operator)
	if !ok {
		return nil, false
	}

	if expr.IsCombinator(op.Name) {
		return o.convertCombinator(op, depth)
	}

	c, ok := o.registry.Lookup(op.Name)
	if !ok {
		return nil, false
	}
	return c.Convert(op)
}

func (o *Optimizer) convertCombinator(op expr.Operator, depth int) (ir.Document, bool) {
	if op.Bare || len(op.Args) == 0 {
		return nil, false
	}

	children := make(ir.Array, 0, len(op.Args))
	for _, child := range op.Args {
		cond, ok := o.convert(child, depth+1)
		if !ok {
			return nil, false
		}
		children = append(children, cond)
	}
	return ir.D(ir.E(op.Name, children)), true
}
