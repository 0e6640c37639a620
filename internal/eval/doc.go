// Package eval evaluates expressions and $match filters against in-memory
// documents.
//
// It covers the operator subset the rewriter produces and consumes, which is
// enough to check that a rewrite selects the same documents as the filter it
// came from. It is not a query engine: anything outside the subset fails
// with *UnsupportedError rather than guessing.
//
// Two path semantics apply, as in the server:
//
//	Expr   "$a.b" resolves to a single value; a missing field is null and
//	       arrays along the path collect the values below them.
//	Match  {"a.b": v} holds when any value reached along the path equals v,
//	       array fields matching either as a whole or by element.
package eval
