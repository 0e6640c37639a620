// Package expr provides the expression tree for aggregation-style predicates
// (the body of a $expr clause).
//
// The tree is the boundary between the upstream query compiler that produces
// predicates and the rewriter that pushes them into native $match filters:
//
//	[query compiler] → [expr.Node] → [rewrite] → [$match stages]
//
// NODE KINDS:
//
// Node is a sealed interface using the marker method pattern. Only types in
// this package implement it, which keeps type switches in the rewriter and
// the evaluator exhaustive:
//
//	Literal      scalar value (number, string, bool, null, date, decimal, ...)
//	Array        ordered container of further nodes
//	Object       document literal that is not an operator application
//	FieldRef     "$path"  - reference to a document field
//	VariableRef  "$$name" - reference to a bound variable
//	Operator     {"$name": [args...]} - operator application
//
// SIGIL CONTRACT:
//
// A string beginning with "$" is a field reference and one beginning with "$$"
// is a variable reference. A plain string literal never starts with "$"; if
// user data can, the producer must escape it (for example with $literal).
// The parser assumes this contract and does not enforce it.
//
// EMBEDDABILITY:
//
// IsSimple reports whether a node can be copied verbatim into a native match
// condition: scalars and arrays of scalars are simple, everything that needs
// per-document evaluation is not. VariableRefs are never simple.
package expr
