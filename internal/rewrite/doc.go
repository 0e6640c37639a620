// Package rewrite pushes $expr predicates down into native $match filters.
//
// A filter whose $expr clause holds a boolean aggregation expression cannot
// use indexes. Optimizer.Optimize rewrites the clause into an ordered list of
// $match stages: the part of the predicate that has a native equivalent
// moves out of $expr, the remainder stays behind as a residual $expr.
//
//	{"$expr": {"$and": [{"$eq": ["$status", "active"]}, {"$gt": ["$a", "$b"]}]}}
//	  → [{"$match": {"$and": [{"status": "active"}], "$expr": {"$gt": ["$a", "$b"]}}}]
//
// Components, outermost first:
//
//	Optimizer.Optimize   top-level orchestration
//	Optimizer.split      partial split of a top-level $and/$or
//	Optimizer.Convert    all-or-nothing recursive conversion
//	Registry             leaf converters keyed by operator name
//
// "Not convertible" is ordinary data (the comma-ok false), never an error.
// Inputs are never mutated; every output is freshly built.
//
// CAVEAT: a top-level $or that only partly converts is emitted by default
// as sibling keys of one $match stage, which conjoins them. That selects
// fewer documents than the original disjunction. OrSplitSound selects an
// equivalent form instead; see OrSplitMode.
//
// CAVEAT: the $eq and $in converters assume the referenced field holds a
// scalar. In $expr, "$tags" resolves to the whole array, while the native
// {"tags": v} also matches an array merely containing v; a dotted path
// through an array of documents behaves the same way. On array-valued
// fields the rewrite can therefore select more documents than the original,
// never fewer.
package rewrite
