package rewrite

import (
	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// PlanKind classifies the outcome of a rewrite.
type PlanKind string

const (
	// PlanPassthrough: the filter had no $expr key and is returned as is.
	PlanPassthrough PlanKind = "passthrough"
	// PlanEmpty: the $expr clause was {} and matches every document.
	PlanEmpty PlanKind = "empty"
	// PlanConverted: the whole clause became a native condition.
	PlanConverted PlanKind = "converted"
	// PlanSplit: part of a top-level combinator was converted.
	PlanSplit PlanKind = "split"
	// PlanResidual: nothing was converted.
	PlanResidual PlanKind = "residual"
)

// Plan describes how Explain derived its stages.
type Plan struct {
	Kind PlanKind

	// Combinator is "$and" or "$or" when the clause was a top-level
	// combinator, empty otherwise.
	Combinator string

	// Converted counts the converted top-level units: the children of a
	// split combinator, or 1 for a clause converted whole.
	Converted int

	// Residual holds the nodes left in the $expr clause, in order.
	Residual []expr.Node

	// Unsound is set when a compat-mode $or split produced stages that
	// select fewer documents than the original filter.
	Unsound bool

	Stages []ir.Document
}
