package rewrite

import (
	"fmt"
	"log/slog"

	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// Stage and clause keys.
const (
	KeyMatch = "$match"
	KeyExpr  = "$expr"
)

// DefaultMaxDepth is the default nesting limit of the strict converter.
// Deeper subtrees are left in the residual clause.
const DefaultMaxDepth = 64

// OrSplitMode selects how a partially convertible top-level $or is emitted.
type OrSplitMode int

const (
	// OrSplitCompat emits the converted children and the residual clause as
	// sibling keys of one $match stage. The stage conjoins them, so it
	// selects a subset of what the original $or selects.
	OrSplitCompat OrSplitMode = iota

	// OrSplitSound emits {"$or": [{"$or": converted}, {"$expr": residual}]},
	// which selects exactly the documents the original $or selects.
	OrSplitSound
)

// String returns the policy name of the mode.
func (m OrSplitMode) String() string {
	switch m {
	case OrSplitCompat:
		return "compat"
	case OrSplitSound:
		return "sound"
	default:
		return fmt.Sprintf("OrSplitMode(%d)", int(m))
	}
}

// ParseOrSplitMode parses a policy name ("compat" or "sound").
func ParseOrSplitMode(s string) (OrSplitMode, error) {
	switch s {
	case "compat":
		return OrSplitCompat, nil
	case "sound":
		return OrSplitSound, nil
	default:
		return 0, fmt.Errorf("unknown $or split mode %q (want compat or sound)", s)
	}
}

// Optimizer rewrites $expr filters into $match stages.
//
// An Optimizer is immutable after New and safe for concurrent use.
type Optimizer struct {
	registry *Registry
	maxDepth int
	orSplit  OrSplitMode
	logger   *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithRegistry sets the leaf converter registry.
//
// Default: DefaultRegistry() ($eq and $in).
func WithRegistry(r *Registry) Option {
	return func(o *Optimizer) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithMaxDepth sets the nesting limit of the strict converter.
// Values below 1 keep the default.
//
// Default: 64 (DefaultMaxDepth)
func WithMaxDepth(depth int) Option {
	return func(o *Optimizer) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// WithOrSplit sets how a partially convertible top-level $or is emitted.
//
// Default: OrSplitCompat
func WithOrSplit(mode OrSplitMode) Option {
	return func(o *Optimizer) {
		o.orSplit = mode
	}
}

// WithLogger sets the logger used for rewrite diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		registry: DefaultRegistry(),
		maxDepth: DefaultMaxDepth,
		orSplit:  OrSplitCompat,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the optimizer's converter registry.
func (o *Optimizer) Registry() *Registry { return o.registry }

// MaxDepth returns the strict converter's nesting limit.
func (o *Optimizer) MaxDepth() int { return o.maxDepth }

// OrSplit returns the $or split mode.
func (o *Optimizer) OrSplit() OrSplitMode { return o.orSplit }

// Optimize rewrites filter into an ordered list of pipeline stages.
//
// Semantics:
//
//	no $expr key          → [filter]                (copy, unchanged)
//	{"$expr": {}}         → [{"$match": {}}]
//	top-level $and / $or  → partial split, see split
//	anything else         → [{"$match": converted}] or [{"$match": {"$expr": original}}]
//
// Keys beside $expr are already native; they are emitted first as their
// own $match stage. Optimize never fails: whatever cannot be converted
// stays in a residual $expr clause.
func (o *Optimizer) Optimize(filter ir.Document) []ir.Document {
	return o.Explain(filter).Stages
}

// OptimizeExpr rewrites an already parsed $expr clause.
func (o *Optimizer) OptimizeExpr(n expr.Node) []ir.Document {
	return o.explainNode(n).Stages
}

// Explain is like Optimize but also reports how the stages were derived.
func (o *Optimizer) Explain(filter ir.Document) Plan {
	clause, ok := filter.Get(KeyExpr)
	if !ok {
		return Plan{Kind: PlanPassthrough, Stages: []ir.Document{filter.Clone()}}
	}

	var stages []ir.Document
	if native := filter.Without(KeyExpr); len(native) > 0 {
		stages = append(stages, matchStage(native.Clone()))
	}

	plan := o.explainClause(clause)
	plan.Stages = append(stages, plan.Stages...)
	return plan
}

func (o *Optimizer) explainClause(clause ir.Value) Plan {
	node, err := expr.Parse(clause)
	if err != nil {
		o.logger.Debug("expression left unparsed", "error", err)
		return Plan{
			Kind:   PlanResidual,
			Stages: []ir.Document{matchStage(ir.D(ir.E(KeyExpr, ir.Clone(clause))))},
		}
	}
	return o.explainNode(node)
}

func (o *Optimizer) explainNode(n expr.Node) Plan {
	if isEmptyClause(n) {
		return Plan{Kind: PlanEmpty, Stages: []ir.Document{matchStage(ir.D())}}
	}

	if op, ok := n.(expr.Operator); ok && expr.IsCombinator(op.Name) && !op.Bare {
		return o.split(op)
	}

	if cond, ok := o.Convert(n); ok {
		o.logger.Debug("expression converted", "kind", PlanConverted)
		return Plan{Kind: PlanConverted, Converted: 1, Stages: []ir.Document{matchStage(cond)}}
	}

	o.logger.Debug("expression kept as residual", "kind", PlanResidual)
	return Plan{
		Kind:     PlanResidual,
		Residual: []expr.Node{n},
		Stages:   []ir.Document{matchStage(ir.D(ir.E(KeyExpr, expr.Encode(n))))},
	}
}

func isEmptyClause(n expr.Node) bool {
	obj, ok := n.(expr.Object)
	return ok && len(obj.Fields) == 0
}

func matchStage(cond ir.Document) ir.Document {
	return ir.D(ir.E(KeyMatch, cond))
}
