package rewrite

import (
	"github.com/roach88/exprmatch/internal/expr"
	"github.com/roach88/exprmatch/internal/ir"
)

// split rewrites a top-level $and or $or child by child.
//
// Each child is probed with the strict converter. Converted children keep
// their order under {combinator: [...]}; the others stay in their original
// form in a residual $expr clause. A single residual child is emitted as
// is, several are joined with $and. When nothing converts the clause is
// kept whole.
//
// Only the top level is split: nested combinators are converted or kept as
// a unit.
func (o *Optimizer) split(op expr.Operator) Plan {
	var (
		optimized = ir.Array{}
		residual  []expr.Node
	)
	for _, child := range op.Args {
		if cond, ok := o.convert(child, 2); ok {
			optimized = append(optimized, cond)
			continue
		}
		residual = append(residual, child)
	}

	plan := Plan{
		Combinator: op.Name,
		Converted:  len(optimized),
		Residual:   residual,
	}

	switch {
	case len(optimized) == 0:
		plan.Kind = PlanResidual
		plan.Stages = []ir.Document{matchStage(ir.D(ir.E(KeyExpr, expr.Encode(op))))}
	case len(residual) == 0:
		plan.Kind = PlanConverted
		plan.Stages = []ir.Document{matchStage(ir.D(ir.E(op.Name, optimized)))}
	case op.Name == expr.OpOr && o.orSplit == OrSplitSound:
		plan.Kind = PlanSplit
		plan.Stages = []ir.Document{matchStage(ir.D(ir.E(expr.OpOr, ir.A(
			ir.D(ir.E(expr.OpOr, optimized)),
			ir.D(ir.E(KeyExpr, joinResidual(expr.OpOr, residual))),
		))))}
	default:
		plan.Kind = PlanSplit
		plan.Unsound = op.Name == expr.OpOr
		if plan.Unsound {
			o.logger.Warn("partial $or split conjoins converted and residual children",
				"converted", len(optimized),
				"residual", len(residual),
				"or_split", o.orSplit.String())
		}
		plan.Stages = []ir.Document{matchStage(ir.D(
			ir.E(op.Name, optimized),
			ir.E(KeyExpr, joinResidual(expr.OpAnd, residual)),
		))}
	}

	o.logger.Debug("combinator split",
		"combinator", op.Name,
		"kind", plan.Kind,
		"converted", plan.Converted,
		"residual", len(plan.Residual))
	return plan
}

// joinResidual encodes the residual children, joining several with
// combinator.
func joinResidual(combinator string, residual []expr.Node) ir.Value {
	if len(residual) == 1 {
		return expr.Encode(residual[0])
	}
	children := make(ir.Array, len(residual))
	for i, n := range residual {
		children[i] = expr.Encode(n)
	}
	return ir.D(ir.E(combinator, children))
}
