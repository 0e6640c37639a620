package store

import (
	"fmt"

	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
)

// Record is one entry of the rewrite log.
type Record struct {
	Seq           int64 // assigned by the store
	ID            string
	PolicyHash    string
	Input         ir.Document
	Stages        []ir.Document
	Kind          rewrite.PlanKind
	Converted     int
	Residual      int
	Unsound       bool
	EngineVersion string
}

// NewRecord builds the log entry for input rewritten under the policy with
// hash policyHash.
func NewRecord(policyHash string, input ir.Document, plan rewrite.Plan) (Record, error) {
	id, err := ir.RewriteID(policyHash, input)
	if err != nil {
		return Record{}, fmt.Errorf("new record: %w", err)
	}
	return Record{
		ID:            id,
		PolicyHash:    policyHash,
		Input:         input,
		Stages:        plan.Stages,
		Kind:          plan.Kind,
		Converted:     plan.Converted,
		Residual:      len(plan.Residual),
		Unsound:       plan.Unsound,
		EngineVersion: ir.EngineVersion,
	}, nil
}
