package eval

import "fmt"

// UnsupportedError reports an operator or stage the evaluator cannot run.
type UnsupportedError struct {
	// Context is "expression", "query" or "stage".
	Context  string
	Operator string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported %s operator %q", e.Context, e.Operator)
}

// ArgumentError reports an operator applied to arguments of the wrong shape.
type ArgumentError struct {
	Operator string
	Message  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operator, e.Message)
}
