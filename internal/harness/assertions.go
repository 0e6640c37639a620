package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/store"
)

// validIdentifier restricts the table and column names a final_state
// assertion may interpolate into its query.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed scenario assertion. Cases, when set,
// lists every case's plan kind so the failure can be read in context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Cases    []CaseResult
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Cases) > 0 {
		fmt.Fprintf(&buf, "\nCases:\n")
		for i, c := range e.Cases {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, c.Name, c.Kind)
		}
	}

	return buf.String()
}

// assertCaseKind checks the plan kind of one case.
func assertCaseKind(cases []CaseResult, assertion Assertion) error {
	for _, c := range cases {
		if c.Name != assertion.Case {
			continue
		}
		if string(c.Kind) == assertion.Kind {
			return nil
		}
		return &AssertionError{
			Type:     AssertCaseKind,
			Expected: fmt.Sprintf("case %s with kind %s", assertion.Case, assertion.Kind),
			Actual:   fmt.Sprintf("kind %s", c.Kind),
			Cases:    cases,
		}
	}

	return &AssertionError{
		Type:     AssertCaseKind,
		Expected: fmt.Sprintf("case %s with kind %s", assertion.Case, assertion.Kind),
		Actual:   "case not found in results",
		Cases:    cases,
	}
}

// assertKindCount checks how many cases produced the given plan kind.
func assertKindCount(cases []CaseResult, assertion Assertion) error {
	count := 0
	for _, c := range cases {
		if string(c.Kind) == assertion.Kind {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertKindCount,
			Expected: fmt.Sprintf("%d cases of kind %s", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d cases", count),
			Cases:    cases,
		}
	}

	return nil
}

// assertUnsoundCount checks how many cases produced an unsound split.
func assertUnsoundCount(cases []CaseResult, assertion Assertion) error {
	count := 0
	for _, c := range cases {
		if c.Unsound {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertUnsoundCount,
			Expected: fmt.Sprintf("%d unsound cases", assertion.Count),
			Actual:   fmt.Sprintf("%d unsound cases", count),
			Cases:    cases,
		}
	}

	return nil
}

// assertFinalState looks up exactly one row of a rewrite log table and
// compares the listed columns. Columns not named in Expect are ignored.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	// Identifiers cannot be bound as parameters.
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	row, err := logRow(ctx, st, assertion.Table, assertion.Where)
	if err != nil {
		return err
	}

	for _, col := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[col]
		got, ok := row[col]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", col),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", col, sortedKeys(row)),
			}
		}
		if !columnEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", col, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", col, got, got),
			}
		}
	}
	return nil
}

// logRow returns the single row of table matching where, keyed by column.
func logRow(ctx context.Context, st *store.Store, table string, where map[string]interface{}) (map[string]interface{}, error) {
	cond, args, err := buildWhereClause(where)
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + table
	if cond != "" {
		query += " WHERE " + cond
	}

	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	cells := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		row[col] = cells[i]
	}
	return row, nil
}

// buildWhereClause turns where into "col = ?" terms joined by AND, in
// column order, with the values as bind arguments.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	terms := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, col := range keys {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", col, validIdentifier.String())
		}
		terms = append(terms, col+" = ?")
		args = append(args, sqlValue(where[col]))
	}
	return strings.Join(terms, " AND "), args, nil
}

func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, col := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", col, where[col]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqlValue maps scenario and IR scalars onto the types the SQLite driver
// returns: int64, string and bool. Anything else is passed through.
func sqlValue(v interface{}) interface{} {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return int64(val)
	case ir.Bool:
		return bool(val)
	case int:
		return int64(val)
	case []byte:
		return string(val)
	default:
		return val
	}
}

// columnEqual compares an expected value with a scanned column. Booleans
// are stored as integers.
func columnEqual(want, got interface{}) bool {
	want, got = sqlValue(want), sqlValue(got)
	if b, ok := want.(bool); ok {
		if n, ok := got.(int64); ok {
			return b == (n != 0)
		}
	}
	return reflect.DeepEqual(want, got)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCaseKind:
			err = assertCaseKind(result.Cases, assertion)
		case AssertKindCount:
			err = assertKindCount(result.Cases, assertion)
		case AssertUnsoundCount:
			err = assertUnsoundCount(result.Cases, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
