package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/ledgerattach/internal/canonical"
	"github.com/roach88/ledgerattach/internal/export"
	"github.com/roach88/ledgerattach/internal/ledger"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext provides database access for assertions.
type AssertionContext struct {
	Store   *store.Store
	Ledger  *ledger.Ledger
	Dialect schema.Dialect
}

// EvaluateAssertions evaluates all assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(ctx, actx, assertion)
		case AssertRow:
			err = assertRow(ctx, actx, assertion)
		case AssertTableAbsent:
			err = assertTableAbsent(ctx, actx, assertion)
		case AssertLedgerCount:
			err = assertLedgerCount(ctx, actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// sideTable resolves an unqualified table name. Only declared side tables
// are accepted, so the name is safe to interpolate.
func sideTable(name string) (schema.Table, error) {
	t, ok := schema.Lookup(name)
	if !ok {
		return schema.Table{}, fmt.Errorf("unknown side table %q", name)
	}
	return t, nil
}

func assertRowCount(ctx context.Context, actx *AssertionContext, a Assertion) error {
	t, err := sideTable(a.Table)
	if err != nil {
		return err
	}

	var n int
	query := "SELECT COUNT(*) FROM " + actx.Dialect.Qualify(t.Name)
	if err := actx.Store.DB().QueryRowContext(ctx, query).Scan(&n); err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertRow finds the single row matching Where and checks Expect against
// it (subset semantics).
func assertRow(ctx context.Context, actx *AssertionContext, a Assertion) error {
	t, err := sideTable(a.Table)
	if err != nil {
		return err
	}

	var matches []map[string]any
	err = export.Walk(ctx, actx.Store, actx.Dialect, func(r export.Record) error {
		if r.Table != t.Name {
			return nil
		}
		row := plain(r.Row).(map[string]any)
		if matchFields(row, a.Where) {
			matches = append(matches, row)
		}
		return nil
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("read %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	whereDesc := formatFields(a.Where)
	switch len(matches) {
	case 0:
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(matches)),
		}
	}

	row := matches[0]
	for _, key := range sortedKeys(a.Expect) {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertRow,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns are %v", sortedKeys(row)),
			}
		}
		expected := normalize(a.Expect[key])
		if !reflect.DeepEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertRow,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

func assertTableAbsent(ctx context.Context, actx *AssertionContext, a Assertion) error {
	t, err := sideTable(a.Table)
	if err != nil {
		return err
	}
	exists, err := tableExists(ctx, actx.Store, actx.Dialect.Qualify(t.Name))
	if err != nil {
		return err
	}
	if exists {
		return &AssertionError{
			Type:     AssertTableAbsent,
			Expected: fmt.Sprintf("no table %s", a.Table),
			Actual:   "table exists",
		}
	}
	return nil
}

func assertLedgerCount(ctx context.Context, actx *AssertionContext, a Assertion) error {
	n, err := actx.Ledger.Count(ctx)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertLedgerCount,
			Expected: fmt.Sprintf("%d ledger transactions", a.Count),
			Actual:   fmt.Sprintf("%d ledger transactions", n),
		}
	}
	return nil
}

func tableExists(ctx context.Context, st *store.Store, name string) (bool, error) {
	var n int
	err := st.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n == 1, nil
}

func matchFields(row, where map[string]any) bool {
	for key, want := range where {
		got, ok := row[key]
		if !ok || !reflect.DeepEqual(normalize(want), got) {
			return false
		}
	}
	return true
}

// plain converts a canonical value to the Go types assertions compare:
// nil, string, int64, bool, []any and map[string]any.
func plain(v canonical.Value) any {
	switch val := v.(type) {
	case canonical.String:
		return string(val)
	case canonical.Int:
		return int64(val)
	case canonical.Bool:
		return bool(val)
	case canonical.Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plain(e)
		}
		return out
	case canonical.Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = plain(e)
		}
		return out
	default:
		return nil
	}
}

// normalize maps YAML-decoded values onto the types plain produces.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	default:
		return val
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatFields creates a human-readable description of field conditions.
func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " AND ")
}
