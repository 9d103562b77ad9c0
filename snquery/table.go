package snquery

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// -----------------------------------------------------------------------------
// Table
// -----------------------------------------------------------------------------

// Table is an ordered set of equal-length named columns plus a metadata
// side-map. It is the exchange format between survey parsers, the release
// surface, and downstream consumers.
//
// Tables are not safe for concurrent mutation; every retrieval returns a
// fresh table, so callers own what they receive.
type Table struct {
	// Meta holds scalar values attached to the table, not stored as
	// columns. See the Meta* key constants for the shared vocabulary.
	Meta Metadata

	names   []string
	columns map[string][]any
	rows    int
}

// NewTable creates an empty table with the given column order.
func NewTable(names ...string) *Table {
	t := &Table{
		Meta:    Metadata{},
		names:   slices.Clone(names),
		columns: make(map[string][]any, len(names)),
	}
	for _, name := range names {
		t.columns[name] = nil
	}
	return t
}

// ColumnNames returns the column order. The slice is owned by the caller.
func (t *Table) ColumnNames() []string {
	return slices.Clone(t.names)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns the named column's values, or nil for an unknown name.
// The returned slice is the table's backing storage.
func (t *Table) Column(name string) []any {
	return t.columns[name]
}

// Floats returns the named column converted to float64. It fails when the
// column is missing or holds a non-numeric value.
func (t *Table) Floats(name string) ([]float64, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("snquery: no column %q", name)
	}
	out := make([]float64, len(col))
	for i, v := range col {
		switch x := v.(type) {
		case float64:
			out[i] = x
		case int:
			out[i] = float64(x)
		default:
			return nil, fmt.Errorf("snquery: column %q row %d is not numeric (%T)", name, i, v)
		}
	}
	return out, nil
}

// Strings returns the named column with every value formatted as a string.
func (t *Table) Strings(name string) ([]string, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("snquery: no column %q", name)
	}
	out := make([]string, len(col))
	for i, v := range col {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return t.rows
}

// AddRow appends one value per column, in column order.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.names) {
		return fmt.Errorf("snquery: row has %d values, table has %d columns", len(values), len(t.names))
	}
	for i, name := range t.names {
		t.columns[name] = append(t.columns[name], values[i])
	}
	t.rows++
	return nil
}

// AddColumn appends a column. A scalar value is broadcast to every row;
// a slice must match the current row count. Columns of an empty table
// define the row count.
func (t *Table) AddColumn(name string, values []any) error {
	if _, exists := t.columns[name]; exists {
		return fmt.Errorf("snquery: column %q already exists", name)
	}
	if len(t.names) > 0 && len(values) != t.rows {
		return fmt.Errorf("snquery: column %q has %d values, table has %d rows", name, len(values), t.rows)
	}
	t.names = append(t.names, name)
	t.columns[name] = values
	t.rows = len(values)
	return nil
}

// Copy returns a deep copy whose columns and metadata are independent from
// the receiver.
func (t *Table) Copy() *Table {
	out := &Table{
		Meta:    maps.Clone(t.Meta),
		names:   slices.Clone(t.names),
		columns: make(map[string][]any, len(t.columns)),
		rows:    t.rows,
	}
	if out.Meta == nil {
		out.Meta = Metadata{}
	}
	for name, col := range t.columns {
		out.columns[name] = slices.Clone(col)
	}
	return out
}

// Row returns the values of one row in column order.
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.names))
	for j, name := range t.names {
		out[j] = t.columns[name][i]
	}
	return out
}

// Equal reports whether two tables hold the same columns, rows, and
// metadata.
func (t *Table) Equal(other *Table) bool {
	if other == nil || !slices.Equal(t.names, other.names) || t.rows != other.rows {
		return false
	}
	for _, name := range t.names {
		if !reflect.DeepEqual(t.columns[name], other.columns[name]) {
			return false
		}
	}
	return reflect.DeepEqual(t.Meta, other.Meta)
}

// -----------------------------------------------------------------------------
// Vertical stacking
// -----------------------------------------------------------------------------

// Vstack concatenates tables row-wise. The output's columns are the union of
// the inputs' columns in first-seen order; rows missing a column are filled
// with nil. Metadata is not merged: the result starts with empty metadata,
// since metadata reconciliation is the caller's policy.
func Vstack(tables ...*Table) *Table {
	var names []string
	seen := map[string]bool{}
	rows := 0
	for _, t := range tables {
		for _, name := range t.names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		rows += t.rows
	}

	out := NewTable(names...)
	out.rows = rows
	for _, name := range names {
		col := make([]any, 0, rows)
		for _, t := range tables {
			if src, ok := t.columns[name]; ok {
				col = append(col, src...)
			} else {
				col = append(col, make([]any, t.rows)...)
			}
		}
		out.columns[name] = col
	}
	return out
}
