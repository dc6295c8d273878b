// Package table implements the row-based payload embedded in a structured-data
// unit: an ordered list of rows plus the ordered list of column names.
//
// The persisted shape is load-bearing and must stay
//
//	{"rows": [{col: value, ...}, ...], "column_order": [name, ...]}
//
// Any other keys present in the payload are carried through untouched.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
)

const (
	KeyRows        = "rows"
	KeyColumnOrder = "column_order"
)

var (
	// ErrInvalidFormat is returned when a payload is not row-based.
	ErrInvalidFormat = errors.New("data is not in row-based format")
	// ErrRowIndexOutOfRange is returned for a row index outside [0, len(rows)).
	ErrRowIndexOutOfRange = errors.New("row index out of range")
)

// Row maps column names to cell values.
type Row map[string]any

// RowTable is the decoded row-based variant of a unit payload.
// Row indices are positional: deleting a row shifts every later row down by one.
type RowTable struct {
	Rows        []Row
	ColumnOrder []string

	// extra holds payload keys other than rows/column_order.
	extra map[string]any
}

// Page is a window over a RowTable returned by Slice.
type Page struct {
	Total       int      `json:"total"`
	Rows        []Row    `json:"rows"`
	ColumnOrder []string `json:"column_order"`
}

// Parse decodes a unit payload into a RowTable. It fails with ErrInvalidFormat
// when the payload has no "rows" key or when rows/column_order are malformed.
func Parse(data map[string]any) (*RowTable, error) {
	if data == nil {
		return nil, ErrInvalidFormat
	}
	if _, ok := data[KeyRows]; !ok {
		return nil, ErrInvalidFormat
	}
	return decode(data)
}

// ParseOrInit behaves like Parse but initializes an empty table when the
// payload carries no "rows" key. The initial column order is taken from seed.
func ParseOrInit(data map[string]any, seed Row) (*RowTable, error) {
	if _, ok := data[KeyRows]; ok {
		return decode(data)
	}
	t := &RowTable{
		Rows:        []Row{},
		ColumnOrder: sortedKeys(seed),
		extra:       extraKeys(data),
	}
	return t, nil
}

func decode(data map[string]any) (*RowTable, error) {
	rawRows, ok := data[KeyRows].([]any)
	if !ok {
		if data[KeyRows] != nil {
			return nil, fmt.Errorf("%w: rows is %T", ErrInvalidFormat, data[KeyRows])
		}
		rawRows = nil
	}

	t := &RowTable{
		Rows:  make([]Row, 0, len(rawRows)),
		extra: extraKeys(data),
	}
	for i, r := range rawRows {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T", ErrInvalidFormat, i, r)
		}
		t.Rows = append(t.Rows, Row(obj))
	}

	switch order := data[KeyColumnOrder].(type) {
	case nil:
		t.ColumnOrder = []string{}
	case []any:
		t.ColumnOrder = make([]string, 0, len(order))
		for i, name := range order {
			s, ok := name.(string)
			if !ok {
				return nil, fmt.Errorf("%w: column_order[%d] is %T", ErrInvalidFormat, i, name)
			}
			if !slices.Contains(t.ColumnOrder, s) {
				t.ColumnOrder = append(t.ColumnOrder, s)
			}
		}
	case []string:
		t.ColumnOrder = make([]string, 0, len(order))
		for _, s := range order {
			if !slices.Contains(t.ColumnOrder, s) {
				t.ColumnOrder = append(t.ColumnOrder, s)
			}
		}
	default:
		return nil, fmt.Errorf("%w: column_order is %T", ErrInvalidFormat, order)
	}
	// Stored payloads may carry row keys the column order lacks.
	for _, row := range t.Rows {
		t.widen(row)
	}
	return t, nil
}

// Normalize returns data with column_order widened to cover every row key.
// Payloads that are not row-based are opaque and returned as is.
func Normalize(data map[string]any) map[string]any {
	if _, ok := data[KeyRows]; !ok {
		return data
	}
	t, err := decode(data)
	if err != nil {
		return data
	}
	return t.Data()
}

// Data encodes the table back into a payload map suitable for persisting.
func (t *RowTable) Data() map[string]any {
	out := make(map[string]any, len(t.extra)+2)
	for k, v := range t.extra {
		out[k] = v
	}
	rows := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = map[string]any(r)
	}
	order := make([]any, len(t.ColumnOrder))
	for i, name := range t.ColumnOrder {
		order[i] = name
	}
	out[KeyRows] = rows
	out[KeyColumnOrder] = order
	return out
}

// Slice returns rows[skip:skip+limit] with the total row count. Out-of-range
// windows yield an empty slice rather than an error.
func (t *RowTable) Slice(skip, limit int) Page {
	total := len(t.Rows)
	start := max(skip, 0)
	start = min(start, total)
	end := start
	if limit > 0 {
		end = min(start+limit, total)
	}
	return Page{
		Total:       total,
		Rows:        slices.Clone(t.Rows[start:end]),
		ColumnOrder: slices.Clone(t.ColumnOrder),
	}
}

// Append adds row as the new last row. Keys missing from the column order are
// appended to it in lexical order.
func (t *RowTable) Append(row Row) Row {
	if row == nil {
		row = Row{}
	}
	t.widen(row)
	t.Rows = append(t.Rows, row)
	return row
}

// widen appends keys of row missing from the column order, in lexical order.
func (t *RowTable) widen(row Row) {
	for _, k := range sortedKeys(row) {
		if !slices.Contains(t.ColumnOrder, k) {
			t.ColumnOrder = append(t.ColumnOrder, k)
		}
	}
}

// Merge shallow-merges patch into the row at index. Keys absent from patch are
// kept and new keys widen the column order. It returns copies of the row
// before and after the merge.
func (t *RowTable) Merge(index int, patch Row) (before, after Row, err error) {
	if err := t.checkIndex(index); err != nil {
		return nil, nil, err
	}
	row := t.Rows[index]
	before = cloneRow(row)
	if row == nil {
		row = Row{}
		t.Rows[index] = row
	}
	for k, v := range patch {
		row[k] = v
	}
	t.widen(patch)
	return before, cloneRow(row), nil
}

// Remove deletes and returns the row at index.
func (t *RowTable) Remove(index int) (Row, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	removed := t.Rows[index]
	t.Rows = slices.Delete(t.Rows, index, index+1)
	return removed, nil
}

// SetCell assigns rows[index][column] = value and returns the prior value
// stringified, or nil when the cell was absent or null.
func (t *RowTable) SetCell(index int, column string, value any) (*string, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	row := t.Rows[index]
	if row == nil {
		row = Row{}
		t.Rows[index] = row
	}
	old := Stringify(row[column])
	row[column] = value
	t.widen(Row{column: value})
	return old, nil
}

func (t *RowTable) checkIndex(index int) error {
	if index < 0 || index >= len(t.Rows) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrRowIndexOutOfRange, index, len(t.Rows))
	}
	return nil
}

// Stringify renders a cell value for the change history. Nil stays nil.
func Stringify(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	case json.Number:
		s = val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(b)
		}
	}
	return &s
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func extraKeys(data map[string]any) map[string]any {
	extra := make(map[string]any)
	for k, v := range data {
		if k == KeyRows || k == KeyColumnOrder {
			continue
		}
		extra[k] = v
	}
	return extra
}
