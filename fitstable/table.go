// Package fitstable holds column-oriented tables and their FITS binary-table
// encoding, the payload format exchanged over SAMP.
package fitstable

import (
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

// Column is a named column. Data is one of []float64, []int64, []bool or []string.
type Column struct {
	Name string
	Data any
}

// Len returns the number of values in the column, or -1 for an unsupported type.
func (c Column) Len() int {
	switch d := c.Data.(type) {
	case []float64:
		return len(d)
	case []int64:
		return len(d)
	case []bool:
		return len(d)
	case []string:
		return len(d)
	}
	return -1
}

// Table is an ordered set of equally long columns.
type Table struct {
	Name    string
	Columns []Column
}

// DefaultColumnNames returns col000, col001, ... as used for matrices.
func DefaultColumnNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("col%03d", i)
	}
	return out
}

// NumRows returns the length of the columns (0 for a table without columns).
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

func (t *Table) NumCols() int { return len(t.Columns) }

func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks column types, names and lengths.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return errors.New("table has no columns")
	}
	seen := make(map[string]bool, len(t.Columns))
	rows := t.Columns[0].Len()
	for i, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.Errorf("column %d has no name", i)
		}
		if seen[name] {
			return errors.Errorf("duplicate column name %q", name)
		}
		seen[name] = true

		n := c.Len()
		if n < 0 {
			return errors.Errorf("column %q has unsupported type %T", name, c.Data)
		}
		if n != rows {
			return errors.Errorf("column %q has %d rows, expected %d", name, n, rows)
		}
	}
	return nil
}

// Rename replaces the column names; len(names) must match the column count.
func (t *Table) Rename(names []string) error {
	if len(names) != len(t.Columns) {
		return errors.Errorf("got %d column names for %d columns", len(names), len(t.Columns))
	}
	for i := range t.Columns {
		t.Columns[i].Name = names[i]
	}
	return nil
}

// SelectRows returns a new table holding the rows at idx, in that order.
func (t *Table) SelectRows(idx []int) (*Table, error) {
	n := t.NumRows()
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, errors.Errorf("row %d out of range [0,%d)", i, n)
		}
	}

	out := &Table{Name: t.Name, Columns: make([]Column, len(t.Columns))}
	for ci, c := range t.Columns {
		out.Columns[ci] = Column{Name: c.Name, Data: pick(c.Data, idx)}
	}
	return out, nil
}

func pick(data any, idx []int) any {
	switch d := data.(type) {
	case []float64:
		out := make([]float64, len(idx))
		for i, r := range idx {
			out[i] = d[r]
		}
		return out
	case []int64:
		out := make([]int64, len(idx))
		for i, r := range idx {
			out[i] = d[r]
		}
		return out
	case []bool:
		out := make([]bool, len(idx))
		for i, r := range idx {
			out[i] = d[r]
		}
		return out
	case []string:
		out := make([]string, len(idx))
		for i, r := range idx {
			out[i] = d[r]
		}
		return out
	}
	return nil
}

// FromMatrix builds a table from row-major data. Every row must have the same
// width. Nil names default to col000, col001, ...
func FromMatrix(rows [][]float64, names []string) (*Table, error) {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	for i, r := range rows {
		if len(r) != width {
			return nil, errors.Errorf("row %d has %d values, expected %d", i, len(r), width)
		}
	}
	if names == nil {
		names = DefaultColumnNames(width)
	}
	if len(names) != width {
		return nil, errors.Errorf("got %d column names for %d columns", len(names), width)
	}

	t := &Table{Columns: make([]Column, width)}
	for c := 0; c < width; c++ {
		col := make([]float64, len(rows))
		for r := range rows {
			col[r] = rows[r][c]
		}
		t.Columns[c] = Column{Name: names[c], Data: col}
	}
	return t, t.Validate()
}

// FromList builds a single-column table from a slice of any supported element
// type. Integer lists stay int64. The column is named col001 unless a name is
// given; use FromMatrix for array data named from col000.
func FromList(values any, name string) (*Table, error) {
	if strings.TrimSpace(name) == "" {
		name = "col001"
	}
	data, err := columnData(values)
	if err != nil {
		return nil, err
	}
	t := &Table{Columns: []Column{{Name: name, Data: data}}}
	return t, t.Validate()
}

// FromDict builds a table from an ordered dict of column name to values,
// keeping the dict's key order.
func FromDict(d *ordereddict.Dict) (*Table, error) {
	t := &Table{}
	for _, key := range d.Keys() {
		v, _ := d.Get(key)
		data, err := columnData(v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", key)
		}
		t.Columns = append(t.Columns, Column{Name: key, Data: data})
	}
	return t, t.Validate()
}

// columnData normalises a slice into one of the supported column types.
func columnData(v any) (any, error) {
	switch d := v.(type) {
	case []float64, []int64, []bool, []string:
		return d, nil
	case []float32:
		out := make([]float64, len(d))
		for i, x := range d {
			out[i] = float64(x)
		}
		return out, nil
	case []int:
		out := make([]int64, len(d))
		for i, x := range d {
			out[i] = int64(x)
		}
		return out, nil
	case []int32:
		out := make([]int64, len(d))
		for i, x := range d {
			out[i] = int64(x)
		}
		return out, nil
	case []any:
		return fromAnySlice(d)
	}
	return nil, errors.Errorf("unsupported column type %T", v)
}

// fromAnySlice requires all elements to share one kind; ints mixed with floats
// widen to float64.
func fromAnySlice(d []any) (any, error) {
	if len(d) == 0 {
		return []float64{}, nil
	}
	var floats, ints, bools, strs int
	for _, e := range d {
		switch e.(type) {
		case float64, float32:
			floats++
		case int, int64, int32:
			ints++
		case bool:
			bools++
		case string:
			strs++
		default:
			return nil, errors.Errorf("unsupported value %T", e)
		}
	}

	switch len(d) {
	case strs:
		out := make([]string, len(d))
		for i, e := range d {
			out[i] = e.(string)
		}
		return out, nil
	case bools:
		out := make([]bool, len(d))
		for i, e := range d {
			out[i] = e.(bool)
		}
		return out, nil
	case ints:
		out := make([]int64, len(d))
		for i, e := range d {
			out[i] = asInt64(e)
		}
		return out, nil
	case floats + ints:
		out := make([]float64, len(d))
		for i, e := range d {
			switch x := e.(type) {
			case float64:
				out[i] = x
			case float32:
				out[i] = float64(x)
			default:
				out[i] = float64(asInt64(x))
			}
		}
		return out, nil
	}
	return nil, errors.New("mixed value types")
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return 0
}
