package fitstable

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadCSV reads a table from CSV with a header row. Each column gets the
// narrowest type all its values parse as: int64, float64, bool, then string.
func ReadCSV(r io.Reader, name string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header")
	}

	header := records[0]
	rows := records[1:]
	t := &Table{Name: name, Columns: make([]Column, len(header))}
	for c, h := range header {
		cells := make([]string, len(rows))
		for r, rec := range rows {
			cells[r] = strings.TrimSpace(rec[c])
		}
		t.Columns[c] = Column{Name: strings.TrimSpace(h), Data: inferColumn(cells)}
	}
	return t, t.Validate()
}

func inferColumn(cells []string) any {
	if ints, ok := parseAll(cells, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }); ok {
		return ints
	}
	if floats, ok := parseAll(cells, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }); ok {
		return floats
	}
	if bools, ok := parseAll(cells, strconv.ParseBool); ok {
		return bools
	}
	return cells
}

func parseAll[T any](cells []string, parse func(string) (T, error)) ([]T, bool) {
	out := make([]T, len(cells))
	for i, s := range cells {
		v, err := parse(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
