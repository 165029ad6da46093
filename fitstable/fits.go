package fitstable

import (
	"bytes"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
)

// ErrNoTable is returned when a FITS file has no table extension.
var ErrNoTable = errors.New("no table HDU in FITS file")

// Binary-table TFORM codes used for writing.
const (
	formFloat64 = "D"
	formInt64   = "K"
	formBool    = "L"
)

func tform(c Column) (string, error) {
	switch d := c.Data.(type) {
	case []float64:
		return formFloat64, nil
	case []int64:
		return formInt64, nil
	case []bool:
		return formBool, nil
	case []string:
		return strconv.Itoa(stringWidth(d)) + "A", nil
	}
	return "", errors.Errorf("column %q: unsupported type %T", c.Name, c.Data)
}

func stringWidth(values []string) int {
	width := 1
	for _, s := range values {
		if len(s) > width {
			width = len(s)
		}
	}
	return width
}

// putString stores s into the byte array cell, padded with blanks.
func putString(cell reflect.Value, s string) {
	b := cell.Slice(0, cell.Len()).Bytes()
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = ' '
	}
}

// WriteFile writes t to path as a FITS file with an empty primary HDU and one
// binary-table extension, replacing any existing file.
func WriteFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create FITS file")
	}
	if err := Write(f, t); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Write encodes t as FITS onto w.
func Write(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	cols := make([]fitsio.Column, len(t.Columns))
	for i, c := range t.Columns {
		form, err := tform(c)
		if err != nil {
			return err
		}
		cols[i] = fitsio.Column{Name: c.Name, Format: form}
	}

	f, err := fitsio.Create(w)
	if err != nil {
		return errors.Wrap(err, "fits create")
	}
	defer f.Close()

	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return errors.Wrap(err, "fits primary HDU")
	}
	if err := f.Write(phdu); err != nil {
		return errors.Wrap(err, "fits write primary HDU")
	}

	extname := t.Name
	if extname == "" {
		extname = "TABLE"
	}
	tbl, err := fitsio.NewTable(extname, cols, fitsio.BINARY_TBL)
	if err != nil {
		return errors.Wrap(err, "fits new table")
	}
	defer tbl.Close()

	cells := make([]reflect.Value, len(t.Columns))
	args := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		typ := reflect.TypeOf(c.Data).Elem()
		if typ.Kind() == reflect.String {
			// Fixed byte cells are copied verbatim into the nA field.
			typ = reflect.ArrayOf(stringWidth(c.Data.([]string)), reflect.TypeOf(byte(0)))
		}
		cells[i] = reflect.New(typ)
		args[i] = cells[i].Interface()
	}

	rows := t.NumRows()
	for r := 0; r < rows; r++ {
		for i, c := range t.Columns {
			if s, ok := c.Data.([]string); ok {
				putString(cells[i].Elem(), s[r])
				continue
			}
			cells[i].Elem().Set(reflect.ValueOf(c.Data).Index(r))
		}
		if err := tbl.Write(args...); err != nil {
			return errors.Wrapf(err, "fits write row %d", r)
		}
	}

	if err := f.Write(tbl); err != nil {
		return errors.Wrap(err, "fits write table")
	}
	return nil
}

// ReadFile reads the first table extension of the FITS file at path.
func ReadFile(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read FITS file")
	}
	return Read(bytes.NewReader(b))
}

// Read decodes the first table extension found in r. Narrow integer and
// float columns are widened to int64 and float64.
func Read(r io.Reader) (*Table, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, errors.Wrap(err, "fits open")
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		if hdu.Type() != fitsio.BINARY_TBL && hdu.Type() != fitsio.ASCII_TBL {
			continue
		}
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			continue
		}
		return readTable(tbl)
	}
	return nil, ErrNoTable
}

func readTable(tbl *fitsio.Table) (*Table, error) {
	ncols := tbl.NumCols()
	out := &Table{Name: tbl.Name(), Columns: make([]Column, ncols)}

	cells := make([]reflect.Value, ncols)
	args := make([]any, ncols)
	for i := 0; i < ncols; i++ {
		col := tbl.Col(i)
		typ := col.Type()
		data, err := emptyColumn(typ)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", col.Name)
		}
		out.Columns[i] = Column{Name: col.Name, Data: data}
		cells[i] = reflect.New(typ)
		args[i] = cells[i].Interface()
	}

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, errors.Wrap(err, "fits read rows")
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(args...); err != nil {
			return nil, errors.Wrap(err, "fits scan row")
		}
		for i := range out.Columns {
			out.Columns[i].Data = appendCell(out.Columns[i].Data, cells[i].Elem())
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "fits rows")
	}
	return out, nil
}

func emptyColumn(typ reflect.Type) (any, error) {
	switch typ.Kind() {
	case reflect.Float32, reflect.Float64:
		return []float64{}, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return []int64{}, nil
	case reflect.Bool:
		return []bool{}, nil
	case reflect.String:
		return []string{}, nil
	}
	return nil, errors.Errorf("unsupported FITS column type %s", typ)
}

func appendCell(data any, v reflect.Value) any {
	switch d := data.(type) {
	case []float64:
		return append(d, v.Float())
	case []int64:
		switch v.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return append(d, int64(v.Uint()))
		}
		return append(d, v.Int())
	case []bool:
		return append(d, v.Bool())
	case []string:
		// FITS pads fixed-width strings.
		return append(d, strings.TrimRight(v.String(), " \x00"))
	}
	return data
}
