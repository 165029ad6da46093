package fitstable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := `id, mass, bright, label
1, 2.5, true, a
2, 3, false, b
3, 4.25, true, c
`
	tbl, err := ReadCSV(strings.NewReader(in), "stars")
	require.NoError(t, err)

	assert.Equal(t, "stars", tbl.Name)
	assert.Equal(t, []string{"id", "mass", "bright", "label"}, tbl.ColumnNames())
	assert.Equal(t, []int64{1, 2, 3}, tbl.Columns[0].Data)
	assert.Equal(t, []float64{2.5, 3, 4.25}, tbl.Columns[1].Data)
	assert.Equal(t, []bool{true, false, true}, tbl.Columns[2].Data)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Columns[3].Data)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), "")
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"), "")
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"), "")
	assert.Error(t, err)
}
