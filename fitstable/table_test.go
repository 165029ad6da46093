package fitstable

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMatrixDefaultNames(t *testing.T) {
	tbl, err := FromMatrix([][]float64{{1, 2, 3}, {4, 5, 6}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"col000", "col001", "col002"}, tbl.ColumnNames())
	assert.Equal(t, 2, tbl.NumRows())
	c, ok := tbl.Column("col001")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 5}, c.Data)
}

func TestFromMatrixErrors(t *testing.T) {
	_, err := FromMatrix([][]float64{{1, 2}, {3}}, nil)
	assert.Error(t, err)

	_, err = FromMatrix([][]float64{{1, 2}}, []string{"x"})
	assert.Error(t, err)
}

func TestFromList(t *testing.T) {
	tbl, err := FromList([]float64{5, 6, 10}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"col001"}, tbl.ColumnNames())
	assert.Equal(t, 3, tbl.NumRows())

	tbl, err = FromList([]int{1, 2, 3}, "n")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, tbl.ColumnNames())
	assert.Equal(t, []int64{1, 2, 3}, tbl.Columns[0].Data)

	tbl, err = FromList([]any{"a", "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns[0].Data)

	_, err = FromList(map[string]int{}, "")
	assert.Error(t, err)
}

func TestFromMatrixSingleColumn(t *testing.T) {
	tbl, err := FromMatrix([][]float64{{1}, {2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"col000"}, tbl.ColumnNames())
}

func TestFromDictKeepsOrder(t *testing.T) {
	d := ordereddict.NewDict().
		Set("y", []any{"hey", "lift", "your", "head"}).
		Set("x", []any{1, 2, 3, 4}).
		Set("z", []any{1, 2.5, 3, 4})

	tbl, err := FromDict(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "z"}, tbl.ColumnNames())

	x, _ := tbl.Column("x")
	assert.Equal(t, []int64{1, 2, 3, 4}, x.Data)
	z, _ := tbl.Column("z")
	assert.Equal(t, []float64{1, 2.5, 3, 4}, z.Data)
}

func TestFromDictRejectsMixedTypes(t *testing.T) {
	d := ordereddict.NewDict().Set("a", []any{1, "two"})
	_, err := FromDict(d)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		tbl  Table
		ok   bool
	}{
		{"empty", Table{}, false},
		{"ok", Table{Columns: []Column{{Name: "a", Data: []int64{1}}, {Name: "b", Data: []string{"x"}}}}, true},
		{"unnamed", Table{Columns: []Column{{Name: " ", Data: []int64{1}}}}, false},
		{"duplicate", Table{Columns: []Column{{Name: "a", Data: []int64{1}}, {Name: "a", Data: []int64{2}}}}, false},
		{"ragged", Table{Columns: []Column{{Name: "a", Data: []int64{1}}, {Name: "b", Data: []bool{true, false}}}}, false},
		{"unsupported", Table{Columns: []Column{{Name: "a", Data: []uint8{1}}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tbl.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSelectRows(t *testing.T) {
	tbl := &Table{Name: "t", Columns: []Column{
		{Name: "a", Data: []int64{10, 11, 12, 13}},
		{Name: "b", Data: []string{"w", "x", "y", "z"}},
	}}

	sub, err := tbl.SelectRows([]int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.NumRows())
	assert.Equal(t, []int64{13, 11}, sub.Columns[0].Data)
	assert.Equal(t, []string{"z", "x"}, sub.Columns[1].Data)

	_, err = tbl.SelectRows([]int{4})
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	tbl, err := FromMatrix([][]float64{{1, 2}}, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Rename([]string{"x", "y"}))
	assert.Equal(t, []string{"x", "y"}, tbl.ColumnNames())
	assert.Error(t, tbl.Rename([]string{"x"}))
}
