package fitstable

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	return &Table{Name: "stars", Columns: []Column{
		{Name: "ra", Data: []float64{10.5, 11.25, 12}},
		{Name: "id", Data: []int64{1, 2, 3}},
		{Name: "flag", Data: []bool{true, false, true}},
		{Name: "label", Data: []string{"a", "bb", "ccc"}},
	}}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.fits")
	require.NoError(t, WriteFile(path, sampleTable()))

	got, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "stars", got.Name)
	assert.Equal(t, []string{"ra", "id", "flag", "label"}, got.ColumnNames())
	assert.Equal(t, 3, got.NumRows())

	want := sampleTable()
	for i := range want.Columns {
		assert.Equal(t, want.Columns[i].Data, got.Columns[i].Data, want.Columns[i].Name)
	}
}

func TestWriteStringCellsBlankPadded(t *testing.T) {
	tbl := &Table{Name: "words", Columns: []Column{
		{Name: "w", Data: []string{"hey", "lift", "your", "head", ""}},
	}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl))

	raw := buf.Bytes()
	f, err := fitsio.Open(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	card := f.HDU(1).Header().Get("TFORM1")
	require.NotNil(t, card)
	assert.Equal(t, "4A", card.Value)

	assert.True(t, bytes.Contains(raw, []byte("hey liftyourhead    ")), "string cells must be blank padded nA fields")
	assert.False(t, bytes.Contains(raw, []byte("\x00hey")))

	got, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"hey", "lift", "your", "head", ""}, got.Columns[0].Data)
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.fits")
	first, err := FromList([]float64{1, 2, 3, 4}, "")
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, first))

	second, err := FromList([]int{9}, "v")
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, second))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumRows())
	assert.Equal(t, []string{"v"}, got.ColumnNames())
}

func TestWriteInvalidTableLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fits")
	err := WriteFile(path, &Table{})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadWithoutTable(t *testing.T) {
	var buf bytes.Buffer
	_, err := Read(&buf)
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.fits"))
	assert.Error(t, err)
}
