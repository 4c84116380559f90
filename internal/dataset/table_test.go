package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl := New("Num_Acc", "agg", "col")
	require.NoError(t, tbl.AppendRow([]string{"1", "2", "3"}))
	require.NoError(t, tbl.AppendRow([]string{"2", "", "(4)"}))
	require.NoError(t, tbl.AppendRow([]string{"3", "1"}))
	return tbl
}

func TestTableBasics(t *testing.T) {
	tbl := sampleTable(t)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, tbl.Width())
	assert.True(t, tbl.Has("agg"))
	assert.False(t, tbl.Has("vma"))
	assert.Equal(t, "", tbl.Value(2, "col"), "short rows are padded")
	assert.Equal(t, "", tbl.Value(0, "unknown"))

	tbl.Set(1, "agg", "9")
	assert.Equal(t, "9", tbl.Value(1, "agg"))

	err := tbl.AppendRow([]string{"1", "2", "3", "4"})
	assert.Error(t, err)
}

func TestTableColumnOps(t *testing.T) {
	tbl := sampleTable(t)

	require.NoError(t, tbl.AddColumn("grave", []string{"1", "0", "1"}))
	assert.Equal(t, []string{"Num_Acc", "agg", "col", "grave"}, tbl.Columns())
	assert.Error(t, tbl.AddColumn("grave", []string{"1", "0", "1"}))
	assert.Error(t, tbl.AddColumn("short", []string{"1"}))

	dropped := tbl.DropColumns("agg", "missing", "agg")
	assert.Equal(t, []string{"agg"}, dropped)
	assert.Equal(t, []string{"Num_Acc", "col", "grave"}, tbl.Columns())
	assert.Equal(t, "(4)", tbl.Value(1, "col"))
	assert.Equal(t, "1", tbl.Value(2, "grave"))

	require.NoError(t, tbl.RenameColumn("Num_Acc", "id"))
	assert.True(t, tbl.Has("id"))
	assert.False(t, tbl.Has("Num_Acc"))
	assert.Error(t, tbl.RenameColumn("col", "grave"))
	assert.Error(t, tbl.RenameColumn("nope", "x"))
}

func TestTableFilterCopiesRows(t *testing.T) {
	tbl := sampleTable(t)

	kept := tbl.Filter(func(i int) bool { return tbl.Value(i, "agg") != "" })
	require.Equal(t, 2, kept.Len())
	kept.Set(0, "agg", "changed")
	assert.Equal(t, "2", tbl.Value(0, "agg"), "filtered table must not alias the source")
}

func TestTableMissingAndFloats(t *testing.T) {
	tbl := sampleTable(t)

	assert.Equal(t, 2, tbl.Missing())
	assert.Equal(t, 1, tbl.Missing("agg"))

	strict, err := tbl.Floats("col", ParseFloat)
	require.NoError(t, err)
	assert.Equal(t, 3.0, strict[0])
	assert.True(t, math.IsNaN(strict[1]))

	lenient, err := tbl.Floats("col", Coerce)
	require.NoError(t, err)
	assert.Equal(t, 4.0, lenient[1])
	assert.True(t, math.IsNaN(lenient[2]))

	_, err = tbl.Floats("nope", Coerce)
	assert.Error(t, err)
}
