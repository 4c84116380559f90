package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accident-severity/internal/dataset"
)

func table(t *testing.T, cols []string, rows ...[]string) *dataset.Table {
	t.Helper()
	tbl := dataset.New(cols...)
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r))
	}
	return tbl
}

func TestJoinInnerAndLeft(t *testing.T) {
	left := table(t, []string{"Num_Acc", "lum"},
		[]string{"1", "a"}, []string{"2", "b"}, []string{"3", "c"})
	right := table(t, []string{"Num_Acc", "grav"},
		[]string{"3", "1"}, []string{"1", "4"}, []string{"9", "2"})

	inner, err := Join(left, right, "Num_Acc", InnerJoin)
	require.NoError(t, err)
	assert.Equal(t, []string{"Num_Acc", "lum", "grav"}, inner.Columns())
	require.Equal(t, 2, inner.Len())
	assert.Equal(t, "1", inner.Value(0, "Num_Acc"), "left order is preserved")
	assert.Equal(t, "4", inner.Value(0, "grav"))
	assert.Equal(t, "3", inner.Value(1, "Num_Acc"))

	leftJoined, err := Join(left, right, "Num_Acc", LeftJoin)
	require.NoError(t, err)
	require.Equal(t, 3, leftJoined.Len())
	assert.Equal(t, "", leftJoined.Value(1, "grav"))
}

func TestJoinDuplicatesAndSuffixes(t *testing.T) {
	left := table(t, []string{"Num_Acc", "env"}, []string{"1", "x"})
	right := table(t, []string{"Num_Acc", "env", "vma"},
		[]string{"1", "y", "50"}, []string{"1", "z", "80"})

	out, err := Join(left, right, "Num_Acc", LeftJoin)
	require.NoError(t, err)
	assert.Equal(t, []string{"Num_Acc", "env_x", "env_y", "vma"}, out.Columns())
	require.Equal(t, 2, out.Len(), "one-to-many matches fan out")
	assert.Equal(t, "50", out.Value(0, "vma"))
	assert.Equal(t, "80", out.Value(1, "vma"))
	assert.Equal(t, "x", out.Value(1, "env_x"))
}

func TestJoinMissingKey(t *testing.T) {
	left := table(t, []string{"id"})
	right := table(t, []string{"Num_Acc"})
	_, err := Join(left, right, "Num_Acc", InnerJoin)
	assert.Error(t, err)
	_, err = Join(right, left, "Num_Acc", InnerJoin)
	assert.Error(t, err)
}

func TestJoinAllNeverAddsIDs(t *testing.T) {
	chars := table(t, []string{"Num_Acc", "lum"},
		[]string{"1", "1"}, []string{"2", "2"}, []string{"3", "1"})
	sev := table(t, []string{"Num_Acc", "grav"},
		[]string{"1", "3"}, []string{"2", "1"}, []string{"7", "2"})
	occ := table(t, []string{"Num_Acc", "nb_usagers"},
		[]string{"1", "2"}, []string{"8", "1"})
	veh := table(t, []string{"Num_Acc", "nb_vehicules"}, []string{"2", "1"})
	loc := table(t, []string{"Num_Acc", "vma"}, []string{"1", "50"}, []string{"9", "90"})

	out, err := JoinAll(Tables{Characteristics: chars, Severity: sev, Occupants: occ, Vehicles: veh, Locations: loc})
	require.NoError(t, err)

	assert.Equal(t, []string{"Num_Acc", "lum", "grav", "nb_usagers", "nb_vehicules", "vma"}, out.Columns())
	ids, _ := out.Column("Num_Acc")
	assert.Equal(t, []string{"1", "2"}, ids, "ids come from characteristics and the severity table only")
	for i := 0; i < out.Len(); i++ {
		assert.NotEmpty(t, out.Value(i, "grav"))
	}
	assert.Equal(t, "", out.Value(1, "nb_usagers"))
	assert.Equal(t, "1", out.Value(1, "nb_vehicules"))
	assert.Equal(t, "50", out.Value(0, "vma"))
}
