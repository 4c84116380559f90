package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accident-severity/internal/dataset"
)

func occupantTable(t *testing.T, rows ...[]string) *dataset.Table {
	t.Helper()
	tbl := dataset.New("Num_Acc", "grav", "catu", "an_nais")
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r))
	}
	return tbl
}

func TestSeverityByAccident(t *testing.T) {
	occ := occupantTable(t,
		[]string{"1", "3", "1", "1990"},
		[]string{"1", "4", "2", "2000"},
		[]string{"2", "(1)", "1", "1980"},
		[]string{"2", "4", "1", "1970"},
		[]string{"3", "abc", "1", "1970"},
		[]string{" 1 ", "2", "3", ""},
	)

	sev, stats, err := SeverityByAccident(occ)
	require.NoError(t, err)

	require.Equal(t, 2, sev.Len())
	assert.Equal(t, "1", sev.Value(0, "Num_Acc"))
	assert.Equal(t, "2", sev.Value(0, "grav"), "minimum over all occupants including the padded id")
	assert.Equal(t, "2", sev.Value(1, "Num_Acc"))
	assert.Equal(t, "1", sev.Value(1, "grav"), "garbled values are coerced")

	assert.Equal(t, 2, stats.Accidents)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.InvalidSeverity)
}

func TestAggregateOccupants(t *testing.T) {
	occ := occupantTable(t,
		[]string{"1", "3", "1", "1990"},
		[]string{"1", "4", "3", "2000"},
		[]string{"2", "1", "1", ""},
		[]string{"3", "1", "x", "1984"},
	)

	agg, err := AggregateOccupants(occ, 2024)
	require.NoError(t, err)
	require.Equal(t, 3, agg.Len())

	assert.Equal(t, "2", agg.Value(0, "nb_usagers"))
	assert.Equal(t, "29", agg.Value(0, "age_moyen"))
	assert.Equal(t, "1", agg.Value(0, "presence_pieton"))

	assert.Equal(t, "1", agg.Value(1, "nb_usagers"))
	assert.Equal(t, "", agg.Value(1, "age_moyen"), "all birth years missing gives a missing mean age")
	assert.Equal(t, "0", agg.Value(1, "presence_pieton"))

	assert.Equal(t, "40", agg.Value(2, "age_moyen"))
	assert.Equal(t, "0", agg.Value(2, "presence_pieton"), "non-numeric category never matches")
}

func TestAggregateOccupantsMissingColumn(t *testing.T) {
	tbl := dataset.New("Num_Acc", "grav")
	_, err := AggregateOccupants(tbl, 2024)
	assert.ErrorContains(t, err, "catu")

	_, _, err = SeverityByAccident(dataset.New("Num_Acc"))
	assert.ErrorContains(t, err, "grav")
}

func TestAggregateVehicles(t *testing.T) {
	veh := dataset.New("Num_Acc", "id_vehicule", "num_veh")
	for _, r := range [][]string{
		{"1", "100", "A01"},
		{"1", "100", "A01"},
		{"1", "101", "B01"},
		{"2", "", "A01"},
		{"", "102", "A01"},
	} {
		require.NoError(t, veh.AppendRow(r))
	}

	agg, err := AggregateVehicles(veh)
	require.NoError(t, err)
	require.Equal(t, 2, agg.Len())
	assert.Equal(t, "3", agg.Value(0, "nb_vehicules"), "duplicate vehicle ids are counted")
	assert.Equal(t, "0", agg.Value(1, "nb_vehicules"))

	_, err = AggregateVehicles(dataset.New("Num_Acc"))
	assert.Error(t, err)
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "12", NormalizeID(" 12 "))
	assert.Equal(t, "", NormalizeID("NaN"))
}
