package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accident-severity/internal/cfg"
	"accident-severity/internal/dataset"
)

func TestTrainFixedList(t *testing.T) {
	tbl := trainingTable(t, 300, 1)

	bundle, report, err := Train(tbl, quickConfig())
	require.NoError(t, err)

	// preferred order, restricted to what the table has
	assert.Equal(t, StrategyFixedList, bundle.Selection.Strategy)
	assert.Equal(t, []string{"agg", "col", "nb_usagers", "nb_vehicules", "vma"}, bundle.Features)
	assert.NotContains(t, bundle.Features, "grav")
	assert.NotContains(t, bundle.Features, "Num_Acc")
	assert.Equal(t, 0.67, bundle.Threshold)
	assert.Equal(t, 300, report.Rows)
	assert.Contains(t, report.DroppedColumns, "adr")

	wantWeight, err := ClassWeight(report.Negatives, report.Positives)
	require.NoError(t, err)
	assert.Equal(t, wantWeight, bundle.ClassWeight)
	assert.Equal(t, wantWeight, bundle.Model.Params.ScalePosWeight)

	severe, err := bundle.Score([]float64{1, 1, 1, 1, 110})
	require.NoError(t, err)
	mild, err := bundle.Score([]float64{1, 1, 1, 3, 30})
	require.NoError(t, err)
	assert.Greater(t, severe, mild)
}

func TestTrainTopKFallback(t *testing.T) {
	tbl := trainingTable(t, 200, 2)
	c := quickConfig()
	c.PreferredFeatures = []string{"does_not_exist"}
	c.TopK = 3

	bundle, _, err := Train(tbl, c)
	require.NoError(t, err)
	assert.Equal(t, StrategyTopKANOVA, bundle.Selection.Strategy)
	assert.Equal(t, 3, bundle.Selection.K)
	require.Len(t, bundle.Features, 3)
	assert.Contains(t, bundle.Features, "nb_vehicules")
	assert.Contains(t, bundle.Features, "vma")

	// column order is preserved
	pos := map[string]int{}
	for i, c := range tbl.Columns() {
		pos[c] = i
	}
	for i := 1; i < len(bundle.Features); i++ {
		assert.Less(t, pos[bundle.Features[i-1]], pos[bundle.Features[i]])
	}
}

func TestTrainDeterministic(t *testing.T) {
	tbl := trainingTable(t, 150, 3)
	c := quickConfig()
	c.Params.Subsample = 0.8

	a, _, err := Train(tbl, c)
	require.NoError(t, err)
	b, _, err := Train(tbl, c)
	require.NoError(t, err)

	x := []float64{2, 3, 2, 1, 80}
	pa, err := a.Score(x)
	require.NoError(t, err)
	pb, err := b.Score(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.NotEqual(t, a.Version, b.Version, "trainings in the same second get distinct versions")
}

func TestTrainErrors(t *testing.T) {
	t.Run("missing target", func(t *testing.T) {
		tbl := dataset.New("a", "b")
		require.NoError(t, tbl.AppendRow([]string{"1", "2"}))
		_, _, err := Train(tbl, quickConfig())
		assert.ErrorIs(t, err, ErrMissingTarget)
	})

	t.Run("no numeric features", func(t *testing.T) {
		tbl := dataset.New("name", "grave")
		require.NoError(t, tbl.AppendRow([]string{"x", "1"}))
		require.NoError(t, tbl.AppendRow([]string{"y", "0"}))
		_, _, err := Train(tbl, quickConfig())
		assert.ErrorIs(t, err, ErrNoNumericFeatures)
	})

	t.Run("no positives", func(t *testing.T) {
		tbl := dataset.New("vma", "grave")
		require.NoError(t, tbl.AppendRow([]string{"50", "0"}))
		require.NoError(t, tbl.AppendRow([]string{"80", "0"}))
		_, _, err := Train(tbl, quickConfig())
		assert.True(t, errors.Is(err, ErrNoPositiveSamples))
	})

	t.Run("no labelled rows", func(t *testing.T) {
		tbl := dataset.New("vma", "grave")
		require.NoError(t, tbl.AppendRow([]string{"50", "missing"}))
		_, _, err := Train(tbl, quickConfig())
		assert.ErrorIs(t, err, ErrNoTrainingRows)
	})
}

func TestClassWeight(t *testing.T) {
	w, err := ClassWeight(90, 10)
	require.NoError(t, err)
	assert.Equal(t, 9.0, w)

	w, err = ClassWeight(10, 40)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w, "never below one")

	_, err = ClassWeight(5, 0)
	assert.ErrorIs(t, err, ErrNoPositiveSamples)
}

func TestTrainConfigFromSettings(t *testing.T) {
	c := TrainConfigFromSettings(cfg.Settings{
		PreferredFeatures:   []string{"vma"},
		TopK:                4,
		MinConvertibleRatio: 0.5,
		Threshold:           0.4,
		Seed:                7,
	})
	assert.Equal(t, []string{"vma"}, c.PreferredFeatures)
	assert.Equal(t, 4, c.TopK)
	assert.Equal(t, 0.5, c.MinConvertibleRatio)
	assert.Equal(t, 0.4, c.Threshold)
	assert.Equal(t, int64(7), c.Params.Seed)
	assert.Equal(t, 200, c.Params.NEstimators)
	assert.Equal(t, 5, c.Params.MaxDepth)
}

func TestBundleRoundTrip(t *testing.T) {
	tbl := trainingTable(t, 200, 4)
	bundle, _, err := Train(tbl, quickConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "bundle.json")
	require.NoError(t, SaveBundle(path, bundle))

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, bundle.Features, loaded.Features)
	assert.Equal(t, bundle.Threshold, loaded.Threshold)
	assert.Equal(t, bundle.Selection.Strategy, loaded.Selection.Strategy)

	inputs := [][]float64{
		{1, 1, 1, 1, 110},
		{2, 6, 4, 3, 30},
		{1, math.NaN(), 2, 1, 80},
	}
	for _, x := range inputs {
		want, err := bundle.Score(x)
		require.NoError(t, err)
		got, err := loaded.Score(x)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12)
	}
}

func TestLoadBundleInvalid(t *testing.T) {
	b := constantBundle([]string{"vma"}, 0.5, 0.67)
	b.Imputer.Medians = nil
	err := SaveBundle(filepath.Join(t.TempDir(), "b.json"), b)
	assert.Error(t, err)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
