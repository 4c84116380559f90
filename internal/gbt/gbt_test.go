package gbt

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticData labels a row positive when its first feature exceeds 5; the
// second feature is noise.
func syntheticData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x0 := float64(rng.Intn(10))
		X[i] = []float64{x0, rng.Float64() * 100}
		if x0 > 5 {
			y[i] = 1
		}
	}
	return X, y
}

func smallParams() Params {
	p := DefaultParams()
	p.NEstimators = 30
	p.MaxDepth = 3
	return p
}

func TestFitSeparable(t *testing.T) {
	X, y := syntheticData(400, 1)
	model, err := Fit(X, y, smallParams())
	require.NoError(t, err)
	require.NoError(t, model.Validate())
	assert.Len(t, model.Trees, 30)

	high, err := model.PredictProba([]float64{8, 50})
	require.NoError(t, err)
	low, err := model.PredictProba([]float64{2, 50})
	require.NoError(t, err)

	assert.Greater(t, high, 0.9)
	assert.Less(t, low, 0.1)

	imp := model.FeatureImportance()
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0], imp[1], "the informative feature dominates")
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
}

func TestFitDeterministic(t *testing.T) {
	X, y := syntheticData(200, 2)
	p := smallParams()
	p.Subsample = 0.8
	p.ColsampleByTree = 0.5

	a, err := Fit(X, y, p)
	require.NoError(t, err)
	b, err := Fit(X, y, p)
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestScalePosWeightRaisesScores(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := make([][]float64, 300)
	y := make([]float64, 300)
	for i := range X {
		X[i] = []float64{rng.Float64()}
		if rng.Float64() < 0.2 {
			y[i] = 1
		}
	}

	plain, err := Fit(X, y, smallParams())
	require.NoError(t, err)
	p := smallParams()
	p.ScalePosWeight = 4
	weighted, err := Fit(X, y, p)
	require.NoError(t, err)

	pp, _ := plain.PredictProba([]float64{0.5})
	pw, _ := weighted.PredictProba([]float64{0.5})
	assert.Greater(t, pw, pp)
}

func TestJSONRoundTripKeepsPredictions(t *testing.T) {
	X, y := syntheticData(150, 4)
	model, err := Fit(X, y, smallParams())
	require.NoError(t, err)

	raw, err := json.Marshal(model)
	require.NoError(t, err)
	var back Model
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NoError(t, back.Validate())

	for _, x := range X[:20] {
		a, _ := model.PredictProba(x)
		b, _ := back.PredictProba(x)
		assert.Equal(t, a, b)
	}
}

func TestPredictProbaBatch(t *testing.T) {
	X, y := syntheticData(100, 5)
	model, err := Fit(X, y, smallParams())
	require.NoError(t, err)

	probs, err := model.PredictProbaBatch(X[:3])
	require.NoError(t, err)
	require.Len(t, probs, 3)
	for _, p := range probs {
		assert.True(t, p >= 0 && p <= 1)
	}

	_, err = model.PredictProbaBatch([][]float64{{1}})
	assert.ErrorIs(t, err, ErrFeatureCount)
}

func TestNaNGoesLeft(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 0, Threshold: 5, Left: 1, Right: 2},
		{Leaf: true, Value: -1},
		{Leaf: true, Value: 1},
	}}
	assert.Equal(t, -1.0, tree.predict([]float64{math.NaN()}))
	assert.Equal(t, -1.0, tree.predict([]float64{4.9}))
	assert.Equal(t, 1.0, tree.predict([]float64{5}))
}

func TestFitErrors(t *testing.T) {
	p := smallParams()

	_, err := Fit(nil, nil, p)
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)

	_, err = Fit([][]float64{{1}, {2}}, []float64{1}, p)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1}, {2, 3}}, []float64{0, 1}, p)
	assert.ErrorIs(t, err, ErrFeatureCount)

	_, err = Fit([][]float64{{1}, {2}}, []float64{0, 2}, p)
	assert.Error(t, err)

	bad := p
	bad.LearningRate = 0
	_, err = Fit([][]float64{{1}, {2}}, []float64{0, 1}, bad)
	assert.Error(t, err)
}

func TestComputeCuts(t *testing.T) {
	assert.Nil(t, computeCuts([]float64{3, 3, math.NaN()}, 256))
	assert.Equal(t, []float64{2, 5}, computeCuts([]float64{5, 1, 2, 2}, 256))

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	cuts := computeCuts(many, 16)
	assert.LessOrEqual(t, len(cuts), 15)
	for i := 1; i < len(cuts); i++ {
		assert.Greater(t, cuts[i], cuts[i-1])
	}
}

func TestValidateRejectsBrokenModels(t *testing.T) {
	assert.Error(t, (&Model{}).Validate())
	assert.Error(t, (&Model{NumFeatures: 1}).Validate())

	m := &Model{NumFeatures: 1, Trees: []Tree{{Nodes: []Node{{Feature: 3, Left: 1, Right: 2}, {Leaf: true}, {Leaf: true}}}}}
	assert.Error(t, m.Validate())

	m.Trees[0].Nodes[0].Feature = 0
	m.Trees[0].Nodes[0].Left = 0
	assert.Error(t, m.Validate())

	m.Trees[0].Nodes[0].Left = 1
	assert.NoError(t, m.Validate())
}
