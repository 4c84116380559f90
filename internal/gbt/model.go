// Package gbt implements a gradient-boosted decision tree classifier for
// binary targets with logistic loss. Trees are stored as flat node slices so
// a fitted model serialises to plain JSON.
package gbt

import (
	"errors"
	"fmt"
	"math"
)

// Params are the boosting hyperparameters.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	ScalePosWeight  float64 `json:"scale_pos_weight"`
	Lambda          float64 `json:"lambda"`
	MinChildWeight  float64 `json:"min_child_weight"`
	MaxBins         int     `json:"max_bins"`
	Seed            int64   `json:"seed"`
}

func DefaultParams() Params {
	return Params{
		NEstimators:     200,
		MaxDepth:        5,
		LearningRate:    0.1,
		Subsample:       1.0,
		ColsampleByTree: 1.0,
		ScalePosWeight:  1.0,
		Lambda:          1.0,
		MinChildWeight:  1.0,
		MaxBins:         256,
		Seed:            42,
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators <= 0:
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.MaxDepth <= 0:
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %f", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %f", p.ColsampleByTree)
	case p.ScalePosWeight <= 0:
		return fmt.Errorf("scale_pos_weight must be positive, got %f", p.ScalePosWeight)
	case p.Lambda < 0:
		return fmt.Errorf("lambda must be non-negative, got %f", p.Lambda)
	case p.MaxBins < 2 || p.MaxBins > math.MaxUint16:
		return fmt.Errorf("max_bins must be in [2, %d], got %d", math.MaxUint16, p.MaxBins)
	}
	return nil
}

// Node is a split or a leaf. Samples with x[Feature] < Threshold, or a NaN
// value, go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
	Gain      float64 `json:"gain,omitempty"`
	Cover     float64 `json:"cover"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		if math.IsNaN(v) || v < n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Model is a fitted ensemble.
type Model struct {
	Params      Params  `json:"params"`
	NumFeatures int     `json:"num_features"`
	BaseMargin  float64 `json:"base_margin"`
	Trees       []Tree  `json:"trees"`
}

var ErrFeatureCount = errors.New("feature count mismatch")

// Margin returns the raw log-odds score for one sample.
func (m *Model) Margin(x []float64) (float64, error) {
	if len(x) != m.NumFeatures {
		return 0, fmt.Errorf("%w: model expects %d, got %d", ErrFeatureCount, m.NumFeatures, len(x))
	}
	margin := m.BaseMargin
	for _, t := range m.Trees {
		margin += t.predict(x)
	}
	return margin, nil
}

// PredictProba returns the probability of the positive class.
func (m *Model) PredictProba(x []float64) (float64, error) {
	margin, err := m.Margin(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(margin), nil
}

// PredictProbaBatch scores every row of X.
func (m *Model) PredictProbaBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		p, err := m.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// FeatureImportance returns the total split gain per feature, normalised to
// sum to 1. A model without splits returns all zeros.
func (m *Model) FeatureImportance() []float64 {
	imp := make([]float64, m.NumFeatures)
	var total float64
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf && n.Feature >= 0 && n.Feature < m.NumFeatures {
				imp[n.Feature] += n.Gain
				total += n.Gain
			}
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

// Validate checks the structure of a deserialised model.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return fmt.Errorf("model has no features")
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			// children always come after their parent, which rules out cycles
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children", ti, ni)
			}
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
