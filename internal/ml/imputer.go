package ml

import (
	"fmt"
	"math"

	"accident-severity/internal/dataset"
)

// MedianImputer replaces missing values with per-feature training medians.
// It is fitted once at training time and only applied afterwards.
type MedianImputer struct {
	Features []string  `json:"features"`
	Medians  []float64 `json:"medians"`
}

// FitMedianImputer learns the median of each column of X. A column without
// any value imputes 0.
func FitMedianImputer(features []string, X [][]float64) (*MedianImputer, error) {
	imp := &MedianImputer{
		Features: append([]string(nil), features...),
		Medians:  make([]float64, len(features)),
	}
	col := make([]float64, len(X))
	for j := range features {
		for i, row := range X {
			if len(row) != len(features) {
				return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(features))
			}
			col[i] = row[j]
		}
		m := dataset.Median(col)
		if math.IsNaN(m) {
			m = 0
		}
		imp.Medians[j] = m
	}
	return imp, nil
}

// Transform returns a copy of x with NaN values replaced.
func (m *MedianImputer) Transform(x []float64) ([]float64, error) {
	if len(x) != len(m.Medians) {
		return nil, fmt.Errorf("imputer expects %d values, got %d", len(m.Medians), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		if math.IsNaN(v) {
			v = m.Medians[j]
		}
		out[j] = v
	}
	return out, nil
}

func (m *MedianImputer) TransformRows(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, x := range X {
		row, err := m.Transform(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}
