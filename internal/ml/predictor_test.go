package ml

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictThresholds(t *testing.T) {
	features := []string{"agg", "vma"}
	input := map[string]any{"agg": 1.0, "vma": 50.0}

	tests := []struct {
		name          string
		prob          float64
		wantDefault   int
		wantThreshold int
	}{
		{"above both", 0.70, 1, 1},
		{"between", 0.60, 1, 0},
		{"below both", 0.30, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPredictor(constantBundle(features, tt.prob, 0.67))
			pred, err := p.Predict(input)
			require.NoError(t, err)
			assert.InDelta(t, tt.prob, pred.Probability, 1e-9)
			assert.Equal(t, tt.wantDefault, pred.PredictionDefault)
			assert.Equal(t, tt.wantThreshold, pred.PredictionThreshold)
			assert.Equal(t, 0.67, pred.Threshold)
			assert.Equal(t, features, pred.UsedFeatures)
			assert.Equal(t, "test", pred.ModelVersion)
		})
	}
}

func TestPredictValidation(t *testing.T) {
	metrics := &MockMetrics{}
	p := NewWithMetrics(constantBundle([]string{"agg", "vma"}, 0.5, 0.67), metrics)

	tests := []struct {
		name  string
		input map[string]any
	}{
		{"missing feature", map[string]any{"agg": 1.0}},
		{"null value", map[string]any{"agg": 1.0, "vma": nil}},
		{"text value", map[string]any{"agg": 1.0, "vma": "fast"}},
		{"bool value", map[string]any{"agg": true, "vma": 50.0}},
		{"nan value", map[string]any{"agg": math.NaN(), "vma": 50.0}},
		{"empty string", map[string]any{"agg": "", "vma": 50.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Predict(tt.input)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, []string{"agg", "vma"}, verr.Required)
			assert.Contains(t, err.Error(), "agg, vma")
		})
	}

	_, _, validation := metrics.counts()
	assert.Equal(t, len(tests), validation)
}

func TestPredictAcceptsNumericForms(t *testing.T) {
	p := NewPredictor(constantBundle([]string{"agg", "vma"}, 0.5, 0.67))
	for _, input := range []map[string]any{
		{"agg": 1, "vma": int64(50)},
		{"agg": "1", "vma": " 50 "},
		{"agg": json.Number("1"), "vma": json.Number("50.5")},
		{"agg": 1.0, "vma": 50.0, "extra": "ignored"},
	} {
		_, err := p.Predict(input)
		assert.NoError(t, err, "%v", input)
	}
}

func TestPredictWithoutModel(t *testing.T) {
	metrics := &MockMetrics{}
	p := NewWithMetrics(nil, metrics)
	assert.False(t, p.Available())

	_, err := p.Predict(map[string]any{"agg": 1.0})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, "model not available", err.Error())

	_, failures, _ := metrics.counts()
	assert.Equal(t, 1, failures)
	assert.False(t, metrics.modelLoaded)
}

func TestSwapIsAtomic(t *testing.T) {
	a := constantBundle([]string{"agg"}, 0.2, 0.67)
	b := constantBundle([]string{"vma", "col"}, 0.9, 0.4)
	p := NewPredictor(a)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur := p.Current()
				// features and threshold always come from the same bundle
				if len(cur.Features) == 1 {
					assert.Equal(t, 0.67, cur.Threshold)
				} else {
					assert.Equal(t, 0.4, cur.Threshold)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			p.Swap(b)
		} else {
			p.Swap(a)
		}
	}
	close(stop)
	wg.Wait()

	prev := p.Swap(nil)
	assert.NotNil(t, prev)
	assert.False(t, p.Available())
}
