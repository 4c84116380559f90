package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// ErrModelUnavailable is returned when no bundle has been loaded.
var ErrModelUnavailable = errors.New(common.ErrMsgModelUnavailable)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLValidationErrorsInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
	MLModelLoadedSet(bool)
	MLTrainingDurationObserve(float64)
}

// ValidationError reports a request that does not carry every required
// feature as a number.
type ValidationError struct {
	Required []string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s); required features: %s",
		common.ErrMsgMissingFeature, strings.Join(e.Problems, ", "), strings.Join(e.Required, ", "))
}

// Prediction is the scored result of one request.
type Prediction struct {
	Probability         float64  `json:"probability"`
	PredictionDefault   int      `json:"prediction_default"`
	PredictionThreshold int      `json:"prediction_threshold"`
	Threshold           float64  `json:"threshold"`
	UsedFeatures        []string `json:"used_features"`
	ModelVersion        string   `json:"model_version"`
}

// Predictor serves predictions from one bundle. The bundle is replaced as a
// whole by Swap and never mutated.
type Predictor struct {
	mu       sync.RWMutex
	bundle   *Bundle
	loadedAt time.Time
	metrics  MetricsInterface
}

func NewPredictor(b *Bundle) *Predictor {
	return NewWithMetrics(b, nil)
}

func NewWithMetrics(b *Bundle, metrics MetricsInterface) *Predictor {
	p := &Predictor{metrics: metrics}
	p.Swap(b)
	return p
}

// Swap installs b (which may be nil) and returns the previous bundle.
func (p *Predictor) Swap(b *Bundle) *Bundle {
	p.mu.Lock()
	prev := p.bundle
	p.bundle = b
	p.loadedAt = time.Now()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.MLModelLoadedSet(b != nil)
		if b != nil && !b.TrainedAt.IsZero() {
			p.metrics.MLModelAgeSet(time.Since(b.TrainedAt).Seconds())
		}
	}
	if b != nil {
		log.Info().Str("version", b.Version).Strs("features", b.Features).Float64("threshold", b.Threshold).Msg("Model bundle installed")
	}
	return prev
}

// Current returns the installed bundle, or nil.
func (p *Predictor) Current() *Bundle {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bundle
}

func (p *Predictor) Available() bool {
	return p.Current() != nil
}

func (p *Predictor) LoadedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}

// Predict validates input against the bundle features and scores it.
func (p *Predictor) Predict(input map[string]any) (*Prediction, error) {
	start := time.Now()
	defer func() {
		if p != nil && p.metrics != nil {
			p.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	b := p.Current()
	if b == nil {
		p.fail()
		return nil, ErrModelUnavailable
	}

	x, err := ExtractFeatures(input, b.Features)
	if err != nil {
		if p.metrics != nil {
			p.metrics.MLValidationErrorsInc()
		}
		return nil, err
	}

	prob, err := b.Score(x)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.MLPredictionsInc()
		p.metrics.MLPredictionScoresObserve(prob)
	}
	return &Prediction{
		Probability:         prob,
		PredictionDefault:   decide(prob, common.DefaultDecisionThreshold),
		PredictionThreshold: decide(prob, b.Threshold),
		Threshold:           b.Threshold,
		UsedFeatures:        append([]string(nil), b.Features...),
		ModelVersion:        b.Version,
	}, nil
}

func (p *Predictor) fail() {
	if p != nil && p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
}

func decide(prob, threshold float64) int {
	if prob >= threshold {
		return 1
	}
	return 0
}

// ExtractFeatures orders input by features. Every feature must be present
// as a finite number or a numeric string.
func ExtractFeatures(input map[string]any, features []string) ([]float64, error) {
	x := make([]float64, len(features))
	var problems []string
	for j, name := range features {
		raw, ok := input[name]
		if !ok || raw == nil {
			problems = append(problems, name+" is missing")
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s is not numeric", name))
			continue
		}
		x[j] = v
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Required: append([]string(nil), features...), Problems: problems}
	}
	return x, nil
}

func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, ok := dataset.ParseFloat(strings.TrimSpace(n))
		if !ok {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
