package ml

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/gbt"
)

var (
	ErrMissingTarget     = errors.New("target column grave not found")
	ErrNoNumericFeatures = errors.New("no numeric feature columns available")
	ErrNoPositiveSamples = errors.New("training data has no positive samples")
	ErrNoTrainingRows    = errors.New("training data has no labelled rows")
)

// TrainConfig controls feature selection and the classifier.
type TrainConfig struct {
	PreferredFeatures   []string
	TopK                int
	MinConvertibleRatio float64
	Threshold           float64
	ExcludeColumns      []string
	Params              gbt.Params
}

func DefaultTrainConfig() TrainConfig {
	p := gbt.DefaultParams()
	p.NEstimators = common.DefaultNEstimators
	p.MaxDepth = common.DefaultMaxDepth
	p.LearningRate = common.DefaultLearningRate
	p.Subsample = common.DefaultSubsample
	p.ColsampleByTree = common.DefaultColsampleByTree
	p.Seed = common.DefaultSeed

	return TrainConfig{
		PreferredFeatures:   append([]string(nil), common.DefaultPreferredFeatures...),
		TopK:                common.DefaultTopK,
		MinConvertibleRatio: common.DefaultMinConvertibleRatio,
		Threshold:           common.DefaultThreshold,
		ExcludeColumns:      []string{common.ColAccidentID},
		Params:              p,
	}
}

// TrainConfigFromSettings applies configured overrides to the defaults.
func TrainConfigFromSettings(s cfg.Settings) TrainConfig {
	c := DefaultTrainConfig()
	if len(s.PreferredFeatures) > 0 {
		c.PreferredFeatures = s.PreferredFeatures
	}
	if s.TopK > 0 {
		c.TopK = s.TopK
	}
	if s.MinConvertibleRatio > 0 {
		c.MinConvertibleRatio = s.MinConvertibleRatio
	}
	if s.Threshold > 0 {
		c.Threshold = s.Threshold
	}
	if s.Seed != 0 {
		c.Params.Seed = s.Seed
	}
	return c
}

// TrainReport summarises a training run.
type TrainReport struct {
	Rows           int           `json:"rows"`
	Positives      int           `json:"positives"`
	Negatives      int           `json:"negatives"`
	UnlabelledRows int           `json:"unlabelled_rows"`
	ClassWeight    float64       `json:"class_weight"`
	NumericColumns []string      `json:"numeric_columns"`
	CoercedColumns []string      `json:"coerced_columns,omitempty"`
	DroppedColumns []string      `json:"dropped_columns,omitempty"`
	Selection      Selection     `json:"selection"`
	Duration       time.Duration `json:"duration"`
	FeatureMedians []float64     `json:"feature_medians"`
}

// ClassWeight is the positive-class weight max(1, round(neg/pos)).
func ClassWeight(neg, pos int) (float64, error) {
	if pos == 0 {
		return 0, ErrNoPositiveSamples
	}
	return math.Max(1, math.Round(float64(neg)/float64(pos))), nil
}

// Train selects features, fits the imputer and the classifier on t and
// returns a bundle ready to be saved or served. grav is never a feature;
// grave is the target.
func Train(t *dataset.Table, c TrainConfig) (*Bundle, *TrainReport, error) {
	start := time.Now()
	if !t.Has(common.ColTarget) {
		return nil, nil, ErrMissingTarget
	}

	y := make([]float64, 0, t.Len())
	keep := make([]bool, t.Len())
	report := &TrainReport{}
	for i := 0; i < t.Len(); i++ {
		v, ok := dataset.Coerce(t.Value(i, common.ColTarget))
		if !ok || (v != 0 && v != 1) {
			report.UnlabelledRows++
			continue
		}
		keep[i] = true
		y = append(y, v)
		if v == 1 {
			report.Positives++
		} else {
			report.Negatives++
		}
	}
	report.Rows = len(y)
	if report.Rows == 0 {
		return nil, nil, ErrNoTrainingRows
	}

	exclude := map[string]bool{common.ColTarget: true, common.ColSeverity: true}
	for _, col := range c.ExcludeColumns {
		exclude[col] = true
	}
	var candidates []string
	for _, col := range t.Columns() {
		if !exclude[col] {
			candidates = append(candidates, col)
		}
	}

	cols := CoerceColumns(t, candidates, keep, c.MinConvertibleRatio)
	report.NumericColumns = cols.Names
	report.CoercedColumns = cols.Coerced
	report.DroppedColumns = cols.Dropped
	if len(cols.Names) == 0 {
		return nil, nil, ErrNoNumericFeatures
	}

	selection, err := SelectFeatures(cols, y, c.PreferredFeatures, c.TopK)
	if err != nil {
		return nil, nil, err
	}
	report.Selection = selection

	X := make([][]float64, len(y))
	for i := range X {
		row := make([]float64, len(selection.Features))
		for j, name := range selection.Features {
			row[j] = cols.Values[name][i]
		}
		X[i] = row
	}

	imputer, err := FitMedianImputer(selection.Features, X)
	if err != nil {
		return nil, nil, err
	}
	report.FeatureMedians = imputer.Medians
	filled, err := imputer.TransformRows(X)
	if err != nil {
		return nil, nil, err
	}

	weight, err := ClassWeight(report.Negatives, report.Positives)
	if err != nil {
		return nil, nil, err
	}
	report.ClassWeight = weight

	params := c.Params
	params.ScalePosWeight = weight
	model, err := gbt.Fit(filled, y, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit classifier: %w", err)
	}

	trainedAt := time.Now().UTC()
	bundle := &Bundle{
		Version:      newVersion(trainedAt),
		TrainedAt:    trainedAt,
		Features:     selection.Features,
		Threshold:    c.Threshold,
		Selection:    selection,
		Imputer:      imputer,
		Model:        model,
		TrainingRows: len(y),
		ClassWeight:  weight,
	}
	if err := bundle.Validate(); err != nil {
		return nil, nil, err
	}
	report.Duration = time.Since(start)

	log.Info().
		Int("rows", report.Rows).
		Int("positives", report.Positives).
		Float64("class_weight", weight).
		Str("strategy", string(selection.Strategy)).
		Strs("features", selection.Features).
		Dur("duration", report.Duration).
		Msg("Model trained")
	return bundle, report, nil
}

// newVersion is the training time plus a random suffix, so two trainings
// in the same second never share a version.
func newVersion(trainedAt time.Time) string {
	return trainedAt.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
