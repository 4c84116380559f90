// Package evaluate measures a model bundle on held-out rows of the
// prepared dataset and writes evaluation reports.
package evaluate

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/ml"
)

var ErrNoLabelledRows = errors.New("no labelled rows to evaluate")

// Confusion is a binary confusion matrix at one cut-off.
type Confusion struct {
	Cutoff         float64 `json:"cutoff"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Evaluation is the outcome of scoring a bundle on labelled rows.
type Evaluation struct {
	ModelVersion string    `json:"model_version"`
	Rows         int       `json:"rows"`
	Positives    int       `json:"positives"`
	Skipped      int       `json:"skipped"`
	Default      Confusion `json:"default"`
	AtThreshold  Confusion `json:"at_threshold"`
	AUC          float64   `json:"auc"`
	AUCDefined   bool      `json:"auc_defined"`

	Labels        []float64 `json:"-"`
	Probabilities []float64 `json:"-"`
}

// Evaluate scores every labelled row of t with b. Feature cells are parsed
// leniently; unparseable cells go through the bundle imputer.
func Evaluate(b *ml.Bundle, t *dataset.Table) (*Evaluation, error) {
	labels, err := Labels(t)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{ModelVersion: b.Version}
	var X [][]float64
	for i, y := range labels {
		if math.IsNaN(y) {
			ev.Skipped++
			continue
		}
		x := make([]float64, len(b.Features))
		for j, name := range b.Features {
			v, ok := dataset.Coerce(t.Value(i, name))
			if !ok {
				v = math.NaN()
			}
			x[j] = v
		}
		X = append(X, x)
		ev.Labels = append(ev.Labels, y)
		if y == 1 {
			ev.Positives++
		}
	}
	ev.Rows = len(X)
	if ev.Rows == 0 {
		return nil, ErrNoLabelledRows
	}

	probs, err := b.ScoreRows(X)
	if err != nil {
		return nil, err
	}
	ev.Probabilities = probs
	ev.Default = NewConfusion(ev.Labels, probs, common.DefaultDecisionThreshold)
	ev.AtThreshold = NewConfusion(ev.Labels, probs, b.Threshold)
	ev.AUC, ev.AUCDefined = ROCAUC(ev.Labels, probs)
	return ev, nil
}

// NewConfusion counts decisions prob >= cutoff against labels.
func NewConfusion(labels, probs []float64, cutoff float64) Confusion {
	c := Confusion{Cutoff: cutoff}
	for i, y := range labels {
		predicted := probs[i] >= cutoff
		switch {
		case predicted && y == 1:
			c.TruePositives++
		case predicted:
			c.FalsePositives++
		case y == 1:
			c.FalseNegatives++
		default:
			c.TrueNegatives++
		}
	}
	total := c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
	c.Accuracy = ratio(c.TruePositives+c.TrueNegatives, total)
	c.Precision = ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
	c.Recall = ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
	return c
}

// ROCAUC is the area under the ROC curve. It is undefined (0, false) when
// only one class is present.
func ROCAUC(labels, probs []float64) (float64, bool) {
	y := append([]float64(nil), probs...)
	classes := make([]bool, len(labels))
	pos := 0
	for i, l := range labels {
		classes[i] = l == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(classes) {
		return 0, false
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), true
}

// ModelMetrics converts the evaluation for the model registry.
func (e *Evaluation) ModelMetrics(trainingRows int, strategy ml.StrategyKind) ml.ModelMetrics {
	return ml.ModelMetrics{
		Accuracy:        e.AtThreshold.Accuracy,
		AUCScore:        e.AUC,
		F1Score:         e.AtThreshold.F1,
		Precision:       e.AtThreshold.Precision,
		Recall:          e.AtThreshold.Recall,
		PositiveRate:    ratio(e.Positives, e.Rows),
		TrainingSamples: trainingRows,
		Strategy:        string(strategy),
	}
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
