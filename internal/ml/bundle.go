package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"accident-severity/internal/gbt"
)

// Bundle is everything needed to score a request: the fitted model, the
// imputer fitted on the same rows, the ordered feature list and the tuned
// decision threshold. A bundle is immutable once built.
type Bundle struct {
	Version      string         `json:"version"`
	TrainedAt    time.Time      `json:"trained_at"`
	Features     []string       `json:"features"`
	Threshold    float64        `json:"threshold"`
	Selection    Selection      `json:"selection"`
	Imputer      *MedianImputer `json:"imputer"`
	Model        *gbt.Model     `json:"model"`
	TrainingRows int            `json:"training_rows"`
	ClassWeight  float64        `json:"class_weight"`
}

// Validate checks that the parts of a bundle agree with each other.
func (b *Bundle) Validate() error {
	if len(b.Features) == 0 {
		return fmt.Errorf("bundle has no features")
	}
	if b.Threshold <= 0 || b.Threshold >= 1 {
		return fmt.Errorf("bundle threshold must be in (0, 1), got %f", b.Threshold)
	}
	if b.Imputer == nil || len(b.Imputer.Medians) != len(b.Features) {
		return fmt.Errorf("bundle imputer does not match %d features", len(b.Features))
	}
	if b.Model == nil {
		return fmt.Errorf("bundle has no model")
	}
	if b.Model.NumFeatures != len(b.Features) {
		return fmt.Errorf("bundle model expects %d features, feature list has %d", b.Model.NumFeatures, len(b.Features))
	}
	return b.Model.Validate()
}

// Score imputes x (ordered as Features, NaN for missing) and returns the
// positive-class probability.
func (b *Bundle) Score(x []float64) (float64, error) {
	filled, err := b.Imputer.Transform(x)
	if err != nil {
		return 0, err
	}
	return b.Model.PredictProba(filled)
}

// ScoreRows scores every row of X.
func (b *Bundle) ScoreRows(X [][]float64) ([]float64, error) {
	filled, err := b.Imputer.TransformRows(X)
	if err != nil {
		return nil, err
	}
	return b.Model.PredictProbaBatch(filled)
}

// SaveBundle writes b as JSON through a temporary file.
func SaveBundle(path string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid bundle: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}
	return nil
}

// LoadBundle reads and validates a bundle written by SaveBundle.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	b, err := DecodeBundle(data)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return b, nil
}

// DecodeBundle parses and validates a JSON bundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}
	return &b, nil
}
