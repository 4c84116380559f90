package ml

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/dataset"
)

// Source says where a startup bundle came from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceFile     Source = "file"
	SourceTrained  Source = "trained"
	SourceNone     Source = "none"
)

// StartupOptions configures LoadOrTrain.
type StartupOptions struct {
	ModelPath   string
	ModelsDir   string
	UseRegistry bool // serve the active version in ModelsDir ahead of ModelPath
	DatasetPath string
	Separator   rune
	Train       TrainConfig
	Metrics     MetricsInterface
}

// LoadOrTrain resolves the bundle to serve: the active registry version
// when UseRegistry is set, then the bundle file, then a model trained from
// the dataset. Every failure is logged and the next option is tried; when
// nothing works the result is (nil, SourceNone, err) and the service runs
// without a model.
func LoadOrTrain(opts StartupOptions) (*Bundle, Source, error) {
	var errs []error

	if opts.UseRegistry && opts.ModelsDir != "" {
		if mm, err := NewModelManager(opts.ModelsDir); err == nil && mm.GetCurrentVersion() != nil {
			b, v, err := mm.LoadActive()
			if err == nil {
				log.Info().Str("version", v.Version).Str("path", v.Path).Msg("Loaded active model version")
				return b, SourceRegistry, nil
			}
			log.Warn().Err(err).Str("version", v.Version).Msg("Failed to load active model version")
			errs = append(errs, err)
		}
	}

	if opts.ModelPath != "" {
		b, err := LoadBundle(opts.ModelPath)
		if err == nil {
			log.Info().Str("path", opts.ModelPath).Str("version", b.Version).Msg("Loaded model bundle")
			return b, SourceFile, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			log.Info().Str("path", opts.ModelPath).Msg("No model bundle found")
		} else {
			log.Warn().Err(err).Str("path", opts.ModelPath).Msg("Failed to load model bundle")
		}
		errs = append(errs, err)
	}

	if opts.DatasetPath != "" {
		b, err := trainFromDataset(opts)
		if err == nil {
			return b, SourceTrained, nil
		}
		log.Error().Err(err).Str("dataset", opts.DatasetPath).Msg("Failed to train model at startup")
		errs = append(errs, err)
	}

	log.Warn().Msg("No model available, prediction requests will fail until a reload succeeds")
	return nil, SourceNone, errors.Join(errs...)
}

func trainFromDataset(opts StartupOptions) (*Bundle, error) {
	if _, err := os.Stat(opts.DatasetPath); err != nil {
		return nil, err
	}
	sep := opts.Separator
	if sep == 0 {
		sep = ';'
	}
	t, err := dataset.ReadCSV(opts.DatasetPath, sep)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	b, report, err := Train(t, opts.Train)
	if err != nil {
		return nil, err
	}
	if opts.Metrics != nil {
		opts.Metrics.MLTrainingDurationObserve(time.Since(start).Seconds())
	}
	log.Info().
		Str("dataset", opts.DatasetPath).
		Int("rows", report.Rows).
		Str("version", b.Version).
		Msg("Trained model at startup")
	return b, nil
}
