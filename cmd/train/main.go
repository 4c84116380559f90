package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/evaluate"
	"accident-severity/internal/ml"
	"accident-severity/internal/storage"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Prepared dataset (overrides config)")
		modelPath   = flag.String("model", "", "Output bundle path (overrides config)")
		evalRatio   = flag.Float64("eval-ratio", 0, "Hold out this share of rows for evaluation, 0 trains on everything")
		reportDir   = flag.String("report-dir", "reports", "Directory for evaluation reports")
		register    = flag.Bool("register", true, "Register the bundle in the models directory")
		activate    = flag.Bool("activate", true, "Activate the registered version")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	common.ConfigureLogger(config.LogLevel, true)

	if *datasetPath != "" {
		config.DatasetPath = *datasetPath
	}
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}

	if _, err := os.Stat(config.DatasetPath); err != nil {
		log.Fatal().Err(err).Str("dataset", config.DatasetPath).Msg("Prepared dataset not found, run prepare first")
	}
	table, err := dataset.ReadCSV(config.DatasetPath, config.SeparatorRune())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read dataset")
	}

	trainTable, testTable := table, (*dataset.Table)(nil)
	if *evalRatio > 0 {
		trainTable, testTable, err = evaluate.Split(table, *evalRatio, config.Seed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to split dataset")
		}
		log.Info().Int("train", trainTable.Len()).Int("test", testTable.Len()).Msg("Holdout split")
	}

	bundle, report, err := ml.Train(trainTable, ml.TrainConfigFromSettings(config))
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	if err := ml.SaveBundle(config.ModelPath, bundle); err != nil {
		log.Fatal().Err(err).Msg("Failed to save bundle")
	}
	log.Info().Str("path", config.ModelPath).Str("version", bundle.Version).Msg("Bundle saved")

	var modelMetrics ml.ModelMetrics
	modelMetrics.TrainingSamples = report.Rows
	modelMetrics.Strategy = string(bundle.Selection.Strategy)
	if testTable != nil {
		eval, err := evaluate.Evaluate(bundle, testTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Evaluation failed")
		}
		reporter := evaluate.NewReporter(eval, bundle, *reportDir)
		if err := reporter.GenerateReport(); err != nil {
			log.Error().Err(err).Msg("Failed to generate reports")
		}
		reporter.PrintSummary()
		modelMetrics = eval.ModelMetrics(report.Rows, bundle.Selection.Strategy)
	}

	if *register && config.ModelsDir != "" {
		registerBundle(config, bundle, modelMetrics, *activate)
	}

	if config.StorePath != "" {
		store, err := storage.New(config.StorePath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, training not recorded")
		} else {
			defer store.Close()
			rec := storage.TrainingRecord{
				Version:    bundle.Version,
				TrainedAt:  bundle.TrainedAt,
				Dataset:    config.DatasetPath,
				BundlePath: config.ModelPath,
				Features:   bundle.Features,
				Strategy:   string(bundle.Selection.Strategy),
				Report:     report,
				Metrics:    modelMetrics,
			}
			if err := store.SaveTraining(rec); err != nil {
				log.Warn().Err(err).Msg("Failed to record training")
			}
		}
	}

	log.Info().
		Str("version", bundle.Version).
		Strs("features", bundle.Features).
		Float64("threshold", bundle.Threshold).
		Float64("class_weight", bundle.ClassWeight).
		Dur("duration", report.Duration).
		Msg("Training completed")
}

// registerBundle keeps a versioned copy in the models directory so older
// bundles stay available for rollback.
func registerBundle(config cfg.Settings, bundle *ml.Bundle, metrics ml.ModelMetrics, activate bool) {
	mm, err := ml.NewModelManager(config.ModelsDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open model registry")
		return
	}
	if mm.HasVersion(bundle.Version) {
		log.Error().Str("version", bundle.Version).Msg("Version already registered, bundle not copied")
		return
	}
	path := filepath.Join(config.ModelsDir, "bundle-"+bundle.Version+".json")
	if err := ml.SaveBundle(path, bundle); err != nil {
		log.Error().Err(err).Msg("Failed to save versioned bundle")
		return
	}
	if _, err := mm.AddVersion(bundle.Version, path, metrics); err != nil {
		log.Error().Err(err).Msg("Failed to register model version")
		return
	}
	if activate {
		if err := mm.ActivateVersion(bundle.Version); err != nil {
			log.Error().Err(err).Msg("Failed to activate model version")
		}
	}
}
