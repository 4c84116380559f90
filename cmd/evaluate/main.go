package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/evaluate"
	"accident-severity/internal/ml"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Labelled dataset to score (overrides config)")
		modelPath   = flag.String("model", "", "Bundle to evaluate (overrides config)")
		outputPath  = flag.String("output", "reports", "Output directory for results")
		testRatio   = flag.Float64("test-ratio", 0, "Evaluate only the holdout part of a seeded split, 0 scores every row")
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

	bundle, err := ml.LoadBundle(config.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model", config.ModelPath).Msg("Failed to load bundle")
	}
	if _, err := os.Stat(config.DatasetPath); err != nil {
		log.Fatal().Err(err).Str("dataset", config.DatasetPath).Msg("Dataset not found")
	}
	table, err := dataset.ReadCSV(config.DatasetPath, config.SeparatorRune())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read dataset")
	}
	if *testRatio > 0 {
		_, table, err = evaluate.Split(table, *testRatio, config.Seed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to split dataset")
		}
	}

	eval, err := evaluate.Evaluate(bundle, table)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	reporter := evaluate.NewReporter(eval, bundle, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().
		Str("output", *outputPath).
		Str("version", bundle.Version).
		Msg("Evaluation completed successfully")
}
