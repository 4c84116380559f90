package main

import (
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/ml"
	"accident-severity/internal/storage"
)

func main() {
	var (
		storePath = flag.String("store", "", "Store directory (overrides config)")
		limit     = flag.Int("limit", 10, "Records to show per section")
	)
	flag.Parse()
	common.ConfigureLogger("warn", true)

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *storePath != "" {
		config.StorePath = *storePath
	}

	if config.ModelsDir != "" {
		inspectRegistry(config.ModelsDir)
	}

	if config.StorePath == "" {
		fmt.Println("\nNo store configured, set STORE_PATH or -store")
		return
	}
	store, err := storage.New(config.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	fmt.Printf("\nInspecting store in: %s\n", config.StorePath)

	fmt.Println("\nPreparation runs:")
	runs, err := store.ListRuns(*limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}
	for _, r := range runs {
		fmt.Printf("  %s  %s  rows=%d  positive_rate=%.3f  duration=%v\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.Rows["cleaned"], r.PositiveRate, r.Duration)
	}

	fmt.Println("\nTrainings:")
	trainings, err := store.ListTrainings(*limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list trainings")
	}
	for _, tr := range trainings {
		fmt.Printf("  %s  strategy=%s  features=%v  auc=%.3f  f1=%.3f\n",
			tr.Version, tr.Strategy, tr.Features, tr.Metrics.AUCScore, tr.Metrics.F1Score)
	}

	fmt.Println("\nRecent predictions:")
	preds, err := store.RecentPredictions(*limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list predictions")
	}
	for _, p := range preds {
		fmt.Printf("  %s  model=%s  prob=%.3f  default=%d  threshold=%d\n",
			p.Timestamp.Format("2006-01-02 15:04:05"), p.ModelVersion, p.Probability, p.PredictionDefault, p.PredictionThreshold)
	}
}

func inspectRegistry(dir string) {
	mm, err := ml.NewModelManager(dir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open model registry")
		return
	}
	fmt.Printf("Model registry in: %s\n", dir)
	versions := mm.ListVersions()
	if len(versions) == 0 {
		fmt.Println("  no registered versions")
		return
	}
	for _, v := range versions {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Printf(" %s %s  %s  auc=%.3f  samples=%d\n", marker, v.Version, v.Path, v.Metrics.AUCScore, v.Metrics.TrainingSamples)
	}
}
