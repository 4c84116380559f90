package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/metrics"
	"accident-severity/internal/pipeline"
	"accident-severity/internal/storage"
)

func main() {
	var (
		dataDir  = flag.String("data-dir", "", "Directory holding the four raw tables (overrides config)")
		output   = flag.String("output", "", "Path of the prepared dataset (overrides config)")
		mode     = flag.String("mode", "", "Clean mode: strict or numeric (overrides config)")
		logLevel = flag.String("log-level", "", "Log level: debug, info, warn, error")
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

	if *dataDir != "" {
		config.DataDir = *dataDir
	}
	if *output != "" {
		config.OutputPath = *output
	}
	if *mode != "" {
		config.CleanMode = cfg.CleanMode(*mode)
		if config.CleanMode != cfg.CleanStrict && config.CleanMode != cfg.CleanNumeric {
			log.Fatal().Str("mode", *mode).Msg("Unknown clean mode")
		}
	}

	chars, occ, veh, loc := config.InputPaths()
	in := pipeline.Inputs{Characteristics: chars, Occupants: occ, Vehicles: veh, Locations: loc}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mw := metrics.NewWrapper(metrics.New())
	runner := pipeline.NewRunner(pipeline.Options{
		Separator:     config.SeparatorRune(),
		ReferenceYear: config.ReferenceYear,
		Cleaner:       pipeline.NewCleaner(config),
		OutputPath:    config.OutputPath,
	}, mw)

	res, err := runner.Run(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Preparation failed")
	}

	if config.StorePath != "" {
		store, err := storage.New(config.StorePath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, run summary not recorded")
		} else {
			defer store.Close()
			if err := store.SaveRun(res.Summary); err != nil {
				log.Warn().Err(err).Msg("Failed to record run summary")
			}
		}
	}

	log.Info().
		Str("output", res.Summary.OutputPath).
		Int("rows", res.Table.Len()).
		Int("target_drops", res.Summary.TargetDrops).
		Float64("positive_rate", res.Summary.PositiveRate).
		Msg("Dataset prepared")
}
