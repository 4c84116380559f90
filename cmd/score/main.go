package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/client"
	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

func main() {
	var (
		input    = flag.String("input", "", "CSV of feature rows to score")
		output   = flag.String("output", "", "Where to write the scored rows")
		url      = flag.String("url", "", "Prediction service base URL (overrides config)")
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
	if *url != "" {
		config.ServiceURL = *url
	}

	if *input == "" || *output == "" {
		log.Fatal().Msg("Both -input and -output are required")
	}
	if _, err := os.Stat(*input); err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("Input file not found")
	}

	sep := config.SeparatorRune()
	table, err := dataset.ReadCSV(*input, sep)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewREST(config.ServiceURL, config.ClientTimeout)
	healthy, err := c.Healthy(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("url", config.ServiceURL).Msg("Prediction service unreachable")
	}
	if !healthy {
		log.Fatal().Str("url", config.ServiceURL).Msg("Prediction service has no model loaded")
	}

	scored, stats, err := client.ScoreTable(ctx, c, table)
	if err != nil {
		log.Fatal().Err(err).Msg("Scoring failed")
	}
	if err := dataset.WriteCSV(*output, scored, sep); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	log.Info().
		Str("output", *output).
		Int("scored", stats.Scored).
		Int("rejected", stats.Rejected).
		Msg("Scoring completed")
}
