package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/common"
	"accident-severity/internal/sample"
)

func main() {
	def := sample.DefaultOptions()
	var (
		outDir    = flag.String("out", "data/sample", "Directory for the generated tables")
		accidents = flag.Int("accidents", def.Accidents, "Number of accidents to generate")
		seed      = flag.Int64("seed", def.Seed, "Random seed")
		year      = flag.Int("year", def.Year, "Accident year")
		missing   = flag.Float64("missing-rate", def.MissingRate, "Share of optional cells left empty")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()
	common.ConfigureLogger(*logLevel, true)

	_, stats, err := sample.Generate(*outDir, sample.Options{
		Accidents:   *accidents,
		Seed:        *seed,
		Year:        *year,
		MissingRate: *missing,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate data")
	}

	log.Info().
		Str("dir", *outDir).
		Int("accidents", stats.Accidents).
		Int("occupants", stats.Occupants).
		Int("vehicles", stats.Vehicles).
		Int("severe", stats.Severe).
		Msg("Generated sample tables")
	log.Info().Msgf("Prepare with: DATA_DIR=%s CHARACTERISTICS_FILE=%s OCCUPANTS_FILE=%s VEHICLES_FILE=%s LOCATIONS_FILE=%s go run ./cmd/prepare",
		*outDir, sample.CharacteristicsFile, sample.OccupantsFile, sample.VehiclesFile, sample.LocationsFile)
}
