package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/dashboard"
	"accident-severity/internal/metrics"
	"accident-severity/internal/ml"
	"accident-severity/internal/storage"
)

func main() {
	var (
		port      = flag.Int("port", 0, "HTTP port (overrides config)")
		modelPath = flag.String("model", "", "Bundle path (overrides config)")
		registry  = flag.Bool("registry", false, "Serve the active version of the models directory instead of the bundle path")
		retention = flag.Duration("retention", 7*24*time.Hour, "How long served predictions are kept in the store")
		console   = flag.Bool("console", false, "Human readable log output")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	common.ConfigureLogger(c.LogLevel, *console)
	if *port != 0 {
		c.ServerPort = *port
	}
	if *modelPath != "" {
		c.ModelPath = *modelPath
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	startup := ml.StartupOptions{
		ModelPath:   c.ModelPath,
		ModelsDir:   c.ModelsDir,
		UseRegistry: *registry && *modelPath == "",
		DatasetPath: c.DatasetPath,
		Separator:   c.SeparatorRune(),
		Train:       ml.TrainConfigFromSettings(c),
		Metrics:     mw,
	}
	bundle, source, err := ml.LoadOrTrain(startup)
	if err != nil && bundle == nil {
		log.Warn().Err(err).Msg("Starting without a model")
	}
	predictor := ml.NewWithMetrics(bundle, mw)

	dash := dashboard.New(c.StaticDir, mw)
	opts := ml.ServerOptions{
		Port:     c.ServerPort,
		Reload:   func() (*ml.Bundle, ml.Source, error) { return ml.LoadOrTrain(startup) },
		Feed:     dash,
		Gatherer: m.Gatherer(),
		Source:   source,
	}
	if store != nil {
		opts.Store = store
	}
	server := ml.NewModelServer(predictor, opts)
	dash.RegisterRoutes(server.Router())
	if err := dash.Start(); err != nil {
		log.Fatal().Err(err).Msg("dashboard start failed")
	}
	defer dash.Stop()

	var wg sync.WaitGroup
	startModelAgeReporter(ctx, &wg, predictor, mw)
	if store != nil {
		startPredictionPruner(ctx, &wg, store, *retention)
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("model server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, &wg, c.ShutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown model server")
	}
}

// initializeStorage opens the history store if STORE_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.StorePath == "" {
		return nil
	}
	store, err := storage.New(c.StorePath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// startModelAgeReporter refreshes the model age gauge once a minute
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, p *ml.Predictor, mw *metrics.MetricsWrapper) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if b := p.Current(); b != nil && !b.TrainedAt.IsZero() {
					mw.MLModelAgeSet(time.Since(b.TrainedAt).Seconds())
				}
			}
		}
	}()
}

// startPredictionPruner drops stored predictions older than retention
func startPredictionPruner(ctx context.Context, wg *sync.WaitGroup, store *storage.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.PrunePredictions(time.Now().Add(-retention))
				if err != nil {
					log.Warn().Err(err).Msg("Failed to prune predictions")
					continue
				}
				if n > 0 {
					log.Info().Int("removed", n).Msg("Pruned stored predictions")
				}
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and stops background goroutines
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(timeout):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
