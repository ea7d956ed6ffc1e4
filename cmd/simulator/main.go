package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpadapter "github.com/couchcryptid/coastal-sensor-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/coastal-sensor-service/internal/adapter/kafka"
	"github.com/couchcryptid/coastal-sensor-service/internal/adapter/mapbox"
	"github.com/couchcryptid/coastal-sensor-service/internal/anomaly"
	"github.com/couchcryptid/coastal-sensor-service/internal/config"
	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/observability"
	"github.com/couchcryptid/coastal-sensor-service/internal/pipeline"
	sensorsignal "github.com/couchcryptid/coastal-sensor-service/internal/signal"
)

const baselineSamples = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	policy, err := anomaly.ParseRetrainPolicy(cfg.AnomalyRetrainPolicy)
	if err != nil {
		logger.Error("invalid retrain policy", "error", err)
		os.Exit(1)
	}

	// A zero seed means every run differs.
	seed := cfg.SimulatorSeed
	if seed == 0 {
		seed = rand.Uint64()
	}
	generator := sensorsignal.New(domain.DefaultTopology(), sensorsignal.WithSeed(seed))

	engineOpts := []anomaly.Option{
		anomaly.WithHistoryCapacity(cfg.AnomalyHistorySize),
		anomaly.WithRetrainEvery(cfg.AnomalyRetrainEvery),
		anomaly.WithRetrainPolicy(policy),
		anomaly.WithAsyncTraining(cfg.AnomalyAsyncTraining),
		anomaly.WithFitTimeout(cfg.AnomalyFitTimeout),
		anomaly.WithLogger(logger),
		anomaly.WithMetrics(metrics),
	}
	if cfg.AnomalySeedBaseline {
		engineOpts = append(engineOpts, anomaly.WithBaseline(sensorsignal.NewRand(seed+1), baselineSamples))
	}
	engine := anomaly.New(engineOpts...)
	logger.Info("anomaly engine ready",
		"policy", policy.String(),
		"history_size", cfg.AnomalyHistorySize,
		"baseline", cfg.AnomalySeedBaseline,
		"seed", seed,
	)

	pipelineOpts := []pipeline.Option{
		pipeline.WithInterval(cfg.TickInterval),
		pipeline.WithTopics(pipeline.Topics{Readings: cfg.KafkaReadingsTopic, Hazards: cfg.KafkaHazardsTopic}),
	}

	// Geocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRateLimit, metrics, logger)
		pipelineOpts = append(pipelineOpts, pipeline.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled",
			"cache_size", cfg.MapboxCacheSize,
			"timeout", cfg.MapboxTimeout,
			"rate_limit", cfg.MapboxRateLimit,
		)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(generator, engine, writer, logger, metrics, pipelineOpts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	// Start reading pipeline.
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	// Start hazard sweeps.
	go func() {
		defer wg.Done()
		if err := p.RunHazardSweeps(ctx, cfg.HazardSchedule); err != nil {
			logger.Error("hazard sweep error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	engine.Wait()
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
