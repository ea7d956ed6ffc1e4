package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaHazardsTopic  string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Simulation cadence.
	TickInterval   time.Duration
	HazardSchedule string
	SimulatorSeed  uint64

	// Anomaly engine tuning.
	AnomalyHistorySize   int
	AnomalyRetrainEvery  int
	AnomalyRetrainPolicy string
	AnomalySeedBaseline  bool
	AnomalyAsyncTraining bool
	AnomalyFitTimeout    time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxRateLimit float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	tickInterval, err := parsePositiveDuration("TICK_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	fitTimeout, err := parseDuration("ANOMALY_FIT_TIMEOUT", "2s")
	if err != nil {
		return nil, err
	}

	historySize, err := parseIntRange("ANOMALY_HISTORY_SIZE", 200, 20, 100_000)
	if err != nil {
		return nil, err
	}

	retrainEvery, err := parseIntRange("ANOMALY_RETRAIN_EVERY", 50, 1, 100_000)
	if err != nil {
		return nil, err
	}

	seedBaseline, err := parseBool("ANOMALY_SEED_BASELINE", true)
	if err != nil {
		return nil, err
	}

	asyncTraining, err := parseBool("ANOMALY_ASYNC_TRAINING", false)
	if err != nil {
		return nil, err
	}

	simulatorSeed, err := parseSeed()
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseRateLimit()
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReadingsTopic: sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "sensor-readings"),
		KafkaHazardsTopic:  sharedcfg.EnvOrDefault("KAFKA_HAZARDS_TOPIC", "hazard-alerts"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		TickInterval:   tickInterval,
		HazardSchedule: sharedcfg.EnvOrDefault("HAZARD_SCHEDULE", "@every 30s"),
		SimulatorSeed:  simulatorSeed,

		AnomalyHistorySize:   historySize,
		AnomalyRetrainEvery:  retrainEvery,
		AnomalyRetrainPolicy: sharedcfg.EnvOrDefault("ANOMALY_RETRAIN_POLICY", "category"),
		AnomalySeedBaseline:  seedBaseline,
		AnomalyAsyncTraining: asyncTraining,
		AnomalyFitTimeout:    fitTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxRateLimit: rateLimit,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaReadingsTopic == cfg.KafkaHazardsTopic {
		return nil, errors.New("KAFKA_READINGS_TOPIC and KAFKA_HAZARDS_TOPIC must differ")
	}
	if _, err := cron.ParseStandard(cfg.HazardSchedule); err != nil {
		return nil, fmt.Errorf("invalid HAZARD_SCHEDULE: %w", err)
	}
	switch cfg.AnomalyRetrainPolicy {
	case "category", "all":
	default:
		return nil, errors.New("invalid ANOMALY_RETRAIN_POLICY: must be category or all")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative duration", key)
	}
	return d, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseIntRange(key string, fallback, minVal, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, minVal, maxVal)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

// parseSeed reads SIMULATOR_SEED. Zero means the generator picks a time based seed.
func parseSeed() (uint64, error) {
	s := os.Getenv("SIMULATOR_SEED")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid SIMULATOR_SEED: must be an unsigned integer")
	}
	return n, nil
}

func parseRateLimit() (float64, error) {
	s := sharedcfg.EnvOrDefault("MAPBOX_RATE_LIMIT", "10")
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 {
		return 0, errors.New("invalid MAPBOX_RATE_LIMIT: must be a positive number of requests per second")
	}
	return r, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
