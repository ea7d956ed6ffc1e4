// Package pipeline drives the simulation: it generates readings on a fixed
// tick, scores each one, and hands the serialized batch to a loader. Hazard
// alerts follow a separate sweep.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

// Source produces raw sensor readings and hazard alerts.
type Source interface {
	GenerateReadings() []domain.Reading
	GenerateHazardAlerts() []domain.HazardEvent
}

// Scorer classifies a single value for its category.
type Scorer interface {
	ScoreWithPath(value float64, c domain.Category) (domain.AnomalyResult, domain.ScoringPath)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Topics names the destination of each event stream.
type Topics struct {
	Readings string
	Hazards  string
}

// Pipeline orchestrates the generate-score-load loop.
type Pipeline struct {
	source   Source
	scorer   Scorer
	loader   BatchLoader
	geocoder domain.Geocoder
	topics   Topics
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTopics overrides the default sensor-readings and hazard-alerts topics.
func WithTopics(t Topics) Option {
	return func(p *Pipeline) { p.topics = t }
}

// WithInterval sets the reading tick. Defaults to 10s.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithClock sets the clock driving the ticker and retry backoff.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithGeocoder enables reverse geocoding of hazard alerts.
func WithGeocoder(g domain.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// New creates a Pipeline with the given stages and observability.
func New(src Source, scorer Scorer, loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   src,
		scorer:   scorer,
		loader:   loader,
		topics:   Topics{Readings: "sensor-readings", Hazards: "hazard-alerts"},
		interval: 10 * time.Second,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has loaded at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any readings yet")
	}
	return nil
}

// Run ticks until the context is cancelled. The first tick fires immediately.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval, "readings_topic", p.topics.Readings)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Tick(ctx); err != nil {
			p.logger.Info("pipeline stopping", "reason", err)
			return nil
		}
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Tick generates one reading per sensor, scores each exactly once, and loads
// the batch. Load failures are retried with exponential backoff until they
// succeed or ctx is cancelled, in which case the context error is returned.
func (p *Pipeline) Tick(ctx context.Context) error {
	start := p.clock.Now()

	readings := p.source.GenerateReadings()
	batch := make([]domain.OutputEvent, 0, len(readings))
	for _, r := range readings {
		p.metrics.ReadingsGenerated.WithLabelValues(r.Category.String()).Inc()

		res, path := p.scorer.ScoreWithPath(r.Value, r.Category)
		scored := domain.ScoredReading{Reading: r, Anomaly: res, Path: path}
		if res.IsAnomaly {
			p.logger.Info("anomaly detected",
				"sensor_id", r.SensorID,
				"category", r.Category.String(),
				"value", r.Value,
				"score", res.Score,
				"path", string(path),
			)
		}

		out, err := domain.SerializeReading(scored, p.topics.Readings)
		if err != nil {
			p.logger.Warn("serialize failed, skipping reading", "error", err, "sensor_id", r.SensorID)
			p.metrics.SerializeErrors.Inc()
			continue
		}
		batch = append(batch, out)
	}

	if len(batch) == 0 {
		return ctx.Err()
	}
	if err := p.loadWithRetry(ctx, batch, "reading"); err != nil {
		return err
	}

	p.metrics.TickProcessingDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	return nil
}

// loadWithRetry loads events, backing off from 200ms up to 5s between
// failed attempts.
func (p *Pipeline) loadWithRetry(ctx context.Context, events []domain.OutputEvent, eventType string) error {
	backoff := initialBackoff
	for {
		err := p.loader.LoadBatch(ctx, events)
		if err == nil {
			p.metrics.MessagesProduced.WithLabelValues(eventType).Add(float64(len(events)))
			p.metrics.BatchSize.Observe(float64(len(events)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.metrics.LoadErrors.Inc()
		p.logger.Error("load batch failed",
			"error", err,
			"event_type", eventType,
			"batch_size", len(events),
			"retry_in", backoff,
		)
		if !p.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// sleep waits for d on the pipeline clock, returning false if ctx is
// cancelled first.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
