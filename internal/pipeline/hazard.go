package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/robfig/cron/v3"
)

// SweepHazards polls the source for hazard alerts, enriches them with place
// details when a geocoder is configured, and loads them. A sweep that yields
// no alerts loads nothing.
func (p *Pipeline) SweepHazards(ctx context.Context) error {
	alerts := p.source.GenerateHazardAlerts()
	if len(alerts) == 0 {
		return nil
	}

	batch := make([]domain.OutputEvent, 0, len(alerts))
	for _, h := range alerts {
		p.metrics.HazardsGenerated.WithLabelValues(h.Type.String(), h.Severity.String()).Inc()
		h = domain.EnrichHazard(ctx, h, p.geocoder, p.logger)

		p.logger.Info("hazard alert",
			"hazard_id", h.ID,
			"hazard_type", h.Type.String(),
			"severity", h.Severity.String(),
			"lat", h.Geo.Lat,
			"lon", h.Geo.Lon,
		)

		out, err := domain.SerializeHazard(h, p.topics.Hazards)
		if err != nil {
			p.logger.Warn("serialize failed, skipping hazard", "error", err, "hazard_id", h.ID)
			p.metrics.SerializeErrors.Inc()
			continue
		}
		batch = append(batch, out)
	}

	if len(batch) == 0 {
		return nil
	}
	return p.loadWithRetry(ctx, batch, "hazard")
}

// RunHazardSweeps runs SweepHazards on a cron schedule until ctx is
// cancelled. A sweep still retrying a failed load causes the next firing to
// be skipped rather than queued.
func (p *Pipeline) RunHazardSweeps(ctx context.Context, schedule string) error {
	l := cronLogger{p.logger}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	_, err := c.AddFunc(schedule, func() {
		if err := p.SweepHazards(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("hazard sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule hazard sweep %q: %w", schedule, err)
	}

	p.logger.Info("hazard sweeps scheduled", "schedule", schedule, "hazards_topic", p.topics.Hazards)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
