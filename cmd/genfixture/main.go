// Command genfixture replays the simulator offline and writes the scored
// readings and hazard alerts it would have published as a JSON fixture. The
// clock and random sources are fixed, so the same flags always produce the
// same file.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -ticks 360 \
//	  -seed 42 \
//	  -out data/mock/coastal_sensors_fixture.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/anomaly"
	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/observability"
	"github.com/couchcryptid/coastal-sensor-service/internal/pipeline"
	sensorsignal "github.com/couchcryptid/coastal-sensor-service/internal/signal"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

var startTime = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

const (
	readingsTopic = "sensor-readings"
	hazardsTopic  = "hazard-alerts"
)

// fixture is the file layout consumed by downstream test suites.
type fixture struct {
	Seed      uint64                 `json:"seed"`
	Ticks     int                    `json:"ticks"`
	Interval  string                 `json:"interval"`
	Readings  []domain.ScoredReading `json:"readings"`
	Hazards   []domain.HazardEvent   `json:"hazards"`
	Models    []anomaly.ModelStatus  `json:"models"`
	StartedAt time.Time              `json:"started_at"`
}

// collector is an in-memory pipeline.BatchLoader.
type collector struct {
	events []domain.OutputEvent
}

func (c *collector) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	c.events = append(c.events, events...)
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ticks := flag.Int("ticks", 360, "number of reading ticks to replay")
	seed := flag.Uint64("seed", 42, "random seed for the generator and baseline")
	interval := flag.Duration("interval", 10*time.Second, "simulated time between ticks")
	sweepEvery := flag.Int("sweep-every", 3, "run a hazard sweep every N ticks")
	baseline := flag.Bool("baseline", true, "seed the anomaly engine with baseline samples")
	policyName := flag.String("policy", "category", "retrain policy: category or all")
	out := flag.String("out", "", "output path for the JSON fixture")
	flag.Parse()

	if *out == "" || *ticks < 1 || *sweepEvery < 1 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out is required, -ticks and -sweep-every must be positive")
	}
	policy, err := anomaly.ParseRetrainPolicy(*policyName)
	if err != nil {
		return err
	}

	clock := clockwork.NewFakeClockAt(startTime)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())

	generator := sensorsignal.New(domain.DefaultTopology(), sensorsignal.WithClock(clock), sensorsignal.WithSeed(*seed))
	engineOpts := []anomaly.Option{
		anomaly.WithClock(clock),
		anomaly.WithRetrainPolicy(policy),
		anomaly.WithLogger(logger),
		anomaly.WithMetrics(metrics),
	}
	if *baseline {
		engineOpts = append(engineOpts, anomaly.WithBaseline(sensorsignal.NewRand(*seed+1), 100))
	}
	engine := anomaly.New(engineOpts...)

	sink := &collector{}
	p := pipeline.New(generator, engine, sink, logger, metrics,
		pipeline.WithClock(clock),
		pipeline.WithTopics(pipeline.Topics{Readings: readingsTopic, Hazards: hazardsTopic}),
	)

	ctx := context.Background()
	for i := range *ticks {
		if err := p.Tick(ctx); err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
		if i%*sweepEvery == 0 {
			if err := p.SweepHazards(ctx); err != nil {
				return fmt.Errorf("hazard sweep %d: %w", i, err)
			}
		}
		clock.Advance(*interval)
	}

	fx, err := decode(sink.events)
	if err != nil {
		return err
	}
	fx.Seed = *seed
	fx.Ticks = *ticks
	fx.Interval = interval.String()
	fx.StartedAt = startTime
	fx.Models = engine.Status()

	if err := writeJSON(*out, fx); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s (%d readings, %d hazards)", *out, len(fx.Readings), len(fx.Hazards))

	printStats(fx)
	return nil
}

// decode splits the collected events back into typed records by topic.
func decode(events []domain.OutputEvent) (fixture, error) {
	var fx fixture
	for _, ev := range events {
		switch ev.Topic {
		case readingsTopic:
			var r domain.ScoredReading
			if err := json.Unmarshal(ev.Value, &r); err != nil {
				return fx, fmt.Errorf("decode reading: %w", err)
			}
			fx.Readings = append(fx.Readings, r)
		case hazardsTopic:
			var h domain.HazardEvent
			if err := json.Unmarshal(ev.Value, &h); err != nil {
				return fx, fmt.Errorf("decode hazard: %w", err)
			}
			fx.Hazards = append(fx.Hazards, h)
		default:
			return fx, fmt.Errorf("unexpected topic %q", ev.Topic)
		}
	}
	return fx, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(fx fixture) {
	anomalies := map[string]int{}
	paths := map[string]int{}
	for _, r := range fx.Readings {
		paths[string(r.Path)]++
		if r.Anomaly.IsAnomaly {
			anomalies[r.Category.String()]++
		}
	}
	hazards := map[string]int{}
	for _, h := range fx.Hazards {
		hazards[h.Type.String()]++
	}

	fmt.Println("\nanomalies by category:")
	printCounts(anomalies)
	fmt.Println("scoring paths:")
	printCounts(paths)
	fmt.Println("hazards by type:")
	printCounts(hazards)
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}
