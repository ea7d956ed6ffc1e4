// Package signal synthesizes sensor readings and hazard events for the
// coastal monitoring network.
package signal

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// hazardJitter bounds the random offset, in degrees, applied on each axis to
// a hazard's location.
const hazardJitter = 0.02

// Generator produces readings for a fixed topology. The elapsed time since
// construction drives the periodic components. It is safe for concurrent use.
type Generator struct {
	topology []domain.Sensor
	rules    []domain.HazardRule
	clock    clockwork.Clock
	start    time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithSeed seeds a PCG random source for reproducible output.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = NewRand(seed) }
}

// NewRand returns a PCG-backed random source derived from seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// New creates a Generator over a copy of topology. The start instant is read
// from the configured clock.
func New(topology []domain.Sensor, opts ...Option) *Generator {
	g := &Generator{
		topology: append([]domain.Sensor(nil), topology...),
		rules:    domain.HazardRules(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g.start = g.clock.Now()
	return g
}

// Start returns the instant the generator was created.
func (g *Generator) Start() time.Time {
	return g.start
}

// Topology returns a copy of the sensor topology.
func (g *Generator) Topology() []domain.Sensor {
	return append([]domain.Sensor(nil), g.topology...)
}

// GenerateReadings returns one reading per topology sensor. Sensors whose
// category has no profile are skipped.
func (g *Generator) GenerateReadings() []domain.Reading {
	now := g.clock.Now()
	hours := now.Sub(g.start).Hours()

	g.mu.Lock()
	defer g.mu.Unlock()

	readings := make([]domain.Reading, 0, len(g.topology))
	for _, s := range g.topology {
		p, ok := domain.ProfileFor(s.Category)
		if !ok {
			continue
		}
		value := round2(g.synthesize(p, hours))
		readings = append(readings, domain.Reading{
			ID:         domain.ReadingID(s.ID, now, value),
			SensorID:   s.ID,
			SensorName: s.Name,
			Category:   s.Category,
			Geo:        s.Geo,
			Value:      value,
			Unit:       p.Unit,
			Timestamp:  now,
		})
	}
	return readings
}

// synthesize composes base, periodic component and noise, then applies the
// category's physical limits. Callers hold g.mu.
func (g *Generator) synthesize(p domain.Profile, hours float64) float64 {
	value := p.Base + p.Periodic(hours)
	if p.EventProbability > 0 && g.rng.Float64() < p.EventProbability {
		value = p.Base - g.uniform(p.EventDrop)
	} else {
		value += g.uniform(p.Noise)
	}
	return p.Limits.Clamp(value)
}

// GenerateHazardAlerts runs one independent trial per hazard type and returns
// the alerts that fired, each placed near a random topology sensor.
func (g *Generator) GenerateHazardAlerts() []domain.HazardEvent {
	if len(g.topology) == 0 {
		return nil
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	var alerts []domain.HazardEvent
	for _, rule := range g.rules {
		if g.rng.Float64() >= rule.Probability {
			continue
		}
		sensor := g.topology[g.rng.IntN(len(g.topology))]
		geo := domain.Geo{
			Lat: sensor.Geo.Lat + g.uniform(domain.Bounds{Min: -hazardJitter, Max: hazardJitter}),
			Lon: sensor.Geo.Lon + g.uniform(domain.Bounds{Min: -hazardJitter, Max: hazardJitter}),
		}
		alerts = append(alerts, domain.HazardEvent{
			ID:          domain.HazardID(rule.Type, geo, now),
			Type:        rule.Type,
			Severity:    rule.Severities[g.rng.IntN(len(rule.Severities))],
			Geo:         geo,
			Description: rule.Description,
			Timestamp:   now,
			Active:      true,
		})
	}
	return alerts
}

func (g *Generator) uniform(b domain.Bounds) float64 {
	return b.Min + g.rng.Float64()*(b.Max-b.Min)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
