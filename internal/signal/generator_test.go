package signal_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/signal"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

func newGenerator(t *testing.T, topology []domain.Sensor) (*signal.Generator, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	return signal.New(topology, signal.WithClock(clock), signal.WithSeed(7)), clock
}

func TestGenerateReadings_OnePerSensor(t *testing.T) {
	g, _ := newGenerator(t, domain.DefaultTopology())

	readings := g.GenerateReadings()
	require.Len(t, readings, 6)

	for i, s := range domain.DefaultTopology() {
		r := readings[i]
		assert.Equal(t, s.ID, r.SensorID)
		assert.Equal(t, s.Name, r.SensorName)
		assert.Equal(t, s.Category, r.Category)
		assert.Equal(t, s.Geo, r.Geo)
		assert.Equal(t, epoch, r.Timestamp)
		assert.Equal(t, domain.ReadingID(s.ID, epoch, r.Value), r.ID)
		assert.InDelta(t, math.Round(r.Value*100)/100, r.Value, 1e-9, "rounded to 2 decimals")
	}

	assert.Equal(t, "m", readings[0].Unit)
	assert.Equal(t, "km/h", readings[2].Unit)
	assert.Equal(t, "index", readings[4].Unit)
}

func TestGenerateReadings_TideStaysNearPhase(t *testing.T) {
	g, clock := newGenerator(t, []domain.Sensor{{ID: "TG001", Category: domain.TideGauge}})
	tide, _ := domain.ProfileFor(domain.TideGauge)

	for i := 0; i < 500; i++ {
		hours := clock.Since(epoch).Hours()
		r := g.GenerateReadings()[0]
		want := tide.Base + tide.Periodic(hours)
		assert.InDelta(t, want, r.Value, 0.2+0.005, "hour %.2f", hours)
		clock.Advance(17 * time.Minute)
	}
}

func TestGenerateReadings_TidePeriodicity(t *testing.T) {
	g, clock := newGenerator(t, []domain.Sensor{{ID: "TG001", Category: domain.TideGauge}})
	tide, _ := domain.ProfileFor(domain.TideGauge)
	period := time.Duration(12.42 * float64(time.Hour))

	clock.Advance(3 * time.Hour)
	first := g.GenerateReadings()[0]
	phaseA := tide.Periodic(clock.Since(g.Start()).Hours())

	clock.Advance(period)
	second := g.GenerateReadings()[0]
	phaseB := tide.Periodic(clock.Since(g.Start()).Hours())

	assert.InDelta(t, phaseA, phaseB, 1e-9)
	// Noise is bounded by ±0.2 on each sample.
	assert.InDelta(t, first.Value, second.Value, 0.4+0.01)
}

func TestGenerateReadings_WeatherNeverNegative(t *testing.T) {
	g, clock := newGenerator(t, []domain.Sensor{{ID: "WS001", Category: domain.WeatherStation}})

	for i := 0; i < 2000; i++ {
		r := g.GenerateReadings()[0]
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.LessOrEqual(t, r.Value, 15.0+5+8+0.005)
		clock.Advance(7 * time.Minute)
	}
}

func TestGenerateReadings_WaterQualityEvents(t *testing.T) {
	g, _ := newGenerator(t, []domain.Sensor{{ID: "WQ001", Category: domain.WaterQuality}})

	const n = 20000
	events := 0
	for i := 0; i < n; i++ {
		v := g.GenerateReadings()[0].Value
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 100.0)
		switch {
		case v >= 70 && v <= 80:
		case v >= 35 && v <= 55:
			events++
		default:
			t.Fatalf("value %v outside both normal and pollution bands", v)
		}
	}
	assert.InDelta(t, 0.05, float64(events)/n, 0.01)
}

func TestGenerateReadings_UnknownCategorySkipped(t *testing.T) {
	topology := []domain.Sensor{
		{ID: "XX001", Category: domain.Category(99)},
		{ID: "TG001", Category: domain.TideGauge},
	}
	g, _ := newGenerator(t, topology)

	readings := g.GenerateReadings()
	require.Len(t, readings, 1)
	assert.Equal(t, "TG001", readings[0].SensorID)
}

func TestGenerator_TopologyIsCopied(t *testing.T) {
	topology := domain.DefaultTopology()
	g, _ := newGenerator(t, topology)

	topology[0].ID = "mutated"
	assert.Equal(t, "TG001", g.Topology()[0].ID)

	snapshot := g.Topology()
	snapshot[1].ID = "mutated"
	assert.Equal(t, "TG002", g.Topology()[1].ID)
}

func TestGenerator_SameSeedSameOutput(t *testing.T) {
	a, _ := newGenerator(t, domain.DefaultTopology())
	b, _ := newGenerator(t, domain.DefaultTopology())

	assert.Equal(t, a.GenerateReadings(), b.GenerateReadings())
	assert.Equal(t, a.GenerateHazardAlerts(), b.GenerateHazardAlerts())
}

func TestGenerateHazardAlerts_EmptyTopology(t *testing.T) {
	g, _ := newGenerator(t, nil)
	for i := 0; i < 100; i++ {
		assert.Empty(t, g.GenerateHazardAlerts())
	}
}

func TestGenerateHazardAlerts_Shape(t *testing.T) {
	topology := domain.DefaultTopology()
	g, _ := newGenerator(t, topology)

	allowed := map[domain.HazardType][]domain.Severity{}
	for _, r := range domain.HazardRules() {
		allowed[r.Type] = r.Severities
	}

	seen := 0
	for i := 0; i < 2000; i++ {
		for _, h := range g.GenerateHazardAlerts() {
			seen++
			assert.Contains(t, allowed[h.Type], h.Severity)
			assert.True(t, h.Active)
			assert.NotEmpty(t, h.Description)
			assert.True(t, nearSomeSensor(topology, h.Geo), "hazard at %+v", h.Geo)
			assert.Equal(t, domain.HazardID(h.Type, h.Geo, h.Timestamp), h.ID)
		}
	}
	assert.Positive(t, seen)
}

func TestGenerateHazardAlerts_FiringRates(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	g, _ := newGenerator(t, domain.DefaultTopology())

	const n = 100_000
	counts := map[domain.HazardType]int{}
	for i := 0; i < n; i++ {
		for _, h := range g.GenerateHazardAlerts() {
			counts[h.Type]++
		}
	}

	for _, r := range domain.HazardRules() {
		rate := float64(counts[r.Type]) / n
		// Five standard errors of a Bernoulli mean.
		tol := 5 * math.Sqrt(r.Probability*(1-r.Probability)/n)
		assert.InDelta(t, r.Probability, rate, tol, r.Type.String())
	}
}

func nearSomeSensor(topology []domain.Sensor, geo domain.Geo) bool {
	for _, s := range topology {
		if math.Abs(s.Geo.Lat-geo.Lat) <= 0.02 && math.Abs(s.Geo.Lon-geo.Lon) <= 0.02 {
			return true
		}
	}
	return false
}
