// Command calibrate checks the generator and anomaly engine against their
// statistical and behavioral contracts: hazard firing rates, tide
// periodicity, physical limits, history bounds, and fallback scoring. Each
// phase reports pass or fail, and any failure exits non-zero.
//
// Usage:
//
//	go run ./cmd/calibrate -sweeps 100000 -seed 7
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/anomaly"
	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	sensorsignal "github.com/couchcryptid/coastal-sensor-service/internal/signal"
	"github.com/jonboulle/clockwork"
)

var startTime = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a calibration phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	sweeps := flag.Int("sweeps", 100_000, "hazard sweeps used to estimate firing rates")
	ticks := flag.Int("ticks", 5_000, "reading ticks used for limit and periodicity checks")
	seed := flag.Uint64("seed", 7, "random seed")
	tolerance := flag.Float64("tolerance", 5, "allowed deviation of firing rates, in standard errors")
	flag.Parse()

	if *sweeps < 1 || *ticks < 1 || *tolerance <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*sweeps, *ticks, *seed, *tolerance))
}

func run(sweeps, ticks int, seed uint64, tolerance float64) int {
	fmt.Println("=== Coastal Sensor Calibration ===")
	fmt.Println()

	phases := []*phase{
		checkHazardRates(sweeps, seed, tolerance),
		checkTidePeriodicity(ticks, seed),
		checkPhysicalLimits(ticks, seed),
		checkHistoryBound(),
		checkFallbackScoring(),
		checkModelScoring(seed),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll calibration checks passed.")
		return 0
	}
	fmt.Println("\nCalibration FAILED.")
	return 1
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── Phase 1: Hazard firing rates ──

func checkHazardRates(sweeps int, seed uint64, tolerance float64) *phase {
	p := &phase{name: "Phase 1: Hazard firing rates"}
	g := sensorsignal.New(domain.DefaultTopology(), sensorsignal.WithSeed(seed))

	counts := map[domain.HazardType]int{}
	for range sweeps {
		for _, h := range g.GenerateHazardAlerts() {
			counts[h.Type]++
			rule := ruleFor(h.Type)
			if !containsSeverity(rule.Severities, h.Severity) {
				p.errorf("%s: severity %s outside %v", h.Type, h.Severity, rule.Severities)
			}
		}
	}

	n := float64(sweeps)
	for _, rule := range domain.HazardRules() {
		observed := float64(counts[rule.Type]) / n
		se := math.Sqrt(rule.Probability * (1 - rule.Probability) / n)
		fmt.Printf("  %-18s expected %.3f observed %.4f\n", rule.Type, rule.Probability, observed)
		if math.Abs(observed-rule.Probability) > tolerance*se {
			p.errorf("%s: rate %.4f deviates from %.3f by more than %.0f standard errors", rule.Type, observed, rule.Probability, tolerance)
		}
	}
	return p
}

func ruleFor(t domain.HazardType) domain.HazardRule {
	for _, r := range domain.HazardRules() {
		if r.Type == t {
			return r
		}
	}
	return domain.HazardRule{}
}

func containsSeverity(set []domain.Severity, s domain.Severity) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ── Phase 2: Tide periodicity ──
// Readings one tidal period apart differ only by noise.

func checkTidePeriodicity(ticks int, seed uint64) *phase {
	p := &phase{name: "Phase 2: Tide periodicity"}
	profile, _ := domain.ProfileFor(domain.TideGauge)
	period := time.Duration(profile.PeriodHours * float64(time.Hour))
	maxDiff := profile.Noise.Max - profile.Noise.Min + 0.01

	clock := clockwork.NewFakeClockAt(startTime)
	g := sensorsignal.New([]domain.Sensor{domain.DefaultTopology()[0]}, sensorsignal.WithClock(clock), sensorsignal.WithSeed(seed))

	step := period / 37
	for i := 0; i < ticks; i++ {
		a := g.GenerateReadings()[0].Value
		clock.Advance(period)
		b := g.GenerateReadings()[0].Value
		if math.Abs(a-b) > maxDiff {
			p.errorf("tick %d: %.2f and %.2f one period apart differ by more than %.2f", i, a, b, maxDiff)
		}
		clock.Advance(step)
	}
	return p
}

// ── Phase 3: Physical limits ──

func checkPhysicalLimits(ticks int, seed uint64) *phase {
	p := &phase{name: "Phase 3: Physical limits"}
	clock := clockwork.NewFakeClockAt(startTime)
	g := sensorsignal.New(domain.DefaultTopology(), sensorsignal.WithClock(clock), sensorsignal.WithSeed(seed))

	for i := 0; i < ticks; i++ {
		for _, r := range g.GenerateReadings() {
			profile, _ := domain.ProfileFor(r.Category)
			if !profile.Limits.Contains(r.Value) {
				p.errorf("%s at tick %d: %.2f outside [%v, %v]", r.SensorID, i, r.Value, profile.Limits.Min, profile.Limits.Max)
			}
		}
		clock.Advance(10 * time.Second)
	}
	return p
}

// ── Phase 4: History bound ──

func checkHistoryBound() *phase {
	p := &phase{name: "Phase 4: History bound"}
	e := anomaly.New(anomaly.WithLogger(quietLogger()))

	for i := 0; i < 250; i++ {
		e.Score(float64(i), domain.WeatherStation)
	}
	h := e.History(domain.WeatherStation)
	if len(h) != anomaly.DefaultHistoryCapacity {
		p.errorf("history holds %d values, want %d", len(h), anomaly.DefaultHistoryCapacity)
		return p
	}
	if h[0] != 50 || h[len(h)-1] != 249 {
		p.errorf("history spans %.0f..%.0f, want 50..249", h[0], h[len(h)-1])
	}
	return p
}

// ── Phase 5: Fallback scoring ──

func checkFallbackScoring() *phase {
	p := &phase{name: "Phase 5: Fallback scoring"}

	cases := []struct {
		value    float64
		category string
		want     domain.AnomalyResult
	}{
		{1.2, "tide_gauge", domain.AnomalyResult{Score: 0, IsAnomaly: false}},
		{3.5, "tide_gauge", domain.AnomalyResult{Score: 1, IsAnomaly: true}},
		{-3, "weather_station", domain.AnomalyResult{Score: 0.6, IsAnomaly: true}},
		{101, "water_quality", domain.AnomalyResult{Score: 1, IsAnomaly: true}},
		{42, "nonexistent_type", domain.AnomalyResult{Score: 0, IsAnomaly: false}},
	}
	for _, c := range cases {
		e := anomaly.New(anomaly.WithLogger(quietLogger()))
		if got := e.ScoreType(c.value, c.category); got != c.want {
			p.errorf("%s %.2f: got %+v, want %+v", c.category, c.value, got, c.want)
		}
	}
	return p
}

// ── Phase 6: Model scoring ──
// A baseline-trained engine flags far outliers and never scores below zero.

func checkModelScoring(seed uint64) *phase {
	p := &phase{name: "Phase 6: Model scoring"}
	e := anomaly.New(
		anomaly.WithLogger(quietLogger()),
		anomaly.WithBaseline(sensorsignal.NewRand(seed+1), 100),
	)

	for _, c := range domain.Categories {
		if e.State(c) != anomaly.Trained {
			p.errorf("%s: baseline did not train a model", c)
			continue
		}
		profile, _ := domain.ProfileFor(c)
		for _, dir := range []float64{1, -1} {
			far := profile.BaselineMean + dir*1000*profile.BaselineStdDev
			res, path := e.ScoreWithPath(far, c)
			if path != domain.PathModel || !res.IsAnomaly || res.Score <= 0 {
				p.errorf("%s: %.1f scored %+v via %s, want a model anomaly", c, far, res, path)
			}
		}
		for v := profile.BaselineClip.Min; v <= profile.BaselineClip.Max; v += (profile.BaselineClip.Max - profile.BaselineClip.Min) / 50 {
			if res := e.Score(v, c); res.Score < 0 {
				p.errorf("%s: %.2f scored negative %.3f", c, v, res.Score)
			}
		}
	}
	return p
}
