package domain

import (
	"fmt"
	"math"
)

// Category identifies the kind of sensor that produced a reading.
type Category uint8

const (
	TideGauge Category = iota + 1
	WeatherStation
	WaterQuality
)

// Categories lists every known category in a stable order.
var Categories = []Category{TideGauge, WeatherStation, WaterQuality}

var categoryNames = map[Category]string{
	TideGauge:      "tide_gauge",
	WeatherStation: "weather_station",
	WaterQuality:   "water_quality",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory maps a wire name such as "tide_gauge" to its Category.
func ParseCategory(s string) (Category, bool) {
	for c, name := range categoryNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, ok := ParseCategory(string(text))
	if !ok {
		return fmt.Errorf("unknown category %q", text)
	}
	*c = parsed
	return nil
}

// Bounds is an inclusive [Min, Max] interval.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Clamp limits v to the interval.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Profile holds the constants that drive signal synthesis, fallback scoring
// and baseline seeding for one category.
type Profile struct {
	Category Category
	Unit     string

	// Signal shape.
	Base        float64
	Amplitude   float64
	PeriodHours float64 // zero disables the periodic component
	Noise       Bounds  // uniform additive noise
	Limits      Bounds  // physical clamp applied after noise

	// Episodic drops (pollution events). Zero probability disables them.
	EventProbability float64
	EventDrop        Bounds

	// Fallback scoring.
	Plausible Bounds
	Center    float64
	Spread    float64

	// Baseline seeding: N(BaselineMean, BaselineStdDev) clipped to BaselineClip.
	BaselineMean   float64
	BaselineStdDev float64
	BaselineClip   Bounds
}

var unbounded = Bounds{Min: math.Inf(-1), Max: math.Inf(1)}

var profiles = map[Category]Profile{
	TideGauge: {
		Category:       TideGauge,
		Unit:           "m",
		Base:           1.2,
		Amplitude:      0.8,
		PeriodHours:    12.42,
		Noise:          Bounds{Min: -0.2, Max: 0.2},
		Limits:         unbounded,
		Plausible:      Bounds{Min: -1.0, Max: 3.0},
		Center:         1.2,
		Spread:         2.0,
		BaselineMean:   1.2,
		BaselineStdDev: 0.4,
		BaselineClip:   Bounds{Min: -0.5, Max: 2.5},
	},
	WeatherStation: {
		Category:       WeatherStation,
		Unit:           "km/h",
		Base:           15.0,
		Amplitude:      5,
		PeriodHours:    24,
		Noise:          Bounds{Min: -3, Max: 8},
		Limits:         Bounds{Min: 0, Max: math.Inf(1)},
		Plausible:      Bounds{Min: 0, Max: 80},
		Center:         15.0,
		Spread:         30.0,
		BaselineMean:   15,
		BaselineStdDev: 8,
		BaselineClip:   Bounds{Min: 0, Max: 50},
	},
	WaterQuality: {
		Category:         WaterQuality,
		Unit:             "index",
		Base:             75.0,
		Noise:            Bounds{Min: -5, Max: 5},
		Limits:           Bounds{Min: 0, Max: 100},
		EventProbability: 0.05,
		EventDrop:        Bounds{Min: 20, Max: 40},
		Plausible:        Bounds{Min: 0, Max: 100},
		Center:           75.0,
		Spread:           25.0,
		BaselineMean:     75,
		BaselineStdDev:   10,
		BaselineClip:     Bounds{Min: 0, Max: 100},
	},
}

// ProfileFor returns the constants for c. The boolean is false for values
// outside the enumeration.
func ProfileFor(c Category) (Profile, bool) {
	p, ok := profiles[c]
	return p, ok
}

// Periodic returns the deterministic periodic component of the signal at the
// given number of hours since the generator started.
func (p Profile) Periodic(hours float64) float64 {
	if p.PeriodHours <= 0 {
		return 0
	}
	return p.Amplitude * math.Sin(2*math.Pi*hours/p.PeriodHours)
}
