package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"tide_gauge", TideGauge, true},
		{"weather_station", WeatherStation, true},
		{"water_quality", WaterQuality, true},
		{"nonexistent_type", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategory_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		C Category `json:"c"`
	}{C: WeatherStation})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":"weather_station"}`, string(data))

	var out struct {
		C Category `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"c":"water_quality"}`), &out))
	assert.Equal(t, WaterQuality, out.C)

	assert.Error(t, json.Unmarshal([]byte(`{"c":"volcano"}`), &out))
}

func TestCategory_UnknownValue(t *testing.T) {
	c := Category(42)
	assert.False(t, c.Valid())
	assert.Equal(t, "category(42)", c.String())

	_, ok := ProfileFor(c)
	assert.False(t, ok)

	_, err := c.MarshalText()
	assert.Error(t, err)
}

func TestProfiles_CoverEveryCategory(t *testing.T) {
	for _, c := range Categories {
		p, ok := ProfileFor(c)
		require.True(t, ok, c.String())
		assert.Equal(t, c, p.Category)
		assert.NotEmpty(t, p.Unit)
		assert.Positive(t, p.Spread)
		assert.Less(t, p.Plausible.Min, p.Plausible.Max)
	}
}

func TestProfile_Periodic(t *testing.T) {
	tide, _ := ProfileFor(TideGauge)
	assert.InDelta(t, 0, tide.Periodic(0), 1e-12)
	assert.InDelta(t, 0.8, tide.Periodic(12.42/4), 1e-12)
	assert.InDelta(t, tide.Periodic(3.3), tide.Periodic(3.3+12.42), 1e-9)

	water, _ := ProfileFor(WaterQuality)
	assert.Zero(t, water.Periodic(7))
}

func TestBounds(t *testing.T) {
	b := Bounds{Min: 0, Max: 100}
	assert.True(t, b.Contains(0))
	assert.True(t, b.Contains(100))
	assert.False(t, b.Contains(-0.01))
	assert.InDelta(t, 100.0, b.Clamp(140), 1e-12)
	assert.InDelta(t, 0.0, b.Clamp(-3), 1e-12)

	weather, _ := ProfileFor(WeatherStation)
	assert.InDelta(t, 1e6, weather.Limits.Clamp(1e6), 1e-6, "no upper limit on wind speed")
	assert.True(t, math.IsInf(weather.Limits.Max, 1))
}

func TestSeverity_Ordered(t *testing.T) {
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
	assert.Less(t, SeverityHigh, SeverityCritical)

	s, ok := ParseSeverity("critical")
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, s)
}

func TestHazardRules(t *testing.T) {
	rules := HazardRules()
	require.Len(t, rules, 4)

	want := map[HazardType]float64{Storm: 0.10, Pollution: 0.15, Erosion: 0.08, IllegalActivity: 0.05}
	for _, r := range rules {
		assert.InDelta(t, want[r.Type], r.Probability, 1e-12, r.Type.String())
		assert.NotEmpty(t, r.Severities)
		assert.NotEmpty(t, r.Description)
	}

	rules[0].Severities[0] = SeverityLow
	assert.Equal(t, SeverityMedium, HazardRules()[0].Severities[0], "HazardRules returns a copy")
}
