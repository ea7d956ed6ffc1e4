package domain

import (
	"math"
	"time"
)

// Reading is a single synthesized sensor measurement. Ownership passes to the
// caller as soon as it is generated.
type Reading struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensor_id"`
	SensorName string    `json:"sensor_name"`
	Category   Category  `json:"sensor_type"`
	Geo        Geo       `json:"geo"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// HazardEvent is a stochastic hazard alert placed near a topology sensor.
type HazardEvent struct {
	ID          string     `json:"id"`
	Type        HazardType `json:"hazard_type"`
	Severity    Severity   `json:"severity"`
	Geo         Geo        `json:"geo"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
	Active      bool       `json:"is_active"`

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"
}

// ScoringPath records which detector produced an AnomalyResult.
type ScoringPath string

const (
	PathModel    ScoringPath = "model"
	PathFallback ScoringPath = "fallback"
	PathRejected ScoringPath = "rejected"
)

// AnomalyResult is the outcome of scoring one value. Score is never negative.
type AnomalyResult struct {
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// NewAnomalyResult clamps score at zero and rounds it to three decimals.
// Negative zero is normalized so it never serializes as -0.
func NewAnomalyResult(score float64, anomalous bool) AnomalyResult {
	if math.IsNaN(score) || score <= 0 {
		score = 0
	}
	return AnomalyResult{Score: math.Round(score*1000) / 1000, IsAnomaly: anomalous}
}

// ScoredReading is a reading together with its anomaly result, the record
// handed to downstream storage.
type ScoredReading struct {
	Reading
	Anomaly AnomalyResult `json:"anomaly"`
	Path    ScoringPath   `json:"scoring_path"`
}

// OutputEvent is the serialized form destined for a sink topic.
type OutputEvent struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}
