package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// hazardNamespace scopes hazard IDs so they never collide with other
// name-based UUIDs derived from the same inputs.
var hazardNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:coastal-sensor-service:hazard"))

// ReadingID produces a deterministic ID from the reading's key fields.
// Replaying the same tick yields the same ID, so downstream upserts stay
// idempotent.
func ReadingID(sensorID string, ts time.Time, value float64) string {
	input := fmt.Sprintf("%s|%s|%.2f", sensorID, ts.UTC().Format(time.RFC3339Nano), value)
	hash := sha256.Sum256([]byte(input))
	return sensorID + "-" + hex.EncodeToString(hash[:8])
}

// HazardID produces a name-based UUID from the hazard's key fields.
func HazardID(t HazardType, geo Geo, ts time.Time) string {
	input := fmt.Sprintf("%s|%.6f|%.6f|%s", t, geo.Lat, geo.Lon, ts.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(hazardNamespace, []byte(input)).String()
}

// SerializeReading marshals a scored reading into an OutputEvent for topic.
func SerializeReading(r ScoredReading, topic string) (OutputEvent, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize reading %s: %w", r.ID, err)
	}
	return OutputEvent{
		Topic: topic,
		Key:   []byte(r.SensorID),
		Value: data,
		Headers: map[string]string{
			"event_type":   "reading",
			"category":     r.Category.String(),
			"is_anomaly":   fmt.Sprintf("%t", r.Anomaly.IsAnomaly),
			"generated_at": clock.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// SerializeHazard marshals a hazard event into an OutputEvent for topic.
func SerializeHazard(h HazardEvent, topic string) (OutputEvent, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize hazard %s: %w", h.ID, err)
	}
	return OutputEvent{
		Topic: topic,
		Key:   []byte(h.ID),
		Value: data,
		Headers: map[string]string{
			"event_type":   "hazard",
			"hazard_type":  h.Type.String(),
			"severity":     h.Severity.String(),
			"generated_at": clock.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}
