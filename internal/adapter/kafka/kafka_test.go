package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/config"
	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessage(t *testing.T) {
	event := domain.OutputEvent{
		Topic: "sensor-readings",
		Key:   []byte("TG001"),
		Value: []byte(`{"id":"TG001-abc"}`),
		Headers: map[string]string{
			"is_anomaly":   "false",
			"event_type":   "reading",
			"category":     "tide_gauge",
			"generated_at": "2024-04-26T15:10:00Z",
		},
	}

	msg := toMessage(event)

	assert.Equal(t, "sensor-readings", msg.Topic)
	assert.Equal(t, []byte("TG001"), msg.Key)
	assert.JSONEq(t, `{"id":"TG001-abc"}`, string(msg.Value))
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, []kafkago.Header{
		{Key: "category", Value: []byte("tide_gauge")},
		{Key: "event_type", Value: []byte("reading")},
		{Key: "generated_at", Value: []byte("2024-04-26T15:10:00Z")},
		{Key: "is_anomaly", Value: []byte("false")},
	}, msg.Headers)
}

func TestToMessage_NoHeaders(t *testing.T) {
	msg := toMessage(domain.OutputEvent{Topic: "hazard-alerts", Key: []byte("k")})
	assert.Empty(t, msg.Headers)
}

func TestNewWriter_UsesConfig(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers:       []string{"broker1:9092", "broker2:9092"},
		BatchSize:          25,
		BatchFlushInterval: 250 * time.Millisecond,
	}

	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Empty(t, w.writer.Topic, "topic is set per message")
	assert.Equal(t, 25, w.writer.BatchSize)
	assert.Equal(t, 250*time.Millisecond, w.writer.BatchTimeout)
	assert.Equal(t, kafkago.RequireAll, w.writer.RequiredAcks)
	assert.Equal(t, "broker1:9092,broker2:9092", w.writer.Addr.String())
	require.NoError(t, w.Close())
}

func TestLoadBatch_EmptyIsNoop(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:1"}}, slog.Default())
	defer w.Close()

	require.NoError(t, w.LoadBatch(context.Background(), nil))
}

func TestLoadBatch_RejectsMissingTopic(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:1"}}, slog.Default())
	defer w.Close()

	err := w.LoadBatch(context.Background(), []domain.OutputEvent{{Key: []byte("k")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no topic")
}
