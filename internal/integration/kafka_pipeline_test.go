//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/adapter/kafka"
	"github.com/couchcryptid/coastal-sensor-service/internal/anomaly"
	"github.com/couchcryptid/coastal-sensor-service/internal/config"
	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/observability"
	"github.com/couchcryptid/coastal-sensor-service/internal/pipeline"
	sensorsignal "github.com/couchcryptid/coastal-sensor-service/internal/signal"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testReadingsTopic = "test-sensor-readings"
	testHazardsTopic  = "test-hazard-alerts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("coastal-sensor-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type received struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func readN(ctx context.Context, t *testing.T, broker, topic string, n int) []received {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-%s-%d", topic, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	out := make([]received, 0, n)
	for len(out) < n {
		readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		cancel()
		require.NoError(t, err, "read from %s", topic)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out = append(out, received{Key: string(msg.Key), Value: msg.Value, Headers: headers})
	}
	return out
}

func testConfig(broker string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReadingsTopic: testReadingsTopic,
		KafkaHazardsTopic:  testHazardsTopic,
		BatchSize:          50,
		BatchFlushInterval: 100 * time.Millisecond,
	}
}

// TestWriterRoutesByTopic verifies that one Writer delivers each event to the
// topic it names.
func TestWriterRoutesByTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testHazardsTopic)

	writer := kafka.NewWriter(testConfig(broker), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	ts := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	reading, err := domain.SerializeReading(domain.ScoredReading{
		Reading: domain.Reading{ID: "TG001-x", SensorID: "TG001", Category: domain.TideGauge, Value: 1.4, Unit: "m", Timestamp: ts},
		Path:    domain.PathFallback,
	}, testReadingsTopic)
	require.NoError(t, err)
	hazard, err := domain.SerializeHazard(domain.HazardEvent{
		ID: "hz-1", Type: domain.Erosion, Severity: domain.SeverityLow, Timestamp: ts, Active: true,
	}, testHazardsTopic)
	require.NoError(t, err)

	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{reading, hazard}))

	r := readN(ctx, t, broker, testReadingsTopic, 1)[0]
	assert.Equal(t, "TG001", r.Key)
	assert.Equal(t, "reading", r.Headers["event_type"])
	assert.Equal(t, "tide_gauge", r.Headers["category"])

	h := readN(ctx, t, broker, testHazardsTopic, 1)[0]
	assert.Equal(t, "hz-1", h.Key)
	assert.Equal(t, "erosion", h.Headers["hazard_type"])
	assert.Equal(t, "low", h.Headers["severity"])
}

// TestPipelineEndToEnd runs generator, engine, and writer against a real
// broker and checks every published reading carries a model score.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testHazardsTopic)

	cfg := testConfig(broker)
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC))
	generator := sensorsignal.New(domain.DefaultTopology(), sensorsignal.WithClock(clock), sensorsignal.WithSeed(11))
	engine := anomaly.New(
		anomaly.WithBaseline(sensorsignal.NewRand(12), 100),
		anomaly.WithClock(clock),
		anomaly.WithLogger(discardLogger()),
	)
	loader := &countingLoader{inner: writer}
	p := pipeline.New(generator, engine, loader, discardLogger(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock),
		pipeline.WithTopics(pipeline.Topics{Readings: cfg.KafkaReadingsTopic, Hazards: cfg.KafkaHazardsTopic}),
	)

	const ticks = 3
	for range ticks {
		require.NoError(t, p.Tick(ctx))
		clock.Advance(10 * time.Second)
	}
	require.NoError(t, p.CheckReadiness(ctx))

	sensors := len(domain.DefaultTopology())
	msgs := readN(ctx, t, broker, testReadingsTopic, ticks*sensors)

	perSensor := map[string]int{}
	for _, m := range msgs {
		var r domain.ScoredReading
		require.NoError(t, json.Unmarshal(m.Value, &r))
		perSensor[r.SensorID]++

		assert.Equal(t, r.SensorID, m.Key)
		assert.Equal(t, domain.PathModel, r.Path, "baseline engine scores on the model path")
		assert.GreaterOrEqual(t, r.Anomaly.Score, 0.0)
		assert.Equal(t, strconv.FormatBool(r.Anomaly.IsAnomaly), m.Headers["is_anomaly"])
	}
	for _, s := range domain.DefaultTopology() {
		assert.Equal(t, ticks, perSensor[s.ID], s.ID)
	}

	// Sweep until at least one hazard fires; roughly a third of sweeps do.
	for range 100 {
		require.NoError(t, p.SweepHazards(ctx))
		if loader.hazards > 0 {
			break
		}
	}
	require.Positive(t, loader.hazards, "no hazard fired in 100 sweeps")
	hz := readN(ctx, t, broker, testHazardsTopic, 1)[0]
	var h domain.HazardEvent
	require.NoError(t, json.Unmarshal(hz.Value, &h))
	assert.Equal(t, h.ID, hz.Key)
	assert.True(t, h.Active)
	assert.NotEmpty(t, h.Description)
}

// countingLoader records how many hazard events reached the broker.
type countingLoader struct {
	inner   pipeline.BatchLoader
	hazards int
}

func (c *countingLoader) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if err := c.inner.LoadBatch(ctx, events); err != nil {
		return err
	}
	for _, ev := range events {
		if ev.Topic == testHazardsTopic {
			c.hazards++
		}
	}
	return nil
}
