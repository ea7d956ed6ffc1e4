package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coastal_sensor"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// simulator, the anomaly engine and the publishing pipeline.
type Metrics struct {
	// Generation metrics.
	ReadingsGenerated *prometheus.CounterVec // labels: category
	HazardsGenerated  *prometheus.CounterVec // labels: hazard_type, severity

	// Anomaly engine metrics.
	ReadingsScored        *prometheus.CounterVec   // labels: category, path={model,fallback,rejected}
	AnomaliesDetected     *prometheus.CounterVec   // labels: category, path
	AnomalyScore          *prometheus.HistogramVec // labels: category
	ModelTrainings        *prometheus.CounterVec   // labels: category, outcome={success,failure,insufficient,stale}
	ModelTrainingDuration *prometheus.HistogramVec // labels: category
	ModelTrained          *prometheus.GaugeVec     // labels: category
	HistorySize           *prometheus.GaugeVec     // labels: category

	// Pipeline metrics.
	MessagesProduced       *prometheus.CounterVec // labels: event_type={reading,hazard}
	SerializeErrors        prometheus.Counter
	LoadErrors             prometheus.Counter
	PipelineRunning        prometheus.Gauge
	BatchSize              prometheus.Histogram
	TickProcessingDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry creates metrics registered with reg. Offline tools
// use a private registry so they never touch the global one.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_generated_total",
			Help:      "Synthetic readings generated per sensor category.",
		}, []string{"category"}),
		HazardsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazards_generated_total",
			Help:      "Hazard alerts generated by type and severity.",
		}, []string{"hazard_type", "severity"}),
		ReadingsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_scored_total",
			Help:      "Values scored by category and detection path.",
		}, []string{"category", "path"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Values flagged anomalous by category and detection path.",
		}, []string{"category", "path"}),
		AnomalyScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "anomaly_score",
			Help:      "Distribution of normalized anomaly scores.",
			Buckets:   []float64{0, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		}, []string{"category"}),
		ModelTrainings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_trainings_total",
			Help:      "Outlier model training attempts by category and outcome.",
		}, []string{"category", "outcome"}),
		ModelTrainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_training_duration_seconds",
			Help:      "Duration of a single category model fit.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"category"}),
		ModelTrained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_trained",
			Help:      "1 when the category is scored by a fitted model, 0 when it uses the fallback.",
		}, []string{"category"}),
		HistorySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Values currently held in the category's rolling history.",
		}, []string{"category"}),
		MessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Messages written to the sink topics.",
		}, []string{"event_type"}),
		SerializeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serialize_errors_total",
			Help:      "Events dropped because they could not be serialized.",
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed batch writes to Kafka.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of events per batch written to Kafka.",
			Buckets:   []float64{1, 2, 4, 6, 8, 12, 16, 32},
		}),
		TickProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_processing_duration_seconds",
			Help:      "Duration of a complete generate-score-load tick.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when hazard geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsGenerated,
		m.HazardsGenerated,
		m.ReadingsScored,
		m.AnomaliesDetected,
		m.AnomalyScore,
		m.ModelTrainings,
		m.ModelTrainingDuration,
		m.ModelTrained,
		m.HistorySize,
		m.MessagesProduced,
		m.SerializeErrors,
		m.LoadErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.TickProcessingDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
