// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_copilot"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioFramesReceived  prometheus.Counter
	AudioSecondsCaptured prometheus.Counter
	ActivityLevel        prometheus.Gauge

	// Segmenter metrics
	Boundaries *prometheus.CounterVec

	// Turn metrics
	TurnsCreated   *prometheus.CounterVec
	TurnsCompleted *prometheus.CounterVec
	TurnsDiscarded *prometheus.CounterVec
	StaleResults   prometheus.Counter

	// Backend metrics
	BackendLatency *prometheus.HistogramVec
	BackendErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Connection metrics (gRPC streams, websockets)
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  *prometheus.GaugeVec
	ConnectionsFailed  *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec
	GRPCCalls          *prometheus.CounterVec

	// Backpressure metrics
	LimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
// A nil registerer creates unregistered metrics, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of copilot sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently running copilot sessions",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that ended with an error",
		}, []string{"kind"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of copilot sessions in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),

		// Audio metrics
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames measured by the level monitor",
		}),
		AudioSecondsCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_captured_total",
			Help:      "Total seconds of audio captured",
		}),
		ActivityLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_level",
			Help:      "Most recent voice activity level",
		}),

		// Segmenter metrics
		Boundaries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundaries_total",
			Help:      "Turn boundaries by outcome (submitted, queued, dropped, too_short)",
		}, []string{"outcome"}),

		// Turn metrics
		TurnsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_created_total",
			Help:      "Total number of turns created",
		}, []string{"mode"}),
		TurnsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Total number of turns completed",
		}, []string{"mode"}),
		TurnsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_discarded_total",
			Help:      "Total number of turns discarded",
		}, []string{"reason"}),
		StaleResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Results that arrived for a turn that is no longer active",
		}),

		// Backend metrics
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Turn analysis latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"backend"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total number of AI backend errors",
		}, []string{"backend", "kind"}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Connection metrics
		ConnectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of client connections (grpc, ws_audio, ws_events)",
		}, []string{"kind"}),
		ConnectionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open client connections",
		}, []string{"kind"}),
		ConnectionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_failed_total",
			Help:      "Total number of connections that ended with an error",
		}, []string{"kind"}),
		ConnectionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Duration of client connections in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 1800},
		}, []string{"kind"}),
		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of unary gRPC calls by method and status code",
		}, []string{"method", "code"}),

		// Backpressure metrics
		LimitExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_exceeded_total",
			Help:      "Total number of times turn limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordSessionStart records a copilot session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending. errKind is empty on a clean end.
func (m *Metrics) RecordSessionEnd(errKind string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if errKind != "" {
		m.SessionsFailed.WithLabelValues(errKind).Inc()
	}
}

// RecordFrame records one measured audio frame and its activity level.
func (m *Metrics) RecordFrame(seconds, level float64) {
	m.AudioFramesReceived.Inc()
	m.AudioSecondsCaptured.Add(seconds)
	m.ActivityLevel.Set(level)
}

// RecordBoundary records a segmenter boundary and what became of it.
func (m *Metrics) RecordBoundary(outcome string) {
	m.Boundaries.WithLabelValues(outcome).Inc()
}

// RecordTurnCreated records a new turn.
func (m *Metrics) RecordTurnCreated(mode string) {
	m.TurnsCreated.WithLabelValues(mode).Inc()
}

// RecordTurnCompleted records a turn completing.
func (m *Metrics) RecordTurnCompleted(mode string) {
	m.TurnsCompleted.WithLabelValues(mode).Inc()
}

// RecordTurnDiscarded records a turn being discarded.
func (m *Metrics) RecordTurnDiscarded(reason string) {
	m.TurnsDiscarded.WithLabelValues(reason).Inc()
}

// RecordStaleResult records a result for a turn that is no longer active.
func (m *Metrics) RecordStaleResult() {
	m.StaleResults.Inc()
}

// RecordBackendLatency records how long a backend took to answer a turn.
func (m *Metrics) RecordBackendLatency(backend string, seconds float64) {
	m.BackendLatency.WithLabelValues(backend).Observe(seconds)
}

// RecordBackendError records an AI backend error.
func (m *Metrics) RecordBackendError(backend, kind string) {
	m.BackendErrors.WithLabelValues(backend, kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordConnectionStart records a client connection opening.
func (m *Metrics) RecordConnectionStart(kind string) {
	m.ConnectionsTotal.WithLabelValues(kind).Inc()
	m.ConnectionsActive.WithLabelValues(kind).Inc()
}

// RecordConnectionEnd records a client connection closing.
func (m *Metrics) RecordConnectionEnd(kind string, success bool, durationSeconds float64) {
	m.ConnectionsActive.WithLabelValues(kind).Dec()
	m.ConnectionDuration.WithLabelValues(kind).Observe(durationSeconds)
	if !success {
		m.ConnectionsFailed.WithLabelValues(kind).Inc()
	}
}

// RecordGRPCCall records a completed unary gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

// RecordLimitExceeded records when a turn limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.LimitExceeded.WithLabelValues(limitType).Inc()
}
