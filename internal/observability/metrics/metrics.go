// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_call_bridge"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Call metrics
	CallsTotal    prometheus.Counter
	CallsActive   prometheus.Gauge
	CallsSuccess  prometheus.Counter
	CallsFailed   prometheus.Counter
	CallDuration  prometheus.Histogram
	CallsRejected *prometheus.CounterVec

	// Audio metrics
	AudioFramesInbound  prometheus.Counter
	AudioFramesOutbound prometheus.Counter
	AudioFramesBuffered prometheus.Counter

	// Conversation metrics
	BargeIns         prometheus.Counter
	TranscriptTurns  *prometheus.CounterVec
	OutcomesRecorded *prometheus.CounterVec

	// Tool dispatch metrics
	ToolCallsTotal  *prometheus.CounterVec
	ToolCallErrors  *prometheus.CounterVec
	ToolCallLatency *prometheus.HistogramVec

	// Knowledge retrieval metrics
	KnowledgeSearches     *prometheus.CounterVec
	KnowledgeSearchErrors prometheus.Counter
	KnowledgeLatency      prometheus.Histogram
	EmbedCacheHits        prometheus.Counter
	EmbedCacheMisses      prometheus.Counter

	// Token metrics
	TokenVerifyFailures *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of media streams started",
		}),
		CallsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of currently bridged calls",
		}),
		CallsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_success_total",
			Help:      "Total number of calls finalized normally",
		}),
		CallsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_failed_total",
			Help:      "Total number of calls that ended in failure",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of bridged calls in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		CallsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_rejected_total",
			Help:      "Total number of media streams rejected before bridging",
		}, []string{"reason"}),

		AudioFramesInbound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_inbound_total",
			Help:      "Total caller audio frames forwarded to the engine",
		}),
		AudioFramesOutbound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_outbound_total",
			Help:      "Total engine audio frames paced out to the caller",
		}),
		AudioFramesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_buffered_total",
			Help:      "Total audio frames buffered before engine initialization",
		}),

		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of caller interruptions handled",
		}),
		TranscriptTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Total transcript turns recorded",
		}, []string{"speaker"}),
		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_outcomes_total",
			Help:      "Total finalized calls by classified outcome",
		}, []string{"outcome"}),

		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations dispatched",
		}, []string{"tool"}),
		ToolCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_call_errors_total",
			Help:      "Total tool invocations that fell back to the failure payload",
		}, []string{"tool"}),
		ToolCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_latency_seconds",
			Help:      "Tool webhook round-trip latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"tool"}),

		KnowledgeSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_searches_total",
			Help:      "Total knowledge base searches by method",
		}, []string{"method"}),
		KnowledgeSearchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_search_errors_total",
			Help:      "Total knowledge searches that failed entirely",
		}),
		KnowledgeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "knowledge_search_latency_seconds",
			Help:      "Knowledge search latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 3},
		}),
		EmbedCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_cache_hits_total",
			Help:      "Total embedding cache hits",
		}),
		EmbedCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_cache_misses_total",
			Help:      "Total embedding cache misses",
		}),

		TokenVerifyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verify_failures_total",
			Help:      "Total admission token verification failures",
		}, []string{"reason"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordCallStart records a new bridged call starting.
func (m *Metrics) RecordCallStart() {
	m.CallsTotal.Inc()
	m.CallsActive.Inc()
}

// RecordCallEnd records a call ending.
func (m *Metrics) RecordCallEnd(success bool, durationSeconds float64) {
	m.CallsActive.Dec()
	m.CallDuration.Observe(durationSeconds)
	if success {
		m.CallsSuccess.Inc()
	} else {
		m.CallsFailed.Inc()
	}
}

// RecordCallRejected records a stream rejected before bridging.
func (m *Metrics) RecordCallRejected(reason string) {
	m.CallsRejected.WithLabelValues(reason).Inc()
}

// RecordInboundAudio records a caller audio frame forwarded to the engine.
func (m *Metrics) RecordInboundAudio() {
	m.AudioFramesInbound.Inc()
}

// RecordOutboundAudio records an engine audio frame paced out to the caller.
func (m *Metrics) RecordOutboundAudio() {
	m.AudioFramesOutbound.Inc()
}

// RecordBufferedAudio records a frame buffered before engine initialization.
func (m *Metrics) RecordBufferedAudio() {
	m.AudioFramesBuffered.Inc()
}

// RecordBargeIn records a caller interruption.
func (m *Metrics) RecordBargeIn() {
	m.BargeIns.Inc()
}

// RecordTranscriptTurn records a transcript turn by speaker.
func (m *Metrics) RecordTranscriptTurn(speaker string) {
	m.TranscriptTurns.WithLabelValues(speaker).Inc()
}

// RecordOutcome records a finalized call's classified outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.OutcomesRecorded.WithLabelValues(outcome).Inc()
}

// RecordToolCall records a tool dispatch attempt.
func (m *Metrics) RecordToolCall(tool string, failed bool, latencySeconds float64) {
	m.ToolCallsTotal.WithLabelValues(tool).Inc()
	m.ToolCallLatency.WithLabelValues(tool).Observe(latencySeconds)
	if failed {
		m.ToolCallErrors.WithLabelValues(tool).Inc()
	}
}

// RecordKnowledgeSearch records a knowledge search by method.
func (m *Metrics) RecordKnowledgeSearch(method string, latencySeconds float64) {
	m.KnowledgeSearches.WithLabelValues(method).Inc()
	m.KnowledgeLatency.Observe(latencySeconds)
}

// RecordKnowledgeSearchError records a knowledge search that failed entirely.
func (m *Metrics) RecordKnowledgeSearchError() {
	m.KnowledgeSearchErrors.Inc()
}

// RecordEmbedCache records an embedding cache lookup.
func (m *Metrics) RecordEmbedCache(hit bool) {
	if hit {
		m.EmbedCacheHits.Inc()
	} else {
		m.EmbedCacheMisses.Inc()
	}
}

// RecordTokenFailure records an admission token verification failure.
func (m *Metrics) RecordTokenFailure(reason string) {
	m.TokenVerifyFailures.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
