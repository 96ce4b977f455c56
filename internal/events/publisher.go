// Package events publishes call lifecycle and transcript events to
// Kafka. The publisher doubles as the session store: downstream
// consumers own durable persistence.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-call-bridge-service/internal/observability/metrics"
	"ai-call-bridge-service/internal/session"
)

// Publisher publishes call events to separate lifecycle and transcript
// topics. With Kafka disabled it runs in log-only mode, which keeps
// local development working without a broker.
type Publisher struct {
	writerLifecycle   *kafka.Writer
	writerTranscripts *kafka.Writer
	principal         string
	topicLifecycle    string
	topicTranscripts  string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicLifecycle   string
	TopicTranscripts string
	Principal        string
	Enabled          bool
}

// New creates a publisher with separate topics for lifecycle and
// transcript events.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicLifecycle:   cfg.TopicLifecycle,
			topicTranscripts: cfg.TopicTranscripts,
			enabled:          false,
			metrics:          m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerLifecycle := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicLifecycle,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerTranscripts := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicTranscripts,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicLifecycle", cfg.TopicLifecycle).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerLifecycle:   writerLifecycle,
		writerTranscripts: writerTranscripts,
		principal:         cfg.Principal,
		topicLifecycle:    cfg.TopicLifecycle,
		topicTranscripts:  cfg.TopicTranscripts,
		enabled:           true,
		metrics:           m,
	}
}

type lifecycleEvent struct {
	EventType  string    `json:"eventType"`
	CallID     string    `json:"callId"`
	BusinessID string    `json:"businessId,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	Record *session.CallRecord `json:"record,omitempty"`
}

type transcriptEvent struct {
	EventType string                   `json:"eventType"`
	CallID    string                   `json:"callId"`
	Timestamp time.Time                `json:"timestamp"`
	Record    session.TranscriptRecord `json:"record"`
}

// CreateCallRecord emits a call.started event keyed by call ID.
func (p *Publisher) CreateCallRecord(ctx context.Context, rec session.CallRecord) error {
	return p.publish(ctx, p.writerLifecycle, p.topicLifecycle, "call.started", rec.CallID, lifecycleEvent{
		EventType:  "call.started",
		CallID:     rec.CallID,
		BusinessID: rec.BusinessID,
		Timestamp:  rec.StartedAt,
		Record:     &rec,
	})
}

// AppendTranscript emits a call.transcript event with the full
// transcript record.
func (p *Publisher) AppendTranscript(ctx context.Context, rec session.TranscriptRecord) error {
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, "call.transcript", rec.CallID, transcriptEvent{
		EventType: "call.transcript",
		CallID:    rec.CallID,
		Timestamp: rec.EndedAt,
		Record:    rec,
	})
}

// UpdateOutcome emits a call.completed event with the classified
// outcome and summary.
func (p *Publisher) UpdateOutcome(ctx context.Context, callID, outcome, summary string) error {
	return p.publish(ctx, p.writerLifecycle, p.topicLifecycle, "call.completed", callID, lifecycleEvent{
		EventType: "call.completed",
		CallID:    callID,
		Outcome:   outcome,
		Summary:   summary,
		Timestamp: time.Now(),
	})
}

// MarkFailed emits a call.failed event.
func (p *Publisher) MarkFailed(ctx context.Context, callID, reason string) error {
	return p.publish(ctx, p.writerLifecycle, p.topicLifecycle, "call.failed", callID, lifecycleEvent{
		EventType: "call.failed",
		CallID:    callID,
		Outcome:   "system_error",
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// publish writes one event to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerLifecycle != nil {
		if e := p.writerLifecycle.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing lifecycle writer")
			err = e
		}
	}
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcripts writer")
			err = e
		}
	}
	return err
}
