package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-call-bridge-service/internal/session"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			require.NotNil(t, p)
			assert.False(t, p.enabled, "publisher should be disabled")
			assert.Nil(t, p.writerLifecycle)
			assert.Nil(t, p.writerTranscripts)
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		TopicLifecycle:   "call.lifecycle",
		TopicTranscripts: "call.transcripts",
		Principal:        "test-principal",
	})

	assert.Equal(t, "test-principal", p.principal)
	assert.Equal(t, "call.lifecycle", p.topicLifecycle)
	assert.Equal(t, "call.transcripts", p.topicTranscripts)
}

func TestPublisher_StoreMethodsDisabled(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	assert.NoError(t, p.CreateCallRecord(ctx, session.CallRecord{
		CallID:      "CA123",
		BusinessID:  "biz-1",
		CallerPhone: "+15551230000",
		StartedAt:   time.Now(),
	}))
	assert.NoError(t, p.AppendTranscript(ctx, session.TranscriptRecord{
		CallID:  "CA123",
		Content: "[12:00:00] Caller: hello",
		Outcome: "general_inquiry",
		EndedAt: time.Now(),
	}))
	assert.NoError(t, p.UpdateOutcome(ctx, "CA123", "booking_confirmed", "Caller booked a haircut."))
	assert.NoError(t, p.MarkFailed(ctx, "CA123", "engine connect failed"))
}

func TestPublisher_ImplementsStore(t *testing.T) {
	var _ session.Store = New(&Config{Enabled: false})
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})
	assert.NoError(t, p.Close())
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{}
	assert.NoError(t, p.Close())
}
