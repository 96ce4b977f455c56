package session

import (
	"context"
	"errors"
	"time"
)

// ErrBusinessNotFound is returned by Directory implementations when the
// callee number maps to no active business.
var ErrBusinessNotFound = errors.New("phone number not configured for any business")

// BusinessContext is everything a call session needs about the answering
// business, resolved once at session load.
type BusinessContext struct {
	BusinessID   string
	Profile      Profile
	Config       BusinessConfig
	SystemPrompt string // empty when no stored prompt exists
}

// Directory resolves the business answering a given phone number.
type Directory interface {
	ResolveBusiness(ctx context.Context, phoneNumber string) (BusinessContext, error)
}

// CallRecord describes a call at creation time.
type CallRecord struct {
	RecordID    string            `json:"recordId"`
	CallID      string            `json:"callId"`
	BusinessID  string            `json:"businessId"`
	CallerPhone string            `json:"callerPhone"`
	CalleePhone string            `json:"calleePhone"`
	Direction   string            `json:"direction"`
	StartedAt   time.Time         `json:"startedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TranscriptRecord describes a finalized call's transcript and outcome.
type TranscriptRecord struct {
	CallID          string    `json:"callId"`
	BusinessID      string    `json:"businessId"`
	Content         string    `json:"content"`
	Summary         string    `json:"summary"`
	Outcome         string    `json:"outcome"`
	TurnCount       int       `json:"turnCount"`
	DurationSeconds int       `json:"durationSeconds"`
	EndedReason     string    `json:"endedReason"`
	EndedAt         time.Time `json:"endedAt"`
}

// Store persists call lifecycle records. Implementations are
// fire-and-forget collaborators: the bridge logs and swallows failures.
type Store interface {
	CreateCallRecord(ctx context.Context, rec CallRecord) error
	AppendTranscript(ctx context.Context, rec TranscriptRecord) error
	UpdateOutcome(ctx context.Context, callID, outcome, summary string) error
	MarkFailed(ctx context.Context, callID, reason string) error
}

// Summarizer produces a short summary of a finished call transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}
