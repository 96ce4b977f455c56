// Package session models a single phone call: the resolved business
// context, the running transcript, and the persisted outcome.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-call-bridge-service/internal/knowledge"
	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/observability/metrics"
)

// Speaker identifies who produced a transcript turn.
const (
	SpeakerCaller    = "user"
	SpeakerAssistant = "assistant"
)

type transcriptEntry struct {
	Speaker string
	Text    string
	At      time.Time
}

// Dependencies are the collaborators a Session needs beyond its own
// identity. Store and Summarizer may be nil in tests.
type Dependencies struct {
	Store         Store
	Summarizer    Summarizer
	Searcher      *knowledge.Searcher
	DefaultVoice  string
	ContextWindow int
	DedupeWindow  int
}

// Session tracks one call from admission to finalize. All transcript
// and lifecycle mutation goes through the mutex; finalize is idempotent
// so teardown can race the remote hangup safely.
type Session struct {
	CallID    string
	From      string
	To        string
	Direction string
	RecordID  string
	StartedAt time.Time

	BusinessID   string
	Profile      Profile
	Config       BusinessConfig
	SystemPrompt string

	EngineSessionID string

	store      Store
	summarizer Summarizer
	searcher   *knowledge.Searcher
	metrics    *metrics.Metrics
	now        func() time.Time

	defaultVoice  string
	contextWindow int
	dedupeWindow  int

	mu         sync.Mutex
	transcript []transcriptEntry
	context    []knowledge.ContextTurn
	finalized  bool
}

// New creates a session for an admitted call. Business context is not
// resolved until LoadContext.
func New(callID, from, to, direction string, deps Dependencies) *Session {
	if direction == "" {
		direction = "inbound"
	}
	if deps.ContextWindow <= 0 {
		deps.ContextWindow = 20
	}
	if deps.DedupeWindow <= 0 {
		deps.DedupeWindow = 3
	}
	return &Session{
		CallID:        callID,
		From:          from,
		To:            to,
		Direction:     direction,
		RecordID:      uuid.NewString(),
		StartedAt:     time.Now(),
		store:         deps.Store,
		summarizer:    deps.Summarizer,
		searcher:      deps.Searcher,
		metrics:       metrics.DefaultMetrics,
		now:           time.Now,
		defaultVoice:  deps.DefaultVoice,
		contextWindow: deps.ContextWindow,
		dedupeWindow:  deps.DedupeWindow,
	}
}

// LoadContext resolves the answering business for the callee number and
// normalizes its configuration. A business with no stored prompt gets
// the generated fallback.
func (s *Session) LoadContext(ctx context.Context, directory Directory) error {
	bc, err := directory.ResolveBusiness(ctx, s.To)
	if err != nil {
		return fmt.Errorf("resolve business for %s: %w", s.To, err)
	}

	s.BusinessID = bc.BusinessID
	s.Profile = bc.Profile
	s.Config = bc.Config
	s.Config.Normalize(s.defaultVoice)

	s.SystemPrompt = bc.SystemPrompt
	if s.SystemPrompt == "" {
		s.SystemPrompt = s.FallbackPrompt()
	}

	logging.WithCall(s.CallID, s.BusinessID).Info().
		Str("businessName", s.Profile.Name).
		Bool("hasStoredPrompt", bc.SystemPrompt != "").
		Msg("Business context loaded")
	return nil
}

// FallbackPrompt builds the receptionist prompt used when the business
// has no stored one.
func (s *Session) FallbackPrompt() string {
	name := s.Profile.Name
	if name == "" {
		name = "Our business"
	}
	language := s.Profile.DefaultLanguage
	if language == "" {
		language = "en"
	}
	tone := s.Profile.Tone
	if tone == "" {
		tone = "friendly, professional"
	}
	industry := s.Profile.Industry
	if industry == "" {
		industry = "business"
	}

	return fmt.Sprintf(`You are %s's AI receptionist for %s.

CRITICAL RULES:
1. NEVER say you are ChatGPT, OpenAI, or an AI. You are %s's virtual assistant.
2. ALWAYS be %s.
3. Speak in %s.
4. If you don't know something, say: "I don't have that information, but I'll make sure the team gets your question."
5. Never give medical, legal, or financial advice.
6. Keep responses concise and helpful.

Start every call with: "Thanks for calling %s, how can I help you today?"

End calls politely with: "Thanks for calling %s, have a great day!"`,
		name, industry, name, tone, language, name, name)
}

// EnhancedSystemPrompt is the full instruction set sent to the voice
// engine at session start: the business prompt plus booking discipline
// and the static business details.
func (s *Session) EnhancedSystemPrompt() string {
	base := s.SystemPrompt
	if base == "" {
		base = s.FallbackPrompt()
	}

	name := s.Profile.Name
	if name == "" {
		name = "Our business"
	}
	industry := s.Profile.Industry
	if industry == "" {
		industry = "business"
	}
	tone := s.Profile.Tone
	if tone == "" {
		tone = "friendly, professional"
	}

	return fmt.Sprintf(`%s

BUSINESS DETAILS:
- Name: %s
- Industry: %s
- Primary Language: en
- Tone: %s
- Always Talk in English

CRITICAL RULES FOR APPOINTMENT BOOKING:
1. **NEVER** say an appointment is booked unless you have ACTUALLY used the 'book_appointment' tool
2. **ALWAYS** gather ALL required information BEFORE using any booking tool:
3. **DO NOT** make up confirmation numbers or times - wait for the actual tool response
4. **VERIFY** information with the caller before using any tool

IMPORTANT REMINDERS:
1. NEVER reveal you're an AI or mention OpenAI/ChatGPT.
2. If unsure about anything, ask the caller to hold while you check or offer to take a message.
3. Always confirm important details like appointments or contact information.
4. Be patient and repeat information if needed.
5. If the caller is upset, remain calm and offer to transfer to a human.

CRITICAL: You MUST use tools for booking appointments. Follow these exact steps:

1. When caller mentions booking: "I can book that for you. I need a few details first."
2. Collect ALL required information:
   - Name
   - Phone number
   - Service type
   - Preferred date (YYYY-MM-DD)
   - Preferred time (HH:MM 24-hour)

3. After collecting ALL information, USE THE 'book_appointment' TOOL.
   DO NOT say "booked" or "confirmed" before using the tool.
   Wait for the tool response, then read it verbatim.

NEVER invent confirmations. ALWAYS wait for tool response.
If tool fails, say: "I'm having system issues. Can I take your details and have someone call back?"

For questions about:
- Hours: Check the business hours information
- Services: Refer to the services list
- Pricing: If not in knowledge base, say "I don't have pricing details, but I can connect you with someone who does"
- Appointments: Use the booking tool with all required information

%s`, base, name, industry, tone, s.Config.StaticInfoText())
}

// RecordTurn appends a transcript turn. Blank text and a repeat of any
// of the last few turns from the same speaker (case-insensitive) are
// dropped, since engine transcription events can arrive duplicated.
// Returns whether the turn was recorded.
func (s *Session) RecordTurn(speaker, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(text)
	start := len(s.transcript) - s.dedupeWindow
	if start < 0 {
		start = 0
	}
	for _, entry := range s.transcript[start:] {
		if entry.Speaker == speaker && strings.ToLower(entry.Text) == lowered {
			return false
		}
	}

	s.transcript = append(s.transcript, transcriptEntry{
		Speaker: speaker,
		Text:    text,
		At:      s.now(),
	})

	s.context = append(s.context, knowledge.ContextTurn{Role: speaker, Content: text})
	if len(s.context) > s.contextWindow {
		s.context = s.context[len(s.context)-s.contextWindow:]
	}

	s.metrics.RecordTranscriptTurn(speaker)
	return true
}

// TurnCount returns how many turns have been recorded.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// Transcript renders the call so far, one timestamped line per turn.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Session) transcriptLocked() string {
	var lines []string
	for _, entry := range s.transcript {
		prefix := "Assistant"
		if entry.Speaker == SpeakerCaller {
			prefix = "Caller"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", entry.At.Format("15:04:05"), prefix, entry.Text))
	}
	return strings.Join(lines, "\n")
}

// ContextTurns returns a copy of the recent-turn window used for
// contextual retrieval.
func (s *Session) ContextTurns() []knowledge.ContextTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]knowledge.ContextTurn{}, s.context...)
}

// RetrieveKnowledge looks up business knowledge for a caller utterance.
// With includeContext set, the recent conversation steers the query and
// a higher similarity floor applies. Returns the snippets, the
// formatted context block, and the search method used. Retrieval
// failures degrade to an empty result so the call keeps flowing.
func (s *Session) RetrieveKnowledge(ctx context.Context, query string, includeContext bool) ([]knowledge.Snippet, string, string) {
	if s.searcher == nil || s.BusinessID == "" {
		return nil, "", "none"
	}

	cfg := s.searcher.Config()

	var (
		snippets []knowledge.Snippet
		method   string
		err      error
		floor    float64
	)
	if includeContext {
		floor = cfg.ContextMinSimilarity
		snippets, method, err = s.searcher.SearchWithContext(ctx, s.BusinessID, s.ContextTurns(), true, cfg.TopK)
	} else {
		floor = cfg.MinSimilarity
		snippets, method, err = s.searcher.HybridSearch(ctx, s.BusinessID, query, cfg.TopK, cfg.MinSimilarity)
	}
	if err != nil {
		logging.WithCall(s.CallID, s.BusinessID).Warn().Err(err).Msg("Knowledge retrieval failed")
		return nil, "", "none"
	}

	var filtered []knowledge.Snippet
	for _, sn := range snippets {
		if sn.Similarity >= floor {
			filtered = append(filtered, sn)
		}
	}
	if len(filtered) == 0 {
		return nil, "", method
	}

	return filtered, knowledge.FormatSnippets(filtered), method
}

// ClassifyOutcome derives the call outcome from transcript keywords.
// Rules are ordered; the first match wins.
func (s *Session) ClassifyOutcome() string {
	transcript := strings.ToLower(s.Transcript())

	switch {
	case strings.Contains(transcript, "book") &&
		(strings.Contains(transcript, "confirm") || strings.Contains(transcript, "thank")):
		return "booking_confirmed"
	case strings.Contains(transcript, "book") || strings.Contains(transcript, "appointment"):
		return "booking_inquiry"
	case strings.Contains(transcript, "price") || strings.Contains(transcript, "cost") ||
		strings.Contains(transcript, "how much"):
		return "pricing_inquiry"
	case strings.Contains(transcript, "hour") || strings.Contains(transcript, "open") ||
		strings.Contains(transcript, "close"):
		return "hours_inquiry"
	case strings.Contains(transcript, "angry") || strings.Contains(transcript, "upset") ||
		strings.Contains(transcript, "complaint"):
		return "escalated_call"
	case strings.Contains(transcript, "thank") && strings.Contains(transcript, "bye"):
		return "successful_call"
	default:
		return "general_inquiry"
	}
}

// SimpleSummary is the keyword fallback when no summarizer is
// configured or the summarizer call fails.
func (s *Session) SimpleSummary() string {
	transcript := s.Transcript()
	lowered := strings.ToLower(transcript)
	lines := strings.Split(transcript, "\n")

	switch {
	case strings.Contains(lowered, "book") || strings.Contains(lowered, "appointment"):
		return "Appointment booking discussion"
	case strings.Contains(lowered, "price") || strings.Contains(lowered, "cost"):
		return "Pricing inquiry"
	case strings.Contains(lowered, "hour") || strings.Contains(lowered, "open"):
		return "Business hours inquiry"
	case len(lines) > 5:
		return "Detailed conversation about services"
	default:
		return "Brief inquiry call"
	}
}

// summarize prefers the AI summarizer and falls back to keywords. Very
// short calls skip summarization outright.
func (s *Session) summarize(ctx context.Context) string {
	transcript := s.Transcript()
	if len(transcript) < 50 {
		return "Short call with no significant content."
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, transcript)
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			logging.WithCall(s.CallID, s.BusinessID).Warn().Err(err).Msg("AI summary failed, using keyword fallback")
		}
	}
	return s.SimpleSummary()
}

// CreateRecord persists the initial call row.
func (s *Session) CreateRecord(ctx context.Context, metadata map[string]string) error {
	if s.store == nil {
		return nil
	}
	return s.store.CreateCallRecord(ctx, CallRecord{
		RecordID:    s.RecordID,
		CallID:      s.CallID,
		BusinessID:  s.BusinessID,
		CallerPhone: s.From,
		CalleePhone: s.To,
		Direction:   s.Direction,
		StartedAt:   s.StartedAt,
		Metadata:    metadata,
	})
}

// Finalize persists the transcript, summary, and outcome. It runs at
// most once per session; later calls are no-ops. Persistence failures
// are logged and swallowed so teardown always completes.
func (s *Session) Finalize(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	turnCount := len(s.transcript)
	s.mu.Unlock()

	logger := logging.WithCall(s.CallID, s.BusinessID)

	summary := s.summarize(ctx)
	outcome := s.ClassifyOutcome()
	endedAt := s.now()

	s.metrics.RecordOutcome(outcome)

	if s.store == nil {
		logger.Info().Str("outcome", outcome).Str("reason", reason).Msg("Call finalized without store")
		return
	}

	err := s.store.AppendTranscript(ctx, TranscriptRecord{
		CallID:          s.CallID,
		BusinessID:      s.BusinessID,
		Content:         s.Transcript(),
		Summary:         summary,
		Outcome:         outcome,
		TurnCount:       turnCount,
		DurationSeconds: int(endedAt.Sub(s.StartedAt).Seconds()),
		EndedReason:     reason,
		EndedAt:         endedAt,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist transcript")
	}

	if err := s.store.UpdateOutcome(ctx, s.CallID, outcome, summary); err != nil {
		logger.Error().Err(err).Msg("Failed to persist call outcome")
	}

	logger.Info().
		Str("outcome", outcome).
		Str("reason", reason).
		Int("turns", turnCount).
		Msg("Call finalized")
}

// Finalized reports whether Finalize has run.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// MarkFailed records a system failure for a call that never completed
// normally. Idempotent with Finalize: whichever runs first wins.
func (s *Session) MarkFailed(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	s.mu.Unlock()

	s.metrics.RecordOutcome("system_error")

	if s.store == nil {
		return
	}
	if err := s.store.MarkFailed(ctx, s.CallID, reason); err != nil {
		logging.WithCall(s.CallID, s.BusinessID).Error().Err(err).Msg("Failed to mark call as failed")
	}
}
