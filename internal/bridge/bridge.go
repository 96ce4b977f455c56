package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ai-call-bridge-service/internal/engine"
	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/observability/metrics"
	"ai-call-bridge-service/internal/session"
	"ai-call-bridge-service/internal/telephony"
	"ai-call-bridge-service/internal/token"
	"ai-call-bridge-service/internal/tools"
)

// Settings are the engine and timing tunables applied to every stream.
type Settings struct {
	Temperature       float64
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	GreetingFirst     bool
	TranscribeModel   string
	DebounceInterval  time.Duration
	RetrievalTimeout  time.Duration
}

// Handler bridges carrier media streams to the voice engine. One
// Handler serves all calls; each stream gets its own Stream.
type Handler struct {
	settings   Settings
	codec      *token.Codec
	registry   *session.Registry
	dialer     engine.Dialer
	executor   tools.Executor
	redirector telephony.Redirector
	metrics    *metrics.Metrics

	mu     sync.Mutex
	active map[string]*Stream
}

// NewHandler creates a bridge handler.
func NewHandler(settings Settings, codec *token.Codec, registry *session.Registry, dialer engine.Dialer, executor tools.Executor, redirector telephony.Redirector) *Handler {
	if settings.DebounceInterval <= 0 {
		settings.DebounceInterval = 50 * time.Millisecond
	}
	if settings.RetrievalTimeout <= 0 {
		settings.RetrievalTimeout = 1500 * time.Millisecond
	}
	return &Handler{
		settings:   settings,
		codec:      codec,
		registry:   registry,
		dialer:     dialer,
		executor:   executor,
		redirector: redirector,
		metrics:    metrics.DefaultMetrics,
		active:     make(map[string]*Stream),
	}
}

// ServeStream runs the read loop for one upgraded media stream
// connection and blocks until it closes.
func (h *Handler) ServeStream(ws *websocket.Conn) {
	stream := h.NewStream(telephony.NewWSSender(ws), func() { ws.Close() })
	defer stream.HandleDisconnect()

	for {
		var msg telephony.StreamMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		stream.HandleMessage(context.Background(), msg)
	}
}

// NewStream creates the per-connection state. closeWS force-closes the
// underlying socket; the transport read loop then exits on its own.
func (h *Handler) NewStream(sender telephony.Sender, closeWS func()) *Stream {
	s := &Stream{
		handler:   h,
		sender:    sender,
		closeWS:   closeWS,
		lifecycle: NewLifecycle(),
	}
	s.pacer = NewPacer(FrameInterval, func(payload string) error {
		return sender.SendAudio(s.StreamSID(), payload)
	})
	return s
}

// register installs a stream as the live connection for its call. A
// previous connection for the same call is force-closed; media stream
// sockets can reconnect mid-call and the newest one wins.
func (h *Handler) register(callID string, s *Stream) {
	h.mu.Lock()
	old := h.active[callID]
	h.active[callID] = s
	h.mu.Unlock()

	if old != nil && old != s {
		logging.WithCall(callID, "").Warn().Msg("Replacing existing stream for call")
		old.closeWS()
	}
}

// unregister removes a stream, but only if it is still the live one.
func (h *Handler) unregister(callID string, s *Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active[callID] == s {
		delete(h.active, callID)
	}
}

// ActiveStreams returns the number of live bridged streams.
func (h *Handler) ActiveStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Stream is one carrier media stream bridged to one engine connection.
// It implements engine.Callback for engine-side events.
type Stream struct {
	handler *Handler
	sender  telephony.Sender
	closeWS func()

	lifecycle *Lifecycle
	pacer     *Pacer

	mu                sync.Mutex
	callID            string
	streamSID         string
	sess              *session.Session
	conn              engine.Conn
	engineReady       bool
	flushing          bool
	greeted           bool
	assistantSpeaking bool
	userSpeaking      bool
	lastAssistantItem string
	assistantText     strings.Builder
	pendingAudio      []string
	pacerStarted      bool
	debounce          *time.Timer
	startedAt         time.Time
}

// StreamSID returns the carrier stream identifier, once known.
func (s *Stream) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// HandleMessage dispatches one decoded media stream frame.
func (s *Stream) HandleMessage(ctx context.Context, msg telephony.StreamMessage) {
	switch msg.Event {
	case "start":
		if msg.Start != nil {
			s.handleStart(ctx, msg.Start)
		}
	case "media":
		if msg.Media != nil {
			s.handleMedia(msg.Media)
		}
	case "mark":
		// Playback acknowledgment; nothing to do.
	case "stop":
		s.handleStop(ctx)
	}
}

func (s *Stream) handleStart(ctx context.Context, start *telephony.StartPayload) {
	params := start.CustomParameters
	callID := params["callSid"]
	if callID == "" {
		callID = start.CallSID
	}
	logger := logging.WithStream(callID, params["businessId"], start.StreamSID)

	tok := params["token"]
	if !s.handler.codec.Verify(tok) || token.CallID(tok) != callID {
		logger.Warn().Msg("Stream admission rejected")
		s.handler.metrics.RecordCallRejected("invalid_token")
		s.reject()
		return
	}

	sess, ok := s.handler.registry.Get(callID)
	if !ok {
		logger.Warn().Msg("No session registered for call")
		s.handler.metrics.RecordCallRejected("unknown_session")
		s.reject()
		return
	}

	if err := s.lifecycle.Start(); err != nil {
		logger.Warn().Err(err).Msg("Start event in invalid state")
		return
	}

	s.mu.Lock()
	s.callID = callID
	s.streamSID = start.StreamSID
	s.sess = sess
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.handler.register(callID, s)
	s.handler.metrics.RecordCallStart()
	s.pacerStart()

	conn, err := s.handler.dialer.Dial(ctx, s)
	if err != nil {
		logger.Error().Err(err).Msg("Engine connect failed")
		sess.MarkFailed(ctx, "engine connect failed")
		s.handler.metrics.RecordCallEnd(false, 0)
		s.reject()
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	cfg := s.handler.settings
	err = conn.UpdateSession(engine.SessionConfig{
		Instructions:      sess.EnhancedSystemPrompt(),
		Voice:             sess.Config.Voice.Voice,
		Temperature:       cfg.Temperature,
		VADThreshold:      cfg.VADThreshold,
		PrefixPaddingMs:   cfg.PrefixPaddingMs,
		SilenceDurationMs: cfg.SilenceDurationMs,
		TranscribeModel:   cfg.TranscribeModel,
		Tools:             tools.Catalogue(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Engine session setup failed")
		sess.MarkFailed(ctx, "engine session setup failed")
		s.handler.metrics.RecordCallEnd(false, 0)
		s.reject()
		return
	}

	logger.Info().Str("businessName", sess.Profile.Name).Msg("Stream bridged")
}

func (s *Stream) reject() {
	s.lifecycle.Drop()
	s.closeWS()
}

func (s *Stream) handleMedia(media *telephony.MediaPayload) {
	if err := s.lifecycle.Media(); err != nil {
		return
	}
	s.handler.metrics.RecordInboundAudio()

	s.mu.Lock()
	conn, ready := s.conn, s.engineReady
	if conn == nil || !ready {
		// Engine still connecting; buffer and flush once ready so no
		// caller audio is lost.
		s.pendingAudio = append(s.pendingAudio, media.Payload)
		s.mu.Unlock()
		s.handler.metrics.RecordBufferedAudio()
		return
	}
	s.mu.Unlock()

	if err := conn.AppendAudio(media.Payload); err != nil {
		logging.WithCall(s.callID, "").Warn().Err(err).Msg("Failed to forward caller audio")
	}
}

// handleStop finalizes the call. Only a stop event ends a call; a bare
// socket close is treated as a transient disconnect.
func (s *Stream) handleStop(ctx context.Context) {
	if !s.lifecycle.Stop() {
		return
	}

	s.mu.Lock()
	conn := s.conn
	sess := s.sess
	callID := s.callID
	startedAt := s.startedAt
	s.mu.Unlock()

	s.stopDebounce()

	if conn != nil {
		conn.CommitAudio()
		conn.Close()
	}

	if sess != nil {
		sess.Finalize(ctx, "caller_hangup")
		s.handler.registry.Remove(callID)
		s.handler.metrics.RecordCallEnd(true, time.Since(startedAt).Seconds())
	}

	s.lifecycle.Close()
	s.handler.unregister(callID, s)
	s.closeWS()
}

// HandleDisconnect runs when the transport read loop exits. After a
// stop this is a no-op beyond resource cleanup; without one the
// session stays registered so a reconnecting stream can resume.
func (s *Stream) HandleDisconnect() {
	s.stopDebounce()
	s.pacerStop()

	s.mu.Lock()
	conn := s.conn
	callID := s.callID
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	if !s.lifecycle.Stopped() && callID != "" {
		logging.WithCall(callID, "").Warn().Msg("Stream disconnected without stop; keeping session for reconnect")
	}
	s.lifecycle.Close()
	if callID != "" {
		s.handler.unregister(callID, s)
	}
}

func (s *Stream) pacerStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pacerStarted {
		s.pacerStarted = true
		s.pacer.Start()
	}
}

func (s *Stream) pacerStop() {
	s.mu.Lock()
	started := s.pacerStarted
	s.pacerStarted = false
	s.mu.Unlock()
	if started {
		s.pacer.Stop()
	}
}

func (s *Stream) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// OnSessionReady flushes audio buffered while the engine was
// connecting, in arrival order, then optionally opens with a greeting.
// The backlog drains before engineReady flips, so frames arriving
// mid-flush keep buffering and cannot overtake the backlog. A ready
// event that beats the stored connection is ignored; the engine
// re-acks on session.updated.
func (s *Stream) OnSessionReady(sessionID string) {
	s.mu.Lock()
	if s.engineReady || s.flushing {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return
	}
	if s.sess != nil && sessionID != "" {
		s.sess.EngineSessionID = sessionID
	}
	s.flushing = true
	for len(s.pendingAudio) > 0 {
		pending := s.pendingAudio
		s.pendingAudio = nil
		s.mu.Unlock()
		for _, payload := range pending {
			if err := conn.AppendAudio(payload); err != nil {
				break
			}
		}
		s.mu.Lock()
	}
	s.engineReady = true
	s.flushing = false
	greet := s.handler.settings.GreetingFirst && !s.greeted
	s.mu.Unlock()

	if greet && conn.CreateResponse() == nil {
		s.mu.Lock()
		s.greeted = true
		s.mu.Unlock()
	}
}

// OnAudioDelta queues engine audio for paced playback. Audio arriving
// while the caller is speaking belongs to a cancelled response and is
// dropped.
func (s *Stream) OnAudioDelta(audioB64, itemID string) {
	s.mu.Lock()
	if s.userSpeaking {
		s.mu.Unlock()
		return
	}
	s.assistantSpeaking = true
	if itemID != "" {
		s.lastAssistantItem = itemID
	}
	s.mu.Unlock()

	s.pacer.Enqueue(audioB64)
}

// OnTextDelta accumulates the assistant's spoken transcript.
func (s *Stream) OnTextDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistantText.WriteString(text)
}

// OnResponseDone records the finished assistant turn.
func (s *Stream) OnResponseDone() {
	s.mu.Lock()
	s.assistantSpeaking = false
	text := s.assistantText.String()
	s.assistantText.Reset()
	sess := s.sess
	s.mu.Unlock()

	if sess != nil && text != "" {
		sess.RecordTurn(session.SpeakerAssistant, text)
	}
}

// OnTranscriptionCompleted records the caller turn and schedules the
// debounced knowledge injection. The debounce coalesces the engine's
// duplicated transcription events into one retrieval.
func (s *Stream) OnTranscriptionCompleted(transcript string) {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return
	}

	if !sess.RecordTurn(session.SpeakerCaller, transcript) {
		return
	}

	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.handler.settings.DebounceInterval, s.injectKnowledge)
	s.mu.Unlock()
}

// injectKnowledge runs contextual retrieval under the retrieval
// deadline and hands the result to the engine before it responds. An
// empty result still triggers the response so the caller is never left
// waiting on retrieval.
func (s *Stream) injectKnowledge() {
	s.mu.Lock()
	conn := s.conn
	sess := s.sess
	s.mu.Unlock()
	if conn == nil || sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.handler.settings.RetrievalTimeout)
	defer cancel()

	snippets, formatted, method := sess.RetrieveKnowledge(ctx, "", true)
	if len(snippets) > 0 {
		if err := conn.CreateSystemMessage(formatted); err != nil {
			logging.WithCall(sess.CallID, sess.BusinessID).Warn().Err(err).Msg("Knowledge injection failed")
		} else {
			logging.WithCall(sess.CallID, sess.BusinessID).Debug().
				Str("method", method).
				Int("snippets", len(snippets)).
				Msg("Knowledge injected")
		}
	}
	conn.CreateResponse()
}

// OnSpeechStarted handles barge-in: when the caller talks over the
// assistant, queued and carrier-buffered playback is flushed and the
// in-flight response is cancelled. Cancel and truncate are best
// effort; the engine may have already finished the response.
func (s *Stream) OnSpeechStarted() {
	s.mu.Lock()
	s.userSpeaking = true
	speaking := s.assistantSpeaking
	s.assistantSpeaking = false
	conn := s.conn
	callID := s.callID
	itemID := s.lastAssistantItem
	s.mu.Unlock()

	if !speaking {
		return
	}

	s.pacer.Clear()
	if err := s.sender.SendClear(s.StreamSID()); err != nil {
		logging.WithCall(callID, "").Warn().Err(err).Msg("Failed to clear carrier playback")
	}
	if conn != nil {
		conn.CancelResponse()
		if itemID != "" {
			conn.TruncateItem(itemID, 0)
		}
	}
	s.handler.metrics.RecordBargeIn()
}

// OnSpeechStopped commits pending caller audio.
func (s *Stream) OnSpeechStopped() {
	s.mu.Lock()
	s.userSpeaking = false
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.CommitAudio()
	}
}

// OnToolCall dispatches the tool asynchronously; the engine keeps the
// audio stream flowing meanwhile.
func (s *Stream) OnToolCall(call engine.ToolCall) {
	go s.dispatchTool(call)
}

func (s *Stream) dispatchTool(call engine.ToolCall) {
	s.mu.Lock()
	conn := s.conn
	sess := s.sess
	s.mu.Unlock()
	if conn == nil || sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var output string
	switch call.Name {
	case "search_knowledge_base":
		output = s.searchKnowledgeTool(ctx, sess, call.Arguments)
	case "handover_to_human":
		output = s.handoverTool(ctx, sess, call.Arguments)
	default:
		output = s.handler.executor.Execute(ctx, call.Name, call.Arguments, tools.CallMeta{
			BusinessID:   sess.BusinessID,
			BusinessName: sess.Profile.Name,
			CallID:       sess.CallID,
			RecordID:     sess.RecordID,
			CallerPhone:  sess.From,
		})
	}

	if err := conn.CreateFunctionOutput(call.CallID, output); err != nil {
		logging.WithCall(sess.CallID, sess.BusinessID).Warn().Err(err).Str("tool", call.Name).Msg("Failed to return tool output")
		return
	}
	conn.CreateResponse()
}

// searchKnowledgeTool answers the engine's explicit knowledge queries
// locally; no webhook round trip.
func (s *Stream) searchKnowledgeTool(ctx context.Context, sess *session.Session, arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return `{"success":false,"message":"No search query provided"}`
	}

	snippets, formatted, _ := sess.RetrieveKnowledge(ctx, args.Query, false)
	if len(snippets) == 0 {
		return `{"success":true,"matches":0,"results":"No relevant business information found."}`
	}

	result, err := json.Marshal(map[string]any{
		"success": true,
		"matches": len(snippets),
		"results": formatted,
	})
	if err != nil {
		return `{"success":false,"message":"Search failed"}`
	}
	return string(result)
}

// handoverTool redirects the live call to the business's forwarding
// number. Redirecting to the number the caller already dialed would
// loop the call back into the bridge, so that is refused.
func (s *Stream) handoverTool(ctx context.Context, sess *session.Session, arguments string) string {
	var args struct {
		Reason string `json:"reason"`
	}
	json.Unmarshal([]byte(arguments), &args)

	number := sess.Config.ForwardingNumber
	if number == "" {
		return `{"success":false,"message":"No human is available to take this call right now. Offer to take a message instead."}`
	}
	if number == sess.To {
		logging.WithCall(sess.CallID, sess.BusinessID).Warn().Msg("Handover refused: forwarding number is the bridge number")
		return `{"success":false,"message":"Transfer is not available right now. Offer to take a message instead."}`
	}
	if s.handler.redirector == nil {
		return `{"success":false,"message":"Transfer is not available right now. Offer to take a message instead."}`
	}

	if err := s.handler.redirector.RedirectToNumber(ctx, sess.CallID, number); err != nil {
		logging.WithCall(sess.CallID, sess.BusinessID).Error().Err(err).Msg("Handover redirect failed")
		return `{"success":false,"message":"Transfer failed. Offer to take a message instead."}`
	}

	logging.WithCall(sess.CallID, sess.BusinessID).Info().Str("reason", args.Reason).Msg("Call handed over to human")
	return `{"success":true,"message":"Transferring the caller now. Say goodbye briefly."}`
}

// OnError logs engine-side errors; the stream keeps running.
func (s *Stream) OnError(code, message string) {
	s.mu.Lock()
	callID := s.callID
	s.mu.Unlock()
	logging.WithCall(callID, "").Error().
		Str("code", code).
		Str("message", message).
		Msg("Engine reported error")
}

// OnClosed marks the engine connection gone. Buffering resumes so a
// redial (not implemented) or teardown finds a consistent state.
func (s *Stream) OnClosed(err error) {
	s.mu.Lock()
	s.engineReady = false
	callID := s.callID
	s.mu.Unlock()
	if err != nil && !s.lifecycle.Stopped() {
		logging.WithCall(callID, "").Warn().Err(err).Msg("Engine connection closed")
	}
}

var _ engine.Callback = (*Stream)(nil)

// Describe summarizes the stream for debug endpoints.
func (s *Stream) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("call=%s stream=%s state=%s", s.callID, s.streamSID, s.lifecycle.State())
}
