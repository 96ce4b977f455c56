// Package engine defines the contract between the bridge and a
// real-time voice engine. The bridge talks to these interfaces; the
// openai subpackage provides the production implementation.
package engine

import "context"

// Tool describes one function the engine may call during a response.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionConfig is the initial session setup sent after connecting.
type SessionConfig struct {
	Instructions      string
	Voice             string
	Temperature       float64
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	TranscribeModel   string
	Tools             []Tool
}

// ToolCall is a completed function call request from the engine.
type ToolCall struct {
	Name      string
	Arguments string
	CallID    string
}

// Callback receives engine events. Implementations must not block; the
// connection's read loop invokes them inline.
type Callback interface {
	// OnAudioDelta delivers a base64 G.711 audio chunk with the item
	// it belongs to.
	OnAudioDelta(audioB64, itemID string)
	// OnTranscriptionCompleted delivers a finished caller transcript.
	OnTranscriptionCompleted(transcript string)
	// OnTextDelta delivers incremental assistant transcript text.
	OnTextDelta(text string)
	// OnSpeechStarted fires when the engine detects caller speech.
	OnSpeechStarted()
	// OnSpeechStopped fires when caller speech ends.
	OnSpeechStopped()
	// OnToolCall delivers a completed function call request.
	OnToolCall(call ToolCall)
	// OnResponseDone fires when an assistant response finishes.
	OnResponseDone()
	// OnSessionReady fires once the engine acknowledges session setup.
	OnSessionReady(sessionID string)
	// OnError delivers an engine-side error event.
	OnError(code, message string)
	// OnClosed fires when the connection closes, with the cause.
	OnClosed(err error)
}

// Conn is an open engine connection.
type Conn interface {
	// UpdateSession applies the session configuration.
	UpdateSession(cfg SessionConfig) error
	// AppendAudio forwards a base64 G.711 chunk to the input buffer.
	AppendAudio(audioB64 string) error
	// CommitAudio commits the pending input buffer.
	CommitAudio() error
	// CreateResponse asks the engine to start responding.
	CreateResponse() error
	// CancelResponse cancels the in-flight response.
	CancelResponse() error
	// TruncateItem cuts an assistant item short at the given offset.
	TruncateItem(itemID string, audioEndMs int) error
	// CreateSystemMessage injects a system message into the
	// conversation without triggering a response.
	CreateSystemMessage(text string) error
	// CreateFunctionOutput returns a tool result to the engine.
	CreateFunctionOutput(callID, output string) error
	// Close tears the connection down.
	Close() error
}

// Dialer opens engine connections.
type Dialer interface {
	Dial(ctx context.Context, callback Callback) (Conn, error)
}
