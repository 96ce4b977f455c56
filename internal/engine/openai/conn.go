// Package openai implements the voice engine contract over the OpenAI
// Realtime API WebSocket.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"ai-call-bridge-service/internal/engine"
	"ai-call-bridge-service/internal/observability/logging"
)

// Dialer opens Realtime API connections for a fixed model.
type Dialer struct {
	apiKey string
	model  string
	url    string
}

// NewDialer creates a dialer. url is the base Realtime endpoint; the
// model is appended as a query parameter.
func NewDialer(apiKey, model, url string) *Dialer {
	return &Dialer{apiKey: apiKey, model: model, url: url}
}

// Dial opens a connection and starts its read loop. Events are
// delivered to callback until the connection closes.
func (d *Dialer) Dial(ctx context.Context, callback engine.Callback) (engine.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, d.url+"?model="+d.model, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime engine: %w", err)
	}

	c := &Conn{
		ws:       ws,
		callback: callback,
	}
	go c.readLoop()
	return c, nil
}

// Conn is one open Realtime API session. Writes are serialized through
// writeMu; gorilla connections allow a single concurrent writer.
type Conn struct {
	ws       *websocket.Conn
	callback engine.Callback

	writeMu sync.Mutex

	closeOnce sync.Once
}

func (c *Conn) send(event map[string]any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal engine event: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write engine event: %w", err)
	}
	return nil
}

// UpdateSession applies the session configuration: server VAD,
// G.711 mu-law both directions, caller transcription, and the tool set.
func (c *Conn) UpdateSession(cfg engine.SessionConfig) error {
	session := map[string]any{
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           cfg.VADThreshold,
			"prefix_padding_ms":   cfg.PrefixPaddingMs,
			"silence_duration_ms": cfg.SilenceDurationMs,
		},
		"input_audio_format":  "g711_ulaw",
		"output_audio_format": "g711_ulaw",
		"voice":               cfg.Voice,
		"instructions":        cfg.Instructions,
		"modalities":          []string{"text", "audio"},
		"temperature":         cfg.Temperature,
		"input_audio_transcription": map[string]any{
			"model": cfg.TranscribeModel,
		},
	}
	if len(cfg.Tools) > 0 {
		session["tools"] = cfg.Tools
		session["tool_choice"] = "auto"
	}

	return c.send(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

// AppendAudio forwards a base64 audio chunk to the input buffer.
func (c *Conn) AppendAudio(audioB64 string) error {
	return c.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": audioB64,
	})
}

// CommitAudio commits the pending input buffer.
func (c *Conn) CommitAudio() error {
	return c.send(map[string]any{"type": "input_audio_buffer.commit"})
}

// CreateResponse asks the engine to start responding.
func (c *Conn) CreateResponse() error {
	return c.send(map[string]any{"type": "response.create"})
}

// CancelResponse cancels the in-flight response.
func (c *Conn) CancelResponse() error {
	return c.send(map[string]any{"type": "response.cancel"})
}

// TruncateItem cuts an assistant item short at audioEndMs.
func (c *Conn) TruncateItem(itemID string, audioEndMs int) error {
	return c.send(map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
}

// CreateSystemMessage injects a system message into the conversation.
func (c *Conn) CreateSystemMessage(text string) error {
	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "system",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// CreateFunctionOutput returns a tool result to the engine.
func (c *Conn) CreateFunctionOutput(callID, output string) error {
	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// Close tears the connection down. The read loop reports the close to
// the callback.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// serverEvent covers the fields of every inbound event type we handle.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	CallID     string `json:"call_id"`
	Session    struct {
		ID string `json:"id"`
	} `json:"session"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Conn) readLoop() {
	logger := logging.WithComponent("engine")

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.callback.OnClosed(err)
			return
		}

		var event serverEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Warn().Err(err).Msg("Undecodable engine event")
			continue
		}

		switch event.Type {
		case "session.created", "session.updated":
			c.callback.OnSessionReady(event.Session.ID)
		case "response.audio.delta":
			c.callback.OnAudioDelta(event.Delta, event.ItemID)
		case "response.audio_transcript.delta":
			c.callback.OnTextDelta(event.Delta)
		case "conversation.item.input_audio_transcription.completed":
			c.callback.OnTranscriptionCompleted(event.Transcript)
		case "input_audio_buffer.speech_started":
			c.callback.OnSpeechStarted()
		case "input_audio_buffer.speech_stopped":
			c.callback.OnSpeechStopped()
		case "response.function_call_arguments.done":
			c.callback.OnToolCall(engine.ToolCall{
				Name:      event.Name,
				Arguments: event.Arguments,
				CallID:    event.CallID,
			})
		case "response.done":
			c.callback.OnResponseDone()
		case "error":
			logger.Error().
				Str("code", event.Error.Code).
				Str("message", event.Error.Message).
				Msg("Engine error event")
			c.callback.OnError(event.Error.Code, event.Error.Message)
		default:
			// High-volume event stream; unhandled types are expected.
		}
	}
}
