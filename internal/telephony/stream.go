// Package telephony handles the carrier-facing surface: media stream
// framing, TwiML generation, and live-call control via the carrier
// REST API.
package telephony

// StreamMessage is the envelope for every inbound media stream frame.
// Only the fields for the received event type are populated.
type StreamMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
}

// StartPayload accompanies the start event that opens a stream.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

// MediaFormat describes the stream's audio encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 audio chunk.
type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// MarkPayload acknowledges a previously sent mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload accompanies the stop event that ends a stream.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// outboundMedia is the frame sent to play audio to the caller.
type outboundMedia struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid"`
	Media     outboundChunk `json:"media"`
}

type outboundChunk struct {
	Payload string `json:"payload"`
	Track   string `json:"track"`
}

// outboundClear flushes the carrier's buffered playback.
type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// outboundMark requests a playback-position acknowledgment.
type outboundMark struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Mark      outboundName `json:"mark"`
}

type outboundName struct {
	Name string `json:"name"`
}
