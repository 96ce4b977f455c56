package telephony

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Sender pushes frames back to the caller's media stream.
type Sender interface {
	// SendAudio plays one base64 G.711 chunk to the caller.
	SendAudio(streamSID, payloadB64 string) error
	// SendClear flushes audio the carrier has buffered but not yet
	// played.
	SendClear(streamSID string) error
	// SendMark requests a playback acknowledgment.
	SendMark(streamSID, name string) error
}

// WSSender sends frames over the stream's WebSocket. Writes are
// serialized; gorilla connections allow a single concurrent writer.
type WSSender struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewWSSender wraps an upgraded media stream connection.
func NewWSSender(ws *websocket.Conn) *WSSender {
	return &WSSender{ws: ws}
}

func (s *WSSender) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(v)
}

// SendAudio plays one audio chunk on the outbound track.
func (s *WSSender) SendAudio(streamSID, payloadB64 string) error {
	return s.write(outboundMedia{
		Event:     "media",
		StreamSID: streamSID,
		Media: outboundChunk{
			Payload: payloadB64,
			Track:   "outbound",
		},
	})
}

// SendClear flushes buffered playback.
func (s *WSSender) SendClear(streamSID string) error {
	return s.write(outboundClear{
		Event:     "clear",
		StreamSID: streamSID,
	})
}

// SendMark requests a playback acknowledgment.
func (s *WSSender) SendMark(streamSID, name string) error {
	return s.write(outboundMark{
		Event:     "mark",
		StreamSID: streamSID,
		Mark:      outboundName{Name: name},
	})
}
