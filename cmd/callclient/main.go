package main

import (
	"encoding/base64"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"ai-call-bridge-service/internal/telephony"
	"ai-call-bridge-service/internal/token"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// G.711 at 8kHz = 8000 bytes/second; 20ms frames = 160 bytes,
// matching the carrier's media stream cadence.
const chunkSize = 160
const chunkIntervalMs = 20

func main() {
	audioFile := flag.String("audio", "../../testdata/sample-8khz-ulaw.wav", "Path to WAV file (8kHz G.711 u-law mono)")
	serverAddr := flag.String("server", "ws://localhost:5050/v1/media-stream", "Media stream websocket URL")
	callSid := flag.String("call", "CA-client-"+time.Now().Format("150405"), "Call SID")
	from := flag.String("from", "+15551230000", "Caller number")
	to := flag.String("to", "+15559998888", "Callee number")
	secret := flag.String("secret", "change-me-in-production", "Admission token secret")
	flag.Parse()

	// Open audio file
	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d",
		audioFormat, numChannels, sampleRate)

	if audioFormat != 7 { // G.711 u-law
		log.Fatal("Only u-law format supported; transcode with: sox in.wav -r 8000 -c 1 -e u-law out.wav")
	}
	if sampleRate != 8000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 8000 Hz", sampleRate)
	}

	ws, _, err := websocket.DefaultDialer.Dial(*serverAddr, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer ws.Close()

	log.Printf("Connected to %s", *serverAddr)

	// Count engine audio coming back while we stream.
	received := make(chan int)
	go func() {
		var frames int
		for {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				received <- frames
				return
			}
			if msg["event"] == "media" {
				frames++
			}
		}
	}()

	codec := token.NewCodec(*secret, 300*time.Second)
	start := telephony.StreamMessage{
		Event: "start",
		Start: &telephony.StartPayload{
			StreamSID: "MZ-client-" + time.Now().Format("150405"),
			CallSID:   *callSid,
			CustomParameters: map[string]string{
				"callSid": *callSid,
				"token":   codec.Issue(*callSid),
				"from":    *from,
				"to":      *to,
			},
		},
	}
	if err := ws.WriteJSON(start); err != nil {
		log.Fatalf("Failed to send start: %v", err)
	}

	log.Printf("Streaming call: callSid=%s from=%s to=%s", *callSid, *from, *to)

	// Stream audio in 20ms frames
	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		frame := telephony.StreamMessage{
			Event: "media",
			Media: &telephony.MediaPayload{
				Track:   "inbound",
				Payload: base64.StdEncoding.EncodeToString(audioChunk[:n]),
			},
		}
		if err := ws.WriteJSON(frame); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}

		if chunkNum%100 == 0 {
			log.Printf("Sent frame %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d frames, %d bytes in %v", chunkNum, totalBytes, elapsed)

	// Give the engine a moment to answer before hanging up.
	time.Sleep(3 * time.Second)

	stop := telephony.StreamMessage{
		Event: "stop",
		Stop:  &telephony.StopPayload{CallSID: *callSid},
	}
	if err := ws.WriteJSON(stop); err != nil {
		log.Printf("Failed to send stop: %v", err)
	}

	frames := <-received
	log.Printf("Call completed: callSid=%s, received %d audio frames", *callSid, frames)
}
