package bridge

import (
	"sync"
	"time"

	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/observability/metrics"
)

// FrameInterval is the playback cadence. G.711 at 8kHz delivers 160
// bytes per 20ms frame; sending faster than real time overruns the
// carrier's jitter buffer.
const FrameInterval = 20 * time.Millisecond

// Pacer queues engine audio chunks and releases them at the frame
// interval. Clear empties the queue mid-playback for barge-in.
type Pacer struct {
	interval time.Duration
	send     func(payloadB64 string) error
	metrics  *metrics.Metrics

	mu    sync.Mutex
	queue []string

	stop chan struct{}
	done chan struct{}
}

// NewPacer creates a pacer that delivers one queued chunk per interval
// via send. Start must be called before chunks flow.
func NewPacer(interval time.Duration, send func(payloadB64 string) error) *Pacer {
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Pacer{
		interval: interval,
		send:     send,
		metrics:  metrics.DefaultMetrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue adds one base64 audio chunk to the playback queue.
func (p *Pacer) Enqueue(payloadB64 string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, payloadB64)
}

// Clear drops all queued chunks. Used on barge-in.
func (p *Pacer) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := len(p.queue)
	p.queue = nil
	return dropped
}

// Len returns the number of queued chunks.
func (p *Pacer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Start launches the delivery loop.
func (p *Pacer) Start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.deliverOne()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts delivery and waits for the loop to exit. Queued chunks
// are discarded.
func (p *Pacer) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Pacer) deliverOne() {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	payload := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()

	if err := p.send(payload); err != nil {
		logging.WithComponent("pacer").Warn().Err(err).Msg("Failed to deliver audio frame")
		return
	}
	p.metrics.RecordOutboundAudio()
}
