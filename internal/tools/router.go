package tools

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/observability/metrics"
)

// CallMeta identifies the call a tool execution belongs to; it travels
// with every webhook payload.
type CallMeta struct {
	BusinessID   string `json:"businessId"`
	BusinessName string `json:"businessName"`
	CallID       string `json:"callId"`
	RecordID     string `json:"recordId"`
	CallerPhone  string `json:"callerPhone"`
}

// Executor runs one tool call and returns the JSON result handed back
// to the engine. Implementations never fail the call; errors become a
// fallback result the assistant can read to the caller.
type Executor interface {
	Execute(ctx context.Context, toolName, arguments string, meta CallMeta) string
}

// FallbackResult is returned when a webhook is unreachable or rejects
// the request. The message is written for the assistant to speak.
const FallbackResult = `{"success":false,"error":"Service temporarily unavailable","message":"I couldn't process your calendar request right now. Please try again in a moment or call back later."}`

// Config holds webhook routing configuration.
type Config struct {
	WebhookURL         string
	CalendarWebhookURL string
	SigningSecret      string
	Timeout            time.Duration
}

// WebhookRouter forwards tool calls to the automation webhooks:
// calendar tools to the calendar webhook, everything else to the
// general one.
type WebhookRouter struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
}

// NewWebhookRouter creates a router.
func NewWebhookRouter(cfg Config) *WebhookRouter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookRouter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics.DefaultMetrics,
	}
}

type webhookPayload struct {
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	Session   CallMeta        `json:"session"`
	Timestamp time.Time       `json:"timestamp"`
}

// Execute forwards the tool call and returns the webhook's JSON
// response body. Timeouts, transport errors, non-2xx statuses, and
// non-JSON bodies all degrade to FallbackResult.
func (r *WebhookRouter) Execute(ctx context.Context, toolName, arguments string, meta CallMeta) string {
	start := time.Now()
	logger := logging.WithCall(meta.CallID, meta.BusinessID)

	webhookURL := r.cfg.WebhookURL
	if CalendarTools[toolName] {
		webhookURL = r.cfg.CalendarWebhookURL
	}
	if webhookURL == "" {
		logger.Warn().Str("tool", toolName).Msg("No webhook configured for tool")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return `{"success":false,"message":"Webhook not configured"}`
	}

	args := json.RawMessage(arguments)
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}

	body, err := json.Marshal(webhookPayload{
		Tool:      toolName,
		Args:      args,
		Session:   meta,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error().Err(err).Str("tool", toolName).Msg("Failed to marshal tool payload")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return FallbackResult
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Err(err).Str("tool", toolName).Msg("Failed to build webhook request")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return FallbackResult
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.SigningSecret != "" {
		req.Header.Set("X-Bridge-Signature", signPayload(r.cfg.SigningSecret, body))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("tool", toolName).Msg("Webhook request failed")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return FallbackResult
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn().Int("status", resp.StatusCode).Str("tool", toolName).Msg("Webhook returned error status")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return FallbackResult
	}

	result, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || !json.Valid(result) {
		logger.Warn().Str("tool", toolName).Msg("Webhook returned unreadable body")
		r.metrics.RecordToolCall(toolName, true, time.Since(start).Seconds())
		return FallbackResult
	}

	logger.Info().
		Str("tool", toolName).
		Dur("latency", time.Since(start)).
		Msg("Tool call completed")
	r.metrics.RecordToolCall(toolName, false, time.Since(start).Seconds())
	return string(result)
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
