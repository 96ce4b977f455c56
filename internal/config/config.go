// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all runtime configuration for the call bridge service.
type Configuration struct {
	Service       ServiceConfig
	Token         TokenConfig
	Engine        EngineConfig
	Tools         ToolsConfig
	Knowledge     KnowledgeConfig
	Kafka         KafkaConfig
	Session       SessionConfig
	Telephony     TelephonyConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds core service settings.
type ServiceConfig struct {
	Principal  string
	HTTPPort   string
	PublicHost string // host callers are told to stream to (wss://<host>/v1/media-stream)
}

// TokenConfig holds admission token settings.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

// EngineConfig holds AI speech engine connection settings.
// The VAD and debounce values are tunables, not contracts; they were still
// being adjusted when the bridge went live.
type EngineConfig struct {
	APIKey            string
	Model             string
	URL               string
	DefaultVoice      string
	Temperature       float64
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	GreetingFirst     bool // engine speaks first instead of waiting for the caller
	TranscribeModel   string
	DebounceInterval  time.Duration
	RetrievalTimeout  time.Duration
}

// ToolsConfig holds workflow automation webhook settings.
type ToolsConfig struct {
	WebhookURL         string
	CalendarWebhookURL string
	Timeout            time.Duration
	SigningSecret      string
}

// KnowledgeConfig holds retrieval settings.
type KnowledgeConfig struct {
	PostgresURL    string
	EmbeddingModel string
	EmbedCacheTTL  time.Duration
	TopK           int
	MinSimilarity  float64
	ContextMinSim  float64
	HighConfidence float64
	TextSimilarity float64
}

// KafkaConfig holds call event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicCalls       string
	TopicTranscripts string
	Principal        string
}

// SessionConfig holds registry lifecycle settings.
type SessionConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
	ContextWindow int
	DedupeWindow  int
}

// TelephonyConfig holds telephony platform REST credentials for call redirects.
type TelephonyConfig struct {
	AccountSID string
	AuthToken  string
	APIBaseURL string
}

// ObservabilityConfig holds metrics/health server settings.
type ObservabilityConfig struct {
	Port     string
	LogLevel string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:  envOrDefault("SERVICE_PRINCIPAL", "svc-call-bridge"),
			HTTPPort:   envOrDefault("HTTP_PORT", "5050"),
			PublicHost: envOrDefault("PUBLIC_HOST", "localhost:5050"),
		},
		Token: TokenConfig{
			Secret: envOrDefault("HMAC_TOKEN_SECRET", "change-me-in-production"),
			TTL:    envOrDefaultDuration("CALL_TOKEN_TTL", 300*time.Second),
		},
		Engine: EngineConfig{
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			Model:             envOrDefault("ENGINE_MODEL", "gpt-4o-realtime-preview"),
			URL:               envOrDefault("ENGINE_URL", "wss://api.openai.com/v1/realtime"),
			DefaultVoice:      envOrDefault("ENGINE_VOICE", "alloy"),
			Temperature:       envOrDefaultFloat("ENGINE_TEMPERATURE", 0.8),
			VADThreshold:      envOrDefaultFloat("ENGINE_VAD_THRESHOLD", 0.5),
			PrefixPaddingMs:   envOrDefaultInt("ENGINE_VAD_PREFIX_PADDING_MS", 300),
			SilenceDurationMs: envOrDefaultInt("ENGINE_VAD_SILENCE_MS", 500),
			GreetingFirst:     envOrDefaultBool("ENGINE_GREETING_FIRST", false),
			TranscribeModel:   envOrDefault("ENGINE_TRANSCRIBE_MODEL", "whisper-1"),
			DebounceInterval:  envOrDefaultDuration("TRANSCRIPT_DEBOUNCE", 50*time.Millisecond),
			RetrievalTimeout:  envOrDefaultDuration("RETRIEVAL_TIMEOUT", 1500*time.Millisecond),
		},
		Tools: ToolsConfig{
			WebhookURL:         os.Getenv("TOOL_WEBHOOK_URL"),
			CalendarWebhookURL: os.Getenv("CALENDAR_WEBHOOK_URL"),
			Timeout:            envOrDefaultDuration("TOOL_WEBHOOK_TIMEOUT", 10*time.Second),
			SigningSecret:      envOrDefault("HMAC_TOKEN_SECRET", "change-me-in-production"),
		},
		Knowledge: KnowledgeConfig{
			PostgresURL:    os.Getenv("KNOWLEDGE_DATABASE_URL"),
			EmbeddingModel: envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbedCacheTTL:  envOrDefaultDuration("EMBED_CACHE_TTL", 5*time.Minute),
			TopK:           envOrDefaultInt("KNOWLEDGE_TOP_K", 3),
			MinSimilarity:  envOrDefaultFloat("KNOWLEDGE_MIN_SIMILARITY", 0.5),
			ContextMinSim:  envOrDefaultFloat("KNOWLEDGE_CONTEXT_MIN_SIMILARITY", 0.6),
			HighConfidence: envOrDefaultFloat("KNOWLEDGE_HIGH_CONFIDENCE", 0.7),
			TextSimilarity: envOrDefaultFloat("KNOWLEDGE_TEXT_SIMILARITY", 0.5),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicCalls:       envOrDefault("KAFKA_TOPIC_CALLS", "call.lifecycle"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "call.transcripts"),
			Principal:        envOrDefault("SERVICE_PRINCIPAL", "svc-call-bridge"),
		},
		Session: SessionConfig{
			MaxAge:        envOrDefaultDuration("SESSION_MAX_AGE", 30*time.Minute),
			SweepInterval: envOrDefaultDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			ContextWindow: envOrDefaultInt("SESSION_CONTEXT_WINDOW", 20),
			DedupeWindow:  envOrDefaultInt("SESSION_DEDUPE_WINDOW", 3),
		},
		Telephony: TelephonyConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			APIBaseURL: envOrDefault("TWILIO_API_BASE_URL", "https://api.twilio.com/2010-04-01"),
		},
		Observability: ObservabilityConfig{
			Port:     envOrDefault("METRICS_PORT", "9090"),
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Plain integers are treated as seconds, matching how the token TTL
		// was historically configured.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
