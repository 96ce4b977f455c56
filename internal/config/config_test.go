package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "PUBLIC_HOST", "LOG_LEVEL",
		"HMAC_TOKEN_SECRET", "CALL_TOKEN_TTL",
		"ENGINE_MODEL", "ENGINE_VOICE", "ENGINE_VAD_THRESHOLD",
		"ENGINE_VAD_SILENCE_MS", "ENGINE_GREETING_FIRST",
		"TRANSCRIPT_DEBOUNCE", "RETRIEVAL_TIMEOUT",
		"TOOL_WEBHOOK_TIMEOUT", "KNOWLEDGE_TOP_K",
		"SESSION_MAX_AGE", "SESSION_SWEEP_INTERVAL",
		"SESSION_CONTEXT_WINDOW", "SESSION_DEDUPE_WINDOW",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-call-bridge" {
		t.Errorf("expected default principal 'svc-call-bridge', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "5050" {
		t.Errorf("expected default port '5050', got %s", cfg.Service.HTTPPort)
	}

	if cfg.Token.Secret != "change-me-in-production" {
		t.Errorf("expected default token secret, got %s", cfg.Token.Secret)
	}
	if cfg.Token.TTL != 300*time.Second {
		t.Errorf("expected default token TTL 300s, got %v", cfg.Token.TTL)
	}

	if cfg.Engine.Model != "gpt-4o-realtime-preview" {
		t.Errorf("expected default engine model, got %s", cfg.Engine.Model)
	}
	if cfg.Engine.DefaultVoice != "alloy" {
		t.Errorf("expected default voice 'alloy', got %s", cfg.Engine.DefaultVoice)
	}
	if cfg.Engine.VADThreshold != 0.5 {
		t.Errorf("expected default VAD threshold 0.5, got %f", cfg.Engine.VADThreshold)
	}
	if cfg.Engine.SilenceDurationMs != 500 {
		t.Errorf("expected default silence duration 500, got %d", cfg.Engine.SilenceDurationMs)
	}
	if cfg.Engine.GreetingFirst != false {
		t.Errorf("expected greeting-first disabled by default, got %v", cfg.Engine.GreetingFirst)
	}
	if cfg.Engine.DebounceInterval != 50*time.Millisecond {
		t.Errorf("expected default debounce 50ms, got %v", cfg.Engine.DebounceInterval)
	}
	if cfg.Engine.RetrievalTimeout != 1500*time.Millisecond {
		t.Errorf("expected default retrieval timeout 1.5s, got %v", cfg.Engine.RetrievalTimeout)
	}

	if cfg.Tools.Timeout != 10*time.Second {
		t.Errorf("expected default tool webhook timeout 10s, got %v", cfg.Tools.Timeout)
	}

	if cfg.Knowledge.TopK != 3 {
		t.Errorf("expected default topK 3, got %d", cfg.Knowledge.TopK)
	}
	if cfg.Knowledge.HighConfidence != 0.7 {
		t.Errorf("expected default high-confidence 0.7, got %f", cfg.Knowledge.HighConfidence)
	}

	if cfg.Session.MaxAge != 30*time.Minute {
		t.Errorf("expected default session max age 30m, got %v", cfg.Session.MaxAge)
	}
	if cfg.Session.SweepInterval != 5*time.Minute {
		t.Errorf("expected default sweep interval 5m, got %v", cfg.Session.SweepInterval)
	}
	if cfg.Session.ContextWindow != 20 {
		t.Errorf("expected default context window 20, got %d", cfg.Session.ContextWindow)
	}
	if cfg.Session.DedupeWindow != 3 {
		t.Errorf("expected default dedupe window 3, got %d", cfg.Session.DedupeWindow)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("CALL_TOKEN_TTL", "600")
	os.Setenv("ENGINE_VOICE", "verse")
	os.Setenv("ENGINE_VAD_THRESHOLD", "0.3")
	os.Setenv("ENGINE_GREETING_FIRST", "true")
	os.Setenv("SESSION_MAX_AGE", "10m")
	os.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	defer func() {
		os.Unsetenv("SERVICE_PRINCIPAL")
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("CALL_TOKEN_TTL")
		os.Unsetenv("ENGINE_VOICE")
		os.Unsetenv("ENGINE_VAD_THRESHOLD")
		os.Unsetenv("ENGINE_GREETING_FIRST")
		os.Unsetenv("SESSION_MAX_AGE")
		os.Unsetenv("KAFKA_BROKERS")
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Token.TTL != 600*time.Second {
		t.Errorf("expected token TTL 600s from plain integer, got %v", cfg.Token.TTL)
	}
	if cfg.Engine.DefaultVoice != "verse" {
		t.Errorf("expected voice 'verse', got %s", cfg.Engine.DefaultVoice)
	}
	if cfg.Engine.VADThreshold != 0.3 {
		t.Errorf("expected VAD threshold 0.3, got %f", cfg.Engine.VADThreshold)
	}
	if cfg.Engine.GreetingFirst != true {
		t.Errorf("expected greeting-first enabled, got %v", cfg.Engine.GreetingFirst)
	}
	if cfg.Session.MaxAge != 10*time.Minute {
		t.Errorf("expected session max age 10m, got %v", cfg.Session.MaxAge)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("ENGINE_VAD_THRESHOLD", "not-a-number")
	os.Setenv("ENGINE_VAD_SILENCE_MS", "invalid")
	os.Setenv("ENGINE_GREETING_FIRST", "invalid")
	os.Setenv("SESSION_MAX_AGE", "invalid")

	defer func() {
		os.Unsetenv("ENGINE_VAD_THRESHOLD")
		os.Unsetenv("ENGINE_VAD_SILENCE_MS")
		os.Unsetenv("ENGINE_GREETING_FIRST")
		os.Unsetenv("SESSION_MAX_AGE")
	}()

	cfg := Load()

	if cfg.Engine.VADThreshold != 0.5 {
		t.Errorf("expected default VAD threshold on invalid input, got %f", cfg.Engine.VADThreshold)
	}
	if cfg.Engine.SilenceDurationMs != 500 {
		t.Errorf("expected default silence duration on invalid input, got %d", cfg.Engine.SilenceDurationMs)
	}
	if cfg.Engine.GreetingFirst != false {
		t.Errorf("expected default greeting-first on invalid input, got %v", cfg.Engine.GreetingFirst)
	}
	if cfg.Session.MaxAge != 30*time.Minute {
		t.Errorf("expected default session max age on invalid input, got %v", cfg.Session.MaxAge)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
