package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func TestWithCall_ChainsAndCarriesFields(t *testing.T) {
	buf := captureOutput(t)

	WithCall("CA123", "biz-1").Info().Msg("call event")

	out := buf.String()
	for _, want := range []string{`"callId":"CA123"`, `"businessId":"biz-1"`, "call event"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestWithStream_ChainsAndCarriesFields(t *testing.T) {
	buf := captureOutput(t)

	WithStream("CA123", "biz-1", "MZ123").Warn().Msg("stream event")

	out := buf.String()
	for _, want := range []string{`"callId":"CA123"`, `"streamId":"MZ123"`, "stream event"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestWithComponent_ChainsAndCarriesFields(t *testing.T) {
	buf := captureOutput(t)

	WithComponent("bridge").Error().Msg("component event")

	out := buf.String()
	for _, want := range []string{`"component":"bridge"`, "component event"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}
