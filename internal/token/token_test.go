package token

import (
	"strings"
	"testing"
	"time"
)

func newTestCodec(ttl time.Duration) *Codec {
	return NewCodec("test-secret", ttl)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	tok := c.Issue("CA123")
	if !c.Verify(tok) {
		t.Error("freshly issued token should verify")
	}
}

func TestVerify_Expired(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	base := time.Now()
	c.now = func() time.Time { return base }
	tok := c.Issue("CA123")

	// Just inside the TTL
	c.now = func() time.Time { return base.Add(300 * time.Second) }
	if !c.Verify(tok) {
		t.Error("token at exactly TTL should still verify")
	}

	// Past the TTL
	c.now = func() time.Time { return base.Add(301 * time.Second) }
	if c.Verify(tok) {
		t.Error("token past TTL should not verify")
	}
}

func TestVerify_Malformed(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one field", "CA123"},
		{"two fields", "CA123:1700000000"},
		{"four fields", "CA123:1700000000:abc:extra"},
		{"non-numeric timestamp", "CA123:notatime:abcdef"},
		{"non-hex signature", "CA123:1700000000:zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c.Verify(tt.token) {
				t.Errorf("malformed token %q should not verify", tt.token)
			}
		})
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	tok := c.Issue("CA123")
	parts := strings.Split(tok, ":")

	// Flip the first hex digit of the signature
	sig := parts[2]
	var flipped byte = 'a'
	if sig[0] == 'a' {
		flipped = 'b'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(flipped) + sig[1:]

	if c.Verify(tampered) {
		t.Error("tampered signature should not verify")
	}
}

func TestVerify_TamperedCallID(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	tok := c.Issue("CA123")
	parts := strings.Split(tok, ":")
	tampered := "CA999:" + parts[1] + ":" + parts[2]

	if c.Verify(tampered) {
		t.Error("token re-bound to a different call should not verify")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewCodec("secret-a", 300*time.Second)
	verifier := NewCodec("secret-b", 300*time.Second)

	tok := issuer.Issue("CA123")
	if verifier.Verify(tok) {
		t.Error("token signed with a different secret should not verify")
	}
}

func TestCallID(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	tok := c.Issue("CA123")
	if got := CallID(tok); got != "CA123" {
		t.Errorf("expected call ID 'CA123', got %s", got)
	}
}

func TestSignPayload_Deterministic(t *testing.T) {
	c := newTestCodec(300 * time.Second)

	a := c.SignPayload([]byte(`{"tool":"book_appointment"}`))
	b := c.SignPayload([]byte(`{"tool":"book_appointment"}`))
	if a != b {
		t.Error("payload signature should be deterministic")
	}
	if a == c.SignPayload([]byte(`{"tool":"check_availability"}`)) {
		t.Error("different payloads should produce different signatures")
	}
}
