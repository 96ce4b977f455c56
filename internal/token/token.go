// Package token issues and verifies signed call admission tokens.
//
// A token is `callId:issuedAt:signature` where the signature is an
// HMAC-SHA256 over `callId:issuedAt`. Tokens are stateless; a token is
// valid only while its age is within the configured TTL.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ai-call-bridge-service/internal/observability/metrics"
)

// Codec signs and verifies call admission tokens.
type Codec struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewCodec creates a token codec with the given signing secret and TTL.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.DefaultMetrics,
	}
}

// Issue mints a token bound to callID and the current timestamp.
func (c *Codec) Issue(callID string) string {
	issuedAt := c.now().Unix()
	data := fmt.Sprintf("%s:%d", callID, issuedAt)
	return data + ":" + c.sign(data)
}

// Verify reports whether token is well-formed, unexpired, and carries a
// valid signature. It fails closed: every malformed input returns false.
func (c *Codec) Verify(token string) bool {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		c.metrics.RecordTokenFailure("malformed")
		return false
	}

	callID, timestampStr, signature := parts[0], parts[1], parts[2]

	issuedAt, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		c.metrics.RecordTokenFailure("malformed")
		return false
	}

	if c.now().Unix()-issuedAt > int64(c.ttl.Seconds()) {
		c.metrics.RecordTokenFailure("expired")
		return false
	}

	expected := c.sign(callID + ":" + timestampStr)

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		c.metrics.RecordTokenFailure("malformed")
		return false
	}
	expectedBytes, _ := hex.DecodeString(expected)

	if !hmac.Equal(sigBytes, expectedBytes) {
		c.metrics.RecordTokenFailure("signature_mismatch")
		return false
	}

	return true
}

// CallID extracts the call ID from a token without verifying it.
// Useful only for log correlation on rejected tokens.
func CallID(token string) string {
	parts := strings.SplitN(token, ":", 2)
	return parts[0]
}

// SignPayload computes a hex HMAC-SHA256 signature over an arbitrary
// payload with the codec's secret. Used for outbound webhook signing.
func (c *Codec) SignPayload(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Codec) sign(data string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
