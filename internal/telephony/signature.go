package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// ValidateWebhookSignature checks the carrier's webhook signature: an
// HMAC-SHA1 over the full request URL followed by the POST parameters
// concatenated as name+value in sorted name order, base64-encoded.
func ValidateWebhookSignature(authToken, signature, requestURL string, params url.Values) bool {
	if authToken == "" || signature == "" {
		return false
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := requestURL
	for _, name := range names {
		for _, value := range params[name] {
			payload += name + value
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
