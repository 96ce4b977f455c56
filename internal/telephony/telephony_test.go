package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
)

func TestConnectStreamTwiML(t *testing.T) {
	twiml, err := ConnectStreamTwiML("wss://bridge.example.com/media-stream", StreamParams{
		CallSID:      "CA123",
		Token:        "CA123:1700000000:abcd",
		From:         "+15551230000",
		To:           "+15559998888",
		BusinessID:   "biz-1",
		BusinessName: "Glow Salon",
	})
	if err != nil {
		t.Fatalf("twiml generation failed: %v", err)
	}

	for _, want := range []string{
		`<Stream url="wss://bridge.example.com/media-stream">`,
		`<Parameter name="callSid" value="CA123">`,
		`<Parameter name="token" value="CA123:1700000000:abcd">`,
		`<Parameter name="from" value="+15551230000">`,
		`<Parameter name="businessId" value="biz-1">`,
		"<Connect>",
	} {
		if !strings.Contains(twiml, want) {
			t.Errorf("twiml missing %q:\n%s", want, twiml)
		}
	}
	if !strings.HasPrefix(twiml, "<?xml") {
		t.Error("twiml should start with the XML header")
	}
}

func TestConnectStreamTwiML_EscapesValues(t *testing.T) {
	twiml, err := ConnectStreamTwiML("wss://bridge.example.com/media-stream", StreamParams{
		CallSID:      "CA123",
		BusinessName: `Joe's "Best" <Cuts>`,
	})
	if err != nil {
		t.Fatalf("twiml generation failed: %v", err)
	}
	if strings.Contains(twiml, `<Cuts>`) {
		t.Errorf("business name not escaped:\n%s", twiml)
	}
}

func TestRejectTwiML(t *testing.T) {
	twiml, err := RejectTwiML()
	if err != nil {
		t.Fatalf("twiml generation failed: %v", err)
	}
	if !strings.Contains(twiml, `<Reject reason="rejected">`) {
		t.Errorf("unexpected reject twiml: %s", twiml)
	}
}

func TestStreamMessage_DecodeStart(t *testing.T) {
	raw := `{
		"event": "start",
		"streamSid": "MZ123",
		"start": {
			"streamSid": "MZ123",
			"callSid": "CA123",
			"tracks": ["inbound"],
			"customParameters": {"callSid": "CA123", "token": "tok", "from": "+1555", "to": "+1666"},
			"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1}
		}
	}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Event != "start" || msg.Start == nil {
		t.Fatal("start payload not decoded")
	}
	if msg.Start.CustomParameters["token"] != "tok" {
		t.Errorf("custom parameters not decoded: %+v", msg.Start.CustomParameters)
	}
	if msg.Start.MediaFormat.SampleRate != 8000 {
		t.Errorf("media format not decoded: %+v", msg.Start.MediaFormat)
	}
}

func TestStreamMessage_DecodeMedia(t *testing.T) {
	raw := `{"event": "media", "streamSid": "MZ123", "media": {"track": "inbound", "payload": "AAAA"}}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Media == nil || msg.Media.Payload != "AAAA" {
		t.Errorf("media payload not decoded: %+v", msg.Media)
	}
}

func TestValidateWebhookSignature(t *testing.T) {
	authToken := "secret-token"
	requestURL := "https://bridge.example.com/v1/voice/incoming"
	params := url.Values{
		"CallSid": {"CA123"},
		"From":    {"+15551230000"},
		"To":      {"+15559998888"},
	}

	// Expected payload: URL then params concatenated in sorted name order.
	payload := requestURL + "CallSidCA123From+15551230000To+15559998888"
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !ValidateWebhookSignature(authToken, signature, requestURL, params) {
		t.Error("valid signature rejected")
	}
	if ValidateWebhookSignature(authToken, "bogus", requestURL, params) {
		t.Error("invalid signature accepted")
	}
	if ValidateWebhookSignature(authToken, signature, requestURL+"x", params) {
		t.Error("signature for different URL accepted")
	}
	if ValidateWebhookSignature("", signature, requestURL, params) {
		t.Error("empty auth token should fail closed")
	}
	if ValidateWebhookSignature(authToken, "", requestURL, params) {
		t.Error("empty signature should fail closed")
	}
}
