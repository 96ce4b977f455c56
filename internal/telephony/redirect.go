package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-call-bridge-service/internal/observability/logging"
)

// Redirector moves a live call off the media stream, used for human
// handover.
type Redirector interface {
	RedirectToNumber(ctx context.Context, callSID, number string) error
}

// RESTRedirector updates live calls through the carrier REST API.
type RESTRedirector struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

// NewRESTRedirector creates a redirector for the given account.
func NewRESTRedirector(accountSID, authToken, baseURL string) *RESTRedirector {
	return &RESTRedirector{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// RedirectToNumber replaces the call's instructions with a dial to
// number, disconnecting the media stream.
func (r *RESTRedirector) RedirectToNumber(ctx context.Context, callSID, number string) error {
	dialTwiML, err := renderTwiML(twimlResponse{
		Say:  &twimlSay{Text: "Transferring you now, please hold."},
		Dial: &twimlDial{Number: number},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", r.baseURL, r.accountSID, callSID)
	form := url.Values{"Twiml": {dialTwiML}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build redirect request: %w", err)
	}
	req.SetBasicAuth(r.accountSID, r.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("redirect call %s: %w", callSID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("redirect call %s: carrier returned %d: %s", callSID, resp.StatusCode, body)
	}

	logging.WithComponent("telephony").Info().
		Str("callId", callSID).
		Msg("Call redirected to human")
	return nil
}
