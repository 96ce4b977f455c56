package telephony

import (
	"encoding/xml"
	"fmt"
)

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Dial    *twimlDial    `xml:"Dial,omitempty"`
	Reject  *twimlReject  `xml:"Reject,omitempty"`
}

type twimlDial struct {
	Number string `xml:",chardata"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type twimlReject struct {
	Reason string `xml:"reason,attr,omitempty"`
}

// StreamParams carries the call identity into the media stream as
// custom parameters, echoed back on the stream's start event.
type StreamParams struct {
	CallSID      string
	Token        string
	From         string
	To           string
	BusinessID   string
	BusinessName string
}

// ConnectStreamTwiML builds the instruction document that connects the
// call to the media stream endpoint at streamURL.
func ConnectStreamTwiML(streamURL string, params StreamParams) (string, error) {
	doc := twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: streamURL,
				Parameters: []twimlParameter{
					{Name: "callSid", Value: params.CallSID},
					{Name: "token", Value: params.Token},
					{Name: "from", Value: params.From},
					{Name: "to", Value: params.To},
					{Name: "businessId", Value: params.BusinessID},
					{Name: "businessName", Value: params.BusinessName},
				},
			},
		},
	}
	return renderTwiML(doc)
}

// RejectTwiML builds the instruction document that rejects a call.
func RejectTwiML() (string, error) {
	return renderTwiML(twimlResponse{Reject: &twimlReject{Reason: "rejected"}})
}

func renderTwiML(doc twimlResponse) (string, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal twiml: %w", err)
	}
	return xml.Header + string(body), nil
}
