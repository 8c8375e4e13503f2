// Package ccml synthesizes and validates the carrier's call-control XML
// dialect described in spec.md §4.6: a small, closed grammar of Response,
// Dial, Service, Number, and Hangup verbs. There is no third-party XML
// library in the example pack (a corpus-wide search turned up no
// encoding/xml alternative in active use), so this package is built
// directly on the standard library's encoding/xml — see DESIGN.md.
package ccml

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/models"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Response is the CCML document root.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Dial    *Dial    `xml:"Dial"`
	Hangup  *Hangup  `xml:"Hangup"`
}

// Dial bridges the call to a voice agent, a trunk, or (via Number only) a
// bare destination.
type Dial struct {
	CallerID    string   `xml:"callerId,attr,omitempty"`
	Trunks      string   `xml:"trunks,attr,omitempty"`
	Timeout     *int     `xml:"timeout,attr,omitempty"`
	MaxDuration *int     `xml:"maxDuration,attr,omitempty"`
	Action      string   `xml:"action,attr,omitempty"`
	Method      string   `xml:"method,attr,omitempty"`
	Service     *Service `xml:"Service"`
	Number      *Number  `xml:"Number"`
}

// Service addresses a voice-agent endpoint. Username/Password are only
// populated when the provider requires authentication.
type Service struct {
	Provider string `xml:"provider,attr"`
	Username string `xml:"username,attr,omitempty"`
	Password string `xml:"password,attr,omitempty"`
	Value    string `xml:",chardata"`
}

// Number is a bare destination for trunk dialing.
type Number struct {
	Value string `xml:",chardata"`
}

// Hangup closes the call with no further instruction.
type Hangup struct{}

// emptyHangupTag is what encoding/xml always produces for the zero-field
// Hangup struct; the carrier's grammar requires the self-closed form
// instead (spec.md §8 Scenario 6), which encoding/xml has no way to emit
// directly, so it is rewritten after marshaling.
const emptyHangupTag = "<Hangup></Hangup>"
const selfClosedHangupTag = "<Hangup/>"

func marshal(r *Response) (string, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("ccml marshal: %w", err)
	}
	doc := strings.ReplaceAll(string(body), emptyHangupTag, selfClosedHangupTag)
	return xmlHeader + doc, nil
}

// DialVoiceAgent synthesizes a Response dialing a single voice agent.
func DialVoiceAgent(agent models.VoiceAgent, callerID string) (string, error) {
	service := &Service{Provider: string(agent.Provider), Value: agent.ServiceValue}
	if RequiresAuth(agent.Provider) {
		if agent.Username != nil {
			service.Username = *agent.Username
		}
		if agent.Password != nil {
			service.Password = *agent.Password
		}
	}
	return marshal(&Response{Dial: &Dial{CallerID: callerID, Service: service}})
}

// DialGroup delegates to DialVoiceAgent with the member a distribution
// strategy already selected.
func DialGroup(selected models.VoiceAgent, callerID string) (string, error) {
	return DialVoiceAgent(selected, callerID)
}

// TrunkDialOptions carries the optional per-dial attributes sourced from an
// OutboundRule's trunk_config (spec.md §4.6).
type TrunkDialOptions struct {
	TrunkIDs    []string
	RingTimeout *int
	MaxDuration *int
}

// DialTrunk synthesizes a Response dialing destination over a trunk set.
func DialTrunk(destination string, opts TrunkDialOptions, callerID string) (string, error) {
	dial := &Dial{CallerID: callerID, Number: &Number{Value: destination}}
	if len(opts.TrunkIDs) > 0 {
		dial.Trunks = joinCSV(opts.TrunkIDs)
	}
	dial.Timeout = opts.RingTimeout
	dial.MaxDuration = opts.MaxDuration
	return marshal(&Response{Dial: dial})
}

// Hangup synthesizes the unconditional hangup response.
func Hangup() (string, error) {
	return marshal(&Response{Hangup: &Hangup{}})
}

func joinCSV(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}

// Validate parses doc and checks it against the CCML grammar in spec.md
// §4.6: well-formed XML, root element Response, exactly one of {Dial,
// Hangup} as a direct child, and for Dial, exactly one of {Service, Number}.
func Validate(doc string) error {
	var r Response
	if err := xml.Unmarshal([]byte(doc), &r); err != nil {
		return engineerr.NewValidation("ccml", fmt.Sprintf("not well-formed XML: %v", err))
	}
	if r.XMLName.Local != "Response" {
		return engineerr.NewValidation("ccml", "root element must be Response")
	}

	switch {
	case r.Dial != nil && r.Hangup != nil:
		return engineerr.NewValidation("ccml", "Response must contain exactly one of Dial or Hangup")
	case r.Dial == nil && r.Hangup == nil:
		return engineerr.NewValidation("ccml", "Response must contain exactly one of Dial or Hangup")
	}

	if r.Dial != nil {
		switch {
		case r.Dial.Service != nil && r.Dial.Number != nil:
			return engineerr.NewValidation("ccml", "Dial must contain exactly one of Service or Number")
		case r.Dial.Service == nil && r.Dial.Number == nil:
			return engineerr.NewValidation("ccml", "Dial must contain exactly one of Service or Number")
		}
	}

	return validateElementSet(doc)
}

// allowedChildren enumerates the only legal child elements at each level of
// the grammar; anything else is a forbidden leaf per spec.md §6.
var allowedChildren = map[string]map[string]bool{
	"Response": {"Dial": true, "Hangup": true},
	"Dial":     {"Service": true, "Number": true},
}

// validateElementSet walks the token stream and rejects any element not in
// the closed grammar — unmarshal alone silently ignores unknown elements,
// which would let "leaves outside this set" slip through undetected.
func validateElementSet(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	var stack []string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				allowed, known := allowedChildren[parent]
				if known && !allowed[t.Name.Local] {
					return engineerr.NewValidation("ccml", fmt.Sprintf("element %q is not permitted inside %q", t.Name.Local, parent))
				}
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}
