// Package webhook implements the three carrier entry points from
// spec.md §4.7: ApplicationRequest, SessionUpdate, and CdrCallback. Every
// entry point is wrapped by the idempotency ledger and never propagates a
// raw error to the carrier — failures degrade to a hangup or a plain "OK".
package webhook

import "strings"

// ApplicationRequestPayload is the inbound call-setup payload, per
// spec.md §6. Fields beyond the required set are carried in Extra.
type ApplicationRequestPayload struct {
	CallSid   string
	From      string
	To        string
	Direction string
	Session   string
	Extra     map[string]any
}

// SessionUpdatePayload is a lifecycle status update, per spec.md §6.
type SessionUpdatePayload struct {
	ID              string
	Token           string
	Domain          string
	CallerID        string
	Destination     string
	Status          string
	CallStartTimeMS int64
	ModifiedAt      string
	AnswerTimeMS    *int64
	VappServer      *string
	Direction       *string
	CreatedAt       *string
	Extra           map[string]any
}

// CdrCallbackPayload finalizes a call, per spec.md §6.
type CdrCallbackPayload struct {
	CallID          string
	From            string
	To              string
	Domain          string
	Disposition     string
	DurationSeconds int
	Session         map[string]any
	Extra           map[string]any
}

// mapDisposition implements the case-insensitive disposition table from
// spec.md §6. Anything unrecognized is conservatively stored as FAILED.
func mapDisposition(raw string) string {
	switch strings.ToUpper(raw) {
	case "CONNECTED", "ANSWERED", "ANSWER":
		return "ANSWER"
	case "BUSY":
		return "BUSY"
	case "CANCEL":
		return "CANCEL"
	case "CONGESTION":
		return "CONGESTION"
	case "NOANSWER", "NO ANSWER":
		return "NOANSWER"
	case "FAILED":
		return "FAILED"
	default:
		return "FAILED"
	}
}
