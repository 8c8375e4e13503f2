package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// deriveEventID builds a stable id when the carrier does not supply one,
// per spec.md §4.5: a SHA-256 of an event-kind-specific subset of fields.
// fields must be passed in a fixed order — callers own picking that order,
// this just hashes whatever canonical string they hand it.
func deriveEventID(kind string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func applicationRequestEventID(req ApplicationRequestPayload) string {
	return deriveEventID("application_request", req.CallSid, req.Session, req.From, req.To)
}

func sessionUpdateEventID(upd SessionUpdatePayload) string {
	return deriveEventID("session_update", upd.Token, upd.Status, upd.ModifiedAt, fmt.Sprintf("%d", upd.CallStartTimeMS))
}

func cdrCallbackEventID(cdr CdrCallbackPayload) string {
	return deriveEventID("cdr_callback", cdr.CallID, cdr.Domain, cdr.Disposition)
}
