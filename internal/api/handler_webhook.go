package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cloudonix/voicerouter/internal/webhook"
)

const hangupXML = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

// validateCarrierHeaders checks X-CX-Domain/X-CX-APIKey against the tenant
// resolved from the {domain} path segment, per spec.md §6.
func (s *Server) validateCarrierHeaders(c *echo.Context, domain string) bool {
	headerDomain := c.Request().Header.Get("X-CX-Domain")
	apiKey := c.Request().Header.Get("X-CX-APIKey")
	if headerDomain == "" || headerDomain != domain {
		return false
	}
	tenant, err := s.tenants.GetByDomain(c.Request().Context(), domain)
	if err != nil || tenant == nil {
		return false
	}
	return apiKey != "" && apiKey == tenant.APIKey
}

// applicationRequestHandler handles POST /voice/application/:domain.
func (s *Server) applicationRequestHandler(c *echo.Context) error {
	domain := c.Param("domain")
	if !s.validateCarrierHeaders(c, domain) {
		return c.XMLBlob(http.StatusOK, []byte(hangupXML))
	}

	fm, err := decodeBody(c)
	if err != nil {
		return c.XMLBlob(http.StatusOK, []byte(hangupXML))
	}

	payload := webhook.ApplicationRequestPayload{
		CallSid:   fm.str("CallSid", "call_sid"),
		From:      fm.str("From"),
		To:        fm.str("To"),
		Direction: fm.str("Direction"),
		Session:   fm.str("Session"),
		Extra:     fm.extra("callsid", "call_sid", "from", "to", "direction", "session"),
	}

	doc := s.pipeline.ApplicationRequest(c.Request().Context(), domain, payload)
	return c.XMLBlob(http.StatusOK, []byte(doc))
}

// sessionUpdateHandler handles POST /voice/session/update/:domain.
func (s *Server) sessionUpdateHandler(c *echo.Context) error {
	domain := c.Param("domain")
	if !s.validateCarrierHeaders(c, domain) {
		return c.String(http.StatusOK, "OK")
	}

	fm, err := decodeBody(c)
	if err != nil {
		return c.String(http.StatusOK, "OK")
	}

	payload := webhook.SessionUpdatePayload{
		ID:              fm.str("id"),
		Token:           fm.str("token"),
		Domain:          domain,
		CallerID:        fm.str("callerId", "caller_id"),
		Destination:     fm.str("destination"),
		Status:          fm.str("status"),
		CallStartTimeMS: fm.int64("callStartTime", "call_start_time"),
		ModifiedAt:      fm.str("modifiedAt", "modified_at"),
		AnswerTimeMS:    fm.int64Ptr("answerTime", "answer_time"),
		VappServer:      fm.strPtr("vappServer", "vapp_server"),
		Direction:       fm.strPtr("direction"),
		CreatedAt:       fm.strPtr("createdAt", "created_at"),
		Extra: fm.extra("id", "token", "domain", "callerid", "caller_id", "destination", "status",
			"callstarttime", "call_start_time", "modifiedat", "modified_at", "answertime", "answer_time",
			"vappserver", "vapp_server", "direction", "createdat", "created_at"),
	}

	resp := s.pipeline.SessionUpdate(c.Request().Context(), domain, payload)
	return c.String(http.StatusOK, resp)
}

// cdrCallbackHandler handles POST /voice/session/cdr/:domain.
func (s *Server) cdrCallbackHandler(c *echo.Context) error {
	domain := c.Param("domain")
	if !s.validateCarrierHeaders(c, domain) {
		return c.String(http.StatusOK, "OK")
	}

	fm, err := decodeBody(c)
	if err != nil {
		return c.String(http.StatusOK, "OK")
	}

	var session map[string]any
	if v, ok := fm["session"]; ok {
		if m, ok := v.(map[string]any); ok {
			session = m
		}
	}

	payload := webhook.CdrCallbackPayload{
		CallID:          fm.str("call_id", "callId"),
		From:            fm.str("from"),
		To:              fm.str("to"),
		Domain:          domain,
		Disposition:     fm.str("disposition"),
		DurationSeconds: fm.int("duration"),
		Session:         session,
		Extra:           fm.extra("call_id", "callid", "from", "to", "domain", "disposition", "duration", "session"),
	}

	resp := s.pipeline.CdrCallback(c.Request().Context(), domain, payload)
	return c.String(http.StatusOK, resp)
}
