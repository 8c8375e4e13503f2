package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/tenant"
)

// listSessionsHandler handles GET /api/v1/tenants/:id/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	tenantID := c.Param("id")
	tnt, err := s.tenants.GetByID(c.Request().Context(), tenantID)
	if err != nil {
		return mapEngineError(err)
	}
	if tnt == nil {
		return mapEngineError(engineerr.ErrNotFound)
	}
	if err := tenant.GuardID(tenantID, tnt.ID); err != nil {
		return mapEngineError(err)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	sessions, err := s.sessions.ListSessionsForTenant(c.Request().Context(), tenantID, limit)
	if err != nil {
		return mapEngineError(err)
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSummary(&sess))
	}
	return c.JSON(http.StatusOK, out)
}

// getSessionHandler handles GET /api/v1/tenants/:id/sessions/:token.
func (s *Server) getSessionHandler(c *echo.Context) error {
	tenantID := c.Param("id")
	token := c.Param("token")

	tnt, err := s.tenants.GetByID(c.Request().Context(), tenantID)
	if err != nil {
		return mapEngineError(err)
	}
	if tnt == nil {
		return mapEngineError(engineerr.ErrNotFound)
	}
	if err := tenant.GuardID(tenantID, tnt.ID); err != nil {
		return mapEngineError(err)
	}

	session, err := s.sessions.LoadSession(c.Request().Context(), tenantID, token)
	if err != nil {
		return mapEngineError(err)
	}
	if session == nil {
		return mapEngineError(engineerr.ErrNotFound)
	}
	if err := tenant.Guard(tenantID, session); err != nil {
		return mapEngineError(err)
	}

	detail := SessionDetail{SessionSummary: toSummary(session)}
	for _, h := range session.History {
		detail.History = append(detail.History, HistoryEntryView{
			From: string(h.From),
			To:   string(h.To),
			At:   h.At,
		})
	}
	return c.JSON(http.StatusOK, detail)
}

func toSummary(s *models.CallSession) SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		SessionToken:    s.SessionToken,
		CarrierCallID:   s.CarrierCallID,
		Direction:       string(s.Direction),
		CallerID:        s.CallerID,
		Destination:     s.Destination,
		CurrentState:    string(s.CurrentState),
		AssignedAgentID: s.AssignedAgentID,
		AssignedGroupID: s.AssignedGroupID,
		Duration:        s.Duration,
		EnteredAt:       s.EnteredAt,
		AnsweredAt:      s.AnsweredAt,
		EndedAt:         s.EndedAt,
	}
}
