package api

import "time"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	DB     string `json:"database"`
}

// ErrorResponse is the JSON body for non-2xx operator API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionSummary is the operator-facing projection of a CallSession row.
type SessionSummary struct {
	ID              string     `json:"id"`
	SessionToken    string     `json:"session_token"`
	CarrierCallID   string     `json:"carrier_call_id"`
	Direction       string     `json:"direction"`
	CallerID        string     `json:"caller_id"`
	Destination     string     `json:"destination"`
	CurrentState    string     `json:"current_state"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty"`
	AssignedGroupID *string    `json:"assigned_group_id,omitempty"`
	Duration        *int       `json:"duration_seconds,omitempty"`
	EnteredAt       time.Time  `json:"entered_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// SessionDetail adds history to SessionSummary for the single-session endpoint.
type SessionDetail struct {
	SessionSummary
	History []HistoryEntryView `json:"history"`
}

// HistoryEntryView is the JSON projection of a models.HistoryEntry.
type HistoryEntryView struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}
