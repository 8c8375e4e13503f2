package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/models"
)

// SessionRepo is the relational authority for CallSessions. It implements
// statemachine.Persister.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// LoadSession returns the session for (tenantID, sessionToken), or nil if
// none exists yet (the caller creates one on the first webhook).
func (r *SessionRepo) LoadSession(ctx context.Context, tenantID, sessionToken string) (*models.CallSession, error) {
	var s models.CallSession
	var history, metadata []byte
	var duration sql.NullInt64
	var assignedAgent, assignedGroup sql.NullString

	err := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, session_token, carrier_call_id, direction, caller_id, destination, current_state,
		       entered_at, answered_at, ended_at, duration_seconds, assigned_agent_id, assigned_group_id,
		       history, metadata, created_at, updated_at
		FROM call_sessions WHERE tenant_id = $1 AND session_token = $2`, tenantID, sessionToken).Scan(
		&s.ID, &s.TenantID, &s.SessionToken, &s.CarrierCallID, &s.Direction, &s.CallerID, &s.Destination, &s.CurrentState,
		&s.EnteredAt, &s.AnsweredAt, &s.EndedAt, &duration, &assignedAgent, &assignedGroup,
		&history, &metadata, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if duration.Valid {
		n := int(duration.Int64)
		s.Duration = &n
	}
	if assignedAgent.Valid {
		s.AssignedAgentID = &assignedAgent.String
	}
	if assignedGroup.Valid {
		s.AssignedGroupID = &assignedGroup.String
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return nil, fmt.Errorf("unmarshal session history: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &s, nil
}

// SaveSession upserts the full session row, including history and current
// state, in a single statement — the atomic (state, history-append) commit
// the state machine's contract requires (spec.md §4.1).
func (r *SessionRepo) SaveSession(ctx context.Context, s *models.CallSession) error {
	history, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("marshal session history: %w", err)
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO call_sessions (id, tenant_id, session_token, carrier_call_id, direction, caller_id, destination,
			current_state, entered_at, answered_at, ended_at, duration_seconds, assigned_agent_id, assigned_group_id,
			history, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (tenant_id, session_token) DO UPDATE SET
			carrier_call_id = EXCLUDED.carrier_call_id,
			current_state = EXCLUDED.current_state,
			answered_at = EXCLUDED.answered_at,
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			assigned_agent_id = EXCLUDED.assigned_agent_id,
			assigned_group_id = EXCLUDED.assigned_group_id,
			history = EXCLUDED.history,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.TenantID, s.SessionToken, s.CarrierCallID, s.Direction, s.CallerID, s.Destination,
		s.CurrentState, s.EnteredAt, s.AnsweredAt, s.EndedAt, s.Duration, s.AssignedAgentID, s.AssignedGroupID,
		history, metadata, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ListSessionsForTenant supports the operator read API (SPEC_FULL.md §12.4),
// returning the most recently updated sessions first.
func (r *SessionRepo) ListSessionsForTenant(ctx context.Context, tenantID string, limit int) ([]models.CallSession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, tenant_id, session_token, carrier_call_id, direction, caller_id, destination, current_state,
		       entered_at, answered_at, ended_at, duration_seconds, assigned_agent_id, assigned_group_id,
		       history, metadata, created_at, updated_at
		FROM call_sessions WHERE tenant_id = $1 ORDER BY updated_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.CallSession
	for rows.Next() {
		var s models.CallSession
		var history, metadata []byte
		var duration sql.NullInt64
		var assignedAgent, assignedGroup sql.NullString
		if err := rows.Scan(&s.ID, &s.TenantID, &s.SessionToken, &s.CarrierCallID, &s.Direction, &s.CallerID, &s.Destination,
			&s.CurrentState, &s.EnteredAt, &s.AnsweredAt, &s.EndedAt, &duration, &assignedAgent, &assignedGroup,
			&history, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if duration.Valid {
			n := int(duration.Int64)
			s.Duration = &n
		}
		if assignedAgent.Valid {
			s.AssignedAgentID = &assignedAgent.String
		}
		if assignedGroup.Valid {
			s.AssignedGroupID = &assignedGroup.String
		}
		if len(history) > 0 {
			_ = json.Unmarshal(history, &s.History)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &s.Metadata)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListOrphaned returns non-terminal sessions last updated before cutoff, for
// the retention sweep (SPEC_FULL.md §12.3).
func (r *SessionRepo) ListOrphaned(ctx context.Context, cutoffUnix int64, terminalStates []string) ([]models.CallSession, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, tenant_id, session_token, carrier_call_id, direction, caller_id, destination, current_state,
		       entered_at, answered_at, ended_at, duration_seconds, assigned_agent_id, assigned_group_id,
		       history, metadata, created_at, updated_at
		FROM call_sessions
		WHERE updated_at < to_timestamp($1) AND NOT (current_state = ANY($2))`, cutoffUnix, terminalStates)
	if err != nil {
		return nil, fmt.Errorf("list orphaned sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.CallSession
	for rows.Next() {
		var s models.CallSession
		var history, metadata []byte
		var duration sql.NullInt64
		var assignedAgent, assignedGroup sql.NullString
		if err := rows.Scan(&s.ID, &s.TenantID, &s.SessionToken, &s.CarrierCallID, &s.Direction, &s.CallerID, &s.Destination,
			&s.CurrentState, &s.EnteredAt, &s.AnsweredAt, &s.EndedAt, &duration, &assignedAgent, &assignedGroup,
			&history, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan orphaned session: %w", err)
		}
		if duration.Valid {
			n := int(duration.Int64)
			s.Duration = &n
		}
		if len(history) > 0 {
			_ = json.Unmarshal(history, &s.History)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &s.Metadata)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
