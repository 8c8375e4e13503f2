package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/models"
)

// AgentRepo persists VoiceAgents, AgentGroups, and Memberships.
type AgentRepo struct {
	db *DB
}

// NewAgentRepo constructs an AgentRepo.
func NewAgentRepo(db *DB) *AgentRepo { return &AgentRepo{db: db} }

func scanAgent(row interface{ Scan(...any) error }) (*models.VoiceAgent, error) {
	var a models.VoiceAgent
	var metadata []byte
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Provider, &a.ServiceValue, &a.Username, &a.Password, &a.Enabled, &metadata); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal agent metadata: %w", err)
		}
	}
	return &a, nil
}

// GetAgent loads a voice agent scoped to tenantID.
func (r *AgentRepo) GetAgent(ctx context.Context, tenantID, agentID string) (*models.VoiceAgent, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, provider, service_value, username, password, enabled, metadata
		FROM voice_agents WHERE tenant_id = $1 AND id = $2`, tenantID, agentID)

	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

// SaveAgent upserts a voice agent.
func (r *AgentRepo) SaveAgent(ctx context.Context, a *models.VoiceAgent) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal agent metadata: %w", err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO voice_agents (id, tenant_id, name, provider, service_value, username, password, enabled, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, provider = EXCLUDED.provider, service_value = EXCLUDED.service_value,
			username = EXCLUDED.username, password = EXCLUDED.password, enabled = EXCLUDED.enabled, metadata = EXCLUDED.metadata`,
		a.ID, a.TenantID, a.Name, a.Provider, a.ServiceValue, a.Username, a.Password, a.Enabled, metadata)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// GetGroup loads an agent group scoped to tenantID.
func (r *AgentRepo) GetGroup(ctx context.Context, tenantID, groupID string) (*models.AgentGroup, error) {
	var g models.AgentGroup
	var maxCalls sql.NullInt64
	err := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, strategy, enabled, lb_window_hours, lb_max_calls_per_agent,
		       priority_round_robin_same, rr_weighted_by_capacity
		FROM agent_groups WHERE tenant_id = $1 AND id = $2`, tenantID, groupID).Scan(
		&g.ID, &g.TenantID, &g.Name, &g.Strategy, &g.Enabled, &g.LoadBalanced.WindowHours, &maxCalls,
		&g.Priority.RoundRobinSamePriority, &g.RoundRobin.WeightedByCapacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if maxCalls.Valid {
		n := int(maxCalls.Int64)
		g.LoadBalanced.MaxCallsPerAgent = &n
	}
	return &g, nil
}

// GroupMembers loads every membership for groupID together with its agent,
// ordered by insertion (id ascending), scoped to tenantID.
func (r *AgentRepo) GroupMembers(ctx context.Context, tenantID, groupID string) ([]models.Member, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT m.id, m.group_id, m.agent_id, m.tenant_id, m.priority, m.capacity,
		       a.id, a.tenant_id, a.name, a.provider, a.service_value, a.username, a.password, a.enabled, a.metadata
		FROM memberships m
		JOIN voice_agents a ON a.id = m.agent_id
		WHERE m.tenant_id = $1 AND m.group_id = $2
		ORDER BY m.id ASC`, tenantID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		var capacity sql.NullInt64
		var metadata []byte
		if err := rows.Scan(&m.Membership.ID, &m.Membership.GroupID, &m.Membership.AgentID, &m.Membership.TenantID,
			&m.Membership.Priority, &capacity,
			&m.Agent.ID, &m.Agent.TenantID, &m.Agent.Name, &m.Agent.Provider, &m.Agent.ServiceValue,
			&m.Agent.Username, &m.Agent.Password, &m.Agent.Enabled, &metadata); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		if capacity.Valid {
			n := int(capacity.Int64)
			m.Membership.Capacity = &n
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Agent.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal member metadata: %w", err)
			}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SaveMembership upserts a (group, agent) relation. Capacity of exactly 0 is
// rejected here, per spec.md §4.2's configuration-time validation.
func (r *AgentRepo) SaveMembership(ctx context.Context, m *models.Membership) error {
	if m.Capacity != nil && *m.Capacity == 0 {
		return engineerr.NewValidation("capacity", "must be null (unlimited) or between 1 and 1000")
	}
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO memberships (id, group_id, agent_id, tenant_id, priority, capacity)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (group_id, agent_id) DO UPDATE SET priority = EXCLUDED.priority, capacity = EXCLUDED.capacity`,
		m.ID, m.GroupID, m.AgentID, m.TenantID, m.Priority, m.Capacity)
	if err != nil {
		return fmt.Errorf("save membership: %w", err)
	}
	return nil
}
