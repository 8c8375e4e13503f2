// Package events implements the tenant-scoped broadcast channels from
// spec.md §4.8: dashboards subscribe to named per-tenant channels and
// receive a stable {type, data, timestamp} JSON envelope.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cloudonix/voicerouter/internal/store"
)

// Scope names the channel suffix a message is published on.
type Scope string

const (
	ScopeCalls      Scope = "calls"
	ScopeAgents     Scope = "agents"
	ScopeAnalytics  Scope = "analytics"
)

// Well-known event type identifiers, per spec.md §6 ("stable identifiers").
const (
	TypeCallCreated         = "call.created"
	TypeCallUpdated         = "call.updated"
	TypeAgentStatusUpdated  = "agent.status.updated"
	TypeAnalyticsUpdated    = "analytics.updated"
)

// envelope is the stable wire shape for every published message.
type envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher fire-and-forgets JSON events onto tenant-scoped channels.
type Publisher struct {
	store *store.Store
	log   *slog.Logger
}

// New creates a Publisher.
func New(s *store.Store, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{store: s, log: log}
}

// Publish sends eventType/data on the tenant's scope channel. Failures are
// logged at warn level and never propagated — publication must not impact
// webhook processing, per spec.md §4.8.
func (p *Publisher) Publish(ctx context.Context, tenantID string, scope Scope, eventType string, data any) {
	msg := envelope{Type: eventType, Data: data, Timestamp: time.Now()}
	raw, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("events: marshal failed", "error", err, "type", eventType, "tenant_id", tenantID)
		return
	}

	channel := store.TenantEventsChannel(tenantID, string(scope))
	if err := p.store.Publish(ctx, channel, string(raw)); err != nil {
		p.log.Warn("events: publish failed", "error", err, "channel", channel, "type", eventType)
	}
}
