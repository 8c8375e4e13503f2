// Package routing implements the routing decision engine from spec.md §4.4:
// it combines the pattern matcher and a distribution strategy to produce a
// CCML response, never letting an internal error leave a call hanging.
package routing

import (
	"context"
	"log/slog"

	"github.com/cloudonix/voicerouter/internal/ccml"
	"github.com/cloudonix/voicerouter/internal/distribution"
	"github.com/cloudonix/voicerouter/internal/matcher"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// Kind tags why a RoutingResult came out the way it did.
type Kind string

const (
	KindVoiceAgent   Kind = "voice_agent"
	KindAgentGroup   Kind = "agent_group"
	KindOutboundRule Kind = "outbound_rule"
	KindDefaultTrunk Kind = "default_trunk"
	KindHangup       Kind = "hangup"
)

// Result is the outcome of a routing decision, per spec.md §4.4.
type Result struct {
	Success       bool
	CCML          string
	RoutingKind   Kind
	Target        string
	SelectedAgent *models.VoiceAgent
	SelectedTrunk *models.Trunk
	Reason        string
	Metadata      map[string]any
}

func hangupResult(reason string) Result {
	doc, err := ccml.Hangup()
	if err != nil {
		// Hangup() has no failure modes in practice (fixed, always-valid
		// payload); doc falls back to a literal if marshaling ever changes.
		doc = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return Result{Success: false, CCML: doc, RoutingKind: KindHangup, Reason: reason}
}

// Repository is the relational lookup surface the routing engine needs.
// Implemented by internal/pgstore.
type Repository interface {
	GetAgent(ctx context.Context, tenantID, agentID string) (*models.VoiceAgent, error)
	GetGroup(ctx context.Context, tenantID, groupID string) (*models.AgentGroup, error)
	GroupMembers(ctx context.Context, tenantID, groupID string) ([]models.Member, error)
	InboundRules(ctx context.Context, tenantID string) ([]models.InboundRule, error)
	OutboundRules(ctx context.Context, tenantID string) ([]models.OutboundRule, error)
	GetTrunk(ctx context.Context, tenantID, trunkID string) (*models.Trunk, error)
	DefaultTrunk(ctx context.Context, tenantID string) (*models.Trunk, error)
}

// Engine produces routing decisions.
type Engine struct {
	repo  Repository
	store *store.Store
	log   *slog.Logger
}

// New constructs a routing Engine.
func New(repo Repository, s *store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{repo: repo, store: s, log: log}
}

// Decide resolves destination/callerID against the tenant's rules and
// returns a routing Result. It never returns an error to the caller: any
// internal failure is logged (with correlationID) and converted to a
// hangup, per spec.md §4.4.
func (e *Engine) Decide(ctx context.Context, tenantID, correlationID, callerID, destination string) Result {
	log := e.log.With("correlation_id", correlationID, "tenant_id", tenantID)

	outboundRules, err := e.repo.OutboundRules(ctx, tenantID)
	if err != nil {
		log.Error("routing: load outbound rules failed", "error", err)
		return hangupResult("internal error loading outbound rules")
	}

	if rule := matcher.MatchOutbound(outboundRules, callerID, destination); rule != nil {
		return e.decideOutbound(ctx, log, tenantID, *rule, destination, callerID)
	}

	inboundRules, err := e.repo.InboundRules(ctx, tenantID)
	if err != nil {
		log.Error("routing: load inbound rules failed", "error", err)
		return hangupResult("internal error loading inbound rules")
	}

	rule := matcher.MatchInbound(inboundRules, destination)
	if rule == nil {
		return hangupResult("no matching inbound rule")
	}

	switch rule.TargetKind {
	case models.TargetAgent:
		return e.decideAgent(ctx, log, tenantID, rule.TargetID, callerID)
	case models.TargetGroup:
		return e.decideGroup(ctx, log, tenantID, rule.TargetID, callerID)
	default:
		log.Warn("routing: inbound rule has unknown target kind", "target_kind", rule.TargetKind)
		return hangupResult("unknown target kind")
	}
}

func (e *Engine) decideAgent(ctx context.Context, log *slog.Logger, tenantID, agentID, callerID string) Result {
	agent, err := e.repo.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		log.Error("routing: load agent failed", "error", err, "agent_id", agentID)
		return hangupResult("internal error loading agent")
	}
	if !agent.CanDial(tenantID) {
		return hangupResult("target agent is disabled or not owned by tenant")
	}

	doc, err := ccml.DialVoiceAgent(*agent, callerID)
	if err != nil {
		log.Error("routing: synthesize ccml failed", "error", err)
		return hangupResult("internal error synthesizing ccml")
	}

	return Result{
		Success:       true,
		CCML:          doc,
		RoutingKind:   KindVoiceAgent,
		Target:        agent.ID,
		SelectedAgent: agent,
	}
}

func (e *Engine) decideGroup(ctx context.Context, log *slog.Logger, tenantID, groupID, callerID string) Result {
	group, err := e.repo.GetGroup(ctx, tenantID, groupID)
	if err != nil {
		log.Error("routing: load group failed", "error", err, "group_id", groupID)
		return hangupResult("internal error loading group")
	}
	if group == nil || group.TenantID != tenantID {
		return hangupResult("target group not found or not owned by tenant")
	}

	members, err := e.repo.GroupMembers(ctx, tenantID, groupID)
	if err != nil {
		log.Error("routing: load group members failed", "error", err, "group_id", groupID)
		return hangupResult("internal error loading group members")
	}

	if !models.CanRoute(*group, members) {
		return hangupResult("group disabled or has no enabled member")
	}

	strategy := distribution.NewStrategy(e.store, group.Strategy)
	selected, err := strategy.Select(ctx, *group, members)
	if err != nil {
		log.Error("routing: strategy select failed", "error", err, "group_id", groupID)
		return hangupResult("internal error selecting agent")
	}
	if selected == nil {
		return hangupResult("distribution strategy returned no member")
	}

	doc, err := ccml.DialGroup(selected.Agent, callerID)
	if err != nil {
		log.Error("routing: synthesize ccml failed", "error", err)
		return hangupResult("internal error synthesizing ccml")
	}

	// Record only after CCML synthesis succeeds, per spec.md §4.4.
	if err := strategy.Record(ctx, *group, selected.Agent.ID); err != nil {
		log.Warn("routing: strategy record failed", "error", err, "group_id", groupID, "agent_id", selected.Agent.ID)
	}

	return Result{
		Success:       true,
		CCML:          doc,
		RoutingKind:   KindAgentGroup,
		Target:        groupID,
		SelectedAgent: &selected.Agent,
	}
}

func (e *Engine) decideOutbound(ctx context.Context, log *slog.Logger, tenantID string, rule models.OutboundRule, destination, callerID string) Result {
	trunk := e.firstUsableTrunk(ctx, log, tenantID, rule.TrunkConfig.TrunkIDs)
	if trunk == nil {
		var err error
		trunk, err = e.repo.DefaultTrunk(ctx, tenantID)
		if err != nil {
			log.Error("routing: load default trunk failed", "error", err)
			return hangupResult("internal error loading default trunk")
		}
	}
	if trunk == nil {
		return hangupResult("no usable trunk for outbound rule")
	}

	doc, err := ccml.DialTrunk(destination, ccml.TrunkDialOptions{
		TrunkIDs:    []string{trunk.CarrierTrunkID},
		RingTimeout: rule.TrunkConfig.RingTimeout,
		MaxDuration: rule.TrunkConfig.MaxDuration,
	}, callerID)
	if err != nil {
		log.Error("routing: synthesize ccml failed", "error", err)
		return hangupResult("internal error synthesizing ccml")
	}

	kind := KindOutboundRule
	if trunk.IsDefault {
		kind = KindDefaultTrunk
	}

	return Result{
		Success:       true,
		CCML:          doc,
		RoutingKind:   kind,
		Target:        rule.ID,
		SelectedTrunk: trunk,
	}
}

// firstUsableTrunk returns the first enabled trunk among trunkIDs, in the
// order given, or nil if none is usable.
func (e *Engine) firstUsableTrunk(ctx context.Context, log *slog.Logger, tenantID string, trunkIDs []string) *models.Trunk {
	for _, id := range trunkIDs {
		trunk, err := e.repo.GetTrunk(ctx, tenantID, id)
		if err != nil {
			log.Warn("routing: load trunk failed", "error", err, "trunk_id", id)
			continue
		}
		if trunk != nil && trunk.Enabled && trunk.TenantID == tenantID {
			return trunk
		}
	}
	return nil
}
