package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudonix/voicerouter/internal/ccml"
	"github.com/cloudonix/voicerouter/internal/events"
	"github.com/cloudonix/voicerouter/internal/idempotency"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/routing"
	"github.com/cloudonix/voicerouter/internal/statemachine"
	"github.com/cloudonix/voicerouter/internal/store"
)

// routingLockTTL is the TTL on the per-session routing decision lock, per
// spec.md §5.
const routingLockTTL = 30 * time.Second

// TenantResolver maps a webhook's {domain} path segment to a tenant.
type TenantResolver interface {
	GetByDomain(ctx context.Context, domain string) (*models.Tenant, error)
}

// EventStore appends the audit trail for a webhook delivery.
type EventStore interface {
	AppendEvent(ctx context.Context, e *models.CallEvent) error
}

// RecordStore upserts finalized CDRs.
type RecordStore interface {
	UpsertRecord(ctx context.Context, rec *models.CallRecord) error
}

// Pipeline implements the three webhook entry points from spec.md §4.7.
type Pipeline struct {
	tenants TenantResolver
	machine *statemachine.Machine
	ledger  *idempotency.Ledger
	routing *routing.Engine
	events  EventStore
	records RecordStore
	pub     *events.Publisher
	store   *store.Store
	log     *slog.Logger
}

// New constructs a Pipeline.
func New(tenants TenantResolver, machine *statemachine.Machine, ledger *idempotency.Ledger, re *routing.Engine,
	ev EventStore, records RecordStore, pub *events.Publisher, st *store.Store, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{tenants: tenants, machine: machine, ledger: ledger, routing: re, events: ev, records: records, pub: pub, store: st, log: log}
}

func hangupCCML() string {
	doc, err := ccml.Hangup()
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return doc
}

func mergeMeta(existing map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(extra))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ApplicationRequest handles the initial call-setup webhook, returning the
// CCML body to send back to the carrier. Never returns an error: any
// failure is logged and converted to a hangup, per spec.md §4.7.
func (p *Pipeline) ApplicationRequest(ctx context.Context, domain string, req ApplicationRequestPayload) string {
	correlationID := uuid.New().String()
	log := p.log.With("correlation_id", correlationID, "call_sid", req.CallSid)

	tenant, err := p.tenants.GetByDomain(ctx, domain)
	if err != nil || tenant == nil {
		log.Error("webhook: tenant resolution failed", "domain", domain, "error", err)
		return hangupCCML()
	}
	log = log.With("tenant_id", tenant.ID)

	eventID := applicationRequestEventID(req)
	_, err = p.ledger.ExecuteOnce(ctx, tenant.ID, string(models.EventApplicationRequest), req.Session, eventID, func(ctx context.Context) error {
		return p.handleApplicationRequest(ctx, log, tenant.ID, correlationID, req)
	})
	if err != nil {
		log.Error("webhook: application request processing failed", "error", err)
	}

	session, err := p.machine.Get(ctx, tenant.ID, req.Session)
	if err != nil || session == nil {
		log.Error("webhook: reload session after processing failed", "error", err)
		return hangupCCML()
	}
	if doc, ok := session.Metadata["ccml"].(string); ok && doc != "" {
		return doc
	}
	return hangupCCML()
}

// handleApplicationRequest mutates the routing decision for req.Session.
// Concurrent duplicate deliveries for the same (tenant, session) pair are
// serialized through a 30-second TTL'd lock, per spec.md §5 — without it a
// retried or racing delivery could load/mutate/transition the session twice
// before either commit lands.
func (p *Pipeline) handleApplicationRequest(ctx context.Context, log *slog.Logger, tenantID, correlationID string, req ApplicationRequestPayload) error {
	lockKey := store.RoutingLockKey(tenantID, req.Session)
	lock, acquired, err := p.store.AcquireLock(ctx, lockKey, routingLockTTL)
	switch {
	case err != nil:
		log.Warn("webhook: routing lock acquisition failed, proceeding unlocked", "error", err)
	case !acquired:
		return fmt.Errorf("routing decision for session %s is already in progress", req.Session)
	default:
		defer func() {
			if err := p.store.Release(ctx, lock); err != nil {
				log.Warn("webhook: routing lock release failed", "error", err)
			}
		}()
	}

	now := time.Now()
	session, _ := p.machine.Get(ctx, tenantID, req.Session)
	if session == nil {
		session = &models.CallSession{
			ID:            uuid.New().String(),
			TenantID:      tenantID,
			SessionToken:  req.Session,
			CarrierCallID: req.CallSid,
			Direction:     mapDirection(req.Direction),
			CallerID:      req.From,
			Destination:   req.To,
			CurrentState:  models.StateReceived,
			EnteredAt:     now,
			Metadata:      map[string]any{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := p.machine.Transition(ctx, session, models.StateQueued, map[string]any{"event": "application_request"}); err != nil {
		log.Warn("webhook: received->queued transition rejected", "error", err)
	}

	result := p.routing.Decide(ctx, tenantID, correlationID, req.From, req.To)

	session.Metadata = mergeMeta(session.Metadata, map[string]any{
		"ccml":         result.CCML,
		"routing_kind": string(result.RoutingKind),
	})
	if result.SelectedAgent != nil {
		session.AssignedAgentID = &result.SelectedAgent.ID
	}

	if err := p.machine.Transition(ctx, session, models.StateRouting, nil); err != nil {
		log.Warn("webhook: queued->routing transition rejected", "error", err)
	}

	next := models.StateConnecting
	if !result.Success {
		next = models.StateFailed
	}
	if err := p.machine.Transition(ctx, session, next, map[string]any{"routing_kind": string(result.RoutingKind), "reason": result.Reason}); err != nil {
		log.Warn("webhook: routing transition rejected", "to", next, "error", err)
	}

	p.pub.Publish(ctx, tenantID, events.ScopeCalls, events.TypeCallCreated, map[string]any{
		"session_token": session.SessionToken,
		"state":         session.CurrentState,
		"routing_kind":  string(result.RoutingKind),
	})

	return nil
}

func mapDirection(raw string) models.Direction {
	if strings.HasPrefix(strings.ToLower(raw), "outbound") {
		return models.DirectionOutbound
	}
	return models.DirectionInbound
}

// SessionUpdate handles a lifecycle status update, always responding "OK".
func (p *Pipeline) SessionUpdate(ctx context.Context, domain string, upd SessionUpdatePayload) string {
	log := p.log.With("token", upd.Token)

	tenant, err := p.tenants.GetByDomain(ctx, domain)
	if err != nil || tenant == nil {
		log.Error("webhook: tenant resolution failed", "domain", domain, "error", err)
		return "OK"
	}
	log = log.With("tenant_id", tenant.ID)

	eventID := sessionUpdateEventID(upd)
	_, err = p.ledger.ExecuteOnce(ctx, tenant.ID, string(models.EventSessionUpdate), upd.Token, eventID, func(ctx context.Context) error {
		return p.handleSessionUpdate(ctx, log, tenant.ID, upd)
	})
	if err != nil {
		log.Error("webhook: session update processing failed", "error", err)
	}
	return "OK"
}

func (p *Pipeline) handleSessionUpdate(ctx context.Context, log *slog.Logger, tenantID string, upd SessionUpdatePayload) error {
	now := time.Now()
	session, _ := p.machine.Get(ctx, tenantID, upd.Token)
	if session == nil {
		session = &models.CallSession{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			SessionToken: upd.Token,
			CallerID:     upd.CallerID,
			Destination:  upd.Destination,
			CurrentState: models.StateReceived,
			EnteredAt:    now,
			Metadata:     map[string]any{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	if upd.Direction != nil {
		session.Direction = mapDirection(*upd.Direction)
	}

	mapped := statemachine.MapCarrierStatus(upd.Status)

	var opts []statemachine.TransitionOption
	if upd.AnswerTimeMS != nil && upd.CallStartTimeMS > 0 && *upd.AnswerTimeMS > upd.CallStartTimeMS {
		seconds := int((*upd.AnswerTimeMS - upd.CallStartTimeMS) / 1000)
		opts = append(opts, statemachine.WithCarrierDuration(seconds))
	}

	transitionErr := p.machine.Transition(ctx, session, mapped, map[string]any{
		"status":      upd.Status,
		"modified_at": upd.ModifiedAt,
	}, opts...)

	outcome := "applied"
	if transitionErr != nil {
		outcome = "rejected"
		log.Warn("webhook: session update rejected an illegal transition", "mapped_state", mapped, "error", transitionErr)
	}

	evt := &models.CallEvent{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		SessionToken: upd.Token,
		Kind:         models.EventSessionUpdate,
		Payload:      upd.Extra,
		OccurredAt:   now,
		Outcome:      outcome,
	}
	if err := p.events.AppendEvent(ctx, evt); err != nil {
		log.Warn("webhook: append call event failed", "error", err)
	}

	if transitionErr == nil {
		p.pub.Publish(ctx, tenantID, events.ScopeCalls, events.TypeCallUpdated, map[string]any{
			"session_token": upd.Token,
			"state":         session.CurrentState,
		})
	}

	return nil
}

// CdrCallback handles CDR finalization, always responding "OK".
func (p *Pipeline) CdrCallback(ctx context.Context, domain string, cdr CdrCallbackPayload) string {
	log := p.log.With("call_id", cdr.CallID)

	tenant, err := p.tenants.GetByDomain(ctx, domain)
	if err != nil || tenant == nil {
		log.Error("webhook: tenant resolution failed", "domain", domain, "error", err)
		return "OK"
	}
	log = log.With("tenant_id", tenant.ID)

	eventID := cdrCallbackEventID(cdr)
	_, err = p.ledger.ExecuteOnce(ctx, tenant.ID, string(models.EventCdrCallback), cdr.CallID, eventID, func(ctx context.Context) error {
		return p.handleCdrCallback(ctx, tenant.ID, cdr)
	})
	if err != nil {
		log.Error("webhook: cdr callback processing failed", "error", err)
	}
	return "OK"
}

func (p *Pipeline) handleCdrCallback(ctx context.Context, tenantID string, cdr CdrCallbackPayload) error {
	sessionToken, _ := cdr.Session["token"].(string)

	var tracked *models.CallSession
	if sessionToken != "" {
		tracked, _ = p.machine.Get(ctx, tenantID, sessionToken)
	}

	startTime := sessionTime(cdr.Session, "start_time", "call_start_time", "startTime")
	answerTime := sessionTime(cdr.Session, "answer_time", "answerTime")
	endTime := sessionTime(cdr.Session, "end_time", "endTime")
	direction := sessionString(cdr.Session, "direction")

	if tracked != nil {
		if startTime == nil {
			startTime = &tracked.EnteredAt
		}
		if answerTime == nil {
			answerTime = tracked.AnsweredAt
		}
		if endTime == nil {
			endTime = tracked.EndedAt
		}
		if direction == "" {
			direction = string(tracked.Direction)
		}
	}

	rec := &models.CallRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		SessionToken:  sessionToken,
		CarrierCallID: cdr.CallID,
		From:          cdr.From,
		To:            cdr.To,
		Direction:     mapDirection(direction),
		Disposition:   models.Disposition(mapDisposition(cdr.Disposition)),
		StartTime:     startTime,
		AnswerTime:    answerTime,
		EndTime:       endTime,
		BilledSecs:    cdr.DurationSeconds,
		RawPayload:    cdr.Extra,
	}
	return p.records.UpsertRecord(ctx, rec)
}

// sessionString reads the first matching string key from a CdrCallback
// payload's optional session sub-object, case-insensitively.
func sessionString(session map[string]any, keys ...string) string {
	for _, k := range keys {
		for sk, v := range session {
			if !strings.EqualFold(sk, k) {
				continue
			}
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// sessionTime reads the first matching timing key from a CdrCallback
// payload's optional session sub-object. Carriers report these either as
// epoch milliseconds or RFC3339 strings, so both are accepted.
func sessionTime(session map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		for sk, v := range session {
			if !strings.EqualFold(sk, k) {
				continue
			}
			switch n := v.(type) {
			case float64:
				t := time.UnixMilli(int64(n))
				return &t
			case string:
				if t, err := time.Parse(time.RFC3339, n); err == nil {
					return &t
				}
				if ms, err := strconv.ParseInt(n, 10, 64); err == nil {
					t := time.UnixMilli(ms)
					return &t
				}
			}
		}
	}
	return nil
}
