package webhook

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudonix/voicerouter/internal/events"
	"github.com/cloudonix/voicerouter/internal/idempotency"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/routing"
	"github.com/cloudonix/voicerouter/internal/statemachine"
	"github.com/cloudonix/voicerouter/internal/store"
)

type fakeTenants struct {
	byDomain map[string]*models.Tenant
}

func (f *fakeTenants) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return f.byDomain[domain], nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]*models.CallSession
}

func newFakeSessions() *fakeSessions { return &fakeSessions{byID: map[string]*models.CallSession{}} }

func (f *fakeSessions) key(tenantID, token string) string { return tenantID + ":" + token }

func (f *fakeSessions) SaveSession(ctx context.Context, s *models.CallSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.byID[f.key(s.TenantID, s.SessionToken)] = &cp
	return nil
}

func (f *fakeSessions) LoadSession(ctx context.Context, tenantID, sessionToken string) (*models.CallSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[f.key(tenantID, sessionToken)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

type fakeRoutingRepo struct {
	agents       map[string]*models.VoiceAgent
	inboundRules []models.InboundRule
}

func (f *fakeRoutingRepo) GetAgent(ctx context.Context, tenantID, agentID string) (*models.VoiceAgent, error) {
	return f.agents[agentID], nil
}
func (f *fakeRoutingRepo) GetGroup(ctx context.Context, tenantID, groupID string) (*models.AgentGroup, error) {
	return nil, nil
}
func (f *fakeRoutingRepo) GroupMembers(ctx context.Context, tenantID, groupID string) ([]models.Member, error) {
	return nil, nil
}
func (f *fakeRoutingRepo) InboundRules(ctx context.Context, tenantID string) ([]models.InboundRule, error) {
	return f.inboundRules, nil
}
func (f *fakeRoutingRepo) OutboundRules(ctx context.Context, tenantID string) ([]models.OutboundRule, error) {
	return nil, nil
}
func (f *fakeRoutingRepo) GetTrunk(ctx context.Context, tenantID, trunkID string) (*models.Trunk, error) {
	return nil, nil
}
func (f *fakeRoutingRepo) DefaultTrunk(ctx context.Context, tenantID string) (*models.Trunk, error) {
	return nil, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []*models.CallEvent
}

func (f *fakeEventStore) AppendEvent(ctx context.Context, e *models.CallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeRecordStore struct {
	mu      sync.Mutex
	records []*models.CallRecord
}

func (f *fakeRecordStore) UpsertRecord(ctx context.Context, rec *models.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type testHarness struct {
	pipeline *Pipeline
	sessions *fakeSessions
	eventSt  *fakeEventStore
	recordSt *fakeRecordStore
	store    *store.Store
}

func newTestHarness(t *testing.T, repo *fakeRoutingRepo) *testHarness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.New(rdb, time.Second)

	sessions := newFakeSessions()
	machine := statemachine.New(s, sessions, time.Hour)
	ledger := idempotency.New(s, time.Hour)
	re := routing.New(repo, s, slog.Default())
	eventSt := &fakeEventStore{}
	recordSt := &fakeRecordStore{}
	pub := events.New(s, slog.Default())

	tenants := &fakeTenants{byDomain: map[string]*models.Tenant{
		"acme.cx": {ID: "t1", Domain: "acme.cx", Name: "Acme"},
	}}

	p := New(tenants, machine, ledger, re, eventSt, recordSt, pub, s, slog.Default())
	return &testHarness{pipeline: p, sessions: sessions, eventSt: eventSt, recordSt: recordSt, store: s}
}

func TestApplicationRequest_RoutesToAgent(t *testing.T) {
	repo := &fakeRoutingRepo{
		agents: map[string]*models.VoiceAgent{
			"agent-1": {ID: "agent-1", TenantID: "t1", Provider: models.ProviderVapi, ServiceValue: "asst_1", Enabled: true},
		},
		inboundRules: []models.InboundRule{
			{ID: "r1", TenantID: "t1", Pattern: "+1234567890", TargetKind: models.TargetAgent, TargetID: "agent-1", Priority: 1, Enabled: true},
		},
	}
	h := newTestHarness(t, repo)

	doc := h.pipeline.ApplicationRequest(context.Background(), "acme.cx", ApplicationRequestPayload{
		CallSid: "CA1", From: "+1999", To: "+1234567890", Session: "sess-1",
	})

	assert.Contains(t, doc, `<Service provider="vapi">asst_1</Service>`)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.StateConnecting, session.CurrentState)
}

func TestApplicationRequest_HangsUpOnNoMatch(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	doc := h.pipeline.ApplicationRequest(context.Background(), "acme.cx", ApplicationRequestPayload{
		CallSid: "CA2", From: "+1999", To: "+1234567890", Session: "sess-2",
	})

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`, doc)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-2")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, session.CurrentState)
}

func TestApplicationRequest_DuplicateDeliveryReturnsSameCCMLWithoutReRouting(t *testing.T) {
	repo := &fakeRoutingRepo{
		agents: map[string]*models.VoiceAgent{
			"agent-1": {ID: "agent-1", TenantID: "t1", Provider: models.ProviderVapi, ServiceValue: "asst_1", Enabled: true},
		},
		inboundRules: []models.InboundRule{
			{ID: "r1", TenantID: "t1", Pattern: "+1234567890", TargetKind: models.TargetAgent, TargetID: "agent-1", Priority: 1, Enabled: true},
		},
	}
	h := newTestHarness(t, repo)

	payload := ApplicationRequestPayload{CallSid: "CA3", From: "+1999", To: "+1234567890", Session: "sess-3"}
	first := h.pipeline.ApplicationRequest(context.Background(), "acme.cx", payload)
	second := h.pipeline.ApplicationRequest(context.Background(), "acme.cx", payload)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "asst_1")
}

func TestApplicationRequest_SkipsRoutingWhileLockIsHeld(t *testing.T) {
	repo := &fakeRoutingRepo{
		agents: map[string]*models.VoiceAgent{
			"agent-1": {ID: "agent-1", TenantID: "t1", Provider: models.ProviderVapi, ServiceValue: "asst_1", Enabled: true},
		},
		inboundRules: []models.InboundRule{
			{ID: "r1", TenantID: "t1", Pattern: "+1234567890", TargetKind: models.TargetAgent, TargetID: "agent-1", Priority: 1, Enabled: true},
		},
	}
	h := newTestHarness(t, repo)

	lockKey := store.RoutingLockKey("t1", "sess-locked")
	lock, acquired, err := h.store.AcquireLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _ = h.store.Release(context.Background(), lock) }()

	doc := h.pipeline.ApplicationRequest(context.Background(), "acme.cx", ApplicationRequestPayload{
		CallSid: "CA9", From: "+1999", To: "+1234567890", Session: "sess-locked",
	})

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`, doc)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-locked")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionUpdate_DuplicateDeliveryAppliesOnce(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	seed := &models.CallSession{
		ID: "s1", TenantID: "t1", SessionToken: "sess-4",
		CurrentState: models.StateConnecting, EnteredAt: time.Now(), Metadata: map[string]any{},
	}
	require.NoError(t, h.sessions.SaveSession(context.Background(), seed))

	upd := SessionUpdatePayload{Token: "sess-4", Domain: "acme.cx", Status: "answer", ModifiedAt: "2026-08-01T00:00:00Z"}

	r1 := h.pipeline.SessionUpdate(context.Background(), "acme.cx", upd)
	r2 := h.pipeline.SessionUpdate(context.Background(), "acme.cx", upd)

	assert.Equal(t, "OK", r1)
	assert.Equal(t, "OK", r2)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-4")
	require.NoError(t, err)
	assert.Equal(t, models.StateConnected, session.CurrentState)
	assert.Len(t, session.History, 1)

	assert.Len(t, h.eventSt.events, 1)
}

func TestSessionUpdate_ComputesDurationFromCarrierTimestampsWhenBothPresent(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	seed := &models.CallSession{
		ID: "s8", TenantID: "t1", SessionToken: "sess-8",
		CurrentState: models.StateConnected, EnteredAt: time.Now(), Metadata: map[string]any{},
	}
	require.NoError(t, h.sessions.SaveSession(context.Background(), seed))

	callStartMS := int64(1_000_000)
	answerMS := callStartMS + 12_000
	upd := SessionUpdatePayload{
		Token: "sess-8", Domain: "acme.cx", Status: "completed", ModifiedAt: "2026-08-01T00:00:00Z",
		CallStartTimeMS: callStartMS, AnswerTimeMS: &answerMS,
	}

	resp := h.pipeline.SessionUpdate(context.Background(), "acme.cx", upd)
	assert.Equal(t, "OK", resp)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-8")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, session.CurrentState)
	require.NotNil(t, session.Duration)
	assert.Equal(t, 12, *session.Duration)
}

func TestSessionUpdate_IllegalTransitionLeavesStateUnchanged(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	seed := &models.CallSession{
		ID: "s2", TenantID: "t1", SessionToken: "sess-5",
		CurrentState: models.StateCompleted, EnteredAt: time.Now(), Metadata: map[string]any{},
		History: []models.HistoryEntry{{From: models.StateConnected, To: models.StateCompleted, At: time.Now()}},
	}
	require.NoError(t, h.sessions.SaveSession(context.Background(), seed))

	upd := SessionUpdatePayload{Token: "sess-5", Domain: "acme.cx", Status: "connected", ModifiedAt: "2026-08-01T00:00:00Z"}
	resp := h.pipeline.SessionUpdate(context.Background(), "acme.cx", upd)

	assert.Equal(t, "OK", resp)

	session, err := h.sessions.LoadSession(context.Background(), "t1", "sess-5")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, session.CurrentState)

	require.Len(t, h.eventSt.events, 1)
	assert.Equal(t, "rejected", h.eventSt.events[0].Outcome)
}

func TestCdrCallback_UpsertsRecordWithMappedDisposition(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	cdr := CdrCallbackPayload{
		CallID: "call-1", From: "+1999", To: "+1234567890", Domain: "acme.cx",
		Disposition: "connected", DurationSeconds: 42,
		Session: map[string]any{
			"token":       "sess-6",
			"start_time":  "2026-08-01T00:00:00Z",
			"answer_time": "2026-08-01T00:00:02Z",
			"end_time":    "2026-08-01T00:00:44Z",
			"direction":   "outbound",
		},
	}
	resp := h.pipeline.CdrCallback(context.Background(), "acme.cx", cdr)

	assert.Equal(t, "OK", resp)
	require.Len(t, h.recordSt.records, 1)
	rec := h.recordSt.records[0]
	assert.Equal(t, models.DispositionAnswer, rec.Disposition)
	assert.Equal(t, "sess-6", rec.SessionToken)
	assert.Equal(t, 42, rec.BilledSecs)
	assert.Equal(t, models.DirectionOutbound, rec.Direction)
	require.NotNil(t, rec.StartTime)
	require.NotNil(t, rec.AnswerTime)
	require.NotNil(t, rec.EndTime)
	assert.True(t, rec.StartTime.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rec.AnswerTime.Equal(time.Date(2026, 8, 1, 0, 0, 2, 0, time.UTC)))
	assert.True(t, rec.EndTime.Equal(time.Date(2026, 8, 1, 0, 0, 44, 0, time.UTC)))
}

func TestCdrCallback_FallsBackToTrackedSessionTimingWhenPayloadOmitsIt(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	answered := time.Date(2026, 8, 1, 0, 0, 2, 0, time.UTC)
	seed := &models.CallSession{
		ID: "s7", TenantID: "t1", SessionToken: "sess-7", Direction: models.DirectionInbound,
		CurrentState: models.StateConnected, EnteredAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		AnsweredAt: &answered, Metadata: map[string]any{},
	}
	require.NoError(t, h.sessions.SaveSession(context.Background(), seed))

	cdr := CdrCallbackPayload{
		CallID: "call-7", From: "+1999", To: "+1234567890", Domain: "acme.cx",
		Disposition: "answer", DurationSeconds: 10,
		Session: map[string]any{"token": "sess-7"},
	}
	resp := h.pipeline.CdrCallback(context.Background(), "acme.cx", cdr)

	assert.Equal(t, "OK", resp)
	require.Len(t, h.recordSt.records, 1)
	rec := h.recordSt.records[0]
	assert.Equal(t, models.DirectionInbound, rec.Direction)
	require.NotNil(t, rec.StartTime)
	require.NotNil(t, rec.AnswerTime)
	assert.True(t, rec.StartTime.Equal(seed.EnteredAt))
	assert.True(t, rec.AnswerTime.Equal(answered))
}

func TestCdrCallback_UnknownTenantIsIgnoredGracefully(t *testing.T) {
	repo := &fakeRoutingRepo{}
	h := newTestHarness(t, repo)

	resp := h.pipeline.CdrCallback(context.Background(), "unknown.cx", CdrCallbackPayload{CallID: "call-2"})
	assert.Equal(t, "OK", resp)
	assert.Empty(t, h.recordSt.records)
}
