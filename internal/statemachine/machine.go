// Package statemachine implements the call session lifecycle: validated
// transitions, persisted history, and the relational-then-cache read path
// described in spec.md §4.1 and §9.
package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// Persister is the relational authority for call sessions. Implemented by
// internal/pgstore.SessionRepo.
type Persister interface {
	SaveSession(ctx context.Context, session *models.CallSession) error
	LoadSession(ctx context.Context, tenantID, sessionToken string) (*models.CallSession, error)
}

// Machine applies validated transitions to CallSessions, persisting to the
// relational authority and refreshing the store cache on every commit.
type Machine struct {
	store     *store.Store
	persister Persister
	cacheTTL  time.Duration
}

// New creates a Machine. cacheTTL should match spec.md §6's 24h TTL for the
// session-state cache key.
func New(s *store.Store, persister Persister, cacheTTL time.Duration) *Machine {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Machine{store: s, persister: persister, cacheTTL: cacheTTL}
}

// cachedState is the compact representation stored under
// tenant:{t}:session:{token}:state.
type cachedState struct {
	CurrentState models.CallState        `json:"current_state"`
	History      []models.HistoryEntry   `json:"history"`
}

// Get returns the session, loading the relational copy first and then
// reconciling it against the store cache when a cached entry exists. State
// machines are never rehydrated from the cache alone — see spec.md §9.
func (m *Machine) Get(ctx context.Context, tenantID, sessionToken string) (*models.CallSession, error) {
	session, err := m.persister.LoadSession(ctx, tenantID, sessionToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, engineerr.ErrNotFound
	}

	if cached, ok := m.readCache(ctx, tenantID, sessionToken); ok {
		// Reconcile: cache is a coordination hint, relational is authority.
		// If they disagree, trust the relational row but prefer the more
		// advanced history (cache may be ahead by one commit under races).
		if len(cached.History) > len(session.History) {
			session.CurrentState = cached.CurrentState
			session.History = cached.History
		}
	}

	return session, nil
}

func (m *Machine) readCache(ctx context.Context, tenantID, sessionToken string) (*cachedState, bool) {
	raw, found, err := m.store.GetString(ctx, store.SessionStateKey(tenantID, sessionToken))
	if err != nil || !found {
		return nil, false
	}
	var cs cachedState
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return nil, false
	}
	return &cs, true
}

func (m *Machine) writeCache(ctx context.Context, session *models.CallSession) {
	cs := cachedState{CurrentState: session.CurrentState, History: session.History}
	raw, err := json.Marshal(cs)
	if err != nil {
		return
	}
	// Best-effort: the relational write already committed by the time this
	// runs, so a cache failure only costs a future read its fast path.
	_ = m.store.SetString(ctx, store.SessionStateKey(session.TenantID, session.SessionToken), string(raw), m.cacheTTL)
}

// TransitionOption customizes a single Transition call.
type TransitionOption func(*transitionOpts)

type transitionOpts struct {
	duration *int
}

// WithCarrierDuration overrides the wall-clock-derived duration with one
// computed from the carrier's own call-start/answer timestamps, per
// spec.md §4.7 point 2. Use this when a SessionUpdate payload reports both;
// server processing time is not a reliable substitute once delivery is
// delayed, retried, or replayed.
func WithCarrierDuration(seconds int) TransitionOption {
	return func(o *transitionOpts) { o.duration = &seconds }
}

// Transition attempts to move session to `to`, appending a history entry
// with the supplied metadata. On success the session is mutated in place,
// persisted, and the cache refreshed. On failure the session is left
// unchanged: an illegal transition returns a *engineerr.TransitionError, a
// failed integrity check or persist returns a plain error.
func (m *Machine) Transition(ctx context.Context, session *models.CallSession, to models.CallState, metadata map[string]any, opts ...TransitionOption) error {
	var o transitionOpts
	for _, opt := range opts {
		opt(&o)
	}

	if err := m.Integrity(session); err != nil {
		return err
	}

	if session.CurrentState.Terminal() {
		return &engineerr.TransitionError{From: string(session.CurrentState), To: string(to)}
	}
	if !isLegal(session.CurrentState, to) {
		return &engineerr.TransitionError{From: string(session.CurrentState), To: string(to)}
	}

	now := time.Now()
	entry := models.HistoryEntry{
		From:     session.CurrentState,
		To:       to,
		At:       now,
		Metadata: metadata,
	}

	prev := session.CurrentState
	prevUpdatedAt, prevAnsweredAt := session.UpdatedAt, session.AnsweredAt
	prevEndedAt, prevDuration := session.EndedAt, session.Duration
	session.CurrentState = to
	session.History = append(session.History, entry)
	session.UpdatedAt = now

	switch to {
	case models.StateConnected:
		if session.AnsweredAt == nil {
			session.AnsweredAt = &now
		}
	case models.StateCompleted, models.StateBusy, models.StateFailed, models.StateNoAnswer:
		session.EndedAt = &now
		switch {
		case o.duration != nil:
			session.Duration = o.duration
		case session.AnsweredAt != nil:
			d := int(now.Sub(*session.AnsweredAt).Seconds())
			session.Duration = &d
		}
	}

	if err := m.persister.SaveSession(ctx, session); err != nil {
		// Roll back the in-memory mutation: the contract guarantees the
		// session is left unchanged on failure.
		session.CurrentState = prev
		session.History = session.History[:len(session.History)-1]
		session.UpdatedAt = prevUpdatedAt
		session.AnsweredAt = prevAnsweredAt
		session.EndedAt = prevEndedAt
		session.Duration = prevDuration
		return fmt.Errorf("persist transition %s->%s: %w", prev, to, err)
	}

	m.writeCache(ctx, session)
	return nil
}

// Integrity verifies the current state equals the to-state of the last
// history entry, per spec.md §4.1.
func (m *Machine) Integrity(session *models.CallSession) error {
	last, ok := session.LastHistoryState()
	if !ok {
		return nil // no history yet (freshly created session) is consistent
	}
	if last != session.CurrentState {
		return fmt.Errorf("integrity check failed: current_state=%s but last history entry is %s", session.CurrentState, last)
	}
	return nil
}
