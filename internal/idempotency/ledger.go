// Package idempotency implements the webhook deduplication ledger described
// in spec.md §4.5: every carrier webhook is applied at most once per
// (tenant, kind, session token, event id), keyed in the shared store with a
// 24h TTL matching the carrier's own retry window.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/store"
)

const (
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
)

// Ledger records the processing status of webhook deliveries.
type Ledger struct {
	store *store.Store
	ttl   time.Duration
}

// New creates a Ledger. ttl should match spec.md §6's 24h idempotency TTL.
func New(s *store.Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Ledger{store: s, ttl: ttl}
}

// IsProcessed reports whether the given delivery has already completed.
func (l *Ledger) IsProcessed(ctx context.Context, tenantID, kind, sessionToken, eventID string) (bool, error) {
	status, found, err := l.store.GetString(ctx, store.IdempotencyKey(tenantID, kind, sessionToken, eventID))
	if err != nil {
		return false, err
	}
	return found && status == statusCompleted, nil
}

// mark claims the in_progress slot for a delivery. ok is false if another
// caller already holds it (duplicate/concurrent delivery).
func (l *Ledger) mark(ctx context.Context, key string) (bool, error) {
	return l.store.SetNX(ctx, key, statusInProgress, l.ttl)
}

func (l *Ledger) complete(ctx context.Context, key string) error {
	return l.store.SetString(ctx, key, statusCompleted, l.ttl)
}

// ExecuteOnce runs fn at most once for the given delivery coordinates. If a
// prior delivery already completed, it returns (false, nil) without calling
// fn. If fn returns an error, the in_progress marker is deleted so a retried
// delivery can be attempted again. If the store itself is unavailable when
// the slot is claimed, fn runs without deduplication (best-effort
// idempotency, spec.md §7) rather than dropping the delivery.
func (l *Ledger) ExecuteOnce(ctx context.Context, tenantID, kind, sessionToken, eventID string, fn func(ctx context.Context) error) (executed bool, err error) {
	key := store.IdempotencyKey(tenantID, kind, sessionToken, eventID)

	claimed, err := l.mark(ctx, key)
	if err != nil {
		if fnErr := fn(ctx); fnErr != nil {
			return false, fnErr
		}
		return true, fmt.Errorf("%w: claim idempotency key: %v", engineerr.ErrStoreUnavailable, err)
	}
	if !claimed {
		status, found, getErr := l.store.GetString(ctx, key)
		if getErr == nil && found && status == statusCompleted {
			return false, nil
		}
		// Either still in_progress (concurrent delivery) or the read raced
		// with an expiry; either way this caller does not get to run fn.
		return false, nil
	}

	if err := fn(ctx); err != nil {
		_ = l.store.Delete(ctx, key)
		return false, err
	}

	if err := l.complete(ctx, key); err != nil {
		return true, fmt.Errorf("%w: mark idempotency key completed: %v", engineerr.ErrStoreUnavailable, err)
	}
	return true, nil
}
