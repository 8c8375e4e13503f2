package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript atomically deletes key only if its value still matches
// owner, so a lock holder never releases a lock it no longer owns (e.g.
// after its TTL already expired and someone else acquired it).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Lock represents a held distributed lock, keyed by (tenant, session token)
// per spec.md §5 ("30-second TTL'd lock ... held by a uuid owner").
type Lock struct {
	Key   string
	Owner string
}

// AcquireLock attempts to take the routing lock for key, returning nil, false
// if another owner currently holds it. The lock auto-expires after ttl even
// if never released, bounding the worst case of a crashed holder.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	owner := uuid.New().String()
	acquired, err := s.SetNX(ctx, key, owner, ttl)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return &Lock{Key: key, Owner: owner}, true, nil
}

// Release drops the lock iff it is still held by this owner. If ownership
// was lost (TTL expired and someone else acquired it), Release is a no-op —
// the lock is simply left to expire, per spec.md §5.
func (s *Store) Release(ctx context.Context, l *Lock) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := releaseScript.Run(ctx, s.rdb, []string{l.Key}, l.Owner).Err(); err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrUnavailable, l.Key, err)
	}
	return nil
}
