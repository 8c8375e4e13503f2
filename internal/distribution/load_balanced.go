package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// LoadBalanced selects the enabled member with the smallest rolling call
// count over the group's window, excluding any agent at or above its
// max_calls_per_agent ceiling. Ties break uniformly at random.
type LoadBalanced struct {
	store *store.Store
}

func (l *LoadBalanced) window(group models.AgentGroup) time.Duration {
	hours := group.LoadBalanced.WindowHours
	if hours <= 0 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

func (l *LoadBalanced) Select(ctx context.Context, group models.AgentGroup, members []models.Member) (*models.Member, error) {
	enabled := enabledMembers(members)
	if len(enabled) == 0 {
		return nil, nil
	}

	now := time.Now()
	windowStart := now.Add(-l.window(group))

	type candidate struct {
		member models.Member
		count  int64
	}
	var candidates []candidate
	var best *candidate

	for _, m := range enabled {
		count, err := l.store.ZCount(ctx, store.LoadBalancedCallsKey(group.TenantID, group.ID, m.Agent.ID),
			float64(windowStart.Unix()), float64(now.Unix()))
		if err != nil {
			if isStoreUnavailable(err) {
				return randomPick(enabled), nil
			}
			return nil, fmt.Errorf("load balanced select: %w", err)
		}

		if max := group.LoadBalanced.MaxCallsPerAgent; max != nil && count >= int64(*max) {
			continue // agent at or above its ceiling — excluded, not merely deprioritized
		}

		c := candidate{member: m, count: count}
		candidates = append(candidates, c)
		if best == nil || c.count < best.count {
			best = &c
		}
	}

	if len(candidates) == 0 {
		return nil, nil // every enabled member is at its ceiling
	}

	// Collect every candidate tied with the minimum count for a uniform
	// random tie-break, per spec.md §4.2.
	var tied []models.Member
	for _, c := range candidates {
		if c.count == best.count {
			tied = append(tied, c.member)
		}
	}
	return randomPick(tied), nil
}

// Record appends a timestamped entry for agentID and trims anything older
// than the window. The key TTL is refreshed to window+1h so an idle group
// doesn't leak its rolling-window key forever.
func (l *LoadBalanced) Record(ctx context.Context, group models.AgentGroup, agentID string) error {
	now := time.Now()
	key := store.LoadBalancedCallsKey(group.TenantID, group.ID, agentID)

	if err := l.store.ZAdd(ctx, key, float64(now.Unix()), uuid.New().String()); err != nil {
		return fmt.Errorf("load balanced record: %w", err)
	}

	windowStart := now.Add(-l.window(group))
	if err := l.store.ZRemRangeByScore(ctx, key, 0, float64(windowStart.Unix())); err != nil {
		return fmt.Errorf("load balanced trim: %w", err)
	}

	if err := l.store.Expire(ctx, key, l.window(group)+time.Hour); err != nil {
		return fmt.Errorf("load balanced refresh ttl: %w", err)
	}
	return nil
}
