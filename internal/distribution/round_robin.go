package distribution

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// RoundRobin cycles through enabled members using one of two monotonic
// pointers maintained in the store: a simple index, or — when configured —
// a position inside a capacity-weighted cycle. A change-detection key
// resets both pointers whenever group membership changes.
type RoundRobin struct {
	store *store.Store
}

func (r *RoundRobin) membershipFingerprint(enabled []models.Member) string {
	ids := make([]string, len(enabled))
	for i, m := range enabled {
		ids[i] = m.Agent.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// syncMembership resets the group's pointers iff the set of enabled agent
// ids has changed since the last selection, per spec.md §4.2.
func (r *RoundRobin) syncMembership(ctx context.Context, group models.AgentGroup, enabled []models.Member) error {
	key := store.RoundRobinAgentsKey(group.TenantID, group.ID)
	fingerprint := r.membershipFingerprint(enabled)

	stored, found, err := r.store.GetString(ctx, key)
	if err != nil {
		return err
	}
	if found && stored == fingerprint {
		return nil
	}

	if err := r.store.Delete(ctx, store.RoundRobinPointerKey(group.TenantID, group.ID)); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, store.RoundRobinWeightedPosKey(group.TenantID, group.ID)); err != nil {
		return err
	}
	return r.store.SetString(ctx, key, fingerprint, 0)
}

func (r *RoundRobin) Select(ctx context.Context, group models.AgentGroup, members []models.Member) (*models.Member, error) {
	enabled := enabledMembers(members)
	if len(enabled) == 0 {
		return nil, nil
	}

	if err := r.syncMembership(ctx, group, enabled); err != nil {
		if isStoreUnavailable(err) {
			return randomPick(enabled), nil
		}
		return nil, fmt.Errorf("round robin sync: %w", err)
	}

	if group.RoundRobin.WeightedByCapacity {
		return r.selectWeighted(ctx, group, enabled)
	}
	return r.selectSimple(ctx, group, enabled)
}

func (r *RoundRobin) selectSimple(ctx context.Context, group models.AgentGroup, enabled []models.Member) (*models.Member, error) {
	n, err := r.store.Incr(ctx, store.RoundRobinPointerKey(group.TenantID, group.ID))
	if err != nil {
		if isStoreUnavailable(err) {
			return randomPick(enabled), nil
		}
		return nil, fmt.Errorf("round robin select: %w", err)
	}
	idx := int((n - 1) % int64(len(enabled)))
	return &enabled[idx], nil
}

// selectWeighted maps an incrementing position onto a cycle of length
// Σ capacities (capacity-null members default to 1; capacity 0 is rejected
// at configuration time, per spec.md §4.2).
func (r *RoundRobin) selectWeighted(ctx context.Context, group models.AgentGroup, enabled []models.Member) (*models.Member, error) {
	var total int64
	for _, m := range enabled {
		total += int64(m.Membership.EffectiveCapacity())
	}
	if total <= 0 {
		return randomPick(enabled), nil
	}

	n, err := r.store.Incr(ctx, store.RoundRobinWeightedPosKey(group.TenantID, group.ID))
	if err != nil {
		if isStoreUnavailable(err) {
			return randomPick(enabled), nil
		}
		return nil, fmt.Errorf("round robin weighted select: %w", err)
	}

	pos := (n - 1) % total
	var cumulative int64
	for i := range enabled {
		cumulative += int64(enabled[i].Membership.EffectiveCapacity())
		if pos < cumulative {
			return &enabled[i], nil
		}
	}
	// Unreachable when capacities are well-formed, but fall back safely.
	return &enabled[len(enabled)-1], nil
}

// Record is a no-op: both pointers are advanced atomically inside Select.
func (r *RoundRobin) Record(ctx context.Context, group models.AgentGroup, agentID string) error {
	return nil
}
