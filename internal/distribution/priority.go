package distribution

import (
	"context"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// Priority selects the enabled member with the highest priority value,
// failing over implicitly to the next priority tier when the top tier has
// no enabled member. Ties within a tier break via a per-priority rotation
// cursor when configured, otherwise by insertion order (first in members).
type Priority struct {
	store *store.Store
}

func (p *Priority) Select(ctx context.Context, group models.AgentGroup, members []models.Member) (*models.Member, error) {
	enabled := enabledMembers(members)
	if len(enabled) == 0 {
		return nil, nil
	}

	highest := enabled[0].Membership.Priority
	for _, m := range enabled {
		if m.Membership.Priority > highest {
			highest = m.Membership.Priority
		}
	}

	var tied []models.Member
	for _, m := range enabled {
		if m.Membership.Priority == highest {
			tied = append(tied, m)
		}
	}
	if len(tied) == 1 || !group.Priority.RoundRobinSamePriority {
		return &tied[0], nil
	}

	n, err := p.store.Incr(ctx, store.PriorityRotationKey(group.TenantID, group.ID, highest))
	if err != nil {
		if isStoreUnavailable(err) {
			return randomPick(tied), nil
		}
		return nil, fmt.Errorf("priority select: %w", err)
	}

	idx := int((n - 1) % int64(len(tied)))
	return &tied[idx], nil
}

// Record is a no-op: the priority strategy carries no per-call state beyond
// the rotation cursor, which Select already advances atomically.
func (p *Priority) Record(ctx context.Context, group models.AgentGroup, agentID string) error {
	return nil
}
