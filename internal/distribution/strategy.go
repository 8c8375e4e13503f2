// Package distribution implements the three agent-selection algorithms from
// spec.md §4.2: load-balanced, priority, and round-robin. Every strategy is
// safe under concurrent callers without a wrapping lock — correctness rests
// entirely on the shared store's atomic primitives (increment, sorted-set
// add/trim).
package distribution

import (
	"context"
	"errors"
	"math/rand"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

// Strategy is the common contract every distribution algorithm implements,
// per spec.md §4.2 and §9 ("a small interface: select, record").
type Strategy interface {
	// Select returns the chosen member, or nil if the group has no enabled
	// member. It never returns an error for "no member available" — only
	// for unexpected failures the caller cannot recover from locally.
	Select(ctx context.Context, group models.AgentGroup, members []models.Member) (*models.Member, error)
	// Record accounts for a call just placed with agentID.
	Record(ctx context.Context, group models.AgentGroup, agentID string) error
}

// NewStrategy returns the Strategy variant for the group's tagged kind, per
// the factory design in spec.md §9 (no inheritance hierarchy; a factory
// keyed on the strategy tag).
func NewStrategy(s *store.Store, kind models.StrategyKind) Strategy {
	switch kind {
	case models.StrategyLoadBalanced:
		return &LoadBalanced{store: s}
	case models.StrategyPriority:
		return &Priority{store: s}
	case models.StrategyRoundRobin:
		return &RoundRobin{store: s}
	default:
		return &Priority{store: s}
	}
}

func enabledMembers(members []models.Member) []models.Member {
	enabled := make([]models.Member, 0, len(members))
	for _, m := range members {
		if m.Agent.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// randomPick implements the degraded fallback from spec.md §7: when the
// shared store is unavailable, strategies fall back to random selection
// from the enabled set rather than failing the call.
func randomPick(members []models.Member) *models.Member {
	if len(members) == 0 {
		return nil
	}
	m := members[rand.Intn(len(members))]
	return &m
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}
