package models

// StrategyKind tags which distribution algorithm an AgentGroup uses.
type StrategyKind string

const (
	StrategyLoadBalanced StrategyKind = "load_balanced"
	StrategyPriority     StrategyKind = "priority"
	StrategyRoundRobin   StrategyKind = "round_robin"
)

// LoadBalancedSettings configures the load-balanced strategy.
type LoadBalancedSettings struct {
	WindowHours     int  `json:"window_hours"`
	MaxCallsPerAgent *int `json:"max_calls_per_agent,omitempty"`
}

// PrioritySettings configures the priority strategy.
type PrioritySettings struct {
	RoundRobinSamePriority bool `json:"round_robin_same_priority"`
}

// RoundRobinSettings configures the round-robin strategy.
type RoundRobinSettings struct {
	WeightedByCapacity bool `json:"weighted_by_capacity"`
}

// AgentGroup is a named collection of agents distributed over by Strategy.
type AgentGroup struct {
	ID       string
	TenantID string
	Name     string
	Strategy StrategyKind
	Enabled  bool

	LoadBalanced LoadBalancedSettings
	Priority     PrioritySettings
	RoundRobin   RoundRobinSettings
}

// Membership is a (group, agent) relation carrying priority and capacity.
// Capacity nil means unlimited; capacity must be >=1 when present (0 is
// rejected at configuration time, particularly under weighted round-robin).
type Membership struct {
	ID       string
	GroupID  string
	AgentID  string
	TenantID string
	Priority int
	Capacity *int
}

// EffectiveCapacity returns the capacity to use in weighted computations,
// defaulting a nil capacity to 1.
func (m *Membership) EffectiveCapacity() int {
	if m.Capacity == nil {
		return 1
	}
	return *m.Capacity
}

// Member pairs a Membership with its resolved VoiceAgent for strategy use.
type Member struct {
	Membership Membership
	Agent      VoiceAgent
}

// CanRoute reports whether a group may currently route: enabled with at
// least one enabled member.
func CanRoute(group AgentGroup, members []Member) bool {
	if !group.Enabled {
		return false
	}
	for _, m := range members {
		if m.Agent.Enabled {
			return true
		}
	}
	return false
}
