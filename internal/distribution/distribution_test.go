package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return store.New(rdb, time.Second)
}

func member(agentID string, priority int, capacity *int) models.Member {
	return models.Member{
		Membership: models.Membership{AgentID: agentID, Priority: priority, Capacity: capacity},
		Agent:      models.VoiceAgent{ID: agentID, Enabled: true},
	}
}

func TestLoadBalanced_PicksLeastLoadedAgent(t *testing.T) {
	s := newTestStore(t)
	strategy := &LoadBalanced{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1", LoadBalanced: models.LoadBalancedSettings{WindowHours: 1}}
	members := []models.Member{member("a1", 1, nil), member("a2", 1, nil)}

	ctx := context.Background()
	require.NoError(t, strategy.Record(ctx, group, "a1"))
	require.NoError(t, strategy.Record(ctx, group, "a1"))

	selected, err := strategy.Select(ctx, group, members)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "a2", selected.Agent.ID)
}

func TestLoadBalanced_ExcludesAgentAtCeiling(t *testing.T) {
	s := newTestStore(t)
	strategy := &LoadBalanced{store: s}
	max := 1
	group := models.AgentGroup{ID: "g1", TenantID: "t1", LoadBalanced: models.LoadBalancedSettings{WindowHours: 1, MaxCallsPerAgent: &max}}
	members := []models.Member{member("a1", 1, nil), member("a2", 1, nil)}

	ctx := context.Background()
	require.NoError(t, strategy.Record(ctx, group, "a1"))

	selected, err := strategy.Select(ctx, group, members)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "a2", selected.Agent.ID, "a1 is at its ceiling and must be excluded")
}

func TestLoadBalanced_NoEnabledMemberReturnsNil(t *testing.T) {
	s := newTestStore(t)
	strategy := &LoadBalanced{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1"}

	selected, err := strategy.Select(context.Background(), group, nil)
	require.NoError(t, err)
	assert.Nil(t, selected)
}

func TestPriority_SelectsHighestEnabledPriority(t *testing.T) {
	s := newTestStore(t)
	strategy := &Priority{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1"}
	members := []models.Member{member("high", 100, nil), member("low", 50, nil)}

	selected, err := strategy.Select(context.Background(), group, members)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "high", selected.Agent.ID)
}

func TestPriority_FailsOverWhenTopTierDisabled(t *testing.T) {
	s := newTestStore(t)
	strategy := &Priority{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1"}
	high := member("high", 100, nil)
	high.Agent.Enabled = false
	members := []models.Member{high, member("low", 50, nil)}

	selected, err := strategy.Select(context.Background(), group, members)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "low", selected.Agent.ID)
}

func TestPriority_RotatesTiedMembersWhenConfigured(t *testing.T) {
	s := newTestStore(t)
	strategy := &Priority{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1", Priority: models.PrioritySettings{RoundRobinSamePriority: true}}
	members := []models.Member{member("a1", 50, nil), member("a2", 50, nil), member("a3", 50, nil)}

	ctx := context.Background()
	var picks []string
	for i := 0; i < 6; i++ {
		selected, err := strategy.Select(ctx, group, members)
		require.NoError(t, err)
		picks = append(picks, selected.Agent.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "a1", "a2", "a3"}, picks)
}

func TestRoundRobin_CyclesInOrder(t *testing.T) {
	s := newTestStore(t)
	strategy := &RoundRobin{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1"}
	members := []models.Member{member("a1", 1, nil), member("a2", 1, nil), member("a3", 1, nil)}

	ctx := context.Background()
	var picks []string
	for i := 0; i < 6; i++ {
		selected, err := strategy.Select(ctx, group, members)
		require.NoError(t, err)
		picks = append(picks, selected.Agent.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "a1", "a2", "a3"}, picks)
}

func TestRoundRobin_ResetsOnMembershipChange(t *testing.T) {
	s := newTestStore(t)
	strategy := &RoundRobin{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1"}
	members := []models.Member{member("a1", 1, nil), member("a2", 1, nil)}

	ctx := context.Background()
	selected, err := strategy.Select(ctx, group, members)
	require.NoError(t, err)
	assert.Equal(t, "a1", selected.Agent.ID)

	members = append(members, member("a3", 1, nil))
	selected, err = strategy.Select(ctx, group, members)
	require.NoError(t, err)
	assert.Equal(t, "a1", selected.Agent.ID, "pointer must reset to zero when membership changes")
}

func TestRoundRobin_WeightedByCapacity(t *testing.T) {
	s := newTestStore(t)
	strategy := &RoundRobin{store: s}
	group := models.AgentGroup{ID: "g1", TenantID: "t1", RoundRobin: models.RoundRobinSettings{WeightedByCapacity: true}}
	two := 2
	one := 1
	members := []models.Member{member("a1", 1, &two), member("a2", 1, &one)}

	ctx := context.Background()
	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		selected, err := strategy.Select(ctx, group, members)
		require.NoError(t, err)
		counts[selected.Agent.ID]++
	}
	// Cycle length 3 (2+1), repeated 3 times: a1 gets 2/cycle, a2 gets 1/cycle.
	assert.Equal(t, 6, counts["a1"])
	assert.Equal(t, 3, counts["a2"])
}

func TestNewStrategy_ReturnsCorrectVariant(t *testing.T) {
	s := newTestStore(t)
	assert.IsType(t, &LoadBalanced{}, NewStrategy(s, models.StrategyLoadBalanced))
	assert.IsType(t, &Priority{}, NewStrategy(s, models.StrategyPriority))
	assert.IsType(t, &RoundRobin{}, NewStrategy(s, models.StrategyRoundRobin))
}
