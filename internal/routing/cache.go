package routing

import (
	"context"
	"sync"
	"time"

	"github.com/cloudonix/voicerouter/internal/models"
)

// CachedRepository wraps a Repository with an in-process, tenant-scoped TTL
// cache, per SPEC_FULL.md §12.5: configuration rows change far less often
// than calls route, so the decision path avoids a Postgres round trip on
// every inbound webhook unless explicitly told a row went stale.
type CachedRepository struct {
	repo Repository
	ttl  time.Duration

	mu            sync.RWMutex
	agents        map[string]cacheEntry[*models.VoiceAgent]
	groups        map[string]cacheEntry[*models.AgentGroup]
	groupMembers  map[string]cacheEntry[[]models.Member]
	inboundRules  map[string]cacheEntry[[]models.InboundRule]
	outboundRules map[string]cacheEntry[[]models.OutboundRule]
	trunks        map[string]cacheEntry[*models.Trunk]
	defaultTrunks map[string]cacheEntry[*models.Trunk]
}

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

func (e cacheEntry[T]) fresh() bool { return time.Now().Before(e.expires) }

// NewCachedRepository wraps repo. ttl defaults to 30s, short enough that a
// missed invalidation self-heals quickly.
func NewCachedRepository(repo Repository, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedRepository{
		repo:          repo,
		ttl:           ttl,
		agents:        map[string]cacheEntry[*models.VoiceAgent]{},
		groups:        map[string]cacheEntry[*models.AgentGroup]{},
		groupMembers:  map[string]cacheEntry[[]models.Member]{},
		inboundRules:  map[string]cacheEntry[[]models.InboundRule]{},
		outboundRules: map[string]cacheEntry[[]models.OutboundRule]{},
		trunks:        map[string]cacheEntry[*models.Trunk]{},
		defaultTrunks: map[string]cacheEntry[*models.Trunk]{},
	}
}

func tenantKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "\x00" + p
	}
	return key
}

func (c *CachedRepository) GetAgent(ctx context.Context, tenantID, agentID string) (*models.VoiceAgent, error) {
	key := tenantKey(tenantID, agentID)
	c.mu.RLock()
	if e, ok := c.agents[key]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.agents[key] = cacheEntry[*models.VoiceAgent]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) GetGroup(ctx context.Context, tenantID, groupID string) (*models.AgentGroup, error) {
	key := tenantKey(tenantID, groupID)
	c.mu.RLock()
	if e, ok := c.groups[key]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.GetGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.groups[key] = cacheEntry[*models.AgentGroup]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) GroupMembers(ctx context.Context, tenantID, groupID string) ([]models.Member, error) {
	key := tenantKey(tenantID, groupID)
	c.mu.RLock()
	if e, ok := c.groupMembers[key]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.GroupMembers(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.groupMembers[key] = cacheEntry[[]models.Member]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) InboundRules(ctx context.Context, tenantID string) ([]models.InboundRule, error) {
	c.mu.RLock()
	if e, ok := c.inboundRules[tenantID]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.InboundRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.inboundRules[tenantID] = cacheEntry[[]models.InboundRule]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) OutboundRules(ctx context.Context, tenantID string) ([]models.OutboundRule, error) {
	c.mu.RLock()
	if e, ok := c.outboundRules[tenantID]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.OutboundRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.outboundRules[tenantID] = cacheEntry[[]models.OutboundRule]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) GetTrunk(ctx context.Context, tenantID, trunkID string) (*models.Trunk, error) {
	key := tenantKey(tenantID, trunkID)
	c.mu.RLock()
	if e, ok := c.trunks[key]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.GetTrunk(ctx, tenantID, trunkID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.trunks[key] = cacheEntry[*models.Trunk]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedRepository) DefaultTrunk(ctx context.Context, tenantID string) (*models.Trunk, error) {
	c.mu.RLock()
	if e, ok := c.defaultTrunks[tenantID]; ok && e.fresh() {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	v, err := c.repo.DefaultTrunk(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.defaultTrunks[tenantID] = cacheEntry[*models.Trunk]{value: v, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

// EntityKind identifies which cache an Invalidate call should clear.
type EntityKind string

const (
	EntityAgent     EntityKind = "agent"
	EntityGroup     EntityKind = "group"
	EntityInbound   EntityKind = "inbound_rule"
	EntityOutbound  EntityKind = "outbound_rule"
	EntityTrunk     EntityKind = "trunk"
	EntityAll       EntityKind = "all"
)

// Invalidate drops cached entries for one entity, or every entity of that
// kind for a tenant when entityID is empty, or every kind for the tenant
// when kind is EntityAll.
// Called by internal/rpc after the out-of-scope operator API writes a row.
func (c *CachedRepository) Invalidate(tenantID string, kind EntityKind, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case EntityAgent:
		if entityID == "" {
			clearTenant(c.agents, tenantID)
		} else {
			delete(c.agents, tenantKey(tenantID, entityID))
		}
	case EntityGroup:
		if entityID == "" {
			clearTenant(c.groups, tenantID)
			clearTenant(c.groupMembers, tenantID)
		} else {
			delete(c.groups, tenantKey(tenantID, entityID))
			delete(c.groupMembers, tenantKey(tenantID, entityID))
		}
	case EntityInbound:
		delete(c.inboundRules, tenantID)
	case EntityOutbound:
		delete(c.outboundRules, tenantID)
	case EntityTrunk:
		if entityID == "" {
			clearTenant(c.trunks, tenantID)
		} else {
			delete(c.trunks, tenantKey(tenantID, entityID))
		}
		delete(c.defaultTrunks, tenantID)
	case EntityAll:
		delete(c.inboundRules, tenantID)
		delete(c.outboundRules, tenantID)
		delete(c.defaultTrunks, tenantID)
		clearTenant(c.agents, tenantID)
		clearTenant(c.groups, tenantID)
		clearTenant(c.groupMembers, tenantID)
		clearTenant(c.trunks, tenantID)
	}
}

func clearTenant[T any](m map[string]cacheEntry[T], tenantID string) {
	prefix := tenantID + "\x00"
	for k := range m {
		if k == tenantID || len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m, k)
		}
	}
}
