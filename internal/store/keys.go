package store

import "fmt"

// Key builders for the shared-store key patterns in spec.md §6. Centralizing
// them here keeps every caller (distribution strategies, idempotency ledger,
// state machine cache, routing lock, event publisher) byte-for-byte
// consistent with the documented layout.

// LoadBalancedCallsKey is the sorted set of call timestamps for a
// load-balanced group member.
func LoadBalancedCallsKey(tenantID, groupID, agentID string) string {
	return fmt.Sprintf("tenant:%s:group:%s:load_balanced:calls:%s", tenantID, groupID, agentID)
}

// RoundRobinPointerKey is the simple rotation index for a group.
func RoundRobinPointerKey(tenantID, groupID string) string {
	return fmt.Sprintf("tenant:%s:group:%s:round_robin:pointer", tenantID, groupID)
}

// RoundRobinWeightedPosKey is the weighted-cycle position for a group.
func RoundRobinWeightedPosKey(tenantID, groupID string) string {
	return fmt.Sprintf("tenant:%s:group:%s:round_robin:weighted_pos", tenantID, groupID)
}

// RoundRobinAgentsKey stores the CSV of current member ids, used for
// change detection (resets pointers when membership changes).
func RoundRobinAgentsKey(tenantID, groupID string) string {
	return fmt.Sprintf("tenant:%s:group:%s:round_robin:agents", tenantID, groupID)
}

// PriorityRotationKey stores the rotation cursor for round-robin-same-priority.
func PriorityRotationKey(tenantID, groupID string, priority int) string {
	return fmt.Sprintf("tenant:%s:group:%s:priority:rotation:%d", tenantID, groupID, priority)
}

// RoutingLockKey is the per-session routing decision lock.
func RoutingLockKey(tenantID, sessionToken string) string {
	return fmt.Sprintf("tenant:%s:routing:lock:%s", tenantID, sessionToken)
}

// IdempotencyKey builds the webhook deduplication key.
func IdempotencyKey(tenantID, kind, sessionToken, eventID string) string {
	return fmt.Sprintf("tenant:%s:webhook:idem:%s:%s:%s", tenantID, kind, sessionToken, eventID)
}

// SessionStateKey is the cached current-state/history JSON string for a session.
func SessionStateKey(tenantID, sessionToken string) string {
	return fmt.Sprintf("tenant:%s:session:%s:state", tenantID, sessionToken)
}

// TenantEventsChannel is the pub/sub channel name for a tenant-scoped event kind.
func TenantEventsChannel(tenantID, scope string) string {
	return fmt.Sprintf("tenant.%s.%s", tenantID, scope)
}
