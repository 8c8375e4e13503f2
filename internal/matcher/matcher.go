// Package matcher implements inbound/outbound rule evaluation from
// spec.md §4.3: priority-ordered pattern matching against a destination or
// caller id.
package matcher

import (
	"sort"
	"strings"

	"github.com/cloudonix/voicerouter/internal/engineerr"
	"github.com/cloudonix/voicerouter/internal/models"
)

const maxPatternLength = 24

// ValidatePattern rejects empty, non-ASCII-printable, or overlong patterns.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return engineerr.NewValidation("pattern", "must not be empty")
	}
	if len(pattern) > maxPatternLength {
		return engineerr.NewValidation("pattern", "must not exceed 24 characters")
	}
	for _, r := range pattern {
		if r < 0x20 || r > 0x7e {
			return engineerr.NewValidation("pattern", "must be ASCII printable")
		}
	}
	return nil
}

// matchesDestination reports whether pattern matches destination per
// spec.md §4.3: a leading '+' pattern must match exactly; otherwise it is a
// prefix, matched bare or with a '+' prepended to the destination.
func matchesDestination(pattern, destination string) bool {
	if strings.HasPrefix(pattern, "+") {
		return pattern == destination
	}
	return strings.HasPrefix(destination, pattern) || strings.HasPrefix(destination, "+"+pattern)
}

// sortInboundRules orders enabled rules by priority descending, ties broken by id
// ascending (a stand-in for insertion order once rules carry sequential ids).
func sortInboundRules(rules []models.InboundRule) []models.InboundRule {
	sorted := make([]models.InboundRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// MatchInbound returns the first enabled rule whose pattern matches
// destination, evaluated in priority-descending, id-ascending order. Returns
// nil if no rule matches.
func MatchInbound(rules []models.InboundRule, destination string) *models.InboundRule {
	for _, rule := range sortInboundRules(rules) {
		if !rule.Enabled {
			continue
		}
		if matchesDestination(rule.Pattern, destination) {
			r := rule
			return &r
		}
	}
	return nil
}

func sortOutboundRules(rules []models.OutboundRule) []models.OutboundRule {
	sorted := make([]models.OutboundRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// MatchOutbound returns the first enabled outbound rule whose caller_id
// matches callerID and whose destination_pattern matches destination. A call
// is classified outbound iff such a rule exists (spec.md §4.3).
func MatchOutbound(rules []models.OutboundRule, callerID, destination string) *models.OutboundRule {
	for _, rule := range sortOutboundRules(rules) {
		if !rule.Enabled {
			continue
		}
		if rule.CallerID != callerID {
			continue
		}
		if matchesDestination(rule.DestinationPattern, destination) {
			r := rule
			return &r
		}
	}
	return nil
}

// IsOutbound reports whether the given caller id classifies this call as
// outbound, per spec.md §4.3.
func IsOutbound(rules []models.OutboundRule, callerID, destination string) bool {
	return MatchOutbound(rules, callerID, destination) != nil
}
