package models

// TargetKind identifies what an InboundRule routes to.
type TargetKind string

const (
	TargetAgent TargetKind = "agent"
	TargetGroup TargetKind = "group"
)

// InboundRule matches a destination-number pattern to a routing target.
type InboundRule struct {
	ID         string
	TenantID   string
	Pattern    string
	TargetKind TargetKind
	TargetID   string
	Priority   int
	Enabled    bool
}

// OutboundRule matches (caller id, destination pattern) to a trunk selection.
type OutboundRule struct {
	ID                 string
	TenantID           string
	CallerID           string
	DestinationPattern string
	TrunkConfig        TrunkConfig
	Enabled            bool
}

// TrunkConfig is the outbound-trunk-selection configuration carried by an
// OutboundRule.
type TrunkConfig struct {
	TrunkIDs    []string `json:"trunk_ids,omitempty"`
	RingTimeout *int     `json:"ring_timeout,omitempty"`
	MaxDuration *int     `json:"max_duration,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
}

// Trunk is an outbound carrier trunk.
type Trunk struct {
	ID            string
	TenantID      string
	CarrierTrunkID string
	Configuration map[string]any
	Priority      int
	Capacity      *int
	Enabled       bool
	IsDefault     bool
}
