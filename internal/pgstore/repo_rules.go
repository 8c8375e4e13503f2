package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/models"
)

// RuleRepo persists inbound/outbound routing rules and trunks.
type RuleRepo struct {
	db *DB
}

// NewRuleRepo constructs a RuleRepo.
func NewRuleRepo(db *DB) *RuleRepo { return &RuleRepo{db: db} }

// InboundRules returns every inbound rule for tenantID. Ordering is applied
// by the matcher package, not here, so callers get a stable, complete set
// regardless of SQL plan.
func (r *RuleRepo) InboundRules(ctx context.Context, tenantID string) ([]models.InboundRule, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, tenant_id, pattern, target_kind, target_id, priority, enabled
		FROM inbound_rules WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list inbound rules: %w", err)
	}
	defer rows.Close()

	var rules []models.InboundRule
	for rows.Next() {
		var rule models.InboundRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Pattern, &rule.TargetKind, &rule.TargetID, &rule.Priority, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scan inbound rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveInboundRule upserts a rule.
func (r *RuleRepo) SaveInboundRule(ctx context.Context, rule *models.InboundRule) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO inbound_rules (id, tenant_id, pattern, target_kind, target_id, priority, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET pattern=EXCLUDED.pattern, target_kind=EXCLUDED.target_kind,
			target_id=EXCLUDED.target_id, priority=EXCLUDED.priority, enabled=EXCLUDED.enabled`,
		rule.ID, rule.TenantID, rule.Pattern, rule.TargetKind, rule.TargetID, rule.Priority, rule.Enabled)
	if err != nil {
		return fmt.Errorf("save inbound rule: %w", err)
	}
	return nil
}

// OutboundRules returns every outbound rule for tenantID.
func (r *RuleRepo) OutboundRules(ctx context.Context, tenantID string) ([]models.OutboundRule, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, tenant_id, caller_id, destination_pattern, trunk_config, enabled
		FROM outbound_rules WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list outbound rules: %w", err)
	}
	defer rows.Close()

	var rules []models.OutboundRule
	for rows.Next() {
		var rule models.OutboundRule
		var cfg []byte
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.CallerID, &rule.DestinationPattern, &cfg, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scan outbound rule: %w", err)
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &rule.TrunkConfig); err != nil {
				return nil, fmt.Errorf("unmarshal trunk config: %w", err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveOutboundRule upserts a rule.
func (r *RuleRepo) SaveOutboundRule(ctx context.Context, rule *models.OutboundRule) error {
	cfg, err := json.Marshal(rule.TrunkConfig)
	if err != nil {
		return fmt.Errorf("marshal trunk config: %w", err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO outbound_rules (id, tenant_id, caller_id, destination_pattern, trunk_config, enabled)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET caller_id=EXCLUDED.caller_id, destination_pattern=EXCLUDED.destination_pattern,
			trunk_config=EXCLUDED.trunk_config, enabled=EXCLUDED.enabled`,
		rule.ID, rule.TenantID, rule.CallerID, rule.DestinationPattern, cfg, rule.Enabled)
	if err != nil {
		return fmt.Errorf("save outbound rule: %w", err)
	}
	return nil
}

func scanTrunk(row interface{ Scan(...any) error }) (*models.Trunk, error) {
	var t models.Trunk
	var cfg []byte
	var capacity sql.NullInt64
	if err := row.Scan(&t.ID, &t.TenantID, &t.CarrierTrunkID, &cfg, &t.Priority, &capacity, &t.Enabled, &t.IsDefault); err != nil {
		return nil, err
	}
	if capacity.Valid {
		n := int(capacity.Int64)
		t.Capacity = &n
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &t.Configuration); err != nil {
			return nil, fmt.Errorf("unmarshal trunk configuration: %w", err)
		}
	}
	return &t, nil
}

// GetTrunk loads a trunk scoped to tenantID.
func (r *RuleRepo) GetTrunk(ctx context.Context, tenantID, trunkID string) (*models.Trunk, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, carrier_trunk_id, configuration, priority, capacity, enabled, is_default
		FROM trunks WHERE tenant_id = $1 AND id = $2`, tenantID, trunkID)
	trunk, err := scanTrunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trunk: %w", err)
	}
	return trunk, nil
}

// DefaultTrunk returns the tenant's default trunk. Per spec.md §9, multiple
// trunks may carry is_default=true; ambiguity resolves by priority
// descending, then id ascending.
func (r *RuleRepo) DefaultTrunk(ctx context.Context, tenantID string) (*models.Trunk, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, carrier_trunk_id, configuration, priority, capacity, enabled, is_default
		FROM trunks WHERE tenant_id = $1 AND is_default = true AND enabled = true
		ORDER BY priority DESC, id ASC LIMIT 1`, tenantID)
	trunk, err := scanTrunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default trunk: %w", err)
	}
	return trunk, nil
}

// SaveTrunk upserts a trunk.
func (r *RuleRepo) SaveTrunk(ctx context.Context, t *models.Trunk) error {
	cfg, err := json.Marshal(t.Configuration)
	if err != nil {
		return fmt.Errorf("marshal trunk configuration: %w", err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO trunks (id, tenant_id, carrier_trunk_id, configuration, priority, capacity, enabled, is_default)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET carrier_trunk_id=EXCLUDED.carrier_trunk_id, configuration=EXCLUDED.configuration,
			priority=EXCLUDED.priority, capacity=EXCLUDED.capacity, enabled=EXCLUDED.enabled, is_default=EXCLUDED.is_default`,
		t.ID, t.TenantID, t.CarrierTrunkID, cfg, t.Priority, t.Capacity, t.Enabled, t.IsDefault)
	if err != nil {
		return fmt.Errorf("save trunk: %w", err)
	}
	return nil
}
