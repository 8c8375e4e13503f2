package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/models"
)

// TenantRepo resolves tenants by their external domain identifier, used by
// every webhook entry point to map the {domain} path segment to a tenant id
// (spec.md §6).
type TenantRepo struct {
	db *DB
}

// NewTenantRepo constructs a TenantRepo.
func NewTenantRepo(db *DB) *TenantRepo { return &TenantRepo{db: db} }

// GetByDomain returns the tenant owning domain, or nil if none exists.
func (r *TenantRepo) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.sql.QueryRowContext(ctx, `SELECT id, domain, name, api_key FROM tenants WHERE domain = $1`, domain).
		Scan(&t.ID, &t.Domain, &t.Name, &t.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by domain: %w", err)
	}
	return &t, nil
}

// GetByID returns the tenant by id, or nil if none exists.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.sql.QueryRowContext(ctx, `SELECT id, domain, name, api_key FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Domain, &t.Name, &t.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return &t, nil
}

// Save upserts a tenant.
func (r *TenantRepo) Save(ctx context.Context, t *models.Tenant) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO tenants (id, domain, name, api_key) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET domain = EXCLUDED.domain, name = EXCLUDED.name, api_key = EXCLUDED.api_key`,
		t.ID, t.Domain, t.Name, t.APIKey)
	if err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}
	return nil
}
