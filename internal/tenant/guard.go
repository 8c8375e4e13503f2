// Package tenant provides the cross-cutting isolation guard from
// spec.md §4.9: every access that crosses from the operator API into the
// engine must assert the caller's tenant matches the entity's tenant.
package tenant

import "github.com/cloudonix/voicerouter/internal/engineerr"

// TenantScoped is implemented by any entity carrying a tenant reference.
type TenantScoped interface {
	GetTenantID() string
}

// Guard asserts requestingTenantID owns entity, returning ErrTenantIsolation
// otherwise. The engine's own internal paths never need this — every
// internal lookup is already parameterized by tenant — but any boundary
// where a tenant id arrives from outside (operator API, webhook header)
// must call it before touching the entity.
func Guard(requestingTenantID string, entity TenantScoped) error {
	if entity.GetTenantID() != requestingTenantID {
		return engineerr.ErrTenantIsolation
	}
	return nil
}

// GuardID is a lighter variant for callers that only have a bare tenant id
// string to compare (e.g. a row freshly loaded by a tenant-scoped query,
// where a mismatch indicates a programming error rather than a real
// cross-tenant request).
func GuardID(requestingTenantID, entityTenantID string) error {
	if entityTenantID != requestingTenantID {
		return engineerr.ErrTenantIsolation
	}
	return nil
}
