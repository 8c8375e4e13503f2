// Package models contains the domain types shared by every engine
// component: tenants, routing configuration entities, and call lifecycle
// records. These are plain structs (not an ORM's generated types) — see
// DESIGN.md for why this repository talks to Postgres directly via pgx
// instead of through a generated client.
package models

// Tenant is the isolation boundary every other entity is scoped to.
type Tenant struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
	APIKey string `json:"-"`
}
