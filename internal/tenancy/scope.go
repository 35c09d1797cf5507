// Package tenancy carries the request-scoped tenant and actor through service calls.
package tenancy

import (
	"github.com/google/uuid"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

// Scope identifies who is acting and on whose data. It is built per request
// and passed explicitly; nothing in the process holds a current tenant.
type Scope struct {
	TenantID uuid.UUID
	ActorID  uuid.UUID
}

// New builds a Scope for the given tenant and staff actor.
func New(tenantID, actorID uuid.UUID) Scope {
	return Scope{TenantID: tenantID, ActorID: actorID}
}

// System returns a scope for background jobs acting without a staff member.
func System(tenantID uuid.UUID) Scope {
	return Scope{TenantID: tenantID}
}

// Validate rejects scopes without a tenant.
func (s Scope) Validate() error {
	if s.TenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant scope required")
	}
	return nil
}

// Actor returns the actor id as a nullable column value.
func (s Scope) Actor() *uuid.UUID {
	if s.ActorID == uuid.Nil {
		return nil
	}
	id := s.ActorID
	return &id
}
