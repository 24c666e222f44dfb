package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantRole is the role a user holds within a single tenant.
type TenantRole string

const (
	TenantRoleMember TenantRole = "member"
	TenantRoleAdmin  TenantRole = "admin"
)

func (r TenantRole) Valid() bool {
	return r == TenantRoleMember || r == TenantRoleAdmin
}

// Membership binds a user profile to a tenant.
type Membership struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TenantID  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Role      TenantRole `json:"role" db:"role"`
	IsDefault bool       `json:"is_default" db:"is_default"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TenantMembership is a membership row joined with its tenant, as returned
// by candidate enumeration.
type TenantMembership struct {
	Tenant    *Tenant    `json:"tenant"`
	Role      TenantRole `json:"role"`
	IsDefault bool       `json:"is_default"`
	IsActive  bool       `json:"is_active"`
}
