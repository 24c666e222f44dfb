package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemRole is the system-wide role carried by a user profile.
type SystemRole string

const (
	SystemRoleNone         SystemRole = "none"
	SystemRoleTenantMember SystemRole = "tenant_member"
	SystemRoleTenantAdmin  SystemRole = "tenant_admin"
	SystemRoleGlobalAdmin  SystemRole = "global_admin"
)

func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleNone, SystemRoleTenantMember, SystemRoleTenantAdmin, SystemRoleGlobalAdmin:
		return true
	}
	return false
}

// PlanTier is the subscription tier attached to a profile or tenant.
type PlanTier string

const (
	PlanTierNormal PlanTier = "normal"
	PlanTierPlus   PlanTier = "plus"
	PlanTierUltra  PlanTier = "ultra"
)

// UserProfile is the local record for an externally-authenticated identity.
// The ID equals the identity id issued by the identity store.
type UserProfile struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	SystemRole     SystemRole `json:"system_role" db:"system_role"`
	PlanTier       PlanTier   `json:"plan_tier" db:"plan_tier"`
	TrialExpiresAt time.Time  `json:"trial_expires_at" db:"trial_expires_at"`
	PlanExpiresAt  *time.Time `json:"plan_expires_at" db:"plan_expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// PlanExpired reports whether the trial has lapsed without a paid plan.
func (p *UserProfile) PlanExpired(now time.Time) bool {
	return now.After(p.TrialExpiresAt) && p.PlanExpiresAt == nil
}
