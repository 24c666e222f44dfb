package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB represents a jsonb column payload.
type JSONB map[string]interface{}

// AuditLog records an access-control decision or administrative change.
type AuditLog struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	TenantID    *uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ActorID     *uuid.UUID `json:"actor_id" db:"actor_id"`
	Action      string     `json:"action" db:"action"`
	Requirement string     `json:"requirement" db:"requirement"`
	Decision    string     `json:"decision" db:"decision"`
	Path        string     `json:"path" db:"path"`
	Detail      JSONB      `json:"detail" db:"detail"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Action constants for audit logs
const (
	ActionAuthorize       = "AUTHORIZE"
	ActionSelectTenant    = "SELECT_TENANT"
	ActionBootstrapTenant = "BOOTSTRAP_MEMBERSHIP"
	ActionSignOut         = "SIGN_OUT"
	ActionTenantChange    = "TENANT_CHANGE"
	ActionMemberChange    = "MEMBER_CHANGE"
)

// AuditLogFilters represents filters for querying audit logs
type AuditLogFilters struct {
	Action    *string    `json:"action"`
	ActorID   *uuid.UUID `json:"actor_id"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
