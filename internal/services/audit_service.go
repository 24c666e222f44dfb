package services

import (
	"context"
	"log"

	"clinicore/internal/models"
	"clinicore/internal/repositories"

	"github.com/google/uuid"
)

// AuditService records access-control decisions and administrative changes.
// Writes are best effort: an audit failure never blocks the guarded action.
type AuditService interface {
	LogDecision(ctx context.Context, tenantID, actorID *uuid.UUID, requirement, decision, path string)
	LogEvent(ctx context.Context, action string, tenantID, actorID *uuid.UUID, detail models.JSONB)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditService struct {
	auditRepo repositories.AuditLogsRepository
}

func NewAuditService(auditRepo repositories.AuditLogsRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) LogDecision(ctx context.Context, tenantID, actorID *uuid.UUID, requirement, decision, path string) {
	entry := &models.AuditLog{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      models.ActionAuthorize,
		Requirement: requirement,
		Decision:    decision,
		Path:        path,
	}
	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		log.Printf("Failed to record authorization decision: %v", err)
	}
}

func (s *auditService) LogEvent(ctx context.Context, action string, tenantID, actorID *uuid.UUID, detail models.JSONB) {
	entry := &models.AuditLog{
		ID:       uuid.New(),
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Detail:   detail,
	}
	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		log.Printf("Failed to record audit event %s: %v", action, err)
	}
}

func (s *auditService) ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	return s.auditRepo.ListByTenant(ctx, tenantID, filters)
}

// List is the all-tenant view reserved for global administrators.
func (s *auditService) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	return s.auditRepo.List(ctx, filters)
}
