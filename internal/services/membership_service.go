package services

import (
	"context"
	"errors"
	"fmt"

	"clinicore/internal/common"
	"clinicore/internal/models"
	"clinicore/internal/repositories"

	"github.com/google/uuid"
)

// MembershipService covers tenant-admin member management plus the lazy
// membership re-check used by the route guard.
type MembershipService interface {
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
	ListMembers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error)
	ValidateActive(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, bool, error)
}

type membershipService struct {
	membershipRepo repositories.MembershipRepository
	auditSvc       AuditService
}

func NewMembershipService(membershipRepo repositories.MembershipRepository, auditSvc AuditService) MembershipService {
	return &membershipService{membershipRepo: membershipRepo, auditSvc: auditSvc}
}

func (s *membershipService) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid tenant role %q", role)
	}
	membership := &models.Membership{
		ID:       uuid.New(),
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		IsActive: true,
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		return err
	}
	if s.auditSvc != nil {
		s.auditSvc.LogEvent(ctx, models.ActionMemberChange, &tenantID, &userID, models.JSONB{
			"change": "added", "role": string(role),
		})
	}
	return nil
}

func (s *membershipService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	if err := s.membershipRepo.Deactivate(ctx, userID, tenantID); err != nil {
		return err
	}
	if s.auditSvc != nil {
		s.auditSvc.LogEvent(ctx, models.ActionMemberChange, &tenantID, &userID, models.JSONB{
			"change": "removed",
		})
	}
	return nil
}

func (s *membershipService) ListMembers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.membershipRepo.ListByTenant(ctx, tenantID, limit, offset)
}

// ValidateActive re-checks an active membership. The bool is false when the
// membership is gone or deactivated; an error means the check itself failed
// and the session should be left untouched.
func (s *membershipService) ValidateActive(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, bool, error) {
	role, err := s.membershipRepo.GetRole(ctx, userID, tenantID)
	if errors.Is(err, common.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}
