package services

import (
	"context"
	"errors"
	"strings"

	"clinicore/internal/caching"
	"clinicore/internal/models"
	"clinicore/internal/repositories"

	"github.com/google/uuid"
)

// TenantService covers administrative tenant operations. Tenants are only
// ever created through here; the resolver's bootstrap fallback creates
// memberships, never tenants.
type TenantService interface {
	Create(ctx context.Context, req *CreateTenantRequest) (*models.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	Update(ctx context.Context, req *UpdateTenantRequest) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*models.Tenant, error)
}

type tenantService struct {
	tenantRepo repositories.TenantRepository
	cacheSvc   caching.CacheService
	auditSvc   AuditService
}

func NewTenantService(tenantRepo repositories.TenantRepository, cacheSvc caching.CacheService, auditSvc AuditService) TenantService {
	return &tenantService{tenantRepo: tenantRepo, cacheSvc: cacheSvc, auditSvc: auditSvc}
}

type CreateTenantRequest struct {
	Name      string          `json:"name" validate:"required"`
	Subdomain string          `json:"subdomain" validate:"required"`
	Slug      string          `json:"slug"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Phone     string          `json:"phone"`
	PlanTier  models.PlanTier `json:"plan_tier"`
}

type UpdateTenantRequest struct {
	ID        uuid.UUID
	Name      string          `json:"name" validate:"required"`
	Subdomain string          `json:"subdomain" validate:"required"`
	Slug      string          `json:"slug"`
	Phone     string          `json:"phone"`
	PlanTier  models.PlanTier `json:"plan_tier"`
	Active    bool            `json:"active"`
}

func (s *tenantService) Create(ctx context.Context, req *CreateTenantRequest) (*models.Tenant, error) {
	if req.Name == "" || req.Subdomain == "" {
		return nil, errors.New("name and subdomain are required")
	}
	if strings.TrimSpace(req.Subdomain) != req.Subdomain || strings.Contains(req.Subdomain, " ") {
		return nil, errors.New("subdomain cannot have spaces")
	}

	planTier := req.PlanTier
	if planTier == "" {
		planTier = models.PlanTierNormal
	}
	slug := req.Slug
	if slug == "" {
		slug = strings.ToLower(req.Subdomain)
	}

	tenant := &models.Tenant{
		ID:        uuid.New(),
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Slug:      slug,
		OwnerID:   req.OwnerID,
		Phone:     req.Phone,
		PlanTier:  planTier,
		Active:    true,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, err
	}
	if s.auditSvc != nil {
		s.auditSvc.LogEvent(ctx, models.ActionTenantChange, &tenant.ID, nil, models.JSONB{
			"change": "created", "name": tenant.Name, "subdomain": tenant.Subdomain,
		})
	}

	return tenant, nil
}

func (s *tenantService) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.tenantRepo.GetByID(ctx, id)
}

func (s *tenantService) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if subdomain == "" {
		return nil, errors.New("subdomain is required")
	}
	return s.tenantRepo.GetBySubdomain(ctx, subdomain)
}

func (s *tenantService) Update(ctx context.Context, req *UpdateTenantRequest) error {
	existing, err := s.tenantRepo.GetByID(ctx, req.ID)
	if err != nil {
		return err
	}

	oldSubdomain := existing.Subdomain
	existing.Name = req.Name
	existing.Subdomain = req.Subdomain
	existing.Slug = req.Slug
	existing.Phone = req.Phone
	existing.PlanTier = req.PlanTier
	existing.Active = req.Active

	if err := s.tenantRepo.Update(ctx, existing); err != nil {
		return err
	}
	// Routing-key cache entries for both names are now stale.
	s.cacheSvc.DeleteTenantBySubdomain(ctx, oldSubdomain)
	if req.Subdomain != oldSubdomain {
		s.cacheSvc.DeleteTenantBySubdomain(ctx, req.Subdomain)
	}
	if s.auditSvc != nil {
		s.auditSvc.LogEvent(ctx, models.ActionTenantChange, &req.ID, nil, models.JSONB{
			"change": "updated", "subdomain": req.Subdomain,
		})
	}
	return nil
}

func (s *tenantService) Deactivate(ctx context.Context, id uuid.UUID) error {
	existing, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tenantRepo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.cacheSvc.DeleteTenantBySubdomain(ctx, existing.Subdomain)
	if s.auditSvc != nil {
		s.auditSvc.LogEvent(ctx, models.ActionTenantChange, &id, nil, models.JSONB{
			"change": "deactivated",
		})
	}
	return nil
}

func (s *tenantService) List(ctx context.Context, limit, offset int) ([]*models.Tenant, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.tenantRepo.List(ctx, limit, offset)
}
