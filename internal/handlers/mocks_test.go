package handlers

import (
	"context"
	"io"
	"time"

	"clinicore/internal/models"
	"clinicore/internal/services"
	"clinicore/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockTenantService struct {
	mock.Mock
}

func (m *MockTenantService) Create(ctx context.Context, req *services.CreateTenantRequest) (*models.Tenant, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantService) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantService) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantService) Update(ctx context.Context, req *services.UpdateTenantRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockTenantService) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTenantService) List(ctx context.Context, limit, offset int) ([]*models.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tenant), args.Error(1)
}

type MockMembershipService struct {
	mock.Mock
}

func (m *MockMembershipService) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error {
	args := m.Called(ctx, tenantID, userID, role)
	return args.Error(0)
}

func (m *MockMembershipService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	args := m.Called(ctx, tenantID, userID)
	return args.Error(0)
}

func (m *MockMembershipService) ListMembers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *MockMembershipService) ValidateActive(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, bool, error) {
	args := m.Called(ctx, userID, tenantID)
	return args.Get(0).(models.TenantRole), args.Bool(1), args.Error(2)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogDecision(ctx context.Context, tenantID, actorID *uuid.UUID, requirement, decision, path string) {
	m.Called(ctx, tenantID, actorID, requirement, decision, path)
}

func (m *MockAuditService) LogEvent(ctx context.Context, action string, tenantID, actorID *uuid.UUID, detail models.JSONB) {
	m.Called(ctx, action, tenantID, actorID, detail)
}

func (m *MockAuditService) ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, tenantID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditService) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type MockArchiveService struct {
	mock.Mock
}

func (m *MockArchiveService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	args := m.Called(ctx, bucketName)
	return args.Error(0)
}

func (m *MockArchiveService) PutArchive(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64) error {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize)
	return args.Error(0)
}

func (m *MockArchiveService) GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}

type stubProfileResolver struct {
	profile *models.UserProfile
}

func (s *stubProfileResolver) Resolve(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error) {
	return s.profile, nil
}

// globalAdminSession builds a resolved session for a global administrator.
// Tenant resolution is skipped for that role, so no tenant resolver is needed.
func globalAdminSession(identityID uuid.UUID) *session.Session {
	profile := &models.UserProfile{
		ID:             identityID,
		SystemRole:     models.SystemRoleGlobalAdmin,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: time.Now().AddDate(0, 0, 15),
	}
	sess := session.New(&stubProfileResolver{profile: profile}, nil)
	sess.HandleSessionEvent(context.Background(), &session.Identity{ID: identityID}, session.RoutingContext{})
	return sess
}
