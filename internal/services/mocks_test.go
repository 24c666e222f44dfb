package services

import (
	"context"
	"time"

	"clinicore/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockTenantRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTenantRepository) List(ctx context.Context, limit, offset int) ([]*models.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) ListOldest(ctx context.Context, limit int) ([]*models.Tenant, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tenant), args.Error(1)
}

type MockMembershipRepository struct {
	mock.Mock
}

func (m *MockMembershipRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TenantMembership), args.Error(1)
}

func (m *MockMembershipRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *MockMembershipRepository) GetRole(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, error) {
	args := m.Called(ctx, userID, tenantID)
	return args.Get(0).(models.TenantRole), args.Error(1)
}

func (m *MockMembershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MockMembershipRepository) UpsertDefault(ctx context.Context, userID, tenantID uuid.UUID) error {
	args := m.Called(ctx, userID, tenantID)
	return args.Error(0)
}

func (m *MockMembershipRepository) Deactivate(ctx context.Context, userID, tenantID uuid.UUID) error {
	args := m.Called(ctx, userID, tenantID)
	return args.Error(0)
}

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) Update(ctx context.Context, profile *models.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// stubCache is a pass-through cache: every read misses and every write is
// dropped. Tests that care about cache behavior override individual fields.
type stubCache struct {
	tenantBySubdomain map[string]*models.Tenant
	profiles          map[uuid.UUID]*models.UserProfile
}

func newStubCache() *stubCache {
	return &stubCache{
		tenantBySubdomain: make(map[string]*models.Tenant),
		profiles:          make(map[uuid.UUID]*models.UserProfile),
	}
}

func (s *stubCache) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return s.tenantBySubdomain[subdomain], nil
}

func (s *stubCache) SetTenantBySubdomain(ctx context.Context, tenant *models.Tenant, ttl time.Duration) error {
	s.tenantBySubdomain[tenant.Subdomain] = tenant
	return nil
}

func (s *stubCache) DeleteTenantBySubdomain(ctx context.Context, subdomain string) error {
	delete(s.tenantBySubdomain, subdomain)
	return nil
}

func (s *stubCache) GetProfile(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	return s.profiles[id], nil
}

func (s *stubCache) SetProfile(ctx context.Context, profile *models.UserProfile, ttl time.Duration) error {
	s.profiles[profile.ID] = profile
	return nil
}

func (s *stubCache) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	delete(s.profiles, id)
	return nil
}

func (s *stubCache) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func (s *stubCache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	return nil
}

func (s *stubCache) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (s *stubCache) GetString(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (s *stubCache) Delete(ctx context.Context, key string) error {
	return nil
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, tenantID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
