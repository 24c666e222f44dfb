package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicore/internal/caching"
	"clinicore/internal/common"
	"clinicore/internal/models"
	"clinicore/internal/repositories"
	"clinicore/internal/session"

	"github.com/google/uuid"
)

const tenantCacheTTL = 10 * time.Minute

// NewTenantResolver builds the tenant-resolution step of the session machine.
// Resolution order is strict: global-admin short-circuit, routing-key
// override, membership enumeration with bootstrap fallback.
func NewTenantResolver(
	tenantRepo repositories.TenantRepository,
	membershipRepo repositories.MembershipRepository,
	cacheSvc caching.CacheService,
	auditSvc AuditService,
) session.TenantResolver {
	return &tenantResolver{
		tenantRepo:     tenantRepo,
		membershipRepo: membershipRepo,
		cacheSvc:       cacheSvc,
		auditSvc:       auditSvc,
	}
}

type tenantResolver struct {
	tenantRepo     repositories.TenantRepository
	membershipRepo repositories.MembershipRepository
	cacheSvc       caching.CacheService
	auditSvc       AuditService
	bootstrapLocks keyedMutex
}

func (s *tenantResolver) Resolve(ctx context.Context, identityID uuid.UUID, profile *models.UserProfile, routing session.RoutingContext) (*session.Resolution, error) {
	// Global admins operate tenant-agnostically.
	if profile.SystemRole == models.SystemRoleGlobalAdmin {
		return &session.Resolution{Phase: session.PhaseReady}, nil
	}

	// Routing-key override beats membership resolution so a tenant-specific
	// entry point always lands the correct tenant.
	if key := routing.RoutingKey(); key != "" {
		tenant, err := s.tenantBySubdomain(ctx, key)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return failSafe(err), nil
		}
		if tenant != nil {
			return &session.Resolution{
				Tenant: tenant,
				Role:   s.roleIn(ctx, identityID, tenant.ID),
				Phase:  session.PhaseReady,
			}, nil
		}
		// Unknown routing key falls through to membership resolution.
	}

	memberships, err := s.membershipRepo.ListByUser(ctx, identityID)
	if err != nil {
		return failSafe(err), nil
	}

	switch len(memberships) {
	case 0:
		return s.bootstrap(ctx, identityID)
	case 1:
		m := memberships[0]
		return &session.Resolution{Tenant: m.Tenant, Role: m.Role, Phase: session.PhaseReady}, nil
	default:
		return &session.Resolution{Phase: session.PhaseNeedsTenantSelection, Candidates: memberships}, nil
	}
}

// bootstrap assigns a brand-new user to the oldest tenant in the directory.
// Serialized per identity, and the membership write itself is an idempotent
// upsert, so two concurrent bootstraps never produce two default rows.
func (s *tenantResolver) bootstrap(ctx context.Context, identityID uuid.UUID) (*session.Resolution, error) {
	unlock := s.bootstrapLocks.lock(identityID)
	defer unlock()

	// A concurrent bootstrap may have bound this user while we waited.
	memberships, err := s.membershipRepo.ListByUser(ctx, identityID)
	if err != nil {
		return failSafe(err), nil
	}
	if len(memberships) == 1 {
		m := memberships[0]
		return &session.Resolution{Tenant: m.Tenant, Role: m.Role, Phase: session.PhaseReady}, nil
	}
	if len(memberships) > 1 {
		return &session.Resolution{Phase: session.PhaseNeedsTenantSelection, Candidates: memberships}, nil
	}

	tenants, err := s.tenantRepo.ListOldest(ctx, 1)
	if err != nil {
		return failSafe(err), nil
	}
	if len(tenants) == 0 {
		return &session.Resolution{
			Phase: session.PhaseNeedsTenantSelection,
			Err:   common.ErrNoTenantAvailable,
		}, nil
	}

	tenant := tenants[0]
	if err := s.membershipRepo.UpsertDefault(ctx, identityID, tenant.ID); err != nil {
		return failSafe(err), nil
	}

	// The upsert is DO NOTHING under conflict: another instance may have bound
	// this user to a different tenant first. The membership on record wins,
	// never the locally chosen one.
	memberships, err = s.membershipRepo.ListByUser(ctx, identityID)
	if err != nil {
		return failSafe(err), nil
	}
	switch len(memberships) {
	case 0:
		return &session.Resolution{
			Phase: session.PhaseNeedsTenantSelection,
			Err:   common.ErrNoTenantAvailable,
		}, nil
	case 1:
		m := memberships[0]
		if s.auditSvc != nil {
			s.auditSvc.LogEvent(ctx, models.ActionBootstrapTenant, &m.Tenant.ID, &identityID, models.JSONB{
				"tenant_name": m.Tenant.Name,
			})
		}
		return &session.Resolution{Tenant: m.Tenant, Role: m.Role, Phase: session.PhaseReady}, nil
	default:
		return &session.Resolution{Phase: session.PhaseNeedsTenantSelection, Candidates: memberships}, nil
	}
}

func (s *tenantResolver) tenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if cached, err := s.cacheSvc.GetTenantBySubdomain(ctx, subdomain); err == nil && cached != nil {
		return cached, nil
	}
	tenant, err := s.tenantRepo.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	_ = s.cacheSvc.SetTenantBySubdomain(ctx, tenant, tenantCacheTTL)
	return tenant, nil
}

// roleIn looks up the caller's role within a tenant. A missing membership is
// member-level access, not an error: routing-key overrides may pin a tenant
// the user has no row in.
func (s *tenantResolver) roleIn(ctx context.Context, identityID, tenantID uuid.UUID) models.TenantRole {
	role, err := s.membershipRepo.GetRole(ctx, identityID, tenantID)
	if err != nil {
		return ""
	}
	return role
}

// failSafe turns a data-access failure into needs_tenant_selection with no
// candidates: resolution never silently grants access to an unresolved
// tenant.
func failSafe(err error) *session.Resolution {
	return &session.Resolution{
		Phase: session.PhaseNeedsTenantSelection,
		Err:   fmt.Errorf("%w: %v", common.ErrTenantResolution, err),
	}
}

// keyedMutex serializes bootstrap per identity without holding a global lock
// across I/O.
type keyedMutex struct {
	mu   sync.Mutex
	held map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	if k.held == nil {
		k.held = make(map[uuid.UUID]*keyedLock)
	}
	l, ok := k.held[id]
	if !ok {
		l = &keyedLock{}
		k.held[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, id)
		}
		k.mu.Unlock()
	}
}
