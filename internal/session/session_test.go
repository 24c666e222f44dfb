package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinicore/internal/common"
	"clinicore/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfiles struct {
	profile *models.UserProfile
	err     error
}

func (s *stubProfiles) Resolve(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error) {
	return s.profile, s.err
}

type stubTenants struct {
	mu      sync.Mutex
	res     *Resolution
	err     error
	blockCh chan struct{}
}

func (s *stubTenants) Resolve(ctx context.Context, identityID uuid.UUID, profile *models.UserProfile, routing RoutingContext) (*Resolution, error) {
	if s.blockCh != nil {
		<-s.blockCh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res, s.err
}

func testIdentity() *Identity {
	return &Identity{ID: uuid.New(), Email: "doc@example.com", EmailVerified: true}
}

func testProfile() *models.UserProfile {
	return &models.UserProfile{
		ID:             uuid.New(),
		SystemRole:     models.SystemRoleTenantMember,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: time.Now().AddDate(0, 0, 15),
	}
}

func testTenant(name string) *models.Tenant {
	return &models.Tenant{ID: uuid.New(), Name: name, Subdomain: "acme", Active: true}
}

func TestHandleSessionEvent_SingleTenantReachesReady(t *testing.T) {
	tenant := testTenant("Acme Clinic")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{Tenant: tenant, Role: models.TenantRoleMember, Phase: PhaseReady}},
	)

	st := s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})
	assert.Equal(t, PhaseReady, st.Phase)
	require.NotNil(t, st.ActiveTenant)
	assert.Equal(t, tenant.ID, st.ActiveTenant.ID)
	assert.Equal(t, models.TenantRoleMember, st.TenantRole)
	assert.Nil(t, st.Err)
}

func TestHandleSessionEvent_NilIdentityIsSignOut(t *testing.T) {
	s := New(&stubProfiles{profile: testProfile()}, &stubTenants{res: &Resolution{Phase: PhaseReady}})
	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	st := s.HandleSessionEvent(context.Background(), nil, RoutingContext{})
	assert.Equal(t, PhaseUnauthenticated, st.Phase)
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.ActiveTenant)
}

func TestHandleSessionEvent_ProfileFailureFailsSafe(t *testing.T) {
	s := New(
		&stubProfiles{err: errors.New("store down")},
		&stubTenants{},
	)

	st := s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})
	assert.Equal(t, PhaseNeedsTenantSelection, st.Phase)
	assert.Empty(t, st.Candidates)
	assert.Error(t, st.Err)
}

func TestHandleSessionEvent_GlobalAdminSkipsTenantResolution(t *testing.T) {
	profile := testProfile()
	profile.SystemRole = models.SystemRoleGlobalAdmin

	// The tenant resolver would fail loudly if consulted.
	s := New(&stubProfiles{profile: profile}, &stubTenants{err: errors.New("must not be called")})

	st := s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Nil(t, st.ActiveTenant)
	assert.Empty(t, st.TenantRole)
}

func TestHandleSessionEvent_TenantResolverErrorFailsSafe(t *testing.T) {
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{err: errors.New("connection refused")},
	)

	st := s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})
	assert.Equal(t, PhaseNeedsTenantSelection, st.Phase)
	assert.ErrorIs(t, st.Err, common.ErrTenantResolution)
}

func TestSelectTenant_ValidCandidate(t *testing.T) {
	first := testTenant("Acme Clinic")
	second := testTenant("Borealis Health")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{
			Phase: PhaseNeedsTenantSelection,
			Candidates: []*models.TenantMembership{
				{Tenant: first, Role: models.TenantRoleAdmin},
				{Tenant: second, Role: models.TenantRoleMember},
			},
		}},
	)
	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	st, err := s.SelectTenant(second.ID)
	assert.NoError(t, err)
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, second.ID, st.ActiveTenant.ID)
	assert.Equal(t, models.TenantRoleMember, st.TenantRole)
	assert.Nil(t, st.Candidates)
}

func TestSelectTenant_RejectsNonCandidate(t *testing.T) {
	first := testTenant("Acme Clinic")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{
			Phase: PhaseNeedsTenantSelection,
			Candidates: []*models.TenantMembership{
				{Tenant: first, Role: models.TenantRoleMember},
			},
		}},
	)
	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	st, err := s.SelectTenant(uuid.New())
	assert.ErrorIs(t, err, common.ErrInvalidCandidate)
	assert.Equal(t, PhaseNeedsTenantSelection, st.Phase, "a rejected selection must not move the machine")
}

func TestSelectTenant_RejectedOutsideSelectionPhase(t *testing.T) {
	s := New(&stubProfiles{profile: testProfile()}, &stubTenants{})

	_, err := s.SelectTenant(uuid.New())
	assert.ErrorIs(t, err, common.ErrInvalidCandidate)
}

func TestSignOut_DuringResolutionDiscardsStaleResult(t *testing.T) {
	block := make(chan struct{})
	tenants := &stubTenants{
		res:     &Resolution{Tenant: testTenant("Acme Clinic"), Role: models.TenantRoleMember, Phase: PhaseReady},
		blockCh: block,
	}
	s := New(&stubProfiles{profile: testProfile()}, tenants)

	done := make(chan State, 1)
	go func() {
		done <- s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})
	}()

	// Wait for the machine to enter tenant resolution, then pull the rug.
	require.Eventually(t, func() bool {
		return s.Current().Phase == PhaseLoadingTenant
	}, time.Second, time.Millisecond)

	st := s.SignOut()
	assert.Equal(t, PhaseUnauthenticated, st.Phase)

	close(block)
	<-done

	final := s.Current()
	assert.Equal(t, PhaseUnauthenticated, final.Phase, "stale resolution must never resurrect a signed-out session")
	assert.Nil(t, final.ActiveTenant)
}

func TestDemote_RegressesReadySession(t *testing.T) {
	tenant := testTenant("Acme Clinic")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{Tenant: tenant, Role: models.TenantRoleMember, Phase: PhaseReady}},
	)
	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	reason := errors.New("membership revoked")
	st := s.Demote(reason)
	assert.Equal(t, PhaseNeedsTenantSelection, st.Phase)
	assert.Nil(t, st.ActiveTenant)
	assert.Equal(t, reason, st.Err)

	// Demote is a no-op outside ready.
	again := s.Demote(errors.New("other"))
	assert.Equal(t, reason, again.Err)
}

func TestSubscribe_DeliversSnapshots(t *testing.T) {
	tenant := testTenant("Acme Clinic")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{Tenant: tenant, Role: models.TenantRoleMember, Phase: PhaseReady}},
	)

	updates, cancel := s.Subscribe()
	defer cancel()

	// Initial snapshot arrives immediately.
	first := <-updates
	assert.Equal(t, PhaseUnauthenticated, first.Phase)

	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	var phases []Phase
	deadline := time.After(time.Second)
	for len(phases) < 3 {
		select {
		case st := <-updates:
			phases = append(phases, st.Phase)
		case <-deadline:
			t.Fatalf("timed out waiting for snapshots, got %v", phases)
		}
	}
	assert.Equal(t, []Phase{PhaseLoadingProfile, PhaseLoadingTenant, PhaseReady}, phases)
}

func TestNeedsRevalidation(t *testing.T) {
	tenant := testTenant("Acme Clinic")
	s := New(
		&stubProfiles{profile: testProfile()},
		&stubTenants{res: &Resolution{Tenant: tenant, Role: models.TenantRoleMember, Phase: PhaseReady}},
	)
	s.HandleSessionEvent(context.Background(), testIdentity(), RoutingContext{})

	assert.False(t, s.NeedsRevalidation(time.Minute), "freshly resolved session is validated")
	assert.True(t, s.NeedsRevalidation(0))

	s.MarkValidated()
	assert.False(t, s.NeedsRevalidation(time.Minute))
}

func TestRoutingContext_RoutingKey(t *testing.T) {
	cases := []struct {
		name     string
		hostname string
		base     string
		want     string
	}{
		{"tenant subdomain", "acme.clinicore.app", "clinicore.app", "acme"},
		{"subdomain with port", "acme.clinicore.app:8080", "clinicore.app", "acme"},
		{"bare base domain", "clinicore.app", "clinicore.app", ""},
		{"localhost", "localhost", "clinicore.app", ""},
		{"localhost with port", "localhost:3000", "clinicore.app", ""},
		{"www is not a tenant", "www.clinicore.app", "clinicore.app", ""},
		{"no dot", "intranet", "clinicore.app", ""},
		{"empty", "", "clinicore.app", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc := RoutingContext{Hostname: tc.hostname, BaseDomain: tc.base}
			assert.Equal(t, tc.want, rc.RoutingKey())
		})
	}
}

func TestRegistry_GetOrCreateAndSweep(t *testing.T) {
	r := NewRegistry(&stubProfiles{profile: testProfile()}, &stubTenants{res: &Resolution{Phase: PhaseReady}})

	id := uuid.New()
	s1, created := r.GetOrCreate(id)
	assert.True(t, created)
	s2, created := r.GetOrCreate(id)
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())

	// Nothing is idle yet.
	assert.Equal(t, 0, r.Sweep(time.Minute))
	assert.Equal(t, 1, r.Len())

	// Everything is idle at a zero threshold.
	assert.Equal(t, 1, r.Sweep(-time.Second))
	assert.Equal(t, 0, r.Len())

	r.GetOrCreate(id)
	r.Remove(id)
	assert.Equal(t, 0, r.Len())
}
