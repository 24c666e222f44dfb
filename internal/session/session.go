// Package session holds the per-identity resolution state machine that binds
// an authenticated identity to its profile and active tenant before any
// tenant-scoped route is allowed through.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinicore/internal/common"
	"clinicore/internal/models"

	"github.com/google/uuid"
)

// Phase is the resolution stage between sign-in and a terminal state.
type Phase string

const (
	PhaseUnauthenticated      Phase = "unauthenticated"
	PhaseLoadingProfile       Phase = "loading_profile"
	PhaseLoadingTenant        Phase = "loading_tenant"
	PhaseNeedsTenantSelection Phase = "needs_tenant_selection"
	PhaseReady                Phase = "ready"
)

// Resolving reports whether the session is mid-resolution. Route guards must
// answer Pending in these phases, never a denial.
func (p Phase) Resolving() bool {
	return p == PhaseLoadingProfile || p == PhaseLoadingTenant
}

// Identity is the externally-authenticated principal. Credentials are never
// stored here; the identity store owns them.
type Identity struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
}

// RoutingContext carries the request hostname used for routing-key overrides.
type RoutingContext struct {
	Hostname   string
	BaseDomain string
}

// RoutingKey derives the tenant routing key from the hostname's leading
// label. The bare host, localhost, and the literal www carry no key.
func (rc RoutingContext) RoutingKey() string {
	host := rc.Hostname
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	if host == "" || host == "localhost" || host == rc.BaseDomain {
		return ""
	}
	label, _, ok := strings.Cut(host, ".")
	if !ok || label == "www" {
		return ""
	}
	return label
}

// State is an immutable snapshot of a session. Every transition produces a
// new value; holders never observe partial updates.
type State struct {
	Phase        Phase                      `json:"phase"`
	Identity     *Identity                  `json:"identity,omitempty"`
	Profile      *models.UserProfile        `json:"profile,omitempty"`
	ActiveTenant *models.Tenant             `json:"active_tenant,omitempty"`
	TenantRole   models.TenantRole          `json:"tenant_role,omitempty"`
	Candidates   []*models.TenantMembership `json:"candidates,omitempty"`
	Err          error                      `json:"-"`
}

// Resolution is the outcome of tenant resolution.
type Resolution struct {
	Tenant     *models.Tenant
	Role       models.TenantRole
	Phase      Phase
	Candidates []*models.TenantMembership
	Err        error
}

// ProfileResolver loads (or lazily creates) the profile for an identity.
type ProfileResolver interface {
	Resolve(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error)
}

// TenantResolver decides which tenant is active for an identity, or that the
// caller must be prompted to choose.
type TenantResolver interface {
	Resolve(ctx context.Context, identityID uuid.UUID, profile *models.UserProfile, routing RoutingContext) (*Resolution, error)
}

// Session is the state machine for one signed-in identity. Transitions are
// atomic; in-flight resolution results are discarded if a sign-out or a newer
// sign-in supersedes them (epoch guard).
type Session struct {
	mu            sync.RWMutex
	state         State
	epoch         uint64
	lastValidated time.Time

	profiles ProfileResolver
	tenants  TenantResolver

	subs    map[uint64]chan State
	nextSub uint64
}

func New(profiles ProfileResolver, tenants TenantResolver) *Session {
	return &Session{
		state:    State{Phase: PhaseUnauthenticated},
		profiles: profiles,
		tenants:  tenants,
		subs:     make(map[uint64]chan State),
	}
}

// Current returns the latest state snapshot.
func (s *Session) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener for state snapshots. The returned cancel
// func must be called when the listener goes away. Slow listeners miss
// intermediate snapshots rather than blocking transitions.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 8)
	ch <- s.state
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Session) broadcastLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.state:
		default:
		}
	}
}

func (s *Session) begin(identity *Identity) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = State{Phase: PhaseLoadingProfile, Identity: identity}
	s.broadcastLocked()
	return s.epoch
}

// apply commits a transition if the session has not been superseded since
// epoch was captured. Returns false when the result was stale and dropped.
func (s *Session) apply(epoch uint64, mutate func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	st := s.state
	mutate(&st)
	s.state = st
	if st.Phase == PhaseReady {
		s.lastValidated = time.Now()
	}
	s.broadcastLocked()
	return true
}

// HandleSessionEvent drives the machine from an identity-store event. A nil
// identity is a sign-out. The call is synchronous but safe against
// concurrent sign-out: stale results are discarded, never applied.
func (s *Session) HandleSessionEvent(ctx context.Context, identity *Identity, routing RoutingContext) State {
	if identity == nil {
		return s.SignOut()
	}
	epoch := s.begin(identity)

	profile, err := s.profiles.Resolve(ctx, identity.ID)
	if err != nil {
		// Fail safe: never silently ready, always a navigable terminal state.
		s.apply(epoch, func(st *State) {
			st.Phase = PhaseNeedsTenantSelection
			st.Candidates = nil
			st.Err = err
		})
		return s.Current()
	}

	if !s.apply(epoch, func(st *State) {
		st.Profile = profile
		st.Phase = PhaseLoadingTenant
	}) {
		return s.Current()
	}

	// Global admins operate tenant-agnostically; tenant resolution is
	// skipped entirely.
	if profile.SystemRole == models.SystemRoleGlobalAdmin {
		s.apply(epoch, func(st *State) {
			st.Phase = PhaseReady
			st.ActiveTenant = nil
			st.TenantRole = ""
		})
		return s.Current()
	}

	res, err := s.tenants.Resolve(ctx, identity.ID, profile, routing)
	if err != nil {
		s.apply(epoch, func(st *State) {
			st.Phase = PhaseNeedsTenantSelection
			st.Candidates = nil
			st.Err = fmt.Errorf("%w: %v", common.ErrTenantResolution, err)
		})
		return s.Current()
	}

	s.apply(epoch, func(st *State) {
		st.Phase = res.Phase
		st.ActiveTenant = res.Tenant
		st.TenantRole = res.Role
		st.Candidates = res.Candidates
		st.Err = res.Err
	})
	return s.Current()
}

// SelectTenant activates one tenant out of the last computed candidate set.
// The selection is ephemeral: it is never persisted as a new default, and the
// next full sign-in re-runs resolution from scratch.
func (s *Session) SelectTenant(tenantID uuid.UUID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseNeedsTenantSelection {
		return s.state, fmt.Errorf("select tenant in phase %q: %w", s.state.Phase, common.ErrInvalidCandidate)
	}
	for _, cand := range s.state.Candidates {
		if cand.Tenant != nil && cand.Tenant.ID == tenantID {
			st := s.state
			st.Phase = PhaseReady
			st.ActiveTenant = cand.Tenant
			st.TenantRole = cand.Role
			st.Candidates = nil
			st.Err = nil
			s.state = st
			s.lastValidated = time.Now()
			s.broadcastLocked()
			return st, nil
		}
	}
	return s.state, common.ErrInvalidCandidate
}

// SignOut clears the session synchronously and invalidates any in-flight
// resolution for the departing identity.
func (s *Session) SignOut() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = State{Phase: PhaseUnauthenticated}
	s.broadcastLocked()
	return s.state
}

// Demote regresses a ready session whose active membership turned out to be
// invalid (removed or deactivated since resolution ran).
func (s *Session) Demote(reason error) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseReady {
		return s.state
	}
	st := s.state
	st.Phase = PhaseNeedsTenantSelection
	st.ActiveTenant = nil
	st.TenantRole = ""
	st.Candidates = nil
	st.Err = reason
	s.state = st
	s.broadcastLocked()
	return st
}

// NeedsRevalidation reports whether a ready tenant-bound session is due for
// a lazy membership re-check.
func (s *Session) NeedsRevalidation(interval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase == PhaseReady &&
		s.state.ActiveTenant != nil &&
		time.Since(s.lastValidated) > interval
}

// MarkValidated records a successful membership re-check.
func (s *Session) MarkValidated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastValidated = time.Now()
}
