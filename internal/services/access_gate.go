package services

import (
	"time"

	"clinicore/internal/models"
	"clinicore/internal/session"
)

// Requirement is the capability a route demands.
type Requirement string

const (
	RequireAuthenticated Requirement = "authenticated"
	RequireTenantAdmin   Requirement = "tenant_admin"
	RequireGlobalAdmin   Requirement = "global_admin"
)

// Verdict is the outcome of an authorization check.
type Verdict string

const (
	VerdictAllow       Verdict = "allow"
	VerdictPending     Verdict = "pending"
	VerdictRedirect    Verdict = "redirect"
	VerdictPlanExpired Verdict = "plan_expired"
)

// Decision is the gate's answer for one route/action.
type Decision struct {
	Verdict    Verdict
	RedirectTo string
}

// Redirect targets used by the gate.
const (
	RedirectLogin = "/auth"
	RedirectHome  = "/"
)

// Authorize is the access gate: a pure function of session state and the
// required capability. Mid-resolution sessions answer Pending so callers
// show a loading affordance instead of a denial.
func Authorize(st session.State, req Requirement) Decision {
	return AuthorizeAt(st, req, time.Now())
}

// AuthorizeAt evaluates the gate rules at an explicit instant.
func AuthorizeAt(st session.State, req Requirement, now time.Time) Decision {
	if st.Phase.Resolving() {
		return Decision{Verdict: VerdictPending}
	}
	if st.Identity == nil {
		return Decision{Verdict: VerdictRedirect, RedirectTo: RedirectLogin}
	}

	role := models.SystemRoleNone
	if st.Profile != nil {
		role = st.Profile.SystemRole
	}

	switch req {
	case RequireGlobalAdmin:
		if role != models.SystemRoleGlobalAdmin {
			return Decision{Verdict: VerdictRedirect, RedirectTo: RedirectHome}
		}
	case RequireTenantAdmin:
		if role != models.SystemRoleGlobalAdmin && st.TenantRole != models.TenantRoleAdmin {
			return Decision{Verdict: VerdictRedirect, RedirectTo: RedirectHome}
		}
	}

	// Plan expiry is a distinct terminal condition, not a permission denial.
	// Checked after role checks succeed; bare authentication stays allowed.
	if req != RequireAuthenticated && st.Profile != nil && st.Profile.PlanExpired(now) {
		return Decision{Verdict: VerdictPlanExpired}
	}

	return Decision{Verdict: VerdictAllow}
}
