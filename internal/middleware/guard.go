package middleware

import (
	"log"
	"net/http"
	"time"

	"clinicore/internal/common"
	"clinicore/internal/services"
	"clinicore/internal/session"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// revalidateAfter bounds how long a ready session may ride a membership that
// might have been revoked behind its back.
const revalidateAfter = 5 * time.Minute

// Guard enforces route requirements against the caller's session state.
type Guard struct {
	membershipSvc services.MembershipService
	auditSvc      services.AuditService
}

func NewGuard(membershipSvc services.MembershipService, auditSvc services.AuditService) *Guard {
	return &Guard{membershipSvc: membershipSvc, auditSvc: auditSvc}
}

// Require gates a route on the given capability. Mid-resolution sessions get
// 503 with Retry-After so clients poll instead of treating it as a denial.
func (g *Guard) Require(req services.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFromContext(c)

			var st session.State
			if sess != nil {
				g.revalidate(c, sess)
				st = sess.Current()
			} else {
				st = session.State{Phase: session.PhaseUnauthenticated}
			}

			decision := services.Authorize(st, req)
			g.record(c, st, req, decision)

			switch decision.Verdict {
			case services.VerdictAllow:
				return next(c)
			case services.VerdictPending:
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusServiceUnavailable,
					common.CreateErrorResponse("SESSION_RESOLVING", "Session is still resolving, retry shortly", nil))
			case services.VerdictPlanExpired:
				return c.JSON(http.StatusPaymentRequired,
					common.CreateErrorResponse("PLAN_EXPIRED", "Trial period has ended", nil))
			default:
				return c.Redirect(http.StatusFound, decision.RedirectTo)
			}
		}
	}
}

// revalidate lazily re-checks the active membership of a long-ready session.
// A failed lookup leaves the session untouched; a missing or deactivated
// membership demotes it back to tenant selection.
func (g *Guard) revalidate(c echo.Context, sess *session.Session) {
	if !sess.NeedsRevalidation(revalidateAfter) {
		return
	}
	st := sess.Current()
	if st.Identity == nil || st.ActiveTenant == nil {
		return
	}
	_, active, err := g.membershipSvc.ValidateActive(c.Request().Context(), st.Identity.ID, st.ActiveTenant.ID)
	if err != nil {
		log.Printf("Membership revalidation failed for %s: %v", st.Identity.ID, err)
		return
	}
	if !active {
		sess.Demote(common.ErrTenantResolution)
		return
	}
	sess.MarkValidated()
}

func (g *Guard) record(c echo.Context, st session.State, req services.Requirement, decision services.Decision) {
	if g.auditSvc == nil {
		return
	}
	var tenantID, actorID *uuid.UUID
	if st.ActiveTenant != nil {
		tenantID = &st.ActiveTenant.ID
	}
	if st.Identity != nil {
		actorID = &st.Identity.ID
	}
	g.auditSvc.LogDecision(c.Request().Context(), tenantID, actorID, string(req), string(decision.Verdict), c.Path())
}
