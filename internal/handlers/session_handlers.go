package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinicore/internal/caching"
	"clinicore/internal/common"
	"clinicore/internal/middleware"
	"clinicore/internal/models"
	"clinicore/internal/services"
	"clinicore/internal/session"

	"github.com/labstack/echo/v4"
)

// tokenBlacklistTTL outlives any token the identity provider issues, so a
// revoked token stays parked until it would have expired anyway.
const tokenBlacklistTTL = 24 * time.Hour

// SessionHandlers exposes the session state machine over HTTP.
type SessionHandlers struct {
	registry *session.Registry
	cacheSvc caching.CacheService
	auditSvc services.AuditService
}

func NewSessionHandlers(registry *session.Registry, cacheSvc caching.CacheService, auditSvc services.AuditService) *SessionHandlers {
	return &SessionHandlers{
		registry: registry,
		cacheSvc: cacheSvc,
		auditSvc: auditSvc,
	}
}

// SessionResponse is the wire form of a session snapshot.
type SessionResponse struct {
	Phase        session.Phase              `json:"phase"`
	Identity     *session.Identity          `json:"identity,omitempty"`
	Profile      *models.UserProfile        `json:"profile,omitempty"`
	ActiveTenant *models.Tenant             `json:"active_tenant,omitempty"`
	TenantRole   models.TenantRole          `json:"tenant_role,omitempty"`
	Candidates   []*models.TenantMembership `json:"candidates,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

func sessionResponse(st session.State) *SessionResponse {
	resp := &SessionResponse{
		Phase:        st.Phase,
		Identity:     st.Identity,
		Profile:      st.Profile,
		ActiveTenant: st.ActiveTenant,
		TenantRole:   st.TenantRole,
		Candidates:   st.Candidates,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

// GetSession returns the caller's current session snapshot.
func (h *SessionHandlers) GetSession(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return common.SendUnauthorizedError(c)
	}
	return c.JSON(http.StatusOK, sessionResponse(sess.Current()))
}

// SelectTenantRequest is the tenant selection payload.
type SelectTenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

// SelectTenant activates one of the candidate tenants offered by the last
// resolution. Only valid while the session awaits a selection.
func (h *SessionHandlers) SelectTenant(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return common.SendUnauthorizedError(c)
	}

	var req SelectTenantRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	tenantID, err := common.ValidateUUID(req.TenantID, "tenant_id")
	if err != nil {
		return common.SendValidationError(c, "tenant_id", err.Error())
	}

	st, err := sess.SelectTenant(tenantID)
	if err != nil {
		return common.SendClientError(c, fmt.Sprintf("Tenant selection rejected: %v", err))
	}

	if identityID, ok := common.GetIdentityIDFromContext(c.Request().Context()); ok {
		h.auditSvc.LogEvent(c.Request().Context(), models.ActionSelectTenant, &tenantID, &identityID, models.JSONB{
			"phase": string(st.Phase),
		})
	}

	return c.JSON(http.StatusOK, sessionResponse(st))
}

// SignOut clears the session immediately and revokes the presented token.
// The local clear never waits on the revocation write.
func (h *SessionHandlers) SignOut(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return common.SendUnauthorizedError(c)
	}

	st := sess.SignOut()

	identityID, hasIdentity := common.GetIdentityIDFromContext(c.Request().Context())
	if hasIdentity {
		h.registry.Remove(identityID)
	}

	authHeader := c.Request().Header.Get("Authorization")
	if tokenString := strings.TrimPrefix(authHeader, "Bearer "); tokenString != authHeader && tokenString != "" {
		if err := h.cacheSvc.SetString(c.Request().Context(), middleware.BlacklistKey(tokenString), "revoked", tokenBlacklistTTL); err != nil {
			c.Logger().Warnf("token revocation write failed: %v", err)
		}
	}

	if hasIdentity {
		h.auditSvc.LogEvent(c.Request().Context(), models.ActionSignOut, nil, &identityID, nil)
	}

	return c.JSON(http.StatusOK, sessionResponse(st))
}

// Events streams session snapshots as server-sent events until the client
// disconnects.
func (h *SessionHandlers) Events(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return common.SendUnauthorizedError(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	updates, cancel := sess.Subscribe()
	defer cancel()

	enc := func(st session.State) error {
		if _, err := fmt.Fprintf(c.Response(), "event: session\ndata: "); err != nil {
			return err
		}
		if err := json.NewEncoder(c.Response()).Encode(sessionResponse(st)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response(), "\n"); err != nil {
			return err
		}
		c.Response().Flush()
		return nil
	}

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if err := enc(st); err != nil {
				return nil
			}
		}
	}
}
