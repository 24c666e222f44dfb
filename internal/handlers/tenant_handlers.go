package handlers

import (
	"errors"
	"net/http"

	"clinicore/internal/common"
	"clinicore/internal/middleware"
	"clinicore/internal/models"
	"clinicore/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TenantHandlers handles tenant-related HTTP requests
type TenantHandlers struct {
	tenantService     services.TenantService
	membershipService services.MembershipService
}

// NewTenantHandlers creates a new tenant handlers instance
func NewTenantHandlers(tenantService services.TenantService, membershipService services.MembershipService) *TenantHandlers {
	return &TenantHandlers{
		tenantService:     tenantService,
		membershipService: membershipService,
	}
}

// isGlobalAdmin reports whether the caller's session resolved to a global
// administrator.
func isGlobalAdmin(c echo.Context) bool {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return false
	}
	st := sess.Current()
	return st.Profile != nil && st.Profile.SystemRole == models.SystemRoleGlobalAdmin
}

// pinnedTenantID parses the :id path parameter and pins it to the caller's
// active tenant. The route guard only proves admin rights within the active
// tenant, so a tenant admin must never reach a foreign tenant through the
// path. Global admins may target any tenant.
func pinnedTenantID(c echo.Context) (uuid.UUID, error) {
	tenantID, err := common.ValidateUUID(c.Param("id"), "tenant id")
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if isGlobalAdmin(c) {
		return tenantID, nil
	}
	activeID, ok := common.GetTenantIDFromContext(c.Request().Context())
	if !ok || activeID != tenantID {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "Tenant does not match the active session")
	}
	return tenantID, nil
}

// ListTenantsRequest represents query parameters for listing tenants
type ListTenantsRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// ListTenants handles getting a list of tenants
func (h *TenantHandlers) ListTenants(c echo.Context) error {
	var req ListTenantsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}

	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	tenants, err := h.tenantService.List(c.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list tenants")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"limit":   req.Limit,
		"offset":  req.Offset,
	})
}

// CreateTenantRequest represents the tenant creation request payload
type CreateTenantRequest struct {
	Name      string `json:"name" validate:"required"`
	Subdomain string `json:"subdomain" validate:"required"`
	Slug      string `json:"slug"`
	Phone     string `json:"phone"`
	PlanTier  string `json:"plan_tier"`
}

// CreateTenant handles creating a new tenant
func (h *TenantHandlers) CreateTenant(c echo.Context) error {
	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if req.Name == "" || req.Subdomain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and subdomain are required")
	}
	if len(req.Subdomain) < 3 {
		return echo.NewHTTPError(http.StatusBadRequest, "Subdomain must be at least 3 characters long")
	}

	svcReq := &services.CreateTenantRequest{
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Slug:      req.Slug,
		Phone:     req.Phone,
		PlanTier:  models.PlanTier(req.PlanTier),
	}
	if identityID, ok := common.GetIdentityIDFromContext(c.Request().Context()); ok {
		svcReq.OwnerID = identityID
	}

	tenant, err := h.tenantService.Create(c.Request().Context(), svcReq)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create tenant")
	}

	return c.JSON(http.StatusCreated, tenant)
}

// GetTenant handles getting tenant details by ID
func (h *TenantHandlers) GetTenant(c echo.Context) error {
	tenantID, err := pinnedTenantID(c)
	if err != nil {
		return err
	}

	tenant, err := h.tenantService.GetByID(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Tenant not found")
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdateTenantRequest represents the tenant update request payload
type UpdateTenantRequest struct {
	Name      string `json:"name" validate:"required"`
	Subdomain string `json:"subdomain" validate:"required"`
	Slug      string `json:"slug"`
	Phone     string `json:"phone"`
	PlanTier  string `json:"plan_tier"`
	Active    bool   `json:"active"`
}

// UpdateTenant handles updating tenant details
func (h *TenantHandlers) UpdateTenant(c echo.Context) error {
	tenantID, err := common.ValidateUUID(c.Param("id"), "tenant id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req UpdateTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Name == "" || req.Subdomain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and subdomain are required")
	}

	err = h.tenantService.Update(c.Request().Context(), &services.UpdateTenantRequest{
		ID:        tenantID,
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Slug:      req.Slug,
		Phone:     req.Phone,
		PlanTier:  models.PlanTier(req.PlanTier),
		Active:    req.Active,
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update tenant")
	}

	return c.NoContent(http.StatusNoContent)
}

// DeactivateTenant handles soft-deleting a tenant
func (h *TenantHandlers) DeactivateTenant(c echo.Context) error {
	tenantID, err := common.ValidateUUID(c.Param("id"), "tenant id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.tenantService.Deactivate(c.Request().Context(), tenantID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to deactivate tenant")
	}

	return c.NoContent(http.StatusNoContent)
}

// ListMembersRequest represents query parameters for listing members
type ListMembersRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// ListMembers handles listing a tenant's memberships
func (h *TenantHandlers) ListMembers(c echo.Context) error {
	tenantID, err := pinnedTenantID(c)
	if err != nil {
		return err
	}

	var req ListMembersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}

	members, err := h.membershipService.ListMembers(c.Request().Context(), tenantID, req.Limit, req.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list members")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"members": members,
	})
}

// AddMemberRequest represents the member addition payload
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

// AddMember handles adding a user to a tenant
func (h *TenantHandlers) AddMember(c echo.Context) error {
	tenantID, err := pinnedTenantID(c)
	if err != nil {
		return err
	}

	var req AddMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	userID, err := common.ValidateUUID(req.UserID, "user_id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	role := models.TenantRole(req.Role)
	if !role.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Role must be member or admin")
	}

	if err := h.membershipService.AddMember(c.Request().Context(), tenantID, userID, role); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to add member")
	}

	return c.NoContent(http.StatusCreated)
}

// RemoveMember handles deactivating a user's membership in a tenant
func (h *TenantHandlers) RemoveMember(c echo.Context) error {
	tenantID, err := pinnedTenantID(c)
	if err != nil {
		return err
	}
	userID, err := common.ValidateUUID(c.Param("userID"), "user id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.membershipService.RemoveMember(c.Request().Context(), tenantID, userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to remove member")
	}

	return c.NoContent(http.StatusNoContent)
}
