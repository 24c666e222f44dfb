package handlers

import (
	"errors"
	"net/http"

	"clinicore/internal/common"
	"clinicore/internal/services"

	"github.com/labstack/echo/v4"
)

// ProfileHandlers handles the caller's own profile.
type ProfileHandlers struct {
	profileService services.ProfileService
}

func NewProfileHandlers(profileService services.ProfileService) *ProfileHandlers {
	return &ProfileHandlers{profileService: profileService}
}

// GetMe returns the caller's profile, creating the default one on first sight.
func (h *ProfileHandlers) GetMe(c echo.Context) error {
	identityID, ok := common.GetIdentityIDFromContext(c.Request().Context())
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	profile, err := h.profileService.Resolve(c.Request().Context(), identityID)
	if err != nil {
		return common.SendServerError(c, "Failed to load profile")
	}

	return c.JSON(http.StatusOK, profile)
}

// UpdateMeRequest represents the profile update payload
type UpdateMeRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateMe updates the caller's profile.
func (h *ProfileHandlers) UpdateMe(c echo.Context) error {
	identityID, ok := common.GetIdentityIDFromContext(c.Request().Context())
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req UpdateMeRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if req.Name == "" {
		return common.SendValidationError(c, "name", "name is required")
	}

	profile, err := h.profileService.Update(c.Request().Context(), &services.UpdateProfileRequest{
		ID:   identityID,
		Name: req.Name,
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "Profile")
		}
		return common.SendServerError(c, "Failed to update profile")
	}

	return c.JSON(http.StatusOK, profile)
}
