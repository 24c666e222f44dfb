package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinicore/internal/common"
	"clinicore/internal/models"
	"clinicore/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const archiveURLExpiry = 15 * time.Minute

// AuditLogsHandlers handles audit logs related HTTP requests
type AuditLogsHandlers struct {
	auditService  services.AuditService
	archiveSvc    services.ArchiveService
	archiveBucket string
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditService services.AuditService, archiveSvc services.ArchiveService, archiveBucket string) *AuditLogsHandlers {
	return &AuditLogsHandlers{
		auditService:  auditService,
		archiveSvc:    archiveSvc,
		archiveBucket: archiveBucket,
	}
}

// ListAuditLogs retrieves audit logs with filtering and pagination
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	ctx := c.Request().Context()

	// Global admins carry no active tenant; they see the all-tenant view.
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok && !isGlobalAdmin(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Tenant not found")
	}

	filters := &models.AuditLogFilters{}
	if action := c.QueryParam("action"); action != "" {
		filters.Action = &action
	}
	if actorID := c.QueryParam("actor_id"); actorID != "" {
		if aid, err := uuid.Parse(actorID); err == nil {
			filters.ActorID = &aid
		}
	}
	if startDate := c.QueryParam("start_date"); startDate != "" {
		if sd, err := time.Parse(time.RFC3339, startDate); err == nil {
			filters.StartDate = &sd
		}
	}
	if endDate := c.QueryParam("end_date"); endDate != "" {
		if ed, err := time.Parse(time.RFC3339, endDate); err == nil {
			filters.EndDate = &ed
		}
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	filters.Limit = limit
	filters.Offset = offset

	var logs []*models.AuditLog
	var err error
	if ok {
		logs, err = h.auditService.ListByTenant(ctx, tenantID, filters)
	} else {
		logs, err = h.auditService.List(ctx, filters)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve audit logs")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

// GetArchiveURL returns a short-lived download link for an archived audit
// batch previously exported to object storage.
func (h *AuditLogsHandlers) GetArchiveURL(c echo.Context) error {
	name := c.Param("name")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid archive name")
	}

	url, err := h.archiveSvc.GetPresignedURL(h.archiveBucket, "audit/"+name, archiveURLExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate archive link")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"url":        url,
		"expires_in": archiveURLExpiry.String(),
	})
}
