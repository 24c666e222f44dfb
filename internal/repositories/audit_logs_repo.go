package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinicore/internal/models"

	"github.com/google/uuid"
)

type AuditLogsRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuditLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditLogsRepo struct {
	db DBTX
}

func NewAuditLogsRepo(db DBTX) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func (r *auditLogsRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, tenant_id, actor_id, action, requirement, decision, path, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.ActorID, entry.Action,
		entry.Requirement, entry.Decision, entry.Path, entry.Detail,
	)
	return err
}

// List returns audit entries across all tenants, newest first. Used by
// global-admin queries that are not pinned to an active tenant.
func (r *auditLogsRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	limit := 50
	offset := 0
	var conds []string
	var args []interface{}
	if filters != nil {
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		if filters.Offset > 0 {
			offset = filters.Offset
		}
		if filters.Action != nil {
			args = append(args, *filters.Action)
			conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
		}
		if filters.ActorID != nil {
			args = append(args, *filters.ActorID)
			conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
		}
		if filters.StartDate != nil {
			args = append(args, *filters.StartDate)
			conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if filters.EndDate != nil {
			args = append(args, *filters.EndDate)
			conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
		}
	}

	query := `
		SELECT id, tenant_id, actor_id, action, requirement, decision, path, detail, created_at
		FROM audit_logs
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.ActorID, &entry.Action,
			&entry.Requirement, &entry.Decision, &entry.Path, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *auditLogsRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	limit := 50
	offset := 0
	if filters != nil {
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		if filters.Offset > 0 {
			offset = filters.Offset
		}
	}
	query := `
		SELECT id, tenant_id, actor_id, action, requirement, decision, path, detail, created_at
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.ActorID, &entry.Action,
			&entry.Requirement, &entry.Decision, &entry.Path, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *auditLogsRepo) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, tenant_id, actor_id, action, requirement, decision, path, detail, created_at
		FROM audit_logs
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.ActorID, &entry.Action,
			&entry.Requirement, &entry.Decision, &entry.Path, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *auditLogsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
