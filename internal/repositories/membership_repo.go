package repositories

import (
	"context"
	"errors"
	"fmt"

	"clinicore/internal/common"
	"clinicore/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type MembershipRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error)
	GetRole(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, error)
	Create(ctx context.Context, membership *models.Membership) error
	UpsertDefault(ctx context.Context, userID, tenantID uuid.UUID) error
	Deactivate(ctx context.Context, userID, tenantID uuid.UUID) error
}

type membershipRepo struct {
	db DBTX
}

func NewMembershipRepo(db DBTX) MembershipRepository {
	return &membershipRepo{db: db}
}

// ListByUser enumerates the active memberships of a user joined with their
// tenants. Inactive tenants are excluded so a suspended clinic never becomes
// a selection candidate.
func (r *membershipRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	query := `
		SELECT t.id, t.name, t.subdomain, t.slug, t.owner_id, t.phone, t.plan_tier, t.active, t.created_at, t.updated_at,
		       m.role, m.is_default, m.is_active
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.is_active AND t.active
		ORDER BY m.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*models.TenantMembership
	for rows.Next() {
		tenant := &models.Tenant{}
		tm := &models.TenantMembership{Tenant: tenant}
		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.Subdomain, &tenant.Slug, &tenant.OwnerID,
			&tenant.Phone, &tenant.PlanTier, &tenant.Active, &tenant.CreatedAt, &tenant.UpdatedAt,
			&tm.Role, &tm.IsDefault, &tm.IsActive,
		); err != nil {
			return nil, err
		}
		memberships = append(memberships, tm)
	}
	return memberships, rows.Err()
}

func (r *membershipRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, is_default, is_active, created_at
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.IsDefault, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *membershipRepo) GetRole(ctx context.Context, userID, tenantID uuid.UUID) (models.TenantRole, error) {
	var role models.TenantRole
	query := `
		SELECT role
		FROM memberships
		WHERE user_id = $1 AND tenant_id = $2 AND is_active
	`
	err := r.db.QueryRow(ctx, query, userID, tenantID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("membership %s/%s: %w", userID, tenantID, common.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r *membershipRepo) Create(ctx context.Context, membership *models.Membership) error {
	query := `
		INSERT INTO memberships (id, user_id, tenant_id, role, is_default, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, tenant_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		membership.ID, membership.UserID, membership.TenantID,
		membership.Role, membership.IsDefault, membership.IsActive,
	)
	return err
}

// UpsertDefault is the single-writer bootstrap write: the conflict target is
// the partial unique index on (user_id) WHERE is_default, so two concurrent
// bootstraps for the same user produce exactly one default row.
func (r *membershipRepo) UpsertDefault(ctx context.Context, userID, tenantID uuid.UUID) error {
	query := `
		INSERT INTO memberships (id, user_id, tenant_id, role, is_default, is_active, created_at)
		VALUES ($1, $2, $3, $4, true, true, NOW())
		ON CONFLICT (user_id) WHERE is_default DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), userID, tenantID, models.TenantRoleMember)
	return err
}

func (r *membershipRepo) Deactivate(ctx context.Context, userID, tenantID uuid.UUID) error {
	query := `
		UPDATE memberships
		SET is_active = false
		WHERE user_id = $1 AND tenant_id = $2
	`
	_, err := r.db.Exec(ctx, query, userID, tenantID)
	return err
}
