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

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	Create(ctx context.Context, profile *models.UserProfile) error
	Update(ctx context.Context, profile *models.UserProfile) error
}

type profileRepo struct {
	db DBTX
}

func NewProfileRepo(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	query := `
		SELECT id, name, system_role, plan_tier, trial_expires_at, plan_expires_at, created_at, updated_at
		FROM users_profiles
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&profile.ID, &profile.Name, &profile.SystemRole, &profile.PlanTier,
		&profile.TrialExpiresAt, &profile.PlanExpiresAt, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Create inserts the profile row. A uniqueness conflict (a concurrent
// resolution won the insert race) is reported as common.ErrDuplicateProfile
// so the caller can read back the winner's row.
func (r *profileRepo) Create(ctx context.Context, profile *models.UserProfile) error {
	query := `
		INSERT INTO users_profiles (id, name, system_role, plan_tier, trial_expires_at, plan_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		profile.ID, profile.Name, profile.SystemRole, profile.PlanTier,
		profile.TrialExpiresAt, profile.PlanExpiresAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("profile %s: %w", profile.ID, common.ErrDuplicateProfile)
	}
	return err
}

func (r *profileRepo) Update(ctx context.Context, profile *models.UserProfile) error {
	query := `
		UPDATE users_profiles
		SET name = $1, system_role = $2, plan_tier = $3, trial_expires_at = $4, plan_expires_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.Exec(ctx, query,
		profile.Name, profile.SystemRole, profile.PlanTier,
		profile.TrialExpiresAt, profile.PlanExpiresAt, profile.ID,
	)
	return err
}
