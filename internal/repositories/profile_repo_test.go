package repositories

import (
	"context"
	"testing"
	"time"

	"clinicore/internal/common"
	"clinicore/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ProfileRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    ProfileRepository
	context context.Context
}

func (suite *ProfileRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewProfileRepo(mock)
	suite.context = context.Background()
}

func (suite *ProfileRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestProfileRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ProfileRepoTestSuite))
}

func (suite *ProfileRepoTestSuite) TestGetByID_Success() {
	id := uuid.New()
	now := time.Now()
	trial := now.AddDate(0, 0, 15)

	rows := pgxmock.NewRows([]string{
		"id", "name", "system_role", "plan_tier", "trial_expires_at", "plan_expires_at", "created_at", "updated_at",
	}).AddRow(id, "Dr. Osei", models.SystemRoleTenantAdmin, models.PlanTierNormal, trial, (*time.Time)(nil), now, now)

	suite.mock.ExpectQuery(`SELECT id, name, system_role, plan_tier, trial_expires_at, plan_expires_at, created_at, updated_at\s+FROM users_profiles\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(rows)

	profile, err := suite.repo.GetByID(suite.context, id)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), id, profile.ID)
	assert.Equal(suite.T(), models.SystemRoleTenantAdmin, profile.SystemRole)
	assert.Nil(suite.T(), profile.PlanExpiresAt)
}

func (suite *ProfileRepoTestSuite) TestGetByID_NotFound() {
	id := uuid.New()

	suite.mock.ExpectQuery(`SELECT id, name, system_role, plan_tier, trial_expires_at, plan_expires_at, created_at, updated_at\s+FROM users_profiles\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	profile, err := suite.repo.GetByID(suite.context, id)
	assert.Nil(suite.T(), profile)
	assert.ErrorIs(suite.T(), err, common.ErrNotFound)
}

func (suite *ProfileRepoTestSuite) TestCreate_Success() {
	profile := &models.UserProfile{
		ID:             uuid.New(),
		Name:           "Dr. Osei",
		SystemRole:     models.SystemRoleNone,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: time.Now().AddDate(0, 0, 15),
	}

	suite.mock.ExpectExec(`INSERT INTO users_profiles`).
		WithArgs(profile.ID, profile.Name, profile.SystemRole, profile.PlanTier, profile.TrialExpiresAt, profile.PlanExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Create(suite.context, profile)
	assert.NoError(suite.T(), err)
}

func (suite *ProfileRepoTestSuite) TestCreate_DuplicateMapsToSentinel() {
	profile := &models.UserProfile{
		ID:             uuid.New(),
		SystemRole:     models.SystemRoleNone,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: time.Now().AddDate(0, 0, 15),
	}

	suite.mock.ExpectExec(`INSERT INTO users_profiles`).
		WithArgs(profile.ID, profile.Name, profile.SystemRole, profile.PlanTier, profile.TrialExpiresAt, profile.PlanExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := suite.repo.Create(suite.context, profile)
	assert.ErrorIs(suite.T(), err, common.ErrDuplicateProfile)
}

func (suite *ProfileRepoTestSuite) TestUpdate_Success() {
	profile := &models.UserProfile{
		ID:             uuid.New(),
		Name:           "Dr. Osei",
		SystemRole:     models.SystemRoleTenantMember,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: time.Now().AddDate(0, 0, 15),
	}

	suite.mock.ExpectExec(`UPDATE users_profiles`).
		WithArgs(profile.Name, profile.SystemRole, profile.PlanTier, profile.TrialExpiresAt, profile.PlanExpiresAt, profile.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.Update(suite.context, profile)
	assert.NoError(suite.T(), err)
}
