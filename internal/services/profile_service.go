package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicore/internal/caching"
	"clinicore/internal/common"
	"clinicore/internal/models"
	"clinicore/internal/repositories"

	"github.com/google/uuid"
)

const profileCacheTTL = 5 * time.Minute

// ProfileService resolves the local profile for an authenticated identity,
// lazily creating a default one on first sight.
type ProfileService interface {
	Resolve(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error)
	Update(ctx context.Context, req *UpdateProfileRequest) (*models.UserProfile, error)
}

type profileService struct {
	profileRepo repositories.ProfileRepository
	cacheSvc    caching.CacheService
	trialDays   int
}

func NewProfileService(profileRepo repositories.ProfileRepository, cacheSvc caching.CacheService, trialDays int) ProfileService {
	if trialDays <= 0 {
		trialDays = 15
	}
	return &profileService{
		profileRepo: profileRepo,
		cacheSvc:    cacheSvc,
		trialDays:   trialDays,
	}
}

type UpdateProfileRequest struct {
	ID   uuid.UUID
	Name string `json:"name" validate:"required"`
}

// Resolve loads the profile by identity id, creating the default row when
// none exists. Creation is idempotent under races: a uniqueness conflict
// means a concurrent resolution won the insert, and the winner's row is read
// back instead of surfacing the conflict.
func (s *profileService) Resolve(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error) {
	if identityID == uuid.Nil {
		return nil, common.ErrIdentityUnknown
	}

	if cached, err := s.cacheSvc.GetProfile(ctx, identityID); err == nil && cached != nil {
		return cached, nil
	}

	profile, err := s.profileRepo.GetByID(ctx, identityID)
	if err == nil {
		s.cacheProfile(ctx, profile)
		return profile, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	now := time.Now()
	profile = &models.UserProfile{
		ID:             identityID,
		SystemRole:     models.SystemRoleNone,
		PlanTier:       models.PlanTierNormal,
		TrialExpiresAt: now.AddDate(0, 0, s.trialDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		if errors.Is(err, common.ErrDuplicateProfile) {
			return s.profileRepo.GetByID(ctx, identityID)
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.cacheProfile(ctx, profile)
	return profile, nil
}

func (s *profileService) Update(ctx context.Context, req *UpdateProfileRequest) (*models.UserProfile, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}

	profile, err := s.profileRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	profile.Name = req.Name
	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, err
	}
	s.cacheSvc.DeleteProfile(ctx, req.ID)
	return profile, nil
}

func (s *profileService) cacheProfile(ctx context.Context, profile *models.UserProfile) {
	// Best effort; resolution never fails on a cache write.
	_ = s.cacheSvc.SetProfile(ctx, profile, profileCacheTTL)
}
